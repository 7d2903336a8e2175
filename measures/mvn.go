package measures

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogMVNPdf returns the log-density of x under N(mean, cov), evaluated via
// Cholesky factorization of cov rather than a naive determinant/inverse, so
// it stays well-behaved when the density itself would underflow to zero.
func LogMVNPdf(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error) {
	n := mean.Len()
	if x.Len() != n {
		return 0, fmt.Errorf("measures: dimension mismatch: x has %d, mean has %d", x.Len(), n)
	}

	diff := mat.NewVecDense(n, nil)
	diff.SubVec(x, mean)

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return 0, fmt.Errorf("measures: covariance is not positive definite")
	}

	var y mat.VecDense
	if err := chol.SolveVecTo(&y, diff); err != nil {
		return 0, fmt.Errorf("measures: cholesky solve: %w", err)
	}
	sqMahal := mat.Dot(diff, &y)

	logDet := chol.LogDet()

	logPdf := -0.5 * (float64(n)*math.Log(2*math.Pi) + logDet + sqMahal)
	return logPdf, nil
}

// MVNPdf returns the density of x under N(mean, cov). Prefer LogMVNPdf
// directly wherever the result is about to be combined via log-sum-exp or
// is otherwise at risk of underflow; MVNPdf exists for callers that
// genuinely need the linear-space value.
func MVNPdf(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error) {
	logPdf, err := LogMVNPdf(x, mean, cov)
	if err != nil {
		return 0, err
	}
	return math.Exp(logPdf), nil
}
