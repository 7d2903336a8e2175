// Package measures provides numerically stable distance and density
// functions for Gaussian states, built on gonum's Cholesky factorization
// rather than naive matrix inversion.
package measures

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SquaredMahalanobis returns the squared Mahalanobis distance of x from
// mean under covariance cov, computed via a Cholesky solve rather than an
// explicit matrix inverse.
func SquaredMahalanobis(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error) {
	n := mean.Len()
	if x.Len() != n {
		return 0, fmt.Errorf("measures: dimension mismatch: x has %d, mean has %d", x.Len(), n)
	}
	if cov.SymmetricDim() != n {
		return 0, fmt.Errorf("measures: dimension mismatch: covariance is %dx%d, mean has %d", cov.SymmetricDim(), cov.SymmetricDim(), n)
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

	return mat.Dot(diff, &y), nil
}

// Mahalanobis returns the Mahalanobis distance (the square root of
// SquaredMahalanobis) of x from mean under covariance cov. It satisfies
// gmphd.Measure when applied to a measurement prediction's mean/covariance
// and a detection's state vector.
func Mahalanobis(mean *mat.VecDense, cov *mat.SymDense, x *mat.VecDense) (float64, error) {
	d2, err := SquaredMahalanobis(x, mean, cov)
	if err != nil {
		return 0, err
	}
	if d2 < 0 {
		d2 = 0
	}
	return math.Sqrt(d2), nil
}
