package gmphd

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// identityModel is a minimal MeasurementModel stand-in for tests that don't
// care about per-detection models.
type identityModel struct{ dim int }

func (m identityModel) Dim() int { return m.dim }

// noopPredictor returns the component unchanged except for its timestamp,
// for tests that only exercise hypothesis generation and updating, not
// motion.
type noopPredictor struct{}

func (noopPredictor) Predict(c *Component, timestamp time.Time) (*Component, error) {
	cl := c.Clone()
	cl.Timestamp = timestamp
	return cl, nil
}

// identityUpdater treats the state space as already being measurement
// space: PredictMeasurement is the identity, and Update moves the mean
// halfway toward the detection, a simple deterministic stand-in for a
// Kalman gain.
type identityUpdater struct{}

func (identityUpdater) PredictMeasurement(prediction *Component, model MeasurementModel) (*MeasurementPrediction, error) {
	return &MeasurementPrediction{
		Mean:       mat.VecDenseCopyOf(prediction.Mean),
		Covariance: prediction.Covariance,
	}, nil
}

func (identityUpdater) Update(h SingleHypothesis) (*Posterior, error) {
	det := h.Measurement.(*Detection)
	n := h.Prediction.Dim()
	blended := mat.NewVecDense(n, nil)
	blended.AddVec(h.Prediction.Mean, det.StateVector)
	blended.ScaleVec(0.5, blended)
	return &Posterior{Mean: blended, Covariance: h.Prediction.Covariance, Timestamp: det.Timestamp}, nil
}

func vec(vs ...float64) *mat.VecDense {
	return mat.NewVecDense(len(vs), vs)
}

func symDiag(vs ...float64) *mat.SymDense {
	n := len(vs)
	s := mat.NewSymDense(n, nil)
	for i, v := range vs {
		s.SetSym(i, i, v)
	}
	return s
}

// mahalanobis is a test-local, dependency-free stand-in for
// measures.Mahalanobis (importing the measures package from gmphd's tests
// would create an import cycle risk with future wiring, so it's
// reimplemented minimally here).
func mahalanobis(mean *mat.VecDense, cov *mat.SymDense, x *mat.VecDense) (float64, error) {
	n := mean.Len()
	diff := mat.NewVecDense(n, nil)
	diff.SubVec(x, mean)
	var chol mat.Cholesky
	chol.Factorize(cov)
	var y mat.VecDense
	chol.SolveVecTo(&y, diff)
	d2 := mat.Dot(diff, &y)
	if d2 < 0 {
		d2 = 0
	}
	return math.Sqrt(d2), nil
}
