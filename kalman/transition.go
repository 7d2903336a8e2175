// Package kalman provides a linear(ised) Kalman predictor and single-target
// updater implementing the gmphd.Predictor and gmphd.SingleTargetUpdater
// collaborator interfaces, built on gonum/mat.
package kalman

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// TransitionModel supplies the state transition matrix and process noise
// covariance for a given elapsed duration, letting Predictor handle
// variable-rate (and out-of-order, negative dt) prediction.
type TransitionModel interface {
	// StateTransition returns F(dt), the state transition matrix.
	StateTransition(dt time.Duration) *mat.Dense
	// ProcessNoise returns Q(dt), the process noise covariance.
	ProcessNoise(dt time.Duration) *mat.SymDense
	// Dim returns the state dimension.
	Dim() int
}

// ConstantVelocityModel is a nearly-constant-velocity transition model over
// a state [position..., velocity...] for Dims spatial dimensions, with
// piecewise-constant white-noise acceleration of variance Q.
type ConstantVelocityModel struct {
	Dims int
	Q    float64
}

// Dim returns 2*Dims (position and velocity per spatial dimension).
func (m *ConstantVelocityModel) Dim() int { return 2 * m.Dims }

// StateTransition returns the block-diagonal constant-velocity transition
// matrix for elapsed duration dt.
func (m *ConstantVelocityModel) StateTransition(dt time.Duration) *mat.Dense {
	n := m.Dim()
	f := mat.NewDense(n, n, nil)
	t := dt.Seconds()
	for i := 0; i < n; i++ {
		f.Set(i, i, 1)
	}
	for i := 0; i < m.Dims; i++ {
		f.Set(i, m.Dims+i, t)
	}
	return f
}

// ProcessNoise returns the discretized white-noise-acceleration process
// covariance for elapsed duration dt.
func (m *ConstantVelocityModel) ProcessNoise(dt time.Duration) *mat.SymDense {
	n := m.Dim()
	q := mat.NewSymDense(n, nil)
	t := dt.Seconds()
	t2 := t * t
	t3 := t2 * t
	t4 := t3 * t
	for i := 0; i < m.Dims; i++ {
		pp := i
		vv := m.Dims + i
		q.SetSym(pp, pp, m.Q*t4/4)
		q.SetSym(pp, vv, m.Q*t3/2)
		q.SetSym(vv, vv, m.Q*t2)
	}
	return q
}
