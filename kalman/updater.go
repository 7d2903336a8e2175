package kalman

import (
	"fmt"

	"github.com/heistp/gmphdtrack/gmphd"
	"gonum.org/v1/gonum/mat"
)

// MeasurementModel is a linear measurement model H, R implementing
// gmphd.MeasurementModel.
type MeasurementModel struct {
	H *mat.Dense    // measurement matrix, rows = measurement dim, cols = state dim
	R *mat.SymDense // measurement noise covariance
}

// Dim implements gmphd.MeasurementModel.
func (m *MeasurementModel) Dim() int {
	rows, _ := m.H.Dims()
	return rows
}

// Updater implements gmphd.SingleTargetUpdater with the standard linear
// Kalman measurement prediction and gain correction. DefaultModel is used
// whenever a hypothesis carries no per-detection model (the missed-
// detection branch's measurement prediction).
type Updater struct {
	DefaultModel *MeasurementModel
}

func (u *Updater) resolveModel(model gmphd.MeasurementModel) (*MeasurementModel, error) {
	if model == nil {
		if u.DefaultModel == nil {
			return nil, fmt.Errorf("kalman: no measurement model supplied and no default configured")
		}
		return u.DefaultModel, nil
	}
	mm, ok := model.(*MeasurementModel)
	if !ok {
		return nil, fmt.Errorf("kalman: measurement model %T is not a *kalman.MeasurementModel", model)
	}
	return mm, nil
}

// PredictMeasurement implements gmphd.SingleTargetUpdater.
func (u *Updater) PredictMeasurement(prediction *gmphd.Component, model gmphd.MeasurementModel) (*gmphd.MeasurementPrediction, error) {
	mm, err := u.resolveModel(model)
	if err != nil {
		return nil, err
	}

	rows, cols := mm.H.Dims()
	if cols != prediction.Dim() {
		return nil, fmt.Errorf("kalman: measurement matrix has %d columns, component has dimension %d", cols, prediction.Dim())
	}

	mean := mat.NewVecDense(rows, nil)
	mean.MulVec(mm.H, prediction.Mean)

	var hp mat.Dense
	hp.Mul(mm.H, prediction.Covariance)
	var hpht mat.Dense
	hpht.Mul(&hp, mm.H.T())

	cov := mat.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < rows; j++ {
			cov.SetSym(i, j, hpht.At(i, j)+mm.R.At(i, j))
		}
	}

	return &gmphd.MeasurementPrediction{Mean: mean, Covariance: cov}, nil
}

// Update implements gmphd.SingleTargetUpdater: the standard Kalman gain
// correction, K = P H^T S^-1, mean' = mean + K(z - Hz mean), P' = (I-KH)P.
func (u *Updater) Update(h gmphd.SingleHypothesis) (*gmphd.Posterior, error) {
	det, ok := h.Measurement.(*gmphd.Detection)
	if !ok {
		return nil, fmt.Errorf("kalman: cannot apply a Kalman update against a missed detection")
	}

	mm, err := u.resolveModel(det.MeasurementModel)
	if err != nil {
		return nil, err
	}

	n := h.Prediction.Dim()

	var pht mat.Dense
	pht.Mul(h.Prediction.Covariance, mm.H.T())

	var sInv mat.Dense
	if err := sInv.Inverse(h.MeasurementPrediction.Covariance); err != nil {
		return nil, fmt.Errorf("kalman: innovation covariance not invertible: %w", err)
	}

	var gain mat.Dense
	gain.Mul(&pht, &sInv)

	innovation := mat.NewVecDense(det.StateVector.Len(), nil)
	innovation.SubVec(det.StateVector, h.MeasurementPrediction.Mean)

	var correction mat.VecDense
	correction.MulVec(&gain, innovation)

	mean := mat.NewVecDense(n, nil)
	mean.AddVec(h.Prediction.Mean, &correction)

	var gainH mat.Dense
	gainH.Mul(&gain, mm.H)

	ident := identity(n)
	var ikh mat.Dense
	ikh.Sub(ident, &gainH)

	var pPrime mat.Dense
	pPrime.Mul(&ikh, h.Prediction.Covariance)

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// average the two off-diagonal entries to guard against
			// asymmetry introduced by floating-point round-off in the
			// (I-KH)P product.
			cov.SetSym(i, j, (pPrime.At(i, j)+pPrime.At(j, i))/2)
		}
	}

	return &gmphd.Posterior{Mean: mean, Covariance: cov, Timestamp: det.Timestamp}, nil
}

func identity(n int) *mat.Dense {
	id := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		id.Set(i, i, 1)
	}
	return id
}
