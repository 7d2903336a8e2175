package gmphd

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// MeasurementModel is an opaque, per-detection linear(ised) measurement
// model (e.g. an H matrix and measurement noise covariance R). The core
// never inspects it beyond passing it through to the SingleTargetUpdater;
// Dim lets callers sanity-check measurement dimensionality.
type MeasurementModel interface {
	Dim() int
}

// MeasurementPrediction is the predicted distribution of a measurement,
// given a component prediction, in measurement space.
type MeasurementPrediction struct {
	Mean       *mat.VecDense
	Covariance *mat.SymDense
}

// Posterior is the result of a single-target Kalman update: the corrected
// mean, covariance, and timestamp of the update.
type Posterior struct {
	Mean       *mat.VecDense
	Covariance *mat.SymDense
	Timestamp  time.Time
}

// Predictor predicts a component's state forward to timestamp. Implementers
// may extrapolate backward if timestamp precedes the component's own
// timestamp; the core surfaces that condition as a warning but still
// invokes the predictor (Tracker.Step logs it through Config.Logger).
type Predictor interface {
	Predict(component *Component, timestamp time.Time) (*Component, error)
}

// SingleTargetUpdater performs the measurement-prediction and Kalman-update
// halves of the single-target filter that the GM-PHD recursion is built on.
type SingleTargetUpdater interface {
	// PredictMeasurement maps a component prediction into measurement space.
	// model is nil for the missed-detection branch, where no detection (and
	// therefore no per-detection model) is available; implementations
	// should fall back to a default model in that case.
	PredictMeasurement(prediction *Component, model MeasurementModel) (*MeasurementPrediction, error)
	// Update applies the single-target Kalman correction for one hypothesis.
	// h.Measurement is guaranteed to be a *Detection (never a
	// MissedDetection) when this is called.
	Update(h SingleHypothesis) (*Posterior, error)
}

// Measure computes a non-negative real distance (or likelihood) between a
// measurement prediction and the state vector of a real detection.
// Mahalanobis distance (measures.Mahalanobis) is the canonical choice.
type Measure func(measurementPredictionMean *mat.VecDense, measurementPredictionCovariance *mat.SymDense, detectionStateVector *mat.VecDense) (float64, error)

// LogDensity evaluates the log-probability-density of a measurement under a
// Gaussian measurement prediction; used by the GM-PHD updater to weigh each
// hypothesis. Hypothesis weights are combined via log-sum-exp before a
// single final exponentiation, so this stays in log space rather than
// returning a linear-space density that could underflow to exactly zero
// before the combination happens. measures.LogMVNPdf is the canonical
// choice.
type LogDensity func(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error)

// DetectionSource is a pull-style, lazy, finite, non-restartable sequence of
// (timestamp, detection-set) pairs, consumed in order. Next returns
// ok == false once the sequence is exhausted.
type DetectionSource interface {
	Next() (timestamp time.Time, detections []*Detection, ok bool, err error)
}
