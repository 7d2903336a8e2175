package gmphd

import (
	"fmt"
	"math"
	"time"
)

// DistanceHypothesiser generates per-component hypotheses against a set of
// detections, scored by a configurable distance measure, gated by
// MissedDistance.
//
// Grounded on stonesoup/hypothesiser/distance.py DistanceHypothesiser.
type DistanceHypothesiser struct {
	Predictor Predictor
	Updater   SingleTargetUpdater
	Measure   Measure

	// MissedDistance is both the gate threshold and the distance recorded
	// for the missed-detection hypothesis. Default +Inf.
	MissedDistance float64

	// IncludeAll bypasses the MissedDistance gate when true.
	IncludeAll bool
}

// NewDistanceHypothesiser returns a DistanceHypothesiser with spec defaults
// (MissedDistance = +Inf, IncludeAll = false) applied to any zero fields.
func NewDistanceHypothesiser(predictor Predictor, updater SingleTargetUpdater, measure Measure) *DistanceHypothesiser {
	return &DistanceHypothesiser{
		Predictor:      predictor,
		Updater:        updater,
		Measure:        measure,
		MissedDistance: math.Inf(1),
	}
}

// Hypothesise evaluates and returns all component-detection association
// hypotheses for one component against N detections, returning N+1 (or
// fewer, if gated) hypotheses: the missed hypothesis plus one per admitted
// detection, sorted by descending distance.
func (h *DistanceHypothesiser) Hypothesise(component *Component, detections []*Detection, timestamp time.Time) (*HypothesisGroup, error) {
	prediction, err := h.Predictor.Predict(component, timestamp)
	if err != nil {
		return nil, fmt.Errorf("gmphd: predict component %x to %s: %w", component.Tag, timestamp, err)
	}

	mp, err := h.Updater.PredictMeasurement(prediction, nil)
	if err != nil {
		return nil, fmt.Errorf("gmphd: predict measurement for missed hypothesis: %w", err)
	}

	hyps := make([]SingleHypothesis, 0, len(detections)+1)
	hyps = append(hyps, SingleHypothesis{
		Prediction:            prediction,
		Measurement:           MissedDetection{Timestamp: timestamp},
		MeasurementPrediction: mp,
		Distance:              h.MissedDistance,
	})

	for _, d := range detections {
		// Detections may arrive out-of-order relative to timestamp; each is
		// predicted to its own timestamp rather than the group timestamp.
		dp, err := h.Predictor.Predict(component, d.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("gmphd: predict component %x to detection time %s: %w", component.Tag, d.Timestamp, err)
		}

		dmp, err := h.Updater.PredictMeasurement(dp, d.MeasurementModel)
		if err != nil {
			return nil, fmt.Errorf("gmphd: predict measurement for detection at %s: %w", d.Timestamp, err)
		}

		dist, err := h.Measure(dmp.Mean, dmp.Covariance, d.StateVector)
		if err != nil {
			return nil, fmt.Errorf("gmphd: measure distance: %w", err)
		}

		if h.IncludeAll || dist < h.MissedDistance {
			hyps = append(hyps, SingleHypothesis{
				Prediction:            dp,
				Measurement:           d,
				MeasurementPrediction: dmp,
				Distance:              dist,
			})
		}
	}

	g := &HypothesisGroup{Hypotheses: hyps}
	g.sortDescending()
	return g, nil
}
