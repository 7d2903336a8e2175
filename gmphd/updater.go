package gmphd

import (
	"fmt"
	"log"
	"math"
)

// GMPHDUpdater consumes a by-detection hypothesis layout and produces the
// posterior mixture: per-hypothesis Kalman corrections, per-detection PHD
// normalisation (numerator over all components, denominator including
// clutter intensity), and missed-detection mass merged back in.
//
// Grounded on stonesoup/updater/gaussianmixture.py GaussianMixtureUpdater.
type GMPHDUpdater struct {
	Updater SingleTargetUpdater

	// LogDensity evaluates the log measurement likelihood log q =
	// log N(measurement; measurement_prediction). measures.LogMVNPdf is the
	// canonical choice, and is called directly rather than round-tripped
	// through a linear-space density, so that a hypothesis whose true
	// density underflows to zero still contributes its relative magnitude
	// to the log-sum-exp combination below.
	LogDensity LogDensity

	// ProbOfDetection is the probability an existing target is detected at
	// each timestep. Default 0.9.
	ProbOfDetection float64

	// ClutterSpatialDensity is the expected clutter count per unit
	// measurement-space volume, the denominator additive term in the PHD
	// normaliser. Default 1e-10.
	ClutterSpatialDensity float64

	// Logger receives soft-condition warnings (numerical underflow in
	// weight_sum). Defaults to the standard logger when nil.
	Logger *log.Logger
}

func (u *GMPHDUpdater) logger() *log.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return log.Default()
}

// Update applies the GM-PHD recursion to a by-detection hypothesis layout
// (see GaussianMixtureHypothesiser with OrderByDetection = true) and returns
// the posterior mixture. The input MUST be by-detection: the last group is
// treated as the trailing missed-detection collection.
func (u *GMPHDUpdater) Update(groups []*HypothesisGroup) ([]*Component, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	detectionGroups := groups[:len(groups)-1]
	missedGroup := groups[len(groups)-1]

	updated := make([]*Component, 0, len(groups))

	for _, g := range detectionGroups {
		emitted, weightSum, err := u.updateDetectionGroup(g)
		if err != nil {
			return nil, err
		}
		for _, c := range emitted {
			c.Weight /= weightSum
			updated = append(updated, c)
		}
	}

	for _, h := range missedGroup.Hypotheses {
		if h.Prediction.Tag.IsBirth() {
			// The birth component template itself is never carried forward
			// under the missed branch; it is either promoted by a real
			// detection above, or dropped here.
			continue
		}
		updated = append(updated, &Component{
			Mean:       h.Prediction.Mean,
			Covariance: h.Prediction.Covariance,
			Weight:     h.Prediction.Weight * (1 - u.ProbOfDetection),
			Tag:        h.Prediction.Tag,
			Timestamp:  h.Prediction.Timestamp,
		})
	}

	return updated, nil
}

// updateDetectionGroup performs the per-hypothesis Kalman update and
// computes the numerator weights plus the PHD normalisation sum for one
// detection's group of hypotheses, evaluating the measurement likelihood in
// log space and combining via log-sum-exp to avoid underflow when weights
// are tiny.
func (u *GMPHDUpdater) updateDetectionGroup(g *HypothesisGroup) ([]*Component, float64, error) {
	logWeights := make([]float64, len(g.Hypotheses))
	emitted := make([]*Component, len(g.Hypotheses))

	for i, h := range g.Hypotheses {
		det, ok := h.Measurement.(*Detection)
		if !ok {
			return nil, 0, fmt.Errorf("gmphd: detection group contains a non-detection hypothesis")
		}

		logQ, err := u.LogDensity(det.StateVector, h.MeasurementPrediction.Mean, h.MeasurementPrediction.Covariance)
		if err != nil {
			return nil, 0, fmt.Errorf("gmphd: measurement log-density: %w", err)
		}
		if math.IsNaN(logQ) {
			return nil, 0, fmt.Errorf("gmphd: non-finite measurement log-density %v", logQ)
		}

		logWeights[i] = math.Log(u.ProbOfDetection) + math.Log(h.Prediction.Weight) + logQ

		posterior, err := u.Updater.Update(h)
		if err != nil {
			return nil, 0, fmt.Errorf("gmphd: kalman update for tag %x: %w", h.Prediction.Tag, err)
		}

		tag := h.Prediction.Tag
		if tag.IsBirth() {
			tag = NewTag()
		}

		emitted[i] = &Component{
			Mean:       posterior.Mean,
			Covariance: posterior.Covariance,
			Weight:     math.Exp(logWeights[i]),
			Tag:        tag,
			Timestamp:  posterior.Timestamp,
		}
	}

	logClutter := math.Log(u.ClutterSpatialDensity)
	logWeightSum := logSumExp(append(append([]float64{}, logWeights...), logClutter))
	weightSum := math.Exp(logWeightSum)

	if weightSum <= 0 || math.IsNaN(weightSum) || math.IsInf(weightSum, 0) {
		u.logger().Printf("gmphd: weight_sum underflowed to %v, falling back to clutter_spatial_density", weightSum)
		weightSum = u.ClutterSpatialDensity
	}

	for _, c := range emitted {
		if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight < 0 {
			return nil, 0, fmt.Errorf("gmphd: non-finite weight %v for tag %x", c.Weight, c.Tag)
		}
	}

	return emitted, weightSum, nil
}

// logSumExp returns log(sum(exp(xs))), computed in a numerically stable way.
func logSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}
