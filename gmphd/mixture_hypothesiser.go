package gmphd

import "time"

// GaussianMixtureHypothesiser applies an underlying DistanceHypothesiser to
// every component of a mixture, and optionally transposes the resulting 2-D
// hypothesis matrix from by-component to by-detection layout.
//
// Grounded on stonesoup/hypothesiser/distance.py GaussianMixtureHypothesier
// and the ordering asserted by
// stonesoup/hypothesiser/tests/test_gaussianmixture.py.
type GaussianMixtureHypothesiser struct {
	Hypothesiser *DistanceHypothesiser

	// OrderByDetection selects the by-detection layout when true (one group
	// per detection plus a trailing missed group); by-component otherwise.
	OrderByDetection bool

	// ProbSurvival is the per-component PHD survival probability, applied
	// by multiplying each component's weight before hypothesis generation.
	// Default 1 (no thinning).
	ProbSurvival float64
}

// Hypothesise forms hypotheses for associations between detections and the
// mixture's components, in either by-component or by-detection layout.
//
// Invariant: total hypothesis count equals len(components)*(len(detections)+1)
// minus any hypotheses gated out by MissedDistance.
func (h *GaussianMixtureHypothesiser) Hypothesise(components []*Component, detections []*Detection, timestamp time.Time) ([]*HypothesisGroup, error) {
	survival := h.ProbSurvival
	if survival == 0 {
		survival = 1
	}

	byComponent := make([]*HypothesisGroup, 0, len(components))
	for _, c := range components {
		// PHD survival thinning: a read-then-overwrite of the component's
		// weight field, applied before hypothesis generation.
		c.Weight *= survival

		g, err := h.Hypothesiser.Hypothesise(c, detections, timestamp)
		if err != nil {
			return nil, err
		}
		if len(g.Hypotheses) > 0 {
			byComponent = append(byComponent, g)
		}
	}

	if !h.OrderByDetection {
		return byComponent, nil
	}
	return transposeByDetection(byComponent, detections), nil
}

// transposeByDetection reshuffles the by-component hypothesis groups into
// by-detection layout in a single pass: one group per detection (built via
// an index map so no linear rescan is needed), followed by a trailing group
// collecting every missed hypothesis across all components.
func transposeByDetection(byComponent []*HypothesisGroup, detections []*Detection) []*HypothesisGroup {
	indexOf := make(map[*Detection]int, len(detections))
	for i, d := range detections {
		indexOf[d] = i
	}

	byDetection := make([]*HypothesisGroup, len(detections))
	for i := range byDetection {
		byDetection[i] = &HypothesisGroup{}
	}
	missed := &HypothesisGroup{}

	for _, g := range byComponent {
		for _, hyp := range g.Hypotheses {
			if hyp.IsMissed() {
				missed.Hypotheses = append(missed.Hypotheses, hyp)
				continue
			}
			d := hyp.Measurement.(*Detection)
			if i, ok := indexOf[d]; ok {
				byDetection[i].Hypotheses = append(byDetection[i].Hypotheses, hyp)
			}
		}
	}

	result := make([]*HypothesisGroup, 0, len(detections)+1)
	result = append(result, byDetection...)
	result = append(result, missed)
	return result
}
