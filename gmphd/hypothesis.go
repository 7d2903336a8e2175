package gmphd

import "sort"

// SingleHypothesis bundles a component prediction, the measurement it was
// paired against (a real Detection or the MissedDetection sentinel), the
// predicted measurement distribution, and the resulting distance.
type SingleHypothesis struct {
	Prediction            *Component
	Measurement           Measurement
	MeasurementPrediction *MeasurementPrediction
	Distance              float64
}

// IsMissed reports whether h is the missed-detection hypothesis for its
// component.
func (h SingleHypothesis) IsMissed() bool {
	_, ok := h.Measurement.(MissedDetection)
	return ok
}

// HypothesisGroup is an ordered sequence of single hypotheses sharing either
// a component index (by-component layout) or a detection index/the trailing
// missed-detection collection (by-detection layout).
type HypothesisGroup struct {
	Hypotheses []SingleHypothesis
}

// sortDescending orders the group's hypotheses by descending distance
// (worst first). With the default missed_distance of +Inf this places the
// missed hypothesis at the head of the group, an invariant downstream code
// relies on when walking hypotheses in reverse.
func (g *HypothesisGroup) sortDescending() {
	sort.SliceStable(g.Hypotheses, func(i, j int) bool {
		return g.Hypotheses[i].Distance > g.Hypotheses[j].Distance
	})
}
