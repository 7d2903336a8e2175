package gmphd

import (
	"testing"
	"time"
)

func TestDistanceHypothesiserGating(t *testing.T) {
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)

	c := &Component{
		Mean:       vec(0.3),
		Covariance: symDiag(1.0),
		Weight:     0.4,
		Timestamp:  t0,
	}

	near := &Detection{StateVector: vec(1.0), Timestamp: t1, MeasurementModel: identityModel{1}}
	far := &Detection{StateVector: vec(6.2), Timestamp: t1, MeasurementModel: identityModel{1}}

	h := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	h.MissedDistance = 20

	g, err := h.Hypothesise(c, []*Detection{near, far}, t1)
	if err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}

	if len(g.Hypotheses) != 3 {
		t.Fatalf("expected 3 hypotheses (missed + 2 detections), got %d", len(g.Hypotheses))
	}

	// Descending distance order means the missed hypothesis (distance 20)
	// sorts to the head.
	if !g.Hypotheses[0].IsMissed() {
		t.Fatalf("expected missed hypothesis first, got %+v", g.Hypotheses[0])
	}
	if g.Hypotheses[0].Distance != 20 {
		t.Fatalf("expected missed distance 20, got %v", g.Hypotheses[0].Distance)
	}

	for _, hyp := range g.Hypotheses {
		if hyp.Distance < 0 {
			t.Fatalf("distance must be non-negative, got %v", hyp.Distance)
		}
	}
}

func TestDistanceHypothesiserGatesOutFarDetections(t *testing.T) {
	t0 := time.Unix(0, 0)

	c := &Component{Mean: vec(0), Covariance: symDiag(1.0), Weight: 1, Timestamp: t0}
	far := &Detection{StateVector: vec(100), Timestamp: t0, MeasurementModel: identityModel{1}}

	h := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	h.MissedDistance = 5

	g, err := h.Hypothesise(c, []*Detection{far}, t0)
	if err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}
	if len(g.Hypotheses) != 1 {
		t.Fatalf("expected far detection to be gated out, leaving only the missed hypothesis, got %d hypotheses", len(g.Hypotheses))
	}
	if !g.Hypotheses[0].IsMissed() {
		t.Fatalf("expected the surviving hypothesis to be missed")
	}
}

func TestDistanceHypothesiserIncludeAll(t *testing.T) {
	t0 := time.Unix(0, 0)

	c := &Component{Mean: vec(0), Covariance: symDiag(1.0), Weight: 1, Timestamp: t0}
	far := &Detection{StateVector: vec(100), Timestamp: t0, MeasurementModel: identityModel{1}}

	h := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	h.MissedDistance = 5
	h.IncludeAll = true

	g, err := h.Hypothesise(c, []*Detection{far}, t0)
	if err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}
	if len(g.Hypotheses) != 2 {
		t.Fatalf("IncludeAll should bypass gating, expected 2 hypotheses, got %d", len(g.Hypotheses))
	}
}
