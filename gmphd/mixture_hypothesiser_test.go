package gmphd

import (
	"testing"
	"time"
)

// TestGaussianMixtureHypothesiserByDetection is Scenario A from the
// package's design notes: two components, two detections, by-detection
// layout.
func TestGaussianMixtureHypothesiserByDetection(t *testing.T) {
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)

	c0 := &Component{Mean: vec(0.3), Covariance: symDiag(1.0), Weight: 0.4, Tag: NewTag(), Timestamp: t0}
	c1 := &Component{Mean: vec(5.0), Covariance: symDiag(0.5), Weight: 0.3, Tag: NewTag(), Timestamp: t0}

	d0 := &Detection{StateVector: vec(1.0), Timestamp: t1, MeasurementModel: identityModel{1}}
	d1 := &Detection{StateVector: vec(6.2), Timestamp: t1, MeasurementModel: identityModel{1}}

	dh := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	dh.MissedDistance = 20

	gh := &GaussianMixtureHypothesiser{Hypothesiser: dh, OrderByDetection: true}

	groups, err := gh.Hypothesise([]*Component{c0, c1}, []*Detection{d0, d1}, t1)
	if err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}

	if len(groups) != 3 {
		t.Fatalf("expected 3 groups (one per detection, plus a trailing missed group), got %d", len(groups))
	}

	if len(groups[0].Hypotheses) != 2 {
		t.Fatalf("detection 0 group should have 2 hypotheses (one per component), got %d", len(groups[0].Hypotheses))
	}
	if len(groups[1].Hypotheses) != 2 {
		t.Fatalf("detection 1 group should have 2 hypotheses (one per component), got %d", len(groups[1].Hypotheses))
	}
	if len(groups[2].Hypotheses) != 2 {
		t.Fatalf("trailing group should hold 2 missed hypotheses (one per component), got %d", len(groups[2].Hypotheses))
	}

	for _, hyp := range groups[0].Hypotheses {
		if hyp.Distance < 0 {
			t.Fatalf("distance must be non-negative")
		}
	}

	// The matching component for detection 0 ([1.0], near c0 at [0.3]) is
	// much closer than the far component (c1 at [5.0]), but both stay
	// under the missed_distance gate of 20.
	var near, far float64
	for _, hyp := range groups[0].Hypotheses {
		if hyp.Prediction.Tag == c0.Tag {
			near = hyp.Distance
		} else {
			far = hyp.Distance
		}
	}
	if near >= 10 {
		t.Fatalf("expected matching component's distance < 10, got %v", near)
	}
	if far <= 0 || far >= 20 {
		t.Fatalf("expected far component's distance in (0, 20), got %v", far)
	}
}

// TestGaussianMixtureHypothesiserByComponent is Scenario B: same setup, but
// the by-component layout, with each group's hypotheses sorted descending
// by distance (missed at head).
func TestGaussianMixtureHypothesiserByComponent(t *testing.T) {
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)

	c0 := &Component{Mean: vec(0.3), Covariance: symDiag(1.0), Weight: 0.4, Timestamp: t0}
	c1 := &Component{Mean: vec(5.0), Covariance: symDiag(0.5), Weight: 0.3, Timestamp: t0}

	d0 := &Detection{StateVector: vec(1.0), Timestamp: t1, MeasurementModel: identityModel{1}}
	d1 := &Detection{StateVector: vec(6.2), Timestamp: t1, MeasurementModel: identityModel{1}}

	dh := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	dh.MissedDistance = 20

	gh := &GaussianMixtureHypothesiser{Hypothesiser: dh, OrderByDetection: false}

	groups, err := gh.Hypothesise([]*Component{c0, c1}, []*Detection{d0, d1}, t1)
	if err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups (one per component), got %d", len(groups))
	}

	for gi, g := range groups {
		if len(g.Hypotheses) != 3 {
			t.Fatalf("group %d: expected 3 hypotheses (missed + 2 detections), got %d", gi, len(g.Hypotheses))
		}
		if !g.Hypotheses[0].IsMissed() {
			t.Fatalf("group %d: expected missed hypothesis at head (descending distance), got %+v", gi, g.Hypotheses[0])
		}
		for i := 1; i < len(g.Hypotheses); i++ {
			if g.Hypotheses[i-1].Distance < g.Hypotheses[i].Distance {
				t.Fatalf("group %d: hypotheses not sorted descending by distance", gi)
			}
		}
	}
}

// TestGaussianMixtureHypothesiserSurvivalThinning checks that ProbSurvival
// scales each component's weight before hypothesis generation.
func TestGaussianMixtureHypothesiserSurvivalThinning(t *testing.T) {
	t0 := time.Unix(0, 0)
	c := &Component{Mean: vec(0), Covariance: symDiag(1.0), Weight: 1.0, Timestamp: t0}

	dh := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	gh := &GaussianMixtureHypothesiser{Hypothesiser: dh, ProbSurvival: 0.5}

	if _, err := gh.Hypothesise([]*Component{c}, nil, t0); err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}

	if c.Weight != 0.5 {
		t.Fatalf("expected survival thinning to halve the component's weight, got %v", c.Weight)
	}
}
