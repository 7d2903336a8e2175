package gmphd

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

// normalDensity1D is a test-local, dependency-free stand-in for
// measures.MVNPdf, restricted to the 1-D case used by these tests. It is
// used only to recompute an expected weight in linear space; the updater
// itself is wired to logNormalDensity1D.
func normalDensity1D(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error) {
	v := cov.At(0, 0)
	d := x.AtVec(0) - mean.AtVec(0)
	return math.Exp(-0.5*d*d/v) / math.Sqrt(2*math.Pi*v), nil
}

// logNormalDensity1D is a test-local, dependency-free stand-in for
// measures.LogMVNPdf, restricted to the 1-D case used by these tests.
func logNormalDensity1D(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error) {
	v := cov.At(0, 0)
	d := x.AtVec(0) - mean.AtVec(0)
	return -0.5*d*d/v - 0.5*math.Log(2*math.Pi*v), nil
}

// TestGMPHDUpdaterPureClutter is Scenario C: an empty mixture plus a birth
// template produces one posterior component whose weight follows the PHD
// normalisation formula, and is below extraction threshold.
func TestGMPHDUpdaterPureClutter(t *testing.T) {
	t0 := time.Unix(0, 0)

	birth := &Component{Mean: vec(0), Covariance: symDiag(1.0), Weight: 0.0001, Tag: BirthTag, Timestamp: t0}
	det := &Detection{StateVector: vec(0.2), Timestamp: t0, MeasurementModel: identityModel{1}}

	dh := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	dh.IncludeAll = true
	gh := &GaussianMixtureHypothesiser{Hypothesiser: dh, OrderByDetection: true}

	groups, err := gh.Hypothesise([]*Component{birth}, []*Detection{det}, t0)
	if err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}

	// With clutter density far above the single hypothesis's numerator
	// (0.1 against roughly 3.5e-5), pure clutter (no real target)
	// normalises to a small posterior weight.
	clutterDensity := 0.1
	u := &GMPHDUpdater{
		Updater:               identityUpdater{},
		LogDensity:            logNormalDensity1D,
		ProbOfDetection:       0.9,
		ClutterSpatialDensity: clutterDensity,
	}

	updated, err := u.Update(groups)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected exactly one posterior component, got %d", len(updated))
	}

	c := updated[0]
	if c.Tag.IsBirth() {
		t.Fatalf("posterior component must carry a freshly minted tag, not the birth sentinel")
	}

	q, _ := normalDensity1D(det.StateVector, birth.Mean, birth.Covariance)
	numerator := 0.9 * birth.Weight * q
	expected := numerator / (clutterDensity + numerator)

	if math.Abs(c.Weight-expected) > 1e-9 {
		t.Fatalf("weight = %v, want %v", c.Weight, expected)
	}

	extractionThreshold := 0.5
	if c.Weight >= extractionThreshold {
		t.Fatalf("expected weight %v to stay below extraction threshold %v", c.Weight, extractionThreshold)
	}
}

// TestGMPHDUpdaterMissedBranchUsesPrediction is the spec's resolved design
// note: the missed branch re-emits the *prediction* mean/covariance, never
// a posterior.
func TestGMPHDUpdaterMissedBranchUsesPrediction(t *testing.T) {
	t0 := time.Unix(0, 0)
	tag := NewTag()
	c := &Component{Mean: vec(3), Covariance: symDiag(2.0), Weight: 0.8, Tag: tag, Timestamp: t0}

	dh := NewDistanceHypothesiser(noopPredictor{}, identityUpdater{}, mahalanobis)
	gh := &GaussianMixtureHypothesiser{Hypothesiser: dh, OrderByDetection: true}

	groups, err := gh.Hypothesise([]*Component{c}, nil, t0)
	if err != nil {
		t.Fatalf("Hypothesise: %v", err)
	}

	u := &GMPHDUpdater{
		Updater:               identityUpdater{},
		LogDensity:            logNormalDensity1D,
		ProbOfDetection:       0.9,
		ClutterSpatialDensity: 1e-10,
	}

	updated, err := u.Update(groups)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected one missed-branch component, got %d", len(updated))
	}

	got := updated[0]
	if got.Tag != tag {
		t.Fatalf("missed branch must keep the component's own tag, got %x want %x", got.Tag, tag)
	}
	if got.Mean.AtVec(0) != c.Mean.AtVec(0) {
		t.Fatalf("missed branch must re-emit the prediction mean, got %v want %v", got.Mean.AtVec(0), c.Mean.AtVec(0))
	}
	wantWeight := c.Weight * (1 - 0.9)
	if math.Abs(got.Weight-wantWeight) > 1e-12 {
		t.Fatalf("missed branch weight = %v, want %v", got.Weight, wantWeight)
	}
}
