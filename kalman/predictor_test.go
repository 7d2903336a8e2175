package kalman

import (
	"math"
	"testing"
	"time"

	"github.com/heistp/gmphdtrack/gmphd"
	"gonum.org/v1/gonum/mat"
)

func TestPredictorConstantVelocity(t *testing.T) {
	t0 := time.Unix(0, 0)
	c := &gmphd.Component{
		Mean:       mat.NewVecDense(2, []float64{0, 1}),
		Covariance: mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		Weight:     0.5,
		Tag:        gmphd.NewTag(),
		Timestamp:  t0,
	}

	p := &Predictor{Model: &ConstantVelocityModel{Dims: 1, Q: 0}}

	out, err := p.Predict(c, t0.Add(2*time.Second))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if math.Abs(out.Mean.AtVec(0)-2) > 1e-12 {
		t.Fatalf("predicted position = %v, want 2", out.Mean.AtVec(0))
	}
	if math.Abs(out.Mean.AtVec(1)-1) > 1e-12 {
		t.Fatalf("predicted velocity = %v, want 1", out.Mean.AtVec(1))
	}

	wantCov := [][]float64{{5, 2}, {2, 1}}
	for i := range wantCov {
		for j := range wantCov[i] {
			if math.Abs(out.Covariance.At(i, j)-wantCov[i][j]) > 1e-9 {
				t.Fatalf("cov[%d][%d] = %v, want %v", i, j, out.Covariance.At(i, j), wantCov[i][j])
			}
		}
	}

	if out.Weight != c.Weight {
		t.Fatalf("Predict must carry the weight through unchanged, got %v want %v", out.Weight, c.Weight)
	}
	if out.Tag != c.Tag {
		t.Fatalf("Predict must carry the tag through unchanged")
	}
	if !out.Timestamp.Equal(t0.Add(2 * time.Second)) {
		t.Fatalf("Predict must stamp the new timestamp")
	}
}

func TestPredictorDimensionMismatch(t *testing.T) {
	t0 := time.Unix(0, 0)
	c := &gmphd.Component{
		Mean:       mat.NewVecDense(3, []float64{0, 0, 0}),
		Covariance: mat.NewSymDense(3, nil),
		Timestamp:  t0,
	}

	p := &Predictor{Model: &ConstantVelocityModel{Dims: 1, Q: 0}}

	if _, err := p.Predict(c, t0); err == nil {
		t.Fatalf("expected a dimension mismatch error")
	}
}
