package measures

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestMVNPdfStandardNormalAtMean(t *testing.T) {
	mean := mat.NewVecDense(1, []float64{0})
	cov := mat.NewSymDense(1, []float64{1})
	x := mat.NewVecDense(1, []float64{0})

	p, err := MVNPdf(x, mean, cov)
	if err != nil {
		t.Fatalf("MVNPdf: %v", err)
	}
	want := 1 / math.Sqrt(2*math.Pi)
	if math.Abs(p-want) > 1e-9 {
		t.Fatalf("p = %v, want %v", p, want)
	}
}

func TestMVNPdfMatchesClosedForm1D(t *testing.T) {
	mean := mat.NewVecDense(1, []float64{2})
	cov := mat.NewSymDense(1, []float64{0.5})
	x := mat.NewVecDense(1, []float64{3})

	p, err := MVNPdf(x, mean, cov)
	if err != nil {
		t.Fatalf("MVNPdf: %v", err)
	}
	d := 3.0 - 2.0
	want := math.Exp(-0.5*d*d/0.5) / math.Sqrt(2*math.Pi*0.5)
	if math.Abs(p-want) > 1e-9 {
		t.Fatalf("p = %v, want %v", p, want)
	}
}

func TestLogMVNPdfMatchesLogOfMVNPdf(t *testing.T) {
	mean := mat.NewVecDense(2, []float64{0, 0})
	cov := mat.NewSymDense(2, []float64{2, 0.3, 0.3, 1})
	x := mat.NewVecDense(2, []float64{0.5, -0.2})

	logP, err := LogMVNPdf(x, mean, cov)
	if err != nil {
		t.Fatalf("LogMVNPdf: %v", err)
	}
	p, err := MVNPdf(x, mean, cov)
	if err != nil {
		t.Fatalf("MVNPdf: %v", err)
	}
	if math.Abs(logP-math.Log(p)) > 1e-9 {
		t.Fatalf("LogMVNPdf = %v, want log(MVNPdf) = %v", logP, math.Log(p))
	}
}

func TestLogMVNPdfStaysFiniteUnderUnderflow(t *testing.T) {
	// A mean far from x with tight covariance drives the density toward
	// zero; LogMVNPdf must stay a finite (very negative) number rather than
	// producing -Inf from a zero determinant or similar degeneracy.
	mean := mat.NewVecDense(1, []float64{0})
	cov := mat.NewSymDense(1, []float64{1e-4})
	x := mat.NewVecDense(1, []float64{100})

	logP, err := LogMVNPdf(x, mean, cov)
	if err != nil {
		t.Fatalf("LogMVNPdf: %v", err)
	}
	if math.IsInf(logP, 0) || math.IsNaN(logP) {
		t.Fatalf("expected a finite log-density, got %v", logP)
	}
	if logP >= 0 {
		t.Fatalf("expected a strongly negative log-density for this far-tailed case, got %v", logP)
	}
}
