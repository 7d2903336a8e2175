package kalman

import (
	"math"
	"testing"
	"time"
)

func TestConstantVelocityModelStateTransition(t *testing.T) {
	m := &ConstantVelocityModel{Dims: 1, Q: 1}
	f := m.StateTransition(2 * time.Second)

	want := [][]float64{{1, 2}, {0, 1}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(f.At(i, j)-want[i][j]) > 1e-12 {
				t.Fatalf("F[%d][%d] = %v, want %v", i, j, f.At(i, j), want[i][j])
			}
		}
	}
}

func TestConstantVelocityModelProcessNoise(t *testing.T) {
	m := &ConstantVelocityModel{Dims: 1, Q: 1}
	q := m.ProcessNoise(1 * time.Second)

	if math.Abs(q.At(0, 0)-0.25) > 1e-12 {
		t.Fatalf("Q[0][0] = %v, want 0.25", q.At(0, 0))
	}
	if math.Abs(q.At(0, 1)-0.5) > 1e-12 {
		t.Fatalf("Q[0][1] = %v, want 0.5", q.At(0, 1))
	}
	if math.Abs(q.At(1, 1)-1) > 1e-12 {
		t.Fatalf("Q[1][1] = %v, want 1", q.At(1, 1))
	}
}

func TestConstantVelocityModelDim(t *testing.T) {
	m := &ConstantVelocityModel{Dims: 3, Q: 1}
	if m.Dim() != 6 {
		t.Fatalf("Dim() = %d, want 6", m.Dim())
	}
}
