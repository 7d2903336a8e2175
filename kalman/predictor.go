package kalman

import (
	"fmt"
	"time"

	"github.com/heistp/gmphdtrack/gmphd"
	"gonum.org/v1/gonum/mat"
)

// Predictor implements gmphd.Predictor with a linear state transition: a
// single TransitionModel shared across every component.
//
// Out-of-order timestamps (dt < 0) are not rejected: TransitionModel.StateTransition(dt)
// is still evaluated and applied, consistent with the core's contract that
// the predictor may extrapolate backward per its own rules (see spec
// §7 "Out-of-order timestamp").
type Predictor struct {
	Model TransitionModel
}

// Predict implements gmphd.Predictor.
func (p *Predictor) Predict(component *gmphd.Component, timestamp time.Time) (*gmphd.Component, error) {
	n := component.Dim()
	if n != p.Model.Dim() {
		return nil, fmt.Errorf("kalman: component dimension %d does not match model dimension %d", n, p.Model.Dim())
	}

	dt := timestamp.Sub(component.Timestamp)
	f := p.Model.StateTransition(dt)
	q := p.Model.ProcessNoise(dt)

	mean := mat.NewVecDense(n, nil)
	mean.MulVec(f, component.Mean)

	var fp mat.Dense
	fp.Mul(f, component.Covariance)
	var fpft mat.Dense
	fpft.Mul(&fp, f.T())

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, fpft.At(i, j)+q.At(i, j))
		}
	}

	return &gmphd.Component{
		Mean:       mean,
		Covariance: cov,
		Weight:     component.Weight,
		Tag:        component.Tag,
		Timestamp:  timestamp,
	}, nil
}
