// Package gmphd implements the core Gaussian-Mixture Probability Hypothesis
// Density (GM-PHD) multi-target tracker: the hypothesiser that pairs mixture
// components with measurements, the GM-PHD updater that applies per-hypothesis
// Kalman corrections and PHD normalisation, the mixture reducer that prunes
// and merges components, and the tracker loop that maintains tracks across
// time steps.
//
// Low-level linear algebra, single-target Kalman prediction/update, and
// distance measures are external collaborators: this package specifies their
// interfaces (see collaborators.go) and consumes implementations supplied by
// the kalman and measures packages.
package gmphd

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Tag is a stable identity shared by a mixture component and its associated
// track. The zero Tag is the reserved sentinel identifying the birth
// component template; it must never be assigned to a posterior component.
type Tag [16]byte

// BirthTag is the reserved sentinel identifying the birth component template.
var BirthTag Tag

// IsBirth reports whether t is the reserved birth sentinel.
func (t Tag) IsBirth() bool {
	return t == BirthTag
}

// NewTag mints a fresh, random, non-birth tag using a cryptographically
// random 128-bit identifier (a UUIDv4 satisfies this).
func NewTag() (t Tag) {
	id := uuid.New()
	copy(t[:], id[:])
	return
}

// Component is a single weighted Gaussian in the mixture intensity: mean,
// covariance, scalar weight, stable tag and timestamp.
type Component struct {
	Mean       *mat.VecDense
	Covariance *mat.SymDense
	Weight     float64
	Tag        Tag
	Timestamp  time.Time
}

// Dim returns the dimension of the component's state vector.
func (c *Component) Dim() int {
	return c.Mean.Len()
}

// Clone returns a deep copy of c. Hypotheses, updater outputs and track
// states each carry their own snapshot; nothing aliases another
// component's mean or covariance.
func (c *Component) Clone() *Component {
	mean := mat.VecDenseCopyOf(c.Mean)
	n := c.Covariance.SymmetricDim()
	cov := mat.NewSymDense(n, nil)
	cov.CopySym(c.Covariance)
	return &Component{
		Mean:       mean,
		Covariance: cov,
		Weight:     c.Weight,
		Tag:        c.Tag,
		Timestamp:  c.Timestamp,
	}
}

// Mixture is an ordered, appendable sequence of components.
type Mixture struct {
	Components []*Component
}

// NewMixture returns a Mixture seeded with the given components.
func NewMixture(components ...*Component) *Mixture {
	return &Mixture{Components: components}
}

// Len returns the number of components in the mixture.
func (m *Mixture) Len() int {
	return len(m.Components)
}

// Append adds c to the end of the mixture.
func (m *Mixture) Append(c *Component) {
	m.Components = append(m.Components, c)
}

// Replace wholesale-replaces the mixture's components, matching the
// ownership model where the tracker re-assigns the mixture at each stage
// rather than mutating components shared with hypotheses or track state.
func (m *Mixture) Replace(components []*Component) {
	m.Components = components
}

// SumWeights returns the sum of all component weights, the PHD-sense
// expected number of targets.
func (m *Mixture) SumWeights() float64 {
	var s float64
	for _, c := range m.Components {
		s += c.Weight
	}
	return s
}
