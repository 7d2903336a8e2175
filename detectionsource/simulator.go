// Package detectionsource provides implementations of gmphd.DetectionSource,
// the pull-style lazy sequence of (timestamp, detection-set) pairs the
// tracker consumes.
package detectionsource

import (
	"math/rand"
	"time"

	"github.com/heistp/gmphdtrack/gmphd"
	"github.com/heistp/gmphdtrack/kalman"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Range is an inclusive [Min, Max] bound on one measurement-space dimension.
type Range struct {
	Min, Max float64
}

// Config configures a Simulator.
type Config struct {
	Transition  kalman.TransitionModel
	Measurement *kalman.MeasurementModel

	// InitialState is a template for newly-born targets: its mean and
	// covariance seed each birth (the covariance is sampled from, not
	// copied verbatim, so births are spread around the template).
	InitialState *gmphd.Component

	TimeStep time.Duration
	Steps    int

	// BirthRate is the Poisson-distributed expected number of new targets
	// per step.
	BirthRate float64
	// DeathProbability is the per-target, per-step probability of death.
	DeathProbability float64
	// DetectionProbability thins real detections.
	DetectionProbability float64
	// ClutterRate is the Poisson-distributed expected clutter count per step.
	ClutterRate float64
	// MeasurementRange bounds both clutter generation and the validity gate
	// applied to real detections, one Range per measurement dimension.
	MeasurementRange []Range

	// Rand seeds the simulator's randomness; defaults to a fixed-seed
	// source for reproducibility when nil.
	Rand *rand.Rand
}

// groundTruthTarget is one simulated target's current state, independent of
// any gmphd.Component (the simulator does not know about tags or weights).
type groundTruthTarget struct {
	state *mat.VecDense
}

// Simulator is a synthetic multi-target detection source: Poisson births,
// per-step death probability, and linear motion produce ground truth;
// detections are then thinned by DetectionProbability and measurement
// noise, and mixed with uniform clutter.
//
// Grounded on stonesoup/simulator/simple.py
// MultiTargetGroundTruthSimulator + SimpleDetectionSimulator. Implements
// gmphd.DetectionSource.
type Simulator struct {
	Config

	time    time.Time
	step    int
	targets []*groundTruthTarget
	rng     *rand.Rand
}

// NewSimulator returns a Simulator that begins emitting at start.
func NewSimulator(cfg Config, start time.Time) *Simulator {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Simulator{Config: cfg, time: start, rng: rng}
}

// Next implements gmphd.DetectionSource.
func (s *Simulator) Next() (timestamp time.Time, detections []*gmphd.Detection, ok bool, err error) {
	if s.step >= s.Steps {
		return time.Time{}, nil, false, nil
	}

	if s.step > 0 {
		s.time = s.time.Add(s.TimeStep)
	}
	timestamp = s.time

	s.killTargets()
	s.advanceTargets()
	s.birthTargets()

	detections = s.detectTargets(timestamp)
	detections = append(detections, s.generateClutter(timestamp)...)

	s.step++
	ok = true
	return
}

func (s *Simulator) killTargets() {
	survivors := s.targets[:0]
	for _, tg := range s.targets {
		if s.rng.Float64() >= s.DeathProbability {
			survivors = append(survivors, tg)
		}
	}
	s.targets = survivors
}

func (s *Simulator) advanceTargets() {
	if len(s.targets) == 0 {
		return
	}
	f := s.Transition.StateTransition(s.TimeStep)
	for _, tg := range s.targets {
		moved := mat.NewVecDense(tg.state.Len(), nil)
		moved.MulVec(f, tg.state)
		tg.state = moved
	}
}

func (s *Simulator) birthTargets() {
	births := int(distuv.Poisson{Lambda: s.BirthRate, Src: s.rng}.Rand())
	for i := 0; i < births; i++ {
		state := sampleMVN(s.InitialState.Mean, s.InitialState.Covariance, s.rng)
		s.targets = append(s.targets, &groundTruthTarget{state: state})
	}
}

func (s *Simulator) detectTargets(timestamp time.Time) []*gmphd.Detection {
	var out []*gmphd.Detection
	rows, _ := s.Measurement.H.Dims()

	for _, tg := range s.targets {
		mean := mat.NewVecDense(rows, nil)
		mean.MulVec(s.Measurement.H, tg.state)

		if !s.inRange(mean) {
			continue
		}
		if s.rng.Float64() >= s.DetectionProbability {
			continue
		}

		noisy := sampleMVN(mean, s.Measurement.R, s.rng)
		out = append(out, &gmphd.Detection{
			StateVector:      noisy,
			Timestamp:        timestamp,
			MeasurementModel: s.Measurement,
		})
	}

	return out
}

func (s *Simulator) generateClutter(timestamp time.Time) []*gmphd.Detection {
	n := int(distuv.Poisson{Lambda: s.ClutterRate, Src: s.rng}.Rand())
	out := make([]*gmphd.Detection, 0, n)
	for i := 0; i < n; i++ {
		v := mat.NewVecDense(len(s.MeasurementRange), nil)
		for d, r := range s.MeasurementRange {
			v.SetVec(d, r.Min+s.rng.Float64()*(r.Max-r.Min))
		}
		out = append(out, &gmphd.Detection{
			StateVector:      v,
			Timestamp:        timestamp,
			MeasurementModel: s.Measurement,
		})
	}
	return out
}

func (s *Simulator) inRange(v *mat.VecDense) bool {
	if len(s.MeasurementRange) == 0 {
		return true
	}
	for d, r := range s.MeasurementRange {
		if v.AtVec(d) < r.Min || v.AtVec(d) > r.Max {
			return false
		}
	}
	return true
}

// sampleMVN draws one sample from N(mean, cov) using gonum's multivariate
// normal distribution.
func sampleMVN(mean *mat.VecDense, cov *mat.SymDense, rng *rand.Rand) *mat.VecDense {
	n := mean.Len()

	normal, ok := distmv.NewNormal(mean.RawVector().Data, cov, rng)
	if !ok {
		// Covariance wasn't positive definite (e.g. a degenerate
		// template); fall back to the mean, unperturbed.
		return mat.VecDenseCopyOf(mean)
	}

	return mat.NewVecDense(n, normal.Rand(nil))
}
