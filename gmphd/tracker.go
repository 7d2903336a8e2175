package gmphd

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Track is an ordered sequence of tagged components sharing one identity,
// plus whether that identity currently has a matching mixture component. A
// track's ID equals the tag of the components that compose it. A track is
// mutated only by the Tracker's maintenance phase.
type Track struct {
	ID     Tag
	States []*Component
	Active bool
}

// Config is the GM-PHD tracker's configuration surface.
type Config struct {
	// MissedDistance gates and weighs the missed-detection hypothesis.
	// Default +Inf.
	MissedDistance float64
	// IncludeAll bypasses distance gating. Default false.
	IncludeAll bool
	// ProbSurvival is the PHD survival thinning probability. Default 1.
	ProbSurvival float64
	// ProbOfDetection is the detection probability used by the updater.
	// Default 0.9.
	ProbOfDetection float64
	// ClutterSpatialDensity is the PHD normaliser's clutter term. Default 1e-10.
	ClutterSpatialDensity float64
	// PruneThreshold removes components below this weight. Default 1e-5.
	PruneThreshold float64
	// MergeThreshold gates merging by squared Mahalanobis distance. Default 16.
	MergeThreshold float64
	// MaxComponents caps the mixture size after reduction when > 0.
	MaxComponents int
	// ExtractionThreshold is the minimum weight to spawn a track. Default 0.
	ExtractionThreshold float64
	// Log enables a one-line per-step summary via Logger.
	Log bool
	// Logger receives step summaries and soft-condition warnings. Defaults
	// to the standard logger when nil.
	Logger *log.Logger
}

// StepMetrics records timings for one tracker step, matching the shape of
// the gmphdtrack metrics package's per-stage stats.
type StepMetrics struct {
	Hypothesise time.Duration
	Update      time.Duration
	Reduce      time.Duration
	Maintain    time.Duration
}

// StepResult is what the tracker yields once per time step.
type StepResult struct {
	Time                time.Time
	Tracks              []*Track
	ExpectedTargetCount float64
	Metrics             StepMetrics
}

// Tracker orchestrates prediction (via the hypothesiser's underlying
// predictor), birth injection, hypothesis generation, update, mixture
// reduction, and track lifecycle maintenance, one time step at a time.
//
// Grounded on stonesoup/tracker/gmphd.py GMPHDTargetTracker.tracks_gen and
// stonesoup/tracker/gaussianmixture.py GaussianMixtureMultiTargetTracker.
type Tracker struct {
	Config

	hypothesiser *GaussianMixtureHypothesiser
	updater      *GMPHDUpdater
	reducer      *Reducer

	birthComponent *Component
	mixture        *Mixture

	// byTag is the storage for the track table; Tracks/ActiveTracks are its
	// accessors. Kept as a distinct name and type from any tracker property
	// to avoid the reference implementation's "tracks" naming collision.
	byTag map[Tag]*Track
}

// NewTracker constructs a Tracker. birthComponent is a template with
// Tag == BirthTag whose Weight is the expected number of births per step
// (Poisson-distributed); it is cloned and stamped with the current
// timestamp at the start of every step.
func NewTracker(cfg Config, predictor Predictor, updater SingleTargetUpdater, measure Measure, density LogDensity, birthComponent *Component) (*Tracker, error) {
	if !birthComponent.Tag.IsBirth() {
		return nil, fmt.Errorf("gmphd: birth component must carry the birth sentinel tag")
	}

	if cfg.MissedDistance == 0 {
		cfg.MissedDistance = math.Inf(1)
	}
	if cfg.ProbSurvival == 0 {
		cfg.ProbSurvival = 1
	}
	if cfg.ProbOfDetection == 0 {
		cfg.ProbOfDetection = 0.9
	}
	if cfg.ClutterSpatialDensity == 0 {
		cfg.ClutterSpatialDensity = 1e-10
	}
	if cfg.PruneThreshold == 0 {
		cfg.PruneThreshold = 1e-5
	}
	if cfg.MergeThreshold == 0 {
		cfg.MergeThreshold = 16
	}

	dh := NewDistanceHypothesiser(predictor, updater, measure)
	dh.MissedDistance = cfg.MissedDistance
	dh.IncludeAll = cfg.IncludeAll

	return &Tracker{
		Config: cfg,
		hypothesiser: &GaussianMixtureHypothesiser{
			Hypothesiser:     dh,
			OrderByDetection: true,
			ProbSurvival:     cfg.ProbSurvival,
		},
		updater: &GMPHDUpdater{
			Updater:               updater,
			LogDensity:            density,
			ProbOfDetection:       cfg.ProbOfDetection,
			ClutterSpatialDensity: cfg.ClutterSpatialDensity,
			Logger:                cfg.Logger,
		},
		reducer: &Reducer{
			PruneThreshold:     cfg.PruneThreshold,
			MergeThreshold:     cfg.MergeThreshold,
			MaxComponents:      cfg.MaxComponents,
			SquaredMahalanobis: squaredMahalanobisAdapter(measure),
		},
		birthComponent: birthComponent,
		mixture:        NewMixture(),
		byTag:          make(map[Tag]*Track),
	}, nil
}

// squaredMahalanobisAdapter lets the reducer share the same numerically
// stable Cholesky path as the Measure used for gating, without requiring
// the reducer to know about detections. NewTracker always wires the
// reducer through this adapter, squaring the Measure it was given.
func squaredMahalanobisAdapter(measure Measure) func(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error) {
	return func(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error) {
		d, err := measure(mean, cov, x)
		if err != nil {
			return 0, err
		}
		return d * d, nil
	}
}

func (t *Tracker) logger() *log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.Default()
}

// Step advances the tracker by one time step: birth injection, hypothesise,
// update, reduce, and track maintenance, yielding the active tracks and
// expected target count.
func (t *Tracker) Step(timestamp time.Time, detections []*Detection) (StepResult, error) {
	birth := t.birthComponent.Clone()
	birth.Timestamp = timestamp
	t.mixture.Append(birth)

	// An out-of-order detection is a soft condition: warn, and leave the
	// backward step to the predictor.
	for _, d := range detections {
		for _, c := range t.mixture.Components {
			if d.Timestamp.Before(c.Timestamp) {
				t.logger().Printf("gmphd: detection at %s precedes component %x at %s", d.Timestamp, c.Tag, c.Timestamp)
				break
			}
		}
	}

	t0 := time.Now()
	groups, err := t.hypothesiser.Hypothesise(t.mixture.Components, detections, timestamp)
	if err != nil {
		return StepResult{}, fmt.Errorf("gmphd: hypothesise: %w", err)
	}
	hypothesiseElapsed := time.Since(t0)

	t1 := time.Now()
	updated, err := t.updater.Update(groups)
	if err != nil {
		return StepResult{}, fmt.Errorf("gmphd: update: %w", err)
	}
	updateElapsed := time.Since(t1)

	t2 := time.Now()
	reduced, err := t.reducer.Reduce(updated)
	if err != nil {
		return StepResult{}, fmt.Errorf("gmphd: reduce: %w", err)
	}
	reduceElapsed := time.Since(t2)
	t.mixture.Replace(reduced)

	t3 := time.Now()
	t.maintainTracks(reduced)
	maintainElapsed := time.Since(t3)

	result := StepResult{
		Time:                timestamp,
		Tracks:              t.ActiveTracks(),
		ExpectedTargetCount: t.mixture.SumWeights(),
		Metrics: StepMetrics{
			Hypothesise: hypothesiseElapsed,
			Update:      updateElapsed,
			Reduce:      reduceElapsed,
			Maintain:    maintainElapsed,
		},
	}

	if t.Log {
		t.logger().Printf("gmphd tracker time=%s components=%d tracks=%d expected=%.3f",
			hypothesiseElapsed+updateElapsed+reduceElapsed+maintainElapsed,
			len(reduced), len(result.Tracks), result.ExpectedTargetCount)
	}

	return result, nil
}

// maintainTracks extends existing tracks, spawns new ones for components
// whose weight clears ExtractionThreshold, and ends tracks whose tag no
// longer appears among the reduced mixture's components. Termination is
// computed from a snapshot of current tags taken once per pass; the tag set
// is never mutated mid-iteration.
func (t *Tracker) maintainTracks(components []*Component) {
	currentTags := make(map[Tag]bool, len(components))

	for _, c := range components {
		if c.Tag.IsBirth() {
			continue
		}
		currentTags[c.Tag] = true

		if tr, ok := t.byTag[c.Tag]; ok {
			tr.States = append(tr.States, c)
			tr.Active = true
		} else if c.Weight > t.ExtractionThreshold {
			t.byTag[c.Tag] = &Track{ID: c.Tag, States: []*Component{c}, Active: true}
		}
	}

	for tag, tr := range t.byTag {
		if !currentTags[tag] {
			tr.Active = false
		}
	}
}

// ActiveTracks returns the currently active tracks, ordered by tag for
// deterministic output.
func (t *Tracker) ActiveTracks() []*Track {
	var out []*Track
	for _, tr := range t.byTag {
		if tr.Active {
			out = append(out, tr)
		}
	}
	sortTracksByTag(out)
	return out
}

// Tracks returns every track known to the tracker, active and ended alike,
// ordered by tag for deterministic output.
func (t *Tracker) Tracks() []*Track {
	out := make([]*Track, 0, len(t.byTag))
	for _, tr := range t.byTag {
		out = append(out, tr)
	}
	sortTracksByTag(out)
	return out
}

// Mixture exposes the current intensity mixture for inspection (read-only
// by convention; callers should not mutate the returned components).
func (t *Tracker) Mixture() *Mixture {
	return t.mixture
}

func sortTracksByTag(tracks []*Track) {
	sort.Slice(tracks, func(i, j int) bool {
		for k := 0; k < len(tracks[i].ID); k++ {
			if tracks[i].ID[k] != tracks[j].ID[k] {
				return tracks[i].ID[k] < tracks[j].ID[k]
			}
		}
		return false
	})
}
