// Package analyzer computes summary statistics for tracks once they end,
// the way the teacher's analyzer package summarises a flow once it closes.
package analyzer

import (
	"log"
	"math"
	"sort"
	"time"

	"github.com/heistp/gmphdtrack/gmphd"
	"github.com/heistp/gmphdtrack/metrics"
	"gonum.org/v1/gonum/stat"
)

// CorrUndefined marks a correlation that came back NaN or Inf (e.g. a
// constant series). CorrInsufficientSamples marks a track too short to
// correlate at all.
const (
	CorrUndefined           = -2
	CorrInsufficientSamples = -3
)

// sevenNumPcts are the seven-number summary percentiles.
var sevenNumPcts = [7]float64{0.02, 0.09, 0.25, 0.5, 0.75, 0.91, 0.98}

// Config configures an Analyzer.
type Config struct {
	// CumulantKind selects the quantile interpolation method. Default
	// stat.Empirical.
	CumulantKind stat.CumulantKind
	// Log enables a one-line per-batch summary.
	Log bool
}

// TrackStats holds the statistics computed for one ended track.
type TrackStats struct {
	ID                   gmphd.Tag
	StartTime            time.Time
	EndTime              time.Time
	Duration             time.Duration
	Samples              int
	MeanWeight           float64
	WeightSevenNumSum    [7]float64
	CorrPositionVelocity float64
}

// Analyzer computes TrackStats for a batch of ended tracks.
type Analyzer struct {
	Config
	metrics *metrics.Metrics
}

// NewAnalyzer returns an Analyzer pushing timings into m.
func NewAnalyzer(cfg Config, m *metrics.Metrics) *Analyzer {
	if cfg.CumulantKind == 0 {
		cfg.CumulantKind = stat.Empirical
	}
	return &Analyzer{cfg, m}
}

// Analyze summarises every track in tracks, which the caller has already
// identified as having just ended.
func (a *Analyzer) Analyze(tracks []*gmphd.Track) []*TrackStats {
	if len(tracks) == 0 {
		return nil
	}

	t0 := time.Now()

	s := make([]*TrackStats, len(tracks))
	for i, tr := range tracks {
		s[i] = a.analyze(tr)
	}

	el := time.Since(t0)
	a.metrics.PushAnalyze(el)
	if a.Log {
		log.Printf("analyzer time=%s tracks=%d", el, len(tracks))
	}

	return s
}

func (a *Analyzer) analyze(tr *gmphd.Track) *TrackStats {
	s := &TrackStats{ID: tr.ID, Samples: len(tr.States)}
	if len(tr.States) == 0 {
		return s
	}

	s.StartTime = tr.States[0].Timestamp
	s.EndTime = tr.States[len(tr.States)-1].Timestamp
	s.Duration = s.EndTime.Sub(s.StartTime)

	weights := make([]float64, len(tr.States))
	for i, c := range tr.States {
		weights[i] = c.Weight
	}
	s.MeanWeight = stat.Mean(weights, nil)
	s.WeightSevenNumSum = a.sevenNumSum(weights)
	s.CorrPositionVelocity = a.correlatePositionVelocity(tr)

	return s
}

// correlatePositionVelocity correlates the first position dimension against
// its paired velocity dimension across the track's states, assuming the
// [position..., velocity...] layout kalman.ConstantVelocityModel produces.
// Tracks under any other state layout, or too short to correlate, report
// CorrInsufficientSamples.
func (a *Analyzer) correlatePositionVelocity(tr *gmphd.Track) float64 {
	if len(tr.States) < 2 {
		return CorrInsufficientSamples
	}
	dims := tr.States[0].Dim()
	if dims < 2 || dims%2 != 0 {
		return CorrInsufficientSamples
	}
	half := dims / 2

	pos := make([]float64, len(tr.States))
	vel := make([]float64, len(tr.States))
	for i, c := range tr.States {
		pos[i] = c.Mean.AtVec(0)
		vel[i] = c.Mean.AtVec(half)
	}

	r := stat.Correlation(pos, vel, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return CorrUndefined
	}
	return r
}

func (a *Analyzer) sevenNumSum(d []float64) (s [7]float64) {
	sorted := append([]float64{}, d...)
	sort.Float64s(sorted)
	for i, p := range sevenNumPcts {
		s[i] = stat.Quantile(p, a.CumulantKind, sorted, nil)
	}
	return
}
