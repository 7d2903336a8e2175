// Package metrics tracks per-stage pipeline timings and track churn for the
// gmphdtrack pipeline.
//
// Adapted from the teacher's metrics/metrics.go.
package metrics

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

type Metrics struct {
	StartTime        time.Time
	HypothesiseTimes DurationStats
	UpdateTimes      DurationStats
	ReduceTimes      DurationStats
	MaintainTimes    DurationStats
	WriterTimes      DurationStats
	AnalyzeTimes     DurationStats

	ActiveTracks int
	EndedTracks  uint64

	PriorStepTime   time.Time
	PriorEndedTrack uint64
	InstChurnRate   float64
	sync.RWMutex
}

func NewMetrics() *Metrics {
	return &Metrics{
		time.Now(),
		DurationStats{},
		DurationStats{},
		DurationStats{},
		DurationStats{},
		DurationStats{},
		DurationStats{},
		0,
		0,
		time.Now(),
		0,
		0,
		sync.RWMutex{},
	}
}

func (m *Metrics) PushHypothesise(d time.Duration) {
	m.Lock()
	defer m.Unlock()
	m.HypothesiseTimes.push(d)
}

func (m *Metrics) PushUpdate(d time.Duration) {
	m.Lock()
	defer m.Unlock()
	m.UpdateTimes.push(d)
}

func (m *Metrics) PushReduce(d time.Duration) {
	m.Lock()
	defer m.Unlock()
	m.ReduceTimes.push(d)
}

// PushMaintain also records the step's resulting track census, since track
// lifecycle is decided during maintenance.
func (m *Metrics) PushMaintain(d time.Duration, active int, ended int) {
	m.Lock()
	defer m.Unlock()
	now := time.Now()
	m.MaintainTimes.push(d)
	m.ActiveTracks = active
	m.EndedTracks += uint64(ended)
	m.InstChurnRate = (float64(m.EndedTracks) - float64(m.PriorEndedTrack)) /
		float64(now.Sub(m.PriorStepTime).Seconds())
	m.PriorEndedTrack = m.EndedTracks
	m.PriorStepTime = now
}

func (m *Metrics) PushWriter(d time.Duration) {
	m.Lock()
	defer m.Unlock()
	m.WriterTimes.push(d)
}

// PushAnalyze records the elapsed time of one batch of ended-track summary
// analysis.
func (m *Metrics) PushAnalyze(d time.Duration) {
	m.Lock()
	defer m.Unlock()
	m.AnalyzeTimes.push(d)
}

func (m *Metrics) ChurnRate() float64 {
	return float64(m.EndedTracks) / float64(time.Since(m.StartTime).Seconds())
}

func (m *Metrics) String() (s string) {
	sb := &strings.Builder{}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	w := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)

	m.RLock()
	mc := *m
	m.RUnlock()

	fmt.Fprintf(w, "Active tracks %d\n\n", mc.ActiveTracks)

	fmt.Fprintf(w, "Churn rate (tracks ended/sec):\n")
	fmt.Fprintf(w, "------------------------------\n\n")
	fmt.Fprintf(w, "Instantaneous\t%.2f\n", mc.InstChurnRate)
	fmt.Fprintf(w, "Mean\t%.2f\n", mc.ChurnRate())
	fmt.Fprintf(w, "\n")

	ht := mc.HypothesiseTimes
	ut := mc.UpdateTimes
	rt := mc.ReduceTimes
	mt := mc.MaintainTimes
	wt := mc.WriterTimes
	at := mc.AnalyzeTimes
	fmt.Fprintf(w, "Pipeline Stage Times (in us):\n")
	fmt.Fprintf(w, "-----------------------------\n\n")
	fmt.Fprintf(w, "Stage\tCalls\tMin\tMean\tMax\tStddev\n")
	fmt.Fprintf(w, "Hypothesise\t%d\t%d\t%d\t%d\t%d\n",
		ht.N, us(ht.Min), us(ht.Mean()), us(ht.Max), us(ht.Stddev()))
	fmt.Fprintf(w, "Update\t%d\t%d\t%d\t%d\t%d\n",
		ut.N, us(ut.Min), us(ut.Mean()), us(ut.Max), us(ut.Stddev()))
	fmt.Fprintf(w, "Reduce\t%d\t%d\t%d\t%d\t%d\n",
		rt.N, us(rt.Min), us(rt.Mean()), us(rt.Max), us(rt.Stddev()))
	fmt.Fprintf(w, "Maintain\t%d\t%d\t%d\t%d\t%d\n",
		mt.N, us(mt.Min), us(mt.Mean()), us(mt.Max), us(mt.Stddev()))
	fmt.Fprintf(w, "Writer\t%d\t%d\t%d\t%d\t%d\n",
		wt.N, us(wt.Min), us(wt.Mean()), us(wt.Max), us(wt.Stddev()))
	fmt.Fprintf(w, "Analyze\t%d\t%d\t%d\t%d\t%d\n",
		at.N, us(at.Min), us(at.Mean()), us(at.Max), us(at.Stddev()))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Memory Stats:\n")
	fmt.Fprintf(w, "-------------\n\n")
	fmt.Fprintf(w, "Heap alloc bytes\t%d\n", ms.HeapAlloc)
	fmt.Fprintf(w, "Heap total alloc bytes\t%d\n", ms.TotalAlloc)
	fmt.Fprintf(w, "Sys (OS virt size)\t%d\n", ms.Sys)
	fmt.Fprintf(w, "Mallocs\t%d\n", ms.Mallocs)
	fmt.Fprintf(w, "Frees\t%d\n", ms.Frees)
	fmt.Fprintf(w, "Live objects\t%d\n", ms.Mallocs-ms.Frees)
	w.Flush()

	s = sb.String()
	return
}

func us(d time.Duration) int64 {
	return int64(d) / 1e3
}

// DurationStats keeps basic time.Duration statistics. Welford's method is used
// to keep a running mean and standard deviation.
type DurationStats struct {
	Total time.Duration
	N     uint
	Min   time.Duration
	Max   time.Duration
	m     float64
	s     float64
	mean  float64
}

func (s *DurationStats) push(d time.Duration) {
	if s.N == 0 {
		s.Min = d
		s.Max = d
		s.Total = d
	} else {
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
		s.Total += d
	}
	s.N++
	om := s.mean
	fd := float64(d)
	s.mean += (fd - om) / float64(s.N)
	s.s += (fd - om) * (fd - s.mean)
}

func (s *DurationStats) IsZero() bool {
	return s.N == 0
}

func (s *DurationStats) Mean() time.Duration {
	return time.Duration(s.mean)
}

func (s *DurationStats) Variance() float64 {
	if s.N > 1 {
		return s.s / float64(s.N-1)
	}
	return 0.0
}

func (s *DurationStats) Stddev() time.Duration {
	return time.Duration(math.Sqrt(s.Variance()))
}
