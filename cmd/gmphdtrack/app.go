package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/heistp/gmphdtrack/analyzer"
	"github.com/heistp/gmphdtrack/gmphd"
	"github.com/heistp/gmphdtrack/metrics"
	"github.com/heistp/gmphdtrack/writer"
)

// Config is the top level configuration for the gmphdtrack driver.
type Config struct {
	Tracker  gmphd.Config    // tracker config
	Analyzer analyzer.Config // ended-track analyzer config
	Writer   writer.Config   // writer config

	Serial      bool          // if true, execute pipe in one goroutine
	HTTPAddr    string        // listen address of metrics server
	Interval    time.Duration // wall-clock pacing between steps (0: unpaced)
	MaxErrors   int           // maximum consecutive source errors
	ErrorDelay  time.Duration // initial exponential backoff time between errors
	StopTimeout time.Duration // time to wait on stop request
}

// stepInput is one detection set pulled from the detection source, paired
// with its timestamp.
type stepInput struct {
	time       time.Time
	detections []*gmphd.Detection
}

type App struct {
	*Config
	source    gmphd.DetectionSource
	tracker   *gmphd.Tracker
	analyzer  *analyzer.Analyzer
	writer    *writer.Writer
	metrics   *metrics.Metrics
	errs      int
	stop      chan bool
	done      chan bool
	ic        chan stepInput
	rc        chan gmphd.StepResult
	errc      chan error
	priorTags map[gmphd.Tag]bool
}

func NewApp(cfg *Config, source gmphd.DetectionSource, tracker *gmphd.Tracker, m *metrics.Metrics) (a *App, err error) {
	var w *writer.Writer
	if w, err = writer.Open(cfg.Writer, m); err != nil {
		return
	}

	a = &App{
		cfg,
		source,
		tracker,
		analyzer.NewAnalyzer(cfg.Analyzer, m),
		w,
		m,
		0,
		make(chan bool),
		make(chan bool),
		make(chan stepInput, 64),
		make(chan gmphd.StepResult, 64),
		make(chan error, 1),
		make(map[gmphd.Tag]bool),
	}

	return
}

func (a *App) Run() (err error) {
	defer close(a.done)
	defer func() {
		if e := a.writer.Close(); e != nil {
			log.Printf("error closing writer (%s)", e)
		}
	}()

	if a.HTTPAddr != "" {
		go a.httpServer()
	}

	if !a.Serial {
		go a.step()
		go a.write()
	}

	stopped := false
Outer:
	for !stopped {
		if a.errs >= a.MaxErrors {
			err = fmt.Errorf("aborted after %d consecutive errors", a.errs)
			break
		} else if a.errs > 0 {
			if stopped, err = a.waitOnError(); stopped || err != nil {
				break
			}
		}

		var tck *time.Ticker
		var tickc <-chan time.Time
		if a.Interval > 0 {
			tck = time.NewTicker(a.Interval)
			tickc = tck.C
		}

		for !stopped {
			if tickc != nil {
				if stopped, err = a.wait(tickc); stopped || err != nil {
					if tck != nil {
						tck.Stop()
					}
					break
				}
			} else {
				select {
				case <-a.stop:
					stopped = true
					if tck != nil {
						tck.Stop()
					}
					break
				default:
				}
			}

			ts, dets, ok, e := a.source.Next()
			if e != nil {
				a.errs++
				log.Printf("error[%d] pulling detections (%s)", a.errs, e)
				break
			}
			a.errs = 0

			if !ok {
				log.Printf("stopping, detection source exhausted")
				break Outer
			}

			in := stepInput{ts, dets}
			if a.Serial {
				if err = a.processSerial(in); err != nil {
					break Outer
				}
			} else {
				a.ic <- in
			}
		}
	}

	if !a.Serial {
		log.Println("shutting down pipeline")
		close(a.ic)
		if e := <-a.errc; e != nil {
			log.Printf("pipeline error during close (%s)", e)
			if err == nil {
				err = e
			}
		}
	}

	return
}

func (a *App) processSerial(in stepInput) (err error) {
	r, err := a.tracker.Step(in.time, in.detections)
	if err != nil {
		return err
	}
	a.pushStepMetrics(r)

	if err = a.writer.Write(r); err != nil {
		return err
	}

	return
}

func (a *App) step() {
	defer close(a.rc)
	for in := range a.ic {
		r, err := a.tracker.Step(in.time, in.detections)
		if err != nil {
			a.errc <- err
			return
		}
		a.pushStepMetrics(r)
		a.rc <- r
	}
}

func (a *App) write() {
	defer close(a.errc)
	for r := range a.rc {
		if err := a.writer.Write(r); err != nil {
			a.errc <- err
			break
		}
	}
}

// pushStepMetrics records this step's stage timings and track churn, and
// hands any track that just ended to the analyzer for a lifetime summary.
// Churn is the count of tags that were active before this step and are not
// active after it, so a track that ended once is never recounted.
func (a *App) pushStepMetrics(r gmphd.StepResult) {
	a.metrics.PushHypothesise(r.Metrics.Hypothesise)
	a.metrics.PushUpdate(r.Metrics.Update)
	a.metrics.PushReduce(r.Metrics.Reduce)

	nowActive := make(map[gmphd.Tag]bool, len(r.Tracks))
	for _, tr := range r.Tracks {
		nowActive[tr.ID] = true
	}

	var endedTags []gmphd.Tag
	for tag := range a.priorTags {
		if !nowActive[tag] {
			endedTags = append(endedTags, tag)
		}
	}
	a.priorTags = nowActive

	a.metrics.PushMaintain(r.Metrics.Maintain, len(r.Tracks), len(endedTags))
	a.analyzeEndedTracks(endedTags)
}

// analyzeEndedTracks looks up the full state history for each just-ended
// tag and summarises it.
func (a *App) analyzeEndedTracks(tags []gmphd.Tag) {
	if len(tags) == 0 {
		return
	}

	byTag := make(map[gmphd.Tag]*gmphd.Track, len(tags))
	for _, tag := range tags {
		byTag[tag] = nil
	}
	for _, tr := range a.tracker.Tracks() {
		if _, ok := byTag[tr.ID]; ok {
			byTag[tr.ID] = tr
		}
	}

	ended := make([]*gmphd.Track, 0, len(tags))
	for _, tr := range byTag {
		if tr != nil {
			ended = append(ended, tr)
		}
	}

	for _, s := range a.analyzer.Analyze(ended) {
		log.Printf("track %x ended: samples=%d duration=%s mean_weight=%.4g corr_pos_vel=%.3f",
			s.ID, s.Samples, s.Duration, s.MeanWeight, s.CorrPositionVelocity)
	}
}

func (a *App) DumpMetrics() string {
	return a.metrics.String()
}

func (a *App) Stop() (err error) {
	log.Printf("stopping (waiting up to %s for stop)", a.StopTimeout)
	close(a.stop)
	select {
	case <-a.done:
	case <-time.After(a.StopTimeout):
		err = fmt.Errorf("wait for stop timed out")
	}
	return
}

func (a *App) waitOnError() (stopped bool, err error) {
	d := a.ErrorDelay << uint(a.errs-1)
	log.Printf("waiting %s", d)
	stopped, err = a.wait(time.After(d))
	return
}

func (a *App) wait(ch <-chan time.Time) (stopped bool, err error) {
	select {
	case <-a.stop:
		stopped = true
	case err = <-a.errc:
		log.Printf("pipeline error (%s)", err)
		stopped = true
	case <-ch:
		stopped = false
	}
	return
}

func (a *App) httpServer() {
	http.Handle("/", newRootHandler(a))
	log.Printf("starting http server on %s", a.HTTPAddr)
	if err := http.ListenAndServe(a.HTTPAddr, nil); err != nil {
		log.Printf("http server exiting due to error (%s)", err)
	}
}
