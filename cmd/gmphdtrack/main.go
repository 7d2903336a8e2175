package main

import (
	"flag"
	"fmt"
	"log"
	"log/syslog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/heistp/gmphdtrack/analyzer"
	"github.com/heistp/gmphdtrack/detectionsource"
	"github.com/heistp/gmphdtrack/gmphd"
	"github.com/heistp/gmphdtrack/kalman"
	"github.com/heistp/gmphdtrack/measures"
	"github.com/heistp/gmphdtrack/metrics"
	"github.com/heistp/gmphdtrack/prof"
	"github.com/heistp/gmphdtrack/writer"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const VERSION = "0.1.0"

// Defaults.
const (
	DEFAULT_ANALYZER_CUMULANT_KIND            = "empirical"
	DEFAULT_KALMAN_DIMS                      = 2
	DEFAULT_KALMAN_PROCESS_NOISE             = 0.01
	DEFAULT_KALMAN_MEASUREMENT_NOISE         = 1.0
	DEFAULT_LOG_ALL                          = false
	DEFAULT_LOG_ANALYZER                     = false
	DEFAULT_LOG_SYSLOG                       = false
	DEFAULT_LOG_TRACKER                      = false
	DEFAULT_LOG_WRITER                       = false
	DEFAULT_RUN_ERROR_DELAY                  = 1 * time.Second
	DEFAULT_RUN_HTTP_SERVER                  = ""
	DEFAULT_RUN_INTERVAL                     = time.Duration(0)
	DEFAULT_RUN_MAX_ERRORS                   = 5
	DEFAULT_RUN_SERIAL                       = false
	DEFAULT_RUN_SHUTDOWN_TIMEOUT             = 15 * time.Second
	DEFAULT_SIM_BIRTH_RATE                   = 1.0
	DEFAULT_SIM_CLUTTER_RATE                 = 5.0
	DEFAULT_SIM_DEATH_PROBABILITY            = 0.01
	DEFAULT_SIM_DETECTION_PROBABILITY        = 0.9
	DEFAULT_SIM_RANGE                        = 100.0
	DEFAULT_SIM_STEPS                        = 100
	DEFAULT_SIM_TIME_STEP                    = 1 * time.Second
	DEFAULT_TRACKER_CLUTTER_SPATIAL_DENSITY  = 1e-10
	DEFAULT_TRACKER_EXTRACTION_THRESHOLD     = 0.5
	DEFAULT_TRACKER_INCLUDE_ALL              = false
	DEFAULT_TRACKER_MAX_COMPONENTS           = 100
	DEFAULT_TRACKER_MERGE_THRESHOLD          = 16.0
	DEFAULT_TRACKER_PROB_DETECTION           = 0.9
	DEFAULT_TRACKER_PROB_SURVIVAL            = 0.99
	DEFAULT_TRACKER_PRUNE_THRESHOLD          = 1e-5
	DEFAULT_WRITER_COMPRESSION_LEVEL         = 9
	DEFAULT_WRITER_DIR                       = ""
	DEFAULT_WRITER_FLUSH                     = false
	DEFAULT_WRITER_ROTATE_INTERVAL           = 15 * time.Minute
)

func main() {
	var err error

	if prof.ProfileEnabled {
		defer prof.StartProfile("./gmphdtrack.pprof").Stop()
	}

	var hostname string
	var defaultWriterFile string
	if hostname, err = os.Hostname(); err != nil {
		defaultWriterFile = "gmphdtrack.json.gz"
	} else {
		defaultWriterFile = "gmphdtrack-" + hostname + ".json.gz"
	}

	var ack = flag.String("analyzer-cumulant-kind", DEFAULT_ANALYZER_CUMULANT_KIND,
		"quantile interpolation method for track summaries (empirical or lininterp)")
	var kd = flag.Int("kalman-dims", DEFAULT_KALMAN_DIMS,
		"number of spatial dimensions tracked (state is 2x this for position+velocity)")
	var kpn = flag.Float64("kalman-process-noise", DEFAULT_KALMAN_PROCESS_NOISE,
		"piecewise-constant white noise acceleration variance")
	var kmn = flag.Float64("kalman-measurement-noise", DEFAULT_KALMAN_MEASUREMENT_NOISE,
		"measurement noise variance per dimension")
	var lal = flag.Bool("log-all", DEFAULT_LOG_ALL, "enable all logging")
	var lga = flag.Bool("log-analyzer", DEFAULT_LOG_ANALYZER, "enable analyzer logging")
	var lgy = flag.Bool("log-syslog", DEFAULT_LOG_SYSLOG, "send logging to syslog")
	var lgt = flag.Bool("log-tracker", DEFAULT_LOG_TRACKER, "enable tracker logging")
	var lgw = flag.Bool("log-writer", DEFAULT_LOG_WRITER, "enable writer logging")
	var red = flag.Duration("run-error-delay", DEFAULT_RUN_ERROR_DELAY,
		"initial exponential backoff wait time after a detection source error occurs")
	var rhs = flag.String("run-http-server", DEFAULT_RUN_HTTP_SERVER,
		"listen host/port of http server for metrics (e.g. :8080 or localhost:8080)")
	var riv = flag.Duration("run-interval", DEFAULT_RUN_INTERVAL,
		"wall-clock pacing between steps (0: run as fast as possible)")
	var rme = flag.Int("run-max-errors", DEFAULT_RUN_MAX_ERRORS,
		"maximum number of consecutive detection source errors before exit occurs")
	var rsr = flag.Bool("run-serial", DEFAULT_RUN_SERIAL,
		"execute pipeline in one, instead of multiple goroutines (threads)")
	var rst = flag.Duration("run-shutdown-timeout", DEFAULT_RUN_SHUTDOWN_TIMEOUT,
		"time to wait after signal for completion of shutdown")
	var sbr = flag.Float64("sim-birth-rate", DEFAULT_SIM_BIRTH_RATE,
		"expected number of new targets born per step (Poisson)")
	var scr = flag.Float64("sim-clutter-rate", DEFAULT_SIM_CLUTTER_RATE,
		"expected number of clutter detections per step (Poisson)")
	var sdp = flag.Float64("sim-death-probability", DEFAULT_SIM_DEATH_PROBABILITY,
		"per-target, per-step probability of death")
	var sde = flag.Float64("sim-detection-probability", DEFAULT_SIM_DETECTION_PROBABILITY,
		"probability a live target produces a detection")
	var srg = flag.Float64("sim-range", DEFAULT_SIM_RANGE,
		"measurement space half-range per dimension, centered at zero")
	var sst = flag.Int("sim-steps", DEFAULT_SIM_STEPS, "number of simulated time steps to run")
	var stp = flag.Duration("sim-time-step", DEFAULT_SIM_TIME_STEP, "simulated time between steps")
	var tcs = flag.Float64("tracker-clutter-spatial-density", DEFAULT_TRACKER_CLUTTER_SPATIAL_DENSITY,
		"assumed uniform clutter spatial density used by the PHD normalizer")
	var tet = flag.Float64("tracker-extraction-threshold", DEFAULT_TRACKER_EXTRACTION_THRESHOLD,
		"minimum component weight to spawn a track")
	var tia = flag.Bool("tracker-include-all", DEFAULT_TRACKER_INCLUDE_ALL,
		"bypass distance gating and hypothesise against every detection")
	var tmc = flag.Int("tracker-max-components", DEFAULT_TRACKER_MAX_COMPONENTS,
		"cap on mixture size after reduction (0: unbounded)")
	var tmt = flag.Float64("tracker-merge-threshold", DEFAULT_TRACKER_MERGE_THRESHOLD,
		"squared Mahalanobis distance gate for merging components")
	var tpd = flag.Float64("tracker-prob-detection", DEFAULT_TRACKER_PROB_DETECTION,
		"assumed probability of detection used by the updater")
	var tps = flag.Float64("tracker-prob-survival", DEFAULT_TRACKER_PROB_SURVIVAL,
		"assumed per-step survival probability used by the hypothesiser")
	var tpt = flag.Float64("tracker-prune-threshold", DEFAULT_TRACKER_PRUNE_THRESHOLD,
		"minimum component weight to survive pruning")
	var wcl = flag.Int("writer-compression-level", DEFAULT_WRITER_COMPRESSION_LEVEL,
		"gzip compression level to use (1 to 9 where 9 is best compression)")
	var wdr = flag.String("writer-dir", DEFAULT_WRITER_DIR,
		"write output to files in this directory (if unset, write to stdout)")
	var wfi = flag.String("writer-file", defaultWriterFile,
		"output filename (extension .gz means use compression, suggested extension .json or json.gz)")
	var wfl = flag.Bool("writer-flush", DEFAULT_WRITER_FLUSH,
		"flush after every step result is written (may degrade compression)")
	var wri = flag.Duration("writer-rotate-interval", DEFAULT_WRITER_ROTATE_INTERVAL,
		"approximate interval on which to rotate output files (units required, e.g. 30s, 15m, 1h)")
	var wrs = flag.Uint64("writer-rotate-size", 0,
		"approximate output file size in bytes to trigger rotation (0: no size-based rotation)")
	var ver = flag.Bool("version", false, "show version number")
	flag.Parse()

	if *ver {
		fmt.Printf("%s version %s\n", os.Args[0], VERSION)
		os.Exit(0)
	}

	if *lal {
		*lga = true
		*lgt = true
		*lgw = true
	}

	var ackind stat.CumulantKind
	if *ack == "empirical" {
		ackind = stat.Empirical
	} else if *ack == "lininterp" {
		ackind = stat.LinInterp
	} else {
		log.Fatalf("unrecognized cumulant kind: %s", *ack)
	}

	if *lgy {
		var sw *syslog.Writer
		if sw, err = syslog.New(syslog.LOG_NOTICE, "gmphdtrack"); err != nil {
			log.Fatalf("unable to open syslog (%s)", err)
		}
		log.Println("sending logging to syslog")
		log.SetOutput(sw)
	}

	if *wcl < 1 || *wcl > 9 {
		log.Fatalf("invalid compression level %d, must be 1-9", *wcl)
	}

	dims := *kd
	stateDim := 2 * dims

	transition := &kalman.ConstantVelocityModel{Dims: dims, Q: *kpn}

	h := mat.NewDense(dims, stateDim, nil)
	for i := 0; i < dims; i++ {
		h.Set(i, i, 1)
	}
	r := mat.NewSymDense(dims, nil)
	for i := 0; i < dims; i++ {
		r.SetSym(i, i, *kmn)
	}
	mm := &kalman.MeasurementModel{H: h, R: r}

	birthCov := mat.NewSymDense(stateDim, nil)
	for i := 0; i < dims; i++ {
		birthCov.SetSym(i, i, (*srg)*(*srg)/3)
	}
	for i := dims; i < stateDim; i++ {
		birthCov.SetSym(i, i, 1)
	}
	birth := &gmphd.Component{
		Mean:       mat.NewVecDense(stateDim, nil),
		Covariance: birthCov,
		Weight:     *sbr,
		Tag:        gmphd.BirthTag,
	}

	measurementRange := make([]detectionsource.Range, dims)
	for i := range measurementRange {
		measurementRange[i] = detectionsource.Range{Min: -*srg, Max: *srg}
	}

	simCfg := detectionsource.Config{
		Transition:           transition,
		Measurement:          mm,
		InitialState:         birth,
		TimeStep:             *stp,
		Steps:                *sst,
		BirthRate:            *sbr,
		DeathProbability:     *sdp,
		DetectionProbability: *sde,
		ClutterRate:          *scr,
		MeasurementRange:     measurementRange,
	}
	source := detectionsource.NewSimulator(simCfg, time.Now())

	trackerCfg := gmphd.Config{
		IncludeAll:            *tia,
		ProbSurvival:          *tps,
		ProbOfDetection:       *tpd,
		ClutterSpatialDensity: *tcs,
		PruneThreshold:        *tpt,
		MergeThreshold:        *tmt,
		MaxComponents:         *tmc,
		ExtractionThreshold:   *tet,
		Log:                   *lgt,
		MissedDistance:        math.Inf(1),
	}

	predictor := &kalman.Predictor{Model: transition}
	updater := &kalman.Updater{DefaultModel: mm}

	tracker, err := gmphd.NewTracker(trackerCfg, predictor, updater, measures.Mahalanobis, measures.LogMVNPdf, birth)
	if err != nil {
		log.Fatalf("tracker initialization failed (%s)", err)
	}

	cfg := &Config{
		Tracker: trackerCfg,
		Analyzer: analyzer.Config{
			CumulantKind: ackind,
			Log:          *lga,
		},
		Writer: writer.Config{
			Dir:              *wdr,
			File:             *wfi,
			CompressionLevel: *wcl,
			Flush:            *wfl,
			RotateInterval:   *wri,
			RotateSize:       *wrs,
			Log:              *lgw,
		},
		Serial:      *rsr,
		HTTPAddr:    *rhs,
		Interval:    *riv,
		MaxErrors:   *rme,
		ErrorDelay:  *red,
		StopTimeout: *rst,
	}

	log.Printf("gmphdtrack version %s started", VERSION)

	run(cfg, source, tracker)
}

func run(cfg *Config, source gmphd.DetectionSource, tracker *gmphd.Tracker) {
	m := metrics.NewMetrics()

	var a *App
	var err error
	if a, err = NewApp(cfg, source, tracker, m); err != nil {
		log.Fatalf("initialization failed (%s)", err)
	}

	done := make(chan bool, 2)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer func() {
			done <- true
		}()
		printMetrics := func() {
			log.Printf("reading metrics\n" + a.DumpMetrics())
		}
		for {
			sig := <-sigs
			log.Println("received signal:", sig)
			if sig == syscall.SIGUSR1 {
				printMetrics()
			} else if sig == syscall.SIGUSR2 {
				log.Println("running full GC")
				runtime.GC()
				printMetrics()
			} else {
				if err := a.Stop(); err != nil {
					log.Printf("error on stop (%s)", err)
				}
				break
			}
		}
	}()

	go func() {
		defer func() {
			done <- true
		}()
		if err := a.Run(); err != nil {
			log.Fatalf("run failed (%s)", err)
		} else {
			log.Println("successful termination")
		}
	}()

	<-done
}
