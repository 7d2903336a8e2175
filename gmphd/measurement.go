package gmphd

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Measurement is satisfied by both Detection and MissedDetection; both carry
// a timestamp, and only Detection carries a state vector and model.
type Measurement interface {
	// Time returns the timestamp the measurement was recorded at.
	Time() time.Time
	measurement()
}

// Detection is a real measurement: a state vector, a timestamp, and the
// measurement model it was observed under. Clutter detections are
// indistinguishable from true detections at this type.
type Detection struct {
	StateVector      *mat.VecDense
	Timestamp        time.Time
	MeasurementModel MeasurementModel
}

// Time implements Measurement.
func (d *Detection) Time() time.Time { return d.Timestamp }

func (d *Detection) measurement() {}

// MissedDetection is the pseudo-measurement standing in for "no detection
// matched this component", carrying only a timestamp.
type MissedDetection struct {
	Timestamp time.Time
}

// Time implements Measurement.
func (m MissedDetection) Time() time.Time { return m.Timestamp }

func (m MissedDetection) measurement() {}
