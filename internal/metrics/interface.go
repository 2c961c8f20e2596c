package metrics

import (
	"context"
	"time"
)

// Collector records the outcome of sampling passes.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	// RunID identifies this process's passes in the history.
	RunID() string
	Close() error
}

// Repository stores snapshots.
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Snapshot is one pass as stored in the history.
type Snapshot struct {
	Timestamp  time.Time
	Mode       string
	Desired    int
	Target     int
	Current    int
	AnyInvalid bool
	Duration   time.Duration
	Zones      []ZoneSample
}

// ZoneSample is a zone's state at the end of a pass.
type ZoneSample struct {
	Zone       string
	Policy     string
	Reading    float64
	HasReading bool
	RPM        int
	HasRPM     bool
	Valid      bool
}
