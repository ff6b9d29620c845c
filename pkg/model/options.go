package model

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/texttree/pkg/idgen"
	"github.com/nainya/texttree/pkg/reuse"
)

// Recorder receives edit telemetry. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	// ObserveEdit is called once per public mutating operation
	ObserveEdit(op string, d time.Duration, err error)

	// ObserveReuse reports how the children resolved during one edit
	ObserveReuse(exact, partial, fresh int)

	// ObserveVersion reports the latest version number after an edit
	ObserveVersion(latest int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEdit(string, time.Duration, error) {}
func (nopRecorder) ObserveReuse(int, int, int)               {}
func (nopRecorder) ObserveVersion(int)                       {}

// Option configures a Model
type Option func(*Model)

// WithIDGenerator sets the identifier source (default: random UUIDs)
func WithIDGenerator(gen idgen.Generator) Option {
	return func(m *Model) { m.newID = gen }
}

// WithClock sets the clock used for CreatedAt stamps
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithLogger sets the logger (default: disabled)
func WithLogger(log zerolog.Logger) Option {
	return func(m *Model) { m.log = log }
}

// WithRecorder sets the telemetry sink
func WithRecorder(r Recorder) Option {
	return func(m *Model) { m.rec = r }
}

// WithThreshold sets the token overlap ratio a partial match must exceed
func WithThreshold(t float64) Option {
	return func(m *Model) { m.threshold = t }
}

// WithSeedText fills an empty document with text on construction
func WithSeedText(text string) Option {
	return func(m *Model) { m.seed = text }
}

func defaults() *Model {
	return &Model{
		parents:   make(map[string]string),
		newID:     idgen.UUID(),
		now:       time.Now,
		log:       zerolog.Nop(),
		rec:       nopRecorder{},
		threshold: reuse.DefaultThreshold,
	}
}
