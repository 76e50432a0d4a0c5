package channel

import (
	"time"

	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/buffer"
	"github.com/spyhelmet/helmetmon/internal/models"
)

// Spec names a source and the policy of its buffer.
type Spec struct {
	Name   string
	Policy buffer.Policy
}

// DefaultSpecs mirrors the dashboard: the three headline charts keep the
// last 30 points, slow environmental readings keep 50, gases and SpO2 are
// windowed by time.
func DefaultSpecs() []Spec {
	return []Spec{
		{FatigueProbability, buffer.CountPolicy(30)},
		{HeartRate, buffer.CountPolicy(30)},
		{BodyTemp, buffer.CountPolicy(30)},
		{CH4PPM, buffer.TimePolicy(120 * time.Second)},
		{COPPM, buffer.TimePolicy(120 * time.Second)},
		{Humidity, buffer.CountPolicy(50)},
		{EnvTemp, buffer.CountPolicy(50)},
		{SpO2, buffer.TimePolicy(60 * time.Second)},
	}
}

type binding struct {
	source Source
	buf    *buffer.Channel
}

// Registry holds the configured channels in registration order.
type Registry struct {
	bindings []binding
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// NewDefaultRegistry registers every spec, skipping invalid ones.
func NewDefaultRegistry(specs []Spec, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// Register adds a channel if its source is known, its policy is valid and
// its name is not already taken. Rejected channels are logged and skipped.
func (r *Registry) Register(spec Spec) bool {
	src, ok := Lookup(spec.Name)
	if !ok {
		r.logger.Warn("Unknown channel, skipping", zap.String("name", spec.Name))
		return false
	}
	for _, b := range r.bindings {
		if b.source.Name() == spec.Name {
			r.logger.Warn("Duplicate channel, skipping", zap.String("name", spec.Name))
			return false
		}
	}
	buf, err := buffer.New(spec.Name, spec.Policy)
	if err != nil {
		r.logger.Warn("Invalid channel policy, skipping",
			zap.String("name", spec.Name),
			zap.Error(err))
		return false
	}
	r.bindings = append(r.bindings, binding{source: src, buf: buf})
	r.logger.Debug("Registered channel",
		zap.String("name", spec.Name),
		zap.String("policy", string(spec.Policy.Kind)))
	return true
}

// AppendAll appends one point per channel. Callers must pass only ready
// snapshots: placeholder data never reaches a chart.
func (r *Registry) AppendAll(s models.Snapshot, now time.Time) {
	if !s.Ready() {
		return
	}
	for _, b := range r.bindings {
		b.buf.Append(now, b.source.Value(s))
	}
}

// Series returns a copy of every channel's points keyed by name.
func (r *Registry) Series(now time.Time) map[string][]models.Point {
	out := make(map[string][]models.Point, len(r.bindings))
	for _, b := range r.bindings {
		out[b.source.Name()] = b.buf.Points(now)
	}
	return out
}

// Names returns the registered channel names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.bindings))
	for i, b := range r.bindings {
		names[i] = b.source.Name()
	}
	return names
}
