// Package channel defines the monitored chart channels and a registry that
// binds each one to a bounded buffer.
package channel

import "github.com/spyhelmet/helmetmon/internal/models"

// Source extracts one numeric series from a snapshot.
type Source interface {
	// Name returns the unique channel identifier.
	Name() string

	// Value returns the chart value for a ready snapshot. Unknown readings
	// resolve to 0.
	Value(s models.Snapshot) float64
}

// Channel names.
const (
	FatigueProbability = "fatigue_probability"
	HeartRate          = "heart_rate"
	BodyTemp           = "body_temp"
	CH4PPM             = "ch4_ppm"
	COPPM              = "co_ppm"
	Humidity           = "humidity"
	EnvTemp            = "env_temp"
	SpO2               = "spo2"
)

type probabilitySource struct{}

func (probabilitySource) Name() string                    { return FatigueProbability }
func (probabilitySource) Value(s models.Snapshot) float64 { return s.Confidence() }

// readingSource charts one optional sensor field.
type readingSource struct {
	name  string
	field func(models.Snapshot) *float64
}

func (r readingSource) Name() string                    { return r.name }
func (r readingSource) Value(s models.Snapshot) float64 { return models.Resolve(r.field(s)) }

var builtins = map[string]Source{
	FatigueProbability: probabilitySource{},
	HeartRate:          readingSource{HeartRate, func(s models.Snapshot) *float64 { return s.HeartRate }},
	BodyTemp:           readingSource{BodyTemp, func(s models.Snapshot) *float64 { return s.BodyTemp }},
	CH4PPM:             readingSource{CH4PPM, func(s models.Snapshot) *float64 { return s.CH4PPM }},
	COPPM:              readingSource{COPPM, func(s models.Snapshot) *float64 { return s.COPPM }},
	Humidity:           readingSource{Humidity, func(s models.Snapshot) *float64 { return s.Humidity }},
	EnvTemp:            readingSource{EnvTemp, func(s models.Snapshot) *float64 { return s.EnvTemp }},
	SpO2:               readingSource{SpO2, func(s models.Snapshot) *float64 { return s.SpO2 }},
}

// Lookup returns the built-in source with the given name.
func Lookup(name string) (Source, bool) {
	src, ok := builtins[name]
	return src, ok
}
