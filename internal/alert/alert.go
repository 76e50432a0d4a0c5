// Package alert derives alert flags from the latest ready snapshot.
// Evaluation is a pure function: the same inputs always give the same
// flags and nothing is latched between ticks.
package alert

import "github.com/spyhelmet/helmetmon/internal/models"

const (
	// FatigueConfidenceThreshold is the minimum confidence, in percent, for
	// a Fatigue prediction to raise the fatigue alert.
	FatigueConfidenceThreshold = 80.0

	// SensorFaultHeartRate is the heart rate the sensor reports when it has
	// no pulse signal.
	SensorFaultHeartRate = 0.0
)

// Evaluate computes the alert flags. resolvedHeartRate is the heart rate
// with unknown resolved to 0, so a missing reading also raises the sensor
// alert even though it is displayed as unknown.
func Evaluate(prediction models.Label, rawScores [3]float64, resolvedHeartRate float64) models.AlertState {
	confidence := models.Snapshot{RawScores: rawScores}.Confidence()
	return models.AlertState{
		FatigueAlert: prediction == models.LabelFatigue && confidence >= FatigueConfidenceThreshold,
		SensorAlert:  resolvedHeartRate == SensorFaultHeartRate,
	}
}

// FromSnapshot evaluates a snapshot.
func FromSnapshot(s models.Snapshot) models.AlertState {
	return Evaluate(s.Prediction, s.RawScores, models.Resolve(s.HeartRate))
}

// Change is one alert flag flipping between two evaluations.
type Change struct {
	Alert  string
	Active bool
}

// Alert names used in Change.
const (
	NameFatigue = "fatigue"
	NameSensor  = "sensor"
)

// Diff lists the flags that differ between prev and next.
func Diff(prev, next models.AlertState) []Change {
	var out []Change
	if prev.FatigueAlert != next.FatigueAlert {
		out = append(out, Change{Alert: NameFatigue, Active: next.FatigueAlert})
	}
	if prev.SensorAlert != next.SensorAlert {
		out = append(out, Change{Alert: NameSensor, Active: next.SensorAlert})
	}
	return out
}
