// Package models defines the data structures shared by the monitor: the
// normalized snapshot, connection and alert state, chart points and the
// weekly report. Wire payloads mirror the prediction service JSON.
package models

import (
	"strconv"
	"time"
)

// Status is the readiness of a prediction snapshot.
type Status string

const (
	// StatusCollecting means the service has not accumulated enough raw
	// samples to classify yet.
	StatusCollecting Status = "collecting"
	StatusReady      Status = "ready"
)

// Label is a server-supplied fatigue classification.
type Label string

const (
	LabelNormal  Label = "Normal"
	LabelStress  Label = "Stress"
	LabelFatigue Label = "Fatigue"
)

// scoreLabels fixes the raw score index order: normal, stress, fatigue.
var scoreLabels = [3]Label{LabelNormal, LabelStress, LabelFatigue}

// UnknownPacket marks an absent or unrecognized packet identifier.
const UnknownPacket = "--"

// Unknown is rendered for readings the service did not report.
const Unknown = "--"

// Snapshot is one normalized reading from the prediction service.
// Nil readings are unknown; they are never shown as zero.
type Snapshot struct {
	Status          Status     `json:"status"`
	PacketNo        string     `json:"packet_no"`
	ReadingProgress string     `json:"reading_progress,omitempty"`
	Message         string     `json:"message,omitempty"`
	HelmetID        string     `json:"helmet_id,omitempty"`
	Prediction      Label      `json:"prediction,omitempty"`
	RawScores       [3]float64 `json:"raw_scores"`

	HeartRate *float64 `json:"heart_rate"`
	BodyTemp  *float64 `json:"body_temp"`
	CH4PPM    *float64 `json:"ch4_ppm"`
	COPPM     *float64 `json:"co_ppm"`
	Humidity  *float64 `json:"humidity"`
	EnvTemp   *float64 `json:"env_temp"`
	SpO2      *float64 `json:"spo2"`
}

// Ready reports whether the snapshot carries a classification.
func (s Snapshot) Ready() bool { return s.Status == StatusReady }

// Confidence returns max(RawScores) as a percentage. Scores are independent
// and need not sum to one.
func (s Snapshot) Confidence() float64 {
	best := s.RawScores[0]
	for _, v := range s.RawScores[1:] {
		if v > best {
			best = v
		}
	}
	return best * 100
}

// ArgmaxLabel returns the label of the highest raw score. It is
// informational: Prediction is authoritative and the two may disagree.
func (s Snapshot) ArgmaxLabel() Label {
	idx := 0
	for i, v := range s.RawScores {
		if v > s.RawScores[idx] {
			idx = i
		}
	}
	return scoreLabels[idx]
}

// Resolve returns the reading or 0 when it is unknown. Use it only where a
// number is required (charts, alert rules), never for display.
func Resolve(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Display holds the human-readable rendering of a snapshot.
type Display struct {
	Prediction  string `json:"prediction"`
	Probability string `json:"probability"`
	PacketNo    string `json:"packet_no"`
	HeartRate   string `json:"heart_rate"`
	BodyTemp    string `json:"body_temp"`
	CH4PPM      string `json:"ch4_ppm"`
	COPPM       string `json:"co_ppm"`
	Humidity    string `json:"humidity"`
	EnvTemp     string `json:"env_temp"`
	SpO2        string `json:"spo2"`
}

// Display renders the snapshot the way the dashboard shows it.
// A zero heart rate or SpO2 renders as unknown: the sensor reports 0 when
// it has no signal.
func (s Snapshot) Display() Display {
	d := Display{
		Prediction:  Unknown,
		Probability: Unknown,
		PacketNo:    s.PacketNo,
		HeartRate:   Unknown,
		BodyTemp:    format(s.BodyTemp, 1),
		CH4PPM:      format(s.CH4PPM, 1),
		COPPM:       format(s.COPPM, 1),
		Humidity:    format(s.Humidity, 0),
		EnvTemp:     format(s.EnvTemp, 1),
		SpO2:        Unknown,
	}
	if d.PacketNo == "" {
		d.PacketNo = UnknownPacket
	}
	if s.Ready() {
		if s.Prediction != "" {
			d.Prediction = string(s.Prediction)
		}
		d.Probability = strconv.FormatFloat(s.Confidence(), 'f', 1, 64)
	}
	if s.HeartRate != nil && *s.HeartRate != 0 {
		d.HeartRate = format(s.HeartRate, 0)
	}
	if s.SpO2 != nil && *s.SpO2 != 0 {
		d.SpO2 = strconv.FormatFloat(*s.SpO2, 'f', -1, 64)
	}
	return d
}

func format(v *float64, prec int) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

// Point is one chart sample.
type Point struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

