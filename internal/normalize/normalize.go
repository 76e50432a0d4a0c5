// Package normalize turns raw prediction payloads into typed snapshots.
// Normalization never fails: missing, null or mistyped fields fall back to
// explicit defaults so a malformed payload degrades to a best-effort
// snapshot instead of an error.
package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/spyhelmet/helmetmon/internal/models"
)

// Normalize converts a raw prediction endpoint body into a Snapshot.
// Numbers are kept as json.Number so large integer packet ids survive.
func Normalize(raw []byte) models.Snapshot {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		fields = nil
	}
	return FromMap(fields)
}

// FromMap normalizes an already decoded payload. A nil map yields a ready
// snapshot with every reading unknown.
func FromMap(fields map[string]any) models.Snapshot {
	s := models.Snapshot{
		Status:          status(fields["status"]),
		PacketNo:        packetNo(fields["packet_no"]),
		ReadingProgress: text(fields["reading_progress"]),
		Message:         text(fields["message"]),
		HelmetID:        text(fields["helmet_id"]),
		RawScores:       scores(fields["raw_scores"]),

		HeartRate: number(fields["heart_rate"]),
		BodyTemp:  number(fields["body_temp"]),
		CH4PPM:    number(fields["ch4_ppm"]),
		COPPM:     number(fields["co_ppm"]),
		Humidity:  number(fields["humidity"]),
		EnvTemp:   number(fields["env_temp"]),
		SpO2:      number(fields["spo2"]),
	}
	if s.Ready() {
		s.Prediction = models.Label(text(fields["prediction"]))
	} else {
		s.RawScores = [3]float64{}
	}
	return s
}

// status defaults to ready: a payload without a status is presumed complete.
func status(v any) models.Status {
	if str, ok := v.(string); ok && models.Status(strings.ToLower(str)) == models.StatusCollecting {
		return models.StatusCollecting
	}
	return models.StatusReady
}

func packetNo(v any) string {
	switch p := v.(type) {
	case string:
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	case json.Number:
		if str := p.String(); str != "" {
			return str
		}
	case float64:
		if !math.IsNaN(p) && !math.IsInf(p, 0) {
			return strconv.FormatFloat(p, 'f', -1, 64)
		}
	}
	return models.UnknownPacket
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// number accepts JSON numbers and numeric strings; anything else is unknown.
func number(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// scores requires exactly three numeric entries, otherwise all zero.
func scores(v any) [3]float64 {
	var out [3]float64
	list, ok := v.([]any)
	if !ok || len(list) != len(out) {
		return out
	}
	for i, item := range list {
		n := number(item)
		if n == nil {
			return [3]float64{}
		}
		out[i] = *n
	}
	return out
}
