package models

import "time"

// FetchStatus is the outcome of the most recent poll.
type FetchStatus string

const (
	FetchInit    FetchStatus = "init"
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// ConnectionState describes the health of the feed as of the last poll.
type ConnectionState struct {
	LastFetchStatus FetchStatus `json:"last_fetch_status"`
	// LatencyMs is the round trip of the most recent attempt, not an average.
	LatencyMs        int64     `json:"latency_ms"`
	PacketNo         string    `json:"packet_no"`
	LastPacketSeenAt time.Time `json:"last_packet_seen_at"`
	IsStale          bool      `json:"is_stale"`
	// NewPacketPulse is a short-lived cosmetic flag for blink effects.
	NewPacketPulse bool `json:"new_packet_pulse"`
}

// AlertState is recomputed from every ready snapshot; nothing is latched.
type AlertState struct {
	FatigueAlert bool `json:"fatigue_alert"`
	SensorAlert  bool `json:"sensor_alert"`
}

// HostInfo identifies the machine running the monitor.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelArch      string `json:"kernel_arch"`
}

// Session identifies one monitoring session.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Host      HostInfo  `json:"host"`
}

// AlertEvent records one alert flag changing state.
type AlertEvent struct {
	SessionID  string    `json:"session_id"`
	At         time.Time `json:"at"`
	Alert      string    `json:"alert"`
	Active     bool      `json:"active"`
	PacketNo   string    `json:"packet_no"`
	HelmetID   string    `json:"helmet_id,omitempty"`
	Prediction Label     `json:"prediction"`
	Confidence float64   `json:"confidence"`
	HeartRate  *float64  `json:"heart_rate"`
}
