// Package continuity decides whether a snapshot carries a new packet or a
// repeat, and when the feed has gone stale.
package continuity

import (
	"time"

	"github.com/spyhelmet/helmetmon/internal/models"
)

const (
	// DefaultStaleAfter is how long the same packet may be re-served before
	// the feed is considered stale.
	DefaultStaleAfter = 10 * time.Second

	// DefaultPulse is how long the cosmetic new-packet flag stays raised.
	DefaultPulse = 200 * time.Millisecond
)

// Observation is the tracker state after one Observe call.
type Observation struct {
	PacketNo   string
	LastSeenAt time.Time
	Stale      bool
	NewPacket  bool
	PulseUntil time.Time
}

// Pulsing reports whether the new-packet pulse is still active at now.
func (o Observation) Pulsing(now time.Time) bool {
	return now.Before(o.PulseUntil)
}

// Tracker is not safe for concurrent use; the engine owns it.
type Tracker struct {
	staleAfter time.Duration
	pulse      time.Duration

	observed bool
	seenReal bool
	current  Observation
}

// New creates a tracker. Non-positive durations fall back to the defaults.
func New(staleAfter, pulse time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	return &Tracker{staleAfter: staleAfter, pulse: pulse}
}

// Observe records packetNo as seen at now. Staleness is cleared only by a
// packet change, never by time alone.
func (t *Tracker) Observe(packetNo string, now time.Time) Observation {
	if !t.observed || packetNo != t.current.PacketNo {
		t.observed = true
		if packetNo != models.UnknownPacket {
			t.seenReal = true
		}
		t.current = Observation{
			PacketNo:   packetNo,
			LastSeenAt: now,
			NewPacket:  true,
			PulseUntil: now.Add(t.pulse),
		}
		return t.current
	}

	t.current.NewPacket = false
	if t.seenReal && now.Sub(t.current.LastSeenAt) > t.staleAfter {
		t.current.Stale = true
	}
	return t.current
}

// Current returns the latest observation without changing it.
func (t *Tracker) Current() Observation { return t.current }
