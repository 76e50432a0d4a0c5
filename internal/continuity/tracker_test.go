package continuity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spyhelmet/helmetmon/internal/models"
)

var t0 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestTracker_StaleTimeline(t *testing.T) {
	tr := New(0, 0)

	obs := tr.Observe("A1", at(0))
	require.True(t, obs.NewPacket)
	require.False(t, obs.Stale)

	for ms := 500; ms <= 10000; ms += 500 {
		obs = tr.Observe("A1", at(ms))
		require.False(t, obs.Stale, "stale too early at %dms", ms)
		require.False(t, obs.NewPacket)
	}

	obs = tr.Observe("A1", at(10001))
	require.True(t, obs.Stale)
	require.Equal(t, at(0), obs.LastSeenAt)

	obs = tr.Observe("A2", at(10002))
	require.False(t, obs.Stale)
	require.True(t, obs.NewPacket)
	require.Equal(t, at(10002), obs.LastSeenAt)
}

func TestTracker_NeverStaleWithoutRealPacket(t *testing.T) {
	tr := New(0, 0)
	tr.Observe(models.UnknownPacket, at(0))

	obs := tr.Observe(models.UnknownPacket, at(60000))
	require.False(t, obs.Stale)
}

func TestTracker_StaleNotClearedByTime(t *testing.T) {
	tr := New(time.Second, 0)
	tr.Observe("7", at(0))
	require.True(t, tr.Observe("7", at(1500)).Stale)
	require.True(t, tr.Observe("7", at(90000)).Stale)
	require.False(t, tr.Observe("8", at(90001)).Stale)
}

func TestTracker_UnknownAfterRealCanGoStale(t *testing.T) {
	tr := New(0, 0)
	tr.Observe("A1", at(0))
	require.True(t, tr.Observe(models.UnknownPacket, at(100)).NewPacket)
	require.True(t, tr.Observe(models.UnknownPacket, at(10101)).Stale)
}

func TestObservation_Pulse(t *testing.T) {
	tr := New(0, 0)
	obs := tr.Observe("A1", at(0))
	require.True(t, obs.Pulsing(at(199)))
	require.False(t, obs.Pulsing(at(200)))
	require.Equal(t, obs, tr.Current())
}
