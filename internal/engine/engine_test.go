package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/buffer"
	"github.com/spyhelmet/helmetmon/internal/channel"
	"github.com/spyhelmet/helmetmon/internal/models"
	"github.com/spyhelmet/helmetmon/internal/scheduler"
)

var t0 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type capturePublisher struct {
	events []models.AlertEvent
}

func (p *capturePublisher) Publish(ev models.AlertEvent) { p.events = append(p.events, ev) }

func newEngine(t *testing.T, opts Options) (*Engine, *clock) {
	t.Helper()
	clk := &clock{now: t0}
	opts.Now = clk.Now
	if opts.Session.ID == "" {
		opts.Session = models.Session{ID: "session-1", StartedAt: t0}
	}
	return New(opts, zap.NewNop()), clk
}

// ok builds a successful result finishing at ms with a 40ms round trip.
func ok(ms int, body string) scheduler.Result {
	done := t0.Add(time.Duration(ms) * time.Millisecond)
	return scheduler.Result{Started: done.Add(-40 * time.Millisecond), Finished: done, Body: []byte(body)}
}

func ready(packet string) string {
	return fmt.Sprintf(`{"prediction":"Normal","raw_scores":[0.9,0.05,0.05],"packet_no":%q,"heart_rate":72,"body_temp":36.6}`, packet)
}

func TestEngine_InitialView(t *testing.T) {
	e, _ := newEngine(t, Options{})
	v := e.View()

	require.Equal(t, models.FetchInit, v.Connection.LastFetchStatus)
	require.Equal(t, models.UnknownPacket, v.Connection.PacketNo)
	require.Nil(t, v.Latest)
	require.Equal(t, models.Unknown, v.Display.Probability)
	require.Equal(t, "session-1", v.Session.ID)
}

func TestEngine_FatigueScenario(t *testing.T) {
	pub := &capturePublisher{}
	e, _ := newEngine(t, Options{Alerts: pub})

	e.Apply(ok(500, `{"status":"ready","prediction":"Fatigue","raw_scores":[0.05,0.1,0.9],"heart_rate":0,"packet_no":"A1"}`))
	v := e.View()

	require.Equal(t, models.FetchSuccess, v.Connection.LastFetchStatus)
	require.Equal(t, int64(40), v.Connection.LatencyMs)
	require.True(t, v.Alerts.FatigueAlert)
	require.True(t, v.Alerts.SensorAlert)
	require.Equal(t, "90.0", v.Display.Probability)
	require.Equal(t, "A1", v.Display.PacketNo)
	require.InDelta(t, 90.0, v.Series[channel.FatigueProbability][0].Value, 1e-9)

	require.Len(t, pub.events, 2)
	require.Equal(t, "session-1", pub.events[0].SessionID)
	require.True(t, pub.events[0].Active)
}

func TestEngine_ErrorSkipsDownstream(t *testing.T) {
	e, _ := newEngine(t, Options{})
	e.Apply(ok(500, ready("A1")))
	before := e.View()

	e.Apply(scheduler.Result{
		Started:  t0.Add(900 * time.Millisecond),
		Finished: t0.Add(1000 * time.Millisecond),
		Err:      errors.New("connection refused"),
	})
	after := e.View()

	require.Equal(t, models.FetchError, after.Connection.LastFetchStatus)
	require.Equal(t, int64(100), after.Connection.LatencyMs)
	require.Equal(t, before.Connection.PacketNo, after.Connection.PacketNo)
	require.Equal(t, before.Connection.LastPacketSeenAt, after.Connection.LastPacketSeenAt)
	require.Equal(t, before.Series, after.Series)
	require.Equal(t, before.Alerts, after.Alerts)

	e.Apply(ok(1500, ready("A2")))
	require.Equal(t, models.FetchSuccess, e.View().Connection.LastFetchStatus)
}

func TestEngine_CollectingTracksPacketButNotCharts(t *testing.T) {
	e, _ := newEngine(t, Options{})

	e.Apply(ok(500, `{"status":"collecting","packet_no":"A1","reading_progress":"12/100"}`))
	e.Apply(ok(1000, `{"status":"collecting","packet_no":"A2","reading_progress":"13/100"}`))
	v := e.View()

	require.True(t, v.Collecting)
	require.Equal(t, "13/100", v.ReadingProgress)
	require.Equal(t, "A2", v.Connection.PacketNo)
	require.Equal(t, models.FetchSuccess, v.Connection.LastFetchStatus)
	require.Nil(t, v.Latest)
	require.Equal(t, models.AlertState{}, v.Alerts)
	for name, pts := range v.Series {
		require.Empty(t, pts, "collecting tick appended to %s", name)
	}
}

func TestEngine_StaleScenario(t *testing.T) {
	e, clk := newEngine(t, Options{})

	e.Apply(ok(0, ready("A1")))
	for ms := 500; ms <= 10000; ms += 500 {
		e.Apply(ok(ms, ready("A1")))
		require.False(t, e.View().Connection.IsStale, "stale at %dms", ms)
	}

	clk.Set(t0.Add(10001 * time.Millisecond))
	e.Apply(ok(10001, ready("A1")))
	require.True(t, e.View().Connection.IsStale)

	clk.Set(t0.Add(10002 * time.Millisecond))
	e.Apply(ok(10002, ready("A2")))
	v := e.View()
	require.False(t, v.Connection.IsStale)
	require.True(t, v.Connection.NewPacketPulse)
	require.Equal(t, t0.Add(10002*time.Millisecond), v.Connection.LastPacketSeenAt)

	clk.Set(t0.Add(10300 * time.Millisecond))
	require.False(t, e.View().Connection.NewPacketPulse)
}

func TestEngine_CountBufferEvictsFirstTick(t *testing.T) {
	e, clk := newEngine(t, Options{Channels: []channel.Spec{{Name: channel.HeartRate, Policy: buffer.CountPolicy(30)}}})

	for i := 1; i <= 31; i++ {
		e.Apply(ok(i*500, fmt.Sprintf(`{"prediction":"Normal","raw_scores":[1,0,0],"packet_no":"%d","heart_rate":%d}`, i, 60+i)))
	}
	clk.Set(t0.Add(31 * 500 * time.Millisecond))

	pts := e.View().Series[channel.HeartRate]
	require.Len(t, pts, 30)
	for i, p := range pts {
		require.Equal(t, float64(60+i+2), p.Value)
	}
}

func TestEngine_AlertsAreNotLatched(t *testing.T) {
	pub := &capturePublisher{}
	e, _ := newEngine(t, Options{Alerts: pub})

	fatigue := `{"prediction":"Fatigue","raw_scores":[0.05,0.1,0.9],"heart_rate":80,"packet_no":"%d"}`
	e.Apply(ok(500, fmt.Sprintf(fatigue, 1)))
	first := e.View().Alerts
	e.Apply(ok(1000, fmt.Sprintf(fatigue, 2)))
	require.Equal(t, first, e.View().Alerts)

	e.Apply(ok(1500, ready("3")))
	require.False(t, e.View().Alerts.FatigueAlert)

	require.Len(t, pub.events, 2)
	require.Equal(t, "fatigue", pub.events[1].Alert)
	require.False(t, pub.events[1].Active)
}

func TestEngine_SubscribeLatestWins(t *testing.T) {
	e, _ := newEngine(t, Options{})
	views, cancel := e.Subscribe()

	e.Apply(ok(500, ready("A1")))
	e.Apply(ok(1000, ready("A2")))
	e.Apply(ok(1500, ready("A3")))

	v := <-views
	require.Equal(t, uint64(3), v.Seq)
	require.Equal(t, "A3", v.Connection.PacketNo)

	cancel()
	cancel()
	_, open := <-views
	require.False(t, open)

	e.Apply(ok(2000, ready("A4")))
}

func TestEngine_ViewIsACopy(t *testing.T) {
	e, _ := newEngine(t, Options{})
	e.Apply(ok(500, ready("A1")))

	v := e.View()
	v.Series[channel.HeartRate][0].Value = -1
	v.Latest.PacketNo = "tampered"

	again := e.View()
	require.Equal(t, 72.0, again.Series[channel.HeartRate][0].Value)
	require.Equal(t, "A1", again.Latest.PacketNo)
}
