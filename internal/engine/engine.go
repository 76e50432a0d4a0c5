// Package engine owns the monitor model and reconciles every completed poll
// into it: connection state, packet continuity, alert flags and channel
// buffers. It is the only writer; readers get immutable Views either on
// demand or through Subscribe.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/alert"
	"github.com/spyhelmet/helmetmon/internal/channel"
	"github.com/spyhelmet/helmetmon/internal/continuity"
	"github.com/spyhelmet/helmetmon/internal/metrics"
	"github.com/spyhelmet/helmetmon/internal/models"
	"github.com/spyhelmet/helmetmon/internal/normalize"
	"github.com/spyhelmet/helmetmon/internal/scheduler"
)

// AlertPublisher forwards alert transitions.
type AlertPublisher interface {
	Publish(models.AlertEvent)
}

// Options configures an Engine.
type Options struct {
	Session    models.Session
	Channels   []channel.Spec
	StaleAfter time.Duration
	Pulse      time.Duration
	Now        func() time.Time
	Recorder   metrics.Recorder
	Alerts     AlertPublisher
}

// Engine is the single reconciliation point of the monitor.
type Engine struct {
	session  models.Session
	now      func() time.Time
	recorder metrics.Recorder
	alertOut AlertPublisher
	logger   *zap.Logger

	mu         sync.RWMutex
	seq        uint64
	tracker    *continuity.Tracker
	registry   *channel.Registry
	conn       models.ConnectionState
	pulseUntil time.Time
	collecting bool
	progress   string
	lastReady  *models.Snapshot
	alerts     models.AlertState

	subMu   sync.Mutex
	subs    map[int]chan View
	nextSub int
}

// New creates an engine with empty state and LastFetchStatus init.
func New(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop{}
	}
	if opts.Channels == nil {
		opts.Channels = channel.DefaultSpecs()
	}
	return &Engine{
		session:  opts.Session,
		now:      opts.Now,
		recorder: opts.Recorder,
		alertOut: opts.Alerts,
		logger:   logger,
		tracker:  continuity.New(opts.StaleAfter, opts.Pulse),
		registry: channel.NewDefaultRegistry(opts.Channels, logger),
		conn: models.ConnectionState{
			LastFetchStatus: models.FetchInit,
			PacketNo:        models.UnknownPacket,
		},
		subs: make(map[int]chan View),
	}
}

// Apply reconciles one completed fetch. A failed fetch only updates the
// fetch status and latency; nothing downstream changes for that tick.
func (e *Engine) Apply(res scheduler.Result) {
	now := res.Finished
	if now.IsZero() {
		now = e.now()
	}

	e.mu.Lock()
	e.seq++
	e.conn.LatencyMs = res.Latency().Milliseconds()

	if res.Err != nil {
		e.applyError(res)
	} else {
		e.applySuccess(res, now)
	}

	view := e.viewLocked(now)
	e.mu.Unlock()

	e.notify(view)
}

// applyError must be called with e.mu held.
func (e *Engine) applyError(res scheduler.Result) {
	e.recorder.FetchCompleted(metrics.OutcomeError, res.Latency())
	if e.conn.LastFetchStatus != models.FetchError {
		e.logger.Warn("Prediction fetch failed", zap.Error(res.Err))
	} else {
		e.logger.Debug("Prediction fetch failed", zap.Error(res.Err))
	}
	e.conn.LastFetchStatus = models.FetchError
}

// applySuccess must be called with e.mu held.
func (e *Engine) applySuccess(res scheduler.Result, now time.Time) {
	e.recorder.FetchCompleted(metrics.OutcomeSuccess, res.Latency())
	if e.conn.LastFetchStatus == models.FetchError {
		e.logger.Info("Prediction feed recovered")
	}
	e.conn.LastFetchStatus = models.FetchSuccess

	snap := normalize.Normalize(res.Body)

	// Continuity runs for collecting snapshots too, so "connected but
	// collecting" stays distinct from "disconnected".
	obs := e.tracker.Observe(snap.PacketNo, now)
	if obs.Stale != e.conn.IsStale {
		e.recorder.FeedStale(obs.Stale)
		if obs.Stale {
			e.logger.Warn("Prediction feed stale",
				zap.String("packet_no", obs.PacketNo),
				zap.Time("last_packet_seen_at", obs.LastSeenAt))
		} else {
			e.logger.Info("Prediction feed resumed", zap.String("packet_no", obs.PacketNo))
		}
	}
	e.conn.PacketNo = obs.PacketNo
	e.conn.LastPacketSeenAt = obs.LastSeenAt
	e.conn.IsStale = obs.Stale
	e.pulseUntil = obs.PulseUntil

	e.collecting = !snap.Ready()
	if e.collecting {
		e.progress = snap.ReadingProgress
		return
	}
	e.progress = ""

	next := alert.FromSnapshot(snap)
	for _, ch := range alert.Diff(e.alerts, next) {
		e.publishAlert(ch, snap, now)
	}
	e.alerts = next
	e.lastReady = &snap
	e.registry.AppendAll(snap, now)
}

// publishAlert must be called with e.mu held.
func (e *Engine) publishAlert(ch alert.Change, snap models.Snapshot, now time.Time) {
	e.recorder.AlertActive(ch.Alert, ch.Active)
	e.logger.Info("Alert changed",
		zap.String("alert", ch.Alert),
		zap.Bool("active", ch.Active),
		zap.String("packet_no", snap.PacketNo),
		zap.Float64("confidence", snap.Confidence()))

	if e.alertOut == nil {
		return
	}
	e.alertOut.Publish(models.AlertEvent{
		SessionID:  e.session.ID,
		At:         now,
		Alert:      ch.Alert,
		Active:     ch.Active,
		PacketNo:   snap.PacketNo,
		HelmetID:   snap.HelmetID,
		Prediction: snap.Prediction,
		Confidence: snap.Confidence(),
		HeartRate:  snap.HeartRate,
	})
}

// View returns the current model as of now.
func (e *Engine) View() View {
	now := e.now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewLocked(now)
}

// viewLocked must be called with e.mu held (read or write).
func (e *Engine) viewLocked(now time.Time) View {
	conn := e.conn
	conn.NewPacketPulse = now.Before(e.pulseUntil)

	v := View{
		Seq:             e.seq,
		At:              now,
		Session:         e.session,
		Connection:      conn,
		Collecting:      e.collecting,
		ReadingProgress: e.progress,
		Alerts:          e.alerts,
		Series:          e.registry.Series(now),
	}
	if e.lastReady != nil {
		latest := *e.lastReady
		v.Latest = &latest
		v.Display = latest.Display()
	} else {
		v.Display = models.Snapshot{}.Display()
	}
	v.Display.PacketNo = conn.PacketNo
	return v
}

// Subscribe returns a channel that receives a View after every Apply.
// Slow readers only ever see the latest view. The returned func
// unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			close(ch)
			e.subMu.Unlock()
		})
	}
}

func (e *Engine) notify(v View) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, ch := range e.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}
