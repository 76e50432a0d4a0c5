// Package alertsink forwards alert transitions to Kafka so supervisors
// outside the operator console see them. Publishing is asynchronous: the
// engine never waits on the broker, and a full queue drops events.
package alertsink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/config"
	"github.com/spyhelmet/helmetmon/internal/models"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher queues alert events and writes them to one topic, keyed by
// session id.
type Publisher struct {
	writer messageWriter
	logger *zap.Logger

	queue  chan models.AlertEvent
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a publisher for the configured brokers and starts its
// writer goroutine. It returns nil, nil when no brokers are configured.
func New(cfg config.KafkaConfig, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New("alertsink: topic required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           writeTimeout,
	}
	return newPublisher(w, cfg.QueueSize, logger), nil
}

func newPublisher(w messageWriter, queueSize int, logger *zap.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		writer: w,
		logger: logger,
		queue:  make(chan models.AlertEvent, queueSize),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

// Publish enqueues an event without blocking.
func (p *Publisher) Publish(ev models.AlertEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("Alert queue full, dropping event",
			zap.String("alert", ev.Alert),
			zap.Bool("active", ev.Active))
	}
}

// Close drains queued events and closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

func (p *Publisher) loop() {
	defer close(p.done)
	for ev := range p.queue {
		value, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("Failed to marshal alert event", zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.SessionID),
			Value: value,
			Time:  ev.At,
		})
		cancel()
		if err != nil {
			p.logger.Warn("Failed to publish alert event",
				zap.String("alert", ev.Alert),
				zap.Error(err))
			continue
		}
		p.logger.Debug("Published alert event",
			zap.String("alert", ev.Alert),
			zap.Bool("active", ev.Active))
	}
}
