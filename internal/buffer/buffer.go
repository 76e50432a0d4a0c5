// Package buffer provides bounded in-memory time series for chart channels.
// Each Channel keeps points in timestamp order and evicts only from the old
// end, either by count or by age. Nothing is persisted.
package buffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/spyhelmet/helmetmon/internal/models"
)

// Kind selects an eviction policy.
type Kind string

const (
	// KindCount keeps the most recent Limit points.
	KindCount Kind = "count"
	// KindTime keeps points no older than Window.
	KindTime Kind = "time"
)

// minTimeCapacity is the initial ring size for time-bounded channels.
const minTimeCapacity = 16

// Policy describes how a channel is bounded. A channel keeps its policy for
// its whole lifetime.
type Policy struct {
	Kind   Kind
	Limit  int
	Window time.Duration
}

// CountPolicy keeps the last k points.
func CountPolicy(k int) Policy { return Policy{Kind: KindCount, Limit: k} }

// TimePolicy keeps points within w of the newest evaluation time.
func TimePolicy(w time.Duration) Policy { return Policy{Kind: KindTime, Window: w} }

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	switch p.Kind {
	case KindCount:
		if p.Limit <= 0 {
			return fmt.Errorf("count policy requires a positive limit (got %d)", p.Limit)
		}
	case KindTime:
		if p.Window <= 0 {
			return fmt.Errorf("time policy requires a positive window (got %s)", p.Window)
		}
	default:
		return fmt.Errorf("unknown policy kind %q", p.Kind)
	}
	return nil
}

// Channel is a ring buffer of points. Appends are O(1) amortized: a count
// channel overwrites its oldest slot, a time channel grows by doubling and
// pops expired points from the head.
type Channel struct {
	name   string
	policy Policy

	mu   sync.Mutex
	ring []models.Point
	head int
	size int
}

// New creates a channel with the given policy.
func New(name string, policy Policy) (*Channel, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}
	capacity := minTimeCapacity
	if policy.Kind == KindCount {
		capacity = policy.Limit
	}
	return &Channel{
		name:   name,
		policy: policy,
		ring:   make([]models.Point, capacity),
	}, nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Policy returns the channel's eviction policy.
func (c *Channel) Policy() Policy { return c.policy }

// Append adds a point at the given time and applies the eviction policy.
// A timestamp older than the newest point is clamped to it so the series
// stays sorted.
func (c *Channel) Append(at time.Time, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size > 0 {
		if last := c.at(c.size - 1); at.Before(last.At) {
			at = last.At
		}
	}
	p := models.Point{At: at, Value: value}

	if c.policy.Kind == KindCount {
		if c.size == len(c.ring) {
			c.ring[c.head] = p
			c.head = (c.head + 1) % len(c.ring)
			return
		}
		c.ring[(c.head+c.size)%len(c.ring)] = p
		c.size++
		return
	}

	if c.size == len(c.ring) {
		c.grow()
	}
	c.ring[(c.head+c.size)%len(c.ring)] = p
	c.size++
	c.expire(at)
}

// Points returns a copy of the retained points, oldest first. For a time
// channel, points older than the window relative to now are evicted first.
func (c *Channel) Points(now time.Time) []models.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy.Kind == KindTime {
		c.expire(now)
	}
	out := make([]models.Point, c.size)
	for i := range out {
		out[i] = c.at(i)
	}
	return out
}

// Len returns the number of retained points.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// at returns the i-th oldest point. Must be called with c.mu held.
func (c *Channel) at(i int) models.Point {
	return c.ring[(c.head+i)%len(c.ring)]
}

// expire pops points older than the window. Must be called with c.mu held.
func (c *Channel) expire(now time.Time) {
	for c.size > 0 && now.Sub(c.ring[c.head].At) > c.policy.Window {
		c.ring[c.head] = models.Point{}
		c.head = (c.head + 1) % len(c.ring)
		c.size--
	}
	if c.size == 0 {
		c.head = 0
	}
}

// grow doubles the ring, unwrapping it. Must be called with c.mu held.
func (c *Channel) grow() {
	next := make([]models.Point, len(c.ring)*2)
	for i := 0; i < c.size; i++ {
		next[i] = c.at(i)
	}
	c.ring = next
	c.head = 0
}
