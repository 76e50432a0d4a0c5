//go:build !windows

// Package service is a pass-through on platforms without a service
// control manager; the monitor runs in the foreground.
package service

import (
	"context"

	"go.uber.org/zap"
)

// Name is the service name used on Windows.
const Name = "HelmetMon"

// Monitor runs the wrapped function directly.
type Monitor struct {
	logger *zap.Logger
	run    func(ctx context.Context) error
}

// New wraps run.
func New(logger *zap.Logger, run func(ctx context.Context) error) *Monitor {
	return &Monitor{logger: logger, run: run}
}

// IsWindowsService always returns false here.
func IsWindowsService() bool {
	return false
}

// Run calls the wrapped function with a background context.
func (m *Monitor) Run() error {
	return m.run(context.Background())
}
