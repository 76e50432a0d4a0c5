//go:build windows

// Package service runs the monitor under the Windows service control
// manager, for unattended stations that only forward alerts and serve
// the view API.
package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

// Name is the SCM service name.
const Name = "HelmetMon"

// Monitor adapts a run function to svc.Handler.
type Monitor struct {
	logger *zap.Logger
	run    func(ctx context.Context) error
	err    error
}

// New wraps run. run must return once its context is cancelled.
func New(logger *zap.Logger, run func(ctx context.Context) error) *Monitor {
	return &Monitor{logger: logger, run: run}
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	ok, err := svc.IsWindowsService()
	return err == nil && ok
}

// Run enters the SCM control loop and returns the run function's error.
func (m *Monitor) Run() error {
	if err := svc.Run(Name, m); err != nil {
		return err
	}
	return m.err
}

// Execute implements svc.Handler.
func (m *Monitor) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.run(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	m.logger.Info("Windows service started", zap.String("service", Name))

	for {
		select {
		case err := <-done:
			// run exited on its own; report failure through the exit code.
			m.err = err
			if err != nil {
				return true, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				m.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				m.err = <-done
				return false, 0
			default:
				m.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}
