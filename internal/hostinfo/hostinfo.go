// Package hostinfo identifies the machine running the monitor so a session
// can be traced back to the operator console it ran on.
// Uses gopsutil for cross-platform host details.
package hostinfo

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/models"
)

// infoFunc is swapped in tests.
var infoFunc = host.InfoWithContext

// Collect gathers host details. It never fails: when gopsutil cannot read
// the host, it falls back to the hostname and runtime values.
func Collect(ctx context.Context, logger *zap.Logger) models.HostInfo {
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := infoFunc(ctx)
	if err != nil || info == nil {
		logger.Debug("Host info not available via gopsutil", zap.Error(err))
		return fallback()
	}

	out := models.HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelArch:      info.KernelArch,
	}
	if out.Hostname == "" {
		out.Hostname = fallback().Hostname
	}
	if out.OS == "" {
		out.OS = runtime.GOOS
	}
	return out
}

func fallback() models.HostInfo {
	hostname, _ := os.Hostname()
	return models.HostInfo{
		Hostname:   hostname,
		OS:         runtime.GOOS,
		KernelArch: runtime.GOARCH,
	}
}
