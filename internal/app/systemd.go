package app

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "voicefront/pkg/logx"
)

// notifier reports service state to the init system.
type notifier interface {
	ready(log logx.Logger) bool
	reloading(log logx.Logger) bool
	stopping(log logx.Logger) bool
	watchdog(log logx.Logger)
	// watchdogInterval is the ping period, or 0 when no watchdog is configured.
	watchdogInterval(log logx.Logger) time.Duration
}

// systemdNotifier speaks sd_notify. Outside systemd (no NOTIFY_SOCKET) every
// call is a no-op.
type systemdNotifier struct{}

func sdNotify(log logx.Logger, state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

func (systemdNotifier) ready(log logx.Logger) bool {
	return sdNotify(log, daemon.SdNotifyReady)
}

func (systemdNotifier) reloading(log logx.Logger) bool {
	return sdNotify(log, daemon.SdNotifyReloading)
}

func (systemdNotifier) stopping(log logx.Logger) bool {
	return sdNotify(log, daemon.SdNotifyStopping)
}

func (systemdNotifier) watchdog(log logx.Logger) {
	sdNotify(log, daemon.SdNotifyWatchdog)
}

func (systemdNotifier) watchdogInterval(log logx.Logger) time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config invalid", logx.Err(err))
		return 0
	}
	// Ping at half the timeout.
	return d / 2
}
