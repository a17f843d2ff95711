// Package sdnotify reports service state to systemd when the process runs
// as a Type=notify unit. Outside systemd every call is a no-op.
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "linkwatch/pkg/logx"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

func send(log logx.Logger, state string) bool {
	ok, err := notify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

// Ready reports READY=1 with a status line.
func Ready(log logx.Logger, status string) bool {
	return send(log, daemon.SdNotifyReady+"\nSTATUS="+status)
}

// Stopping reports STOPPING=1.
func Stopping(log logx.Logger) bool {
	return send(log, daemon.SdNotifyStopping)
}

// Status updates the unit's free-form status line.
func Status(log logx.Logger, status string) bool {
	return send(log, "STATUS="+status)
}

// Watchdog pings WATCHDOG=1 at half the configured interval until ctx ends.
// It returns immediately when the unit has no WatchdogSec.
func Watchdog(ctx context.Context, log logx.Logger) {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("watchdog interval unreadable", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			send(log, daemon.SdNotifyWatchdog)
		}
	}
}
