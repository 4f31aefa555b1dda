// Package systemd reports service state to systemd through sd_notify. Every
// call is a no-op outside a Type=notify unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "popengine/pkg/logx"
)

func notify(state string) bool {
	ok, _ := daemon.SdNotify(false, state)
	return ok
}

// Ready reports whether the notification was delivered.
func Ready() bool { return notify(daemon.SdNotifyReady) }

func Reloading() bool { return notify(daemon.SdNotifyReloading) }

func Stopping() bool { return notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(msg string) bool { return notify("STATUS=" + msg) }

// Watchdog pings the service manager at half the configured WatchdogSec
// until ctx ends. It returns immediately when the watchdog is off.
func Watchdog(ctx context.Context, log logx.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	every := interval / 2
	log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			notify(daemon.SdNotifyWatchdog)
		}
	}
}
