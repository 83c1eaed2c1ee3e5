package agent

import (
	"context"

	"github.com/go-logr/logr"
)

// Monitor reports a heartbeat immediately and then every MONITOR_INTERVAL
// until ctx is cancelled. A running report is never interrupted; failures
// are logged and retried on the next tick.
func (a *Agent) Monitor(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)
	logger.Info("monitor started", "interval", a.cfg.MonitorInterval)

	for {
		a.heartbeat(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			logger.Info("monitor stopped")
			return nil
		case <-a.clock.After(a.cfg.MonitorInterval):
		}
	}
}

func (a *Agent) heartbeat(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx)

	mac, err := a.localMAC(ctx)
	if err != nil {
		logger.Error(err, "heartbeat skipped")
		return
	}
	if err := a.server.Report(ctx, mac, false); err != nil {
		logger.Error(err, "failed to send heartbeat", "mac", mac)
		return
	}
	logger.V(1).Info("heartbeat sent", "mac", mac)
}
