package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"natsume/internal/netinfo"
)

// Bind claims id for this device. A topology mismatch aborts unless
// skipCheck or SKIP_TOPOLOGY_CHECK is set, in which case it is only logged.
func (a *Agent) Bind(ctx context.Context, id string, skipCheck bool) error {
	logger := logr.FromContextOrDiscard(ctx)
	skip := skipCheck || a.cfg.SkipTopologyCheck

	observed, err := a.topology.Validate(ctx)
	switch {
	case err == nil:
		logger.Info("server sees this device at a local address", "ip", observed)
	case skip && errors.Is(err, netinfo.ErrTopologyMismatch):
		logger.Info("WARNING: server-observed address is not local, continuing because the topology check is skipped", "ip", observed)
	case skip:
		logger.Info("WARNING: topology check failed, continuing because it is skipped", "error", err.Error())
	default:
		return err
	}

	mac, err := a.localMAC(ctx)
	if err != nil {
		return err
	}
	logger.Info("binding device", "mac", mac, "id", id)

	if err := a.server.Bind(ctx, mac, id); err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", mac, id, err)
	}
	logger.Info("device bound", "mac", mac, "id", id)
	return nil
}
