package agent

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"natsume/internal/fsutil"
	"natsume/internal/osexec"
)

// Sync pulls this device's credentials and deploys them into the reverse
// proxy. Every step must succeed before the next runs; the configuration
// file is only replaced once the new content is complete.
func (a *Agent) Sync(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)
	service := a.cfg.ReverseProxyService

	if _, err := osexec.Step(ctx, a.runner, "check reverse proxy", osexec.Command{
		Name: "systemctl",
		Args: []string{"is-active", "--quiet", service},
	}); err != nil {
		return fmt.Errorf("reverse proxy %s is not active: %w", service, err)
	}

	mac, err := a.localMAC(ctx)
	if err != nil {
		return err
	}

	creds, err := a.server.Sync(ctx, mac)
	if err != nil {
		return fmt.Errorf("failed to fetch credentials for %s: %w", mac, err)
	}
	logger.Info("credentials fetched", "mac", mac, "username", creds.Username)

	rendered, err := renderProxyConfig(proxyConfig{
		Listen:    a.cfg.ReverseProxyListen,
		LoginPath: a.cfg.LoginPath,
		Upstream:  a.cfg.UpstreamApplicationAddress,
		Username:  creds.Username,
		Password:  creds.Password,
	})
	if err != nil {
		return err
	}

	if err := fsutil.ReplaceFile(a.cfg.ReverseProxyConfigPath, rendered, 0o640); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.cfg.ReverseProxyConfigPath, err)
	}
	logger.Info("reverse proxy configuration written", "path", a.cfg.ReverseProxyConfigPath)

	if _, err := osexec.Step(ctx, a.runner, "reload reverse proxy", osexec.Command{
		Name: "systemctl",
		Args: []string{"reload", service},
	}); err != nil {
		return err
	}
	logger.Info("reverse proxy reloaded", "service", service)

	if err := a.server.Report(ctx, mac, true); err != nil {
		return fmt.Errorf("credentials applied but sync confirmation failed: %w", err)
	}
	logger.Info("sync confirmed", "mac", mac)
	return nil
}
