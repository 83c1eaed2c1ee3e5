// Package agent holds the kiosk-side workflows: binding a device, applying
// synced credentials to the local reverse proxy, and the heartbeat loop.
package agent

import (
	"context"
	"fmt"

	"k8s.io/utils/clock"

	"natsume/internal/api"
	"natsume/internal/config"
	"natsume/internal/osexec"
)

type Server interface {
	Bind(ctx context.Context, mac, id string) error
	Report(ctx context.Context, mac string, synced bool) error
	Sync(ctx context.Context, mac string) (*api.SyncResponse, error)
}

type MACResolver interface {
	Resolve(ctx context.Context, target string) (string, error)
}

type TopologyValidator interface {
	Validate(ctx context.Context) (string, error)
}

type Deps struct {
	Server   Server
	Resolver MACResolver
	Topology TopologyValidator
	Runner   osexec.Runner
	Clock    clock.Clock
}

type Agent struct {
	cfg      *config.ClientConfig
	server   Server
	resolver MACResolver
	topology TopologyValidator
	runner   osexec.Runner
	clock    clock.Clock
}

func New(cfg *config.ClientConfig, deps Deps) *Agent {
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Agent{
		cfg:      cfg,
		server:   deps.Server,
		resolver: deps.Resolver,
		topology: deps.Topology,
		runner:   deps.Runner,
		clock:    clk,
	}
}

// localMAC resolves the hardware address facing the configured server.
func (a *Agent) localMAC(ctx context.Context) (string, error) {
	mac, err := a.resolver.Resolve(ctx, a.cfg.ServerHost())
	if err != nil {
		return "", fmt.Errorf("failed to resolve local hardware address: %w", err)
	}
	return mac, nil
}
