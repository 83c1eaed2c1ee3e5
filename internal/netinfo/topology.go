package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-logr/logr"
)

// ErrTopologyMismatch means the server observed an address that is not
// configured on any local interface, typically because of NAT.
var ErrTopologyMismatch = errors.New("server-observed address is not local")

type AddressReporter interface {
	WhoAmI(ctx context.Context) (string, error)
}

type TopologyValidator struct {
	reporter   AddressReporter
	localAddrs func() ([]net.Addr, error)
}

func NewTopologyValidator(reporter AddressReporter) *TopologyValidator {
	return &TopologyValidator{
		reporter:   reporter,
		localAddrs: net.InterfaceAddrs,
	}
}

// Validate returns the server-observed address, and ErrTopologyMismatch when
// it is not one of ours.
func (v *TopologyValidator) Validate(ctx context.Context) (string, error) {
	observed, err := v.reporter.WhoAmI(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch server-observed address: %w", err)
	}
	observedIP := net.ParseIP(observed)
	if observedIP == nil {
		return observed, fmt.Errorf("server returned malformed address %q", observed)
	}

	addrs, err := v.localAddrs()
	if err != nil {
		return observed, fmt.Errorf("failed to list local addresses: %w", err)
	}
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		}
		if ip != nil && ip.Equal(observedIP) {
			logr.FromContextOrDiscard(ctx).V(1).Info("server-observed address is local", "ip", observed)
			return observed, nil
		}
	}
	return observed, fmt.Errorf("%w: %s", ErrTopologyMismatch, observed)
}
