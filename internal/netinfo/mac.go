// Package netinfo answers the client's questions about its own network
// identity: which hardware address faces the server, and whether the server
// sees the client's real address.
package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-logr/logr"

	"natsume/internal/api"
	"natsume/internal/osexec"
)

var (
	// ErrInvalidTarget is returned for loopback targets, which would resolve
	// to the loopback interface rather than a real NIC.
	ErrInvalidTarget = errors.New("invalid resolution target")
	// ErrResolution is retryable: interfaces can be transiently down.
	ErrResolution = errors.New("hardware address resolution failed")
)

type MACResolver struct {
	runner osexec.Runner
	lookup func(ctx context.Context, host string) ([]string, error)
}

func NewMACResolver(runner osexec.Runner) *MACResolver {
	return &MACResolver{
		runner: runner,
		lookup: net.DefaultResolver.LookupHost,
	}
}

// Resolve returns the hardware address of the interface the kernel would use
// to reach target, in canonical form.
func (r *MACResolver) Resolve(ctx context.Context, target string) (string, error) {
	ip, err := r.targetIP(ctx, target)
	if err != nil {
		return "", err
	}

	route, err := r.runner.Run(ctx, osexec.Command{Name: "ip", Args: []string{"route", "get", ip.String()}})
	if err != nil {
		return "", fmt.Errorf("%w: route lookup for %s: %w", ErrResolution, ip, err)
	}
	dev := fieldAfter(route.Stdout, "dev")
	if dev == "" {
		return "", fmt.Errorf("%w: no outbound interface towards %s", ErrResolution, ip)
	}

	link, err := r.runner.Run(ctx, osexec.Command{Name: "ip", Args: []string{"-o", "link", "show", "dev", dev}})
	if err != nil {
		return "", fmt.Errorf("%w: link lookup for %s: %w", ErrResolution, dev, err)
	}
	raw := fieldAfter(link.Stdout, "link/ether")
	if raw == "" {
		return "", fmt.Errorf("%w: interface %s has no hardware address", ErrResolution, dev)
	}
	mac, err := api.NormalizeMAC(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrResolution, err)
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("resolved hardware address", "target", ip.String(), "dev", dev, "mac", mac)
	return mac, nil
}

func (r *MACResolver) targetIP(ctx context.Context, target string) (net.IP, error) {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(target)), ".")
	if host == "" {
		return nil, fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: %s is a loopback name", ErrInvalidTarget, target)
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if ip.IsLoopback() {
			return nil, fmt.Errorf("%w: %s is a loopback address", ErrInvalidTarget, target)
		}
		return ip, nil
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrResolution, host, err)
	}
	var chosen net.IP
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() {
			return nil, fmt.Errorf("%w: %s resolves to loopback %s", ErrInvalidTarget, target, ip)
		}
		if chosen == nil || (chosen.To4() == nil && ip.To4() != nil) {
			chosen = ip
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: %s has no addresses", ErrResolution, host)
	}
	return chosen, nil
}

// fieldAfter returns the whitespace-separated token following key.
func fieldAfter(output, key string) string {
	fields := strings.Fields(output)
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == key {
			return fields[i+1]
		}
	}
	return ""
}
