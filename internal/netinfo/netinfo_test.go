package netinfo

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natsume/internal/osexec"
)

const (
	routeOutput = "10.0.0.1 dev enp3s0 src 10.0.0.5 uid 0 \n    cache \n"
	linkOutput  = "2: enp3s0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc fq_codel state UP mode DEFAULT group default qlen 1000\\    link/ether AA:BB:CC:DD:EE:FF brd ff:ff:ff:ff:ff:ff\n"
)

func TestResolve(t *testing.T) {
	fake := osexec.NewFake().
		On("ip route get 10.0.0.1", osexec.Response{Result: osexec.Result{Stdout: routeOutput}}).
		On("ip -o link show dev enp3s0", osexec.Response{Result: osexec.Result{Stdout: linkOutput}})

	mac, err := NewMACResolver(fake).Resolve(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac)
}

func TestResolveHostname(t *testing.T) {
	fake := osexec.NewFake().
		On("ip route get 10.0.0.1", osexec.Response{Result: osexec.Result{Stdout: routeOutput}}).
		On("ip -o link show dev enp3s0", osexec.Response{Result: osexec.Result{Stdout: linkOutput}})
	r := NewMACResolver(fake)
	r.lookup = func(context.Context, string) ([]string, error) {
		return []string{"fd00::1", "10.0.0.1"}, nil
	}

	mac, err := r.Resolve(context.Background(), "natsume.contest.lan")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac)
}

func TestResolveLoopbackRunsNothing(t *testing.T) {
	for _, target := range []string{"localhost", "LOCALHOST.", "app.localhost", "127.0.0.1", "127.8.9.10", "::1", "[::1]"} {
		t.Run(target, func(t *testing.T) {
			fake := osexec.NewFake()
			r := NewMACResolver(fake)
			r.lookup = func(context.Context, string) ([]string, error) {
				t.Fatal("loopback targets must not be resolved")
				return nil, nil
			}

			_, err := r.Resolve(context.Background(), target)
			assert.ErrorIs(t, err, ErrInvalidTarget)
			assert.Empty(t, fake.Calls())
		})
	}
}

func TestResolveHostnamePointingAtLoopback(t *testing.T) {
	fake := osexec.NewFake()
	r := NewMACResolver(fake)
	r.lookup = func(context.Context, string) ([]string, error) {
		return []string{"127.0.1.1"}, nil
	}

	_, err := r.Resolve(context.Background(), "kiosk")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Empty(t, fake.Calls())
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name string
		fake *osexec.Fake
	}{
		{
			name: "route command fails",
			fake: osexec.NewFake().Fail("ip route get 10.0.0.1", 2, "RTNETLINK answers: Network is unreachable"),
		},
		{
			name: "no dev in route",
			fake: osexec.NewFake().On("ip route get 10.0.0.1", osexec.Response{Result: osexec.Result{Stdout: "unreachable"}}),
		},
		{
			name: "interface without ether",
			fake: osexec.NewFake().
				On("ip route get 10.0.0.1", osexec.Response{Result: osexec.Result{Stdout: routeOutput}}).
				On("ip -o link show dev enp3s0", osexec.Response{Result: osexec.Result{Stdout: "2: enp3s0: <NO-CARRIER> link/none"}}),
		},
		{
			name: "link command fails",
			fake: osexec.NewFake().
				On("ip route get 10.0.0.1", osexec.Response{Result: osexec.Result{Stdout: routeOutput}}).
				Fail("ip -o link show dev enp3s0", 1, "Device does not exist"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMACResolver(tt.fake).Resolve(context.Background(), "10.0.0.1")
			assert.ErrorIs(t, err, ErrResolution)
		})
	}
}

type fakeReporter struct {
	ip  string
	err error
}

func (f fakeReporter) WhoAmI(context.Context) (string, error) { return f.ip, f.err }

func localAddrs() ([]net.Addr, error) {
	return []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("10.0.0.5"), Mask: net.CIDRMask(24, 32)},
	}, nil
}

func TestTopologyValidator(t *testing.T) {
	tests := []struct {
		name     string
		reporter fakeReporter
		check    func(t *testing.T, err error)
	}{
		{
			name:     "match",
			reporter: fakeReporter{ip: "10.0.0.5"},
			check:    func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:     "nat",
			reporter: fakeReporter{ip: "203.0.113.7"},
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrTopologyMismatch) },
		},
		{
			name:     "server unreachable",
			reporter: fakeReporter{err: errors.New("connection refused")},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrTopologyMismatch)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewTopologyValidator(tt.reporter)
			v.localAddrs = localAddrs
			_, err := v.Validate(context.Background())
			tt.check(t, err)
		})
	}
}
