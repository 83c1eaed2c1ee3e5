// Package registry applies the binding, heartbeat and credential delivery
// policy on top of the identity and credential stores.
package registry

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"natsume/internal/api"
	"natsume/internal/config"
	"natsume/internal/database"
)

type Store interface {
	UpsertBinding(ctx context.Context, b *database.DeviceBinding, allowUpdate bool) (bool, error)
	TouchBinding(ctx context.Context, b *database.DeviceBinding, markSynced bool) (bool, error)
	DeleteBinding(ctx context.Context, mac string) error
	Lookup(ctx context.Context, mac string) (*database.DeviceBinding, *database.ContestantCredential, error)
	Status(ctx context.Context) (database.Counts, []database.StatusRow, error)
}

type Policy struct {
	EnableBind       bool
	EnableBindUpdate bool
	EnableSync       bool
}

func PolicyFromConfig(cfg *config.ServerConfig) Policy {
	return Policy{
		EnableBind:       cfg.EnableBind,
		EnableBindUpdate: cfg.EnableBindUpdate,
		EnableSync:       cfg.EnableSync,
	}
}

type Service struct {
	policy Policy
	store  Store
	clock  clock.PassiveClock
}

func NewService(policy Policy, store Store, clk clock.PassiveClock) *Service {
	return &Service{
		policy: policy,
		store:  store,
		clock:  clk,
	}
}

// BindInput is a validated bind call plus the caller address seen by the
// transport.
type BindInput struct {
	MAC           string
	ID            string
	ClientVersion string
	RemoteIP      string
}

// Bind creates the binding for an unseen address. An existing binding is
// overwritten only when rebinding is enabled; otherwise every bind call for it
// is rejected, even one claiming the identity already stored.
func (s *Service) Bind(ctx context.Context, in BindInput) error {
	logger := logr.FromContextOrDiscard(ctx).WithValues("mac", in.MAC, "id", in.ID, "ip", in.RemoteIP)

	if !s.policy.EnableBind {
		logger.Info("bind attempted while bind service is disabled, request logged")
		return ErrFeatureDisabled
	}

	created, err := s.store.UpsertBinding(ctx, &database.DeviceBinding{
		MAC:           in.MAC,
		ID:            in.ID,
		IP:            in.RemoteIP,
		ClientVersion: in.ClientVersion,
		LastSeen:      s.clock.Now(),
	}, s.policy.EnableBindUpdate)
	if errors.Is(err, database.ErrBindingExists) {
		logger.Info("rebind attempted while rebinding is disabled, possible MAC collision")
		return ErrRebindBlocked
	}
	if err != nil {
		logger.Error(err, "failed to write binding")
		return storageError("bind", err)
	}

	if created {
		logger.Info("bound device")
	} else {
		logger.Info("rebound device")
	}
	return nil
}

// Unbind removes the binding for mac.
func (s *Service) Unbind(ctx context.Context, mac string) error {
	logger := logr.FromContextOrDiscard(ctx).WithValues("mac", mac)

	err := s.store.DeleteBinding(ctx, mac)
	if errors.Is(err, database.ErrNotFound) {
		logger.Info("tried to remove unknown binding")
		return ErrNotFound
	}
	if err != nil {
		logger.Error(err, "failed to delete binding")
		return storageError("unbind", err)
	}
	logger.Info("unbound device")
	return nil
}

type ReportInput struct {
	MAC           string
	Synced        bool
	ClientVersion string
	RemoteIP      string
}

// Report records a heartbeat. It never fails on policy: unseen addresses are
// recorded under the UNKNOWN identity. Only a heartbeat can set the synced
// flag. The returned bool reports whether the address was unseen.
func (s *Service) Report(ctx context.Context, in ReportInput) (bool, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("mac", in.MAC, "ip", in.RemoteIP)

	created, err := s.store.TouchBinding(ctx, &database.DeviceBinding{
		MAC:           in.MAC,
		ID:            api.UnknownIdentity,
		IP:            in.RemoteIP,
		ClientVersion: in.ClientVersion,
		LastSeen:      s.clock.Now(),
	}, in.Synced)
	if err != nil {
		logger.Error(err, "failed to record heartbeat")
		return false, storageError("report", err)
	}

	if created {
		logger.Info("unbound device reporting, logged as unknown", "client_version", in.ClientVersion)
	}
	logger.V(1).Info("heartbeat received", "synced", in.Synced)
	return created, nil
}

// Sync returns the credential of the identity bound to mac. It has no side
// effects, so clients may retry it freely.
func (s *Service) Sync(ctx context.Context, mac string) (*api.SyncResponse, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("mac", mac)

	if !s.policy.EnableSync {
		logger.Info("sync attempted while sync service is disabled, request logged")
		return nil, ErrFeatureDisabled
	}

	binding, cred, err := s.store.Lookup(ctx, mac)
	if err != nil {
		logger.Error(err, "failed to look up binding")
		return nil, storageError("sync", err)
	}
	if binding == nil || binding.ID == api.UnknownIdentity {
		logger.Info("sync requested by unbound device")
		return nil, ErrUnbound
	}
	if cred == nil {
		logger.Error(ErrCredentialMissing, "credential provisioning is behind binding", "id", binding.ID)
		return nil, ErrCredentialMissing
	}

	logger.Info("delivered credentials", "id", binding.ID, "username", cred.Username)
	return &api.SyncResponse{
		Username: cred.Username,
		Password: cred.Password,
	}, nil
}

// Status aggregates both stores for operators.
func (s *Service) Status(ctx context.Context) (*api.StatusResponse, error) {
	counts, rows, err := s.store.Status(ctx)
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "failed to build status")
		return nil, storageError("status", err)
	}

	resp := &api.StatusResponse{
		BindCount:    counts.Bindings,
		InfoCount:    counts.Credentials,
		SyncCount:    counts.Synced,
		NotSyncCount: counts.Credentials - counts.Synced,
		Infos:        make([]api.StatusEntry, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Infos = append(resp.Infos, statusEntry(row))
	}
	return resp, nil
}
