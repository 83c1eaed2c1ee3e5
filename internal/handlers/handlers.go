package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-logr/logr"

	"natsume/internal/api"
	"natsume/internal/config"
	"natsume/internal/crypto"
	"natsume/internal/metrics"
	"natsume/internal/registry"
)

type Registry interface {
	Bind(ctx context.Context, in registry.BindInput) error
	Unbind(ctx context.Context, mac string) error
	Report(ctx context.Context, in registry.ReportInput) (bool, error)
	Sync(ctx context.Context, mac string) (*api.SyncResponse, error)
	Status(ctx context.Context) (*api.StatusResponse, error)
}

type Handler struct {
	cfg      *config.ServerConfig
	registry Registry
	metrics  *metrics.Metrics
	syncKey  []byte
}

// NewHandler wires the HTTP surface. m may be nil when metrics are disabled.
func NewHandler(cfg *config.ServerConfig, reg Registry, m *metrics.Metrics) (*Handler, error) {
	h := &Handler{
		cfg:      cfg,
		registry: reg,
		metrics:  m,
	}
	if cfg.SyncEncryption {
		key, err := crypto.DeriveKey(cfg.SyncToken.Plaintext())
		if err != nil {
			return nil, fmt.Errorf("failed to derive sync key: %w", err)
		}
		h.syncKey = key
	}
	return h, nil
}

func (h *Handler) IPHandler(w http.ResponseWriter, r *http.Request) {
	ip := h.getClientIP(r)
	logr.FromContextOrDiscard(r.Context()).Info("address requested its IP", "ip", ip)
	writeJSON(w, http.StatusOK, api.IPResponse{IP: ip})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:  "healthy",
		Service: "natsume",
	})
}

func (h *Handler) BindHandler(w http.ResponseWriter, r *http.Request) {
	var req api.BindRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.registry.Bind(r.Context(), registry.BindInput{
		MAC:           req.MAC,
		ID:            req.ID,
		ClientVersion: req.ClientVersion,
		RemoteIP:      h.getClientIP(r),
	})
	h.metrics.Outcome("bind", outcome(err))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UnbindHandler(w http.ResponseWriter, r *http.Request) {
	var req api.UnbindRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.registry.Unbind(r.Context(), req.MAC)
	h.metrics.Outcome("unbind", outcome(err))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	var req api.ReportRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	created, err := h.registry.Report(r.Context(), registry.ReportInput{
		MAC:           req.MAC,
		Synced:        req.Synced,
		ClientVersion: req.ClientVersion,
		RemoteIP:      h.getClientIP(r),
	})
	switch {
	case err != nil:
		h.metrics.Outcome("report", outcome(err))
		writeRegistryError(w, err)
		return
	case created:
		h.metrics.Outcome("report", "unknown_device")
	case req.Synced:
		h.metrics.Outcome("report", "synced")
	default:
		h.metrics.Outcome("report", "ok")
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	var req api.SyncRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.registry.Sync(r.Context(), req.MAC)
	h.metrics.Outcome("sync", outcome(err))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	if h.syncKey == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	plaintext, err := json.Marshal(resp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to serialize credentials")
		return
	}
	payload, err := crypto.Encrypt(plaintext, h.syncKey)
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "failed to encrypt sync payload")
		writeError(w, http.StatusInternalServerError, "failed to encrypt credentials")
		return
	}
	writeJSON(w, http.StatusOK, api.EncryptedSyncResponse{Payload: payload})
}

func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.registry.Status(r.Context())
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// getClientIP honours forwarding headers only when the server is configured to
// sit behind a trusted proxy; otherwise the TCP peer is authoritative, which
// the client's topology check relies on.
func (h *Handler) getClientIP(r *http.Request) string {
	if h.cfg.TrustProxyHeaders {
		forwarded := r.Header.Get("X-Forwarded-For")
		if forwarded != "" {
			ips := strings.Split(forwarded, ",")
			if len(ips) > 0 {
				ip := strings.TrimSpace(ips[0])
				if net.ParseIP(ip) != nil {
					return ip
				}
			}
		}

		realIP := r.Header.Get("X-Real-IP")
		if realIP != "" {
			if net.ParseIP(realIP) != nil {
				return realIP
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
