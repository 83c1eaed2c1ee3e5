// Package api holds the wire types shared by the server and the client agent.
package api

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	PathIP      = "/ip"
	PathHealth  = "/health"
	PathBind    = "/bind"
	PathUnbind  = "/unbind"
	PathReport  = "/report"
	PathSync    = "/sync"
	PathStatus  = "/status"
	PathMetrics = "/metrics"

	// TokenHeader carries the digest of a shared secret.
	TokenHeader     = "token"
	RequestIDHeader = "X-Request-ID"

	// UnknownIdentity is recorded for hardware addresses seen by heartbeat
	// before any bind call.
	UnknownIdentity = "UNKNOWN"
)

var ErrInvalidMAC = errors.New("invalid hardware address")

// NormalizeMAC parses a hardware address and returns its canonical
// lower-case, colon separated form.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return hw.String(), nil
}

type IPResponse struct {
	IP string `json:"ip"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type BindRequest struct {
	MAC           string `json:"mac"`
	ID            string `json:"id"`
	ClientVersion string `json:"client_version,omitempty"`
}

func (r *BindRequest) Validate() error {
	mac, err := NormalizeMAC(r.MAC)
	if err != nil {
		return err
	}
	r.MAC = mac
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.ID == UnknownIdentity {
		return fmt.Errorf("id %q is reserved", UnknownIdentity)
	}
	return nil
}

type UnbindRequest struct {
	MAC string `json:"mac"`
}

func (r *UnbindRequest) Validate() error {
	mac, err := NormalizeMAC(r.MAC)
	if err != nil {
		return err
	}
	r.MAC = mac
	return nil
}

type ReportRequest struct {
	MAC           string `json:"mac"`
	Synced        bool   `json:"synced"`
	ClientVersion string `json:"client_version,omitempty"`
}

func (r *ReportRequest) Validate() error {
	mac, err := NormalizeMAC(r.MAC)
	if err != nil {
		return err
	}
	r.MAC = mac
	return nil
}

type SyncRequest struct {
	MAC string `json:"mac"`
}

func (r *SyncRequest) Validate() error {
	mac, err := NormalizeMAC(r.MAC)
	if err != nil {
		return err
	}
	r.MAC = mac
	return nil
}

type SyncResponse struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// EncryptedSyncResponse replaces SyncResponse when payload encryption is on.
// Payload is base64(nonce || AES-GCM(SyncResponse JSON)).
type EncryptedSyncResponse struct {
	Payload string `json:"payload"`
}

type StatusEntry struct {
	MAC           *string    `json:"mac"`
	ID            string     `json:"id"`
	IP            *string    `json:"ip"`
	ClientVersion *string    `json:"client_version"`
	LastSeen      *time.Time `json:"last_seen"`
	Username      *string    `json:"username"`
	Password      *string    `json:"password"`
	Synced        *bool      `json:"synced"`
}

type StatusResponse struct {
	BindCount    int64         `json:"bind_count"`
	InfoCount    int64         `json:"info_count"`
	SyncCount    int64         `json:"sync_count"`
	NotSyncCount int64         `json:"notsync_count"`
	Infos        []StatusEntry `json:"infos"`
}

// ErrorResponse is the body of every non-2xx server response.
type ErrorResponse struct {
	Msg   string `json:"msg"`
	Error string `json:"error"`
}
