package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"natsume/internal/api"
	"natsume/internal/registry"
)

const maxBodyBytes = 64 << 10

type validator interface {
	Validate() error
}

// decodeRequest reads and validates a JSON body, answering 400 itself on
// failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, req validator) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, diagnostic string) {
	writeJSON(w, status, api.ErrorResponse{
		Msg:   http.StatusText(status),
		Error: diagnostic,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrFeatureDisabled),
		errors.Is(err, registry.ErrRebindBlocked),
		errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrUnbound):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeRegistryError never exposes the wrapped storage detail; the services
// have already logged it.
func writeRegistryError(w http.ResponseWriter, err error) {
	diagnostic := "internal error"
	for _, sentinel := range []error{
		registry.ErrFeatureDisabled,
		registry.ErrRebindBlocked,
		registry.ErrNotFound,
		registry.ErrUnbound,
		registry.ErrCredentialMissing,
		registry.ErrStorage,
	} {
		if errors.Is(err, sentinel) {
			diagnostic = sentinel.Error()
			break
		}
	}
	writeError(w, statusFor(err), diagnostic)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, registry.ErrFeatureDisabled):
		return "feature_disabled"
	case errors.Is(err, registry.ErrRebindBlocked):
		return "rebind_blocked"
	case errors.Is(err, registry.ErrNotFound):
		return "not_found"
	case errors.Is(err, registry.ErrUnbound):
		return "unbound"
	case errors.Is(err, registry.ErrCredentialMissing):
		return "credential_missing"
	default:
		return "storage_error"
	}
}
