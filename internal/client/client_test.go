package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natsume/internal/api"
	"natsume/internal/config"
	"natsume/internal/crypto"
)

const secret = "sync-secret"

func newClient(t *testing.T, url string, encrypted bool) *Client {
	t.Helper()
	c, err := New(&config.ClientConfig{
		ServerAddress:  url,
		SyncToken:      config.SecretOf(secret),
		SyncEncryption: encrypted,
		HTTPTimeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestWhoAmI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, api.PathIP, r.URL.Path)
		writeJSON(w, http.StatusOK, api.IPResponse{IP: "10.0.0.5"})
	}))
	defer srv.Close()

	ip, err := newClient(t, srv.URL, false).WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", ip)
}

func TestBindAndReportBodies(t *testing.T) {
	var gotBind api.BindRequest
	var gotReport api.ReportRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(api.TokenHeader))
		switch r.URL.Path {
		case api.PathBind:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBind))
		case api.PathReport:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReport))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, false)
	require.NoError(t, c.Bind(context.Background(), "aa:bb:cc:dd:ee:ff", "c1"))
	require.NoError(t, c.Report(context.Background(), "aa:bb:cc:dd:ee:ff", true))

	assert.Equal(t, "c1", gotBind.ID)
	assert.NotEmpty(t, gotBind.ClientVersion)
	assert.True(t, gotReport.Synced)
}

func TestSyncSendsDigest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !crypto.TokenMatches(r.Header.Get(api.TokenHeader), crypto.TokenDigest(secret)) {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Msg: "Unauthorized", Error: "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, api.SyncResponse{Username: "u1", Password: "p1"})
	}))
	defer srv.Close()

	creds, err := newClient(t, srv.URL, false).Sync(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, &api.SyncResponse{Username: "u1", Password: "p1"}, creds)
}

func TestSyncEncrypted(t *testing.T) {
	key, err := crypto.DeriveKey(secret)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		plaintext, _ := json.Marshal(api.SyncResponse{Username: "u1", Password: "p1"})
		payload, err := crypto.Encrypt(plaintext, key)
		require.NoError(t, err)
		writeJSON(w, http.StatusOK, api.EncryptedSyncResponse{Payload: payload})
	}))
	defer srv.Close()

	creds, err := newClient(t, srv.URL, true).Sync(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "u1", creds.Username)
	assert.Equal(t, "p1", creds.Password)
}

func TestResponseErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		code     int
		expected string
	}{
		{
			name: "json error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusForbidden, api.ErrorResponse{Msg: "Forbidden", Error: "rebind blocked"})
			},
			code:     http.StatusForbidden,
			expected: "server answered 403 Forbidden: rebind blocked",
		},
		{
			name: "plain body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down", http.StatusBadGateway)
			},
			code:     http.StatusBadGateway,
			expected: "server answered 502 Bad Gateway",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			err := newClient(t, srv.URL, false).Bind(context.Background(), "aa:bb:cc:dd:ee:ff", "c1")
			assert.True(t, IsStatus(err, tt.code))
			assert.EqualError(t, err, tt.expected)
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newClient(t, url, false).Report(context.Background(), "aa:bb:cc:dd:ee:ff", false)
	require.Error(t, err)
	assert.False(t, IsStatus(err, http.StatusNotFound))
}

func TestNewRequiresServerKeys(t *testing.T) {
	_, err := New(&config.ClientConfig{ServerAddress: "https://10.0.0.1"})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = New(&config.ClientConfig{SyncToken: config.SecretOf(secret)})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
