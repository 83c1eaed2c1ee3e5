// Package client is the typed HTTP client the kiosk agents use to talk to the
// natsume server.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-logr/logr"

	"natsume/internal/api"
	"natsume/internal/config"
	"natsume/internal/crypto"
	"natsume/internal/version"
)

// ResponseError carries a non-200 answer from the server.
type ResponseError struct {
	StatusCode int
	Msg        string
	Detail     string
}

func (e *ResponseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server answered %d %s", e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("server answered %d %s: %s", e.StatusCode, e.Msg, e.Detail)
}

// IsStatus reports whether err is a ResponseError with the given code.
func IsStatus(err error, code int) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	syncToken  string
	syncKey    []byte
}

func New(cfg *config.ClientConfig) (*Client, error) {
	if err := cfg.RequireServer(); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		baseURL: cfg.ServerAddress,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.HTTPTimeout,
		},
		syncToken: cfg.SyncToken.Digest,
	}
	if cfg.SyncEncryption {
		key, err := crypto.DeriveKey(cfg.SyncToken.Plaintext())
		if err != nil {
			return nil, fmt.Errorf("failed to derive sync key: %w", err)
		}
		c.syncKey = key
	}
	return c, nil
}

// WhoAmI returns the address the server observes for this client.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	var resp api.IPResponse
	if err := c.do(ctx, http.MethodGet, api.PathIP, "", nil, &resp); err != nil {
		return "", err
	}
	return resp.IP, nil
}

func (c *Client) Bind(ctx context.Context, mac, id string) error {
	return c.do(ctx, http.MethodPost, api.PathBind, "", api.BindRequest{
		MAC:           mac,
		ID:            id,
		ClientVersion: version.Version,
	}, nil)
}

func (c *Client) Report(ctx context.Context, mac string, synced bool) error {
	return c.do(ctx, http.MethodPost, api.PathReport, "", api.ReportRequest{
		MAC:           mac,
		Synced:        synced,
		ClientVersion: version.Version,
	}, nil)
}

func (c *Client) Sync(ctx context.Context, mac string) (*api.SyncResponse, error) {
	req := api.SyncRequest{MAC: mac}

	if c.syncKey == nil {
		var resp api.SyncResponse
		if err := c.do(ctx, http.MethodPost, api.PathSync, c.syncToken, req, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	var envelope api.EncryptedSyncResponse
	if err := c.do(ctx, http.MethodPost, api.PathSync, c.syncToken, req, &envelope); err != nil {
		return nil, err
	}
	plaintext, err := crypto.Decrypt(envelope.Payload, c.syncKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt sync payload: %w", err)
	}
	var resp api.SyncResponse
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sync payload: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(api.TokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	logr.FromContextOrDiscard(ctx).V(1).Info("server responded",
		"method", method, "path", path, "code", resp.StatusCode,
		"requestID", resp.Header.Get(api.RequestIDHeader))

	if resp.StatusCode != http.StatusOK {
		respErr := &ResponseError{StatusCode: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}
		var errBody api.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errBody); err == nil {
			if errBody.Msg != "" {
				respErr.Msg = errBody.Msg
			}
			respErr.Detail = errBody.Error
		}
		return respErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
