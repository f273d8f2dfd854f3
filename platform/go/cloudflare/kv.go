package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// KVClient reads and writes values in a Workers KV namespace. Values are
// opaque byte payloads; TTLs below the KV minimum (60s) are rejected by the
// provider, so callers should clamp.
type KVClient struct {
	httpClient  *http.Client
	baseURL     string
	creds       Credentials
	namespaceID string
}

// KVClientConfig captures the knobs required to build a KVClient.
type KVClientConfig struct {
	Credentials Credentials
	NamespaceID string
	HTTPClient  *http.Client
	BaseURL     string
}

// NewKVClient validates configuration eagerly and returns a ready client.
func NewKVClient(cfg KVClientConfig) (*KVClient, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	if cfg.NamespaceID == "" {
		return nil, fmt.Errorf("kv namespace id is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &KVClient{httpClient: httpClient, baseURL: baseURL, creds: cfg.Credentials, namespaceID: cfg.NamespaceID}, nil
}

// ErrKeyNotFound is returned by Get when the key does not exist or has expired.
var ErrKeyNotFound = fmt.Errorf("kv key not found")

// Get returns the raw value stored under key.
func (c *KVClient) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.valueURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("build kv get request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	// Value reads return the payload directly, not the v4 envelope.
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrKeyNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyFailure("kv get", resp.StatusCode, decodeEnvelopeErrors(resp.Body))
	}

	value, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read kv value: %w", err)
	}
	return value, nil
}

// Put stores value under key, optionally expiring after ttl (zero keeps forever).
func (c *KVClient) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	target := c.valueURL(key)
	if ttl > 0 {
		target += "?expiration_ttl=" + strconv.FormatInt(int64(ttl.Seconds()), 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(value))
	if err != nil {
		return fmt.Errorf("build kv put request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyFailure("kv put", resp.StatusCode, decodeEnvelopeErrors(resp.Body))
	}
	return nil
}

// Delete removes key; deleting a missing key is a no-op.
func (c *KVClient) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.valueURL(key), nil)
	if err != nil {
		return fmt.Errorf("build kv delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyFailure("kv delete", resp.StatusCode, decodeEnvelopeErrors(resp.Body))
	}
	return nil
}

func (c *KVClient) valueURL(key string) string {
	return c.baseURL + "/accounts/" + url.PathEscape(c.creds.AccountID) +
		"/storage/kv/namespaces/" + url.PathEscape(c.namespaceID) +
		"/values/" + url.PathEscape(key)
}

func decodeEnvelopeErrors(r io.Reader) []APIMessage {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil
	}
	return env.Errors
}
