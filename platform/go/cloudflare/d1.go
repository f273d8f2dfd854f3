package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the Cloudflare v4 API root.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// D1Client issues create/delete/query requests for D1 database resources.
// It does not retry internally; callers own their retry policy.
type D1Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
}

// D1ClientConfig captures the knobs required to build a D1Client.
type D1ClientConfig struct {
	Credentials Credentials
	// HTTPClient overrides the default client (30s timeout) when set.
	HTTPClient *http.Client
	// BaseURL overrides the API root; used by tests.
	BaseURL string
}

// NewD1Client validates credentials eagerly and returns a ready client.
func NewD1Client(cfg D1ClientConfig) (*D1Client, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &D1Client{httpClient: httpClient, baseURL: baseURL, creds: cfg.Credentials}, nil
}

// envelope is the Cloudflare v4 response wrapper.
type envelope struct {
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
	Errors  []APIMessage    `json:"errors"`
}

type databaseResult struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// QueryResult holds the rows and metadata of a single executed statement.
type QueryResult struct {
	Results []map[string]any `json:"results"`
	Success bool             `json:"success"`
	Meta    QueryMeta        `json:"meta"`
}

// QueryMeta carries the write counters reported by D1.
type QueryMeta struct {
	Changes     int64 `json:"changes"`
	LastRowID   int64 `json:"last_row_id"`
	RowsRead    int64 `json:"rows_read"`
	RowsWritten int64 `json:"rows_written"`
}

// CreateDatabase requests creation of a uniquely named database resource and
// returns the opaque resource id assigned by the provider.
func (c *D1Client) CreateDatabase(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("database name is required")
	}

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", fmt.Errorf("encode create payload: %w", err)
	}

	env, err := c.do(ctx, http.MethodPost, c.databasesPath(), body, "create database")
	if err != nil {
		return "", err
	}

	var res databaseResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return "", fmt.Errorf("decode create result: %w", err)
	}
	if res.UUID == "" {
		return "", &APIError{StatusCode: http.StatusOK, Operation: "create database", Errors: []APIMessage{{Message: "response missing database uuid"}}}
	}

	return res.UUID, nil
}

// DeleteDatabase requests deletion of the database resource by id.
func (c *D1Client) DeleteDatabase(ctx context.Context, databaseID string) error {
	if databaseID == "" {
		return fmt.Errorf("database id is required")
	}

	_, err := c.do(ctx, http.MethodDelete, c.databasesPath()+"/"+url.PathEscape(databaseID), nil, "delete database")
	return err
}

// Query executes one SQL statement against the database resource and returns
// its rows. Statements are never batched; the schema initializer relies on
// one-call-per-statement ordering.
func (c *D1Client) Query(ctx context.Context, databaseID, sql string, params ...any) (*QueryResult, error) {
	if databaseID == "" {
		return nil, fmt.Errorf("database id is required")
	}
	if sql == "" {
		return nil, fmt.Errorf("sql is required")
	}

	payload := map[string]any{"sql": sql}
	if len(params) > 0 {
		payload["params"] = params
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode query payload: %w", err)
	}

	env, err := c.do(ctx, http.MethodPost, c.databasesPath()+"/"+url.PathEscape(databaseID)+"/query", body, "query")
	if err != nil {
		return nil, err
	}

	// D1 wraps each statement's outcome in an array even for a single statement.
	var results []QueryResult
	if err := json.Unmarshal(env.Result, &results); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	if len(results) == 0 {
		return &QueryResult{Success: true}, nil
	}

	return &results[0], nil
}

// Exec runs a single statement and discards the rows. Satisfies the schema
// initializer's executor contract.
func (c *D1Client) Exec(ctx context.Context, databaseID, sql string) error {
	_, err := c.Query(ctx, databaseID, sql)
	return err
}

func (c *D1Client) databasesPath() string {
	return c.baseURL + "/accounts/" + url.PathEscape(c.creds.AccountID) + "/d1/database"
}

func (c *D1Client) do(ctx context.Context, method, urlStr string, body []byte, operation string) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode %s response (status %d): %w", operation, resp.StatusCode, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return nil, classifyFailure(operation, resp.StatusCode, env.Errors)
	}

	return &env, nil
}
