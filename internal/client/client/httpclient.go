package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/common"
)

// envelope is the JSON body shape of every /api response.
type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// HTTPClient talks to the REST surface of the server.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu        sync.Mutex
	tokens    Tokens
	onRefresh func(Tokens)
}

var _ Transport = (*HTTPClient)(nil)

// NewHTTPClient returns a client for baseURL (e.g. http://127.0.0.1:8080).
// A nil hc gets a client with a 30s timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) SetTokens(t Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = t
}

func (c *HTTPClient) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *HTTPClient) OnTokensRefreshed(fn func(Tokens)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = fn
}

func (c *HTTPClient) Register(ctx context.Context, email, password, displayName, companyName string) error {
	body := map[string]string{
		"email": email, "password": password,
		"displayName": displayName, "companyName": companyName,
	}
	return c.do(ctx, http.MethodPost, "/api/auth/register", body, nil, false)
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*Session, error) {
	var resp struct {
		Tokens
		Session map[string]any `json:"session"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp, false); err != nil {
		return nil, err
	}

	sess := &Session{Tokens: resp.Tokens, Context: sessionFromMap(resp.Session)}
	c.SetTokens(sess.Tokens)
	return sess, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var s string
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &s, false); err != nil {
		return err
	}
	if s != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *HTTPClient) Create(ctx context.Context, collection string, rec *models.Record) (*models.Record, error) {
	var doc map[string]any
	if err := c.do(ctx, http.MethodPost, collectionPath(collection), rec.WireFields(), &doc, true); err != nil {
		return nil, err
	}

	created, err := models.RecordFromWire(doc)
	if err != nil {
		return nil, fmt.Errorf("decode created record: %w", err)
	}
	if created.ID == "" {
		return nil, errors.New("decode created record: server returned no id")
	}
	return created, nil
}

func (c *HTTPClient) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPut, recordPath(collection, id), fields, nil, true)
}

func (c *HTTPClient) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, recordPath(collection, id), nil, nil, true)
}

func (c *HTTPClient) List(ctx context.Context, collection string) ([]*models.Record, error) {
	var docs []map[string]any
	if err := c.do(ctx, http.MethodGet, collectionPath(collection), nil, &docs, true); err != nil {
		return nil, err
	}
	return recordsFromWire(docs)
}

func collectionPath(collection string) string {
	return "/api/" + url.PathEscape(collection)
}

func recordPath(collection, id string) string {
	return collectionPath(collection) + "/" + url.PathEscape(id)
}

// do sends one request, decoding the envelope's data into out. With auth
// set, an expired access token triggers one refresh and retry.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	current := c.Tokens()
	status, env, err := c.send(ctx, method, path, in, current.AccessToken, auth)
	if err != nil {
		return err
	}

	if auth && status == http.StatusUnauthorized && env.Error == common.ErrTokenExpired.Error() && current.RefreshToken != "" {
		fresh, err := c.refresh(ctx, current.RefreshToken)
		if err != nil {
			return err
		}
		status, env, err = c.send(ctx, method, path, in, fresh.AccessToken, auth)
		if err != nil {
			return err
		}
	}

	if err := mapHTTPStatus(status, env.Error); err != nil {
		return err
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var fresh Tokens
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", body, &fresh, false); err != nil {
		return Tokens{}, err
	}

	c.mu.Lock()
	c.tokens = fresh
	fn := c.onRefresh
	c.mu.Unlock()

	if fn != nil {
		fn(fresh)
	}
	return fresh, nil
}

func (c *HTTPClient) send(ctx context.Context, method, path string, in any, token string, auth bool) (int, envelope, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(map[string]any{"data": in})
		if err != nil {
			return 0, envelope{}, fmt.Errorf("%w: encode request: %w", ErrRejected, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return 0, envelope{}, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return 0, envelope{}, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, env, nil
}

func mapHTTPStatus(code int, msg string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
}
