package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTStore speaks the Realtime Database REST protocol: every node is
// addressable as <base>/<path>.json. It works against a hosted database and
// against yoga-remote.
type RESTStore struct {
	BaseURL   string
	AuthToken string
	HTTP      *http.Client
	keys      *KeyGenerator
}

// NewRESTStore creates a REST client for baseURL
func NewRESTStore(baseURL, authToken string) *RESTStore {
	return &RESTStore{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AuthToken: authToken,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		keys:      NewKeyGenerator(),
	}
}

// restError is the error body returned by the database ({"error": "..."})
type restError struct {
	Message string `json:"error"`
}

// NewKey implements Store. Keys are generated client side the same way the
// hosted SDKs do, so no placeholder node is written.
func (s *RESTStore) NewKey(ctx context.Context, collection string) (string, error) {
	if !ValidCollection(collection) {
		return "", fmt.Errorf("remote: unknown collection %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.keys.Next(), nil
}

// Set implements Store
func (s *RESTStore) Set(ctx context.Context, collection, key string, record any) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}
	return s.do(ctx, http.MethodPut, collection+"/"+key, nil, record, nil)
}

// Remove implements Store
func (s *RESTStore) Remove(ctx context.Context, collection, key string) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}
	return s.do(ctx, http.MethodDelete, collection+"/"+key, nil, nil, nil)
}

// GetAll implements Store
func (s *RESTStore) GetAll(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("remote: unknown collection %q", collection)
	}
	var nodes map[string]json.RawMessage
	if err := s.do(ctx, http.MethodGet, collection, nil, nil, &nodes); err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = make(map[string]json.RawMessage)
	}
	return nodes, nil
}

// Get implements Store
func (s *RESTStore) Get(ctx context.Context, collection, key string, v any) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}
	var raw json.RawMessage
	if err := s.do(ctx, http.MethodGet, collection+"/"+key, nil, nil, &raw); err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return nil
}

// Ping implements Store with a shallow read of the courses node
func (s *RESTStore) Ping(ctx context.Context) error {
	q := url.Values{"shallow": {"true"}}
	return s.do(ctx, http.MethodGet, Courses, q, nil, nil)
}

func (s *RESTStore) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	if query == nil {
		query = url.Values{}
	}
	if s.AuthToken != "" {
		query.Set("auth", s.AuthToken)
	}
	u := s.BaseURL + "/" + path + ".json"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if isUnreachable(err) {
			return fmt.Errorf("%w: %v", ErrOffline, err)
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(respBody))
		var apiErr restError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		default:
			return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, msg)
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// isUnreachable reports connection-level failures (refused, DNS, timeout)
func isUnreachable(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var netErr net.Error
	return errors.As(err, &opErr) || errors.As(err, &dnsErr) || (errors.As(err, &netErr) && netErr.Timeout())
}
