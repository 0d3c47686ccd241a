package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cvcreator-backend/internal/shared/storage/object"
)

const defaultMaxObjectBytes = 25 << 20

// Options configures a remote object store.
type Options struct {
	// BaseURL is the storage API root, e.g. https://project.supabase.co/storage/v1.
	BaseURL string
	Bucket  string
	// ServiceKey is sent as a bearer token and as the apikey header.
	ServiceKey string
	// Upsert writes with PUT + x-upsert so existing objects are replaced in place.
	// When false, writes use POST and the store reports CanOverwrite() == false.
	Upsert bool
	// MaxObjectBytes bounds how much of a GET response is read into memory.
	MaxObjectBytes int64
}

// Store implements object.Store against an HTTP object storage API.
// All calls share the injected *http.Client; timeouts belong to that client.
type Store struct {
	client  *http.Client
	baseURL string
	opts    Options
}

// New creates a remote object store using the shared client.
func New(client *http.Client, opts Options) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("remote store base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse remote store base url: %w", err)
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("remote store bucket is required")
	}
	if opts.MaxObjectBytes <= 0 {
		opts.MaxObjectBytes = defaultMaxObjectBytes
	}
	return &Store{client: client, baseURL: base, opts: opts}, nil
}

// Put uploads data. With upsert enabled the object is replaced if it exists.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	endpoint, err := s.objectURL("object", key)
	if err != nil {
		return err
	}
	method := http.MethodPost
	if s.opts.Upsert {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if s.opts.Upsert {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if !isSuccess(resp.StatusCode) {
		return s.statusError("put", key, resp)
	}
	return nil
}

// Get downloads an object, bounded by MaxObjectBytes.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	endpoint, err := s.objectURL("object", key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build get request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if !isSuccess(resp.StatusCode) {
		return nil, s.statusError("get", key, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("remote get key=%s: read body: %w: %w", key, object.ErrUnavailable, err)
	}
	if int64(len(data)) > s.opts.MaxObjectBytes {
		return nil, fmt.Errorf("remote get key=%s: object exceeds %d bytes: %w", key, s.opts.MaxObjectBytes, object.ErrUnavailable)
	}
	return data, nil
}

// Delete removes an object. A 404 from the API counts as success.
func (s *Store) Delete(ctx context.Context, key string) error {
	endpoint, err := s.objectURL("object", key)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if isSuccess(resp.StatusCode) {
		return nil
	}
	statusErr := s.statusError("delete", key, resp)
	if errors.Is(statusErr, object.ErrNotFound) {
		return nil
	}
	return statusErr
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL asks the API for a time-boxed URL. Relative URLs are prefixed with the base URL.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	endpoint, err := s.objectURL("object/sign", key)
	if err != nil {
		return "", err
	}
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		seconds = 60
	}
	payload, err := json.Marshal(signRequest{ExpiresIn: seconds})
	if err != nil {
		return "", fmt.Errorf("encode sign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if !isSuccess(resp.StatusCode) {
		return "", s.statusError("sign", key, resp)
	}

	var out signResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("remote sign key=%s: decode response: %w: %w", key, object.ErrUnavailable, err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("remote sign key=%s: empty signed url: %w", key, object.ErrUnavailable)
	}
	return s.absoluteURL(out.SignedURL), nil
}

// CanOverwrite reports whether writes use the upsert path.
func (s *Store) CanOverwrite() bool { return s.opts.Upsert }

func (s *Store) do(req *http.Request) (*http.Response, error) {
	if s.opts.ServiceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.ServiceKey)
		req.Header.Set("apikey", s.opts.ServiceKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("remote %s %s: %w: %w", req.Method, req.URL.Path, object.ErrUnavailable, err)
	}
	return resp, nil
}

func (s *Store) objectURL(prefix, key string) (string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	segments := strings.Split(clean, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + prefix + "/" + url.PathEscape(s.opts.Bucket) + "/" + strings.Join(segments, "/"), nil
}

func (s *Store) absoluteURL(signed string) string {
	if strings.HasPrefix(signed, "http://") || strings.HasPrefix(signed, "https://") {
		return signed
	}
	return s.baseURL + "/" + strings.TrimLeft(signed, "/")
}

type apiError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// statusError maps a non-2xx response. Some storage APIs answer a missing object with
// HTTP 400 and a JSON body carrying statusCode "404"; both forms map to ErrNotFound.
func (s *Store) statusError(op, key string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	if resp.StatusCode == http.StatusNotFound || apiErr.StatusCode == strconv.Itoa(http.StatusNotFound) {
		return fmt.Errorf("remote %s key=%s: %w", op, key, object.ErrNotFound)
	}
	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return fmt.Errorf("remote %s key=%s: status %d: %s: %w", op, key, resp.StatusCode, msg, object.ErrUnavailable)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

var _ object.Store = (*Store)(nil)
