// Package client is a small Supabase client covering the PostgREST data API,
// RPC, auth, storage and realtime endpoints used by RenkoNet.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/renkonet/internal/httputil"
)

// TokenSource returns the signed-in user's access token, or "" when signed out.
type TokenSource func() string

// Client is a Supabase REST API client.
type Client struct {
	baseURL     string
	anonKey     string
	httpClient  *http.Client
	tokenSource TokenSource
}

// Config holds client configuration.
type Config struct {
	URL     string
	AnonKey string
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
	// TokenSource supplies the user token so row-level security applies.
	// When nil or empty the anon key is used as bearer token.
	TokenSource TokenSource
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("AnonKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		anonKey:     cfg.AnonKey,
		httpClient:  httpClient,
		tokenSource: cfg.TokenSource,
	}, nil
}

// SetTokenSource replaces the token source. The session gateway is built after
// the client, so the wiring happens late.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokenSource = ts
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// RPC (Stored Procedures)
// =============================================================================

// RPC calls a stored procedure.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setHeaders(req)
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a generic API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Count returns the total from a Content-Range header such as "0-9/42" or
// "*/0". It returns -1 when the server did not report a total.
func (r *Response) Count() int {
	cr := r.Headers.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(cr[idx+1:])
	if err != nil {
		return -1
	}
	return n
}

// Error returns an *APIError if the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode < 400 {
		return nil
	}
	apiErr := &APIError{StatusCode: r.StatusCode}
	var body struct {
		Code             any    `json:"code"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(r.Body, &body); err == nil {
		if body.Code != nil {
			apiErr.Code = fmt.Sprint(body.Code)
		}
		apiErr.Details = body.Details
		apiErr.Hint = body.Hint
		for _, m := range []string{body.Message, body.Msg, body.ErrorDescription, body.Error} {
			if m != "" {
				apiErr.Message = m
				break
			}
		}
	}
	return apiErr
}

// APIError is a non-2xx answer from any Supabase endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Hint       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("supabase error: status %d", e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase error: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("supabase error: %s", e.Message)
}

// IsNotFound reports a missing row for single-object requests.
// PostgREST answers 406 with code PGRST116 in that case.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == "PGRST116"
}

// IsConflict reports a unique or foreign key violation.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict || e.Code == "23505"
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) bearer() string {
	if c.tokenSource != nil {
		if tok := c.tokenSource(); tok != "" {
			return tok
		}
	}
	return c.anonKey
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

// do sends req and reads the body. Non-2xx answers return the response
// together with an *APIError.
func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllWithLimit(resp.Body, httputil.DefaultMaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}
	if err := out.Error(); err != nil {
		return out, err
	}
	return out, nil
}
