// Package verifier provides a client for the subscriber verification API,
// which reports the live connection status and plan of a broadband account.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// Client verifies a single subscriber account.
type Client interface {
	Verify(ctx context.Context, username, networkAddress string) (*Response, error)
}

// Request is the body for POST /verificar.
type Request struct {
	Username string `json:"username"`
	BNGIP    string `json:"bng_ip"`
}

// Response is the verification result. Both fields are optional; a nil
// Status means the account could not be verified.
type Response struct {
	Status *string `json:"status,omitempty"`
	Plan   *string `json:"plan,omitempty"`
	Plano  *string `json:"plano,omitempty"` // legacy field name still returned by production
}

// PlanName returns the plan, preferring "plan" over the legacy "plano".
func (r *Response) PlanName() (string, bool) {
	if r == nil {
		return "", false
	}
	if r.Plan != nil {
		return *r.Plan, true
	}
	if r.Plano != nil {
		return *r.Plano, true
	}
	return "", false
}

// Option configures the client.
type Option func(*httpClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit paces requests to at most perSecond. Zero disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	url     string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a verification client for the given endpoint URL.
func NewClient(url, token string, opts ...Option) Client {
	c := &httpClient{
		url:   url,
		token: token,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Verify makes a single attempt; callers decide what a failure means.
func (c *httpClient) Verify(ctx context.Context, username, networkAddress string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "verifier: rate limiter wait")
		}
	}

	body, err := json.Marshal(Request{Username: username, BNGIP: networkAddress})
	if err != nil {
		return nil, eris.Wrap(err, "verifier: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "verifier: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("verifier: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "verifier: unmarshal response")
	}

	return &result, nil
}
