// Package hasura provides a client for the delinquency GraphQL API served by Hasura.
package hasura

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultSchema  = "mk01"
	defaultTimeout = 30 * time.Second
	secretHeader   = "x-hasura-admin-secret"
)

// Client fetches delinquent accounts per aging bucket.
type Client interface {
	// Delinquents returns the accounts overdue for the given number of days.
	// An empty slice with a nil error means the bucket genuinely has no rows.
	Delinquents(ctx context.Context, days int) ([]Delinquent, error)
}

// Delinquent is one row of an inadimplentes_<n>dias view.
type Delinquent struct {
	ContractCode      Code   `json:"codcontrato"`
	ConnectionBlocked Flag   `json:"conexao_bloqueada"`
	IsReduced         Flag   `json:"esta_reduzida"`
	NetworkAddress    string `json:"ip_comunicacao"`
	CustomerName      string `json:"nome_razaosocial"`
	ResellerName      string `json:"nome_revenda"`
	Username          string `json:"username"`
}

// Code is an opaque identifier that the API may return as a number or a string.
type Code string

// UnmarshalJSON accepts quoted and bare JSON values.
func (c *Code) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	*c = Code(b)
	return nil
}

// Flag is a boolean that tolerates the "S"/"N" and 0/1 encodings used by the
// billing database alongside plain JSON booleans.
type Flag bool

// UnmarshalJSON decodes true/false, 1/0, "S"/"N", "true"/"false" and null.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "1", "s", "y", "t":
		*f = true
	case "false", "0", "n", "f", "", "null":
		*f = false
	default:
		return eris.Errorf("hasura: invalid boolean %s", string(b))
	}
	return nil
}

// Option configures the client.
type Option func(*httpClient)

// WithSchema overrides the query root field (default "mk01").
func WithSchema(schema string) Option {
	return func(c *httpClient) {
		c.schema = schema
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	url         string
	adminSecret string
	schema      string
	http        *http.Client
}

// NewClient creates a Hasura GraphQL client for the given endpoint.
func NewClient(url, adminSecret string, opts ...Option) Client {
	c := &httpClient{
		url:         url,
		adminSecret: adminSecret,
		schema:      defaultSchema,
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

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   map[string]map[string][]Delinquent `json:"data"`
	Errors []graphQLError                     `json:"errors"`
}

// viewName returns the Hasura view holding accounts overdue for days.
func viewName(days int) string {
	return fmt.Sprintf("inadimplentes_%ddias", days)
}

func buildQuery(schema string, days int) string {
	return fmt.Sprintf(`query Delinquents {
  %s {
    %s {
      codcontrato
      conexao_bloqueada
      esta_reduzida
      ip_comunicacao
      nome_razaosocial
      nome_revenda
      username
    }
  }
}`, schema, viewName(days))
}

func (c *httpClient) Delinquents(ctx context.Context, days int) ([]Delinquent, error) {
	body, err := json.Marshal(graphQLRequest{Query: buildQuery(c.schema, days)})
	if err != nil {
		return nil, eris.Wrap(err, "hasura: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "hasura: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminSecret != "" {
		req.Header.Set(secretHeader, c.adminSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hasura: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hasura: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("hasura: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result graphQLResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "hasura: unmarshal response")
	}

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, eris.Errorf("hasura: query %s failed: %s", viewName(days), strings.Join(msgs, "; "))
	}

	root, ok := result.Data[c.schema]
	if !ok {
		return nil, eris.Errorf("hasura: response missing %q", c.schema)
	}
	rows, ok := root[viewName(days)]
	if !ok {
		return nil, eris.Errorf("hasura: response missing %q", c.schema+"."+viewName(days))
	}
	if rows == nil {
		rows = []Delinquent{}
	}

	return rows, nil
}
