// Package zerobounce provides a ZeroBounce email validation API client.
package zerobounce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.zerobounce.net/v2"

// Validation statuses returned by the API.
const (
	StatusValid     = "valid"
	StatusInvalid   = "invalid"
	StatusCatchAll  = "catch-all"
	StatusUnknown   = "unknown"
	StatusSpamtrap  = "spamtrap"
	StatusAbuse     = "abuse"
	StatusDoNotMail = "do_not_mail"
)

// Client validates email addresses against the ZeroBounce API.
type Client interface {
	Validate(ctx context.Context, email string) (*ValidateResponse, error)
}

// ValidateResponse is the response from GET /validate.
type ValidateResponse struct {
	Address    string `json:"address"`
	Status     string `json:"status"`
	SubStatus  string `json:"sub_status"`
	FreeEmail  bool   `json:"free_email"`
	MXFound    string `json:"mx_found"`
	Domain     string `json:"domain"`
	DidYouMean string `json:"did_you_mean"`
}

// Disposable reports whether the mailbox belongs to a throwaway domain.
func (r *ValidateResponse) Disposable() bool {
	return r.SubStatus == "disposable" || r.SubStatus == "toxic"
}

// RoleBased reports whether the address is a role account such as info@ or
// sales@ rather than a person.
func (r *ValidateResponse) RoleBased() bool {
	return r.SubStatus == "role_based" || r.SubStatus == "role_based_catch_all"
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles validations to rps requests per second. Zero or
// negative disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a ZeroBounce client. Validations are throttled to
// 5 req/s by default.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(5, 5),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Validate(ctx context.Context, email string) (*ValidateResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "zerobounce: rate limit wait")
		}
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("email", email)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/validate?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "zerobounce: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "zerobounce: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "zerobounce: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("zerobounce: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ValidateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "zerobounce: unmarshal response")
	}

	return &result, nil
}
