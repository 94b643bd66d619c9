// Package kgraph provides a Google Knowledge Graph Search API client.
package kgraph

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://kgsearch.googleapis.com"

// Client searches the Google Knowledge Graph.
type Client interface {
	SearchEntity(ctx context.Context, query string) (*Entity, error)
}

// Entity is a Knowledge Graph organization result.
type Entity struct {
	Name        string   `json:"name"`
	Types       []string `json:"types"`
	Description string   `json:"description"`
	Detail      string   `json:"detail"`
	URL         string   `json:"url"`
}

type searchResponse struct {
	ItemListElement []struct {
		Result struct {
			Name                string   `json:"name"`
			Types               []string `json:"@type"`
			Description         string   `json:"description"`
			URL                 string   `json:"url"`
			DetailedDescription struct {
				ArticleBody string `json:"articleBody"`
			} `json:"detailedDescription"`
		} `json:"result"`
		ResultScore float64 `json:"resultScore"`
	} `json:"itemListElement"`
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

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Knowledge Graph Search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
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

// SearchEntity returns the best organization match for the query, or nil when
// the graph has no matching entity.
func (c *httpClient) SearchEntity(ctx context.Context, query string) (*Entity, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("key", c.apiKey)
	params.Set("limit", strconv.Itoa(3))
	params.Add("types", "Organization")
	params.Add("types", "Corporation")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/entities:search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "kgraph: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "kgraph: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "kgraph: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("kgraph: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "kgraph: unmarshal response")
	}

	if len(result.ItemListElement) == 0 {
		return nil, nil
	}

	best := result.ItemListElement[0].Result
	return &Entity{
		Name:        best.Name,
		Types:       best.Types,
		Description: best.Description,
		Detail:      best.DetailedDescription.ArticleBody,
		URL:         best.URL,
	}, nil
}
