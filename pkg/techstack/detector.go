// Package techstack detects website technologies by fetching a page and
// matching known HTML signatures. It is the free first hop of the enrichment
// waterfall, no API key required.
package techstack

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Detection is the set of technologies found on a site.
type Detection struct {
	Technologies []string `json:"technologies"`
	Categories   []string `json:"categories"`
	CMS          string   `json:"cms,omitempty"`
	Analytics    []string `json:"analytics,omitempty"`
}

// signature matches a technology by substrings in the page HTML or headers.
type signature struct {
	tech     string
	category string
	html     []string
	headers  map[string]string
}

var signatures = []signature{
	{tech: "WordPress", category: "cms", html: []string{"wp-content/", "wp-includes/"}},
	{tech: "Shopify", category: "cms", html: []string{"cdn.shopify.com", "shopify.theme"}},
	{tech: "Wix", category: "cms", html: []string{"wix.com", "wixstatic.com"}},
	{tech: "Squarespace", category: "cms", html: []string{"squarespace.com", "sqsp.net"}},
	{tech: "Webflow", category: "cms", html: []string{"webflow.com", "wf-page"}},
	{tech: "HubSpot", category: "marketing", html: []string{"js.hs-scripts.com", "hubspot.com"}},
	{tech: "Marketo", category: "marketing", html: []string{"munchkin.marketo.net"}},
	{tech: "Google Analytics", category: "analytics", html: []string{"google-analytics.com", "googletagmanager.com", "gtag("}},
	{tech: "Segment", category: "analytics", html: []string{"cdn.segment.com"}},
	{tech: "Mixpanel", category: "analytics", html: []string{"cdn.mxpnl.com"}},
	{tech: "React", category: "framework", html: []string{"data-reactroot", "__NEXT_DATA__", "react-dom"}},
	{tech: "Vue.js", category: "framework", html: []string{"data-v-app", "vue.runtime"}},
	{tech: "Angular", category: "framework", html: []string{"ng-version="}},
	{tech: "jQuery", category: "library", html: []string{"jquery.min.js", "jquery.js"}},
	{tech: "Cloudflare", category: "cdn", headers: map[string]string{"Server": "cloudflare"}},
	{tech: "Nginx", category: "server", headers: map[string]string{"Server": "nginx"}},
	{tech: "Apache", category: "server", headers: map[string]string{"Server": "apache"}},
	{tech: "Stripe", category: "payments", html: []string{"js.stripe.com"}},
	{tech: "Intercom", category: "support", html: []string{"widget.intercom.io"}},
	{tech: "Zendesk", category: "support", html: []string{"static.zdassets.com"}},
	{tech: "Salesforce", category: "crm", html: []string{"force.com", "salesforce.com/embeddedservice"}},
}

// maxBodyBytes caps how much HTML is read per page.
const maxBodyBytes = 512 * 1024

// Option configures the detector.
type Option func(*Detector)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Detector) {
		d.http = hc
	}
}

// Detector fetches a site's homepage and matches technology signatures.
type Detector struct {
	http *http.Client
}

// NewDetector creates a Detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect fetches the site at the given URL and returns matched technologies.
// The url must carry a scheme; use "https://" + domain for bare domains.
func (d *Detector) Detect(ctx context.Context, siteURL string) (*Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "techstack: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; leads-cli/1.0)")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "techstack: fetch site")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("techstack: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "techstack: read body")
	}

	return match(strings.ToLower(string(body)), resp.Header), nil
}

func match(html string, headers http.Header) *Detection {
	det := &Detection{}
	categories := map[string]bool{}

	for _, sig := range signatures {
		matched := false
		for _, frag := range sig.html {
			if strings.Contains(html, strings.ToLower(frag)) {
				matched = true
				break
			}
		}
		if !matched {
			for header, want := range sig.headers {
				if strings.Contains(strings.ToLower(headers.Get(header)), want) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}

		det.Technologies = append(det.Technologies, sig.tech)
		categories[sig.category] = true
		switch sig.category {
		case "cms":
			if det.CMS == "" {
				det.CMS = sig.tech
			}
		case "analytics":
			det.Analytics = append(det.Analytics, sig.tech)
		}
	}

	for c := range categories {
		det.Categories = append(det.Categories, c)
	}
	sort.Strings(det.Categories)
	return det
}
