// Package gliderapi fetches deployments, surfacings, sensor series and tracks
// from the glider REST API.
package gliderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	// BaseURL is the API root, e.g. https://marine.rutgers.edu/cool/data/gliders/api/.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// maxBody caps a single response; a long deployment's surfacings fit well
// under this.
const maxBody = 64 << 20

func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("gliderapi: base url is required")
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("gliderapi: base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "gliderkmz"
	}
	return &Client{base: base, http: hc, userAgent: ua}, nil
}

// get requests path?query relative to the base URL and decodes the JSON body
// into out. Numbers decode as json.Number.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	ref := &url.URL{Path: path}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	u := c.base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gliderapi: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gliderapi: GET %s: status %d", u, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("gliderapi: GET %s: decode: %w", u, err)
	}
	return nil
}
