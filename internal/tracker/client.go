package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const issuePageSize = 100

type Config struct {
	// Domain is the tracker base domain; a space resolves to
	// https://{spaceId}.{domain}.
	Domain  string
	Timeout time.Duration
	// RatePerSec caps outbound API requests across all accounts.
	RatePerSec int
}

// Query carries the credentials and filter for one issue listing.
// Settings come from either the store or unsaved user input; the client
// does not care which.
type Query struct {
	SpaceID   string
	APIKey    string
	ProjectID string
	// UpdatedSince is the date portion (YYYY-MM-DD) of the caller's
	// watermark. The tracker filters by calendar date only; finer
	// filtering happens caller-side against the full watermark.
	UpdatedSince string
}

// Client performs the read-only issue queries. Safe for concurrent use;
// all accounts share one rate limiter.
type Client struct {
	http    *http.Client
	log     zerolog.Logger
	limiter *rate.Limiter

	mu     sync.RWMutex
	domain string
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		domain:  cfg.Domain,
	}
}

// Apply updates the hot-reloadable parts of the client config.
func (c *Client) Apply(cfg Config) {
	if cfg.RatePerSec > 0 {
		c.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
		c.limiter.SetBurst(cfg.RatePerSec)
	}
	if strings.TrimSpace(cfg.Domain) != "" {
		c.mu.Lock()
		c.domain = cfg.Domain
		c.mu.Unlock()
	}
}

// ListUpdated fetches one page of issues sorted by update recency.
// Any transport, status, or decode problem is returned as an error;
// the caller decides whether that is silent (scheduled fetch) or
// surfaced (connection test).
func (c *Client) ListUpdated(ctx context.Context, q Query) ([]Issue, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.IssuesURL(q.SpaceID) + "?" + encodeQuery(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tracker: unexpected status %d", resp.StatusCode)
	}

	var issues []Issue
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("tracker: decode response: %w", err)
	}
	return issues, nil
}

// IssuesURL returns the issue listing endpoint for a space.
func (c *Client) IssuesURL(spaceID string) string {
	c.mu.RLock()
	domain := c.domain
	c.mu.RUnlock()
	return fmt.Sprintf("https://%s.%s/api/v2/issues", spaceID, domain)
}

// ViewURL returns the externally openable page for one issue.
func (c *Client) ViewURL(spaceID, issueKey string) string {
	c.mu.RLock()
	domain := c.domain
	c.mu.RUnlock()
	return fmt.Sprintf("https://%s.%s/view/%s", spaceID, domain, issueKey)
}

// encodeQuery builds the query string by hand: the tracker receives the
// project filter first when present, then apiKey, updatedSince, sort,
// count. url.Values would sort the keys.
func encodeQuery(q Query) string {
	params := []string{
		"apiKey=" + url.QueryEscape(q.APIKey),
		"updatedSince=" + url.QueryEscape(q.UpdatedSince),
		"sort=updated",
		fmt.Sprintf("count=%d", issuePageSize),
	}
	if strings.TrimSpace(q.ProjectID) != "" {
		params = append([]string{"projectId[]=" + url.QueryEscape(q.ProjectID)}, params...)
	}
	return strings.Join(params, "&")
}
