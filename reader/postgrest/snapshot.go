// Package postgrest implements the snapshot source: one-shot queries for
// active deals within a covering geohash region, against a PostgREST-style
// deals endpoint.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dealspulse/config"
	"dealspulse/logger"
	"dealspulse/models"
)

// Client fetches deal snapshots over REST. It does not retry: a failed fetch
// surfaces to the reconciler, which keeps the last known good feed.
type Client struct {
	config  *config.Config
	client  *http.Client
	baseURL string
	anonKey string
	log     *logger.Log
	now     func() time.Time
}

func NewClient(cfg *config.Config) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		config:  cfg,
		baseURL: strings.TrimRight(cfg.Source.Postgrest.URL, "/"),
		anonKey: cfg.Source.Postgrest.AnonKey,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Source.Postgrest.Timeout,
		},
		log: log,
		now: time.Now,
	}

	log.WithComponent("snapshot_client").WithFields(logger.Fields{
		"url":     c.baseURL,
		"timeout": cfg.Source.Postgrest.Timeout,
		"limit":   cfg.Source.Postgrest.Limit,
	}).Info("snapshot client initialized")

	return c
}

// FetchActive returns active, unexpired deals whose geohash falls under any
// of the covering prefixes, optionally narrowed to one category. The server
// applies the coarse prefix filter; exact radius admission stays with the
// reconciler.
func (c *Client) FetchActive(ctx context.Context, prefixes []string, category *models.DealCategory) ([]models.Deal, error) {
	endpoint := c.baseURL + "/rest/v1/deals"

	query := url.Values{}
	query.Set("select", "*,vendor_profile:profiles!deals_vendor_id_fkey(*)")
	query.Set("status", "eq."+string(models.StatusActive))
	query.Set("expires_at", "gt."+c.now().UTC().Format(time.RFC3339))
	query.Set("order", "expires_at.asc")
	query.Set("limit", strconv.Itoa(c.config.Source.Postgrest.Limit))

	if len(prefixes) > 0 {
		clauses := make([]string, 0, len(prefixes))
		for _, p := range prefixes {
			clauses = append(clauses, "geohash.like."+p+"*")
		}
		query.Set("or", "("+strings.Join(clauses, ",")+")")
	}

	if category != nil {
		query.Set("category", "eq."+string(*category))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("snapshot request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var deals []models.Deal
	if err := json.NewDecoder(resp.Body).Decode(&deals); err != nil {
		return nil, fmt.Errorf("decode snapshot response: %w", err)
	}

	for i := range deals {
		deals[i].Category = models.ParseCategory(string(deals[i].Category))
	}

	c.log.WithComponent("snapshot_client").WithFields(logger.Fields{
		"deals":       len(deals),
		"prefixes":    len(prefixes),
		"duration_ms": float64(time.Since(started).Nanoseconds()) / 1e6,
	}).Debug("snapshot fetched")

	return deals, nil
}
