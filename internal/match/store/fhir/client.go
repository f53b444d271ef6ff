// Package fhir implements the record store adapter against a FHIR-flavored
// HTTP store: searchset responses, batch upsert bundles and $meta-delete.
// An optional redis read-through cache fronts record fetches; mutation paths
// request noCache reads and commits invalidate affected keys.
package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"linkage/internal/match/bundle"
	"linkage/internal/match/models"
	platformredis "linkage/internal/platform/redis"
	dErrors "linkage/pkg/domain-errors"
)

// Client talks to the external record store.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *platformredis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithCache enables the redis read-through cache. A nil client leaves
// caching disabled.
func WithCache(cache *platformredis.Client, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a record store client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchSet struct {
	Total int `json:"total"`
	Entry []struct {
		Resource *models.Record `json:"resource"`
	} `json:"entry"`
}

// GetRecord fetches one record by reference.
func (c *Client) GetRecord(ctx context.Context, ref models.Ref) (*models.Record, error) {
	if cached := c.cacheGet(ctx, ref); cached != nil {
		return cached, nil
	}
	var rec models.Record
	status, err := c.get(ctx, "/"+ref.Type+"/"+ref.ID, &rec)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s not found", ref)
	}
	c.cachePut(ctx, &rec)
	return &rec, nil
}

// FindByIDs fetches records by `_id` search.
func (c *Client) FindByIDs(ctx context.Context, recordType string, ids []string, noCache bool) ([]*models.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []*models.Record
	missing := ids
	if !noCache && c.cache != nil {
		out, missing = c.cacheGetMany(ctx, recordType, ids)
	}
	if len(missing) == 0 {
		return out, nil
	}

	query := url.Values{"_id": []string{strings.Join(missing, ",")}}
	var set searchSet
	status, err := c.get(ctx, "/"+recordType+"?"+query.Encode(), &set)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "record store search returned status %d", status)
	}
	for _, e := range set.Entry {
		if e.Resource == nil {
			continue
		}
		out = append(out, e.Resource)
		if !noCache {
			c.cachePut(ctx, e.Resource)
		}
	}
	return out, nil
}

// CountByTag counts records carrying the tag via a summary search.
func (c *Client) CountByTag(ctx context.Context, recordType string, tag models.Tag) (int, error) {
	query := url.Values{
		"_tag":     []string{tag.System + "|" + tag.Code},
		"_summary": []string{"count"},
	}
	var set searchSet
	status, err := c.get(ctx, "/"+recordType+"?"+query.Encode(), &set)
	if err != nil {
		return 0, err
	}
	if status < 200 || status > 299 {
		return 0, dErrors.Newf(dErrors.CodeUnavailable, "record store count returned status %d", status)
	}
	return set.Total, nil
}

// FindByTag fetches records carrying the tag.
func (c *Client) FindByTag(ctx context.Context, recordType string, tag models.Tag) ([]*models.Record, error) {
	query := url.Values{"_tag": []string{tag.System + "|" + tag.Code}}
	var set searchSet
	status, err := c.get(ctx, "/"+recordType+"?"+query.Encode(), &set)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "record store search returned status %d", status)
	}
	out := make([]*models.Record, 0, len(set.Entry))
	for _, e := range set.Entry {
		if e.Resource != nil {
			out = append(out, e.Resource)
		}
	}
	return out, nil
}

type batchEntry struct {
	Resource bundle.Resource `json:"resource"`
	Request  struct {
		Method string `json:"method"`
		URL    string `json:"url"`
	} `json:"request"`
}

type batchBundle struct {
	ResourceType string       `json:"resourceType"`
	Type         string       `json:"type"`
	Entry        []batchEntry `json:"entry"`
}

// CommitBatch posts the bundle as one batch request and invalidates cached
// copies of every record it touches.
func (c *Client) CommitBatch(ctx context.Context, b *bundle.Bundle) error {
	if b.Len() == 0 {
		return nil
	}
	wire := batchBundle{ResourceType: "Bundle", Type: "batch"}
	for _, e := range b.Entries {
		entry := batchEntry{Resource: e.Resource}
		entry.Request.Method = e.Method
		entry.Request.URL = e.URL
		wire.Entry = append(wire.Entry, entry)
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal batch bundle: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "record store batch commit failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dErrors.Newf(dErrors.CodeInternal, "record store batch commit returned status %d", resp.StatusCode)
	}

	for _, e := range b.Entries {
		c.cacheInvalidate(ctx, e.Resource.ResourceRef())
	}
	return nil
}

// DeleteTag removes a tag via the store's $meta-delete operation.
func (c *Client) DeleteTag(ctx context.Context, ref models.Ref, tag models.Tag) error {
	params := map[string]any{
		"resourceType": "Parameters",
		"parameter": []map[string]any{{
			"name":      "meta",
			"valueMeta": map[string]any{"tag": tag},
		}},
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal meta-delete parameters: %w", err)
	}
	u := c.baseURL + "/" + ref.Type + "/" + ref.ID + "/$meta-delete"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "tag delete failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dErrors.Newf(dErrors.CodeInternal, "tag delete returned status %d", resp.StatusCode)
	}
	c.cacheInvalidate(ctx, ref)
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "record store unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, dErrors.Newf(dErrors.CodeUnavailable, "record store returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode record store response: %w", err)
	}
	return resp.StatusCode, nil
}

func cacheKey(ref models.Ref) string {
	return "linkage:record:" + ref.String()
}

func (c *Client) cacheGet(ctx context.Context, ref models.Ref) *models.Record {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, cacheKey(ref)).Bytes()
	if err != nil {
		return nil
	}
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	return &rec
}

func (c *Client) cacheGetMany(ctx context.Context, recordType string, ids []string) (hits []*models.Record, missing []string) {
	for _, id := range ids {
		if rec := c.cacheGet(ctx, models.Ref{Type: recordType, ID: id}); rec != nil {
			hits = append(hits, rec)
			continue
		}
		missing = append(missing, id)
	}
	return hits, missing
}

func (c *Client) cachePut(ctx context.Context, rec *models.Record) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(rec.Ref()), data, c.cacheTTL).Err(); err != nil {
		c.logger.WarnContext(ctx, "record cache write failed", "record", rec.Ref().String(), "error", err)
	}
}

func (c *Client) cacheInvalidate(ctx context.Context, ref models.Ref) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Del(ctx, cacheKey(ref)).Err(); err != nil {
		c.logger.WarnContext(ctx, "record cache invalidation failed", "record", ref.String(), "error", err)
	}
}
