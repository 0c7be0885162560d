// Package cache keeps computed reports in Redis so repeated dashboard loads do not
// rescan the tickets table.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-desk/internal/report"
)

const (
	keyPrefix  = "ticketdesk:report:"
	versionKey = keyPrefix + "version"
)

// ReportCache stores report.Result values keyed by the normalized query.
// Bumping the version orphans every existing entry; they expire through their TTL.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache returns a cache; a nil client or zero ttl disables it.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

func (c *ReportCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get returns the cached result for scope and q, or nil on a miss. The returned key
// is bound to the version observed now; pass it to Set so that a result computed
// across an Invalidate lands under the orphaned version. key is empty when the
// cache is disabled or unreachable.
func (c *ReportCache) Get(ctx context.Context, scope string, q report.Query) (*report.Result, string, error) {
	if !c.enabled() {
		return nil, "", nil
	}
	key, err := c.key(ctx, scope, q)
	if err != nil {
		return nil, "", err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, key, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("report cache get: %w", err)
	}
	var res report.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, key, fmt.Errorf("report cache decode: %w", err)
	}
	return &res, key, nil
}

// Set stores res under a key previously returned by Get.
func (c *ReportCache) Set(ctx context.Context, key string, res report.Result) error {
	if !c.enabled() || key == "" {
		return nil
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("report cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("report cache set: %w", err)
	}
	return nil
}

// Invalidate makes every cached report stale.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("report cache invalidate: %w", err)
	}
	return nil
}

func (c *ReportCache) key(ctx context.Context, scope string, q report.Query) (string, error) {
	version, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("report cache version: %w", err)
	}
	return keyPrefix + strconv.FormatInt(version, 10) + ":" + scope + ":" + QueryFingerprint(q), nil
}

type fingerprint struct {
	Start        string `json:"s,omitempty"`
	End          string `json:"e,omitempty"`
	Status       string `json:"st,omitempty"`
	Type         string `json:"t,omitempty"`
	Category     string `json:"c,omitempty"`
	AssignedUser string `json:"a,omitempty"`
	GroupBy      string `json:"g"`
}

// QueryFingerprint hashes the normalized query. Equivalent queries share a fingerprint.
func QueryFingerprint(q report.Query) string {
	q = q.Normalize()
	fp := fingerprint{GroupBy: string(q.GroupBy)}
	if q.StartDate != nil {
		fp.Start = q.StartDate.Format(time.RFC3339Nano)
	}
	if q.EndDate != nil {
		fp.End = q.EndDate.Format(time.RFC3339Nano)
	}
	if q.Status != nil {
		fp.Status = string(*q.Status)
	}
	if q.Type != nil {
		fp.Type = *q.Type
	}
	if q.Category != nil {
		fp.Category = *q.Category
	}
	if q.AssignedUser != nil {
		fp.AssignedUser = *q.AssignedUser
	}
	// json.Marshal of a flat struct of strings cannot fail.
	raw, _ := json.Marshal(fp)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}
