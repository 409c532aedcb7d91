package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/redis"
)

const (
	reasonOnHold     = "Copies on hold/reserved"
	reasonAllLoaned  = "All copies are loaned"
	reasonNoneListed = "No copies available"
)

// Availability tells a reader whether a title can be borrowed right now.
type Availability struct {
	BookTitleID     uuid.UUID  `json:"book_title_id"`
	Available       bool       `json:"available"`
	TotalCopies     int64      `json:"total_copies"`
	AvailableCopies int64      `json:"available_copies"`
	LoanedCopies    int64      `json:"loaned_copies"`
	OnHoldCopies    int64      `json:"on_hold_copies"`
	Reason          string     `json:"reason,omitempty"`
	ExpectedDueDate *time.Time `json:"expected_due_date,omitempty"`
}

func unavailableReason(onHold, loaned int64) string {
	switch {
	case onHold > 0:
		return reasonOnHold
	case loaned > 0:
		return reasonAllLoaned
	default:
		return reasonNoneListed
	}
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(parts ...string) string
}

// AvailabilityCache keeps short-lived availability snapshots in Redis.
// Failures are logged and treated as misses.
type AvailabilityCache struct {
	store   cacheStore
	ttl     time.Duration
	logg    *logger.Logger
	metrics *metrics.CirculationMetrics
}

// NewAvailabilityCache returns nil when store is nil or ttl is not positive,
// which disables caching.
func NewAvailabilityCache(store cacheStore, ttl time.Duration, logg *logger.Logger, m *metrics.CirculationMetrics) *AvailabilityCache {
	if store == nil || ttl <= 0 {
		return nil
	}
	return &AvailabilityCache{store: store, ttl: ttl, logg: logg, metrics: m}
}

func (c *AvailabilityCache) key(titleID uuid.UUID) string {
	return c.store.CacheKey("availability", titleID.String())
}

// Get returns the cached snapshot, or false on a miss.
func (c *AvailabilityCache) Get(ctx context.Context, titleID uuid.UUID) (*Availability, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, c.key(titleID))
	if err != nil {
		if !redis.IsNil(err) {
			c.warn(ctx, titleID, "availability cache read failed", err)
			c.metrics.CacheLookup("error")
			return nil, false
		}
		c.metrics.CacheLookup("miss")
		return nil, false
	}
	var out Availability
	if err := jsoniter.ConfigFastest.UnmarshalFromString(raw, &out); err != nil {
		c.warn(ctx, titleID, "availability cache decode failed", err)
		c.metrics.CacheLookup("error")
		return nil, false
	}
	c.metrics.CacheLookup("hit")
	return &out, true
}

// Put stores a snapshot for the configured TTL.
func (c *AvailabilityCache) Put(ctx context.Context, availability *Availability) {
	if c == nil || availability == nil {
		return
	}
	payload, err := jsoniter.ConfigFastest.MarshalToString(availability)
	if err != nil {
		c.warn(ctx, availability.BookTitleID, "availability cache encode failed", err)
		return
	}
	if err := c.store.Set(ctx, c.key(availability.BookTitleID), payload, c.ttl); err != nil {
		c.warn(ctx, availability.BookTitleID, "availability cache write failed", err)
	}
}

// Invalidate drops the snapshot of a title.
func (c *AvailabilityCache) Invalidate(ctx context.Context, titleID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.store.Del(ctx, c.key(titleID)); err != nil {
		c.warn(ctx, titleID, "availability cache invalidation failed", err)
	}
}

func (c *AvailabilityCache) warn(ctx context.Context, titleID uuid.UUID, msg string, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithTitleID(ctx, titleID.String())
	ctx = c.logg.WithField(ctx, "error", err.Error())
	c.logg.Warn(ctx, msg)
}
