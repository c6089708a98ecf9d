package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/cache"
	"github.com/charlesng35/cmsconsole/internal/models"
	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/logger"
	"github.com/charlesng35/cmsconsole/pkg/metrics"
)

const (
	defaultUnreadCacheTTL = 30 * time.Second
	// generationTTL must outlive every cached value so a reader never sees a
	// value whose generation has already been dropped.
	generationTTL = 7 * 24 * time.Hour
)

// UnreadCounter derives the unread notification count for a recipient. When a cache
// store is configured, counts are cached per generation and every mutation rotates
// the generation before returning.
type UnreadCounter struct {
	db    *gorm.DB
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewUnreadCounter constructs a counter. A nil store disables caching.
func NewUnreadCounter(db *gorm.DB, store cache.Store, ttl time.Duration) (*UnreadCounter, error) {
	if db == nil {
		return nil, errors.New("unread counter: db is required")
	}
	if ttl <= 0 {
		ttl = defaultUnreadCacheTTL
	}
	if ttl >= generationTTL {
		ttl = generationTTL / 2
	}
	return &UnreadCounter{
		db:    db,
		store: store,
		ttl:   ttl,
		log:   logger.WithModule("unread-counter"),
	}, nil
}

// Cached reports whether a cache store backs the counter.
func (c *UnreadCounter) Cached() bool {
	return c != nil && c.store != nil
}

// Count returns the number of unread notifications for recipientID.
func (c *UnreadCounter) Count(ctx context.Context, recipientID string) (int64, error) {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, apperrors.NewValidation("recipientId is required")
	}

	if c.store == nil {
		metrics.UnreadCacheLookups.WithLabelValues("disabled").Inc()
		return c.countFromDB(ctx, recipientID)
	}

	// The generation is read before the database so a count computed ahead of a
	// concurrent commit can only land under a generation that is already stale.
	generation, ok, err := c.store.Get(ctx, generationKey(recipientID))
	if err != nil {
		metrics.UnreadCacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("unread cache generation lookup failed", zap.String("recipient", recipientID), zap.Error(err))
		return c.countFromDB(ctx, recipientID)
	}
	if !ok {
		metrics.UnreadCacheLookups.WithLabelValues("miss").Inc()
		return c.countFromDB(ctx, recipientID)
	}

	valueKey := countKey(recipientID, string(generation))
	if raw, hit, err := c.store.Get(ctx, valueKey); err != nil {
		metrics.UnreadCacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("unread cache lookup failed", zap.String("recipient", recipientID), zap.Error(err))
		return c.countFromDB(ctx, recipientID)
	} else if hit {
		if count, convErr := strconv.ParseInt(string(raw), 10, 64); convErr == nil {
			metrics.UnreadCacheLookups.WithLabelValues("hit").Inc()
			return count, nil
		}
	}

	metrics.UnreadCacheLookups.WithLabelValues("miss").Inc()
	count, err := c.countFromDB(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if err := c.store.Set(ctx, valueKey, []byte(strconv.FormatInt(count, 10)), c.ttl); err != nil {
		c.log.Debug("unread cache fill failed", zap.String("recipient", recipientID), zap.Error(err))
	}
	return count, nil
}

// Invalidate rotates the cache generation for recipientID. It must run after the
// mutating transaction commits and before the mutation returns to its caller.
func (c *UnreadCounter) Invalidate(ctx context.Context, recipientID string) error {
	if c == nil || c.store == nil {
		return nil
	}
	ctx = ensureContext(ctx)
	if err := c.store.Set(ctx, generationKey(recipientID), []byte(uuid.NewString()), generationTTL); err != nil {
		return fmt.Errorf("unread counter: invalidate: %w", apperrors.NewStorageFailure(err))
	}
	return nil
}

func (c *UnreadCounter) countFromDB(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	if err := c.db.WithContext(ctx).
		Model(&models.Notification{}).
		Scopes(unreadScope(recipientID)).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("unread counter: count: %w", storageError(err))
	}
	return count, nil
}

func generationKey(recipientID string) string {
	return "notifications:unread:gen:" + recipientID
}

func countKey(recipientID, generation string) string {
	return "notifications:unread:" + recipientID + ":" + generation
}
