package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/cmsconsole/internal/models"
)

// keyColumn is quoted by gorm; "key" is reserved in MySQL.
var keyColumn = clause.Column{Name: "key"}

// DatabaseStore implements the cache Store interface using the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

// IncrementWithTTL atomically increments a counter for the supplied key. The window
// restarts once the previous one has elapsed.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, ErrStoreNotInitialised
	}
	ctx = ensureContext(ctx)
	if window <= 0 {
		window = time.Minute
	}

	now := s.now().UTC()

	var (
		count  int64
		expiry time.Time
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(clause.Eq{Column: keyColumn, Value: key}).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			count = 1
			expiry = now.Add(window)
			entry = models.CacheEntry{
				Key:       key,
				Value:     []byte("1"),
				ExpiresAt: &expiry,
			}
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}

		switch {
		case entry.Expired(now), entry.ExpiresAt == nil:
			count = 1
			expiry = now.Add(window)
		default:
			current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count = current + 1
			expiry = *entry.ExpiresAt
		}

		return tx.Model(&models.CacheEntry{}).
			Where(clause.Eq{Column: keyColumn, Value: key}).
			Updates(map[string]any{
				"value":      []byte(strconv.FormatInt(count, 10)),
				"expires_at": expiry,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiry.Sub(now), nil
}

// Set upserts the value for a given key with expiry. A non-positive ttl never expires.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return ErrStoreNotInitialised
	}
	ctx = ensureContext(ctx)

	entry := models.CacheEntry{
		Key:   key,
		Value: value,
	}
	if ttl > 0 {
		expiry := s.now().UTC().Add(ttl)
		entry.ExpiresAt = &expiry
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{keyColumn},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&entry).Error
}

// Get retrieves a value by key, respecting expiry.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, ErrStoreNotInitialised
	}
	ctx = ensureContext(ctx)

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: keyColumn, Value: key}).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if entry.Expired(s.now()) {
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Delete removes keys from the store.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return ErrStoreNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)

	values := make([]any, 0, len(keys))
	for _, key := range keys {
		values = append(values, key)
	}

	return s.db.WithContext(ctx).
		Where(clause.IN{Column: keyColumn, Values: values}).
		Delete(&models.CacheEntry{}).Error
}

// PurgeExpired removes entries that expired before now and returns the number removed.
func (s *DatabaseStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil {
		return 0, ErrStoreNotInitialised
	}
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
