package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/cmsconsole/internal/models"
	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/logger"
	"github.com/charlesng35/cmsconsole/pkg/metrics"
	"github.com/charlesng35/cmsconsole/pkg/validator"
)

// bulkChunkSize bounds the IN list of bulk statements.
const bulkChunkSize = 500

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	RecipientID string         `json:"recipientId" validate:"required,max=64"`
	Type        string         `json:"type" validate:"required,oneof=system user security content info"`
	Title       string         `json:"title" validate:"required,max=255"`
	Message     string         `json:"message" validate:"max=10000"`
	Priority    string         `json:"priority" validate:"omitempty,oneof=low medium high"`
	ActionURL   string         `json:"actionUrl" validate:"omitempty,max=2048"`
	Metadata    map[string]any `json:"metadata"`
}

// NotificationList is a page of notifications plus the recipient's unread total,
// both read from the same snapshot.
type NotificationList struct {
	Page[models.Notification]
	Unread int64
}

// NotificationService manages per-recipient notification state.
type NotificationService struct {
	db      *gorm.DB
	counter *UnreadCounter
	limits  PageLimits
	now     func() time.Time
	log     *zap.Logger

	// afterSnapshot runs between the read and write phases of bulk operations.
	afterSnapshot func()
}

// NewNotificationService constructs a NotificationService. A nil counter is
// replaced by an uncached one.
func NewNotificationService(db *gorm.DB, counter *UnreadCounter) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if counter == nil {
		var err error
		if counter, err = NewUnreadCounter(db, nil, 0); err != nil {
			return nil, err
		}
	}
	return &NotificationService{
		db:      db,
		counter: counter,
		limits:  DefaultPageLimits(),
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.WithModule("notifications"),
	}, nil
}

// SetPageLimits overrides the default and maximum page size.
func (s *NotificationService) SetPageLimits(limits PageLimits) {
	s.limits = limits.normalise()
}

// Counter exposes the unread counter backing the service.
func (s *NotificationService) Counter() *UnreadCounter {
	return s.counter
}

// Create inserts a new unread notification.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	input.RecipientID = strings.TrimSpace(input.RecipientID)
	input.Type = strings.TrimSpace(input.Type)
	input.Title = strings.TrimSpace(input.Title)
	input.Priority = strings.TrimSpace(input.Priority)
	input.ActionURL = strings.TrimSpace(input.ActionURL)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, validationError(err)
	}

	notification := models.Notification{
		RecipientID: input.RecipientID,
		Type:        models.NotificationType(input.Type),
		Title:       input.Title,
		Message:     input.Message,
		Priority:    models.NotificationPriority(defaultIfEmpty(input.Priority, string(models.NotificationPriorityMedium))),
		ActionURL:   input.ActionURL,
	}

	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, apperrors.NewValidation("metadata must be JSON encodable")
		}
		notification.Metadata = datatypes.JSON(data)
	}

	// Rotate before the insert so an unreachable cache rejects the call unwritten.
	// A failure after commit is only logged.
	if err := s.counter.Invalidate(ctx, notification.RecipientID); err != nil {
		return nil, err
	}

	err := runInTx(ctx, s.db, nil, func(tx *gorm.DB) error {
		notification.ID = 0
		return tx.Create(&notification).Error
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", storageError(err))
	}
	metrics.NotificationTransitions.WithLabelValues("created").Inc()

	if err := s.counter.Invalidate(ctx, notification.RecipientID); err != nil {
		s.log.Warn("unread cache invalidation failed after create",
			zap.Uint64("notification_id", notification.ID),
			zap.String("recipient", notification.RecipientID),
			zap.Error(err),
		)
	}
	return &notification, nil
}

// List returns one page of the recipient's notifications, newest first, together
// with the total match count and the recipient's unread count.
func (s *NotificationService) List(ctx context.Context, filter NotificationFilter) (*NotificationList, error) {
	ctx = ensureContext(ctx)

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	pagination, err := filter.Pagination.Resolve(s.limits)
	if err != nil {
		return nil, err
	}

	result := &NotificationList{
		Page: Page[models.Notification]{
			Items: []models.Notification{},
			Page:  pagination.Page,
			Limit: pagination.Limit,
		},
	}

	err = runInTx(ctx, s.db, readTxOptions(s.db), func(tx *gorm.DB) error {
		if err := tx.Model(&models.Notification{}).
			Scopes(filter.Scope()).
			Count(&result.Total).Error; err != nil {
			return err
		}

		if int64(pagination.offset()) < result.Total {
			if err := tx.Scopes(filter.Scope(), orderNotifications).
				Offset(pagination.offset()).
				Limit(pagination.Limit).
				Find(&result.Items).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Notification{}).
			Scopes(unreadScope(filter.RecipientID)).
			Count(&result.Unread).Error
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", storageError(err))
	}

	return result, nil
}

// UnreadCount returns the number of unread notifications owned by recipientID.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	return s.counter.Count(ctx, recipientID)
}

// MarkRead marks a notification owned by recipientID as read. Repeating the call
// returns the stored record unchanged, including its original ReadAt.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID string, notificationID uint64) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, apperrors.NewValidation("recipientId is required")
	}

	var (
		notification models.Notification
		changed      bool
	)

	err := runInTx(ctx, s.db, nil, func(tx *gorm.DB) error {
		changed = false
		if err := tx.Where("id = ? AND recipient_id = ?", notificationID, recipientID).
			Take(&notification).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("Notification not found")
			}
			return err
		}
		if notification.IsRead {
			return nil
		}

		now := s.now()
		result := tx.Model(&models.Notification{}).
			Where("id = ? AND is_read = ?", notification.ID, false).
			Updates(map[string]any{
				"is_read":    true,
				"read_at":    now,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0

		return tx.Where("id = ?", notification.ID).Take(&notification).Error
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", storageError(err))
	}

	if changed {
		metrics.NotificationTransitions.WithLabelValues("read").Inc()
	}
	// A retry after a failed invalidation changes nothing, so rotate regardless.
	if err := s.counter.Invalidate(ctx, recipientID); err != nil {
		return nil, err
	}
	return &notification, nil
}

// MarkAllRead marks every notification that is unread when the call starts as read
// and returns how many changed. Notifications created concurrently stay unread.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, apperrors.NewValidation("recipientId is required")
	}

	var updated int64
	err := runInTx(ctx, s.db, nil, func(tx *gorm.DB) error {
		updated = 0
		ids, err := s.snapshotIDs(tx, unreadScope(recipientID))
		if err != nil {
			return err
		}

		now := s.now()
		for _, chunk := range chunkIDs(ids, bulkChunkSize) {
			result := tx.Model(&models.Notification{}).
				Where("id IN ? AND is_read = ?", chunk, false).
				Updates(map[string]any{
					"is_read":    true,
					"read_at":    now,
					"updated_at": now,
				})
			if result.Error != nil {
				return result.Error
			}
			updated += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", storageError(err))
	}

	if updated > 0 {
		metrics.NotificationTransitions.WithLabelValues("read_all").Add(float64(updated))
	}
	if err := s.counter.Invalidate(ctx, recipientID); err != nil {
		return 0, err
	}
	return updated, nil
}

// Delete removes a notification owned by recipientID. Missing ids are a no-op.
func (s *NotificationService) Delete(ctx context.Context, recipientID string, notificationID uint64) error {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return apperrors.NewValidation("recipientId is required")
	}

	var deleted int64
	err := runInTx(ctx, s.db, nil, func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND recipient_id = ?", notificationID, recipientID).
			Delete(&models.Notification{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return fmt.Errorf("notification service: delete notification: %w", storageError(err))
	}

	if deleted > 0 {
		metrics.NotificationTransitions.WithLabelValues("deleted").Inc()
	}
	return s.counter.Invalidate(ctx, recipientID)
}

// DeleteAll removes every notification owned by recipientID when the call starts
// and returns how many were removed.
func (s *NotificationService) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, apperrors.NewValidation("recipientId is required")
	}

	var deleted int64
	err := runInTx(ctx, s.db, nil, func(tx *gorm.DB) error {
		deleted = 0
		ids, err := s.snapshotIDs(tx, NotificationFilter{RecipientID: recipientID}.Scope())
		if err != nil {
			return err
		}

		for _, chunk := range chunkIDs(ids, bulkChunkSize) {
			result := tx.Where("id IN ?", chunk).Delete(&models.Notification{})
			if result.Error != nil {
				return result.Error
			}
			deleted += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("notification service: delete all: %w", storageError(err))
	}

	if deleted > 0 {
		metrics.NotificationTransitions.WithLabelValues("deleted_all").Add(float64(deleted))
	}
	if err := s.counter.Invalidate(ctx, recipientID); err != nil {
		return 0, err
	}
	return deleted, nil
}

// snapshotIDs locks and returns the ids matching scope. The locking clause is
// ignored by SQLite, which already serialises writers.
func (s *NotificationService) snapshotIDs(tx *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]uint64, error) {
	var ids []uint64
	if err := tx.Model(&models.Notification{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(scope).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if s.afterSnapshot != nil {
		s.afterSnapshot()
	}
	return ids, nil
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
