package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/models"
	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
)

const (
	// DefaultPageSize applies when a caller omits the limit.
	DefaultPageSize = 20
	// MaxPageSize caps the limit of a single page.
	MaxPageSize = 100
)

// PageLimits bounds list queries.
type PageLimits struct {
	Default int
	Max     int
}

// DefaultPageLimits returns the stock limits.
func DefaultPageLimits() PageLimits {
	return PageLimits{Default: DefaultPageSize, Max: MaxPageSize}
}

func (l PageLimits) normalise() PageLimits {
	if l.Max <= 0 {
		l.Max = MaxPageSize
	}
	if l.Default <= 0 {
		l.Default = DefaultPageSize
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}

// Pagination is a 1-indexed page request. Zero values take the configured defaults.
type Pagination struct {
	Page  int
	Limit int
}

// Resolve applies defaults and caps. Negative values are rejected.
func (p Pagination) Resolve(limits PageLimits) (Pagination, error) {
	limits = limits.normalise()
	if p.Page < 0 {
		return p, apperrors.NewValidation("page must be at least 1")
	}
	if p.Limit < 0 {
		return p, apperrors.NewValidation("limit must be at least 1")
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = limits.Default
	}
	if p.Limit > limits.Max {
		p.Limit = limits.Max
	}
	return p, nil
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is one slice of an ordered result set. Total ignores pagination.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

// DateRange bounds a query on the record timestamp, both ends inclusive.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) validate() error {
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return apperrors.NewValidation("startDate must not be after endDate")
	}
	return nil
}

func (r DateRange) apply(query *gorm.DB, column string) *gorm.DB {
	if r.From != nil {
		query = query.Where(column+" >= ?", r.From.UTC())
	}
	if r.To != nil {
		query = query.Where(column+" <= ?", r.To.UTC())
	}
	return query
}

// NotificationFilter selects notifications for one recipient.
type NotificationFilter struct {
	RecipientID string
	Type        models.NotificationType
	Read        *bool
	Dates       DateRange
	Pagination
}

// Validate rejects malformed filters before any storage access.
func (f NotificationFilter) Validate() error {
	if strings.TrimSpace(f.RecipientID) == "" {
		return apperrors.NewValidation("recipientId is required")
	}
	if f.Type != "" && !f.Type.Valid() {
		return apperrors.NewValidation(fmt.Sprintf("unknown notification type %q", f.Type))
	}
	return f.Dates.validate()
}

// Scope renders the filter predicate. The unread counter and the list query both use it.
func (f NotificationFilter) Scope() func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		query = query.Where("recipient_id = ?", strings.TrimSpace(f.RecipientID))
		if f.Type != "" {
			query = query.Where("type = ?", f.Type)
		}
		if f.Read != nil {
			query = query.Where("is_read = ?", *f.Read)
		}
		return f.Dates.apply(query, "created_at")
	}
}

// unreadScope is the predicate behind the unread count.
func unreadScope(recipientID string) func(*gorm.DB) *gorm.DB {
	unread := false
	return NotificationFilter{RecipientID: recipientID, Read: &unread}.Scope()
}

func orderNotifications(query *gorm.DB) *gorm.DB {
	return query.Order("created_at DESC").Order("id DESC")
}

// AuditFilter selects ledger entries. Empty fields impose no constraint.
type AuditFilter struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Status   models.AuditStatus
	Dates    DateRange
	Pagination
}

// Validate rejects malformed filters before any storage access.
func (f AuditFilter) Validate() error {
	if status := f.status(); status != "" && !status.Valid() {
		return apperrors.NewValidation(fmt.Sprintf("unknown status %q", f.Status))
	}
	return f.Dates.validate()
}

// Scope renders the filter predicate shared by list and export.
func (f AuditFilter) Scope() func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		if v := strings.TrimSpace(f.ActorID); v != "" {
			query = query.Where("actor_id = ?", v)
		}
		// Actions and entities are stored lowercased.
		if v := strings.ToLower(strings.TrimSpace(f.Action)); v != "" {
			query = query.Where("action = ?", v)
		}
		if v := strings.ToLower(strings.TrimSpace(f.Entity)); v != "" {
			query = query.Where("entity = ?", v)
		}
		if v := strings.TrimSpace(f.EntityID); v != "" {
			query = query.Where("entity_id = ?", v)
		}
		if status := f.status(); status != "" {
			query = query.Where("status = ?", status)
		}
		return f.Dates.apply(query, "occurred_at")
	}
}

func (f AuditFilter) status() models.AuditStatus {
	return models.AuditStatus(strings.ToLower(strings.TrimSpace(string(f.Status))))
}

func orderLedger(query *gorm.DB) *gorm.DB {
	return query.Order("occurred_at DESC").Order("id DESC")
}
