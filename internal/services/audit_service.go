package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/models"
	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
)

// AuditEntry is the API representation of a ledger entry. Client summarises the
// user agent, e.g. "Firefox 121.0 on Linux x86_64".
type AuditEntry struct {
	models.AuditLog
	Client string `json:"client,omitempty"`
}

// NewAuditEntry decorates a stored ledger row for presentation.
func NewAuditEntry(row models.AuditLog) AuditEntry {
	entry := AuditEntry{AuditLog: row}
	if row.UserAgent != nil {
		entry.Client = summariseUserAgent(*row.UserAgent)
	}
	return entry
}

func summariseUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return strings.TrimSpace("bot " + name)
	}
	name, version := ua.Browser()
	summary := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		if summary == "" {
			return os
		}
		summary += " on " + os
	}
	return summary
}

// AuditService reads the append-only ledger. Entries are written through the Recorder.
type AuditService struct {
	db     *gorm.DB
	limits PageLimits
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, limits: DefaultPageLimits()}, nil
}

// SetPageLimits overrides the default and maximum page size.
func (s *AuditService) SetPageLimits(limits PageLimits) {
	s.limits = limits.normalise()
}

// List returns one page of ledger entries, newest first.
func (s *AuditService) List(ctx context.Context, filter AuditFilter) (*Page[models.AuditLog], error) {
	ctx = ensureContext(ctx)

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	pagination, err := filter.Pagination.Resolve(s.limits)
	if err != nil {
		return nil, err
	}

	page := &Page[models.AuditLog]{
		Items: []models.AuditLog{},
		Page:  pagination.Page,
		Limit: pagination.Limit,
	}

	err = runInTx(ctx, s.db, readTxOptions(s.db), func(tx *gorm.DB) error {
		if err := tx.Model(&models.AuditLog{}).
			Scopes(filter.Scope()).
			Count(&page.Total).Error; err != nil {
			return err
		}
		if int64(pagination.offset()) >= page.Total {
			return nil
		}
		return tx.Scopes(filter.Scope(), orderLedger).
			Offset(pagination.offset()).
			Limit(pagination.Limit).
			Find(&page.Items).Error
	})
	if err != nil {
		return nil, fmt.Errorf("audit service: list logs: %w", storageError(err))
	}

	return page, nil
}

// Get returns a single ledger entry.
func (s *AuditService) Get(ctx context.Context, id uint64) (*models.AuditLog, error) {
	ctx = ensureContext(ctx)

	var entry models.AuditLog
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("Audit log entry not found")
		}
		return nil, fmt.Errorf("audit service: get log: %w", storageError(err))
	}
	return &entry, nil
}

// append inserts a ledger row. The timestamp always comes from the server clock.
func (s *AuditService) append(ctx context.Context, entry *models.AuditLog, now time.Time) error {
	err := runInTx(ctx, s.db, nil, func(tx *gorm.DB) error {
		entry.ID = 0
		entry.Timestamp = now.UTC()
		return tx.Create(entry).Error
	})
	if err != nil {
		return fmt.Errorf("audit service: append log: %w", storageError(err))
	}
	return nil
}
