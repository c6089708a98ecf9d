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

	"github.com/charlesng35/cmsconsole/internal/auditctx"
	"github.com/charlesng35/cmsconsole/internal/models"
	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/logger"
	"github.com/charlesng35/cmsconsole/pkg/metrics"
	"github.com/charlesng35/cmsconsole/pkg/validator"
)

// RecordInput describes an administrative action to append to the ledger.
type RecordInput struct {
	ActorID   *string `json:"actorId" validate:"omitempty,max=64"`
	Action    string  `json:"action" validate:"required,max=64,slug"`
	Entity    string  `json:"entity" validate:"required,max=64,slug"`
	EntityID  *string `json:"entityId" validate:"omitempty,max=128"`
	Changes   any     `json:"changes"`
	Status    string  `json:"status" validate:"omitempty,oneof=success failed"`
	IPAddress *string `json:"ipAddress" validate:"omitempty,max=64"`
	UserAgent *string `json:"userAgent"`

	// Notify optionally raises a notification alongside the entry.
	Notify *CreateNotificationInput `json:"notify" validate:"-"`
}

// Recorder is the single entry point for collaborators reporting actions.
type Recorder struct {
	audit         *AuditService
	notifications *NotificationService
	now           func() time.Time
	log           *zap.Logger
}

// NewRecorder constructs a Recorder. notifications may be nil, in which case Notify is ignored.
func NewRecorder(audit *AuditService, notifications *NotificationService) (*Recorder, error) {
	if audit == nil {
		return nil, errors.New("recorder: audit service is required")
	}
	return &Recorder{
		audit:         audit,
		notifications: notifications,
		now:           time.Now,
		log:           logger.WithModule("recorder"),
	}, nil
}

// Record validates input, appends a ledger entry and returns it. The content of
// Changes never causes a failure. The optional notification is best-effort.
func (r *Recorder) Record(ctx context.Context, input RecordInput) (*models.AuditLog, error) {
	ctx = ensureContext(ctx)

	input.Action = strings.ToLower(strings.TrimSpace(input.Action))
	input.Entity = strings.ToLower(strings.TrimSpace(input.Entity))
	input.Status = strings.ToLower(strings.TrimSpace(input.Status))
	input.ActorID = trimmedPtr(input.ActorID)
	input.EntityID = trimmedPtr(input.EntityID)
	input.IPAddress = trimmedPtr(input.IPAddress)
	input.UserAgent = trimmedPtr(input.UserAgent)

	if actor, ok := auditctx.FromContext(ctx); ok {
		if input.IPAddress == nil {
			input.IPAddress = stringPtr(actor.IPAddress)
		}
		if input.UserAgent == nil {
			input.UserAgent = stringPtr(actor.UserAgent)
		}
	}

	if err := validator.ValidateStruct(input); err != nil {
		metrics.AuditEntriesRecorded.WithLabelValues("rejected").Inc()
		return nil, validationError(err)
	}

	entry := models.AuditLog{
		ActorID:   input.ActorID,
		Action:    input.Action,
		Entity:    input.Entity,
		EntityID:  input.EntityID,
		Changes:   encodeChanges(input.Changes),
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Status:    models.AuditStatus(defaultIfEmpty(input.Status, string(models.AuditStatusSuccess))),
	}

	if err := r.audit.append(ctx, &entry, r.now()); err != nil {
		metrics.AuditEntriesRecorded.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.AuditEntriesRecorded.WithLabelValues(string(entry.Status)).Inc()

	if input.Notify != nil {
		r.notify(ctx, entry, *input.Notify)
	}

	return &entry, nil
}

func (r *Recorder) notify(ctx context.Context, entry models.AuditLog, input CreateNotificationInput) {
	if r.notifications == nil {
		r.log.Debug("notification requested without a notification service", zap.Uint64("audit_id", entry.ID))
		return
	}

	if input.Metadata == nil {
		input.Metadata = map[string]any{}
	}
	if _, exists := input.Metadata["auditLogId"]; !exists {
		input.Metadata["auditLogId"] = entry.ID
	}

	if _, err := r.notifications.Create(ctx, input); err != nil {
		r.log.Warn("audit notification failed",
			zap.Uint64("audit_id", entry.ID),
			zap.String("recipient", input.RecipientID),
			zap.Error(err),
		)
	}
}

// encodeChanges stores changes as JSON. Values that cannot be encoded are kept
// as a JSON string holding their fmt rendering.
func encodeChanges(changes any) datatypes.JSON {
	if changes == nil {
		return nil
	}
	if raw, ok := changes.(json.RawMessage); ok {
		if json.Valid(raw) {
			return datatypes.JSON(raw)
		}
		changes = string(raw)
	}

	data, err := json.Marshal(changes)
	if err == nil {
		return datatypes.JSON(data)
	}

	fallback, _ := json.Marshal(fmt.Sprintf("%+v", changes))
	return datatypes.JSON(fallback)
}

// IsValidationError reports whether err was rejected before touching storage.
func IsValidationError(err error) bool {
	return errors.Is(err, apperrors.ErrValidation)
}
