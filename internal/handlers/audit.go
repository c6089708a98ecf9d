package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/cmsconsole/internal/models"
	"github.com/charlesng35/cmsconsole/internal/services"
	appErrors "github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/logger"
	"github.com/charlesng35/cmsconsole/pkg/response"
)

// AuditHandler serves the audit ledger.
type AuditHandler struct {
	audit    *services.AuditService
	recorder *services.Recorder
	exports  *services.ExportService
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(audit *services.AuditService, recorder *services.Recorder, exports *services.ExportService) *AuditHandler {
	return &AuditHandler{audit: audit, recorder: recorder, exports: exports}
}

type auditListPayload struct {
	Logs  []services.AuditEntry `json:"logs"`
	Total int64                 `json:"total"`
}

func auditFilterFromQuery(c *gin.Context) (services.AuditFilter, error) {
	dates, err := parseDateRange(c)
	if err != nil {
		return services.AuditFilter{}, err
	}
	return services.AuditFilter{
		ActorID:  c.Query("userId"),
		Action:   strings.ToLower(strings.TrimSpace(c.Query("action"))),
		Entity:   strings.ToLower(strings.TrimSpace(c.Query("entity"))),
		EntityID: c.Query("entityId"),
		Status:   models.AuditStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Dates:    dates,
	}, nil
}

// List returns a page of ledger entries, newest first.
// GET /api/audit-logs?page&limit&entity&action&userId&status&startDate&endDate
func (h *AuditHandler) List(c *gin.Context) {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if filter.Pagination, err = parsePagination(c); err != nil {
		response.Error(c, err)
		return
	}

	page, err := h.audit.List(requestContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	logs := make([]services.AuditEntry, 0, len(page.Items))
	for _, row := range page.Items {
		logs = append(logs, services.NewAuditEntry(row))
	}

	response.SuccessWithMeta(c, http.StatusOK, auditListPayload{Logs: logs, Total: page.Total},
		response.NewMeta(page.Page, page.Limit, page.Total))
}

// Get returns a single ledger entry.
// GET /api/audit-logs/:id
func (h *AuditHandler) Get(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	row, err := h.audit.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, services.NewAuditEntry(*row))
}

// Record appends an entry for an action performed by the caller unless actorId
// names someone else.
// POST /api/audit-logs
func (h *AuditHandler) Record(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	// Field rules run in the recorder after action and entity are normalised.
	var payload services.RecordInput
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.NewValidation("invalid JSON payload"))
		return
	}
	if payload.ActorID == nil {
		payload.ActorID = &userID
	}

	row, err := h.recorder.Record(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, services.NewAuditEntry(*row))
}

// Export streams the filtered ledger as a CSV or JSON attachment. The artifact is
// fully written before the first byte is sent, so failures always surface as an
// error response.
// GET /api/audit-logs/export?format=csv|json
func (h *AuditHandler) Export(c *gin.Context) {
	format, err := services.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	artifact, err := h.exports.Prepare(requestContext(c), services.ExportRequest{Filter: filter, Format: format})
	if err != nil {
		response.Error(c, err)
		return
	}
	defer func() {
		if err := artifact.Close(); err != nil {
			logger.WithModule("audit").Warn("remove export staging file", zap.Error(err))
		}
	}()

	c.Header("Content-Type", artifact.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, artifact.Filename))
	c.Header("Content-Length", strconv.FormatInt(artifact.Size, 10))
	c.Status(http.StatusOK)

	if _, err := artifact.WriteTo(c.Writer); err != nil {
		// Headers are already on the wire; all that is left is to log.
		logger.WithModule("audit").Warn("export write interrupted",
			zap.String("filename", artifact.Filename),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
}
