package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/models"
	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/logger"
	"github.com/charlesng35/cmsconsole/pkg/metrics"
)

// ExportFormat selects the serialisation of a ledger export.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"

	defaultExportBatchSize = 500
	stagingFilePrefix      = "ledger-export-"
)

// CSVColumns is the fixed column order of CSV exports.
var CSVColumns = []string{
	"id", "timestamp", "actor_id", "action", "entity",
	"entity_id", "status", "ip_address", "user_agent", "changes",
}

// ParseExportFormat resolves a user supplied format, defaulting to CSV.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatJSON:
		return ExportFormatJSON, nil
	default:
		return "", apperrors.NewValidation(fmt.Sprintf("unsupported export format %q", value))
	}
}

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	if f == ExportFormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// ExportOptions configures the export service.
type ExportOptions struct {
	// StagingDir holds artifacts while they are written. Empty uses the OS temp dir.
	StagingDir string
	// MaxRows rejects exports matching more entries. Zero disables the guard.
	MaxRows   int64
	BatchSize int
}

// ExportRequest selects the ledger slice to export. Pagination on the filter is ignored.
type ExportRequest struct {
	Filter AuditFilter
	Format ExportFormat
}

// Artifact is a completely written export staged on disk.
type Artifact struct {
	Format   ExportFormat
	Filename string
	Rows     int64
	Size     int64

	file *os.File
	path string
}

// ContentType returns the MIME type of the artifact.
func (a *Artifact) ContentType() string {
	return a.Format.ContentType()
}

// WriteTo copies the whole artifact to w.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	if a.file == nil {
		return 0, errors.New("export: artifact closed")
	}
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return io.Copy(w, a.file)
}

// Close releases the artifact and removes its staging file.
func (a *Artifact) Close() error {
	if a.file == nil {
		return nil
	}
	closeErr := a.file.Close()
	a.file = nil
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}

// persist moves the staging file to dest. dest must be on the same filesystem.
func (a *Artifact) persist(dest string) error {
	if a.file == nil {
		return errors.New("export: artifact closed")
	}
	if err := a.file.Sync(); err != nil {
		return err
	}
	if err := a.file.Close(); err != nil {
		return err
	}
	a.file = nil
	if err := os.Rename(a.path, dest); err != nil {
		_ = os.Remove(a.path)
		return err
	}
	return nil
}

// ExportService serialises ledger slices without mutating them.
type ExportService struct {
	db   *gorm.DB
	opts ExportOptions
	now  func() time.Time
	log  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(db *gorm.DB, opts ExportOptions) (*ExportService, error) {
	if db == nil {
		return nil, errors.New("export service: db is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultExportBatchSize
	}
	opts.StagingDir = strings.TrimSpace(opts.StagingDir)
	if opts.StagingDir == "" {
		opts.StagingDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.StagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("export service: prepare staging dir: %w", err)
	}
	return &ExportService{
		db:   db,
		opts: opts,
		now:  time.Now,
		log:  logger.WithModule("export"),
	}, nil
}

// StagingDir returns the directory holding in-progress artifacts.
func (s *ExportService) StagingDir() string {
	return s.opts.StagingDir
}

// Prepare writes the complete export into a staging file. Callers must Close the
// artifact. On error nothing is left behind.
func (s *ExportService) Prepare(ctx context.Context, req ExportRequest) (*Artifact, error) {
	return s.prepare(ensureContext(ctx), req, s.opts.StagingDir)
}

// ExportFile writes the export to dest atomically and returns the number of rows.
func (s *ExportService) ExportFile(ctx context.Context, req ExportRequest, dest string) (int64, error) {
	ctx = ensureContext(ctx)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("export service: prepare destination: %w", err)
	}

	artifact, err := s.prepare(ctx, req, dir)
	if err != nil {
		return 0, err
	}
	if err := artifact.persist(dest); err != nil {
		return 0, fmt.Errorf("export service: persist %s: %w", dest, err)
	}
	return artifact.Rows, nil
}

// SweepStaging removes staging files older than maxAge and returns how many were removed.
func (s *ExportService) SweepStaging(now time.Time, maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.opts.StagingDir, stagingFilePrefix+"*"))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *ExportService) prepare(ctx context.Context, req ExportRequest, dir string) (artifact *Artifact, err error) {
	format, err := ParseExportFormat(string(req.Format))
	if err != nil {
		return nil, err
	}
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.AuditExports.WithLabelValues(string(format), result).Inc()
	}()

	filter := req.Filter
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	maxID, total, err := s.snapshot(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("export service: snapshot: %w", storageError(err))
	}
	if s.opts.MaxRows > 0 && total > s.opts.MaxRows {
		return nil, apperrors.NewValidation(fmt.Sprintf(
			"export matches %d entries, more than the limit of %d; narrow the date range", total, s.opts.MaxRows))
	}

	file, err := os.CreateTemp(dir, stagingFilePrefix+"*."+string(format))
	if err != nil {
		return nil, fmt.Errorf("export service: create staging file: %w", err)
	}
	artifact = &Artifact{
		Format:   format,
		Filename: fmt.Sprintf("audit-logs-%s.%s", s.now().UTC().Format("20060102T150405Z"), format),
		file:     file,
		path:     file.Name(),
	}
	defer func() {
		if err != nil {
			_ = artifact.Close()
			artifact = nil
		}
	}()

	buffered := bufio.NewWriter(file)
	var writer rowWriter
	switch format {
	case ExportFormatJSON:
		writer = &jsonRowWriter{w: buffered}
	default:
		writer = &csvRowWriter{w: csv.NewWriter(buffered)}
	}

	if err = writer.begin(); err != nil {
		return nil, fmt.Errorf("export service: write header: %w", err)
	}
	if artifact.Rows, err = s.stream(ctx, filter, maxID, writer); err != nil {
		return nil, err
	}
	if err = writer.end(); err != nil {
		return nil, fmt.Errorf("export service: finish document: %w", err)
	}
	if err = buffered.Flush(); err != nil {
		return nil, fmt.Errorf("export service: flush: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("export service: stat staging file: %w", err)
	}
	artifact.Size = info.Size()

	metrics.AuditExportRows.Observe(float64(artifact.Rows))
	s.log.Debug("ledger export staged",
		zap.String("format", string(format)),
		zap.Int64("rows", artifact.Rows),
		zap.Int64("bytes", artifact.Size),
	)
	return artifact, nil
}

// snapshot captures the highest ledger id and the number of matching entries up to it.
// Entries appended after the export starts are excluded.
func (s *ExportService) snapshot(ctx context.Context, filter AuditFilter) (maxID uint64, total int64, err error) {
	err = runInTx(ctx, s.db, readTxOptions(s.db), func(tx *gorm.DB) error {
		maxID = 0
		if err := tx.Model(&models.AuditLog{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
			return err
		}
		return tx.Model(&models.AuditLog{}).
			Scopes(filter.Scope()).
			Where("id <= ?", maxID).
			Count(&total).Error
	})
	return maxID, total, err
}

// stream reads matching entries in keyset batches ordered like the list query.
func (s *ExportService) stream(ctx context.Context, filter AuditFilter, maxID uint64, writer rowWriter) (int64, error) {
	var (
		rows   int64
		cursor *models.AuditLog
	)
	for {
		if err := ctx.Err(); err != nil {
			return rows, fmt.Errorf("export service: %w", err)
		}

		query := s.db.WithContext(ctx).
			Scopes(filter.Scope(), orderLedger).
			Where("id <= ?", maxID)
		if cursor != nil {
			query = query.Where("(occurred_at < ? OR (occurred_at = ? AND id < ?))",
				cursor.Timestamp, cursor.Timestamp, cursor.ID)
		}

		var batch []models.AuditLog
		if err := query.Limit(s.opts.BatchSize).Find(&batch).Error; err != nil {
			return rows, fmt.Errorf("export service: read batch: %w", storageError(err))
		}

		for i := range batch {
			if err := writer.write(batch[i]); err != nil {
				return rows, fmt.Errorf("export service: write row %d: %w", batch[i].ID, err)
			}
			rows++
		}

		if len(batch) < s.opts.BatchSize {
			return rows, nil
		}
		last := batch[len(batch)-1]
		cursor = &last
	}
}

type rowWriter interface {
	begin() error
	write(models.AuditLog) error
	end() error
}

type csvRowWriter struct {
	w *csv.Writer
}

func (c *csvRowWriter) begin() error {
	return c.w.Write(CSVColumns)
}

func (c *csvRowWriter) write(row models.AuditLog) error {
	return c.w.Write([]string{
		strconv.FormatUint(row.ID, 10),
		row.Timestamp.UTC().Format(time.RFC3339Nano),
		deref(row.ActorID),
		row.Action,
		row.Entity,
		deref(row.EntityID),
		string(row.Status),
		deref(row.IPAddress),
		deref(row.UserAgent),
		compactJSON(row.Changes),
	})
}

func (c *csvRowWriter) end() error {
	c.w.Flush()
	return c.w.Error()
}

type jsonRowWriter struct {
	w     io.Writer
	count int
}

func (j *jsonRowWriter) begin() error {
	_, err := io.WriteString(j.w, "[")
	return err
}

func (j *jsonRowWriter) write(row models.AuditLog) error {
	data, err := json.Marshal(NewAuditEntry(row))
	if err != nil {
		return err
	}
	sep := "\n"
	if j.count > 0 {
		sep = ",\n"
	}
	if _, err := io.WriteString(j.w, sep); err != nil {
		return err
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	j.count++
	return nil
}

func (j *jsonRowWriter) end() error {
	closing := "]\n"
	if j.count > 0 {
		closing = "\n]\n"
	}
	_, err := io.WriteString(j.w, closing)
	return err
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func compactJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}
