package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
)

func newTestExportService(t *testing.T, db *gorm.DB, opts ExportOptions) *ExportService {
	t.Helper()
	if opts.StagingDir == "" {
		opts.StagingDir = t.TempDir()
	}
	svc, err := NewExportService(db, opts)
	require.NoError(t, err)
	return svc
}

func recordMany(t *testing.T, recorder *Recorder, entity string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		actor := fmt.Sprintf("admin-%d", i%3)
		_, err := recorder.Record(context.Background(), RecordInput{
			ActorID:  &actor,
			Action:   "update",
			Entity:   entity,
			EntityID: stringPtr(strconv.Itoa(i)),
			Changes:  map[string]any{"title": map[string]any{"old": fmt.Sprintf("v%d", i), "new": "with, comma \"quoted\""}},
		})
		require.NoError(t, err)
	}
}

func stagedFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, stagingFilePrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestExportCSVHasOneRowPerEntry(t *testing.T) {
	db := newTestDB(t)
	recorder, _, _ := newTestRecorder(t, db)
	recordMany(t, recorder, "blog", 50)
	recordMany(t, recorder, "faq", 7)

	svc := newTestExportService(t, db, ExportOptions{BatchSize: 16})
	artifact, err := svc.Prepare(context.Background(), ExportRequest{
		Filter: AuditFilter{Entity: "blog"},
		Format: ExportFormatCSV,
	})
	require.NoError(t, err)
	defer artifact.Close()

	require.EqualValues(t, 50, artifact.Rows)
	require.Equal(t, "text/csv; charset=utf-8", artifact.ContentType())
	require.Contains(t, artifact.Filename, ".csv")

	var buf bytes.Buffer
	n, err := artifact.WriteTo(&buf)
	require.NoError(t, err)
	require.EqualValues(t, artifact.Size, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 51)
	require.Equal(t, CSVColumns, records[0])
	for _, row := range records[1:] {
		require.Equal(t, "blog", row[4])
		require.True(t, json.Valid([]byte(row[9])), "changes column must hold JSON: %q", row[9])
		_, err := time.Parse(time.RFC3339Nano, row[1])
		require.NoError(t, err)
	}
}

func TestExportFilterIgnoresCase(t *testing.T) {
	db := newTestDB(t)
	recorder, _, _ := newTestRecorder(t, db)
	recordMany(t, recorder, "blog", 3)
	recordMany(t, recorder, "faq", 2)

	svc := newTestExportService(t, db, ExportOptions{})
	artifact, err := svc.Prepare(context.Background(), ExportRequest{
		Filter: AuditFilter{Entity: "Blog"},
		Format: ExportFormatJSON,
	})
	require.NoError(t, err)
	defer artifact.Close()
	require.EqualValues(t, 3, artifact.Rows)
}

func TestExportRoundTripMatchesList(t *testing.T) {
	db := newTestDB(t)
	recorder, audit, _ := newTestRecorder(t, db)
	recordMany(t, recorder, "service", 23)
	recordMany(t, recorder, "user", 5)

	filter := AuditFilter{ActorID: "admin-1"}
	listed, err := audit.List(context.Background(), AuditFilter{ActorID: "admin-1", Pagination: Pagination{Limit: 100}})
	require.NoError(t, err)
	var want []uint64
	for _, item := range listed.Items {
		want = append(want, item.ID)
	}

	svc := newTestExportService(t, db, ExportOptions{BatchSize: 4})

	t.Run("json", func(t *testing.T) {
		artifact, err := svc.Prepare(context.Background(), ExportRequest{Filter: filter, Format: ExportFormatJSON})
		require.NoError(t, err)
		defer artifact.Close()
		require.Equal(t, "application/json", artifact.ContentType())

		var buf bytes.Buffer
		_, err = artifact.WriteTo(&buf)
		require.NoError(t, err)

		var entries []AuditEntry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
		got := make([]uint64, 0, len(entries))
		for _, e := range entries {
			got = append(got, e.ID)
			require.Equal(t, "admin-1", *e.ActorID)
		}
		require.Equal(t, want, got)
	})

	t.Run("csv", func(t *testing.T) {
		artifact, err := svc.Prepare(context.Background(), ExportRequest{Filter: filter, Format: ExportFormatCSV})
		require.NoError(t, err)
		defer artifact.Close()

		var buf bytes.Buffer
		_, err = artifact.WriteTo(&buf)
		require.NoError(t, err)

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		got := make([]uint64, 0, len(records)-1)
		for _, row := range records[1:] {
			id, err := strconv.ParseUint(row[0], 10, 64)
			require.NoError(t, err)
			got = append(got, id)
		}
		sortedWant := append([]uint64(nil), want...)
		sort.Slice(sortedWant, func(i, j int) bool { return sortedWant[i] < sortedWant[j] })
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		require.Equal(t, sortedWant, got)
	})
}

func TestExportEmptySliceIsValidDocument(t *testing.T) {
	db := newTestDB(t)
	svc := newTestExportService(t, db, ExportOptions{})

	artifact, err := svc.Prepare(context.Background(), ExportRequest{Format: ExportFormatJSON})
	require.NoError(t, err)
	defer artifact.Close()

	var buf bytes.Buffer
	_, err = artifact.WriteTo(&buf)
	require.NoError(t, err)
	var entries []AuditEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	require.Empty(t, entries)
}

func TestExportCancelledLeavesNothingBehind(t *testing.T) {
	db := newTestDB(t)
	recorder, _, _ := newTestRecorder(t, db)
	recordMany(t, recorder, "blog", 10)

	dir := t.TempDir()
	svc := newTestExportService(t, db, ExportOptions{StagingDir: dir, BatchSize: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	artifact, err := svc.Prepare(ctx, ExportRequest{Format: ExportFormatCSV})
	require.Error(t, err)
	require.Nil(t, artifact)
	require.Empty(t, stagedFiles(t, dir))
}

func TestExportMaxRowsGuard(t *testing.T) {
	db := newTestDB(t)
	recorder, _, _ := newTestRecorder(t, db)
	recordMany(t, recorder, "blog", 6)

	dir := t.TempDir()
	svc := newTestExportService(t, db, ExportOptions{StagingDir: dir, MaxRows: 5})

	_, err := svc.Prepare(context.Background(), ExportRequest{Format: ExportFormatCSV})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Empty(t, stagedFiles(t, dir))

	artifact, err := svc.Prepare(context.Background(), ExportRequest{Filter: AuditFilter{ActorID: "admin-0"}, Format: ExportFormatCSV})
	require.NoError(t, err)
	require.EqualValues(t, 2, artifact.Rows)
	require.NoError(t, artifact.Close())
	require.Empty(t, stagedFiles(t, dir))
}

func TestExportRejectsBadRequests(t *testing.T) {
	svc := newTestExportService(t, newTestDB(t), ExportOptions{})

	_, err := svc.Prepare(context.Background(), ExportRequest{Format: "xlsx"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = svc.Prepare(context.Background(), ExportRequest{Filter: AuditFilter{Dates: DateRange{From: &from, To: &to}}})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestExportFileRenamesIntoPlace(t *testing.T) {
	db := newTestDB(t)
	recorder, _, _ := newTestRecorder(t, db)
	recordMany(t, recorder, "setting", 3)

	svc := newTestExportService(t, db, ExportOptions{})
	dest := filepath.Join(t.TempDir(), "snapshots", "ledger.json")

	rows, err := svc.ExportFile(context.Background(), ExportRequest{Format: ExportFormatJSON}, dest)
	require.NoError(t, err)
	require.EqualValues(t, 3, rows)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var entries []AuditEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 3)
	require.Empty(t, stagedFiles(t, filepath.Dir(dest)))
}

func TestExportExcludesEntriesAppendedAfterSnapshot(t *testing.T) {
	db := newTestDB(t)
	recorder, _, _ := newTestRecorder(t, db)
	recordMany(t, recorder, "blog", 4)

	svc := newTestExportService(t, db, ExportOptions{BatchSize: 2})
	maxID, total, err := svc.snapshot(context.Background(), AuditFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)

	recordMany(t, recorder, "blog", 3)

	var buf bytes.Buffer
	writer := &csvRowWriter{w: csv.NewWriter(&buf)}
	rows, err := svc.stream(context.Background(), AuditFilter{}, maxID, writer)
	require.NoError(t, err)
	require.EqualValues(t, 4, rows)
}

func TestSweepStaging(t *testing.T) {
	dir := t.TempDir()
	svc := newTestExportService(t, newTestDB(t), ExportOptions{StagingDir: dir})

	stale := filepath.Join(dir, stagingFilePrefix+"old.csv")
	fresh := filepath.Join(dir, stagingFilePrefix+"new.csv")
	other := filepath.Join(dir, "keep.txt")
	for _, path := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed, err := svc.SweepStaging(time.Now(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(fresh)
	require.NoError(t, err)
	_, err = os.Stat(other)
	require.NoError(t, err)
}

func TestParseExportFormat(t *testing.T) {
	format, err := ParseExportFormat("")
	require.NoError(t, err)
	require.Equal(t, ExportFormatCSV, format)

	format, err = ParseExportFormat(" JSON ")
	require.NoError(t, err)
	require.Equal(t, ExportFormatJSON, format)
}
