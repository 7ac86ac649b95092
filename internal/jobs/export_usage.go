package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/DukeRupert/postpilot/internal/storage"
	"github.com/DukeRupert/postpilot/internal/usage"
	"github.com/DukeRupert/postpilot/internal/worker"
)

// maxSnapshotBytes bounds a single monthly CSV.
const maxSnapshotBytes = 64 << 20

// UsageLister returns one row per user who had usage in a cycle, whether
// the cycle is archived or still live.
type UsageLister interface {
	ListUsageForCycle(ctx context.Context, arg repository.ListUsageForCycleParams) ([]repository.ListUsageForCycleRow, error)
}

// ExportUsageHandler writes a CSV snapshot of one month's usage to object
// storage. Rollover archives the closing cycle, so exporting a past month
// works on any later day. Cycles only live in Postgres when the Postgres
// usage store is configured; with any other backend the job logs and
// completes.
type ExportUsageHandler struct {
	counters UsageLister
	storage  storage.Storage
	backend  string
	logger   *slog.Logger
}

// NewExportUsageHandler creates a new handler for usage export jobs.
// backend is the configured usage store (usage.BackendPostgres etc.).
func NewExportUsageHandler(counters UsageLister, store storage.Storage, backend string, logger *slog.Logger) *ExportUsageHandler {
	return &ExportUsageHandler{
		counters: counters,
		storage:  store,
		backend:  backend,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *ExportUsageHandler) Type() string {
	return worker.JobTypeExportUsage
}

// Handle exports the month named in the payload.
func (h *ExportUsageHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.ExportUsagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	month, err := storage.ParseSnapshotMonth(p.Month)
	if err != nil {
		return worker.NewPermanentError(err)
	}

	logger := h.logger.With("month", p.Month)

	if h.backend != usage.BackendPostgres {
		logger.Warn("usage export skipped: counters are not stored in postgres", "backend", h.backend)
		return nil
	}

	key := storage.UsageSnapshotKey(month)
	if !p.Overwrite {
		exists, err := h.storage.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("check snapshot: %w", err)
		}
		if exists {
			logger.Info("usage snapshot already exists", "key", key)
			return nil
		}
	}

	rows, err := h.counters.ListUsageForCycle(ctx, repository.ListUsageForCycleParams{
		CycleStart: month,
		CycleEnd:   month.AddDate(0, 1, 0),
	})
	if err != nil {
		return fmt.Errorf("list usage for cycle: %w", err)
	}

	body, err := encodeUsageCSV(rows)
	if err != nil {
		return worker.NewPermanentError(err)
	}

	err = h.storage.Put(ctx, key, bytes.NewReader(body), storage.PutOptions{
		ContentType: "text/csv",
		MaxSize:     maxSnapshotBytes,
		Overwrite:   p.Overwrite,
	})
	if err != nil {
		if storage.IsKeyExists(err) {
			logger.Info("usage snapshot written concurrently", "key", key)
			return nil
		}
		return fmt.Errorf("upload snapshot: %w", err)
	}

	logger.Info("usage snapshot exported", "key", key, "users", len(rows), "size_bytes", len(body))
	return nil
}

var usageCSVHeader = []string{"user_id", "email", "plan", "posts_generated", "monthly_reset"}

func encodeUsageCSV(rows []repository.ListUsageForCycleRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(usageCSVHeader); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}

	for _, r := range rows {
		reset := ""
		if r.MonthlyReset.Valid {
			reset = r.MonthlyReset.Time.UTC().Format(time.RFC3339)
		}
		record := []string{
			r.UserID.String(),
			r.Email,
			r.Plan,
			strconv.FormatInt(int64(r.PostsGenerated), 10),
			reset,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write CSV row for %s: %w", r.UserID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV write error: %w", err)
	}
	return buf.Bytes(), nil
}
