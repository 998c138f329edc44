package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/avast/retry-go"
	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/repository/reperrors"
)

// HistoryRepository appends one row per finished sync pass to ClickHouse.
// The table is append-only run telemetry; losing a row is logged but never
// fails the pass that produced it.
type HistoryRepository struct {
	db            clickhouse.Conn
	log           *slog.Logger
	retryAttempts uint
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

func NewHistoryRepository(db clickhouse.Conn, cfg config.ClickHouse, log *slog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:            db,
		log:           log,
		retryAttempts: cfg.RetryInsertAttempts,
		retryDelay:    cfg.RetryInsertDelay,
		retryMaxDelay: cfg.RetryInsertMaxDelay,
	}
}

func (r *HistoryRepository) RecordRun(ctx context.Context, report domain.SyncReport) error {
	errTexts := make([]string, 0, len(report.Errors))
	for _, e := range report.Errors {
		errTexts = append(errTexts, fmt.Sprintf("%s: %s", e.Title, e.Message))
	}

	err := retry.Do(
		func() error {
			return r.insert(ctx, report, errTexts)
		},
		retry.Attempts(r.retryAttempts),
		retry.Delay(r.retryDelay),
		retry.MaxDelay(r.retryMaxDelay),
		retry.RetryIf(func(err error) bool {
			return reperrors.IsRetryableError(err)
		}),
	)
	if err != nil {
		r.log.Error("failed to record sync run", slog.Any("error", err),
			slog.String("run_id", report.RunID.String()))
		return err
	}

	r.log.Info("sync run recorded", slog.String("run_id", report.RunID.String()))
	return nil
}

func (r *HistoryRepository) insert(ctx context.Context, report domain.SyncReport, errTexts []string) error {
	batch, err := r.db.PrepareBatch(ctx, `
		INSERT INTO sync_runs (
			run_id, trigger, window_start, window_end,
			fetched, created, updated, skipped, trainers_created,
			excluded, error_count, errors,
			started_at, finished_at, duration_ms
		) VALUES`)
	if err != nil {
		r.log.Error("failed to prepare batch", slog.Any("error", err))
		return err
	}

	if err := batch.Append(
		report.RunID, report.Trigger, report.WindowStart, report.WindowEnd,
		uint32(report.Fetched), uint32(report.Created), uint32(report.Updated),
		uint32(report.Skipped), uint32(report.TrainersCreated),
		uint32(report.Excluded.Total()), uint32(len(report.Errors)), errTexts,
		report.StartedAt, report.FinishedAt, uint64(report.Duration().Milliseconds()),
	); err != nil {
		r.log.Error("failed to append record", slog.Any("error", err))
		return err
	}

	return batch.Send()
}

func (r *HistoryRepository) Close() error {
	return r.db.Close()
}
