package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/avast/retry-go"
	"github.com/robfig/cron/v3"

	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/httpapi"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/kafka/report"
	chrep "github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/repository/clickhouse"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/repository/contentstore"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/simplyorg"
	"github.com/lucasjahn/simplyOrg-connector/internal/metrics"
	"github.com/lucasjahn/simplyOrg-connector/internal/service"
	"github.com/lucasjahn/simplyOrg-connector/internal/service/serverrors"
)

type AdminServer interface {
	Listen() error
	Shutdown(ctx context.Context) error
}

type SyncRunner interface {
	Run(ctx context.Context, params service.RunParams) (domain.SyncReport, error)
}

type ContentStore interface {
	Close() error
}

type Worker struct {
	log       *slog.Logger
	server    AdminServer
	scheduler *cron.Cron
	store     ContentStore
	history   *chrep.HistoryRepository
	producer  *report.Producer
}

func NewWorker(cfg config.Config, log *slog.Logger) (*Worker, error) {
	// init metrics Prometheus
	metrics.Register()

	// init content store
	store, err := contentstore.New(cfg.Store, log)
	if err != nil {
		return nil, err
	}

	// init upstream client
	sessions := simplyorg.NewSessionManager(cfg.SimplyOrg, log)
	fetcher := simplyorg.NewFetcher(cfg.SimplyOrg, sessions, log)

	// init run history sink, when enabled
	var historyRepo *chrep.HistoryRepository
	var history service.RunHistorian
	if cfg.ClickHouse.Enabled {
		conn, err := initClickHouseConnection(cfg.ClickHouse, log)
		if err != nil {
			return nil, err
		}

		// temporary migration solution (TODO: replace with full-featured migrations)
		if err := workaroundMigration(conn); err != nil {
			log.Error("failed to create table sync_runs", slog.Any("error", err))
			return nil, err
		}

		historyRepo = chrep.NewHistoryRepository(conn, cfg.ClickHouse, log)
		history = historyRepo
	}

	// init report producer, when enabled
	var producer *report.Producer
	var notifier service.ReportNotifier
	if cfg.Kafka.Enabled {
		producer, err = report.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Error("failed to create kafka report producer", slog.Any("error", err))
			return nil, err
		}
		notifier = producer
	}

	// init service
	syncServ := service.NewSyncService(fetcher, store, history, notifier, cfg.Sync, cfg.Store, log)

	// init admin API
	server := httpapi.NewServer(cfg.HTTPServer, syncServ, store, log)

	// init cron trigger
	var scheduler *cron.Cron
	if cfg.Sync.CronEnabled {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Sync.CronSpec, scheduledPass(syncServ, cfg.Sync.CronWindowYears, log)); err != nil {
			log.Error("failed to schedule cron sync", slog.Any("error", err),
				slog.String("spec", cfg.Sync.CronSpec))
			return nil, err
		}
		log.Info("cron sync scheduled", slog.String("spec", cfg.Sync.CronSpec))
	}

	return &Worker{
		log:       log,
		server:    server,
		scheduler: scheduler,
		store:     store,
		history:   historyRepo,
		producer:  producer,
	}, nil
}

// scheduledPass builds the cron job body. An in-flight pass is skipped, not
// queued.
func scheduledPass(runner SyncRunner, windowYears uint, log *slog.Logger) func() {
	return func() {
		start, end := simplyorg.YearWindow(time.Now(), windowYears)
		_, err := runner.Run(context.Background(), service.RunParams{
			Start:   start,
			End:     end,
			Trigger: domain.TriggerCron,
		})
		if err != nil {
			if errors.Is(err, serverrors.ErrSyncAlreadyRunning) {
				log.Warn("scheduled sync skipped, another pass is in flight")
				return
			}
			log.Error("scheduled sync failed", slog.Any("error", err))
		}
	}
}

func initClickHouseConnection(cfg config.ClickHouse, log *slog.Logger) (driver.Conn, error) {
	var conn driver.Conn
	err := retry.Do(
		func() error {
			var err error
			conn, err = clickhouse.Open(&clickhouse.Options{
				Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
				Auth: clickhouse.Auth{
					Database: cfg.Database,
					Username: cfg.Username,
					Password: cfg.Password,
				},
				Settings: clickhouse.Settings{
					"max_execution_time": cfg.MaxExecutionTime,
				},
				Compression: &clickhouse.Compression{
					Method: getCompressionMethod(cfg.CompressionMethod),
				},
				DialTimeout:     cfg.DialTimeout,
				MaxOpenConns:    cfg.MaxOpenConns,
				MaxIdleConns:    cfg.MaxIdleConns,
				ConnMaxLifetime: cfg.ConnMaxLifetime,
				BlockBufferSize: cfg.BlockBufferSize,
			})
			if err != nil {
				return err
			}
			return conn.Ping(context.Background())
		},
		retry.Attempts(cfg.RetryConnAttempts),
		retry.Delay(cfg.RetryConnDelay),
		retry.MaxDelay(cfg.RetryConnMaxDelay),
	)
	if err != nil {
		log.Error("failed to connect to clickhouse", slog.Any("error", err))
		return nil, err
	}

	return conn, nil
}

func (w *Worker) Run() error {
	if w.scheduler != nil {
		w.scheduler.Start()
	}
	return w.server.Listen()
}

func (w *Worker) Shutdown(ctx context.Context) error {
	w.log.Info("shutting down worker...")

	if w.scheduler != nil {
		select {
		case <-w.scheduler.Stop().Done():
		case <-ctx.Done():
			w.log.Warn("cron jobs still running at shutdown deadline")
		}
	}

	if err := w.server.Shutdown(ctx); err != nil {
		w.log.Error("failed to stop admin API", slog.Any("error", err))
	}

	if w.producer != nil {
		if err := w.producer.Close(); err != nil {
			w.log.Error("failed to close report producer", slog.Any("error", err))
		}
	}

	if w.history != nil {
		if err := w.history.Close(); err != nil {
			w.log.Error("failed to close run history sink", slog.Any("error", err))
		}
	}

	if err := w.store.Close(); err != nil {
		w.log.Error("failed to close content store", slog.Any("error", err))
	}

	w.log.Info("worker stopped")
	return nil
}

func getCompressionMethod(method string) clickhouse.CompressionMethod {
	switch method {
	case "none":
		return clickhouse.CompressionNone
	case "zstd":
		return clickhouse.CompressionZSTD
	case "lz4":
		return clickhouse.CompressionLZ4
	case "lz4hc":
		return clickhouse.CompressionLZ4HC
	case "gzip":
		return clickhouse.CompressionGZIP
	case "deflate":
		return clickhouse.CompressionDeflate
	case "br":
		return clickhouse.CompressionBrotli
	default:
		return clickhouse.CompressionNone
	}
}

// TODO: implement migrations and remove this
func workaroundMigration(conn driver.Conn) error {
	return conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS sync_runs (
			run_id UUID,
			trigger String,
			window_start String,
			window_end String,
			fetched UInt32,
			created UInt32,
			updated UInt32,
			skipped UInt32,
			trainers_created UInt32,
			excluded UInt32,
			error_count UInt32,
			errors Array(String),
			started_at DateTime,
			finished_at DateTime,
			duration_ms UInt64,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree() ORDER BY (started_at, run_id);`)
}
