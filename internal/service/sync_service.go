package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
	"github.com/lucasjahn/simplyOrg-connector/internal/fingerprint"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/simplyorg"
	"github.com/lucasjahn/simplyOrg-connector/internal/metrics"
	"github.com/lucasjahn/simplyOrg-connector/internal/normalize"
	"github.com/lucasjahn/simplyOrg-connector/internal/service/serverrors"
)

type ScheduleFetcher interface {
	Fetch(ctx context.Context, sess *simplyorg.AuthSession, startDate, endDate string) ([]domain.RawScheduleRecord, *simplyorg.AuthSession, error)
}

type ContentStore interface {
	FindEntityByExternalID(ctx context.Context, externalID, entityType string) (int64, bool, error)
	FindEntityByTitle(ctx context.Context, title, entityType string) (int64, bool, error)
	CreateEntity(ctx context.Context, entityType, title, status string) (int64, error)
	UpdateEntityTitle(ctx context.Context, id int64, title string) error
	SetStructuredFields(ctx context.Context, id int64, fields map[string]any) error
	GetFingerprint(ctx context.Context, id int64) (string, bool, error)
	SetFingerprint(ctx context.Context, id int64, fingerprint string) error
}

type RunHistorian interface {
	RecordRun(ctx context.Context, report domain.SyncReport) error
}

type ReportNotifier interface {
	Publish(ctx context.Context, report domain.SyncReport) error
}

// RunParams selects what one sync pass covers. Zero values mean the
// configured defaults: the current calendar year window, no entity cap.
type RunParams struct {
	Start   string
	End     string
	Limit   int
	Trigger string
}

// SyncService drives one full pass: authenticate, fetch, normalize, then a
// create/update/skip decision per event. Passes are strictly sequential; a
// second Run while one is in flight fails fast with ErrSyncAlreadyRunning.
type SyncService struct {
	fetcher  ScheduleFetcher
	store    ContentStore
	history  RunHistorian
	notifier ReportNotifier
	trainers *TrainerResolver
	log      *slog.Logger

	normOpts    normalize.Options
	eventType   string
	windowYears uint

	mu         sync.Mutex
	running    bool
	sess       *simplyorg.AuthSession
	lastReport *domain.SyncReport
}

// NewSyncService wires the orchestrator. history and notifier may be nil;
// the pass then runs without run telemetry or report publishing.
func NewSyncService(
	fetcher ScheduleFetcher,
	store ContentStore,
	history RunHistorian,
	notifier ReportNotifier,
	syncCfg config.Sync,
	storeCfg config.Store,
	log *slog.Logger,
) *SyncService {
	return &SyncService{
		fetcher:  fetcher,
		store:    store,
		history:  history,
		notifier: notifier,
		trainers: NewTrainerResolver(store, storeCfg.TrainerEntityType, log),
		log:      log.With(slog.String("component", "sync_service")),
		normOpts: normalize.Options{
			RentalCategory:   syncCfg.RentalCategory,
			CourseCategory:   syncCfg.CourseCategory,
			DefaultStartTime: syncCfg.DefaultStartTime,
			DefaultEndTime:   syncCfg.DefaultEndTime,
		},
		eventType:   storeCfg.EventEntityType,
		windowYears: syncCfg.WindowYears,
	}
}

// Run executes one sync pass. Authentication and fetch failures abort the
// pass and are returned as-is; per-entity failures are collected in the
// report and never abort the remaining entities.
func (s *SyncService) Run(ctx context.Context, params RunParams) (domain.SyncReport, error) {
	if !s.tryBegin() {
		return domain.SyncReport{}, serverrors.ErrSyncAlreadyRunning
	}
	defer s.endRun()

	trigger := params.Trigger
	if trigger == "" {
		trigger = domain.TriggerAPI
	}

	startDate, endDate := params.Start, params.End
	if startDate == "" || endDate == "" {
		startDate, endDate = simplyorg.YearWindow(time.Now(), s.windowYears)
	}

	report := domain.SyncReport{
		RunID:       uuid.New(),
		Trigger:     trigger,
		WindowStart: startDate,
		WindowEnd:   endDate,
		StartedAt:   time.Now().UTC(),
	}

	s.log.Info("sync pass started",
		slog.String("run_id", report.RunID.String()),
		slog.String("trigger", trigger),
		slog.String("start", startDate),
		slog.String("end", endDate),
		slog.Int("limit", params.Limit),
	)

	records, sess, err := s.fetcher.Fetch(ctx, s.session(), startDate, endDate)
	if err != nil {
		s.setSession(nil)
		metrics.SyncFailures.Inc()
		s.log.Error("sync pass aborted",
			slog.String("run_id", report.RunID.String()),
			slog.Any("error", err),
		)
		return domain.SyncReport{}, err
	}
	s.setSession(sess)
	report.Fetched = len(records)

	res := normalize.Events(records, s.normOpts)
	report.Excluded = res.Excluded
	metrics.RecordsExcluded.Add(float64(res.Excluded.Total()))

	events := res.Events
	// the cap applies to whole events, a grouped series is never split
	if params.Limit > 0 && len(events) > params.Limit {
		events = events[:params.Limit]
	}

	for _, ev := range events {
		s.syncEvent(ctx, ev, &report)
	}

	report.FinishedAt = time.Now().UTC()
	metrics.SyncRuns.Inc()
	metrics.SyncDuration.Observe(report.Duration().Seconds())

	s.setLastReport(report)
	s.emit(ctx, report)

	s.log.Info("sync pass finished",
		slog.String("run_id", report.RunID.String()),
		slog.Int("fetched", report.Fetched),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("trainers_created", report.TrainersCreated),
		slog.Int("excluded", report.Excluded.Total()),
		slog.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// Running reports whether a pass is currently in flight.
func (s *SyncService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the report of the most recently finished pass.
func (s *SyncService) LastReport() (domain.SyncReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return domain.SyncReport{}, false
	}
	return *s.lastReport, true
}

// syncEvent resolves the event's trainers, then runs the create/update/skip
// decision for the event itself.
func (s *SyncService) syncEvent(ctx context.Context, ev domain.CanonicalEvent, report *domain.SyncReport) {
	for _, ref := range ev.Trainers {
		created, err := s.trainers.Resolve(ctx, ref)
		if err != nil {
			s.recordError(report, ref.Name, err)
			continue
		}
		if created {
			report.TrainersCreated++
			metrics.TrainersCreated.Inc()
		}
	}

	newFP := fingerprint.Event(ev)

	id, found, err := s.store.FindEntityByExternalID(ctx, ev.ExternalID, s.eventType)
	if err != nil {
		s.recordError(report, ev.Title, err)
		return
	}

	if !found {
		id, err = s.store.CreateEntity(ctx, s.eventType, ev.Title, "")
		if err != nil {
			s.recordError(report, ev.Title, err)
			return
		}
		if err := s.store.SetStructuredFields(ctx, id, eventFields(ev)); err != nil {
			s.recordError(report, ev.Title, err)
			return
		}
		if err := s.store.SetFingerprint(ctx, id, newFP); err != nil {
			s.recordError(report, ev.Title, err)
			return
		}
		report.Created++
		metrics.EntitiesCreated.Inc()
		return
	}

	stored, _, err := s.store.GetFingerprint(ctx, id)
	if err != nil {
		s.recordError(report, ev.Title, err)
		return
	}
	if !fingerprint.Changed(stored, newFP) {
		report.Skipped++
		metrics.EntitiesSkipped.Inc()
		return
	}

	if err := s.store.UpdateEntityTitle(ctx, id, ev.Title); err != nil {
		s.recordError(report, ev.Title, err)
		return
	}
	if err := s.store.SetStructuredFields(ctx, id, eventFields(ev)); err != nil {
		s.recordError(report, ev.Title, err)
		return
	}
	if err := s.store.SetFingerprint(ctx, id, newFP); err != nil {
		s.recordError(report, ev.Title, err)
		return
	}
	report.Updated++
	metrics.EntitiesUpdated.Inc()
}

// emit hands the finished report to the optional sinks. Their failures are
// logged by the sinks themselves and never fail the pass.
func (s *SyncService) emit(ctx context.Context, report domain.SyncReport) {
	if s.history != nil {
		_ = s.history.RecordRun(ctx, report)
	}
	if s.notifier != nil {
		_ = s.notifier.Publish(ctx, report)
	}
}

func (s *SyncService) recordError(report *domain.SyncReport, title string, err error) {
	perr := &serverrors.PersistenceError{Title: title, Cause: err}
	report.Errors = append(report.Errors, domain.ReportError{
		Title:   title,
		Message: err.Error(),
	})
	metrics.EntityErrors.Inc()
	s.log.Warn("entity sync failed", slog.Any("error", perr))
}

func (s *SyncService) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *SyncService) endRun() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *SyncService) session() *simplyorg.AuthSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *SyncService) setSession(sess *simplyorg.AuthSession) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

func (s *SyncService) setLastReport(report domain.SyncReport) {
	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()
}

func eventFields(ev domain.CanonicalEvent) map[string]any {
	return map[string]any{
		"external_id": ev.ExternalID,
		"event_name":  ev.EventName,
		"category":    ev.Category,
		"trainers":    ev.Trainers,
		"dates":       ev.Dates,
	}
}
