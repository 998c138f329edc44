package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SyncRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Sync_runs",
			Help: "Number of completed sync passes",
		},
	)

	SyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Sync_failures",
			Help: "Number of sync passes that aborted before the entity stage",
		},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "Sync_duration_seconds",
			Help: "Time taken by one full sync pass",
		},
	)

	EntitiesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Entities_created",
			Help: "Number of entities created in the content store",
		},
	)

	EntitiesUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Entities_updated",
			Help: "Number of entities updated in the content store",
		},
	)

	EntitiesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Entities_skipped",
			Help: "Number of entities skipped as unchanged",
		},
	)

	EntityErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Entity_errors",
			Help: "Number of per-entity persistence failures",
		},
	)

	TrainersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Trainers_created",
			Help: "Number of trainer entities created in the content store",
		},
	)

	RecordsExcluded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Records_excluded",
			Help: "Number of raw schedule records dropped by exclusion rules",
		},
	)

	ReportsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "Reports_published",
			Help: "Number of sync reports handed to Kafka",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		SyncRuns,
		SyncFailures,
		SyncDuration,
		EntitiesCreated,
		EntitiesUpdated,
		EntitiesSkipped,
		EntityErrors,
		TrainersCreated,
		RecordsExcluded,
		ReportsPublished,
	)
}
