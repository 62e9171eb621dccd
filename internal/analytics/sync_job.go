package analytics

import (
	"context"
	"time"

	"github.com/aristath/riskwatch/internal/events"
	"github.com/rs/zerolog"
)

// SyncJob refreshes the analytical replica from the relational core.
// Scheduled nightly, and also runs once at startup so analytics queries
// have data before the first scheduled refresh.
type SyncJob struct {
	store        *Store
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewSyncJob creates a new analytics sync job
func NewSyncJob(store *Store, eventManager *events.Manager, log zerolog.Logger) *SyncJob {
	return &SyncJob{
		store:        store,
		eventManager: eventManager,
		log:          log.With().Str("job", "analytics_sync").Logger(),
	}
}

// Run refreshes the replica and emits an AnalyticsSynced event
func (j *SyncJob) Run() error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tables, err := j.store.SyncFromRelational(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Analytics sync failed")
		if j.eventManager != nil {
			j.eventManager.EmitError("analytics", err, nil)
		}
		return err
	}

	duration := time.Since(start)
	j.log.Info().
		Strs("tables", tables).
		Dur("duration", duration).
		Msg("Analytics sync completed")

	if j.eventManager != nil {
		j.eventManager.EmitTyped(events.AnalyticsSynced, "analytics", &events.AnalyticsSyncedData{
			Tables:   tables,
			Duration: duration.Seconds(),
		})
	}

	return nil
}

// Name returns the job name
func (j *SyncJob) Name() string {
	return "analytics_sync"
}
