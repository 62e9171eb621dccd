// Package di provides dependency injection for scheduler jobs.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/analytics"
	"github.com/aristath/riskwatch/internal/clientdata"
	"github.com/aristath/riskwatch/internal/config"
	"github.com/aristath/riskwatch/internal/database"
	"github.com/aristath/riskwatch/internal/jobs"
	"github.com/aristath/riskwatch/internal/reliability"
	"github.com/aristath/riskwatch/internal/scheduler"
)

// Job schedules not taken from configuration. Cleanup and checkpoint run
// hourly at offset minutes so they never overlap; the replica sync keeps
// analytics fresh between nightly refreshes.
const (
	cacheCleanupSchedule  = "0 0 * * * *"
	walCheckpointSchedule = "0 15 * * * *"
	analyticsSyncSchedule = "0 30 */6 * * *"
)

// RegisterJobs creates the scheduler and registers all cron jobs.
// Returns JobInstances for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched
	instances := &JobInstances{}

	riskRefresh := jobs.NewRiskRefreshJob(
		container.RiskEngine,
		container.SnapshotRepo,
		container.CompanyRepo,
		container.Analytics,
		container.EventManager,
		cfg.MaxTrackedCompanies,
		log,
	)
	if err := sched.AddJob(cfg.RefreshSchedule, riskRefresh); err != nil {
		return nil, fmt.Errorf("failed to schedule risk refresh: %w", err)
	}
	instances.RiskRefresh = riskRefresh

	analyticsSync := analytics.NewSyncJob(container.Analytics, container.EventManager, log)
	if err := sched.AddJob(analyticsSyncSchedule, analyticsSync); err != nil {
		return nil, fmt.Errorf("failed to schedule analytics sync: %w", err)
	}
	instances.AnalyticsSync = analyticsSync

	cacheCleanup := clientdata.NewCleanupJob(container.ClientDataRepo, log)
	if err := sched.AddJob(cacheCleanupSchedule, cacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to schedule cache cleanup: %w", err)
	}
	instances.CacheCleanup = cacheCleanup

	walCheckpoint := jobs.NewWALCheckpointJob(container.CoreDB, container.CacheDB, log)
	if err := sched.AddJob(walCheckpointSchedule, walCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to schedule wal checkpoint: %w", err)
	}
	instances.WALCheckpoint = walCheckpoint

	if cfg.Backup != nil && cfg.Backup.Enabled {
		backupJob, err := buildBackupJob(container, cfg, log)
		if err != nil {
			// Backups are an optional facility; a broken S3 config should
			// not keep the scoring engine from starting.
			log.Warn().Err(err).Msg("Backup job disabled")
		} else {
			if err := sched.AddJob(cfg.Backup.Schedule, backupJob); err != nil {
				return nil, fmt.Errorf("failed to schedule backup: %w", err)
			}
			instances.Backup = backupJob
		}
	} else {
		log.Debug().Msg("S3 credentials not configured - backups disabled")
	}

	log.Info().Int("jobs", len(sched.Jobs())).Msg("All jobs registered")

	return instances, nil
}

func buildBackupJob(container *Container, cfg *config.Config, log zerolog.Logger) (*reliability.BackupJob, error) {
	s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
		Endpoint:        cfg.Backup.Endpoint,
		Region:          cfg.Backup.Region,
		Bucket:          cfg.Backup.Bucket,
		AccessKeyID:     cfg.Backup.AccessKeyID,
		SecretAccessKey: cfg.Backup.SecretAccessKey,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup storage: %w", err)
	}

	databases := map[string]*database.DB{
		"core":  container.CoreDB,
		"cache": container.CacheDB,
	}
	backupService := reliability.NewBackupService(
		s3Client,
		databases,
		container.Analytics,
		cfg.DataDir,
		container.EventManager,
		log,
	)

	return reliability.NewBackupJob(backupService, cfg.Backup.RetentionDays, log), nil
}
