package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultBackupTimeout = 15 * time.Minute

// BackupJob runs the scheduled backup and rotation
type BackupJob struct {
	service       *BackupService
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates the scheduled backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		timeout:       defaultBackupTimeout,
		log:           log.With().Str("job", "db_backup").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *BackupJob) Name() string {
	return "db_backup"
}

// Run creates and uploads a backup, then rotates old remote backups.
// A rotation failure does not fail the job; the new backup is already
// uploaded at that point.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
