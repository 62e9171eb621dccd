package jobs

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/database"
)

// WALCheckpointJob truncates the WAL files of the sqlite databases so
// they do not grow unbounded between restarts.
type WALCheckpointJob struct {
	coreDB  *database.DB
	cacheDB *database.DB
	log     zerolog.Logger
}

// NewWALCheckpointJob creates the hourly checkpoint job. Either handle
// may be nil.
func NewWALCheckpointJob(coreDB, cacheDB *database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		coreDB:  coreDB,
		cacheDB: cacheDB,
		log:     log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run executes the checkpoint on every configured database
func (j *WALCheckpointJob) Run() error {
	databases := map[string]*database.DB{
		"core":  j.coreDB,
		"cache": j.cacheDB,
	}

	checkpointed := 0
	var firstErr error
	for name, db := range databases {
		if db == nil {
			continue
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", name).
				Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("checkpoint %s: %w", name, err)
			}
			continue
		}
		checkpointed++
	}

	j.log.Info().
		Int("checkpointed", checkpointed).
		Msg("WAL checkpoint completed")

	return firstErr
}
