// Package jobs holds the cross-module cron jobs: the nightly risk
// refresh and the hourly WAL checkpoint. Jobs that belong to a single
// store live next to it (clientdata cleanup, analytics sync).
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/events"
	"github.com/aristath/riskwatch/internal/modules/risk"
)

const defaultRefreshTimeout = 10 * time.Minute

// BatchCalculator runs risk calculations for a set of tickers.
type BatchCalculator interface {
	CalculateBatch(ctx context.Context, tickers []string) map[string]risk.BatchResult
}

// RecentTickerSource lists tickers with recent risk snapshots.
type RecentTickerSource interface {
	RecentTickers(limit int) ([]string, error)
}

// TrackedTickerSource lists the tracked company tickers.
type TrackedTickerSource interface {
	GetTickers() ([]string, error)
}

// ReplicaSyncer refreshes the analytical replica from the relational core.
type ReplicaSyncer interface {
	SyncFromRelational(ctx context.Context) ([]string, error)
}

// EventEmitter publishes job lifecycle events.
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// RiskRefreshJob recalculates risk for every ticker of interest and
// then refreshes the analytical replica so dashboards read fresh data.
type RiskRefreshJob struct {
	engine    BatchCalculator
	snapshots RecentTickerSource
	companies TrackedTickerSource
	replica   ReplicaSyncer
	events    EventEmitter
	maxTicker int
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRiskRefreshJob creates the nightly refresh job. maxTickers caps the
// union of recently scored and tracked tickers; replica and events may
// be nil.
func NewRiskRefreshJob(
	engine BatchCalculator,
	snapshots RecentTickerSource,
	companies TrackedTickerSource,
	replica ReplicaSyncer,
	eventManager EventEmitter,
	maxTickers int,
	log zerolog.Logger,
) *RiskRefreshJob {
	if maxTickers <= 0 {
		maxTickers = 50
	}
	return &RiskRefreshJob{
		engine:    engine,
		snapshots: snapshots,
		companies: companies,
		replica:   replica,
		events:    eventManager,
		maxTicker: maxTickers,
		timeout:   defaultRefreshTimeout,
		log:       log.With().Str("job", "risk_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RiskRefreshJob) Name() string {
	return "risk_refresh"
}

// Run executes one refresh cycle
func (j *RiskRefreshJob) Run() error {
	start := time.Now()
	jobID := uuid.NewString()
	j.emitStatus(jobID, "started", "Nightly risk refresh", 0, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	tickers, err := j.collectTickers()
	if err != nil {
		j.emitStatus(jobID, "failed", "Nightly risk refresh", time.Since(start).Seconds(), err.Error(), nil)
		return err
	}

	succeeded, failed := 0, 0
	if len(tickers) > 0 {
		results := j.engine.CalculateBatch(ctx, tickers)
		for _, res := range results {
			if res.Error == "" {
				succeeded++
			} else {
				failed++
			}
		}
	}

	var synced []string
	if j.replica != nil {
		synced, err = j.replica.SyncFromRelational(ctx)
		if err != nil {
			err = fmt.Errorf("replica sync after refresh: %w", err)
			j.emitStatus(jobID, "failed", "Nightly risk refresh", time.Since(start).Seconds(), err.Error(), map[string]interface{}{
				"tickers":   len(tickers),
				"succeeded": succeeded,
				"failed":    failed,
			})
			return err
		}
	}

	j.log.Info().
		Int("tickers", len(tickers)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Strs("synced_tables", synced).
		Dur("duration", time.Since(start)).
		Msg("Risk refresh completed")

	j.emitStatus(jobID, "completed", "Nightly risk refresh", time.Since(start).Seconds(), "", map[string]interface{}{
		"tickers":       len(tickers),
		"succeeded":     succeeded,
		"failed":        failed,
		"synced_tables": len(synced),
	})
	return nil
}

// collectTickers unions recently scored tickers with the tracked set,
// recent first, capped at maxTicker. One source failing degrades to the
// other; both failing fails the job.
func (j *RiskRefreshJob) collectTickers() ([]string, error) {
	recent, recentErr := j.snapshots.RecentTickers(j.maxTicker)
	if recentErr != nil {
		j.log.Warn().Err(recentErr).Msg("Failed to list recently scored tickers")
	}

	tracked, trackedErr := j.companies.GetTickers()
	if trackedErr != nil {
		j.log.Warn().Err(trackedErr).Msg("Failed to list tracked tickers")
	}

	if recentErr != nil && trackedErr != nil {
		return nil, fmt.Errorf("no ticker sources available: %v", recentErr)
	}

	seen := make(map[string]bool, len(recent)+len(tracked))
	tickers := make([]string, 0, len(recent)+len(tracked))
	for _, t := range append(recent, tracked...) {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
		if len(tickers) >= j.maxTicker {
			break
		}
	}
	return tickers, nil
}

func (j *RiskRefreshJob) emitStatus(jobID, status, description string, duration float64, errMsg string, metadata map[string]interface{}) {
	if j.events == nil {
		return
	}
	data := &events.JobStatusData{
		JobID:       jobID,
		JobType:     "risk_refresh",
		Status:      status,
		Description: description,
		Duration:    duration,
		Error:       errMsg,
		Metadata:    metadata,
		Timestamp:   time.Now(),
	}
	j.events.EmitTyped(data.EventType(), "jobs", data)
}
