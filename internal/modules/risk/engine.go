package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/events"
)

// EngineConfig wires an engine's scorers, weights and collaborators.
type EngineConfig struct {
	Scorers       []Scorer
	Weights       Weights
	Snapshots     *SnapshotRepository
	Events        *events.Manager
	FactorTimeout time.Duration
	BatchWorkers  int
	Log           zerolog.Logger
}

// Engine computes composite risk assessments by fanning out the factor
// scorers and combining their results under the configured weights.
type Engine struct {
	scorers       []Scorer
	weights       Weights
	weightByName  map[string]float64
	snapshots     *SnapshotRepository
	events        *events.Manager
	factorTimeout time.Duration
	batchWorkers  int
	log           zerolog.Logger
}

// NewEngine creates a risk engine. Zero timeout and worker values fall
// back to 10s and 4 workers.
func NewEngine(cfg EngineConfig) *Engine {
	timeout := cfg.FactorTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	workers := cfg.BatchWorkers
	if workers <= 0 {
		workers = 4
	}

	return &Engine{
		scorers:       cfg.Scorers,
		weights:       cfg.Weights,
		weightByName:  cfg.Weights.Map(),
		snapshots:     cfg.Snapshots,
		events:        cfg.Events,
		factorTimeout: timeout,
		batchWorkers:  workers,
		log:           cfg.Log.With().Str("service", "risk_engine").Logger(),
	}
}

// Calculate runs every factor scorer for a ticker and combines the
// results into a weighted assessment. A failing scorer degrades to its
// factor fallback; only a blank ticker returns an error.
func (e *Engine) Calculate(ctx context.Context, ticker string) (*Assessment, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	now := time.Now().UTC()
	assessment := &Assessment{
		Ticker:       ticker,
		Date:         now.Format("2006-01-02"),
		Factors:      make(map[string]FactorScore, len(e.scorers)),
		Weights:      e.weights.Map(),
		Errors:       make(map[string]string),
		CalculatedAt: now,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, scorer := range e.scorers {
		wg.Add(1)
		go func(sc Scorer) {
			defer wg.Done()
			name := sc.Name()
			factor, err := e.scoreFactor(ctx, sc, ticker)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.Warn().
					Err(err).
					Str("ticker", ticker).
					Str("factor", name).
					Msg("Factor scorer failed, using fallback")
				assessment.Errors[name] = err.Error()
				assessment.Factors[name] = FactorScore{
					Score:  fallbackScore(name),
					Detail: map[string]interface{}{"reason": "scorer_error"},
				}
				return
			}
			assessment.Factors[name] = factor
		}(scorer)
	}
	wg.Wait()

	overall, level, err := e.aggregate(assessment.Factors)
	if err != nil {
		// Unclassifiable assessments are returned but never persisted,
		// so the timeline only holds real classifications.
		e.log.Error().Err(err).Str("ticker", ticker).Msg("Could not aggregate factor scores")
		assessment.OverallScore = 5.0
		assessment.RiskLevel = RiskLevelUnknown
		assessment.Errors["aggregation"] = err.Error()
		e.emitCalculated(assessment)
		return assessment, nil
	}

	assessment.OverallScore = overall
	assessment.RiskLevel = level

	if err := e.snapshots.Upsert(SnapshotFromAssessment(assessment)); err != nil {
		e.log.Error().Err(err).Str("ticker", ticker).Msg("Could not persist risk snapshot")
		assessment.Errors["persistence"] = err.Error()
	}

	e.emitCalculated(assessment)

	e.log.Info().
		Str("ticker", ticker).
		Float64("overall_score", overall).
		Str("risk_level", level).
		Msg("Risk score calculated")

	return assessment, nil
}

// CalculateBatch scores several tickers over a bounded worker pool.
// Tickers are independent: one failure never affects another's result.
func (e *Engine) CalculateBatch(ctx context.Context, tickers []string) map[string]BatchResult {
	results := make(map[string]BatchResult, len(tickers))
	if len(tickers) == 0 {
		return results
	}

	start := time.Now()
	workers := e.batchWorkers
	if workers > len(tickers) {
		workers = len(tickers)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, failed int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				res := e.safeCalculate(ctx, ticker)

				mu.Lock()
				results[ticker] = res
				if res.Error == "" {
					succeeded++
				} else {
					failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, ticker := range tickers {
		jobs <- ticker
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(start)
	e.events.EmitTyped(events.RiskBatchCompleted, "risk", &events.RiskBatchCompletedData{
		Requested: len(tickers),
		Succeeded: succeeded,
		Failed:    failed,
		Duration:  duration.Seconds(),
	})

	e.log.Info().
		Int("requested", len(tickers)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("duration", duration).
		Msg("Risk batch completed")

	return results
}

// safeCalculate converts one ticker's calculation into a batch result,
// recovering panics so a worker survives its current ticker.
func (e *Engine) safeCalculate(ctx context.Context, ticker string) (res BatchResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("ticker", ticker).Interface("panic", r).Msg("Calculation panicked")
			res = BatchResult{Error: fmt.Sprintf("calculation panicked: %v", r)}
		}
	}()

	assessment, err := e.Calculate(ctx, ticker)
	if err != nil {
		return BatchResult{Error: err.Error()}
	}
	return BatchResult{Assessment: assessment}
}

// scoreFactor runs one scorer under the per-factor deadline, recovering
// panics into errors.
func (e *Engine) scoreFactor(ctx context.Context, sc Scorer, ticker string) (FactorScore, error) {
	fctx, cancel := context.WithTimeout(ctx, e.factorTimeout)
	defer cancel()

	type outcome struct {
		factor FactorScore
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("scorer panicked: %v", r)}
			}
		}()
		factor, err := sc.Score(fctx, ticker)
		done <- outcome{factor: factor, err: err}
	}()

	select {
	case out := <-done:
		return out.factor, out.err
	case <-fctx.Done():
		return FactorScore{}, fctx.Err()
	}
}

// aggregate combines factor scores into the weighted composite.
func (e *Engine) aggregate(factors map[string]FactorScore) (overall float64, level string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregation panicked: %v", r)
		}
	}()

	if len(factors) == 0 {
		return 0, "", fmt.Errorf("no factor scores produced")
	}

	var weighted float64
	for name, factor := range factors {
		weight, ok := e.weightByName[name]
		if !ok {
			return 0, "", fmt.Errorf("no weight configured for factor %q", name)
		}
		weighted += factor.Score * weight
	}

	overall = clamp(round2(weighted), 0, 10)
	return overall, Classify(overall), nil
}

func (e *Engine) emitCalculated(a *Assessment) {
	e.events.EmitTyped(events.RiskScoreCalculated, "risk", &events.RiskScoreCalculatedData{
		Ticker:       a.Ticker,
		Date:         a.Date,
		OverallScore: a.OverallScore,
		RiskLevel:    a.RiskLevel,
	})
}
