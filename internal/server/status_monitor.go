package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/events"
)

// healthCheckTimeout bounds one round of store pings.
const healthCheckTimeout = 10 * time.Second

// StatusMonitor periodically checks store health and emits events when
// the overall status or the graph connectivity changes.
type StatusMonitor struct {
	eventManager   *events.Manager
	systemHandlers *SystemHandlers
	log            zerolog.Logger

	// Previous observation; transitions are emitted only after the
	// first check recorded a baseline.
	initialized bool
	lastStatus  string
	lastGraphUp bool

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(eventManager *events.Manager, systemHandlers *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		eventManager:   eventManager,
		systemHandlers: systemHandlers,
		log:            log.With().Str("component", "status_monitor").Logger(),
		stopChan:       make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop halts the monitoring loop
func (m *StatusMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// monitor runs the periodic monitoring loop
func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Baseline check
	m.checkStatuses()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.checkStatuses()
		}
	}
}

// checkStatuses compares current store health against the previous
// observation and emits change events
func (m *StatusMonitor) checkStatuses() {
	if m.eventManager == nil || m.systemHandlers == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	status, components := m.systemHandlers.collectHealth(ctx)
	graphUp := components["graph"] == componentConnected

	if m.initialized {
		if status != m.lastStatus {
			m.log.Info().
				Str("previous", m.lastStatus).
				Str("status", status).
				Msg("System status changed")

			m.eventManager.EmitTyped(events.SystemStatusChanged, "status_monitor", &events.SystemStatusChangedData{
				Status:    status,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}

		if graphUp != m.lastGraphUp {
			m.log.Info().Bool("connected", graphUp).Msg("Graph connectivity changed")

			m.eventManager.EmitTyped(events.GraphStatusChanged, "status_monitor", &events.GraphStatusChangedData{
				Connected: graphUp,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}
	}

	m.initialized = true
	m.lastStatus = status
	m.lastGraphUp = graphUp
}
