package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/riskwatch/internal/database"
	"github.com/aristath/riskwatch/internal/di"
	"github.com/aristath/riskwatch/internal/scheduler"
)

// Component states reported by the health endpoint.
const (
	componentConnected     = "connected"
	componentError         = "error"
	componentUnreachable   = "unreachable"
	componentNotConfigured = "not_configured"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	container   *di.Container
	startupTime time.Time
}

// NewSystemHandlers creates system monitoring handlers
func NewSystemHandlers(log zerolog.Logger, dataDir string, container *di.Container) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		container:   container,
		startupTime: time.Now(),
	}
}

// SystemHealthResponse reports per-store health
type SystemHealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  string            `json:"timestamp"`
}

// SystemStatusResponse is the comprehensive system status payload
type SystemStatusResponse struct {
	Status          string              `json:"status"`
	UptimeHours     float64             `json:"uptime_hours"`
	CPUPercent      float64             `json:"cpu_percent"`
	RAMPercent      float64             `json:"ram_percent"`
	DiskUsedPercent float64             `json:"disk_used_percent"`
	DiskFreeGB      float64             `json:"disk_free_gb"`
	Companies       int                 `json:"companies"`
	PriceRows       int                 `json:"price_rows"`
	NewsArticles    int                 `json:"news_articles"`
	RiskSnapshots   int                 `json:"risk_snapshots"`
	GraphConnected  bool                `json:"graph_connected"`
	Databases       []DBInfo            `json:"databases"`
	Jobs            []scheduler.JobInfo `json:"jobs"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb,omitempty"`
	PageCount int64   `json:"page_count,omitempty"`
}

// DatabaseStatsResponse holds database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// HandleSystemHealth returns per-store health
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	status, components := h.collectHealth(r.Context())

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	h.writeJSON(w, httpStatus, SystemHealthResponse{
		Status:     status,
		Components: components,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// collectHealth pings every store and reduces the results to an overall
// status. A relational store failure is "unhealthy"; losing only the
// analytical replica or the graph is "degraded".
func (h *SystemHandlers) collectHealth(ctx context.Context) (string, map[string]string) {
	components := make(map[string]string)
	unhealthy := false
	degraded := false

	if err := h.container.CoreDB.HealthCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Core database health check failed")
		components["core_db"] = componentError
		unhealthy = true
	} else {
		components["core_db"] = componentConnected
	}

	if err := h.container.CacheDB.HealthCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Cache database health check failed")
		components["cache_db"] = componentError
		unhealthy = true
	} else {
		components["cache_db"] = componentConnected
	}

	if err := h.container.Analytics.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Analytics replica unreachable")
		components["analytics"] = componentUnreachable
		degraded = true
	} else {
		components["analytics"] = componentConnected
	}

	if h.container.Graph == nil {
		components["graph"] = componentNotConfigured
	} else if err := h.container.Graph.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Graph store unreachable")
		components["graph"] = componentUnreachable
		degraded = true
	} else {
		components["graph"] = componentConnected
	}

	status := "healthy"
	if degraded {
		status = "degraded"
	}
	if unhealthy {
		status = "unhealthy"
	}

	return status, components
}

// HandleSystemStatus returns comprehensive system status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response, err := h.GetSystemStatusSnapshot(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("System status collected with warnings")
	}

	h.writeJSON(w, http.StatusOK, response)
}

// GetSystemStatusSnapshot collects the full status payload. Individual
// collection failures are logged and zeroed rather than failing the
// whole snapshot; the first error is returned for the caller to log.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) (SystemStatusResponse, error) {
	var firstErr error
	recordErr := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	companies, err := h.container.CompanyRepo.Count()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count companies")
		recordErr(err)
	}

	priceRows, err := h.container.PriceRepo.Count()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count price rows")
		recordErr(err)
	}

	newsArticles, err := h.container.NewsRepo.Count()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count news articles")
		recordErr(err)
	}

	riskSnapshots, err := h.container.SnapshotRepo.Count()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count risk snapshots")
		recordErr(err)
	}

	cpuPercent, ramPercent := h.getSystemStats()

	var diskUsedPercent, diskFreeGB float64
	if diskStat, diskErr := disk.Usage(h.dataDir); diskErr != nil {
		h.log.Warn().Err(diskErr).Msg("Failed to get disk usage")
		recordErr(diskErr)
	} else {
		diskUsedPercent = diskStat.UsedPercent
		diskFreeGB = float64(diskStat.Free) / 1024 / 1024 / 1024
	}

	status, components := h.collectHealth(ctx)

	databases, _ := h.databaseInfos()

	var jobs []scheduler.JobInfo
	if h.container.Scheduler != nil {
		jobs = h.container.Scheduler.Jobs()
	}

	response := SystemStatusResponse{
		Status:          status,
		UptimeHours:     time.Since(h.startupTime).Hours(),
		CPUPercent:      cpuPercent,
		RAMPercent:      ramPercent,
		DiskUsedPercent: diskUsedPercent,
		DiskFreeGB:      diskFreeGB,
		Companies:       companies,
		PriceRows:       priceRows,
		NewsArticles:    newsArticles,
		RiskSnapshots:   riskSnapshots,
		GraphConnected:  components["graph"] == componentConnected,
		Databases:       databases,
		Jobs:            jobs,
	}

	return response, firstErr
}

// HandleDatabaseStats returns per-database file statistics
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases, totalSizeMB := h.databaseInfos()

	h.writeJSON(w, http.StatusOK, DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// databaseInfos collects file statistics for the relational databases
// and the analytical replica.
func (h *SystemHandlers) databaseInfos() ([]DBInfo, float64) {
	infos := []DBInfo{}
	totalSizeMB := 0.0

	for _, db := range []*database.DB{h.container.CoreDB, h.container.CacheDB} {
		if db == nil {
			continue
		}

		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}

		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		totalSizeMB += sizeMB

		infos = append(infos, DBInfo{
			Name:      db.Name(),
			Path:      db.Path(),
			SizeMB:    sizeMB,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
		})
	}

	// The replica is a single file without WAL side files to report.
	if h.container.Analytics != nil && h.container.Analytics.Path() != "" {
		if info, err := os.Stat(h.container.Analytics.Path()); err == nil {
			sizeMB := float64(info.Size()) / 1024 / 1024
			totalSizeMB += sizeMB

			infos = append(infos, DBInfo{
				Name:   "analytics",
				Path:   h.container.Analytics.Path(),
				SizeMB: sizeMB,
			})
		}
	}

	return infos, totalSizeMB
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so the status endpoint stays fast
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
