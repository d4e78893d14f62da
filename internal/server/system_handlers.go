// Package server provides the HTTP server and routing for the simulation API.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/backtest/internal/database"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	historyDB   *database.DB
	cacheDB     *database.DB
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, historyDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		historyDB:   historyDB,
		cacheDB:     cacheDB,
	}
}

// SystemStatusResponse describes the running process and its databases.
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	RAMPercent    float64           `json:"ram_percent"`
	Databases     map[string]string `json:"databases"`
	LastChecked   string            `json:"last_checked"`
}

// DBInfo describes one on-disk database file.
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// DatabaseStatsResponse lists database files and their total size.
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DiskUsageResponse reports data directory disk usage.
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
}

// HandleSystemStatus returns process and database health
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()

	databases := make(map[string]string)
	status := "healthy"
	for _, db := range []*database.DB{h.historyDB, h.cacheDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(r.Context()); err != nil {
			databases[db.Name()] = "unhealthy: " + err.Error()
			status = "degraded"
		} else {
			databases[db.Name()] = "healthy"
		}
	}

	response := SystemStatusResponse{
		Status:        status,
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Databases:     databases,
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleDatabaseStats returns database sizes
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	for _, db := range []*database.DB{h.historyDB, h.cacheDB} {
		if db == nil {
			continue
		}
		if info, err := os.Stat(db.Path()); err == nil {
			sizeMB := float64(info.Size()) / 1024 / 1024
			totalSizeMB += sizeMB
			databases = append(databases, DBInfo{
				Name:   db.Name(),
				Path:   db.Path(),
				SizeMB: sizeMB,
			})
		}
	}

	response := DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages. The CPU sample
// window is kept short so the status endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "backtest",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
