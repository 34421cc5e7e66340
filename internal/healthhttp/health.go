// Package healthhttp exposes the Worker Service's health and metrics
// surface over HTTP using gin. It depends only on a narrow HealthProvider
// interface so the worker and runtime packages never import it back.
package healthhttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Snapshot mirrors worker.Snapshot's shape without importing the worker
// package, keeping the dependency direction one-way (cmd/worker wires
// worker -> healthhttp, never the reverse).
type Snapshot struct {
	Status           string
	WorkerID         string
	Uptime           time.Duration
	EventsProcessed  int64
	EventsSucceeded  int64
	EventsFailed     int64
	AvgDurationMs    float64
	LastError        string
	LastErrorTime    *time.Time
	ActiveEventCount int
	MemoryUsageBytes uint64
}

// HealthProvider is implemented by cmd/worker's healthAdapter, which converts
// *worker.Worker's worker.Snapshot into this package's Snapshot.
type HealthProvider interface {
	Health() Snapshot
}

// Server is a minimal gin server exposing /healthz and /metrics.
type Server struct {
	engine   *gin.Engine
	provider HealthProvider
}

// NewServer builds a Server over the given health provider.
func NewServer(provider HealthProvider) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, provider: provider}
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", s.handleMetrics)
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealthz(c *gin.Context) {
	snap := s.provider.Health()

	status := http.StatusOK
	if snap.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":             snap.Status,
		"workerId":           snap.WorkerID,
		"uptime":             snap.Uptime.String(),
		"eventsProcessed":    snap.EventsProcessed,
		"eventsSucceeded":    snap.EventsSucceeded,
		"eventsFailed":       snap.EventsFailed,
		"lastError":          snap.LastError,
		"lastErrorTime":      snap.LastErrorTime,
		"activeEventCount":   snap.ActiveEventCount,
		"memoryUsage":        snap.MemoryUsageBytes,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	snap := s.provider.Health()
	c.JSON(http.StatusOK, gin.H{
		"events_processed_total": snap.EventsProcessed,
		"events_succeeded_total": snap.EventsSucceeded,
		"events_failed_total":    snap.EventsFailed,
		"avg_processing_ms":      snap.AvgDurationMs,
		"active_event_count":     snap.ActiveEventCount,
	})
}
