package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/gin-gonic/gin"
)

// StoreHealth is implemented by session stores that sit on a cache
type StoreHealth interface {
	RedisHealth(ctx context.Context) error
	CacheStats() *cache.CacheStats
}

// EventsHealth is implemented by the NATS event publisher
type EventsHealth interface {
	IsConnected() bool
}

// HealthHandler reports liveness and dependency health
type HealthHandler struct {
	store  StoreHealth
	events EventsHealth
}

// NewHealthHandler creates a HealthHandler. store may be nil when the
// session store has no cache to report on.
func NewHealthHandler(store StoreHealth) *HealthHandler {
	return &HealthHandler{store: store}
}

// WithEvents adds the NATS connection to the readiness report
func (h *HealthHandler) WithEvents(events EventsHealth) *HealthHandler {
	h.events = events
	return h
}

// HealthCheck returns service health status (basic)
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ooh-import-service",
	})
}

// ExtendedHealthCheck returns detailed health status including Redis
func (h *HealthHandler) ExtendedHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health := gin.H{
		"status":  "healthy",
		"service": "ooh-import-service",
	}
	checks := gin.H{}
	health["checks"] = checks

	if h.events != nil {
		if h.events.IsConnected() {
			checks["nats"] = gin.H{"status": "healthy"}
		} else {
			checks["nats"] = gin.H{"status": "disconnected"}
			health["status"] = "degraded"
		}
	}

	if h.store == nil {
		c.JSON(http.StatusOK, health)
		return
	}

	if err := h.store.RedisHealth(ctx); err != nil {
		checks["redis"] = gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		}
		health["status"] = "degraded"
	} else {
		checks["redis"] = gin.H{
			"status": "healthy",
		}
	}

	if stats := h.store.CacheStats(); stats != nil {
		checks["cache_stats"] = gin.H{
			"l1_hits":   stats.L1Hits,
			"l1_misses": stats.L1Misses,
			"l2_hits":   stats.L2Hits,
			"l2_misses": stats.L2Misses,
		}
	}

	c.JSON(http.StatusOK, health)
}
