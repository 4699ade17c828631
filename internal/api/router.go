package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"jute-fleet-backend/config"
	"jute-fleet-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. metrics may be nil.
func NewRouter(h *Handler, cfg config.ServerConfig, metrics http.Handler) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter, h.identify)
	{
		api.GET("/users", caching, h.GetUsers)
		api.GET("/snapshot", h.GetSnapshot)
		api.GET("/stream", requireUser, h.Stream)

		machines := api.Group("/machines/:id", requireUser)
		machines.GET("", h.GetMachine)
		machines.POST("/toggle", h.ToggleRun)
		machines.PUT("/mode", h.SetMode)
		machines.PUT("/speed", h.SetSpeed)
		machines.POST("/antijam", h.TriggerAntiJam)
		machines.POST("/reclaim", h.Reclaim)
		machines.POST("/pin", h.IssuePin)
		machines.GET("/pin", h.GetPin)
		machines.POST("/activate", h.Activate)

		api.GET("/runlogs", h.GetRunLogs)
		// Run logs are immutable, so per-viewer caching is safe.
		api.GET("/runlogs/:id", caching, h.GetRunLog)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", requireUser, h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
