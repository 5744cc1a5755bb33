package api

import (
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret   string
	JWTIssuer   string
	Development bool
}

// NewRouter wires every timer route under /api behind bearer auth.
func NewRouter(cfg RouterConfig, h *TimerHandler) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.Use(Auth(cfg.JWTSecret, cfg.JWTIssuer))
	{
		api.POST("/tasks/:taskID/timer/start", h.Start)
		api.POST("/tasks/:taskID/timer/stop", h.Stop)
		api.POST("/tasks/:taskID/timer/reset", h.Reset)
		api.GET("/tasks/:taskID/timer", h.Total)
		api.GET("/tasks/:taskID/sessions", h.Snapshot)
		api.GET("/tasks/:taskID/comments", h.Comments)
		api.POST("/timers/batch", h.BatchTotals)
	}
	return r
}
