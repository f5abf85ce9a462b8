package api

import (
	"TripDashboard/src/config"
	"TripDashboard/src/storage"

	"github.com/gin-gonic/gin"
)

// SetupRouter 注册全部路由
func SetupRouter(h *Handler, cfg config.ServerConfig, logger *storage.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("请求处理panic", storage.String("path", c.Request.URL.Path), storage.Any("panic", recovered))
		InternalError(c, "internal server error")
		c.Abort()
	}), RequestID(), Logger(logger), CORS(cfg.CORSAllowedOrigins))

	// 健康检查
	r.GET("/health", h.Health)
	// 实时日志
	r.GET("/logs", h.Logs)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/bounds", h.Bounds)
		v1.GET("/metrics", h.Metrics)
		v1.GET("/charts", h.Charts)
		v1.GET("/missing", h.Missing)
		v1.GET("/forecast", h.Forecast)
		v1.GET("/models", h.Models)
		v1.GET("/predict", h.Predict)
		v1.GET("/dashboard", h.Dashboard)
		v1.GET("/export", h.Export)
		v1.POST("/refresh", h.Refresh)
	}
	return r
}
