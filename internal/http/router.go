package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/aimorme/datewise-backend/internal/http/handlers"
	httpMW "github.com/aimorme/datewise-backend/internal/http/middleware"
	"github.com/aimorme/datewise-backend/internal/observability"
)

type RouterConfig struct {
	DatePlanHandler *httpH.DatePlanHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware(observability.TracerName))
	r.Use(httpMW.TraceHeaders())
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
		r.GET("/", cfg.HealthHandler.ServiceInfo)
	}

	api := r.Group("/api")
	{
		if cfg.DatePlanHandler != nil {
			api.POST("/date-plans", cfg.DatePlanHandler.Create)
			api.GET("/date-plans/:id/progress", cfg.DatePlanHandler.Progress)
			api.GET("/date-plans/:id/result", cfg.DatePlanHandler.Result)
			api.DELETE("/date-plans/:id", cfg.DatePlanHandler.Cancel)
		}
	}

	return r
}
