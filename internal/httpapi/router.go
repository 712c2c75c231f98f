package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carebrief/carebrief-backend/internal/platform/logger"
)

type RouterConfig struct {
	PatientHandler *PatientHandler
	SummaryHandler *SummaryHandler
	Logger         *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		c.String(http.StatusOK, "ready")
	})

	api := r.Group("/v1")
	{
		if cfg.PatientHandler != nil {
			api.GET("/patients", cfg.PatientHandler.ListPatients)
			api.GET("/patients/:id/data", cfg.PatientHandler.GetPatientData)
		}
		if cfg.SummaryHandler != nil {
			api.POST("/summaries/generate", cfg.SummaryHandler.Generate)
		}
	}

	return r
}
