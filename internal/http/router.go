package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/studyquiz-backend/internal/http/handlers"
	httpMW "github.com/yungbote/studyquiz-backend/internal/http/middleware"
	"github.com/yungbote/studyquiz-backend/internal/observability"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

const eventsRoute = "/api/events"

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	RealtimeHandler *httpH.RealtimeHandler
	UploadHandler   *httpH.UploadHandler
	MaterialHandler *httpH.MaterialHandler
	SessionHandler  *httpH.SessionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics, eventsRoute))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/events", cfg.RealtimeHandler.Stream)
		}

		// Ingestion
		if cfg.UploadHandler != nil {
			api.POST("/uploads", cfg.UploadHandler.Upload)
			api.POST("/uploads/text", cfg.UploadHandler.UploadText)
			api.GET("/uploads", cfg.UploadHandler.List)
			api.POST("/uploads/resume", cfg.UploadHandler.Resume)
			api.POST("/uploads/:id/retry", cfg.UploadHandler.Retry)
			api.DELETE("/uploads/:id", cfg.UploadHandler.Cancel)
			api.POST("/pdf/inspect", cfg.UploadHandler.InspectPDF)
			api.POST("/analyze", cfg.UploadHandler.Analyze)
			api.POST("/analyze/group", cfg.UploadHandler.AnalyzeGroup)
		}

		// Materials
		if cfg.MaterialHandler != nil {
			api.GET("/materials", cfg.MaterialHandler.List)
			api.GET("/materials/:id", cfg.MaterialHandler.Get)
			api.GET("/materials/:id/preview", cfg.MaterialHandler.Preview)
			api.DELETE("/materials/:id", cfg.MaterialHandler.Delete)
			api.POST("/materials/:id/viewed", cfg.MaterialHandler.Viewed)
		}

		// Quizzes and sessions
		if cfg.SessionHandler != nil {
			api.POST("/materials/:id/quizzes", cfg.SessionHandler.StartQuiz)
			api.POST("/quizzes/bulk", cfg.SessionHandler.StartBulk)
			api.GET("/sessions", cfg.SessionHandler.List)
			api.GET("/sessions/:id", cfg.SessionHandler.Get)
			api.POST("/sessions/:id/answers", cfg.SessionHandler.Answer)
			api.POST("/sessions/:id/viewed", cfg.SessionHandler.Viewed)
			api.DELETE("/sessions/:id", cfg.SessionHandler.Delete)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})
	return r
}
