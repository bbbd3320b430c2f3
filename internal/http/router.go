package http

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas del BFF.
func NewRouter(
	logger *zap.Logger,
	allowOrigins []string,
	sessionH *SessionHandler,
	chatH *ChatHandler,
	dashboardH *DashboardHandler,
	eventsH *EventsHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware(allowOrigins), jsonContentTypeMiddleware())

	r.POST("/sessions", sessionH.CreateSession)
	r.DELETE("/sessions/:id", sessionH.CloseSession)

	chat := r.Group("/sessions/:id/chat")
	chat.POST("", chatH.PostChat)
	chat.GET("/message", chatH.GetMessage)
	chat.POST("/played", chatH.MessagePlayed)

	dashboard := r.Group("/sessions/:id/dashboard")
	dashboard.GET("", dashboardH.GetState)
	dashboard.PUT("/form", dashboardH.UpdateForm)
	dashboard.POST("/predict/product-date", dashboardH.PredictProductDate)
	dashboard.POST("/predict/date", dashboardH.PredictDate)
	dashboard.POST("/predict/all", dashboardH.PredictAll)
	dashboard.POST("/predict/product", dashboardH.PredictProduct)
	dashboard.POST("/upload", dashboardH.UploadCSV)

	r.GET("/events", eventsH.Stream)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware habilita el acceso desde el frontend. "*" abre a cualquier origen.
func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	var origins []string
	for _, o := range allowOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			cfg.AllowAllOrigins = true
			origins = nil
			break
		}
		origins = append(origins, o)
	}
	if !cfg.AllowAllOrigins {
		if len(origins) == 0 {
			cfg.AllowAllOrigins = true
		} else {
			cfg.AllowOrigins = origins
		}
	}
	return cors.New(cfg)
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
