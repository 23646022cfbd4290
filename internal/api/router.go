package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/mdconv/internal/api/handler"
	"github.com/timmy/mdconv/internal/api/middleware"
	"github.com/timmy/mdconv/internal/config"
	"github.com/timmy/mdconv/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	cfg *config.ServerConfig,
	conversion *service.ConversionService,
	health *handler.HealthHandler,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 32 << 20

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))

	if health == nil {
		health = handler.NewHealthHandler(nil)
	}
	convertHandler := handler.NewConvertHandler(conversion)

	r.GET("/health", health.Health)

	api := r.Group("/api")
	{
		api.POST("/convert", middleware.BodyLimit(cfg.MaxUploadBytes()), convertHandler.Submit)
		api.POST("/convert/clear-history", convertHandler.ClearHistory)
		api.GET("/convert/:id/preview", convertHandler.Preview)
		api.GET("/convert/:id/download", convertHandler.Download)

		api.GET("/status/:id", convertHandler.Status)
		api.POST("/status/batch", convertHandler.BatchStatus)
	}

	return r
}
