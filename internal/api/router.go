package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/memetag/internal/api/handler"
	"github.com/timmy/memetag/internal/api/middleware"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/service"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Mode   string
	CORS   middleware.CORSConfig
	Logger *logger.Logger
	Assets *service.AssetService
	Checks []handler.ReadinessCheck
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.Checks...)
	assetHandler := handler.NewAssetHandler(cfg.Assets)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// Signed asset URLs handed out to chat clients.
	r.GET("/a/:ref", assetHandler.Serve)
	r.HEAD("/a/:ref", assetHandler.Serve)

	return r
}
