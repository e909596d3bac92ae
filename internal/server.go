package internal

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linkwatch/internal/config"
	"linkwatch/internal/modules/adminapi"
)

// Server wraps the gin engine serving the Admin API.
type Server struct {
	Router *gin.Engine
	Cfg    *config.Config
}

// ProvideServer builds the gin engine and connects the Admin API route.
func ProvideServer(
	logger *zap.SugaredLogger,
	cfg *config.Config,
	adminRoute *adminapi.Route,
) *Server {
	engine := gin.Default()
	engine.RedirectTrailingSlash = false

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	router := engine.Group("/api/v1")
	adminRoute.ConnectRoute(router)

	return &Server{Router: engine, Cfg: cfg}
}
