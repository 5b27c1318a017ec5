package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mossy-p/p2pchat-signaling/config"
	"github.com/mossy-p/p2pchat-signaling/internal/middleware"
	"github.com/mossy-p/p2pchat-signaling/internal/repository"
	"github.com/mossy-p/p2pchat-signaling/internal/signaling"
)

// Dependencies groups what the HTTP surface needs from the rest of the
// process.
type Dependencies struct {
	Config   *config.Config
	Hub      *signaling.Hub
	Rooms    repository.RoomRepository
	Messages repository.MessageRepository
	Nonces   repository.NonceStore
	Online   OnlineCounter
	Metrics  http.Handler
	Log      *slog.Logger
}

func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Environment != config.EnvProduction {
		router.Use(gin.Logger())
	}

	corsConfig := cors.DefaultConfig()
	if slices.Contains(cfg.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", Health(deps.Hub))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	online := deps.Online
	if online == nil {
		online = HubOnlineCounter(deps.Hub)
	}
	roomHandler := NewRoomHandler(deps.Rooms, online, deps.Log)
	messageHandler := NewMessageHandler(deps.Rooms, deps.Messages, deps.Log)
	authHandler := NewAuthHandler(deps.Nonces, cfg.JWTSecret, cfg.JWTTTL, cfg.NonceTTL, deps.Log)
	requireAuth := middleware.JWTAuth(cfg.JWTSecret)

	api := router.Group("/api")
	{
		api.POST("/auth/nonce", authHandler.Nonce)
		api.POST("/auth/login", authHandler.Login)

		api.GET("/ice-servers", ICEServers(cfg.ICEServers))

		api.GET("/rooms", roomHandler.List)
		api.POST("/rooms", requireAuth, roomHandler.Create)
		api.GET("/rooms/:roomId", roomHandler.Get)
		api.DELETE("/rooms/:roomId", requireAuth, roomHandler.Delete)

		api.GET("/rooms/:roomId/messages", messageHandler.List)
		api.POST("/rooms/:roomId/messages", messageHandler.Create)
		api.PATCH("/messages/:id/verify", messageHandler.Verify)
	}

	signal := HandleSignaling(deps.Hub, cfg.Signaling, cfg.AllowedOrigins, deps.Log)
	router.GET("/signal", signal)
	router.GET("/ws/signal", signal)

	return router
}
