package api

import (
	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge/internal/api/learn"
	"github.com/lessonforge/lessonforge/internal/api/middleware"
	"github.com/lessonforge/lessonforge/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	learnService *service.LearnService,
	chatService *service.ChatService,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	learnHandler := learn.NewHandler(learnService, chatService)
	learnGroup := r.Group("/api/learn")
	learnGroup.Use(middleware.Auth(cfg.APIKey))
	learnHandler.RegisterRoutes(learnGroup)

	return r
}
