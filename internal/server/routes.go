package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"rapidphoto/internal/controller"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)

	api := r.Group("/", s.AuthMiddleware(controller.RoleAdmin, controller.RoleService))
	{
		api.POST("/upload-jobs", s.createJobHandler)
		api.GET("/upload-jobs", s.listJobsHandler)
		api.GET("/upload-jobs/:id", s.getJobHandler)
		api.GET("/upload-jobs/:id/events", s.streamEventsHandler)
		api.GET("/upload-jobs/:id/events/recent", s.recentEventsHandler)

		api.POST("/photos/:id/complete", s.completePhotoHandler)
		api.POST("/photos/:id/fail", s.failPhotoHandler)
		api.POST("/photos/:id/retry", s.retryPhotoHandler)
		api.GET("/photos/:id/download", s.downloadPhotoHandler)
	}

	admin := r.Group("/admin", s.AuthMiddleware(controller.RoleAdmin))
	{
		admin.POST("/reconcile", s.reconcileHandler)
		admin.GET("/reconcile/stats", s.reconcileStatsHandler)
		admin.POST("/upload-jobs/:id/close-streams", s.closeStreamsHandler)

		admin.POST("/tokens", s.CreateTokenHandler)
		admin.GET("/tokens", s.ListTokensHandler)
		admin.GET("/tokens/:id", s.GetTokenHandler)
		admin.DELETE("/tokens/:id", s.RevokeTokenHandler)
	}

	return r
}
