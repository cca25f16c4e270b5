// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/aegisx/aegisgate-go/internal/application/container"
	"github.com/aegisx/aegisgate-go/internal/presentation/http/handlers"
	"github.com/aegisx/aegisgate-go/internal/presentation/http/middleware"
	"github.com/aegisx/aegisgate-go/pkg/config"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	verifyHandlers := handlers.NewVerifyHandlers(container.SessionService, container.ResolutionService, container.Logger, container.PerfTracker)
	adminHandlers := handlers.NewAdminHandlers(container.AdminService, container.AuthService, container.SessionService, container.Broadcaster, container.Logger, container.PerfTracker)
	healthHandlers := handlers.NewHealthHandlers(container.DB, container.PerfTracker)

	submitLimiter := middleware.NewRateLimiter(config.RateWindow, config.RateLimitPerWindow)

	api := r.Group("/api/v1")
	{
		api.GET("/health", healthHandlers.GetHealth)

		verify := api.Group("/verify")
		{
			verify.POST("/issue", middleware.SignatureMiddleware(config.VerifySecret, "identity"), verifyHandlers.PostIssue)
			verify.POST("/submit", submitLimiter.Middleware(), verifyHandlers.PostSubmit)
			verify.GET("/status/:token", verifyHandlers.GetStatus)
			verify.POST("/resolve", middleware.SignatureMiddleware(config.VerifySecret, "token"), verifyHandlers.PostResolve)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/login", adminHandlers.PostLogin)

			admin.Use(middleware.OperatorAuthMiddleware(container.AuthService))
			{
				admin.GET("/export", adminHandlers.GetExport)
				admin.GET("/surge", adminHandlers.GetSurge)
				admin.GET("/perf", healthHandlers.GetPerf)
				admin.GET("/links/:identity", adminHandlers.GetLinks)
				admin.GET("/history/:identity", adminHandlers.GetHistory)
				admin.POST("/unquarantine/:identity", adminHandlers.PostUnquarantine)
				admin.POST("/rescore/:token", adminHandlers.PostRescore)
				admin.GET("/actions/live", adminHandlers.GetActionsLive)
			}
		}
	}

	return r
}
