package server

import (
	"github.com/gin-contrib/cors"
	"go.uber.org/fx"

	"github.com/pagegraph/pagegraph/internal/auth"
	"github.com/pagegraph/pagegraph/internal/server/api"
	"github.com/pagegraph/pagegraph/internal/server/middleware"
)

type Handlers struct {
	fx.In

	System      *api.SystemHandlers
	Auth        *api.AuthHandlers
	Entities    *api.EntityHandlers
	Maintenance *api.MaintenanceHandlers
	Live        *api.LiveHandlers
}

func SetupRoutes(server *Server, handlers Handlers, resolver *auth.Resolver) {
	server.Use(middleware.WithRequestID())
	server.Use(middleware.AccessLog())

	if server.Config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = server.Config.CORS.AllowedOrigins
		corsConfig.AllowMethods = server.Config.CORS.AllowedMethods
		corsConfig.AllowHeaders = server.Config.CORS.AllowedHeaders
		corsConfig.ExposeHeaders = server.Config.CORS.ExposedHeaders
		corsConfig.AllowCredentials = server.Config.CORS.AllowCredentials
		corsConfig.MaxAge = server.Config.CORS.MaxAge

		corsHandler := cors.New(corsConfig)
		server.Use(corsHandler)
		server.OPTIONS("*any", corsHandler)
	}

	publicGroup := server.Group(server.Config.BasePath)
	{
		// Health check endpoint - no authentication required
		publicGroup.GET("/health", handlers.System.Health)
		publicGroup.POST("/auth/signin", handlers.Auth.SignIn)
	}

	// Every request below carries a resolved principal; anonymous is a
	// valid principal, the gateway decides what it may see.
	apiGroup := server.Group(server.Config.BasePath+"/api", middleware.WithPrincipal(resolver))
	{
		apiGroup.GET("/:type", handlers.Entities.List)
		apiGroup.POST("/:type", handlers.Entities.Create)
		apiGroup.GET("/:type/:id", handlers.Entities.Get)
		apiGroup.PUT("/:type/:id", handlers.Entities.Update)
		apiGroup.DELETE("/:type/:id", handlers.Entities.Delete)
		apiGroup.GET("/:type/:id/relationships", handlers.Entities.Relationships)
	}

	authGroup := server.Group(server.Config.BasePath+"/auth",
		middleware.WithPrincipal(resolver),
		middleware.RequireAuthenticated(),
	)
	{
		authGroup.POST("/signout", handlers.Auth.SignOut)
	}

	// The stream carries elevated-rendered fragment payloads, so anonymous
	// subscribers are turned away.
	server.GET(server.Config.BasePath+"/live",
		middleware.WithPrincipal(resolver),
		middleware.RequireAuthenticated(),
		handlers.Live.Stream,
	)

	adminGroup := server.Group(server.Config.BasePath+"/admin",
		middleware.WithPrincipal(resolver),
		middleware.RequireSuperuser(),
	)
	{
		adminGroup.POST("/users", handlers.Auth.Register)
		adminGroup.GET("/build-info", handlers.System.BuildInfo)
		adminGroup.GET("/maintenance", handlers.Maintenance.List)
		adminGroup.POST("/maintenance/:command", handlers.Maintenance.Execute)
	}
}
