package http

import (
	"github.com/gin-gonic/gin"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/handler"
	"github.com/ngajar-feri/myrvm-edge/internal/api/http/middleware"
	"github.com/ngajar-feri/myrvm-edge/internal/audit"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
	"github.com/ngajar-feri/myrvm-edge/internal/handshake"
	"github.com/ngajar-feri/myrvm-edge/internal/machines"
	"github.com/ngajar-feri/myrvm-edge/internal/mlmodels"
	"github.com/ngajar-feri/myrvm-edge/internal/operators"
)

type Services struct {
	Devices   *devices.Service
	Handshake *handshake.Service
	Queue     commands.Queue
	Machines  *machines.Store
	Models    *mlmodels.Store
	Operators *operators.Service
	Audit     audit.Sink

	JWTSecret   string
	AdminAPIKey string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	// Device plane: authenticated by device credential, polled by edge
	// controllers in the field.
	edgeHandler := handler.NewEdgeHandler(srvs.Devices, srvs.Handshake, srvs.Queue)
	edge := engine.Group("/api/v1/edge")
	edge.Use(middleware.DeviceAuth(srvs.Devices))
	{
		edge.POST("/handshake", edgeHandler.Handshake)
		edge.POST("/heartbeat", edgeHandler.Heartbeat)
	}

	// Operator plane: session tokens for day-to-day fleet work.
	if srvs.Operators != nil {
		authHandler := handler.NewAuthHandler(srvs.Operators)
		engine.POST("/auth/login", authHandler.Login)
		// Creating operator accounts needs the bootstrap admin key.
		engine.POST("/auth/register",
			middleware.APIKeyAuth(srvs.AdminAPIKey), authHandler.Register)
	}

	devicesHandler := handler.NewDevicesHandler(srvs.Devices, srvs.Queue, srvs.Audit)
	commandsHandler := handler.NewCommandsHandler(srvs.Queue, srvs.Audit)

	admin := engine.Group("/api/v1")
	admin.Use(middleware.JWTAuth(srvs.JWTSecret))
	{
		admin.POST("/devices", devicesHandler.Register)
		admin.GET("/devices", devicesHandler.List)
		admin.GET("/devices/:id", devicesHandler.Get)
		admin.POST("/devices/:id/rotate-key", devicesHandler.RotateKey)
		admin.DELETE("/devices/:id", devicesHandler.Trash)
		admin.POST("/devices/:id/restore", devicesHandler.Restore)

		admin.POST("/devices/:id/commands", commandsHandler.Enqueue)

		if srvs.Machines != nil {
			machinesHandler := handler.NewMachinesHandler(srvs.Machines)
			admin.POST("/machines", machinesHandler.Create)
			admin.GET("/machines", machinesHandler.List)
		}

		if srvs.Models != nil {
			modelsHandler := handler.NewModelsHandler(srvs.Models)
			admin.POST("/models", modelsHandler.Publish)
			admin.GET("/models", modelsHandler.List)
		}
	}
}
