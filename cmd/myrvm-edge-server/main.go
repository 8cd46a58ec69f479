package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/ngajar-feri/myrvm-edge/internal/api/http"
	"github.com/ngajar-feri/myrvm-edge/internal/audit"
	"github.com/ngajar-feri/myrvm-edge/internal/auth"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/db"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
	"github.com/ngajar-feri/myrvm-edge/internal/handshake"
	"github.com/ngajar-feri/myrvm-edge/internal/machines"
	"github.com/ngajar-feri/myrvm-edge/internal/mlmodels"
	"github.com/ngajar-feri/myrvm-edge/internal/operators"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("RVM Edge Fleet Server", "version", AppVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(config.Db.Url, config.Db.Schema); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	pool, err := db.InitDB(ctx, config.Db.Url, config.Db.Schema)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	tokenConf := auth.Config{
		Secret:       config.Auth.Secret,
		Issuer:       config.Auth.Issuer,
		OperatorTTL:  config.Auth.OperatorTTL,
		TransportTTL: config.Auth.TransportTTL,
	}

	queue := commands.NewMemoryQueue(config.Queue.TTL, config.Queue.MaxPerDevice)
	go queue.StartCleanup(ctx, time.Minute)

	deviceSvc := devices.NewService(devices.NewStore(pool))
	machineStore := machines.NewStore(pool)
	modelStore := mlmodels.NewStore(pool)
	auditSink := audit.NewPostgresSink(pool)

	handshakeSvc := handshake.NewService(deviceSvc, machineStore, modelStore, auditSink, handshake.Config{
		KioskBaseURL: config.Kiosk.BaseURL,
		KioskSecret:  config.Kiosk.Secret,
		KioskTTL:     config.Kiosk.TTL,
		Token:        tokenConf,
	})

	services := &internalhttp.Services{
		Devices:     deviceSvc,
		Handshake:   handshakeSvc,
		Queue:       queue,
		Machines:    machineStore,
		Models:      modelStore,
		Operators:   operators.NewService(pool, tokenConf),
		Audit:       auditSink,
		JWTSecret:   config.Auth.Secret,
		AdminAPIKey: config.Http.AdminAPIKey,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Device-Key", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
