package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"fctarget/internal/api"
	"fctarget/internal/config"
	"fctarget/internal/container"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The hub exists before the container so finished reports reach SSE clients
	hub := api.NewSSEHub(nil)

	appContainer, err := container.New(ctx, appConfig, api.NewSSEReportSink(hub))
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	logger := appContainer.Logger
	runs := api.NewRunHandler(appContainer.Service, appContainer.ReportReader(), appConfig.Targeting,
		appConfig.Server.MaxActiveRuns, hub, logger)
	server := api.NewServer(runs, hub, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + appConfig.Server.Port)
	}()
	logger.Info("fctarget server on port %s (inputs %s, max %d concurrent runs)",
		appConfig.Server.Port, appConfig.Inputs.Root, appConfig.Server.MaxActiveRuns)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown: %v", err)
	}
}
