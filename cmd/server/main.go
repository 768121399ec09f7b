package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balu-dk/go-easee-gateway/config"
	"github.com/balu-dk/go-easee-gateway/internal/api"
	"github.com/balu-dk/go-easee-gateway/internal/easee"
	"github.com/balu-dk/go-easee-gateway/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Setup logger
	cfg.SetupLogger()
	logrus.WithField("upstream", cfg.EaseeBaseURL).Info("Starting Easee API gateway")

	// Upstream client, a fresh login is performed for every inbound request
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	authenticator := easee.NewAuthenticator(httpClient, cfg.EaseeBaseURL)
	forwarder := easee.NewForwarder(httpClient, authenticator, cfg.EaseeBaseURL)

	// Create gateway service
	gateway := service.NewGateway(forwarder)

	// Create API server
	apiServer := api.NewAPI(gateway, api.Options{
		DocsURL:        cfg.DocsURL,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Start API server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run the server in a goroutine
	go func() {
		logrus.Infof("Starting API server on port %d", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Create a deadline for the shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Attempt to gracefully shut down the server
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
