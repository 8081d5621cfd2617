package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/jusunglee/wmata-go/api/handlers"
	"github.com/jusunglee/wmata-go/internal/config"
	"github.com/jusunglee/wmata-go/pkg/wmata"
)

func main() {
	var (
		configPath     = flag.String("config", config.DefaultPath, "YAML config file")
		port           = flag.Int("port", 0, "Server port")
		apiKey         = flag.String("api-key", "", "WMATA API key")
		updateInterval = flag.Duration("update-interval", 0, "Feed update interval")
		stationsFile   = flag.String("stations-file", "", "Stations JSON file")
		crossOrigin    = flag.String("cross-origin", "", "Allowed CORS origins, comma separated")
	)
	flag.Parse()

	// .env is optional and never overrides the real environment
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if *updateInterval != 0 {
		if err := cfg.SetCacheInterval(*updateInterval); err != nil {
			slog.Error("Invalid -update-interval", "error", err)
			os.Exit(1)
		}
	}
	if *stationsFile != "" {
		cfg.StationsFile = *stationsFile
	}
	if *crossOrigin != "" {
		cfg.CrossOrigin = *crossOrigin
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration (the API key comes from -api-key, WMATA_API_KEY or api_key)", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	client, err := wmata.NewLocal(wmata.Config{
		APIKey:         cfg.APIKey,
		UpdateInterval: cfg.CacheInterval(),
		FetchTimeout:   cfg.FetchTimeout(),
		StationsFile:   cfg.StationsFile,
		MaxTrains:      cfg.MaxTrains,
		MaxMinutes:     cfg.MaxMinutes,
		Feeds:          cfg.FeedURLs(),
		Logger:         logger,
	})
	if err != nil {
		logger.Error("Failed to create WMATA client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// Create HTTP server
	r := mux.NewRouter()
	h := handlers.NewHandler(client, client.Hub(), logger.With("component", "http"))
	h.RegisterRoutes(r)

	// Add middleware
	r.Use(loggingMiddleware(logger))

	var handler http.Handler = r
	if cfg.CrossOrigin != "" {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: splitOrigins(cfg.CrossOrigin),
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		})(r)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "cross_origin", cfg.CrossOrigin)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request", "method", r.Method, "uri", r.RequestURI, "duration", time.Since(start))
		})
	}
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
