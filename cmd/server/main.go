package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ncoder/npgsql/api"
	"github.com/ncoder/npgsql/logger"
	"github.com/ncoder/npgsql/pool"
	"github.com/ncoder/npgsql/postgres"
)

func main() {
	var (
		listen         = flag.String("listen", ":8080", "HTTP listen address")
		endpoint       = flag.String("endpoint", "localhost:5432", "PostgreSQL host:port")
		user           = flag.String("user", "postgres", "database user")
		database       = flag.String("database", "postgres", "database name")
		minSize        = flag.Int("min", 0, "warm minimum connectors per pool")
		maxSize        = flag.Int("max", 10, "maximum connectors per pool")
		acquireTimeout = flag.Duration("acquire-timeout", 30*time.Second, "default acquire timeout")
	)
	flag.Parse()

	startTime := time.Now()
	logger.Info("Starting connector pool server", "startup_time", startTime.Format(time.RFC3339))

	// Password comes from the environment so it stays out of the pool key
	// and the process argument list.
	password := os.Getenv("PGPASSWORD")
	creds := func(cfg pool.Config) pool.Credentials {
		return pool.Credentials{User: cfg.User, Password: password, Database: cfg.Database}
	}

	registry := pool.NewRegistry(postgres.NewConnectorFactory(), creds)
	defer registry.Close()

	cfg := pool.Config{
		Endpoint:       *endpoint,
		User:           *user,
		Database:       *database,
		MinSize:        *minSize,
		MaxSize:        *maxSize,
		AcquireTimeout: *acquireTimeout,
	}

	p, err := registry.GetOrCreate(cfg)
	if err != nil {
		logger.Error("Invalid pool configuration", "error", err)
		log.Fatalf("invalid pool configuration: %v", err)
	}
	logger.Info("Pool registered",
		logger.String("pool", p.Name()), logger.Endpoint(cfg.Endpoint),
		logger.Int("min", cfg.MinSize), logger.Int("max", cfg.MaxSize))

	// Probe the backend once at startup. A dead database is worth a warning
	// but not a refusal to serve the observability endpoints.
	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	probeCtx = logger.WithContextValue(probeCtx, logger.PoolNameKey, p.Name())
	probeCtx = logger.WithContextValue(probeCtx, logger.EndpointKey, cfg.Endpoint)
	if pc, err := p.Acquire(probeCtx); err != nil {
		logger.WarnContext(probeCtx, "Startup probe failed", logger.ErrorField(err))
	} else {
		pc.Release()
		logger.InfoContext(probeCtx, "Startup probe succeeded")
	}
	cancel()

	// Setup router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	restHandler := api.NewRESTHandler(registry)
	restHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:    *listen,
		Handler: r,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed to start", "error", err, "addr", *listen)
			log.Fatalf("HTTP server failed to start: %v", err)
		}
	}()
	logger.Info("Server initialization complete",
		logger.Duration("init_duration", time.Since(startTime)))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	registry.Close()
	logger.Info("Shutdown complete")
}
