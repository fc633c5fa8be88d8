// Command server hosts the belief-driven Plan-Retrieve-Execute engine
// behind a single HTTP task-submission endpoint. The composition-root
// shape (load config, build logger, wire capability clients, build
// router, serve with graceful shutdown) is grounded on mbflow's own
// cmd/server/main.go.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/smilemakc/mbflow-inference/internal/config"
	"github.com/smilemakc/mbflow-inference/internal/execclient"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/api/rest"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/storage"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting inference server", "port", cfg.Server.Port)

	llm := llmclient.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model)
	exec := execclient.NewLocalPythonExecutor()

	artifactDir := os.Getenv("INFERENCE_ARTIFACT_DIR")
	if artifactDir == "" {
		artifactDir = "./data/artifacts"
	}

	srv := rest.NewServer(llm, exec, appLogger, artifactDir, cfg.Auth.JWTSecret)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		dbCfg := storage.DefaultConfig()
		dbCfg.DSN = dsn
		db, derr := storage.NewDB(dbCfg)
		if derr != nil {
			appLogger.Error("bun recorder disabled: failed to connect", "error", derr)
		} else {
			defer storage.Close(db)
			srv = srv.WithBunDB(db)
			appLogger.Info("bun recorder enabled")
		}
	}
	router := srv.NewRouter()

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		appLogger.Error("forced shutdown", "error", err)
	}
}
