package main

import (
	"context"
	"log"
	"os"

	mcpadapter "github.com/kirillkom/docverify-assistant/internal/adapters/mcp"
	"github.com/kirillkom/docverify-assistant/internal/bootstrap"
	"github.com/kirillkom/docverify-assistant/internal/config"
	"github.com/kirillkom/docverify-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	// stdout carries protocol frames.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, "mcp", logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("mcp_serving_stdio", "model", cfg.GeminiModel, "version", version)
	if err := mcpadapter.NewServer(app.Analyzer, app.Loader, logger, version).ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
