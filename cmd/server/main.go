package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/config"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/server"
)

const closeTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	configFile := flag.String("config", os.Getenv("MCP_CONFIG"), "Optional TOML config file")
	port := flag.String("port", cfg.Server.Port, "Server port")
	host := flag.String("host", cfg.Server.Host, "Server host")
	outputDir := flag.String("output", cfg.Telemetry.OutputDir, "Output directory for logs, reports and artifacts")
	logLevel := flag.String("log-level", cfg.Logging.Level, "Process log level")
	sessionLevel := flag.String("session-log-level", cfg.Telemetry.Level, "Per-session log level")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	reporting := flag.Bool("report", cfg.Session.Reporting, "Write a session report on teardown")
	snapshots := flag.Bool("failure-snapshots", cfg.Session.FailureSnapshots, "Capture snapshots when a tool fails")
	flag.Parse()

	if *configFile != "" {
		if err := config.ApplyFile(cfg, *configFile); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	// Explicit flags win over the file and the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "host":
			cfg.Server.Host = *host
		case "output":
			cfg.Telemetry.OutputDir = *outputDir
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "session-log-level":
			cfg.Telemetry.Level = *sessionLevel
		case "dev":
			cfg.Logging.Development = *dev
		case "report":
			cfg.Session.Reporting = *reporting
		case "failure-snapshots":
			cfg.Session.FailureSnapshots = *snapshots
		}
	})

	srv, err := server.NewServer(cfg, server.Options{})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := srv.Close(closeCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	if runErr != nil {
		log.Fatalf("Server error: %v", runErr)
	}
}
