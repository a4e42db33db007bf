// RAKUDA report server - generates, schedules and serves operational
// reports for the multi-marketplace dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"rakuda/server/logger"
	"rakuda/server/reports"
	"rakuda/server/storage"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	serverLogger    *logger.Logger
	serverStore     storage.Store
	reportService   *reports.Service
	reportScheduler *reports.Scheduler
	wsHub           *WSHub
)

func main() {
	configPath := flag.String("config", "rakuda.toml", "Path to TOML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (error, warn, info, debug, trace)")
	reportsDir := flag.String("reports-dir", "", "Report output directory (overrides config)")
	writeConfig := flag.Bool("write-config", false, "Write a default config file and exit")
	flag.Parse()

	if *writeConfig {
		if err := WriteDefaultConfig(*configPath); err != nil {
			log.Fatalf("write config: %v", err)
		}
		log.Printf("Wrote default config to %s", *configPath)
		return
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *reportsDir != "" {
		cfg.Reports.OutputDir = *reportsDir
	}

	log.Printf("RAKUDA Report Server %s (commit %s)", Version, GitCommit)
	log.Printf("Go: %s, OS: %s, Arch: %s", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	// Initialize logger
	logDir := filepath.Join(filepath.Dir(storage.GetDefaultDBPath()), "logs")
	serverLogger = logger.New(logger.ParseLevel(cfg.Logging.Level), logDir, 1000)
	defer serverLogger.Close()
	storage.SetLogger(serverLogger)
	serverLogger.Info("Server starting", "version", Version)

	// Initialize database
	serverLogger.Info("Initializing database", "driver", cfg.Database.Driver)
	serverStore, err = storage.NewStore(cfg.StorageConfig())
	if err != nil {
		logFatal("Failed to initialize database", "error", err)
	}
	defer serverStore.Close()
	serverLogger.Info("Database initialized", "dialect", serverStore.Dialect().Name(), "path", serverStore.Path())

	// Report pipeline
	outputDir := cfg.ReportsOutputDir()
	reportService = reports.NewService(serverStore, outputDir, serverLogger)
	reportService.SetRetentionDays(cfg.Reports.RetentionDays)

	wsHub = NewWSHub()
	reportService.SetNotifier(wsHub)

	reportScheduler = reports.NewScheduler(serverStore, reportService, serverLogger)
	if cfg.Reports.SchedulerIntervalSeconds > 0 {
		reportScheduler.SetInterval(time.Duration(cfg.Reports.SchedulerIntervalSeconds) * time.Second)
	}
	reportScheduler.Start()
	defer reportScheduler.Stop()

	setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		serverLogger.Info("HTTP server listening", "addr", addr, "reports_dir", outputDir)
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("HTTP server failed", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	serverLogger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		serverLogger.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}
}

func setupRoutes() {
	// Health and version
	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/api/version", handleVersion)

	// Report pipeline API (v1)
	http.HandleFunc("/api/v1/reports", handleReports)
	http.HandleFunc("/api/v1/reports/types", handleReportTypes)
	http.HandleFunc("/api/v1/reports/summary", handleReportSummary)
	http.HandleFunc("/api/v1/reports/", handleReport)

	// Schedules
	http.HandleFunc("/api/v1/report-schedules", handleSchedules)
	http.HandleFunc("/api/v1/report-schedules/", handleSchedule)

	// Dashboard push channel
	http.HandleFunc("/api/v1/ws", wsHub.HandleWS)
}
