package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/readtext/backend/internal/api"
	"github.com/readtext/backend/internal/config"
	"github.com/readtext/backend/internal/ingest"
	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/parser"
	"github.com/readtext/backend/internal/session"
	"github.com/readtext/backend/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "readtext.config")
	if p := os.Getenv("READTEXT_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.SetDefaultVerbosity(cfg.Advanced.Verbosity); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Advanced.Verbosity)
	defer log.Sync()

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	ing, err := ingest.NewFromConfig(context.Background(), cfg)
	if err != nil {
		fmt.Printf("Failed to initialize ingester: %v\n", err)
		os.Exit(1)
	}

	results, err := session.NewResultStore(filepath.Join(cfg.GetDataDir(), "results"), log)
	if err != nil {
		fmt.Printf("Failed to initialize result store: %v\n", err)
		os.Exit(1)
	}

	// Initialize job manager
	jobTimeout := time.Duration(cfg.Processing.JobTimeoutMinutes) * time.Minute
	jobMgr := session.NewManager(ing, results, log)
	jobMgr.SetJobTimeout(jobTimeout)

	// Start background job cleanup
	go func() {
		interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if n := jobMgr.CleanupOldJobs(session.JobMaxAge); n > 0 {
				log.Info("cleaned up jobs", zap.Int("count", n))
			}
		}
	}()

	e := api.NewServer(&api.Dependencies{
		Store:             fileStore,
		Jobs:              jobMgr,
		Ingester:          ing,
		Formats:           parser.GetGlobalRegistry(),
		Version:           Version,
		AllowLocalPaths:   cfg.Processing.AllowLocalPaths,
		IngestTimeout:     jobTimeout,
		AllowFileDeletion: cfg.Server.AllowFileDeletion,
	})

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasPrefix(path, "/api/jobs/") && c.Request().Method == http.MethodGet
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.QueryParam("format") == "duckdb"
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins(),
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	remote := "disabled"
	if cfg.Processing.AllowRemoteInputs {
		remote = "http, https, s3"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           readtext Server                                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Remote:     %-45s║\n", remote)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
