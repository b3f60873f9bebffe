package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/ktsuji/homestock/internal/inventory"
	"github.com/ktsuji/homestock/internal/notify"
	"github.com/ktsuji/homestock/internal/scanning"
	"github.com/ktsuji/homestock/internal/server"
	"github.com/ktsuji/homestock/internal/transcription"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Local credentials live in .env.local; absence is fine
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env.local", "error", err)
	}

	fs := ff.NewFlagSet("homestock")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		backend       = fs.StringLong("backend", "local", "Inventory backend: 'local' (bbolt) or 'postgres'")
		dbPath        = fs.StringLong("db", "homestock.db", "Database file path for the local backend")
		postgresDSN   = fs.StringLong("postgres-dsn", "", "Postgres connection string (or set HOMESTOCK_POSTGRES_DSN)")
		imagesDir     = fs.StringLong("images", "./uploads", "Directory for uploaded receipt images")
		artifactsDir  = fs.StringLong("artifacts", "./artifacts", "Directory for transcription artifacts")
		scannerType   = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava)")
		hookKitchen   = fs.StringLong("webhook-kitchen", "", "Webhook URL for the kitchen channel")
		hookBath      = fs.StringLong("webhook-bath", "", "Webhook URL for the bath channel")
		hookConsume   = fs.StringLong("webhook-consumable", "", "Webhook URL for the consumable channel")
		hookTool      = fs.StringLong("webhook-tool", "", "Webhook URL for the tool channel")
		hookOther     = fs.StringLong("webhook-other", "", "Webhook URL for the fallback channel")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("HOMESTOCK"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize the inventory store
	var store inventory.Store
	var err error
	switch *backend {
	case "local":
		slog.Info("Initializing local database...", "path", *dbPath)
		store, err = inventory.NewBoltStore(*dbPath)
	case "postgres":
		dsn := *postgresDSN
		if dsn == "" {
			dsn = os.Getenv("HOMESTOCK_POSTGRES_DSN")
		}
		if dsn == "" {
			slog.Error("Postgres DSN is required. Set --postgres-dsn flag or HOMESTOCK_POSTGRES_DSN environment variable")
			os.Exit(1)
		}
		slog.Info("Connecting to Postgres...")
		store, err = inventory.NewPostgresStore(dsn)
	default:
		slog.Error("Invalid backend", "backend", *backend, "valid", "local or postgres")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize inventory store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize scanner based on type. Gemini without a key stays
	// unconfigured so transcription requests fail fast with 400.
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel, "configured", apiKey != "")
		scanner, err = scanning.NewGemini(context.Background(), scanning.GeminiConfig{
			APIKey: apiKey,
			Model:  *geminiModel,
		})
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(scanning.OllamaConfig{
			BaseURL: *ollamaURL,
			Model:   *ollamaModel,
		})
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "images", *imagesDir, "artifacts", *artifactsDir)
	images, err := transcription.NewLocalStorage(*imagesDir)
	if err != nil {
		slog.Error("Failed to initialize image storage", "error", err)
		os.Exit(1)
	}
	artifacts, err := transcription.NewLocalStorage(*artifactsDir)
	if err != nil {
		slog.Error("Failed to initialize artifact storage", "error", err)
		os.Exit(1)
	}

	// Initialize services
	notifier := notify.New(store, notify.Config{
		WebhookURLs: map[string]string{
			"kitchen":    *hookKitchen,
			"bath":       *hookBath,
			"consumable": *hookConsume,
			"tool":       *hookTool,
			"other":      *hookOther,
		},
	})
	inventoryService := inventory.NewService(store, notifier)
	transcriptionService := transcription.NewService(images, artifacts, scanner)

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.New(inventoryService, transcriptionService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
