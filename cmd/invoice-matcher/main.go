package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-matcher/internal/matching"
	"github.com/zombor/invoice-matcher/internal/server"
	"github.com/zombor/invoice-matcher/internal/session"
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

	fs := ff.NewFlagSet("invoice-matcher")
	var (
		endpoint    = fs.StringLong("endpoint", "http://localhost:8000/match", "Matching service URL")
		timeout     = fs.DurationLong("timeout", 2*time.Minute, "Matching request timeout")
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "invoice-matcher.db", "Session database file path")
		storagePath = fs.StringLong("storage", "./documents", "Selected document storage directory")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		invoicePath = fs.StringLong("invoice", "", "Invoice file; with --po, match once and print the result")
		poPath      = fs.StringLong("po", "", "Purchase order file; with --invoice, match once and print the result")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_MATCHER"),
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	matcher, err := matching.NewHTTPMatcher(*endpoint, *timeout)
	if err != nil {
		slog.Error("Failed to initialize matching client", "error", err)
		os.Exit(1)
	}

	if *invoicePath != "" || *poPath != "" {
		os.Exit(matchOnce(matcher, *invoicePath, *poPath))
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := session.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	storage, err := session.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	store := session.NewStore(db, storage)
	snapshot, err := store.Load()
	if err != nil {
		slog.Error("Failed to load session", "error", err)
		os.Exit(1)
	}

	controller := matching.NewController(matcher, store, nil)
	controller.Restore(snapshot)
	slog.Info("Session restored", "phase", snapshot.State.Phase, "endpoint", matcher.Endpoint())

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(controller, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// matchOnce submits a single invoice/PO pair and prints the report to stdout
func matchOnce(matcher matching.Matcher, invoicePath, poPath string) int {
	printer := matching.ConsumerFunc(func(result *matching.MatchResult) {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			slog.Error("Error encoding result", "error", err)
			return
		}
		fmt.Println(string(out))
	})
	controller := matching.NewController(matcher, nil, printer)

	for _, sel := range []struct {
		path   string
		choose func(matching.Document)
	}{
		{invoicePath, controller.SelectInvoice},
		{poPath, controller.SelectPO},
	} {
		if sel.path == "" {
			continue
		}
		doc, err := readDocument(sel.path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		sel.choose(doc)
	}

	if _, err := controller.Submit(context.Background()); err != nil {
		var merr *matching.Error
		if errors.As(err, &merr) {
			fmt.Fprintln(os.Stderr, merr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

func readDocument(path string) (matching.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return matching.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return matching.Document{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
