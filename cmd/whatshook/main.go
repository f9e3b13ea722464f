package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatshook/internal/config"
	"whatshook/internal/constants"
	"whatshook/internal/retry"
	"whatshook/internal/service"
	"whatshook/internal/tracing"
	"whatshook/pkg/media"
	"whatshook/pkg/token"
	"whatshook/pkg/whatsapp"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/store/sqlstore"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	version = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("WhatsHook %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting WhatsHook")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		logger.SetLevel(logrus.InfoLevel)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, Version, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the local credential store with backoff; it is the only thing
	// retried anywhere, and only because another process may briefly hold
	// the file lock during restarts.
	var store *sqlstore.Container
	backoff := retry.Backoff{
		Attempts:     constants.DefaultStoreRetryAttempts,
		InitialDelay: constants.DefaultStoreBackoffMs * time.Millisecond,
		MaxDelay:     constants.DefaultStoreMaxBackoffMs * time.Millisecond,
		Factor:       constants.DefaultStoreBackoffFactor,
	}
	err = backoff.Do(ctx, func() error {
		var openErr error
		store, openErr = whatsapp.OpenStore(ctx, cfg.Session.StorePath)
		return openErr
	})
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	tokens, err := token.NewProvider(cfg.ServiceAccount, time.Duration(cfg.TokenTimeoutSec)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to build token provider: %w", err)
	}

	bridge, err := media.NewBridge(cfg.Cloudinary, time.Duration(cfg.MediaTimeoutSec)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to build media bridge: %w", err)
	}

	session, err := whatsapp.NewSessionManager(ctx, store, cfg.Session.Name, logger)
	if err != nil {
		return fmt.Errorf("failed to build session manager: %w", err)
	}
	defer session.Close()

	relay := service.NewInboundRelay(session, tokens, bridge,
		cfg.WebhookURL, time.Duration(cfg.WebhookTimeoutSec)*time.Second, logger)
	dispatcher := service.NewReplyDispatcher(session, bridge, logger)

	go relay.Run(ctx)

	// Session startup failure leaves the HTTP surface serving so the reply
	// endpoint can report the condition instead of the process dying.
	if err := session.Initialize(ctx); err != nil {
		logger.WithError(err).Error("Session initialization failed")
	}

	server := NewServer(cfg.Port, dispatcher, logger)

	serverErr := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
