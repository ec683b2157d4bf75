package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/datasmith-ai/datasmith/internal"
	"github.com/datasmith-ai/datasmith/internal/extract"
	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/modules"
	"github.com/datasmith-ai/datasmith/internal/router"
	"github.com/datasmith-ai/datasmith/internal/session"
	"github.com/datasmith-ai/datasmith/internal/usagelog"
	"github.com/datasmith-ai/datasmith/internal/web"
)

type Config struct {
	// LLM configuration
	LLM llm.Config

	// Extraction configuration
	Extract extract.Config

	// HTTP configuration
	Web web.Config

	// Usage log database path. ":memory:" disables persistence.
	UsageDBPath string `split_words:"true" default:"datasmith.db"`

	ConfidenceThreshold float64 `split_words:"true" default:"0.7"`

	SentryDSN string `split_words:"true"`
	LogLevel  string `split_words:"true" default:"info"`
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help {
		envconfig.Usage("datasmith", &Config{})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatal("Error loading .env file")
		}
	}

	var c Config
	if err := envconfig.Process("datasmith", &c); err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevel(c.LogLevel),
	})))
	slog.Info("Running version", "version", versioninfo.Short())

	if c.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         c.SentryDSN,
			Environment: c.Web.Environment,
			Release:     versioninfo.Short(),
		}); err != nil {
			log.Fatalf("error setting up sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Usage log setup
	usageStore, err := usagelog.Open(c.UsageDBPath)
	if err != nil {
		log.Fatalf("error setting up usage log: %v", err)
	}
	defer usageStore.Close()

	// LLM setup
	llmClient, err := llm.New(ctx, c.LLM, usageStore)
	if err != nil {
		log.Fatalf("error setting up LLM client: %v", err)
	}

	// Extraction setup
	extractor, err := extract.New(c.Extract, llmClient)
	if err != nil {
		log.Fatalf("error setting up extractors: %v", err)
	}

	// Coordinator setup
	handlers := modules.NewHandlers(llmClient)
	rt := router.New(llmClient, handlers, c.ConfidenceThreshold)
	coordinator := internal.NewCoordinator(session.NewStore(), rt, extractor, llmClient.Config().Model)

	// HTTP server setup
	handler := web.New(c.Web, coordinator, extractor, usageStore, llmClient.Config().Model)
	server := &http.Server{
		BaseContext: func(listener net.Listener) context.Context { return ctx },
		Addr:        c.Web.Addr,
		Handler:     handler,
	}

	wg.Go(func() error {
		slog.Info("Starting HTTP server", "addr", c.Web.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}

		return nil
	})

	wg.Go(func() error {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
		case <-ch:
			slog.Info("Shutting down")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
		}

		return nil
	})

	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("error running server", "error", err)
	}
}
