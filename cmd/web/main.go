package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"shoe-concept-studio/internal/config"
	"shoe-concept-studio/internal/history"
	"shoe-concept-studio/internal/httpclient"
	"shoe-concept-studio/internal/journal"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/session"
	"shoe-concept-studio/internal/studio"
	"shoe-concept-studio/internal/web"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := cfg.NewLogger()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Logger:     logger,
	})
	client := cfg.NewClient(httpClient, logger)
	builder := request.NewBuilder(cfg.BuilderConfig())

	var (
		recorder studio.Recorder
		reader   web.Journal
	)
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			logger.Error("journal open failed", "path", cfg.JournalPath, "err", err)
			os.Exit(1)
		}
		defer j.Close()
		recorder, reader = j, j
	}

	sessions := session.NewStore(session.Options{
		NewStudio: func(id string) *studio.Studio {
			return studio.New(studio.Options{
				Builder:           builder,
				Client:            client,
				History:           history.New(cfg.HistoryCapacity),
				Recorder:          recorder,
				SessionID:         id,
				Downscale:         cfg.DownscaleOptions(),
				DefaultVariations: cfg.DefaultVariations,
				Logger:            logger,
			})
		},
	})

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	srv := &http.Server{
		Addr: cfg.WebAddr,
		Handler: web.New(web.Options{
			Sessions:       sessions,
			Journal:        reader,
			Logger:         logger,
			RequestTimeout: cfg.RequestTimeout,
			Static:         staticSub,
		}).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("web started", "addr", cfg.WebAddr, "backend", cfg.Backend, "mode", cfg.RequestMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		sweepSessions(egCtx, sessions, logger)
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func sweepSessions(ctx context.Context, sessions *session.Store, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				logger.Info("idle sessions dropped", "count", n)
			}
		}
	}
}
