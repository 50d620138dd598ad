package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shoe-concept-studio/internal/bot"
	"shoe-concept-studio/internal/config"
	"shoe-concept-studio/internal/history"
	"shoe-concept-studio/internal/httpclient"
	"shoe-concept-studio/internal/journal"
	"shoe-concept-studio/internal/mediagroup"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/session"
	"shoe-concept-studio/internal/studio"
	"shoe-concept-studio/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := cfg.NewLogger()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Logger:     logger,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	client := cfg.NewClient(httpClient, logger)
	builder := request.NewBuilder(cfg.BuilderConfig())

	var (
		recorder studio.Recorder
		reader   bot.Journal
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

	handler := bot.New(bot.Options{
		Telegram:      tg,
		Sessions:      sessions,
		Journal:       reader,
		Logger:        logger,
		MaxVariations: cfg.MaxVariations,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	defer aggregator.Stop()
	handler.SetMediaGroupAggregator(aggregator)

	sweep := time.NewTicker(10 * time.Minute)
	defer sweep.Stop()

	logger.Info("bot started", "username", tg.Username(), "backend", cfg.Backend, "mode", cfg.RequestMode)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "pending_albums", aggregator.Pending())
			return
		case <-sweep.C:
			if n := sessions.Sweep(); n > 0 {
				logger.Info("idle sessions dropped", "count", n)
			}
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}
