package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/echoscribe/internal/cache"
	"github.com/user/echoscribe/internal/config"
	"github.com/user/echoscribe/internal/pipeline"
	"github.com/user/echoscribe/internal/telegram"
	"github.com/user/echoscribe/internal/webhook"
	"github.com/user/echoscribe/pkg/stt/groq"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	messenger, err := telegram.New(cfg.TelegramBotToken, cfg.MaxFileSize())
	if err != nil {
		return err
	}
	if err := messenger.SetCommands(); err != nil {
		logger.Warn().Err(err).Msg("failed to publish bot command list")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := cache.New(rdb, cfg.CacheNamespace)

	provider := groq.New(
		groq.WithBaseURL(cfg.GroqBaseURL),
		groq.WithModel(cfg.GroqModel),
		groq.WithTimeout(cfg.UpstreamTimeout),
	)

	pipe := pipeline.New(messenger, store, provider,
		cfg.GroqAPIKeys, cfg.MaxDuration(), cfg.MaxFileSize())

	srv := webhook.NewServer(cfg.WebhookSecret, cfg.HandlerTimeout, pipe, logger)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("listen", cfg.ListenAddr).
		Int("credentials", len(cfg.GroqAPIKeys)).
		Int("max_duration_minutes", cfg.MaxDurationMinutes).
		Str("cache_namespace", cfg.CacheNamespace).
		Msg("echoscribe started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
