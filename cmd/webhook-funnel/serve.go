package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Enriquefft/webhook-funnel/internal/config"
	"github.com/Enriquefft/webhook-funnel/internal/dispatch"
	"github.com/Enriquefft/webhook-funnel/internal/gateway"
	"github.com/Enriquefft/webhook-funnel/internal/logging"
	"github.com/Enriquefft/webhook-funnel/internal/metrics"
	"github.com/Enriquefft/webhook-funnel/internal/parser"
	"github.com/Enriquefft/webhook-funnel/internal/queue"
	"github.com/Enriquefft/webhook-funnel/internal/security"
	"github.com/Enriquefft/webhook-funnel/internal/tailscale"
	"github.com/Enriquefft/webhook-funnel/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook endpoint and the chat dispatch loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return serve(cmd.Context(), path)
		},
	}
}

// loadConfig loads and validates configuration, mapping failures to the
// configuration exit code.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, withCode(exitConfig, fmt.Errorf("load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, withCode(exitConfig, fmt.Errorf("invalid config: %w", err))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, withCode(exitConfig, err)
	}
	return logger, nil
}

func serve(ctx context.Context, path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The chat session is a startup precondition.
	gw := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, logger)
	if err := gw.Connect(ctx); err != nil {
		return withCode(exitChat, err)
	}
	defer gw.Close()

	m := metrics.New()
	q := queue.New()
	registry := parser.Default(logger)

	srv := &webhook.Server{
		Addr:         cfg.Webhook.Addr,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		Queue:        q,
		Sources:      registry,
		Guard: security.New(security.Config{
			Secret:    cfg.Webhook.Secret,
			RateLimit: cfg.Webhook.RateLimit,
			RateBurst: cfg.Webhook.RateBurst,
		}),
		Metrics: m,
		Logger:  logger,
	}

	loop := dispatch.New(dispatch.Config{
		Ship:            cfg.Chat.Ship,
		Chat:            cfg.Chat.Name,
		PollInterval:    cfg.Dispatch.PollInterval(),
		DeliveryTimeout: cfg.Dispatch.DeliveryTimeout(),
		Queue:           q,
		Registry:        registry,
		Client:          gw,
		Metrics:         m,
		Logger:          logger,
	})

	if cfg.Webhook.Expose == "tailscale" {
		port, err := tailscale.Port(cfg.Webhook.Addr)
		if err != nil {
			return withCode(exitConfig, err)
		}
		if _, err := tailscale.StartFunnel(ctx, port, logger); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		err := loop.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()
	q.Close()
	logger.Info("shut down", "pending", q.Len())
	return err
}
