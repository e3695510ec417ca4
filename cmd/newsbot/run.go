package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dnodevkis/tg-news-bot/internal/config"
	"github.com/dnodevkis/tg-news-bot/internal/editor"
	"github.com/dnodevkis/tg-news-bot/internal/grouper"
	"github.com/dnodevkis/tg-news-bot/internal/handler"
	"github.com/dnodevkis/tg-news-bot/internal/imagegen"
	"github.com/dnodevkis/tg-news-bot/internal/ingest"
	"github.com/dnodevkis/tg-news-bot/internal/llm"
	"github.com/dnodevkis/tg-news-bot/internal/news_processor"
	"github.com/dnodevkis/tg-news-bot/internal/repair"
	"github.com/dnodevkis/tg-news-bot/internal/repository"
	"github.com/dnodevkis/tg-news-bot/internal/review"
	"github.com/dnodevkis/tg-news-bot/internal/scheduler"
	"github.com/dnodevkis/tg-news-bot/internal/server"
	"github.com/dnodevkis/tg-news-bot/internal/telegram_bot"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot, the pipeline and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync() // Flushes buffer, if any
		}()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := run(ctx, cfg, logger); err != nil {
			logger.Error("Application failed", zap.Error(err))
			return err
		}
		logger.Info("Application stopped.")
		return nil
	},
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Database connection
	db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := repository.MigrateDB(db, logger); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	reportRepo := repository.NewReportRepository(db, logger)
	postRepo := repository.NewScheduledPostRepository(db, logger)

	// Editor model with provider fallback
	providers, err := llm.NewProviders(cfg.Editor.Providers, logger)
	if err != nil {
		return err
	}
	provider, err := llm.NewMultiProviderClient(providers, cfg.Editor.MaxFailuresBeforeSwitch, logger)
	if err != nil {
		return err
	}
	editorClient := editor.NewClient(provider, repair.NewParser(logger), editorConfig(cfg), logger)
	imageClient := imagegen.NewClient(imageConfig(cfg), logger)

	// Telegram
	api, err := telegram_bot.NewAPI(cfg.Telegram.BotToken, cfg.Telegram.Endpoint, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	tgClient := telegram_bot.NewClient(api, cfg.Telegram.AdminID, cfg.Telegram.ChannelID, loc, logger)

	sched := scheduler.New(postRepo, tgClient, tgClient, scheduler.Config{
		PublishTimeout: cfg.PublishTimeout(),
		Location:       loc,
	}, logger)
	defer sched.Stop()

	sessions := review.NewStore()
	workflow := review.NewWorkflow(sessions, editorClient, imageClient, reportRepo, tgClient, sched, review.Config{
		ScheduleSlots:  cfg.Review.ScheduleSlots,
		Location:       loc,
		PublishTimeout: cfg.PublishTimeout(),
	}, logger)

	processor := news_processor.NewProcessor(
		grouper.New(reportRepo, sessions, cfg.Pipeline.GroupWindow, logger),
		workflow, tgClient,
		news_processor.Config{
			PollInterval:  cfg.PollInterval(),
			FirstRunDelay: cfg.FirstRunDelay(),
			Concurrency:   cfg.Pipeline.Concurrency,
		}, logger)

	bot := telegram_bot.NewBot(tgClient, workflow, processor, reportRepo, postRepo, logger)

	resumed, err := sched.Resume(ctx)
	if err != nil {
		logger.Error("Failed to resume scheduled posts", zap.Error(err))
	} else {
		logger.Info("Scheduled posts resumed", zap.Int("armed", resumed))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Start(gctx)
	})
	g.Go(func() error {
		processor.Run(gctx)
		return nil
	})
	if cfg.Ingest.Enabled {
		ing := ingest.New(reportRepo, ingest.Config{
			Dir:           cfg.Ingest.Dir,
			SweepInterval: cfg.SweepInterval(),
			Location:      loc,
		}, logger)
		g.Go(func() error {
			return ing.Run(gctx)
		})
	}
	if cfg.Server.Enabled {
		status := handler.NewStatusHandler(reportRepo, postRepo, workflow.Store(), processor, logger)
		srv := server.NewServer(status, cfg.Server.JWTSecret, logger)
		g.Go(func() error {
			return srv.Run(gctx, ":"+cfg.Server.Port)
		})
	}

	logger.Info("Application started",
		zap.String("channel", cfg.Telegram.ChannelID),
		zap.Int("providers", len(providers)),
		zap.Bool("ingest", cfg.Ingest.Enabled),
		zap.Bool("server", cfg.Server.Enabled))
	return g.Wait()
}

func editorConfig(cfg *config.Config) editor.Config {
	return editor.Config{
		SystemPrompt:   cfg.Editor.SystemPrompt,
		MaxTokens:      cfg.Editor.MaxTokens,
		MinReplyLength: cfg.Editor.MinReplyLength,
		Timeout:        time.Duration(cfg.Editor.TimeoutSeconds) * time.Second,
		MaxAttempts:    cfg.Editor.MaxAttempts,
		BaseDelay:      time.Duration(cfg.Editor.BaseDelayMs) * time.Millisecond,
		MaxJitter:      time.Duration(cfg.Editor.MaxJitterMs) * time.Millisecond,
	}
}

func imageConfig(cfg *config.Config) imagegen.Config {
	return imagegen.Config{
		APIKey:      cfg.Image.APIKey,
		BaseURL:     cfg.Image.BaseURL,
		Model:       cfg.Image.Model,
		Size:        cfg.Image.Size,
		Quality:     cfg.Image.Quality,
		MaxAttempts: cfg.Image.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Image.BaseDelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
	}
}
