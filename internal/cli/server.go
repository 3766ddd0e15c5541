package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizbot/internal/config"
	"quizbot/internal/infra/memory"
	"quizbot/internal/infra/postgres"
	infraredis "quizbot/internal/infra/redis"
	"quizbot/internal/quiz"
	"quizbot/internal/transport/telegram"
)

// NewStartCmd builds the CLI subcommand that runs the bot.
func NewStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath)
		},
	}
}

func runBot(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not configured")
	}

	var store quiz.Store
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		log.Printf("no postgres url configured, running on the in-memory store")
		store = memory.NewStore()
	}

	dedupTTL := config.TTLDuration(cfg.Redis.DedupTTL, 24*time.Hour)
	var dedup quiz.Deduper
	if cfg.Redis.Addr != "" {
		dedup = infraredis.NewDeduper(goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), dedupTTL)
	} else {
		dedup = memory.NewDeduper(dedupTTL)
	}

	bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.OwnerID)
	if err != nil {
		return err
	}

	service := quiz.NewService(store, bot)
	scheduler := quiz.NewScheduler(service)
	answerTTL := config.TTLDuration(cfg.Quiz.AnswerCacheTTL, 10*time.Minute)
	dispatcher := quiz.NewDispatcher(store, quiz.NewAnswerCache(store, answerTTL), dedup)
	bot.Wire(service, scheduler, dispatcher)

	// Groups that were quiz-active before the last restart resume scheduling
	// without waiting for a fresh /start in their chat.
	groups, err := store.ListQuizActiveGroups(ctx)
	if err != nil {
		log.Printf("resume active groups: %v", err)
	}
	for _, groupID := range groups {
		scheduler.Start(groupID)
	}
	if len(groups) > 0 {
		log.Printf("resumed scheduling for %d groups", len(groups))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz bot")
		bot.Start()
		return nil
	})
	g.Go(func() error {
		select {
		case <-stop:
			log.Println("shutting down bot...")
		case <-gctx.Done():
			log.Println("context canceled, shutting down bot...")
		}
		bot.Stop()
		scheduler.Shutdown()
		return nil
	})
	return g.Wait()
}
