package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quizbot/internal/config"
	"quizbot/internal/domain"
	"quizbot/internal/infra/postgres"
)

// NewSeedCmd fills an empty question pool with a few starter questions.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample questions when the pool is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			return seedQuestions(cmd.Context(), cfg.Postgres.URL)
		},
	}
}

func seedQuestions(ctx context.Context, url string) error {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	count, err := store.CountQuestions(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Printf("question pool already has %d questions, nothing to seed", count)
		return nil
	}

	for _, q := range sampleQuestions() {
		if _, err := store.AddQuestion(ctx, q); err != nil {
			return err
		}
	}
	log.Printf("seeded %d sample questions", len(sampleQuestions()))
	return nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			Prompt:       "What is the capital of France?",
			Options:      [4]string{"London", "Berlin", "Paris", "Madrid"},
			CorrectIndex: 2,
			Category:     "Geography",
		},
		{
			Prompt:       "Which planet is called the Red Planet?",
			Options:      [4]string{"Venus", "Mars", "Jupiter", "Saturn"},
			CorrectIndex: 1,
			Category:     "Science",
		},
		{
			Prompt:       "What is the square root of 144?",
			Options:      [4]string{"10", "11", "12", "13"},
			CorrectIndex: 2,
			Category:     "Math",
		},
	}
}
