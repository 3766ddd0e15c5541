package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quiz_tables.sql
var createQuizTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createQuizTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP TABLE IF EXISTS players;
				DROP TABLE IF EXISTS active_polls;
				DROP TABLE IF EXISTS question_usage;
				DROP TABLE IF EXISTS questions;
				DROP TABLE IF EXISTS users;
				DROP TABLE IF EXISTS groups`)
			return err
		},
	)
}
