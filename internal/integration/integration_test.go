package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizbot/internal/domain"
	"quizbot/internal/infra/postgres"
	pgmigrations "quizbot/internal/infra/postgres/migrations"
	infraredis "quizbot/internal/infra/redis"
	"quizbot/internal/quiz"
)

func TestQuizRoundTripEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisAddr, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	messenger := &recordingMessenger{}
	service := quiz.NewService(store, messenger)

	redisClient := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	dedup := infraredis.NewDeduper(redisClient, time.Minute)
	dispatcher := quiz.NewDispatcher(store, quiz.NewAnswerCache(store, time.Minute), dedup)

	if err := service.RegisterGroup(ctx, -100, "integration"); err != nil {
		t.Fatalf("register group: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := service.AddQuestion(ctx, domain.Question{
			Prompt:       fmt.Sprintf("Question %d?", i),
			Options:      [4]string{"a", "b", "c", "d"},
			CorrectIndex: 1,
			Category:     "Test",
		}); err != nil {
			t.Fatalf("add question %d: %v", i, err)
		}
	}

	// Three fires deliver three distinct questions; each supersedes the last.
	seen := make(map[int64]bool)
	for i := 0; i < 3; i++ {
		if err := service.SendQuiz(ctx, -100); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		poll, err := store.ActivePoll(ctx, -100)
		if err != nil || poll == nil {
			t.Fatalf("active poll after send %d: %v, %v", i, poll, err)
		}
		if seen[poll.QuestionID] {
			t.Fatalf("question %d repeated before pool exhaustion", poll.QuestionID)
		}
		seen[poll.QuestionID] = true
	}
	if deleted := messenger.deletedCount(); deleted != 2 {
		t.Fatalf("expected 2 superseded messages deleted, got %d", deleted)
	}

	// Vote through the dispatcher: correct, then a duplicate, then wrong.
	poll, _ := store.ActivePoll(ctx, -100)
	correctVote := domain.VoteEvent{
		UserID: 7, Username: "alice", FirstName: "Alice",
		PollID: poll.PollID, Option: 1,
	}
	if err := dispatcher.HandleVote(ctx, correctVote); err != nil {
		t.Fatalf("correct vote: %v", err)
	}
	if err := dispatcher.HandleVote(ctx, correctVote); err != nil {
		t.Fatalf("duplicate vote: %v", err)
	}
	if err := dispatcher.HandleVote(ctx, domain.VoteEvent{
		UserID: 8, Username: "bob", FirstName: "Bob",
		PollID: poll.PollID, Option: 0,
	}); err != nil {
		t.Fatalf("wrong vote: %v", err)
	}

	players, err := store.Leaderboard(ctx, -100, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(players))
	}
	if players[0].UserID != 7 || players[0].Score != 4 || players[0].CorrectAnswers != 1 {
		t.Fatalf("expected alice leading with 4 (scored once), got %+v", players[0])
	}
	if players[1].UserID != 8 || players[1].Score != -1 || players[1].WrongAnswers != 1 {
		t.Fatalf("expected bob at -1, got %+v", players[1])
	}

	// Reset keeps the rows but zeroes the counters and usage.
	if err := service.ResetBoard(ctx, -100); err != nil {
		t.Fatalf("reset: %v", err)
	}
	players, _ = store.Leaderboard(ctx, -100, 10)
	if len(players) != 2 || players[0].Score != 0 || players[1].Score != 0 {
		t.Fatalf("expected zeroed board with retained rows, got %+v", players)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

type recordingMessenger struct {
	mu      sync.Mutex
	nextID  int
	deleted []int
}

func (m *recordingMessenger) SendPoll(_ context.Context, _ int64, _ domain.Question) (domain.PollHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return domain.PollHandle{PollID: fmt.Sprintf("poll-%d", m.nextID), MessageID: m.nextID}, nil
}

func (m *recordingMessenger) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *recordingMessenger) deletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}
