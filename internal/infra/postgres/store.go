package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizbot/internal/domain"
)

// Store is the pgxpool-backed implementation of quiz.Store. Every write that
// must be atomic (vote scoring, question selection, pool wipe) is a single
// statement or a transaction, so concurrent group loops cannot interleave
// half-applied state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) UpsertGroup(ctx context.Context, group domain.Group) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO groups (group_id, group_name, quiz_active, interval_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id) DO UPDATE SET group_name = EXCLUDED.group_name`,
		group.ID, group.Name, group.QuizActive, group.IntervalMinutes)
	return storageErr("upsert group", err)
}

func (s *Store) GroupSettings(ctx context.Context, groupID int64) (domain.GroupSettings, error) {
	var settings domain.GroupSettings
	err := s.pool.QueryRow(ctx,
		`SELECT quiz_active, interval_minutes FROM groups WHERE group_id = $1`, groupID).
		Scan(&settings.QuizActive, &settings.IntervalMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GroupSettings{QuizActive: true, IntervalMinutes: 30}, nil
	}
	if err != nil {
		return domain.GroupSettings{}, storageErr("read group settings", err)
	}
	return settings, nil
}

func (s *Store) SetQuizActive(ctx context.Context, groupID int64, active bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE groups SET quiz_active = $1 WHERE group_id = $2`, active, groupID)
	return storageErr("set quiz active", err)
}

func (s *Store) SetInterval(ctx context.Context, groupID int64, minutes int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE groups SET interval_minutes = $1 WHERE group_id = $2`, minutes, groupID)
	return storageErr("set interval", err)
}

func (s *Store) ListQuizActiveGroups(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT group_id FROM groups WHERE quiz_active`)
}

func (s *Store) ListGroups(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT group_id FROM groups`)
}

func (s *Store) UpsertUser(ctx context.Context, user domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username, first_name = EXCLUDED.first_name`,
		user.ID, user.Username, user.FirstName)
	return storageErr("upsert user", err)
}

func (s *Store) ListUsers(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT user_id FROM users`)
}

const questionColumns = `id, prompt, option_a, option_b, option_c, option_d, correct_index, category, created_at`

// NextQuestion runs inside one transaction: pick an unused question, recycling
// the group's usage when the pool is exhausted, and record the pick before
// committing so a concurrent call cannot draw the same question.
func (s *Store) NextQuestion(ctx context.Context, groupID int64) (*domain.Question, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin next question", err)
	}
	defer tx.Rollback(ctx)

	question, err := scanQuestion(tx.QueryRow(ctx, `
		SELECT q.`+questionColumns+`
		FROM questions q
		LEFT JOIN question_usage u ON q.id = u.question_id AND u.group_id = $1
		WHERE u.question_id IS NULL
		ORDER BY RANDOM() LIMIT 1`, groupID))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, storageErr("select unused question", err)
	}

	if question == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM question_usage WHERE group_id = $1`, groupID); err != nil {
			return nil, storageErr("recycle question usage", err)
		}
		question, err = scanQuestion(tx.QueryRow(ctx,
			`SELECT `+questionColumns+` FROM questions ORDER BY RANDOM() LIMIT 1`))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		if err != nil {
			return nil, storageErr("select recycled question", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO question_usage (group_id, question_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, groupID, question.ID); err != nil {
		return nil, storageErr("record question usage", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit next question", err)
	}
	return question, nil
}

func (s *Store) AddQuestion(ctx context.Context, q domain.Question) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO questions (prompt, option_a, option_b, option_c, option_d, correct_index, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		q.Prompt, q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.CorrectIndex, q.Category).
		Scan(&id)
	if err != nil {
		return 0, storageErr("add question", err)
	}
	return id, nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	question, err := scanQuestion(s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get question", err)
	}
	return question, nil
}

func (s *Store) DeleteAllQuestions(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin delete questions", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM question_usage`); err != nil {
		return storageErr("delete question usage", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM questions`); err != nil {
		return storageErr("delete questions", err)
	}
	return storageErr("commit delete questions", tx.Commit(ctx))
}

func (s *Store) CountQuestions(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return 0, storageErr("count questions", err)
	}
	return count, nil
}

func (s *Store) SetActivePoll(ctx context.Context, poll domain.ActivePoll) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO active_polls (group_id, poll_id, question_id, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id) DO UPDATE
		SET poll_id = EXCLUDED.poll_id, question_id = EXCLUDED.question_id, message_id = EXCLUDED.message_id`,
		poll.GroupID, poll.PollID, poll.QuestionID, poll.MessageID)
	return storageErr("set active poll", err)
}

func (s *Store) ActivePoll(ctx context.Context, groupID int64) (*domain.ActivePoll, error) {
	return s.queryPoll(ctx, `
		SELECT group_id, poll_id, question_id, message_id, created_at
		FROM active_polls WHERE group_id = $1`, groupID)
}

func (s *Store) ActivePollByPollID(ctx context.Context, pollID string) (*domain.ActivePoll, error) {
	return s.queryPoll(ctx, `
		SELECT group_id, poll_id, question_id, message_id, created_at
		FROM active_polls WHERE poll_id = $1`, pollID)
}

func (s *Store) ClearActivePoll(ctx context.Context, groupID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM active_polls WHERE group_id = $1`, groupID)
	return storageErr("clear active poll", err)
}

func (s *Store) UpsertPlayer(ctx context.Context, userID, groupID int64, username, firstName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO players (user_id, group_id, username, first_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, group_id) DO UPDATE
		SET username = EXCLUDED.username, first_name = EXCLUDED.first_name`,
		userID, groupID, username, firstName)
	return storageErr("upsert player", err)
}

func (s *Store) ApplyVote(ctx context.Context, userID, groupID int64, correct bool) error {
	var err error
	if correct {
		_, err = s.pool.Exec(ctx, `
			UPDATE players SET
				score = score + 4,
				correct_answers = correct_answers + 1,
				current_streak = current_streak + 1,
				max_streak = GREATEST(max_streak, current_streak + 1),
				last_answer_time = NOW()
			WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	} else {
		_, err = s.pool.Exec(ctx, `
			UPDATE players SET
				score = score - 1,
				wrong_answers = wrong_answers + 1,
				current_streak = 0,
				last_answer_time = NOW()
			WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	}
	return storageErr("apply vote", err)
}

func (s *Store) Leaderboard(ctx context.Context, groupID int64, limit int) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, group_id, username, first_name, score, correct_answers,
		       wrong_answers, current_streak, max_streak,
		       COALESCE(last_answer_time, 'epoch'::timestamptz)
		FROM players
		WHERE group_id = $1
		ORDER BY score DESC, correct_answers DESC, user_id ASC
		LIMIT $2`, groupID, limit)
	if err != nil {
		return nil, storageErr("read leaderboard", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.UserID, &p.GroupID, &p.Username, &p.FirstName, &p.Score,
			&p.CorrectAnswers, &p.WrongAnswers, &p.CurrentStreak, &p.MaxStreak, &p.LastAnswerTime); err != nil {
			return nil, storageErr("scan leaderboard row", err)
		}
		players = append(players, p)
	}
	return players, storageErr("iterate leaderboard", rows.Err())
}

func (s *Store) ResetBoard(ctx context.Context, groupID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin reset board", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `
		UPDATE players SET score = 0, correct_answers = 0, wrong_answers = 0,
		       current_streak = 0, max_streak = 0, last_answer_time = NULL
		WHERE group_id = $1`, groupID); err != nil {
		return storageErr("reset players", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM question_usage WHERE group_id = $1`, groupID); err != nil {
		return storageErr("reset question usage", err)
	}
	return storageErr("commit reset board", tx.Commit(ctx))
}

func (s *Store) listIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, storageErr("list ids", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan id", err)
		}
		ids = append(ids, id)
	}
	return ids, storageErr("iterate ids", rows.Err())
}

func (s *Store) queryPoll(ctx context.Context, query string, arg interface{}) (*domain.ActivePoll, error) {
	var poll domain.ActivePoll
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&poll.GroupID, &poll.PollID, &poll.QuestionID, &poll.MessageID, &poll.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read active poll", err)
	}
	return &poll, nil
}

func scanQuestion(row pgx.Row) (*domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.Prompt, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
		&q.CorrectIndex, &q.Category, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
