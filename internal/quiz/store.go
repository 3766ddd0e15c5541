package quiz

import (
	"context"

	"quizbot/internal/domain"
)

// GroupStore persists group registrations and scheduler settings.
type GroupStore interface {
	// UpsertGroup inserts the group if unknown; an existing row keeps its settings.
	UpsertGroup(ctx context.Context, group domain.Group) error
	GroupSettings(ctx context.Context, groupID int64) (domain.GroupSettings, error)
	SetQuizActive(ctx context.Context, groupID int64, active bool) error
	SetInterval(ctx context.Context, groupID int64, minutes int) error
	// ListQuizActiveGroups returns ids of groups whose quizzes should be running.
	ListQuizActiveGroups(ctx context.Context) ([]int64, error)
	ListGroups(ctx context.Context) ([]int64, error)
}

// UserStore is the global PM registry, consumed only by broadcast.
type UserStore interface {
	UpsertUser(ctx context.Context, user domain.User) error
	ListUsers(ctx context.Context) ([]int64, error)
}

// QuestionStore holds the shared question pool and per-group usage history.
type QuestionStore interface {
	// NextQuestion picks uniformly at random among questions the group has not used,
	// recycling the usage set when the pool is exhausted. The selection is recorded
	// before returning. Returns nil when no questions are configured at all.
	NextQuestion(ctx context.Context, groupID int64) (*domain.Question, error)
	AddQuestion(ctx context.Context, q domain.Question) (int64, error)
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)
	// DeleteAllQuestions clears the pool and every group's usage history together.
	DeleteAllQuestions(ctx context.Context) error
	CountQuestions(ctx context.Context) (int, error)
}

// PollStore tracks the single active poll per group.
type PollStore interface {
	// SetActivePoll upserts the group's row; last writer wins, no merge.
	SetActivePoll(ctx context.Context, poll domain.ActivePoll) error
	// ActivePoll returns nil when the group has no active poll.
	ActivePoll(ctx context.Context, groupID int64) (*domain.ActivePoll, error)
	// ActivePollByPollID resolves a poll id back to its group; vote updates from
	// Telegram carry the poll id but not the chat.
	ActivePollByPollID(ctx context.Context, pollID string) (*domain.ActivePoll, error)
	ClearActivePoll(ctx context.Context, groupID int64) error
}

// PlayerStore mutates per-user per-group statistics.
type PlayerStore interface {
	// UpsertPlayer creates the row with zeroed counters on first sight and only
	// refreshes username/first name afterwards.
	UpsertPlayer(ctx context.Context, userID, groupID int64, username, firstName string) error
	// ApplyVote updates score, answer counters and streaks in one atomic write.
	ApplyVote(ctx context.Context, userID, groupID int64, correct bool) error
	Leaderboard(ctx context.Context, groupID int64, limit int) ([]domain.Player, error)
	// ResetBoard zeroes every counter for the group's players and clears the
	// group's question usage. Rows are retained.
	ResetBoard(ctx context.Context, groupID int64) error
}

// Store is the full persistence surface the engine runs against.
type Store interface {
	GroupStore
	UserStore
	QuestionStore
	PollStore
	PlayerStore
}
