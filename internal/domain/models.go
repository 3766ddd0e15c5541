package domain

import "time"

// Group is a chat where quizzes run; one shared leaderboard per group.
type Group struct {
	ID              int64
	Name            string
	QuizActive      bool
	IntervalMinutes int
	CreatedAt       time.Time
}

// GroupSettings is the slice of group state the scheduler re-reads on every fire.
type GroupSettings struct {
	QuizActive      bool
	IntervalMinutes int
}

// User is the global PM registry entry, used only for broadcast targeting.
type User struct {
	ID        int64
	Username  string
	FirstName string
	StartedAt time.Time
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID           int64
	Prompt       string
	Options      [4]string
	CorrectIndex int // 0..3
	Category     string
	CreatedAt    time.Time
}

// ActivePoll is the single not-yet-superseded poll of a group.
type ActivePoll struct {
	GroupID    int64
	PollID     string
	QuestionID int64
	MessageID  int
	CreatedAt  time.Time
}

// Player holds per-user per-group quiz statistics.
type Player struct {
	UserID         int64
	GroupID        int64
	Username       string
	FirstName      string
	Score          int
	CorrectAnswers int
	WrongAnswers   int
	CurrentStreak  int
	MaxStreak      int
	LastAnswerTime time.Time
}

// DisplayName prefers the @username, falling back to the first name.
func (p Player) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return p.FirstName
}

// PollHandle references a poll the messaging platform created for us.
type PollHandle struct {
	PollID    string
	MessageID int
}

// VoteEvent is a platform-neutral poll vote notification.
type VoteEvent struct {
	UserID    int64
	Username  string
	FirstName string
	PollID    string
	Option    int
}
