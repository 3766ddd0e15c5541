package quiz

import (
	"context"
	"fmt"
	"log"
	"strings"

	"quizbot/internal/domain"
)

const (
	// DefaultIntervalMinutes is applied when a group first enables quizzes.
	DefaultIntervalMinutes = 30
	// MinIntervalMinutes and MaxIntervalMinutes bound /setinterval.
	MinIntervalMinutes = 5
	MaxIntervalMinutes = 1440
)

// Messenger is the outbound slice of the chat platform the engine needs.
type Messenger interface {
	SendPoll(ctx context.Context, groupID int64, q domain.Question) (domain.PollHandle, error)
	// DeleteMessage is best-effort; the engine ignores its error.
	DeleteMessage(ctx context.Context, groupID int64, messageID int) error
}

// Service contains the quiz use cases: question delivery, scoring reads,
// and the admin operations behind group commands.
type Service struct {
	store     Store
	messenger Messenger
}

func NewService(store Store, messenger Messenger) *Service {
	return &Service{store: store, messenger: messenger}
}

// RegisterGroup records a group on first /start; an already known group keeps
// its settings.
func (s *Service) RegisterGroup(ctx context.Context, groupID int64, name string) error {
	return s.store.UpsertGroup(ctx, domain.Group{
		ID:              groupID,
		Name:            name,
		QuizActive:      true,
		IntervalMinutes: DefaultIntervalMinutes,
	})
}

// RegisterUser records a PM user for broadcast targeting.
func (s *Service) RegisterUser(ctx context.Context, user domain.User) error {
	return s.store.UpsertUser(ctx, user)
}

func (s *Service) GroupSettings(ctx context.Context, groupID int64) (domain.GroupSettings, error) {
	return s.store.GroupSettings(ctx, groupID)
}

// SendQuiz replaces the group's active poll with a fresh question. The old
// poll's message is deleted best-effort and its row cleared before the new
// poll is sent, so the group never has two active polls at once.
func (s *Service) SendQuiz(ctx context.Context, groupID int64) error {
	settings, err := s.store.GroupSettings(ctx, groupID)
	if err != nil {
		return err
	}
	if !settings.QuizActive {
		return nil
	}

	if err := s.retireActivePoll(ctx, groupID); err != nil {
		return err
	}

	question, err := s.store.NextQuestion(ctx, groupID)
	if err != nil {
		return err
	}
	if question == nil {
		log.Printf("quiz: no questions configured, skipping group %d", groupID)
		return nil
	}

	handle, err := s.messenger.SendPoll(ctx, groupID, *question)
	if err != nil {
		return fmt.Errorf("%w: send poll to group %d: %v", domain.ErrDelivery, groupID, err)
	}

	return s.store.SetActivePoll(ctx, domain.ActivePoll{
		GroupID:    groupID,
		PollID:     handle.PollID,
		QuestionID: question.ID,
		MessageID:  handle.MessageID,
	})
}

// ActivateQuiz resumes quiz delivery for the group.
func (s *Service) ActivateQuiz(ctx context.Context, groupID int64) error {
	return s.store.SetQuizActive(ctx, groupID, true)
}

// DeactivateQuiz stops quiz delivery and retires the current poll, if any.
func (s *Service) DeactivateQuiz(ctx context.Context, groupID int64) error {
	if err := s.store.SetQuizActive(ctx, groupID, false); err != nil {
		return err
	}
	return s.retireActivePoll(ctx, groupID)
}

// SetInterval validates and persists the group's quiz interval. A pending
// scheduler wait is not reshaped; the next fire picks up the new value.
func (s *Service) SetInterval(ctx context.Context, groupID int64, minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return fmt.Errorf("%w: interval must be between %d and %d minutes",
			domain.ErrValidation, MinIntervalMinutes, MaxIntervalMinutes)
	}
	return s.store.SetInterval(ctx, groupID, minutes)
}

// AddQuestion validates and stores a new question in the global pool.
func (s *Service) AddQuestion(ctx context.Context, q domain.Question) (int64, error) {
	if strings.TrimSpace(q.Prompt) == "" {
		return 0, fmt.Errorf("%w: question text is empty", domain.ErrValidation)
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return 0, fmt.Errorf("%w: option %d is empty", domain.ErrValidation, i)
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex > 3 {
		return 0, fmt.Errorf("%w: correct index must be 0..3", domain.ErrValidation)
	}
	if strings.TrimSpace(q.Category) == "" {
		q.Category = "General"
	}
	return s.store.AddQuestion(ctx, q)
}

func (s *Service) DeleteAllQuestions(ctx context.Context) error {
	return s.store.DeleteAllQuestions(ctx)
}

func (s *Service) QuestionCount(ctx context.Context) (int, error) {
	return s.store.CountQuestions(ctx)
}

func (s *Service) Leaderboard(ctx context.Context, groupID int64, limit int) ([]domain.Player, error) {
	return s.store.Leaderboard(ctx, groupID, limit)
}

func (s *Service) ResetBoard(ctx context.Context, groupID int64) error {
	return s.store.ResetBoard(ctx, groupID)
}

// BroadcastUsers and BroadcastGroups expose fan-out targets for the owner's
// broadcast command.
func (s *Service) BroadcastUsers(ctx context.Context) ([]int64, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) BroadcastGroups(ctx context.Context) ([]int64, error) {
	return s.store.ListGroups(ctx)
}

// retireActivePoll deletes the current poll's message (errors ignored, the
// message may already be gone) and clears the tracker row.
func (s *Service) retireActivePoll(ctx context.Context, groupID int64) error {
	poll, err := s.store.ActivePoll(ctx, groupID)
	if err != nil {
		return err
	}
	if poll == nil {
		return nil
	}
	if err := s.messenger.DeleteMessage(ctx, groupID, poll.MessageID); err != nil {
		log.Printf("quiz: delete old poll message %d in group %d: %v", poll.MessageID, groupID, err)
	}
	return s.store.ClearActivePoll(ctx, groupID)
}
