package quiz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizbot/internal/domain"
	"quizbot/internal/infra/memory"
	"quizbot/internal/quiz"
)

func newDispatcherFixture(t *testing.T) (*quiz.Dispatcher, *memory.Store, domain.ActivePoll, domain.Question) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	id, err := store.AddQuestion(ctx, domain.Question{
		Prompt:       "Capital of France?",
		Options:      [4]string{"London", "Berlin", "Paris", "Madrid"},
		CorrectIndex: 2,
		Category:     "Geography",
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	poll := domain.ActivePoll{GroupID: 10, PollID: "poll-1", QuestionID: id, MessageID: 100}
	if err := store.SetActivePoll(ctx, poll); err != nil {
		t.Fatalf("set active poll: %v", err)
	}

	question, err := store.GetQuestion(ctx, id)
	if err != nil || question == nil {
		t.Fatalf("get question: %v", err)
	}

	cache := quiz.NewAnswerCache(store, time.Minute)
	return quiz.NewDispatcher(store, cache, memory.NewDeduper(time.Minute)), store, poll, *question
}

func TestHandleVoteScoresCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	dispatcher, store, poll, question := newDispatcherFixture(t)

	err := dispatcher.HandleVote(ctx, domain.VoteEvent{
		UserID: 7, Username: "alice", FirstName: "Alice",
		PollID: poll.PollID, Option: question.CorrectIndex,
	})
	if err != nil {
		t.Fatalf("handle vote: %v", err)
	}

	players, err := store.Leaderboard(ctx, poll.GroupID, 10)
	if err != nil || len(players) != 1 {
		t.Fatalf("expected one player, got %v, %v", players, err)
	}
	p := players[0]
	if p.Score != 4 || p.CorrectAnswers != 1 || p.CurrentStreak != 1 || p.MaxStreak != 1 {
		t.Fatalf("unexpected stats after correct vote: %+v", p)
	}
}

func TestHandleVoteScoresWrongAnswerAndResetsStreak(t *testing.T) {
	ctx := context.Background()
	dispatcher, store, poll, question := newDispatcherFixture(t)

	wrong := (question.CorrectIndex + 1) % 4
	if err := store.UpsertPlayer(ctx, 7, poll.GroupID, "alice", "Alice"); err != nil {
		t.Fatalf("upsert player: %v", err)
	}
	// Build up a streak, then break it.
	for i := 0; i < 3; i++ {
		if err := store.ApplyVote(ctx, 7, poll.GroupID, true); err != nil {
			t.Fatalf("apply vote: %v", err)
		}
	}

	err := dispatcher.HandleVote(ctx, domain.VoteEvent{
		UserID: 7, Username: "alice", FirstName: "Alice",
		PollID: poll.PollID, Option: wrong,
	})
	if err != nil {
		t.Fatalf("handle vote: %v", err)
	}

	players, _ := store.Leaderboard(ctx, poll.GroupID, 10)
	p := players[0]
	if p.CurrentStreak != 0 {
		t.Fatalf("expected streak reset to 0, got %d", p.CurrentStreak)
	}
	if p.MaxStreak != 3 {
		t.Fatalf("expected max streak kept at 3, got %d", p.MaxStreak)
	}
	if p.Score != 11 { // 3*4 - 1
		t.Fatalf("expected score 11, got %d", p.Score)
	}
	if p.WrongAnswers != 1 {
		t.Fatalf("expected one wrong answer, got %d", p.WrongAnswers)
	}
}

func TestHandleVoteDiscardsStalePoll(t *testing.T) {
	ctx := context.Background()
	dispatcher, store, poll, question := newDispatcherFixture(t)

	err := dispatcher.HandleVote(ctx, domain.VoteEvent{
		UserID: 7, PollID: "poll-superseded", Option: question.CorrectIndex,
	})
	if err != nil {
		t.Fatalf("stale vote should be discarded silently, got %v", err)
	}
	players, _ := store.Leaderboard(ctx, poll.GroupID, 10)
	if len(players) != 0 {
		t.Fatalf("expected no player state mutation, got %v", players)
	}
}

type flakyVoteStore struct {
	quiz.Store
	failures int
}

func (s *flakyVoteStore) ApplyVote(ctx context.Context, userID, groupID int64, correct bool) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	return s.Store.ApplyVote(ctx, userID, groupID, correct)
}

func TestHandleVoteDeduplicatesResentNotification(t *testing.T) {
	ctx := context.Background()
	dispatcher, store, poll, question := newDispatcherFixture(t)

	ev := domain.VoteEvent{
		UserID: 7, Username: "alice", FirstName: "Alice",
		PollID: poll.PollID, Option: question.CorrectIndex,
	}
	if err := dispatcher.HandleVote(ctx, ev); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := dispatcher.HandleVote(ctx, ev); err != nil {
		t.Fatalf("resent vote: %v", err)
	}

	players, _ := store.Leaderboard(ctx, poll.GroupID, 10)
	if players[0].Score != 4 || players[0].CorrectAnswers != 1 {
		t.Fatalf("expected vote scored exactly once, got %+v", players[0])
	}
}

func TestHandleVoteRedeliveryScoresAfterStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	id, err := store.AddQuestion(ctx, domain.Question{
		Prompt:       "Capital of France?",
		Options:      [4]string{"London", "Berlin", "Paris", "Madrid"},
		CorrectIndex: 2,
		Category:     "Geography",
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	poll := domain.ActivePoll{GroupID: 10, PollID: "poll-1", QuestionID: id, MessageID: 100}
	if err := store.SetActivePoll(ctx, poll); err != nil {
		t.Fatalf("set active poll: %v", err)
	}

	flaky := &flakyVoteStore{Store: store, failures: 1}
	dispatcher := quiz.NewDispatcher(flaky, quiz.NewAnswerCache(store, time.Minute), memory.NewDeduper(time.Minute))

	ev := domain.VoteEvent{
		UserID: 7, Username: "alice", FirstName: "Alice",
		PollID: poll.PollID, Option: 2,
	}
	if err := dispatcher.HandleVote(ctx, ev); err == nil {
		t.Fatalf("expected storage failure on first delivery")
	}

	// The failed delivery must not burn the dedup mark.
	if err := dispatcher.HandleVote(ctx, ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	players, _ := store.Leaderboard(ctx, poll.GroupID, 10)
	if len(players) != 1 || players[0].Score != 4 || players[0].CorrectAnswers != 1 {
		t.Fatalf("expected redelivery scored exactly once, got %v", players)
	}

	// A third delivery is a genuine duplicate again.
	if err := dispatcher.HandleVote(ctx, ev); err != nil {
		t.Fatalf("duplicate after success: %v", err)
	}
	players, _ = store.Leaderboard(ctx, poll.GroupID, 10)
	if players[0].Score != 4 {
		t.Fatalf("expected duplicate discarded, got %+v", players[0])
	}
}

func TestHandleVoteDiscardsDeletedQuestion(t *testing.T) {
	ctx := context.Background()
	dispatcher, store, poll, question := newDispatcherFixture(t)

	if err := store.DeleteAllQuestions(ctx); err != nil {
		t.Fatalf("delete questions: %v", err)
	}

	err := dispatcher.HandleVote(ctx, domain.VoteEvent{
		UserID: 7, PollID: poll.PollID, Option: question.CorrectIndex,
	})
	if err != nil {
		t.Fatalf("vote on deleted question should be discarded, got %v", err)
	}
	players, _ := store.Leaderboard(ctx, poll.GroupID, 10)
	if len(players) != 0 {
		t.Fatalf("expected no player state mutation, got %v", players)
	}
}
