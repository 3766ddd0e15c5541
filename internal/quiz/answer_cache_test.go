package quiz_test

import (
	"context"
	"testing"
	"time"

	"quizbot/internal/domain"
	"quizbot/internal/infra/memory"
	"quizbot/internal/quiz"
)

func TestAnswerCacheCaches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	id, err := store.AddQuestion(ctx, domain.Question{
		Prompt:       "2 + 2?",
		Options:      [4]string{"3", "4", "5", "6"},
		CorrectIndex: 1,
		Category:     "Math",
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}

	counting := &countingQuestionStore{QuestionStore: store}
	cache := quiz.NewAnswerCache(counting, time.Minute)

	idx, ok, err := cache.CorrectIndex(ctx, id)
	if err != nil || !ok || idx != 1 {
		t.Fatalf("expected correct index 1, got %d, %v, %v", idx, ok, err)
	}
	if counting.calls != 1 {
		t.Fatalf("expected one store read, got %d", counting.calls)
	}

	if _, _, err := cache.CorrectIndex(ctx, id); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if counting.calls != 1 {
		t.Fatalf("expected cache hit, store reads %d", counting.calls)
	}
}

func TestAnswerCacheReportsMissingQuestion(t *testing.T) {
	ctx := context.Background()
	cache := quiz.NewAnswerCache(memory.NewStore(), time.Minute)

	_, ok, err := cache.CorrectIndex(ctx, 42)
	if err != nil {
		t.Fatalf("missing question lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing question")
	}
}

type countingQuestionStore struct {
	quiz.QuestionStore
	calls int
}

func (s *countingQuestionStore) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	s.calls++
	return s.QuestionStore.GetQuestion(ctx, id)
}
