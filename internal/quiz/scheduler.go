package quiz

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"quizbot/internal/domain"
)

const (
	// minCycle is the floor under a group's wait, whatever its interval says.
	minCycle = 60 * time.Second
	// errorCooldown is the wait after an unexpected cycle failure, so a broken
	// store cannot spin a group's loop.
	errorCooldown = 300 * time.Second
)

// Scheduler owns one repeating delivery loop per active group. The registry is
// keyed by group id; Start is idempotent so a group can never hold two live
// loops. Stop cancels the loop entirely; /quizstart recreates it via Start.
type Scheduler struct {
	svc *Service

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{
		svc:     svc,
		cancels: make(map[int64]context.CancelFunc),
	}
}

// Start begins the group's cycle. A no-op when the group already runs.
// The first quiz fires immediately; later ones follow the stored interval.
func (s *Scheduler) Start(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cancels[groupID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[groupID] = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, groupID)
	}()
}

// Stop cancels the group's loop. Idempotent. An in-flight fire finishes;
// cancellation takes effect at the next wait boundary.
func (s *Scheduler) Stop(groupID int64) {
	s.mu.Lock()
	cancel, ok := s.cancels[groupID]
	if ok {
		delete(s.cancels, groupID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Running reports whether the group currently holds a live loop.
func (s *Scheduler) Running(groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[groupID]
	return ok
}

// Shutdown stops every loop and waits for them to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, groupID int64) {
	for {
		wait := s.cycle(ctx, groupID)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// cycle runs one fire and returns the delay before the next. Delivery
// failures and no-question skips keep the normal interval; anything else
// (settings unreadable, storage down) degrades to the error cool-down.
func (s *Scheduler) cycle(ctx context.Context, groupID int64) time.Duration {
	settings, err := s.svc.GroupSettings(ctx, groupID)
	if err != nil {
		log.Printf("scheduler: read settings for group %d: %v", groupID, err)
		return errorCooldown
	}

	if settings.QuizActive {
		if err := s.svc.SendQuiz(ctx, groupID); err != nil {
			log.Printf("scheduler: send quiz to group %d: %v", groupID, err)
			if !errors.Is(err, domain.ErrDelivery) {
				return errorCooldown
			}
		}
	}

	wait := time.Duration(settings.IntervalMinutes) * time.Minute
	if wait < minCycle {
		wait = minCycle
	}
	return wait
}
