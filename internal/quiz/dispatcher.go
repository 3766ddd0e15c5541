package quiz

import (
	"context"
	"log"

	"quizbot/internal/domain"
)

// Deduper guards against the platform re-delivering a vote notification.
type Deduper interface {
	// Seen atomically records the (poll, user) pair and reports whether it was
	// already present.
	Seen(ctx context.Context, pollID string, userID int64) (bool, error)
	// Forget releases a recorded pair so a redelivery can be scored after all.
	Forget(ctx context.Context, pollID string, userID int64) error
}

// Dispatcher resolves raw vote notifications against the active poll state
// and forwards them to the scoring path exactly once per vote.
type Dispatcher struct {
	store   Store
	answers *AnswerCache
	dedup   Deduper
}

func NewDispatcher(store Store, answers *AnswerCache, dedup Deduper) *Dispatcher {
	return &Dispatcher{store: store, answers: answers, dedup: dedup}
}

// HandleVote scores one vote. Votes on superseded, deleted or unknown polls
// are discarded silently; that is normal churn, not an error.
func (d *Dispatcher) HandleVote(ctx context.Context, ev domain.VoteEvent) error {
	poll, err := d.store.ActivePollByPollID(ctx, ev.PollID)
	if err != nil {
		return err
	}
	if poll == nil {
		return nil
	}

	seen, err := d.dedup.Seen(ctx, ev.PollID, ev.UserID)
	if err != nil {
		// Scoring once matters more than never scoring twice.
		log.Printf("dispatcher: dedup check for poll %s user %d: %v", ev.PollID, ev.UserID, err)
	} else if seen {
		return nil
	}

	// The pair is marked before scoring so concurrent redeliveries cannot both
	// pass the gate. If anything past this point fails, release the mark: the
	// platform's next redelivery is the retry.
	correctIndex, ok, err := d.answers.CorrectIndex(ctx, poll.QuestionID)
	if err != nil {
		d.forget(ctx, ev)
		return err
	}
	if !ok {
		// Question deleted since the poll went out.
		return nil
	}

	if err := d.store.UpsertPlayer(ctx, ev.UserID, poll.GroupID, ev.Username, ev.FirstName); err != nil {
		d.forget(ctx, ev)
		return err
	}
	if err := d.store.ApplyVote(ctx, ev.UserID, poll.GroupID, ev.Option == correctIndex); err != nil {
		d.forget(ctx, ev)
		return err
	}
	return nil
}

func (d *Dispatcher) forget(ctx context.Context, ev domain.VoteEvent) {
	if err := d.dedup.Forget(ctx, ev.PollID, ev.UserID); err != nil {
		log.Printf("dispatcher: release dedup mark for poll %s user %d: %v", ev.PollID, ev.UserID, err)
	}
}
