package telegram

import (
	"context"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"quizbot/internal/domain"
	"quizbot/internal/quiz"
)

// Bot adapts the Telegram surface: it publishes quiz polls for the engine
// (quiz.Messenger) and translates commands and poll answers into engine calls.
type Bot struct {
	tb      *tele.Bot
	ownerID int64

	svc   *quiz.Service
	sched *quiz.Scheduler
	disp  *quiz.Dispatcher
}

func NewBot(token string, ownerID int64) (*Bot, error) {
	tb, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Bot{tb: tb, ownerID: ownerID}, nil
}

// Wire attaches the engine and registers all handlers. Separate from NewBot
// because the service needs the bot as its Messenger before handlers exist.
func (b *Bot) Wire(svc *quiz.Service, sched *quiz.Scheduler, disp *quiz.Dispatcher) {
	b.svc = svc
	b.sched = sched
	b.disp = disp
	b.registerHandlers()
}

// Start runs the long poller; it blocks until Stop is called.
func (b *Bot) Start() { b.tb.Start() }

func (b *Bot) Stop() { b.tb.Stop() }

// SendPoll publishes a quiz-type poll and returns its handle.
func (b *Bot) SendPoll(_ context.Context, groupID int64, q domain.Question) (domain.PollHandle, error) {
	poll := &tele.Poll{
		Type:          tele.PollQuiz,
		Question:      q.Prompt,
		CorrectOption: q.CorrectIndex,
		Anonymous:     false, // vote updates only arrive for non-anonymous polls
	}
	poll.AddOptions(q.Options[0], q.Options[1], q.Options[2], q.Options[3])

	msg, err := b.tb.Send(tele.ChatID(groupID), poll)
	if err != nil {
		return domain.PollHandle{}, err
	}
	return domain.PollHandle{
		PollID:    msg.Poll.ID,
		MessageID: msg.ID,
	}, nil
}

// DeleteMessage removes a previously sent message; callers treat failures as
// best-effort (the message may already be gone).
func (b *Bot) DeleteMessage(_ context.Context, groupID int64, messageID int) error {
	return b.tb.Delete(&tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    groupID,
	})
}

// isGroupAdmin reports whether the sender may run admin commands in the chat.
// Messages posted on behalf of the group itself count as anonymous admins.
func (b *Bot) isGroupAdmin(c tele.Context) bool {
	if sc := c.Message().SenderChat; sc != nil && sc.ID == c.Chat().ID {
		return true
	}
	member, err := b.tb.ChatMemberOf(c.Chat(), c.Sender())
	if err != nil {
		return false
	}
	return member.Role == tele.Creator || member.Role == tele.Administrator
}

func isGroup(c tele.Context) bool {
	t := c.Chat().Type
	return t == tele.ChatGroup || t == tele.ChatSuperGroup
}

func (b *Bot) isOwner(c tele.Context) bool {
	return c.Sender() != nil && c.Sender().ID == b.ownerID
}
