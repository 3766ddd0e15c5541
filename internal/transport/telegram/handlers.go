package telegram

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"quizbot/internal/domain"
)

// broadcastDelay keeps the fan-out under Telegram's flood limits.
const broadcastDelay = 80 * time.Millisecond

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/quizstart", b.groupAdminOnly(b.handleQuizStart))
	b.tb.Handle("/quizstop", b.groupAdminOnly(b.handleQuizStop))
	b.tb.Handle("/quiznow", b.groupAdminOnly(b.handleQuizNow))
	b.tb.Handle("/setinterval", b.groupAdminOnly(b.handleSetInterval))
	b.tb.Handle("/resetboard", b.groupAdminOnly(b.handleResetBoard))
	b.tb.Handle("/leaderboard", b.handleLeaderboard)

	b.tb.Handle("/addquestion", b.ownerPMOnly(b.handleAddQuestionHelp))
	b.tb.Handle("/newq", b.ownerPMOnly(b.handleNewQuestion))
	b.tb.Handle("/deleteallq", b.ownerPMOnly(b.handleDeleteAllQuestions))
	b.tb.Handle("/questioncount", b.ownerPMOnly(b.handleQuestionCount))
	b.tb.Handle("/broadcast", b.ownerPMOnly(b.handleBroadcast))

	b.tb.Handle(tele.OnPollAnswer, b.handlePollAnswer)
}

// groupAdminOnly gates a handler to group chats and group admins.
func (b *Bot) groupAdminOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !isGroup(c) {
			return c.Reply("⚠️ This command works only in groups.")
		}
		if !b.isGroupAdmin(c) {
			return c.Reply("❌ Only group admins can use this.")
		}
		return next(c)
	}
}

// ownerPMOnly gates a handler to the bot owner in a private chat.
func (b *Bot) ownerPMOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Chat().Type != tele.ChatPrivate {
			return c.Reply("⚠️ PM me to use this command.")
		}
		if !b.isOwner(c) {
			return c.Reply("❌ Only the bot owner can use this.")
		}
		return next(c)
	}
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx := context.Background()
	if isGroup(c) {
		if err := b.svc.RegisterGroup(ctx, c.Chat().ID, c.Chat().Title); err != nil {
			return b.replyError(c, err)
		}
		b.sched.Start(c.Chat().ID)
		return c.Send(groupWelcomeText, tele.ModeHTML)
	}

	user := domain.User{ID: c.Sender().ID, Username: c.Sender().Username, FirstName: c.Sender().FirstName}
	if err := b.svc.RegisterUser(ctx, user); err != nil {
		return b.replyError(c, err)
	}
	return c.Send(pmWelcomeText, tele.ModeHTML)
}

func (b *Bot) handleQuizStart(c tele.Context) error {
	if err := b.svc.ActivateQuiz(context.Background(), c.Chat().ID); err != nil {
		return b.replyError(c, err)
	}
	b.sched.Start(c.Chat().ID)
	return c.Reply("✅ Quiz resumed.")
}

func (b *Bot) handleQuizStop(c tele.Context) error {
	// Flag first so a racing fire self-skips, then cancel the timer.
	if err := b.svc.DeactivateQuiz(context.Background(), c.Chat().ID); err != nil {
		return b.replyError(c, err)
	}
	b.sched.Stop(c.Chat().ID)
	return c.Reply("🛑 Quiz stopped. Use /quizstart to resume.")
}

func (b *Bot) handleQuizNow(c tele.Context) error {
	if err := b.svc.SendQuiz(context.Background(), c.Chat().ID); err != nil {
		return b.replyError(c, err)
	}
	return nil
}

func (b *Bot) handleSetInterval(c tele.Context) error {
	minutes, err := strconv.Atoi(strings.TrimSpace(c.Message().Payload))
	if err != nil {
		return c.Reply("⚠️ Usage: /setinterval 5..1440")
	}
	if err := b.svc.SetInterval(context.Background(), c.Chat().ID, minutes); err != nil {
		return b.replyError(c, err)
	}
	return c.Reply("⏰ Interval set to <b>"+strconv.Itoa(minutes)+"</b> minutes.", tele.ModeHTML)
}

func (b *Bot) handleLeaderboard(c tele.Context) error {
	if !isGroup(c) {
		return c.Reply("⚠️ This command works only in groups.")
	}
	players, err := b.svc.Leaderboard(context.Background(), c.Chat().ID, 10)
	if err != nil {
		return b.replyError(c, err)
	}
	if len(players) == 0 {
		return c.Reply("📊 No players yet. Answer a quiz to get on the board!")
	}
	return c.Send(formatLeaderboard(players), tele.ModeHTML)
}

func (b *Bot) handleResetBoard(c tele.Context) error {
	if err := b.svc.ResetBoard(context.Background(), c.Chat().ID); err != nil {
		return b.replyError(c, err)
	}
	return c.Reply("🔄 Leaderboard reset for this group.")
}

func (b *Bot) handleAddQuestionHelp(c tele.Context) error {
	return c.Send(addQuestionHelpText, tele.ModeHTML)
}

func (b *Bot) handleNewQuestion(c tele.Context) error {
	parts := strings.Split(c.Message().Payload, "|")
	if len(parts) != 7 {
		return c.Reply("❌ Wrong format. Use /addquestion for help.")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	correctIndex, err := strconv.Atoi(parts[5])
	if err != nil {
		return c.Reply("❌ Correct index must be 0..3")
	}

	_, err = b.svc.AddQuestion(context.Background(), domain.Question{
		Prompt:       parts[0],
		Options:      [4]string{parts[1], parts[2], parts[3], parts[4]},
		CorrectIndex: correctIndex,
		Category:     parts[6],
	})
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Reply("✅ Question added.")
}

func (b *Bot) handleDeleteAllQuestions(c tele.Context) error {
	if err := b.svc.DeleteAllQuestions(context.Background()); err != nil {
		return b.replyError(c, err)
	}
	return c.Reply("🗑️ All questions deleted.")
}

func (b *Bot) handleQuestionCount(c tele.Context) error {
	count, err := b.svc.QuestionCount(context.Background())
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Reply("📊 Total questions: " + strconv.Itoa(count))
}

// handleBroadcast fans a message out to known users and/or groups:
// /broadcast users|groups|all <text>
func (b *Bot) handleBroadcast(c tele.Context) error {
	target, text, ok := strings.Cut(c.Message().Payload, " ")
	if !ok || strings.TrimSpace(text) == "" {
		return c.Reply("⚠️ Usage: /broadcast users|groups|all <text>")
	}

	ctx := context.Background()
	var ids []int64
	if target == "users" || target == "all" {
		users, err := b.svc.BroadcastUsers(ctx)
		if err != nil {
			return b.replyError(c, err)
		}
		ids = append(ids, users...)
	}
	if target == "groups" || target == "all" {
		groups, err := b.svc.BroadcastGroups(ctx)
		if err != nil {
			return b.replyError(c, err)
		}
		ids = append(ids, groups...)
	}
	if target != "users" && target != "groups" && target != "all" {
		return c.Reply("⚠️ Usage: /broadcast users|groups|all <text>")
	}

	sent, failed := 0, 0
	for _, id := range ids {
		if _, err := b.tb.Send(tele.ChatID(id), text, tele.ModeHTML); err != nil {
			failed++
		} else {
			sent++
		}
		time.Sleep(broadcastDelay)
	}
	return c.Reply("✅ Broadcast done. Sent: " + strconv.Itoa(sent) + " | Failed: " + strconv.Itoa(failed))
}

func (b *Bot) handlePollAnswer(c tele.Context) error {
	pa := c.PollAnswer()
	if pa == nil || pa.Sender == nil || len(pa.Options) == 0 {
		// Retracted votes and channel voters carry no scorable selection.
		return nil
	}
	err := b.disp.HandleVote(context.Background(), domain.VoteEvent{
		UserID:    pa.Sender.ID,
		Username:  pa.Sender.Username,
		FirstName: pa.Sender.FirstName,
		PollID:    pa.PollID,
		Option:    pa.Options[0],
	})
	if err != nil {
		log.Printf("telegram: handle vote on poll %s: %v", pa.PollID, err)
	}
	return nil
}

// replyError maps engine errors to user-facing replies. Validation messages
// are safe to echo; anything else gets a generic apology.
func (b *Bot) replyError(c tele.Context, err error) error {
	log.Printf("telegram: %s in chat %d: %v", c.Message().Text, c.Chat().ID, err)
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.Reply("❌ " + strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	case errors.Is(err, domain.ErrDelivery):
		return c.Reply("⚠️ Couldn't send the quiz right now, will keep trying on schedule.")
	default:
		return c.Reply("😔 Something went wrong, please try again later.")
	}
}
