package telegram

import (
	"fmt"
	"html"
	"strings"

	"quizbot/internal/domain"
)

const groupWelcomeText = `🤖 <b>Quiz Bot Enabled!</b>

• I will send quiz polls periodically.
• Default interval: <b>30 minutes</b>. Use <code>/setinterval &lt;min&gt;</code> to change.
• Scoring: <b>+4</b> correct, <b>-1</b> wrong.

<b>Admin commands</b> (creator/admins):
<code>/quizstart</code> – resume sending
<code>/quizstop</code> – stop sending
<code>/quiznow</code> – send a question now
<code>/setinterval 5..1440</code> – set minutes
<code>/leaderboard</code> – group top 10
<code>/resetboard</code> – clear scores`

const pmWelcomeText = `👋 Hi! I run timed quiz polls in groups.
Add me to a group and send <code>/start</code> there.

Owner-only (PM) utilities: /addquestion, /newq, /deleteallq, /questioncount, /broadcast`

const addQuestionHelpText = `📝 <b>Add Question</b>

Send: <code>/newq Question?|A|B|C|D|2|Category</code>
Correct index: 0=A, 1=B, 2=C, 3=D`

var medals = []string{"👑", "🥈", "🥉"}

func formatLeaderboard(players []domain.Player) string {
	var sb strings.Builder
	sb.WriteString("🏆 <b>Group Leaderboard</b>\n")
	for i, p := range players {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		streak := ""
		if p.CurrentStreak > 0 {
			streak = fmt.Sprintf(" (%d🔥)", p.CurrentStreak)
		}
		fmt.Fprintf(&sb, "\n%s <b>%s</b>%s\n    💯 %d | ✅ %d | ❌ %d | 🔥 Max %d",
			rank, html.EscapeString(p.DisplayName()), streak,
			p.Score, p.CorrectAnswers, p.WrongAnswers, p.MaxStreak)
	}
	return sb.String()
}
