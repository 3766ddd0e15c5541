package telegram

import (
	"strings"
	"testing"

	"quizbot/internal/domain"
)

func TestFormatLeaderboard(t *testing.T) {
	players := []domain.Player{
		{UserID: 1, Username: "alice", Score: 12, CorrectAnswers: 5, WrongAnswers: 2, CurrentStreak: 3, MaxStreak: 4},
		{UserID: 2, FirstName: "Bob <script>", Score: 8, CorrectAnswers: 2},
	}

	text := formatLeaderboard(players)

	if !strings.Contains(text, "👑 <b>@alice</b> (3🔥)") {
		t.Fatalf("expected leader line with medal and streak, got:\n%s", text)
	}
	if !strings.Contains(text, "🥈 <b>Bob &lt;script&gt;</b>") {
		t.Fatalf("expected escaped display name, got:\n%s", text)
	}
	if !strings.Contains(text, "💯 12 | ✅ 5 | ❌ 2 | 🔥 Max 4") {
		t.Fatalf("expected stats line, got:\n%s", text)
	}
}
