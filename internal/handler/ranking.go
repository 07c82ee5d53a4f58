package handler

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"snake-market/internal/model"
	"snake-market/internal/service"
)

// LeaderboardSize is how many players /top lists.
const LeaderboardSize = 10

// RankingHandler handles leaderboard commands.
type RankingHandler struct {
	rankingService *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(rankingService *service.RankingService) *RankingHandler {
	return &RankingHandler{rankingService: rankingService}
}

// HandleTop handles the /top command.
func (h *RankingHandler) HandleTop(c tele.Context) error {
	return c.Reply(FormatLeaderboard(h.rankingService.GetTopPlayers(LeaderboardSize)))
}

// FormatLeaderboard renders the leaderboard message.
func FormatLeaderboard(records []model.ScoreRecord) string {
	if len(records) == 0 {
		return "🏆 Leaderboard\n\nNo one has scored yet."
	}

	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n\n")
	for i, rec := range records {
		name := rec.LastKnownName
		if name == "" {
			name = rec.UserID
		}
		fmt.Fprintf(&b, "%s %s: %d points\n", rankPrefix(i+1), name, rec.TotalScore)
	}
	return strings.TrimRight(b.String(), "\n")
}

func rankPrefix(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}
