package service

import (
	"strings"

	"snake-market/internal/ledger"
	"snake-market/internal/messages"
	"snake-market/internal/model"
)

// ScoreBoardSize is how many leaders the scoreboard shows.
const ScoreBoardSize = 5

// RankingService handles ranking and leaderboard operations.
type RankingService struct {
	ledger *ledger.Ledger
	board  func() (header, line string)
}

// NewRankingService creates a new RankingService instance. board returns the
// scoreboard header template ({0} the caller's points) and line template
// ({0} rank, {1} name, {2} points).
func NewRankingService(l *ledger.Ledger, board func() (header, line string)) *RankingService {
	return &RankingService{ledger: l, board: board}
}

// GetTopPlayers returns the top n players by points, highest first.
func (s *RankingService) GetTopPlayers(n int) []model.ScoreRecord {
	return s.ledger.TopN(n)
}

// ScoreBoard renders the caller's points followed by the top players.
func (s *RankingService) ScoreBoard(playerID string) string {
	header, line := s.board()
	var b strings.Builder
	b.WriteString(messages.Format(header, s.ledger.GetScore(playerID)))
	for i, rec := range s.ledger.TopN(ScoreBoardSize) {
		b.WriteString(messages.Format(line, i+1, displayName(rec), rec.TotalScore))
	}
	return b.String()
}

func displayName(rec model.ScoreRecord) string {
	if rec.LastKnownName != "" {
		return rec.LastKnownName
	}
	return rec.UserID
}
