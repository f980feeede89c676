package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Result is the outcome of a declared round.
type Result struct {
	Declarer uuid.UUID         `json:"declarer"`
	Valid    bool              `json:"isValidDeclaration"`
	Winners  []uuid.UUID       `json:"winners"`
	Scores   map[uuid.UUID]int `json:"scores"`
	Declared []Rank            `json:"declaredRanks"`
}

// HandRanks lists the ranks of a hand's non-empty slots in slot order.
func HandRanks(hand []Slot) []Rank {
	ranks := make([]Rank, 0, len(hand))
	for _, s := range hand {
		if !s.Empty() {
			ranks = append(ranks, s.Card.Rank)
		}
	}
	return ranks
}

// MatchesDeclaration compares declared ranks positionally against the
// non-empty slots. Empty slots are skipped, not padded.
func MatchesDeclaration(hand []Slot, declared []Rank) bool {
	actual := HandRanks(hand)
	if len(actual) != len(declared) {
		return false
	}
	for i := range actual {
		if actual[i] != declared[i] {
			return false
		}
	}
	return true
}

// HandScore sums the values of the non-empty slots.
func HandScore(hand []Slot) int {
	score := 0
	for _, s := range hand {
		if !s.Empty() {
			score += s.Card.Value
		}
	}
	return score
}

// Declare ends the round. Every hand card is revealed and scored; an invalid
// declaration adds Rules.DeclarePenalty to the declarer only. All players at
// the minimum score win.
func (g *Game) Declare(playerID uuid.UUID, declared []Rank) (Result, error) {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return Result{}, err
	}
	if p.DrawnCard != nil {
		return Result{}, fmt.Errorf("declare holding a drawn card: %w", ErrAlreadyDrawn)
	}
	if p.ActivePower != RankNone {
		return Result{}, ErrPowerPending
	}

	valid := MatchesDeclaration(p.Hand, declared)

	res := Result{
		Declarer: playerID,
		Valid:    valid,
		Scores:   make(map[uuid.UUID]int, len(g.Players)),
		Declared: append([]Rank(nil), declared...),
	}
	minScore := 0
	for i, pl := range g.Players {
		for _, s := range pl.Hand {
			if !s.Empty() {
				s.Card.IsRevealed = true
			}
		}
		pl.Score = HandScore(pl.Hand)
		if pl.ID == playerID && !valid {
			pl.Score += g.Rules.DeclarePenalty
		}
		res.Scores[pl.ID] = pl.Score
		if i == 0 || pl.Score < minScore {
			minScore = pl.Score
		}
	}
	for _, pl := range g.Players {
		if pl.Score == minScore {
			res.Winners = append(res.Winners, pl.ID)
		}
	}

	g.Status = StatusEnded
	g.Declarer = playerID
	g.PendingKingSwap = nil
	g.record(ActionDeclare, playerID, fmt.Sprintf("valid=%t", valid))
	return res, nil
}
