package engine

import "github.com/google/uuid"

// CurrentPlayer returns the player whose turn it is, or nil before a deal.
func (g *Game) CurrentPlayer() *Player {
	if len(g.Players) == 0 {
		return nil
	}
	return g.Players[g.CurrentPlayerIndex]
}

// NextPlayerIndex returns the seat after i in turn order.
func (g *Game) NextPlayerIndex(i int) int {
	return (i + 1) % len(g.Players)
}

// AdvanceTurn moves to the next player, consuming SkippedTurn flags along
// the way. At most len(Players) flags are consumed, so a room where every
// player is flagged still terminates.
func (g *Game) AdvanceTurn() {
	n := len(g.Players)
	if n == 0 || g.Status != StatusPlaying {
		return
	}
	next := g.NextPlayerIndex(g.CurrentPlayerIndex)
	for i := 0; i < n && g.Players[next].SkippedTurn; i++ {
		g.Players[next].SkippedTurn = false
		next = g.NextPlayerIndex(next)
	}
	g.CurrentPlayerIndex = next
}

// clearEliminationFlags opens a new elimination round.
func (g *Game) clearEliminationFlags() {
	for _, p := range g.Players {
		p.HasEliminatedThisRound = false
	}
	g.EliminationUsedThisRound = false
}

// requireTurn checks that id is the current player of a running game with no
// give-back outstanding.
func (g *Game) requireTurn(id uuid.UUID) (*Player, error) {
	if g.Status != StatusPlaying {
		return nil, ErrGameNotPlaying
	}
	if g.PendingCardGiving != nil {
		return nil, ErrGivePending
	}
	p, idx, err := g.player(id)
	if err != nil {
		return nil, err
	}
	if idx != g.CurrentPlayerIndex {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// ForfeitResult reports what ForfeitTurn resolved on the player's behalf.
type ForfeitResult struct {
	Give      *TransferResult
	Discarded *Card
	Skipped   Rank
	Advanced  bool
}

// ForfeitTurn resolves whatever the current player still owes so that play
// can continue without them: a pending give is completed automatically, a
// drawn card is discarded, an offered or active power is skipped, and an
// idle turn is passed. A revealed K swap is left to run its course.
func (g *Game) ForfeitTurn(playerID uuid.UUID) (ForfeitResult, error) {
	var res ForfeitResult
	if g.Status != StatusPlaying {
		return res, ErrGameNotPlaying
	}
	if pg := g.PendingCardGiving; pg != nil {
		if pg.EliminatorID != playerID {
			return res, ErrGivePending
		}
		tr, err := g.AutoGive(playerID)
		if err != nil {
			return res, err
		}
		res.Give = &tr
	}

	p, err := g.requireTurn(playerID)
	if err != nil {
		if res.Give != nil {
			return res, nil
		}
		return res, err
	}
	before := g.CurrentPlayerIndex

	if p.DrawnCard != nil {
		out, err := g.DiscardDrawn(playerID, uuid.Nil)
		if err != nil {
			return res, err
		}
		res.Discarded = out.Card
	}
	if p.ActivePower != RankNone {
		if g.PendingKingSwap != nil {
			return res, nil
		}
		res.Skipped = p.ActivePower
		if err := g.SkipPower(playerID, RankNone); err != nil {
			return res, err
		}
	}
	if res.Discarded == nil && res.Skipped == RankNone && g.CurrentPlayerIndex == before {
		g.AdvanceTurn()
	}
	res.Advanced = g.CurrentPlayerIndex != before
	return res, nil
}
