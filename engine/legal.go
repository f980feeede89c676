package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// DecisionContext describes what kind of decision a player faces.
type DecisionContext uint8

const (
	CtxIdle         DecisionContext = iota // not this player's move
	CtxStartTurn                           // draw or declare
	CtxPostDraw                            // swap or discard the drawn card
	CtxPowerOffered                        // activate or skip
	CtxPowerSelect                         // choose power targets
	CtxKingReveal                          // waiting for the delayed swap
	CtxGive                                // owes a card after eliminating
	CtxTerminal                            // round is not being played
)

// DecisionCtx returns the decision context for one player.
func (g *Game) DecisionCtx(playerID uuid.UUID) DecisionContext {
	if g.Status != StatusPlaying {
		return CtxTerminal
	}
	if pg := g.PendingCardGiving; pg != nil {
		if pg.EliminatorID == playerID {
			return CtxGive
		}
		return CtxIdle
	}
	cur := g.CurrentPlayer()
	if cur == nil || cur.ID != playerID {
		return CtxIdle
	}
	switch {
	case g.PendingKingSwap != nil:
		return CtxKingReveal
	case cur.ActivePower != RankNone && !cur.UsingPower:
		return CtxPowerOffered
	case cur.ActivePower != RankNone:
		return CtxPowerSelect
	case cur.DrawnCard != nil:
		return CtxPostDraw
	}
	return CtxStartTurn
}

// MoveKind tags a Move.
type MoveKind uint8

const (
	MoveDraw MoveKind = iota
	MoveSwap
	MoveDiscard
	MoveActivatePower
	MoveSkipPower
	MovePeekOwn
	MovePeekOpponent
	MoveSelectCard
	MoveGive
	MoveEliminate
	MoveDeclare
)

var moveNames = [...]string{
	"draw", "swap", "discard", "activate-power", "skip-power", "peek-own",
	"peek-opponent", "select-card", "give", "eliminate", "declare",
}

func (k MoveKind) String() string {
	if int(k) < len(moveNames) {
		return moveNames[k]
	}
	return fmt.Sprintf("move(%d)", uint8(k))
}

// Move is one legal choice for a player. Only the fields its Kind uses are
// set.
type Move struct {
	Kind   MoveKind
	Slot   int
	Target CardRef
	CardID uuid.UUID
	Ranks  []Rank
}

// LegalMoves lists the moves the rules currently accept from a player.
// MoveEliminate is listed for every hand card whenever an attempt is
// allowed, matching or not. MoveDeclare carries the true ranks of the
// player's hand.
func (g *Game) LegalMoves(playerID uuid.UUID) []Move {
	p, ok := g.Player(playerID)
	if !ok {
		return nil
	}
	var moves []Move

	switch g.DecisionCtx(playerID) {
	case CtxTerminal:
		return nil

	case CtxStartTurn:
		if len(g.Deck) > 0 || len(g.DiscardPile) > 1 {
			moves = append(moves, Move{Kind: MoveDraw})
		}
		moves = append(moves, Move{Kind: MoveDeclare, Ranks: HandRanks(p.Hand)})

	case CtxPostDraw:
		moves = append(moves, Move{Kind: MoveDiscard, CardID: p.DrawnCard.ID})
		for i, s := range p.Hand {
			if !s.Empty() {
				moves = append(moves, Move{Kind: MoveSwap, Slot: i})
			}
		}

	case CtxPowerOffered:
		moves = append(moves, Move{Kind: MoveActivatePower}, Move{Kind: MoveSkipPower})

	case CtxPowerSelect:
		moves = append(moves, Move{Kind: MoveSkipPower})
		moves = append(moves, g.legalPowerTargets(p)...)

	case CtxGive:
		for i, s := range p.Hand {
			if !s.Empty() {
				moves = append(moves, Move{Kind: MoveGive, Slot: i})
			}
		}
		return moves
	}

	return append(moves, g.legalEliminations(p)...)
}

func (g *Game) legalPowerTargets(p *Player) []Move {
	var moves []Move
	kind := p.ActivePower.Power()
	for _, owner := range g.Players {
		for i, s := range owner.Hand {
			if s.Empty() {
				continue
			}
			ref := CardRef{PlayerID: owner.ID, Index: i}
			switch {
			case kind == PowerPeekOwn && owner == p:
				moves = append(moves, Move{Kind: MovePeekOwn, Slot: i})
			case kind == PowerPeekOpponent && owner != p:
				moves = append(moves, Move{Kind: MovePeekOpponent, Target: ref})
			case kind == PowerUnseenSwap || kind == PowerSeenSwap:
				moves = append(moves, Move{Kind: MoveSelectCard, Target: ref})
			}
		}
	}
	return moves
}

func (g *Game) legalEliminations(p *Player) []Move {
	if g.PendingCardGiving != nil || len(g.DiscardPile) == 0 || p.HasEliminatedThisRound {
		return nil
	}
	if g.Rules.EliminationLock == LockGlobal && g.EliminationUsedThisRound {
		return nil
	}
	var moves []Move
	for _, owner := range g.Players {
		for _, s := range owner.Hand {
			if !s.Empty() {
				moves = append(moves, Move{Kind: MoveEliminate, CardID: s.Card.ID})
			}
		}
	}
	return moves
}

// Apply performs a Move through the matching operation, discarding its
// result details.
func (g *Game) Apply(playerID uuid.UUID, m Move) error {
	var err error
	switch m.Kind {
	case MoveDraw:
		_, err = g.Draw(playerID)
	case MoveSwap:
		_, err = g.SwapWithHand(playerID, m.Slot)
	case MoveDiscard:
		_, err = g.DiscardDrawn(playerID, m.CardID)
	case MoveActivatePower:
		err = g.ActivatePower(playerID, RankNone)
	case MoveSkipPower:
		err = g.SkipPower(playerID, RankNone)
	case MovePeekOwn:
		_, err = g.UsePowerOnOwnCard(playerID, m.Slot)
	case MovePeekOpponent:
		_, err = g.UsePowerOnOpponentCard(playerID, m.Target.PlayerID, m.Target.Index)
	case MoveSelectCard:
		_, err = g.SelectPowerCard(playerID, m.Target)
	case MoveGive:
		_, err = g.CompleteGive(playerID, m.Slot, -1)
	case MoveEliminate:
		_, err = g.Eliminate(playerID, m.CardID)
	case MoveDeclare:
		_, err = g.Declare(playerID, m.Ranks)
	default:
		err = fmt.Errorf("unhandled move %s", m.Kind)
	}
	return err
}
