package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// EliminationResult reports an elimination attempt.
type EliminationResult struct {
	Success bool
	// Card is the eliminated card on success, or the target on failure.
	Card        *Card
	OwnerID     uuid.UUID
	VacatedSlot int

	// Give is set when the eliminator now owes a card into VacatedSlot.
	Give *PendingGive

	// Penalty is the face-down card added to the eliminator on failure. It is
	// nil when the deck and discard pile could not supply one.
	Penalty     *Card
	PenaltySlot int

	// ForfeitedPower is the unused power discarded by a successful
	// elimination.
	ForfeitedPower Rank
	// CancelledKingSwap is the revealed K swap dropped with ForfeitedPower.
	CancelledKingSwap *KingSwap
}

// TransferResult reports a completed give-back.
type TransferResult struct {
	FromPlayerID uuid.UUID
	FromIndex    int
	ToPlayerID   uuid.UUID
	ToIndex      int
	Card         *Card
}

// locate finds a hand card anywhere in the room.
func (g *Game) locate(cardID uuid.UUID) (*Player, int) {
	for _, p := range g.Players {
		if i := p.FindCard(cardID); i >= 0 {
			return p, i
		}
	}
	return nil, -1
}

// Eliminate lets any player try to discard a hand card that matches the
// rank on top of the discard pile. On a match the card goes to the discard
// pile and, when it came from another player's hand, the eliminator owes
// one of their own cards into the gap. On a miss the eliminator takes a
// face-down penalty card.
func (g *Game) Eliminate(playerID, targetCardID uuid.UUID) (EliminationResult, error) {
	if g.Status != StatusPlaying {
		return EliminationResult{}, ErrGameNotPlaying
	}
	if g.PendingCardGiving != nil {
		return EliminationResult{}, ErrGivePending
	}
	p, _, err := g.player(playerID)
	if err != nil {
		return EliminationResult{}, err
	}
	top := g.DiscardTop()
	if top == nil {
		return EliminationResult{}, ErrEmptyDiscard
	}
	if p.HasEliminatedThisRound {
		return EliminationResult{}, ErrAlreadyEliminated
	}
	if g.Rules.EliminationLock == LockGlobal && g.EliminationUsedThisRound {
		return EliminationResult{}, ErrEliminationLocked
	}
	owner, slot := g.locate(targetCardID)
	if owner == nil {
		return EliminationResult{}, fmt.Errorf("eliminate %s: %w", targetCardID, ErrCardNotFound)
	}
	target := owner.Hand[slot].Card

	p.HasEliminatedThisRound = true
	res := EliminationResult{Card: target, OwnerID: owner.ID, VacatedSlot: slot}

	if target.Rank != top.Rank {
		res.Penalty, res.PenaltySlot = g.drawPenalty(p)
		g.record(ActionMatch, playerID, "missed", withCard(targetCardID), withTarget(owner.ID, slot))
		return res, nil
	}

	res.Success = true
	owner.Hand[slot] = Slot{}
	g.forgetSlot(CardRef{PlayerID: owner.ID, Index: slot})
	g.pushDiscard(target)
	g.EliminationUsedThisRound = true
	g.record(ActionElimination, playerID, "", withCard(target.ID), withTarget(owner.ID, slot))

	if owner.ID != p.ID && p.CardsInHand() > 0 {
		g.PendingCardGiving = &PendingGive{
			EliminatorID:   p.ID,
			TargetPlayerID: owner.ID,
			TargetSlot:     slot,
		}
		give := *g.PendingCardGiving
		res.Give = &give
	}

	if g.Rules.ForfeitPowerOnElimination && p.ActivePower != RankNone {
		res.ForfeitedPower = p.ActivePower
		if ks := g.PendingKingSwap; ks != nil && ks.PlayerID == p.ID {
			cp := *ks
			res.CancelledKingSwap = &cp
			g.PendingKingSwap = nil
		}
		if g.CurrentPlayer() == p {
			g.resolvePower(p)
		} else {
			p.clearPower()
		}
	} else if res.Give == nil {
		g.endTurnAfterElimination(p)
	}
	return res, nil
}

// endTurnAfterElimination advances past the eliminator when the rules make a
// completed elimination consume the turn. Only an eliminator holding the
// turn with nothing left to resolve passes it on.
func (g *Game) endTurnAfterElimination(p *Player) {
	if !g.Rules.EliminationEndsTurn || g.CurrentPlayer() != p {
		return
	}
	if p.DrawnCard != nil || p.ActivePower != RankNone {
		return
	}
	g.AdvanceTurn()
}

// CompleteGive moves one of the eliminator's cards into the slot vacated by
// their elimination. targetSlot may be negative; otherwise it must name the
// vacated slot.
func (g *Game) CompleteGive(playerID uuid.UUID, selectedSlot, targetSlot int) (TransferResult, error) {
	pg := g.PendingCardGiving
	if pg == nil || pg.EliminatorID != playerID {
		return TransferResult{}, ErrNoPendingGive
	}
	if targetSlot >= 0 && targetSlot != pg.TargetSlot {
		return TransferResult{}, fmt.Errorf("give into slot %d, vacated %d: %w", targetSlot, pg.TargetSlot, ErrInvalidTarget)
	}
	from, _, err := g.player(playerID)
	if err != nil {
		return TransferResult{}, err
	}
	if selectedSlot < 0 || selectedSlot >= len(from.Hand) {
		return TransferResult{}, fmt.Errorf("give slot %d of %d: %w", selectedSlot, len(from.Hand), ErrSlotOutOfRange)
	}
	c := from.Hand[selectedSlot].Card
	if c == nil {
		return TransferResult{}, fmt.Errorf("give slot %d: %w", selectedSlot, ErrEmptySlot)
	}
	to, _, err := g.player(pg.TargetPlayerID)
	if err != nil {
		return TransferResult{}, err
	}

	from.Hand[selectedSlot] = Slot{}
	g.forgetSlot(CardRef{PlayerID: from.ID, Index: selectedSlot})
	c.Position = pg.TargetSlot
	to.Hand[pg.TargetSlot] = Slot{Card: c}
	g.PendingCardGiving = nil

	g.record(ActionEliminationTransfer, playerID, "", withCard(c.ID), withTarget(to.ID, pg.TargetSlot))
	g.endTurnAfterElimination(from)
	return TransferResult{
		FromPlayerID: from.ID,
		FromIndex:    selectedSlot,
		ToPlayerID:   to.ID,
		ToIndex:      pg.TargetSlot,
		Card:         c,
	}, nil
}

// AutoGive completes a pending give on the eliminator's behalf with their
// first non-empty slot.
func (g *Game) AutoGive(playerID uuid.UUID) (TransferResult, error) {
	pg := g.PendingCardGiving
	if pg == nil || pg.EliminatorID != playerID {
		return TransferResult{}, ErrNoPendingGive
	}
	from, _, err := g.player(playerID)
	if err != nil {
		return TransferResult{}, err
	}
	for i, s := range from.Hand {
		if !s.Empty() {
			return g.CompleteGive(playerID, i, -1)
		}
	}
	// Unreachable while Eliminate only records gives for non-empty hands.
	g.PendingCardGiving = nil
	return TransferResult{}, ErrEmptySlot
}

// drawPenalty deals one face-down card to the player's first empty slot,
// appending a slot when the hand is full. The deck is reshuffled first if
// needed; with nothing left to draw no penalty is given.
func (g *Game) drawPenalty(p *Player) (*Card, int) {
	if len(g.Deck) == 0 {
		g.attemptReshuffle()
	}
	if len(g.Deck) == 0 {
		return nil, -1
	}
	c := g.popDeck()
	c.IsRevealed = false

	slot := -1
	for i, s := range p.Hand {
		if s.Empty() {
			slot = i
			break
		}
	}
	if slot < 0 {
		p.Hand = append(p.Hand, Slot{})
		slot = len(p.Hand) - 1
	}
	c.Position = slot
	p.Hand[slot] = Slot{Card: c}
	return c, slot
}
