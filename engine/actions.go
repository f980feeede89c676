package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// DiscardOutcome reports what a discard triggered.
type DiscardOutcome struct {
	Card *Card
	// SkippedPlayer is set when a J flagged the next player.
	SkippedPlayer uuid.UUID
	// PowerOffered is the rank whose power now awaits activate or skip.
	PowerOffered Rank
}

// Draw pops the top of the deck into the current player's drawn card,
// reshuffling the discard pile (minus its top) when the deck is empty.
func (g *Game) Draw(playerID uuid.UUID) (*Card, error) {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return nil, err
	}
	if p.DrawnCard != nil {
		return nil, ErrAlreadyDrawn
	}
	if p.ActivePower != RankNone {
		return nil, ErrPowerPending
	}
	if len(g.Deck) == 0 {
		g.attemptReshuffle()
	}
	if len(g.Deck) == 0 {
		return nil, ErrDeckExhausted
	}

	c := g.popDeck()
	c.IsRevealed = true
	p.DrawnCard = c
	p.learn(c.ID)

	g.record(ActionDraw, playerID, "", withCard(c.ID))
	return c, nil
}

// drawnFor returns the current player and their drawn card.
func (g *Game) drawnFor(playerID uuid.UUID) (*Player, *Card, error) {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return nil, nil, err
	}
	if p.DrawnCard == nil {
		return nil, nil, ErrNoDrawnCard
	}
	return p, p.DrawnCard, nil
}

// SwapWithHand puts the drawn card into slot and discards the card it
// replaces. The turn advances.
func (g *Game) SwapWithHand(playerID uuid.UUID, slot int) (*Card, error) {
	p, drawn, err := g.drawnFor(playerID)
	if err != nil {
		return nil, err
	}
	if slot < 0 || slot >= len(p.Hand) {
		return nil, fmt.Errorf("swap slot %d of %d: %w", slot, len(p.Hand), ErrSlotOutOfRange)
	}
	old := p.Hand[slot].Card
	if old == nil {
		return nil, fmt.Errorf("swap slot %d: %w", slot, ErrEmptySlot)
	}

	g.pushDiscard(old)
	drawn.IsRevealed = false
	drawn.Position = old.Position
	p.Hand[slot] = Slot{Card: drawn}
	p.DrawnCard = nil

	g.clearEliminationFlags()
	g.record(ActionSwap, playerID, "", withCard(old.ID), withTarget(playerID, slot))
	g.AdvanceTurn()
	return old, nil
}

// SwapWithHandCard is SwapWithHand addressed by the id of the hand card.
func (g *Game) SwapWithHandCard(playerID, handCardID uuid.UUID) (*Card, int, error) {
	p, _, err := g.drawnFor(playerID)
	if err != nil {
		return nil, -1, err
	}
	slot := p.FindCard(handCardID)
	if slot < 0 {
		return nil, -1, fmt.Errorf("hand card %s: %w", handCardID, ErrCardNotFound)
	}
	old, err := g.SwapWithHand(playerID, slot)
	return old, slot, err
}

// DiscardDrawn moves the drawn card to the discard pile. cardID may be
// uuid.Nil; otherwise it must name the drawn card.
//
// A J flags the next player to be skipped. 7, 8, 9, 10, Q and K offer their
// power and leave the turn with the discarder. Anything else ends the turn.
func (g *Game) DiscardDrawn(playerID, cardID uuid.UUID) (DiscardOutcome, error) {
	p, drawn, err := g.drawnFor(playerID)
	if err != nil {
		return DiscardOutcome{}, err
	}
	if cardID != uuid.Nil && cardID != drawn.ID {
		return DiscardOutcome{}, fmt.Errorf("discard %s: %w", cardID, ErrCardNotFound)
	}

	g.pushDiscard(drawn)
	p.DrawnCard = nil
	g.clearEliminationFlags()
	g.record(ActionDiscard, playerID, "", withCard(drawn.ID))

	out := DiscardOutcome{Card: drawn}
	if drawn.Rank == RankJack {
		next := g.Players[g.NextPlayerIndex(g.CurrentPlayerIndex)]
		next.SkippedTurn = true
		out.SkippedPlayer = next.ID
	}
	if drawn.Rank.HasPower() {
		p.ActivePower = drawn.Rank
		p.PendingPowerActivation = drawn.Rank
		p.UsingPower = false
		p.PowerSelection = nil
		out.PowerOffered = drawn.Rank
		return out, nil
	}
	g.AdvanceTurn()
	return out, nil
}
