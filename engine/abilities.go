package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// SelectionOutcome reports the effect of one Q/K card selection.
type SelectionOutcome struct {
	Selection []CardRef
	// Swapped is set once a Q swap has been applied.
	Swapped bool
	// KingSwap is set once a K selection is complete and revealed. The swap
	// itself waits for ExecuteKingSwap.
	KingSwap *KingSwap
	Card1    *Card
	Card2    *Card
}

// KingSwapResult reports a delayed K swap.
type KingSwapResult struct {
	Swap    KingSwap
	Swapped bool // false when either card left its slot during the reveal
	Card1   *Card
	Card2   *Card
}

// PeekResult is a privately revealed card.
type PeekResult struct {
	TargetPlayerID uuid.UUID
	Index          int
	Card           *Card
}

// powerHolder returns the current player if they hold a power matching rank.
// RankNone matches any held power.
func (g *Game) powerHolder(playerID uuid.UUID, rank Rank) (*Player, error) {
	p, err := g.requireTurn(playerID)
	if err != nil {
		return nil, err
	}
	if p.ActivePower == RankNone {
		return nil, ErrNoPower
	}
	if rank != RankNone && rank != p.ActivePower {
		return nil, fmt.Errorf("power %s requested, %s held: %w", rank, p.ActivePower, ErrNoPower)
	}
	return p, nil
}

// usingPower returns the current player if they activated a power of kind.
func (g *Game) usingPower(playerID uuid.UUID, kind Power) (*Player, error) {
	p, err := g.powerHolder(playerID, RankNone)
	if err != nil {
		return nil, err
	}
	if !p.UsingPower {
		return nil, ErrPowerNotActive
	}
	if p.ActivePower.Power() != kind {
		return nil, fmt.Errorf("%s held, %s requested: %w", p.ActivePower.Power(), kind, ErrWrongPower)
	}
	return p, nil
}

// resolvePower clears the holder's power and ends the turn.
func (g *Game) resolvePower(p *Player) {
	p.clearPower()
	g.AdvanceTurn()
}

// ActivatePower moves an offered power to Using.
func (g *Game) ActivatePower(playerID uuid.UUID, rank Rank) error {
	p, err := g.powerHolder(playerID, rank)
	if err != nil {
		return err
	}
	if p.UsingPower {
		return fmt.Errorf("power %s: already in use", p.ActivePower)
	}
	p.UsingPower = true
	p.PendingPowerActivation = RankNone
	g.record(ActionPowerActivation, playerID, "activate "+p.ActivePower.String())
	return nil
}

// SkipPower forfeits an offered or activated power and ends the turn. A K
// whose cards were already revealed can no longer be skipped.
func (g *Game) SkipPower(playerID uuid.UUID, rank Rank) error {
	p, err := g.powerHolder(playerID, rank)
	if err != nil {
		return err
	}
	if g.PendingKingSwap != nil {
		return ErrKingSwapPending
	}
	g.record(ActionPowerActivation, playerID, "skip "+p.ActivePower.String())
	g.resolvePower(p)
	return nil
}

// slotCard resolves a hand reference to its non-empty slot.
func (g *Game) slotCard(ref CardRef) (*Player, *Card, error) {
	owner, _, err := g.player(ref.PlayerID)
	if err != nil {
		return nil, nil, err
	}
	if ref.Index < 0 || ref.Index >= len(owner.Hand) {
		return nil, nil, fmt.Errorf("slot %d of %d: %w", ref.Index, len(owner.Hand), ErrSlotOutOfRange)
	}
	c := owner.Hand[ref.Index].Card
	if c == nil {
		return nil, nil, fmt.Errorf("slot %d: %w", ref.Index, ErrEmptySlot)
	}
	return owner, c, nil
}

// UsePowerOnOwnCard resolves a 7/8 peek at one of the holder's own slots.
func (g *Game) UsePowerOnOwnCard(playerID uuid.UUID, index int) (PeekResult, error) {
	p, err := g.usingPower(playerID, PowerPeekOwn)
	if err != nil {
		return PeekResult{}, err
	}
	_, c, err := g.slotCard(CardRef{PlayerID: playerID, Index: index})
	if err != nil {
		return PeekResult{}, err
	}
	p.learn(c.ID)
	g.record(ActionView, playerID, "", withCard(c.ID), withTarget(playerID, index))
	g.resolvePower(p)
	return PeekResult{TargetPlayerID: playerID, Index: index, Card: c}, nil
}

// UsePowerOnOpponentCard resolves a 9/10 peek at another player's slot.
func (g *Game) UsePowerOnOpponentCard(playerID, targetID uuid.UUID, index int) (PeekResult, error) {
	p, err := g.usingPower(playerID, PowerPeekOpponent)
	if err != nil {
		return PeekResult{}, err
	}
	if targetID == playerID {
		return PeekResult{}, fmt.Errorf("peek opponent on self: %w", ErrInvalidTarget)
	}
	_, c, err := g.slotCard(CardRef{PlayerID: targetID, Index: index})
	if err != nil {
		return PeekResult{}, err
	}
	p.learn(c.ID)
	g.record(ActionView, playerID, "", withCard(c.ID), withTarget(targetID, index))
	g.resolvePower(p)
	return PeekResult{TargetPlayerID: targetID, Index: index, Card: c}, nil
}

// swapPower returns the holder of an activated Q or K.
func (g *Game) swapPower(playerID uuid.UUID) (*Player, error) {
	p, err := g.powerHolder(playerID, RankNone)
	if err != nil {
		return nil, err
	}
	if !p.UsingPower {
		return nil, ErrPowerNotActive
	}
	kind := p.ActivePower.Power()
	if kind != PowerUnseenSwap && kind != PowerSeenSwap {
		return nil, fmt.Errorf("%s held: %w", kind, ErrWrongPower)
	}
	if g.PendingKingSwap != nil {
		return nil, ErrKingSwapPending
	}
	return p, nil
}

// SelectPowerCard toggles one Q/K selection. Selecting an already selected
// slot removes it. The second distinct selection applies a Q swap at once,
// or reveals and schedules a K swap.
func (g *Game) SelectPowerCard(playerID uuid.UUID, ref CardRef) (SelectionOutcome, error) {
	p, err := g.swapPower(playerID)
	if err != nil {
		return SelectionOutcome{}, err
	}
	if _, _, err := g.slotCard(ref); err != nil {
		return SelectionOutcome{}, err
	}
	g.pruneSelection(p)

	for i, sel := range p.PowerSelection {
		if sel == ref {
			p.PowerSelection = append(p.PowerSelection[:i:i], p.PowerSelection[i+1:]...)
			return SelectionOutcome{Selection: append([]CardRef(nil), p.PowerSelection...)}, nil
		}
	}
	p.PowerSelection = append(p.PowerSelection, ref)
	if len(p.PowerSelection) < 2 {
		return SelectionOutcome{Selection: append([]CardRef(nil), p.PowerSelection...)}, nil
	}
	return g.completeSelection(p)
}

// UsePowerSwap submits both Q/K selections at once, replacing any partial
// selection.
func (g *Game) UsePowerSwap(playerID uuid.UUID, first, second CardRef) (SelectionOutcome, error) {
	p, err := g.swapPower(playerID)
	if err != nil {
		return SelectionOutcome{}, err
	}
	if first == second {
		return SelectionOutcome{}, fmt.Errorf("swap a slot with itself: %w", ErrInvalidTarget)
	}
	for _, ref := range []CardRef{first, second} {
		if _, _, err := g.slotCard(ref); err != nil {
			return SelectionOutcome{}, err
		}
	}
	p.PowerSelection = []CardRef{first, second}
	return g.completeSelection(p)
}

// forgetSlot drops every Q/K selection of the slot at ref once its card has
// left it.
func (g *Game) forgetSlot(ref CardRef) {
	for _, p := range g.Players {
		kept := p.PowerSelection[:0]
		for _, sel := range p.PowerSelection {
			if sel != ref {
				kept = append(kept, sel)
			}
		}
		p.PowerSelection = kept
	}
}

// pruneSelection drops selections whose slot no longer holds a card.
func (g *Game) pruneSelection(p *Player) {
	kept := p.PowerSelection[:0]
	for _, sel := range p.PowerSelection {
		if _, _, err := g.slotCard(sel); err == nil {
			kept = append(kept, sel)
		}
	}
	p.PowerSelection = kept
}

// completeSelection applies a full Q/K selection. Stale selections are
// dropped first; if fewer than two remain the shrunken selection is
// returned and nothing moves.
func (g *Game) completeSelection(p *Player) (SelectionOutcome, error) {
	g.pruneSelection(p)
	if len(p.PowerSelection) < 2 {
		return SelectionOutcome{Selection: append([]CardRef(nil), p.PowerSelection...)}, nil
	}
	ref1, ref2 := p.PowerSelection[0], p.PowerSelection[1]
	_, c1, _ := g.slotCard(ref1)
	_, c2, _ := g.slotCard(ref2)
	out := SelectionOutcome{
		Selection: []CardRef{ref1, ref2},
		Card1:     c1,
		Card2:     c2,
	}

	if p.ActivePower.Power() == PowerUnseenSwap {
		g.swapSlots(ref1, ref2)
		g.record(ActionPowerActivation, p.ID, "unseen swap", withCard(c1.ID), withTarget(ref2.PlayerID, ref2.Index))
		g.resolvePower(p)
		out.Swapped = true
		return out, nil
	}

	g.kingSeq++
	ks := &KingSwap{
		Seq:      g.kingSeq,
		PlayerID: p.ID,
		Card1:    ref1,
		Card2:    ref2,
		Card1ID:  c1.ID,
		Card2ID:  c2.ID,
	}
	g.PendingKingSwap = ks
	for _, pl := range g.Players {
		pl.learn(c1.ID)
		pl.learn(c2.ID)
	}
	g.record(ActionPowerActivation, p.ID, "seen swap reveal", withCard(c1.ID), withTarget(ref2.PlayerID, ref2.Index))
	cp := *ks
	out.KingSwap = &cp
	return out, nil
}

// ExecuteKingSwap applies the scheduled K swap identified by seq. If either
// card left its slot during the reveal the swap fizzles, but the power is
// still spent and the turn still ends.
func (g *Game) ExecuteKingSwap(seq uint64) (KingSwapResult, error) {
	ks := g.PendingKingSwap
	if ks == nil || ks.Seq != seq {
		return KingSwapResult{}, ErrNoPendingKingSwap
	}
	if g.Status != StatusPlaying {
		g.PendingKingSwap = nil
		return KingSwapResult{}, ErrGameNotPlaying
	}
	g.PendingKingSwap = nil

	res := KingSwapResult{Swap: *ks}
	_, c1, err1 := g.slotCard(ks.Card1)
	_, c2, err2 := g.slotCard(ks.Card2)
	if err1 == nil && err2 == nil && c1.ID == ks.Card1ID && c2.ID == ks.Card2ID {
		g.swapSlots(ks.Card1, ks.Card2)
		res.Swapped = true
		res.Card1 = c1
		res.Card2 = c2
		g.record(ActionPowerActivation, ks.PlayerID, "seen swap", withCard(c1.ID), withTarget(ks.Card2.PlayerID, ks.Card2.Index))
	} else {
		g.record(ActionPowerActivation, ks.PlayerID, "seen swap fizzled")
	}

	if p, _, err := g.player(ks.PlayerID); err == nil {
		if g.CurrentPlayer() == p {
			g.resolvePower(p)
		} else {
			p.clearPower()
		}
	}
	return res, nil
}

// swapSlots exchanges two hand cards. Each card takes the position of the
// slot it lands in.
func (g *Game) swapSlots(a, b CardRef) {
	pa, _, _ := g.player(a.PlayerID)
	pb, _, _ := g.player(b.PlayerID)
	ca := pa.Hand[a.Index].Card
	cb := pb.Hand[b.Index].Card
	pa.Hand[a.Index].Card = cb
	pb.Hand[b.Index].Card = ca
	cb.Position = a.Index
	ca.Position = b.Index
}
