package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var testClock = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// newTestGame seats the named players (the first is host) and deals.
// Turn order follows seating, so players[0] moves first.
func newTestGame(t *testing.T, seed uint64, rules Rules, names ...string) (*Game, []uuid.UUID) {
	t.Helper()
	if len(names) == 0 {
		names = []string{"Alice", "Bob"}
	}
	g := NewGame(seed, rules)
	g.SetClock(func() time.Time { return testClock })
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		ids[i] = uuid.New()
		if _, err := g.AddPlayer(ids[i], name); err != nil {
			t.Fatalf("AddPlayer(%s): %v", name, err)
		}
	}
	if err := g.StartRound(ids[0]); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	return g, ids
}

// cardSlot points at the container cell holding a card.
func cardSlot(g *Game, suit Suit, rank Rank) **Card {
	for i, c := range g.Deck {
		if c.Suit == suit && c.Rank == rank {
			return &g.Deck[i]
		}
	}
	for i, c := range g.DiscardPile {
		if c.Suit == suit && c.Rank == rank {
			return &g.DiscardPile[i]
		}
	}
	for _, p := range g.Players {
		for i := range p.Hand {
			if c := p.Hand[i].Card; c != nil && c.Suit == suit && c.Rank == rank {
				return &p.Hand[i].Card
			}
		}
	}
	return nil
}

// rigHand exchanges whatever sits in a hand slot with the named card,
// wherever it is. The card count is unchanged.
func rigHand(t *testing.T, g *Game, player, slot int, suit Suit, rank Rank) *Card {
	t.Helper()
	src := cardSlot(g, suit, rank)
	if src == nil {
		t.Fatalf("card %s of %s not in play", rank, suit)
	}
	dst := &g.Players[player].Hand[slot].Card
	if *dst == nil {
		t.Fatalf("player %d slot %d is empty", player, slot)
	}
	srcPos, srcRevealed := (*src).Position, (*src).IsRevealed
	*src, *dst = *dst, *src
	(*src).Position, (*src).IsRevealed = srcPos, srcRevealed
	(*dst).Position, (*dst).IsRevealed = slot, false
	return *dst
}

// rigDeckTop moves the named card to the top of the deck by exchanging it
// with the current top.
func rigDeckTop(t *testing.T, g *Game, suit Suit, rank Rank) *Card {
	t.Helper()
	if len(g.Deck) == 0 {
		t.Fatalf("deck is empty")
	}
	src := cardSlot(g, suit, rank)
	if src == nil {
		t.Fatalf("card %s of %s not in play", rank, suit)
	}
	top := &g.Deck[len(g.Deck)-1]
	if src != top {
		srcPos, srcRevealed := (*src).Position, (*src).IsRevealed
		*src, *top = *top, *src
		(*src).Position, (*src).IsRevealed = srcPos, srcRevealed
		(*top).IsRevealed = false
	}
	return *top
}

// drawAndDiscard has the current player draw the named card and discard it.
func drawAndDiscard(t *testing.T, g *Game, suit Suit, rank Rank) DiscardOutcome {
	t.Helper()
	rigDeckTop(t, g, suit, rank)
	cur := g.CurrentPlayer().ID
	if _, err := g.Draw(cur); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	out, err := g.DiscardDrawn(cur, uuid.Nil)
	if err != nil {
		t.Fatalf("DiscardDrawn: %v", err)
	}
	return out
}

func assertConserved(t *testing.T, g *Game) {
	t.Helper()
	if n := g.CardCount(); n != DeckSize {
		t.Fatalf("card count = %d, want %d", n, DeckSize)
	}
	seen := make(map[uuid.UUID]bool, DeckSize)
	check := func(c *Card) {
		if seen[c.ID] {
			t.Fatalf("card %s (%s) held twice", c.ID, c)
		}
		seen[c.ID] = true
	}
	for _, c := range g.Deck {
		check(c)
	}
	for _, c := range g.DiscardPile {
		check(c)
	}
	for _, p := range g.Players {
		for _, s := range p.Hand {
			if !s.Empty() {
				check(s.Card)
			}
		}
		if p.DrawnCard != nil {
			check(p.DrawnCard)
		}
	}
}
