package engine

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestDrawOnlyCurrentPlayer(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	if _, err := g.Draw(ids[1]); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("Bob drew out of turn: %v", err)
	}
	c, err := g.Draw(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsRevealed || g.Players[0].DrawnCard != c {
		t.Errorf("drawn card not held face up")
	}
	if _, err := g.Draw(ids[0]); !errors.Is(err, ErrAlreadyDrawn) {
		t.Errorf("second draw: %v", err)
	}
	if len(g.Deck) != 43 {
		t.Errorf("deck %d, want 43", len(g.Deck))
	}
	assertConserved(t, g)
}

// TestDrawReshuffles: an empty deck is refilled from all but the discard top.
func TestDrawReshuffles(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	for len(g.Deck) > 0 {
		g.pushDiscard(g.popDeck())
	}
	top := g.DiscardTop()
	c, err := g.Draw(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if c == top {
		t.Errorf("drew the kept discard top")
	}
	if len(g.DiscardPile) != 1 || g.DiscardTop() != top {
		t.Errorf("discard top should remain alone")
	}
	if len(g.Deck) != 42 {
		t.Errorf("deck %d, want 42", len(g.Deck))
	}
	assertConserved(t, g)
}

func TestDrawExhausted(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	for len(g.Deck) > 1 {
		g.pushDiscard(g.popDeck())
	}
	// Leave a single discard so nothing can be drawn.
	g.DiscardPile = g.DiscardPile[len(g.DiscardPile)-1:]
	g.Deck = nil
	if _, err := g.Draw(ids[0]); !errors.Is(err, ErrDeckExhausted) {
		t.Fatalf("got %v, want ErrDeckExhausted", err)
	}
	if g.Players[0].DrawnCard != nil || g.CurrentPlayer().ID != ids[0] {
		t.Errorf("exhausted draw must not change state")
	}
}

func TestSwapWithHand(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	if _, err := g.SwapWithHand(ids[0], 0); !errors.Is(err, ErrNoDrawnCard) {
		t.Fatalf("swap without draw: %v", err)
	}
	old := g.Players[0].Hand[0].Card
	drawn, err := g.Draw(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	g.Players[1].HasEliminatedThisRound = true

	got, err := g.SwapWithHand(ids[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != old || g.DiscardTop() != old || !old.IsRevealed {
		t.Errorf("replaced card should sit face up on the discard pile")
	}
	slot := g.Players[0].Hand[0]
	if slot.Card != drawn || drawn.Position != 0 || drawn.IsRevealed {
		t.Errorf("drawn card should take slot 0 face down")
	}
	if !g.Players[0].Knows(drawn.ID) {
		t.Errorf("holder should know the swapped-in card")
	}
	if g.Players[1].HasEliminatedThisRound {
		t.Errorf("swap should clear elimination flags")
	}
	if g.CurrentPlayer().ID != ids[1] {
		t.Errorf("turn should pass to Bob")
	}
	assertConserved(t, g)
}

func TestSwapWithHandCard(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	target := g.Players[0].Hand[2].Card
	if _, err := g.Draw(ids[0]); err != nil {
		t.Fatal(err)
	}
	if _, _, err := g.SwapWithHandCard(ids[0], uuid.New()); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("unknown hand card: %v", err)
	}
	old, slot, err := g.SwapWithHandCard(ids[0], target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old != target || slot != 2 {
		t.Errorf("swapped %v at %d", old, slot)
	}
}

func TestSwapEmptySlot(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	g.pushDiscard(g.Players[0].Hand[1].Card)
	g.Players[0].Hand[1] = Slot{}
	if _, err := g.Draw(ids[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := g.SwapWithHand(ids[0], 1); !errors.Is(err, ErrEmptySlot) {
		t.Errorf("swap into empty slot: %v", err)
	}
	if _, err := g.SwapWithHand(ids[0], 9); !errors.Is(err, ErrSlotOutOfRange) {
		t.Errorf("swap out of range: %v", err)
	}
}

func TestDiscardPlain(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	out := drawAndDiscard(t, g, SuitClubs, RankFour)
	if out.PowerOffered != RankNone || out.SkippedPlayer != uuid.Nil {
		t.Errorf("a 4 triggers nothing: %+v", out)
	}
	if g.DiscardTop() != out.Card || g.CurrentPlayer().ID != ids[1] {
		t.Errorf("discard should land on the pile and pass the turn")
	}
	assertConserved(t, g)
}

func TestDiscardWrongCardID(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	if _, err := g.Draw(ids[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := g.DiscardDrawn(ids[0], uuid.New()); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("discard with a foreign id: %v", err)
	}
}

// TestDiscardJackSkips: with three players a J skips the second.
func TestDiscardJackSkips(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules(), "A", "B", "C")
	out := drawAndDiscard(t, g, SuitHearts, RankJack)
	if out.SkippedPlayer != ids[1] {
		t.Fatalf("skipped %s, want B", out.SkippedPlayer)
	}
	if g.CurrentPlayer().ID != ids[2] {
		t.Errorf("turn should jump to C")
	}
	if g.Players[1].SkippedTurn {
		t.Errorf("skip flag should be consumed")
	}
}

// TestDiscardJackTwoPlayers returns the turn to the discarder.
func TestDiscardJackTwoPlayers(t *testing.T) {
	g, ids := newTestGame(t, 1, DefaultRules())
	drawAndDiscard(t, g, SuitSpades, RankJack)
	if g.CurrentPlayer().ID != ids[0] {
		t.Errorf("Alice should play again")
	}
}

func TestDiscardPowerHoldsTurn(t *testing.T) {
	for _, rank := range []Rank{RankSeven, RankEight, RankNine, RankTen, RankQueen, RankKing} {
		t.Run(rank.String(), func(t *testing.T) {
			g, ids := newTestGame(t, 1, DefaultRules())
			out := drawAndDiscard(t, g, SuitDiamonds, rank)
			if out.PowerOffered != rank {
				t.Fatalf("power %s not offered", rank)
			}
			p := g.Players[0]
			if p.ActivePower != rank || p.PendingPowerActivation != rank || p.UsingPower {
				t.Errorf("power should be Offered: %+v", p)
			}
			if g.CurrentPlayer().ID != ids[0] {
				t.Errorf("turn must stay with the discarder")
			}
			if _, err := g.Draw(ids[0]); !errors.Is(err, ErrPowerPending) {
				t.Errorf("draw with power pending: %v", err)
			}
		})
	}
}
