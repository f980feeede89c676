package room

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
)

// CardView is a card as one observer may see it. Face fields are set only
// when Known is true.
type CardView struct {
	ID         uuid.UUID `json:"id"`
	Known      bool      `json:"known"`
	Rank       string    `json:"rank,omitempty"`
	Suit       string    `json:"suit,omitempty"`
	Value      *int      `json:"value,omitempty"`
	IsRevealed bool      `json:"isRevealed"`
	Position   int       `json:"position"`
}

// SlotView is one hand position. Card is nil for an empty slot.
type SlotView struct {
	Index int       `json:"index"`
	Card  *CardView `json:"card"`
}

type PlayerView struct {
	ID                     uuid.UUID  `json:"id"`
	Name                   string     `json:"name"`
	IsHost                 bool       `json:"isHost"`
	Connected              bool       `json:"connected"`
	IsCurrentTurn          bool       `json:"isCurrentTurn"`
	Hand                   []SlotView `json:"hand"`
	HandSize               int        `json:"handSize"`
	Score                  int        `json:"score"`
	SkippedTurn            bool       `json:"skippedTurn"`
	HasEliminatedThisRound bool       `json:"hasEliminatedThisRound"`
	ActivePower            string     `json:"activePower,omitempty"`
	UsingPower             bool       `json:"usingPower"`
	PendingPowerActivation string     `json:"pendingPowerActivation,omitempty"`
	HasDrawnCard           bool       `json:"hasDrawnCard"`

	// Populated for the observer only.
	DrawnCard      *CardView        `json:"drawnCard,omitempty"`
	PowerSelection []engine.CardRef `json:"powerSelection,omitempty"`
}

// StateView is the game as seen by one observer.
type StateView struct {
	RoomID                   string              `json:"roomId"`
	Version                  uint64              `json:"version"`
	Self                     uuid.UUID           `json:"self"`
	Status                   engine.Status       `json:"status"`
	RoundNumber              int                 `json:"roundNumber"`
	CurrentPlayerID          uuid.UUID           `json:"currentPlayerId"`
	DeckCount                int                 `json:"deckCount"`
	DiscardPile              []CardView          `json:"discardPile"`
	Players                  []PlayerView        `json:"players"`
	Declarer                 *uuid.UUID          `json:"declarer,omitempty"`
	LastAction               *engine.GameAction  `json:"lastAction,omitempty"`
	EliminationUsedThisRound bool                `json:"eliminationUsedThisRound"`
	PendingCardGiving        *engine.PendingGive `json:"pendingCardGiving,omitempty"`
	PendingKingSwap          *engine.KingSwap    `json:"pendingKingSwap,omitempty"`
	Rules                    engine.Rules        `json:"rules"`
}

// viewCard shows the face of c when it is revealed or the viewer knows it.
func viewCard(c *engine.Card, viewer *engine.Player) CardView {
	v := CardView{ID: c.ID, IsRevealed: c.IsRevealed, Position: c.Position}
	if c.IsRevealed || (viewer != nil && viewer.Knows(c.ID)) {
		value := c.Value
		v.Known = true
		v.Rank = c.Rank.String()
		v.Suit = c.Suit.String()
		v.Value = &value
	}
	return v
}

func powerName(r engine.Rank) string {
	if r == engine.RankNone {
		return ""
	}
	return r.String()
}

// snapshot builds the game state for one observer. It runs on the room
// goroutine only.
func snapshot(roomID string, version uint64, g *engine.Game, observer uuid.UUID) StateView {
	viewer, _ := g.Player(observer)
	s := StateView{
		RoomID:                   roomID,
		Version:                  version,
		Self:                     observer,
		Status:                   g.Status,
		RoundNumber:              g.RoundNumber,
		DeckCount:                len(g.Deck),
		DiscardPile:              make([]CardView, len(g.DiscardPile)),
		Players:                  make([]PlayerView, len(g.Players)),
		EliminationUsedThisRound: g.EliminationUsedThisRound,
		Rules:                    g.Rules,
	}
	if g.LastAction != nil {
		a := *g.LastAction
		s.LastAction = &a
	}
	if g.PendingCardGiving != nil {
		pg := *g.PendingCardGiving
		s.PendingCardGiving = &pg
	}
	if g.PendingKingSwap != nil {
		ks := *g.PendingKingSwap
		s.PendingKingSwap = &ks
	}
	current := g.CurrentPlayer()
	if g.Status == engine.StatusPlaying && current != nil {
		s.CurrentPlayerID = current.ID
	}
	if g.Declarer != uuid.Nil {
		d := g.Declarer
		s.Declarer = &d
	}
	for i, c := range g.DiscardPile {
		s.DiscardPile[i] = viewCard(c, viewer)
	}

	for i, p := range g.Players {
		pv := PlayerView{
			ID:                     p.ID,
			Name:                   p.Name,
			IsHost:                 p.IsHost,
			Connected:              p.Connected,
			IsCurrentTurn:          s.CurrentPlayerID == p.ID,
			Hand:                   make([]SlotView, len(p.Hand)),
			HandSize:               p.CardsInHand(),
			Score:                  p.Score,
			SkippedTurn:            p.SkippedTurn,
			HasEliminatedThisRound: p.HasEliminatedThisRound,
			ActivePower:            powerName(p.ActivePower),
			UsingPower:             p.UsingPower,
			PendingPowerActivation: powerName(p.PendingPowerActivation),
			HasDrawnCard:           p.DrawnCard != nil,
		}
		for j, slot := range p.Hand {
			pv.Hand[j] = SlotView{Index: j}
			if !slot.Empty() {
				cv := viewCard(slot.Card, viewer)
				pv.Hand[j].Card = &cv
			}
		}
		if p.ID == observer {
			if p.DrawnCard != nil {
				cv := viewCard(p.DrawnCard, p)
				pv.DrawnCard = &cv
			}
			if len(p.PowerSelection) > 0 {
				pv.PowerSelection = append([]engine.CardRef(nil), p.PowerSelection...)
			}
		}
		s.Players[i] = pv
	}
	return s
}
