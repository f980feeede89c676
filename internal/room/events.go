package room

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
)

// EventType names an outbound message.
type EventType string

const (
	EventJoined                  EventType = "joined"
	EventError                   EventType = "error"
	EventGameStateUpdate         EventType = "game-state-update"
	EventInitialCards            EventType = "initial-cards"
	EventCardDrawn               EventType = "card-drawn"
	EventPowerPeekResult         EventType = "power-peek-result"
	EventKingPowerReveal         EventType = "king-power-reveal"
	EventPowerSwapCompleted      EventType = "power-swap-completed"
	EventEliminationCardTransfer EventType = "elimination-card-transfer"
	EventPenaltyCard             EventType = "penalty-card"
	EventGameEnded               EventType = "game-ended"
)

// Event is one message to a client. Payload is one of the *Payload types
// below or a StateView.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

type JoinedPayload struct {
	RoomID   string    `json:"roomId"`
	PlayerID uuid.UUID `json:"playerId"`
	Token    string    `json:"token,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Cards are copied so the payload can be encoded off the room goroutine.
type HandCardView struct {
	Index int         `json:"index"`
	Card  engine.Card `json:"card"`
}

type InitialCardsPayload struct {
	Cards []HandCardView `json:"cards"`
}

type CardDrawnPayload struct {
	Card engine.Card `json:"card"`
}

type PeekPayload struct {
	Card         engine.Card `json:"card"`
	TargetPlayer uuid.UUID   `json:"targetPlayer"`
	CardIndex    int         `json:"cardIndex"`
}

// RevealedCard is a hand card shown room-wide.
type RevealedCard struct {
	PlayerID  uuid.UUID   `json:"playerId"`
	CardIndex int         `json:"cardIndex"`
	Card      engine.Card `json:"card"`
}

type KingRevealPayload struct {
	PlayerID uuid.UUID    `json:"playerId"`
	Card1    RevealedCard `json:"card1"`
	Card2    RevealedCard `json:"card2"`
	DelayMs  int64        `json:"delayMs"`
}

// SwapSlot names one side of a swap and the card that started there,
// without its face.
type SwapSlot struct {
	PlayerID  uuid.UUID `json:"playerId"`
	CardIndex int       `json:"cardIndex"`
	CardID    uuid.UUID `json:"cardId"`
}

type SwapCompletedPayload struct {
	PlayerID uuid.UUID   `json:"playerId"`
	Power    engine.Rank `json:"power"`
	Card1    SwapSlot    `json:"card1"`
	Card2    SwapSlot    `json:"card2"`
	// Swapped is false when a K swap fizzled because a card moved during the
	// reveal.
	Swapped bool `json:"swapped"`
}

type TransferPayload struct {
	FromPlayerID uuid.UUID `json:"fromPlayerId"`
	FromIndex    int       `json:"fromIndex"`
	ToPlayerID   uuid.UUID `json:"toPlayerId"`
	ToIndex      int       `json:"toIndex"`
	CardID       uuid.UUID `json:"cardId"`
}

type PenaltyCard struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
}

type PenaltyPayload struct {
	PlayerID    uuid.UUID   `json:"playerId"`
	PenaltyCard PenaltyCard `json:"penaltyCard"`
}

type GameEndedPayload struct {
	Declarer           uuid.UUID         `json:"declarer"`
	Winners            []uuid.UUID       `json:"winners"`
	IsValidDeclaration bool              `json:"isValidDeclaration"`
	DeclaredRanks      []engine.Rank     `json:"declaredRanks"`
	Scores             map[uuid.UUID]int `json:"scores"`
	RoundNumber        int               `json:"roundNumber"`
}

func revealed(ref engine.CardRef, c *engine.Card) RevealedCard {
	rc := RevealedCard{PlayerID: ref.PlayerID, CardIndex: ref.Index}
	if c != nil {
		rc.Card = *c
	}
	return rc
}

func handCards(cards []engine.HandCard) []HandCardView {
	out := make([]HandCardView, len(cards))
	for i, hc := range cards {
		out[i] = HandCardView{Index: hc.Index, Card: *hc.Card}
	}
	return out
}

func swapSlot(ref engine.CardRef, c *engine.Card) SwapSlot {
	s := SwapSlot{PlayerID: ref.PlayerID, CardIndex: ref.Index}
	if c != nil {
		s.CardID = c.ID
	}
	return s
}
