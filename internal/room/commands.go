package room

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
)

// Command is one inbound player action. The set is closed: only this
// package can add implementations, and Room.apply switches over all of them.
type Command interface{ isCommand() }

type JoinRoom struct {
	PlayerName string
	// Token reclaims an existing seat after a reconnect.
	Token string
}

type LeaveRoom struct{ PlayerID uuid.UUID }

type StartGame struct{}

type DrawCard struct{}

type DiscardDrawnCard struct{ CardID uuid.UUID }

// SwapDrawnCard replaces a hand card with the drawn card. HandCardID wins
// over HandIndex when both are set.
type SwapDrawnCard struct {
	HandCardID uuid.UUID
	HandIndex  *int
}

type EliminateCard struct{ TargetCardID uuid.UUID }

type SelectCardToGive struct{ CardIndex int }

type CompleteEliminationCardGive struct {
	SelectedCardIndex int
	TargetCardIndex   int
}

type Declare struct{ DeclaredRanks []engine.Rank }

type UsePowerOnOwnCard struct{ CardIndex int }

type UsePowerOnOpponentCard struct {
	TargetPlayerID uuid.UUID
	CardIndex      int
}

type UsePowerSwap struct {
	Card1 engine.CardRef
	Card2 engine.CardRef
}

// SelectPowerCard toggles a single Q/K selection.
type SelectPowerCard struct{ Card engine.CardRef }

type ActivatePower struct{ PowerType string }

type SkipPower struct{ PowerType string }

func (JoinRoom) isCommand()                    {}
func (LeaveRoom) isCommand()                   {}
func (StartGame) isCommand()                   {}
func (DrawCard) isCommand()                    {}
func (DiscardDrawnCard) isCommand()            {}
func (SwapDrawnCard) isCommand()               {}
func (EliminateCard) isCommand()               {}
func (SelectCardToGive) isCommand()            {}
func (CompleteEliminationCardGive) isCommand() {}
func (Declare) isCommand()                     {}
func (UsePowerOnOwnCard) isCommand()           {}
func (UsePowerOnOpponentCard) isCommand()      {}
func (UsePowerSwap) isCommand()                {}
func (SelectPowerCard) isCommand()             {}
func (ActivatePower) isCommand()               {}
func (SkipPower) isCommand()                   {}
