package engine

import "errors"

// Rule violations. The room drops actions failing with any of these.
var (
	ErrGameNotPlaying    = errors.New("game is not in progress")
	ErrGameInProgress    = errors.New("game already in progress")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrAlreadyDrawn      = errors.New("a drawn card is already held")
	ErrNoDrawnCard       = errors.New("no drawn card to resolve")
	ErrCardNotFound      = errors.New("card not found")
	ErrEmptySlot         = errors.New("slot is empty")
	ErrSlotOutOfRange    = errors.New("slot index out of range")
	ErrPowerPending      = errors.New("a power must be used or skipped first")
	ErrNoPower           = errors.New("no matching power available")
	ErrPowerNotActive    = errors.New("power has not been activated")
	ErrWrongPower        = errors.New("action does not match the active power")
	ErrInvalidTarget     = errors.New("invalid power target")
	ErrKingSwapPending   = errors.New("a king swap is already scheduled")
	ErrEmptyDiscard      = errors.New("discard pile is empty")
	ErrAlreadyEliminated = errors.New("already eliminated this round")
	ErrEliminationLocked = errors.New("an elimination already succeeded this round")
	ErrGivePending       = errors.New("an elimination give-back is pending")
	ErrNoPendingGive     = errors.New("no pending give-back for this player")
	ErrNotHost           = errors.New("only the host can start the game")
	ErrNotEnoughPlayers  = errors.New("need at least 2 players")
	ErrRoomFull          = errors.New("room is full")
	ErrDeckExhausted     = errors.New("deck and discard pile are exhausted")
	ErrNoPendingKingSwap = errors.New("no king swap scheduled")
)
