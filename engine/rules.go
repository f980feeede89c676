package engine

import (
	"fmt"
	"time"
)

// EliminationLock selects how many successful eliminations a round allows.
type EliminationLock string

const (
	// LockPerPlayer lets each player eliminate once per round.
	LockPerPlayer EliminationLock = "per-player"
	// LockGlobal allows a single successful elimination per round across the room.
	LockGlobal EliminationLock = "global"
)

// ParseEliminationLock accepts "per-player" or "global".
func ParseEliminationLock(s string) (EliminationLock, error) {
	switch EliminationLock(s) {
	case LockPerPlayer, LockGlobal:
		return EliminationLock(s), nil
	case "":
		return LockPerPlayer, nil
	}
	return "", fmt.Errorf("unknown elimination lock %q", s)
}

// Rules holds configurable game rule settings. The "round" that bounds
// eliminations ends whenever a card is swapped into a hand or discarded.
type Rules struct {
	MinPlayers int `json:"minPlayers"`
	MaxPlayers int `json:"maxPlayers"`
	HandSize   int `json:"handSize"`

	// InitialPeekCount is how many of their own slots each player sees at deal.
	InitialPeekCount int `json:"initialPeekCount"`

	EliminationLock EliminationLock `json:"eliminationLock"`
	// ForfeitPowerOnElimination discards an unused power when its holder
	// eliminates successfully.
	ForfeitPowerOnElimination bool `json:"forfeitPowerOnElimination"`
	// EliminationEndsTurn advances the turn after a completed give.
	EliminationEndsTurn bool `json:"eliminationEndsTurn"`

	DeclarePenalty int `json:"declarePenalty"`

	// KingRevealDelay is how long both K-selected cards stay revealed before
	// the swap executes.
	KingRevealDelay time.Duration `json:"kingRevealDelay"`
	// TurnTimeout forfeits an idle current player. 0 disables it.
	TurnTimeout time.Duration `json:"turnTimeout"`
}

// DefaultRules returns the standard Declare rules.
func DefaultRules() Rules {
	return Rules{
		MinPlayers:                2,
		MaxPlayers:                8,
		HandSize:                  4,
		InitialPeekCount:          2,
		EliminationLock:           LockPerPlayer,
		ForfeitPowerOnElimination: true,
		EliminationEndsTurn:       false,
		DeclarePenalty:            20,
		KingRevealDelay:           3 * time.Second,
		TurnTimeout:               0,
	}
}

// Validate rejects rule sets the engine cannot play.
func (r Rules) Validate() error {
	if r.MinPlayers < 2 {
		return fmt.Errorf("minPlayers must be at least 2, got %d", r.MinPlayers)
	}
	if r.MaxPlayers < r.MinPlayers {
		return fmt.Errorf("maxPlayers %d below minPlayers %d", r.MaxPlayers, r.MinPlayers)
	}
	if r.HandSize < 1 || r.HandSize*r.MaxPlayers >= DeckSize {
		return fmt.Errorf("handSize %d cannot be dealt to %d players", r.HandSize, r.MaxPlayers)
	}
	if r.InitialPeekCount < 0 || r.InitialPeekCount > r.HandSize {
		return fmt.Errorf("initialPeekCount %d out of range", r.InitialPeekCount)
	}
	if _, err := ParseEliminationLock(string(r.EliminationLock)); err != nil {
		return err
	}
	if r.KingRevealDelay < 0 || r.TurnTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
