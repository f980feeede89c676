package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Suit identifies one of the four French suits.
type Suit uint8

const (
	SuitHearts Suit = iota
	SuitDiamonds
	SuitClubs
	SuitSpades
)

var suitNames = [...]string{"hearts", "diamonds", "clubs", "spades"}

// Suits lists every suit in deck-construction order.
var Suits = [...]Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

func (s Suit) String() string {
	if int(s) < len(suitNames) {
		return suitNames[s]
	}
	return fmt.Sprintf("suit(%d)", uint8(s))
}

// IsRed reports whether the suit is hearts or diamonds.
func (s Suit) IsRed() bool { return s == SuitHearts || s == SuitDiamonds }

func (s Suit) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Suit) UnmarshalText(b []byte) error {
	for i, name := range suitNames {
		if strings.EqualFold(string(b), name) {
			*s = Suit(i)
			return nil
		}
	}
	return fmt.Errorf("unknown suit %q", b)
}

// Rank is a card rank. RankNone (0) marks the absence of a rank, e.g. no
// active power.
type Rank uint8

const (
	RankNone Rank = iota
	RankAce
	RankTwo
	RankThree
	RankFour
	RankFive
	RankSix
	RankSeven
	RankEight
	RankNine
	RankTen
	RankJack
	RankQueen
	RankKing
)

var rankNames = [...]string{"", "A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

func (r Rank) String() string {
	if int(r) < len(rankNames) {
		return rankNames[r]
	}
	return fmt.Sprintf("rank(%d)", uint8(r))
}

// ParseRank accepts "A", "2".."10", "J", "Q", "K" (case-insensitive).
func ParseRank(s string) (Rank, error) {
	s = strings.TrimSpace(s)
	for i := 1; i < len(rankNames); i++ {
		if strings.EqualFold(s, rankNames[i]) {
			return Rank(i), nil
		}
	}
	return RankNone, fmt.Errorf("unknown rank %q", s)
}

func (r Rank) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Rank) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = RankNone
		return nil
	}
	parsed, err := ParseRank(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Power describes the one-shot ability granted by discarding a rank.
type Power uint8

const (
	PowerNone         Power = iota
	PowerPeekOwn            // 7, 8
	PowerPeekOpponent       // 9, 10
	PowerUnseenSwap         // Q
	PowerSeenSwap           // K
)

func (p Power) String() string {
	switch p {
	case PowerPeekOwn:
		return "peek-own"
	case PowerPeekOpponent:
		return "peek-opponent"
	case PowerUnseenSwap:
		return "unseen-swap"
	case PowerSeenSwap:
		return "seen-swap"
	default:
		return "none"
	}
}

// Power returns the ability a discarded card of this rank grants.
// J skips the next player but is not a power.
func (r Rank) Power() Power {
	switch r {
	case RankSeven, RankEight:
		return PowerPeekOwn
	case RankNine, RankTen:
		return PowerPeekOpponent
	case RankQueen:
		return PowerUnseenSwap
	case RankKing:
		return PowerSeenSwap
	default:
		return PowerNone
	}
}

// HasPower reports whether discarding this rank offers a power.
func (r Rank) HasPower() bool { return r.Power() != PowerNone }

// Card is a single playing card. Only IsRevealed and Position change after
// creation.
type Card struct {
	ID         uuid.UUID `json:"id"`
	Suit       Suit      `json:"suit"`
	Rank       Rank      `json:"rank"`
	Value      int       `json:"value"`
	IsRevealed bool      `json:"isRevealed"`
	Position   int       `json:"position"`
}

// NewCard constructs a face-down card with its point value filled in.
func NewCard(id uuid.UUID, suit Suit, rank Rank) *Card {
	return &Card{ID: id, Suit: suit, Rank: rank, Value: CardValue(suit, rank)}
}

// CardValue returns the point value of a suit and rank.
//   - A → 1
//   - 2..10 → face value
//   - J → 11, Q → 12
//   - K: red (hearts/diamonds) → 0, black (clubs/spades) → 13
func CardValue(suit Suit, rank Rank) int {
	switch {
	case rank >= RankAce && rank <= RankTen:
		return int(rank)
	case rank == RankJack:
		return 11
	case rank == RankQueen:
		return 12
	case rank == RankKing:
		if suit.IsRed() {
			return 0
		}
		return 13
	}
	return 0
}

func (c *Card) String() string {
	if c == nil {
		return "<empty>"
	}
	return c.Rank.String() + " of " + c.Suit.String()
}

// Slot is one stable position in a hand. An empty slot keeps its index so
// that declare order and elimination give-backs line up.
type Slot struct {
	Card *Card `json:"card"`
}

// Empty reports whether the slot holds no card.
func (s Slot) Empty() bool { return s.Card == nil }

// CardRef addresses a hand slot by owner and index.
type CardRef struct {
	PlayerID uuid.UUID `json:"playerId"`
	Index    int       `json:"cardIndex"`
}
