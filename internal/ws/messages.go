package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
	"github.com/jason-s-yu/declare/internal/room"
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing field")
)

// clientMessage is the flat inbound envelope. Only the fields of the named
// type are read.
type clientMessage struct {
	Type string `json:"type"`

	PlayerName string `json:"playerName"`
	Token      string `json:"token"`
	PlayerID   string `json:"playerId"`

	CardID         string `json:"cardId"`
	HandCardID     string `json:"handCardId"`
	TargetCardID   string `json:"targetCardId"`
	TargetPlayerID string `json:"targetPlayerId"`

	CardIndex         *int `json:"cardIndex"`
	SelectedCardIndex *int `json:"selectedCardIndex"`
	TargetCardIndex   *int `json:"targetCardIndex"`

	Card1PlayerID string `json:"card1PlayerId"`
	Card1Index    *int   `json:"card1Index"`
	Card2PlayerID string `json:"card2PlayerId"`
	Card2Index    *int   `json:"card2Index"`

	DeclaredRanks []engine.Rank `json:"declaredRanks"`
	PowerType     string        `json:"powerType"`
}

// Decode turns one inbound frame into a room command.
func Decode(data []byte) (room.Command, error) {
	var m clientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch m.Type {
	case "join-room":
		return room.JoinRoom{PlayerName: m.PlayerName, Token: m.Token}, nil
	case "leave-room":
		id, err := optionalID(m.PlayerID, "playerId")
		return room.LeaveRoom{PlayerID: id}, err
	case "start-game":
		return room.StartGame{}, nil
	case "draw-card":
		return room.DrawCard{}, nil
	case "discard-drawn-card":
		id, err := optionalID(m.CardID, "cardId")
		return room.DiscardDrawnCard{CardID: id}, err
	case "swap-drawn-card", "replace-with-drawn":
		id, err := optionalID(m.HandCardID, "handCardId")
		if err != nil {
			return nil, err
		}
		if id == uuid.Nil && m.CardIndex == nil {
			return nil, fmt.Errorf("%w: handCardId or cardIndex", ErrMissingField)
		}
		return room.SwapDrawnCard{HandCardID: id, HandIndex: m.CardIndex}, nil
	case "eliminate-card":
		id, err := requiredID(m.TargetCardID, "targetCardId")
		return room.EliminateCard{TargetCardID: id}, err
	case "select-card-to-give":
		idx, err := requiredIndex(m.CardIndex, "cardIndex")
		return room.SelectCardToGive{CardIndex: idx}, err
	case "complete-elimination-card-give":
		sel, err := requiredIndex(m.SelectedCardIndex, "selectedCardIndex")
		if err != nil {
			return nil, err
		}
		target := -1
		if m.TargetCardIndex != nil {
			target = *m.TargetCardIndex
		}
		return room.CompleteEliminationCardGive{SelectedCardIndex: sel, TargetCardIndex: target}, nil
	case "declare":
		for _, r := range m.DeclaredRanks {
			if r < engine.RankAce || r > engine.RankKing {
				return nil, fmt.Errorf("declare: invalid rank %d", r)
			}
		}
		return room.Declare{DeclaredRanks: m.DeclaredRanks}, nil
	case "use-power-on-own-card":
		idx, err := requiredIndex(m.CardIndex, "cardIndex")
		return room.UsePowerOnOwnCard{CardIndex: idx}, err
	case "use-power-on-opponent-card":
		target, err := requiredID(m.TargetPlayerID, "targetPlayerId")
		if err != nil {
			return nil, err
		}
		idx, err := requiredIndex(m.CardIndex, "cardIndex")
		return room.UsePowerOnOpponentCard{TargetPlayerID: target, CardIndex: idx}, err
	case "use-power-swap":
		c1, err := cardRef(m.Card1PlayerID, m.Card1Index, "card1")
		if err != nil {
			return nil, err
		}
		c2, err := cardRef(m.Card2PlayerID, m.Card2Index, "card2")
		if err != nil {
			return nil, err
		}
		return room.UsePowerSwap{Card1: c1, Card2: c2}, nil
	case "select-power-card":
		ref, err := cardRef(m.PlayerID, m.CardIndex, "")
		return room.SelectPowerCard{Card: ref}, err
	case "activate-power":
		return room.ActivatePower{PowerType: m.PowerType}, nil
	case "skip-power":
		return room.SkipPower{PowerType: m.PowerType}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, m.Type)
	}
}

func optionalID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", field, err)
	}
	return id, nil
}

func requiredID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return optionalID(s, field)
}

func requiredIndex(p *int, field string) (int, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return *p, nil
}

// cardRef reads a {prefix}PlayerId / {prefix}Index pair.
func cardRef(player string, index *int, prefix string) (engine.CardRef, error) {
	pf, xf := "playerId", "cardIndex"
	if prefix != "" {
		pf, xf = prefix+"PlayerId", prefix+"Index"
	}
	id, err := requiredID(player, pf)
	if err != nil {
		return engine.CardRef{}, err
	}
	idx, err := requiredIndex(index, xf)
	if err != nil {
		return engine.CardRef{}, err
	}
	return engine.CardRef{PlayerID: id, Index: idx}, nil
}
