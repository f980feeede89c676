package room

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
	"github.com/sirupsen/logrus"
)

var errAlreadyJoined = errors.New("connection already joined")

// dispatch applies one client command. Rejected commands change nothing and
// are only reported back for join and start-game.
func (r *Room) dispatch(connID uuid.UUID, cmd Command) {
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	var err error
	if join, ok := cmd.(JoinRoom); ok {
		err = r.join(c, join)
	} else {
		if c.player == uuid.Nil {
			r.log.WithField("conn", connID).Debugf("%T before join-room", cmd)
			return
		}
		err = r.apply(c.player, cmd)
	}
	if err != nil {
		r.reject(c, cmd, err)
		return
	}
	r.commit()
}

func (r *Room) reject(c *conn, cmd Command, err error) {
	r.log.WithFields(logrus.Fields{
		"player":  c.player,
		"command": fmt.Sprintf("%T", cmd),
	}).WithError(err).Debug("command rejected")

	switch cmd.(type) {
	case JoinRoom, StartGame:
		if !errors.Is(err, errAlreadyJoined) {
			r.deliver(c, Event{Type: EventError, Payload: ErrorPayload{Message: err.Error()}})
		}
	}
}

// apply routes a command from a seated player. Every Command type has a case.
func (r *Room) apply(actor uuid.UUID, cmd Command) error {
	switch cmd := cmd.(type) {
	case JoinRoom:
		return errAlreadyJoined
	case LeaveRoom:
		return r.leave(actor, cmd)
	case StartGame:
		return r.startGame(actor)
	case DrawCard:
		return r.drawCard(actor)
	case DiscardDrawnCard:
		return r.discardDrawn(actor, cmd)
	case SwapDrawnCard:
		return r.swapDrawn(actor, cmd)
	case EliminateCard:
		return r.eliminate(actor, cmd)
	case SelectCardToGive:
		return r.give(actor, cmd.CardIndex, -1)
	case CompleteEliminationCardGive:
		return r.give(actor, cmd.SelectedCardIndex, cmd.TargetCardIndex)
	case Declare:
		return r.declare(actor, cmd)
	case UsePowerOnOwnCard:
		return r.peekOwn(actor, cmd)
	case UsePowerOnOpponentCard:
		return r.peekOpponent(actor, cmd)
	case UsePowerSwap:
		out, err := r.game.UsePowerSwap(actor, cmd.Card1, cmd.Card2)
		if err != nil {
			return err
		}
		r.announceSelection(actor, out)
		return nil
	case SelectPowerCard:
		out, err := r.game.SelectPowerCard(actor, cmd.Card)
		if err != nil {
			return err
		}
		r.announceSelection(actor, out)
		return nil
	case ActivatePower:
		rank, err := r.powerRank(actor, cmd.PowerType)
		if err != nil {
			return err
		}
		if err := r.game.ActivatePower(actor, rank); err != nil {
			return err
		}
		r.logAction(actor, "power_activate", map[string]any{"power": r.heldPower(actor)})
		return nil
	case SkipPower:
		rank, err := r.powerRank(actor, cmd.PowerType)
		if err != nil {
			return err
		}
		held := r.heldPower(actor)
		if err := r.game.SkipPower(actor, rank); err != nil {
			return err
		}
		r.logAction(actor, "power_skip", map[string]any{"power": held})
		return nil
	default:
		return fmt.Errorf("unhandled command %T", cmd)
	}
}

// ----------------------------------------------------------------------------
// membership

func (r *Room) join(c *conn, cmd JoinRoom) error {
	if c.player != uuid.Nil {
		return errAlreadyJoined
	}
	if p, ok := r.reclaim(cmd.Token); ok {
		c.player = p.ID
		_ = r.game.SetConnected(p.ID, true)
		r.afterMembershipChange()
		r.deliver(c, Event{Type: EventJoined, Payload: JoinedPayload{RoomID: r.id, PlayerID: p.ID, Token: cmd.Token}})
		r.logAction(p.ID, "player_reconnect", nil)
		r.log.WithField("player", p.ID).Info("player reconnected")
		return nil
	}

	name := strings.TrimSpace(cmd.PlayerName)
	if name == "" {
		name = fmt.Sprintf("Player %d", len(r.game.Players)+1)
	}
	id := uuid.New()
	if _, err := r.game.AddPlayer(id, name); err != nil {
		return err
	}
	c.player = id
	var token string
	if r.tokens != nil {
		t, err := r.tokens.Issue(r.id, id)
		if err != nil {
			r.log.WithError(err).Warn("issue seat token")
		}
		token = t
	}
	r.afterMembershipChange()
	r.deliver(c, Event{Type: EventJoined, Payload: JoinedPayload{RoomID: r.id, PlayerID: id, Token: token}})
	r.logAction(id, "player_join", map[string]any{"name": name})
	r.log.WithFields(logrus.Fields{"player": id, "name": name}).Info("player joined")
	return nil
}

// reclaim resolves a seat token to a player of this room.
func (r *Room) reclaim(token string) (*engine.Player, bool) {
	if token == "" || r.tokens == nil {
		return nil, false
	}
	claims, err := r.tokens.Verify(token)
	if err != nil || claims.RoomID != r.id {
		return nil, false
	}
	return r.game.Player(claims.PlayerID)
}

func (r *Room) leave(actor uuid.UUID, cmd LeaveRoom) error {
	if cmd.PlayerID != uuid.Nil && cmd.PlayerID != actor {
		return engine.ErrInvalidTarget
	}
	for _, c := range r.conns {
		if c.player == actor {
			c.player = uuid.Nil
		}
	}
	if r.game.Status == engine.StatusPlaying {
		if err := r.game.SetConnected(actor, false); err != nil {
			return err
		}
	} else if err := r.game.RemovePlayer(actor); err != nil {
		return err
	}
	r.afterMembershipChange()
	r.logAction(actor, "player_leave", nil)
	return nil
}

func (r *Room) startGame(actor uuid.UUID) error {
	if err := r.game.StartRound(actor); err != nil {
		return err
	}
	if r.kingTimer != nil {
		r.kingTimer.Stop()
	}
	r.afterMembershipChange()
	for _, p := range r.game.Players {
		r.sendTo(p.ID, Event{Type: EventInitialCards, Payload: InitialCardsPayload{Cards: handCards(r.game.InitialPeek(p.ID))}})
	}
	r.logAction(actor, "round_start", map[string]any{"players": len(r.game.Players), "deck": len(r.game.Deck)})
	r.log.WithField("round", r.game.RoundNumber).Info("round started")
	return nil
}

// ----------------------------------------------------------------------------
// turn cycle

func (r *Room) drawCard(actor uuid.UUID) error {
	card, err := r.game.Draw(actor)
	if err != nil {
		return err
	}
	r.sendTo(actor, Event{Type: EventCardDrawn, Payload: CardDrawnPayload{Card: *card}})
	r.logAction(actor, "draw", map[string]any{"cardId": card.ID, "deck": len(r.game.Deck)})
	return nil
}

func (r *Room) discardDrawn(actor uuid.UUID, cmd DiscardDrawnCard) error {
	out, err := r.game.DiscardDrawn(actor, cmd.CardID)
	if err != nil {
		return err
	}
	payload := map[string]any{"cardId": out.Card.ID, "rank": out.Card.Rank.String()}
	if out.SkippedPlayer != uuid.Nil {
		payload["skipped"] = out.SkippedPlayer
	}
	if out.PowerOffered != engine.RankNone {
		payload["power"] = out.PowerOffered.String()
	}
	r.logAction(actor, "discard", payload)
	return nil
}

func (r *Room) swapDrawn(actor uuid.UUID, cmd SwapDrawnCard) error {
	var (
		old  *engine.Card
		slot int
		err  error
	)
	switch {
	case cmd.HandCardID != uuid.Nil:
		old, slot, err = r.game.SwapWithHandCard(actor, cmd.HandCardID)
	case cmd.HandIndex != nil:
		slot = *cmd.HandIndex
		old, err = r.game.SwapWithHand(actor, slot)
	default:
		return engine.ErrCardNotFound
	}
	if err != nil {
		return err
	}
	r.logAction(actor, "swap", map[string]any{"slot": slot, "discarded": old.ID})
	return nil
}

func (r *Room) eliminate(actor uuid.UUID, cmd EliminateCard) error {
	res, err := r.game.Eliminate(actor, cmd.TargetCardID)
	if err != nil {
		return err
	}
	if !res.Success {
		if res.Penalty != nil {
			r.broadcast(Event{Type: EventPenaltyCard, Payload: PenaltyPayload{
				PlayerID:    actor,
				PenaltyCard: PenaltyCard{ID: res.Penalty.ID, Position: res.PenaltySlot},
			}})
		}
		r.logAction(actor, "elimination_failed", map[string]any{"target": cmd.TargetCardID})
		return nil
	}
	payload := map[string]any{"cardId": res.Card.ID, "owner": res.OwnerID, "slot": res.VacatedSlot}
	if res.ForfeitedPower != engine.RankNone {
		payload["forfeitedPower"] = res.ForfeitedPower.String()
	}
	r.logAction(actor, "elimination", payload)
	if ks := res.CancelledKingSwap; ks != nil {
		r.cancelKingSwap(*ks)
	}
	return nil
}

// cancelKingSwap closes out a revealed K swap that will never execute.
func (r *Room) cancelKingSwap(ks engine.KingSwap) {
	if r.kingTimer != nil {
		r.kingTimer.Stop()
		r.kingTimer = nil
	}
	r.broadcast(Event{Type: EventPowerSwapCompleted, Payload: SwapCompletedPayload{
		PlayerID: ks.PlayerID,
		Power:    engine.RankKing,
		Card1:    swapSlot(ks.Card1, nil),
		Card2:    swapSlot(ks.Card2, nil),
	}})
	r.logAction(ks.PlayerID, "power_king_swap", map[string]any{"swapped": false, "cancelled": true})
}

func (r *Room) give(actor uuid.UUID, selected, target int) error {
	tr, err := r.game.CompleteGive(actor, selected, target)
	if err != nil {
		return err
	}
	r.announceTransfer(tr)
	return nil
}

func (r *Room) declare(actor uuid.UUID, cmd Declare) error {
	res, err := r.game.Declare(actor, cmd.DeclaredRanks)
	if err != nil {
		return err
	}
	if r.kingTimer != nil {
		r.kingTimer.Stop()
	}
	r.broadcast(Event{Type: EventGameEnded, Payload: GameEndedPayload{
		Declarer:           res.Declarer,
		Winners:            res.Winners,
		IsValidDeclaration: res.Valid,
		DeclaredRanks:      res.Declared,
		Scores:             res.Scores,
		RoundNumber:        r.game.RoundNumber,
	}})
	scores := make(map[string]any, len(res.Scores))
	for id, s := range res.Scores {
		scores[id.String()] = s
	}
	r.logAction(actor, "declare", map[string]any{"valid": res.Valid, "winners": res.Winners, "scores": scores})
	r.recordResult(res)
	r.log.WithFields(logrus.Fields{"declarer": actor, "valid": res.Valid}).Info("round ended")
	return nil
}

// ----------------------------------------------------------------------------
// powers

func (r *Room) heldPower(actor uuid.UUID) string {
	if p, ok := r.game.Player(actor); ok {
		return powerName(p.ActivePower)
	}
	return ""
}

// powerRank maps a client power name to a rank. It accepts a rank ("7",
// "K"), a power name ("peek-own") checked against the held power, or "" for
// whatever is held.
func (r *Room) powerRank(actor uuid.UUID, s string) (engine.Rank, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return engine.RankNone, nil
	}
	if rank, err := engine.ParseRank(s); err == nil {
		return rank, nil
	}
	p, ok := r.game.Player(actor)
	if !ok {
		return engine.RankNone, engine.ErrPlayerNotFound
	}
	if p.ActivePower != engine.RankNone && strings.EqualFold(p.ActivePower.Power().String(), s) {
		return p.ActivePower, nil
	}
	return engine.RankNone, engine.ErrWrongPower
}

func (r *Room) peekOwn(actor uuid.UUID, cmd UsePowerOnOwnCard) error {
	res, err := r.game.UsePowerOnOwnCard(actor, cmd.CardIndex)
	if err != nil {
		return err
	}
	r.sendTo(actor, Event{Type: EventPowerPeekResult, Payload: PeekPayload{Card: *res.Card, TargetPlayer: actor, CardIndex: res.Index}})
	r.logAction(actor, "power_peek_own", map[string]any{"slot": res.Index})
	return nil
}

func (r *Room) peekOpponent(actor uuid.UUID, cmd UsePowerOnOpponentCard) error {
	res, err := r.game.UsePowerOnOpponentCard(actor, cmd.TargetPlayerID, cmd.CardIndex)
	if err != nil {
		return err
	}
	r.sendTo(actor, Event{Type: EventPowerPeekResult, Payload: PeekPayload{Card: *res.Card, TargetPlayer: res.TargetPlayerID, CardIndex: res.Index}})
	r.logAction(actor, "power_peek_opponent", map[string]any{"target": res.TargetPlayerID, "slot": res.Index})
	return nil
}

// announceSelection reports the effect of a Q/K selection step.
func (r *Room) announceSelection(actor uuid.UUID, out engine.SelectionOutcome) {
	switch {
	case out.Swapped:
		r.broadcast(Event{Type: EventPowerSwapCompleted, Payload: SwapCompletedPayload{
			PlayerID: actor,
			Power:    engine.RankQueen,
			Card1:    swapSlot(out.Selection[0], out.Card1),
			Card2:    swapSlot(out.Selection[1], out.Card2),
			Swapped:  true,
		}})
		r.logAction(actor, "power_queen_swap", nil)
	case out.KingSwap != nil:
		ks := out.KingSwap
		r.broadcast(Event{Type: EventKingPowerReveal, Payload: KingRevealPayload{
			PlayerID: actor,
			Card1:    revealed(ks.Card1, out.Card1),
			Card2:    revealed(ks.Card2, out.Card2),
			DelayMs:  r.game.Rules.KingRevealDelay.Milliseconds(),
		}})
		r.logAction(actor, "power_king_reveal", map[string]any{"seq": ks.Seq})
		r.scheduleKingSwap(ks)
	}
}
