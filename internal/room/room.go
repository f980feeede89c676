// Package room runs one game room as a single goroutine that owns the
// engine state. Everything that touches the game, including timers, goes
// through the room's inbox so actions are applied one at a time in arrival
// order.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
	"github.com/jason-s-yu/declare/internal/auth"
	"github.com/jason-s-yu/declare/internal/history"
	"github.com/jason-s-yu/declare/internal/store"
	"github.com/sirupsen/logrus"
)

// Msg is anything the room goroutine processes.
type Msg interface{ isRoomMsg() }

// Attach registers a connection. The room owns Outbox from here on and
// closes it when the connection is dropped or the room shuts down.
type Attach struct {
	ConnID uuid.UUID
	Outbox chan<- Event
}

// Detach unregisters a connection, e.g. after its socket closed.
type Detach struct{ ConnID uuid.UUID }

type FromClient struct {
	ConnID uuid.UUID
	Cmd    Command
}

type GetSummary struct{ Reply chan<- Summary }

type Shutdown struct{}

// Scheduled messages. Only the room's own timers send these.
type kingSwapDue struct{ seq uint64 }
type turnTimeout struct{ turn uint64 }

func (Attach) isRoomMsg()      {}
func (Detach) isRoomMsg()      {}
func (FromClient) isRoomMsg()  {}
func (GetSummary) isRoomMsg()  {}
func (Shutdown) isRoomMsg()    {}
func (kingSwapDue) isRoomMsg() {}
func (turnTimeout) isRoomMsg() {}

// Summary is a read-only view for the registry and the HTTP API.
type Summary struct {
	ID          string        `json:"id"`
	Status      engine.Status `json:"status"`
	RoundNumber int           `json:"roundNumber"`
	Players     []string      `json:"players"`
	Connected   int           `json:"connected"`
	Conns       int           `json:"conns"`
	MaxPlayers  int           `json:"maxPlayers"`
	Version     uint64        `json:"version"`
	// EmptySince is zero while any player is connected.
	EmptySince time.Time `json:"emptySince"`
}

type ActionPublisher interface {
	Publish(ctx context.Context, rec history.Record) error
}

type ResultRecorder interface {
	RecordRound(ctx context.Context, r store.RoundResult) error
}

type SeatTokens interface {
	Issue(roomID string, playerID uuid.UUID) (string, error)
	Verify(token string) (auth.Claims, error)
}

// Config wires a room. Only ID is required.
type Config struct {
	ID    string
	Seed  uint64
	Rules engine.Rules
	Log   logrus.FieldLogger

	History ActionPublisher
	Results ResultRecorder
	Tokens  SeatTokens

	InboxSize int
	Now       func() time.Time
}

type conn struct {
	id     uuid.UUID
	player uuid.UUID // Nil until join-room succeeds
	out    chan<- Event
}

type Room struct {
	id    string
	inbox chan Msg
	done  chan struct{}
	ctx   context.Context
	stop  context.CancelFunc
	bg    sync.WaitGroup

	log     logrus.FieldLogger
	history ActionPublisher
	pubq    chan history.Record // nil without a publisher
	results ResultRecorder
	tokens  SeatTokens
	now     func() time.Time

	// Owned by the loop goroutine.
	game        *engine.Game
	conns       map[uuid.UUID]*conn
	version     uint64
	actionIndex int
	turnID      uint64
	turnTimer   *time.Timer
	kingTimer   *time.Timer
	emptySince  time.Time
	dropped     []uuid.UUID
}

// New starts a room goroutine. It stops when parent is cancelled or a
// Shutdown message is processed.
func New(parent context.Context, cfg Config) *Room {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}
	ctx, cancel := context.WithCancel(parent)
	g := engine.NewGame(cfg.Seed, cfg.Rules)
	g.SetClock(cfg.Now)

	r := &Room{
		id:         cfg.ID,
		inbox:      make(chan Msg, cfg.InboxSize),
		done:       make(chan struct{}),
		ctx:        ctx,
		stop:       cancel,
		log:        cfg.Log.WithField("room", cfg.ID),
		history:    cfg.History,
		results:    cfg.Results,
		tokens:     cfg.Tokens,
		now:        cfg.Now,
		game:       g,
		conns:      make(map[uuid.UUID]*conn),
		emptySince: cfg.Now(),
	}
	if r.history != nil {
		r.pubq = make(chan history.Record, publishQueueSize)
		r.bg.Add(1)
		go r.publishLoop()
	}
	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the loop has exited and every outbox is closed.
func (r *Room) Done() <-chan struct{} { return r.done }

// Send delivers m unless ctx ends or the room has stopped first.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

var ErrClosed = errors.New("room closed")

// Summary asks the loop for a snapshot of the room's bookkeeping.
func (r *Room) Summary(ctx context.Context) (Summary, error) {
	reply := make(chan Summary, 1)
	if err := r.Send(ctx, GetSummary{Reply: reply}); err != nil {
		return Summary{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return Summary{}, ErrClosed
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

// Wait blocks until the loop and its background publishers are finished.
func (r *Room) Wait() {
	<-r.done
	r.bg.Wait()
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return
		case m := <-r.inbox:
			if _, ok := m.(Shutdown); ok {
				r.shutdown()
				return
			}
			r.handle(m)
		}
	}
}

// handle processes one message. A panic is logged and the room keeps going.
func (r *Room) handle(m Msg) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("panic", p).Errorf("recovered while handling %T", m)
		}
	}()

	switch msg := m.(type) {
	case Attach:
		r.conns[msg.ConnID] = &conn{id: msg.ConnID, out: msg.Outbox}
		r.log.WithField("conn", msg.ConnID).Debug("connection attached")
	case Detach:
		r.detach(msg.ConnID)
	case FromClient:
		r.dispatch(msg.ConnID, msg.Cmd)
	case GetSummary:
		msg.Reply <- r.summary()
	case kingSwapDue:
		r.onKingSwapDue(msg.seq)
	case turnTimeout:
		r.onTurnTimeout(msg.turn)
	default:
		r.log.Warnf("unknown message %T", m)
	}
	r.flushDropped()
}

func (r *Room) shutdown() {
	r.stop()
	if r.turnTimer != nil {
		r.turnTimer.Stop()
	}
	if r.kingTimer != nil {
		r.kingTimer.Stop()
	}
	for id, c := range r.conns {
		close(c.out)
		delete(r.conns, id)
	}
	if r.pubq != nil {
		close(r.pubq)
	}
	r.log.Info("room closed")
}

func (r *Room) summary() Summary {
	s := Summary{
		ID:          r.id,
		Status:      r.game.Status,
		RoundNumber: r.game.RoundNumber,
		Connected:   r.game.ConnectedCount(),
		Conns:       len(r.conns),
		MaxPlayers:  r.game.Rules.MaxPlayers,
		Version:     r.version,
		EmptySince:  r.emptySince,
	}
	for _, p := range r.game.Players {
		s.Players = append(s.Players, p.Name)
	}
	return s
}

// ----------------------------------------------------------------------------
// connections

func (r *Room) detach(id uuid.UUID) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	close(c.out)
	delete(r.conns, id)
	r.log.WithField("conn", id).Debug("connection detached")
	if c.player != uuid.Nil {
		r.unseat(c.player, "player_disconnect")
	}
}

// unseat marks a player inactive once their last connection is gone.
func (r *Room) unseat(player uuid.UUID, action string) {
	for _, other := range r.conns {
		if other.player == player {
			return
		}
	}
	if err := r.game.SetConnected(player, false); err != nil {
		return
	}
	r.logAction(player, action, nil)
	r.afterMembershipChange()
	r.commit()
}

func (r *Room) afterMembershipChange() {
	if host, changed := r.game.ReassignHost(); changed {
		r.log.WithField("host", host).Info("host reassigned")
		r.logAction(host, "host_reassigned", nil)
	}
	if r.game.ConnectedCount() == 0 {
		if r.emptySince.IsZero() {
			r.emptySince = r.now()
		}
	} else {
		r.emptySince = time.Time{}
	}
}

// ----------------------------------------------------------------------------
// outbound

// deliver queues ev for one connection and drops the connection if its
// outbox is full.
func (r *Room) deliver(c *conn, ev Event) {
	select {
	case c.out <- ev:
	default:
		r.log.WithField("conn", c.id).Warn("outbox full, dropping connection")
		close(c.out)
		delete(r.conns, c.id)
		if c.player != uuid.Nil {
			r.dropped = append(r.dropped, c.player)
		}
	}
}

// flushDropped unseats players whose connections were dropped mid-broadcast.
func (r *Room) flushDropped() {
	for len(r.dropped) > 0 {
		p := r.dropped[0]
		r.dropped = r.dropped[1:]
		r.unseat(p, "player_dropped")
	}
}

func (r *Room) broadcast(ev Event) {
	for _, c := range r.conns {
		if c.player != uuid.Nil {
			r.deliver(c, ev)
		}
	}
}

func (r *Room) sendTo(player uuid.UUID, ev Event) {
	for _, c := range r.conns {
		if c.player == player {
			r.deliver(c, ev)
		}
	}
}

func (r *Room) broadcastState() {
	for _, c := range r.conns {
		if c.player != uuid.Nil {
			r.deliver(c, Event{Type: EventGameStateUpdate, Payload: snapshot(r.id, r.version, r.game, c.player)})
		}
	}
}

// commit finishes an accepted change: inactive players are played past, the
// version moves, everyone gets a fresh snapshot and the turn clock restarts.
func (r *Room) commit() {
	r.settle()
	r.version++
	r.broadcastState()
	r.resetTurnTimer()
}

// settle resolves turns and gives owed by players who are no longer
// connected.
func (r *Room) settle() {
	for range len(r.game.Players) + 1 {
		if r.game.Status != engine.StatusPlaying {
			return
		}
		if pg := r.game.PendingCardGiving; pg != nil {
			if p, ok := r.game.Player(pg.EliminatorID); ok && !p.Connected {
				tr, err := r.game.AutoGive(p.ID)
				if err != nil {
					return
				}
				r.announceTransfer(tr)
				continue
			}
		}
		cur := r.game.CurrentPlayer()
		if cur == nil || cur.Connected {
			return
		}
		res, err := r.game.ForfeitTurn(cur.ID)
		if err != nil {
			return
		}
		r.announceForfeit(cur.ID, res)
		if !res.Advanced && res.Give == nil {
			return
		}
	}
}

func (r *Room) announceForfeit(player uuid.UUID, res engine.ForfeitResult) {
	if res.Give != nil {
		r.announceTransfer(*res.Give)
	}
	payload := map[string]any{"advanced": res.Advanced}
	if res.Discarded != nil {
		payload["discarded"] = res.Discarded.ID
	}
	if res.Skipped != engine.RankNone {
		payload["skippedPower"] = res.Skipped.String()
	}
	r.logAction(player, "turn_forfeit", payload)
}

func (r *Room) announceTransfer(tr engine.TransferResult) {
	r.broadcast(Event{Type: EventEliminationCardTransfer, Payload: TransferPayload{
		FromPlayerID: tr.FromPlayerID,
		FromIndex:    tr.FromIndex,
		ToPlayerID:   tr.ToPlayerID,
		ToIndex:      tr.ToIndex,
		CardID:       tr.Card.ID,
	}})
	r.logAction(tr.FromPlayerID, "elimination_give", map[string]any{
		"to": tr.ToPlayerID, "fromIndex": tr.FromIndex, "toIndex": tr.ToIndex, "cardId": tr.Card.ID,
	})
}

// ----------------------------------------------------------------------------
// timers

// after enqueues m once d has elapsed. The callback never touches room state.
func (r *Room) after(d time.Duration, m Msg) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case r.inbox <- m:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) resetTurnTimer() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	r.turnID++
	timeout := r.game.Rules.TurnTimeout
	if timeout <= 0 || r.game.Status != engine.StatusPlaying {
		return
	}
	r.turnTimer = r.after(timeout, turnTimeout{turn: r.turnID})
}

func (r *Room) onTurnTimeout(turn uint64) {
	if turn != r.turnID || r.game.Status != engine.StatusPlaying {
		return
	}
	if pg := r.game.PendingCardGiving; pg != nil {
		tr, err := r.game.AutoGive(pg.EliminatorID)
		if err != nil {
			return
		}
		r.announceTransfer(tr)
		r.commit()
		return
	}
	cur := r.game.CurrentPlayer()
	res, err := r.game.ForfeitTurn(cur.ID)
	if err != nil {
		r.log.WithError(err).Debug("turn timeout ignored")
		return
	}
	r.log.WithField("player", cur.ID).Info("turn timed out")
	r.announceForfeit(cur.ID, res)
	r.commit()
}

func (r *Room) scheduleKingSwap(ks *engine.KingSwap) {
	if r.kingTimer != nil {
		r.kingTimer.Stop()
	}
	r.kingTimer = r.after(r.game.Rules.KingRevealDelay, kingSwapDue{seq: ks.Seq})
}

func (r *Room) onKingSwapDue(seq uint64) {
	res, err := r.game.ExecuteKingSwap(seq)
	if err != nil {
		r.log.WithError(err).Debug("stale king swap")
		return
	}
	r.broadcast(Event{Type: EventPowerSwapCompleted, Payload: SwapCompletedPayload{
		PlayerID: res.Swap.PlayerID,
		Power:    engine.RankKing,
		Card1:    swapSlot(res.Swap.Card1, res.Card1),
		Card2:    swapSlot(res.Swap.Card2, res.Card2),
		Swapped:  res.Swapped,
	}})
	r.logAction(res.Swap.PlayerID, "power_king_swap", map[string]any{"swapped": res.Swapped})
	r.commit()
}

// ----------------------------------------------------------------------------
// history

const publishQueueSize = 256

// logAction queues an action record for publishing without blocking the
// loop. Records are published one at a time in action order.
func (r *Room) logAction(actor uuid.UUID, actionType string, payload map[string]any) {
	r.actionIndex++
	if r.pubq == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	rec := history.Record{
		RoomID:      r.id,
		Round:       r.game.RoundNumber,
		ActionIndex: r.actionIndex,
		ActorID:     actor,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   r.now().UnixMilli(),
	}
	select {
	case r.pubq <- rec:
	default:
		r.log.WithField("action", actionType).Warn("history queue full, dropping action record")
	}
}

func (r *Room) publishLoop() {
	defer r.bg.Done()
	for rec := range r.pubq {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.history.Publish(ctx, rec); err != nil {
			r.log.WithError(err).WithField("action", rec.ActionType).Warn("publish action failed")
		}
		cancel()
	}
}

func (r *Room) recordResult(res engine.Result) {
	if r.results == nil {
		return
	}
	rr := store.RoundResult{
		RoomID:   r.id,
		Round:    r.game.RoundNumber,
		Declarer: res.Declarer,
		Valid:    res.Valid,
		Winners:  append([]uuid.UUID(nil), res.Winners...),
		Scores:   make(map[uuid.UUID]int, len(res.Scores)),
		EndedAt:  r.now(),
	}
	for id, s := range res.Scores {
		rr.Scores[id] = s
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.results.RecordRound(ctx, rr); err != nil {
			r.log.WithError(err).Warn("archive round failed")
		}
	}()
}
