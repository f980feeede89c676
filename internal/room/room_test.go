package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
	"github.com/jason-s-yu/declare/internal/auth"
	"github.com/jason-s-yu/declare/internal/history"
	"github.com/jason-s-yu/declare/internal/logging"
	"github.com/jason-s-yu/declare/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeHistory captures published action records.
type fakeHistory struct {
	mu   sync.Mutex
	recs []history.Record
	// slow delays the first records so an unordered publisher would
	// overtake them.
	slow bool
}

func (f *fakeHistory) Publish(_ context.Context, rec history.Record) error {
	if f.slow && rec.ActionIndex <= 3 {
		time.Sleep(time.Duration(4-rec.ActionIndex) * 10 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeHistory) indexes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.recs))
	for i, r := range f.recs {
		out[i] = r.ActionIndex
	}
	return out
}

func (f *fakeHistory) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.recs))
	for i, r := range f.recs {
		out[i] = r.ActionType
	}
	return out
}

type fakeResults struct{ got chan store.RoundResult }

func (f fakeResults) RecordRound(_ context.Context, r store.RoundResult) error {
	f.got <- r
	return nil
}

type testClient struct {
	t      *testing.T
	room   *Room
	conn   uuid.UUID
	out    chan Event
	player uuid.UUID
	token  string
}

func newTestRoom(t *testing.T, cfg Config) *Room {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "R1"
	}
	cfg.Log = logging.Discard()
	r := New(context.Background(), cfg)
	t.Cleanup(func() {
		_ = r.Send(context.Background(), Shutdown{})
		r.Wait()
	})
	return r
}

func attach(t *testing.T, r *Room) *testClient {
	t.Helper()
	c := &testClient{t: t, room: r, conn: uuid.New(), out: make(chan Event, 256)}
	require.NoError(t, r.Send(context.Background(), Attach{ConnID: c.conn, Outbox: c.out}))
	return c
}

// join attaches a connection and seats a player on it.
func join(t *testing.T, r *Room, name string) *testClient {
	t.Helper()
	c := attach(t, r)
	c.send(JoinRoom{PlayerName: name})
	ev := c.recv(EventJoined)
	p := ev.Payload.(JoinedPayload)
	c.player = p.PlayerID
	c.token = p.Token
	return c
}

func (c *testClient) send(cmd Command) {
	c.t.Helper()
	require.NoError(c.t, c.room.Send(context.Background(), FromClient{ConnID: c.conn, Cmd: cmd}))
}

// recv returns the next event of type typ, skipping others.
func (c *testClient) recv(typ EventType) Event {
	c.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev, ok := <-c.out:
			require.True(c.t, ok, "outbox closed while waiting for %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// sync waits for the room to process everything sent so far and returns the
// events queued for this client.
func (c *testClient) sync() []Event {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := c.room.Summary(ctx)
	require.NoError(c.t, err)
	var evs []Event
	for {
		select {
		case ev := <-c.out:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

// state returns the most recent snapshot delivered to this client.
func (c *testClient) state() StateView {
	c.t.Helper()
	var last *StateView
	for _, ev := range c.sync() {
		if ev.Type == EventGameStateUpdate {
			s := ev.Payload.(StateView)
			last = &s
		}
	}
	require.NotNil(c.t, last, "no state update queued")
	return *last
}

func hasType(evs []Event, typ EventType) bool {
	for _, ev := range evs {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func findPlayer(s StateView, id uuid.UUID) PlayerView {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return PlayerView{}
}

func TestStartGameErrors(t *testing.T) {
	r := newTestRoom(t, Config{})
	alice := join(t, r, "Alice")

	alice.send(StartGame{})
	ev := alice.recv(EventError)
	assert.Equal(t, "need at least 2 players", ev.Payload.(ErrorPayload).Message)

	bob := join(t, r, "Bob")
	bob.send(StartGame{})
	ev = bob.recv(EventError)
	assert.Equal(t, "only the host can start the game", ev.Payload.(ErrorPayload).Message)

	alice.send(StartGame{})
	alice.recv(EventInitialCards)
}

// TestScenarioTwoPlayers drives room R1 through the opening moves.
func TestScenarioTwoPlayers(t *testing.T) {
	r := newTestRoom(t, Config{ID: "R1", Seed: 7})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")

	alice.send(StartGame{})
	peek := alice.recv(EventInitialCards).Payload.(InitialCardsPayload)
	require.Len(t, peek.Cards, 2)
	assert.Equal(t, 0, peek.Cards[0].Index)
	assert.Equal(t, 1, peek.Cards[1].Index)

	s := alice.state()
	assert.Equal(t, engine.StatusPlaying, s.Status)
	assert.Equal(t, 44, s.DeckCount)
	assert.Equal(t, alice.player, s.CurrentPlayerID)

	alice.send(DrawCard{})
	drawn := alice.recv(EventCardDrawn).Payload.(CardDrawnPayload)
	assert.NotEqual(t, engine.RankNone, drawn.Card.Rank)
	assert.False(t, hasType(bob.sync(), EventCardDrawn), "drawn card is private")
	assert.Equal(t, 43, alice.state().DeckCount)

	slot := 0
	alice.send(SwapDrawnCard{HandIndex: &slot})
	s = bob.state()
	assert.Len(t, s.DiscardPile, 1)
	assert.Equal(t, bob.player, s.CurrentPlayerID)
	assert.Equal(t, drawn.Card.ID, findPlayer(s, alice.player).Hand[0].Card.ID)
}

func TestSnapshotConcealment(t *testing.T) {
	r := newTestRoom(t, Config{Seed: 3})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(StartGame{})

	s := alice.state()
	mine := findPlayer(s, alice.player)
	for i, slot := range mine.Hand {
		require.NotNil(t, slot.Card)
		assert.Equal(t, i < 2, slot.Card.Known, "own slot %d", i)
		if !slot.Card.Known {
			assert.Empty(t, slot.Card.Rank)
			assert.Nil(t, slot.Card.Value)
		}
	}
	for _, slot := range findPlayer(s, bob.player).Hand {
		assert.False(t, slot.Card.Known, "opponent cards stay hidden")
	}

	alice.send(DrawCard{})
	own := findPlayer(alice.state(), alice.player)
	require.NotNil(t, own.DrawnCard)
	assert.True(t, own.DrawnCard.Known)

	seen := findPlayer(bob.state(), alice.player)
	assert.True(t, seen.HasDrawnCard)
	assert.Nil(t, seen.DrawnCard)
}

func TestCommandsBeforeJoinIgnored(t *testing.T) {
	r := newTestRoom(t, Config{})
	c := attach(t, r)
	c.send(StartGame{})
	c.send(DrawCard{})
	assert.Empty(t, c.sync())
}

// kingOnTop finds a seed whose first draw in a two-player round is a K.
// findSeed returns the first seed whose two-player deal satisfies ok.
func findSeed(t *testing.T, rules engine.Rules, ok func(g *engine.Game) bool) uint64 {
	t.Helper()
	for seed := uint64(1); seed < 10000; seed++ {
		g := engine.NewGame(seed, rules)
		a, b := uuid.New(), uuid.New()
		_, _ = g.AddPlayer(a, "A")
		_, _ = g.AddPlayer(b, "B")
		require.NoError(t, g.StartRound(a))
		if ok(g) {
			return seed
		}
	}
	t.Fatal("no seed deals the wanted cards")
	return 0
}

func kingOnTop(t *testing.T, rules engine.Rules) uint64 {
	t.Helper()
	return findSeed(t, rules, func(g *engine.Game) bool {
		return g.Deck[len(g.Deck)-1].Rank == engine.RankKing
	})
}

// TestKingRevealPrecedesSwap checks that everyone sees the reveal before the
// delayed swap lands.
func TestKingRevealPrecedesSwap(t *testing.T) {
	rules := engine.DefaultRules()
	rules.KingRevealDelay = 30 * time.Millisecond
	r := newTestRoom(t, Config{Seed: kingOnTop(t, rules), Rules: rules})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(StartGame{})

	alice.send(DrawCard{})
	king := alice.recv(EventCardDrawn).Payload.(CardDrawnPayload).Card
	require.Equal(t, engine.RankKing, king.Rank)
	alice.send(DiscardDrawnCard{CardID: king.ID})
	alice.send(ActivatePower{PowerType: "K"})
	before := alice.state()
	aliceCard := findPlayer(before, alice.player).Hand[0].Card.ID
	bobCard := findPlayer(before, bob.player).Hand[0].Card.ID
	bob.sync()

	alice.send(UsePowerSwap{
		Card1: engine.CardRef{PlayerID: alice.player, Index: 0},
		Card2: engine.CardRef{PlayerID: bob.player, Index: 0},
	})

	var order []EventType
	snapshots := 0
	deadline := time.After(waitFor)
	for len(order) == 0 || order[len(order)-1] != EventPowerSwapCompleted {
		select {
		case ev := <-bob.out:
			if ev.Type == EventKingPowerReveal || ev.Type == EventPowerSwapCompleted {
				order = append(order, ev.Type)
			}
			if ev.Type == EventGameStateUpdate {
				// Until the delay elapses both hands still hold their own cards.
				s := ev.Payload.(StateView)
				assert.Equal(t, aliceCard, findPlayer(s, alice.player).Hand[0].Card.ID)
				assert.Equal(t, bobCard, findPlayer(s, bob.player).Hand[0].Card.ID)
				if len(order) > 0 {
					snapshots++
				}
			}
			if ev.Type == EventKingPowerReveal {
				p := ev.Payload.(KingRevealPayload)
				assert.Equal(t, aliceCard, p.Card1.Card.ID)
				assert.Equal(t, bobCard, p.Card2.Card.ID)
			}
			if ev.Type == EventPowerSwapCompleted {
				assert.True(t, ev.Payload.(SwapCompletedPayload).Swapped)
			}
		case <-deadline:
			t.Fatalf("swap never completed, saw %v", order)
		}
	}
	assert.Equal(t, []EventType{EventKingPowerReveal, EventPowerSwapCompleted}, order)
	assert.Positive(t, snapshots, "no state update between reveal and swap")

	after := bob.state()
	assert.Equal(t, bobCard, findPlayer(after, alice.player).Hand[0].Card.ID)
	assert.Equal(t, aliceCard, findPlayer(after, bob.player).Hand[0].Card.ID)
	assert.Equal(t, bob.player, after.CurrentPlayerID)
	assert.Nil(t, after.PendingKingSwap)
}

// TestKingCancelledByElimination: the K holder eliminates their own matching
// card during the reveal, so the swap is dropped and announced as not done.
func TestKingCancelledByElimination(t *testing.T) {
	rules := engine.DefaultRules()
	rules.KingRevealDelay = time.Minute
	kingSlot := -1
	seed := findSeed(t, rules, func(g *engine.Game) bool {
		if g.Deck[len(g.Deck)-1].Rank != engine.RankKing {
			return false
		}
		for i, s := range g.Players[0].Hand {
			if s.Card.Rank == engine.RankKing {
				kingSlot = i
				return true
			}
		}
		return false
	})
	r := newTestRoom(t, Config{Seed: seed, Rules: rules})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(StartGame{})

	alice.send(DrawCard{})
	king := alice.recv(EventCardDrawn).Payload.(CardDrawnPayload).Card
	alice.send(DiscardDrawnCard{CardID: king.ID})
	alice.send(ActivatePower{PowerType: "K"})
	held := findPlayer(alice.state(), alice.player).Hand[kingSlot].Card.ID

	alice.send(UsePowerSwap{
		Card1: engine.CardRef{PlayerID: alice.player, Index: (kingSlot + 1) % 4},
		Card2: engine.CardRef{PlayerID: bob.player, Index: 0},
	})
	bob.recv(EventKingPowerReveal)
	alice.send(EliminateCard{TargetCardID: held})

	done := bob.recv(EventPowerSwapCompleted).Payload.(SwapCompletedPayload)
	assert.False(t, done.Swapped)
	assert.Equal(t, alice.player, done.PlayerID)

	s := bob.state()
	assert.Nil(t, s.PendingKingSwap)
	assert.Equal(t, bob.player, s.CurrentPlayerID)
	assert.Nil(t, findPlayer(s, alice.player).Hand[kingSlot].Card)
}

func TestDisconnectForfeitsCurrentPlayer(t *testing.T) {
	r := newTestRoom(t, Config{})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(StartGame{})
	bob.sync()

	require.NoError(t, r.Send(context.Background(), Detach{ConnID: alice.conn}))
	s := bob.state()
	assert.Equal(t, bob.player, s.CurrentPlayerID)
	gone := findPlayer(s, alice.player)
	assert.False(t, gone.Connected)
	assert.False(t, gone.IsHost)
	assert.True(t, findPlayer(s, bob.player).IsHost)

	for range alice.out {
	}
	_, ok := <-alice.out
	assert.False(t, ok, "detached outbox is closed")
}

func TestReconnectWithToken(t *testing.T) {
	signer, err := auth.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	r := newTestRoom(t, Config{Tokens: signer})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	require.NotEmpty(t, alice.token)
	alice.send(StartGame{})
	bob.sync()

	require.NoError(t, r.Send(context.Background(), Detach{ConnID: alice.conn}))
	assert.False(t, findPlayer(bob.state(), alice.player).Connected)

	again := attach(t, r)
	again.send(JoinRoom{Token: alice.token})
	p := again.recv(EventJoined).Payload.(JoinedPayload)
	assert.Equal(t, alice.player, p.PlayerID)
	assert.True(t, findPlayer(bob.state(), alice.player).Connected)

	// A token for another room gets a fresh seat attempt, which fails mid-round.
	foreign, err := signer.Issue("OTHER", alice.player)
	require.NoError(t, err)
	stranger := attach(t, r)
	stranger.send(JoinRoom{PlayerName: "Eve", Token: foreign})
	assert.Equal(t, engine.ErrGameInProgress.Error(), stranger.recv(EventError).Payload.(ErrorPayload).Message)
}

func TestDeclareArchivesRound(t *testing.T) {
	hist := &fakeHistory{}
	results := fakeResults{got: make(chan store.RoundResult, 1)}
	r := newTestRoom(t, Config{History: hist, Results: results})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(StartGame{})
	alice.send(Declare{DeclaredRanks: []engine.Rank{engine.RankAce}})

	ended := bob.recv(EventGameEnded).Payload.(GameEndedPayload)
	assert.Equal(t, alice.player, ended.Declarer)
	assert.Len(t, ended.Scores, 2)
	assert.NotEmpty(t, ended.Winners)

	select {
	case rr := <-results.got:
		assert.Equal(t, "R1", rr.RoomID)
		assert.Equal(t, 1, rr.Round)
		assert.Equal(t, ended.IsValidDeclaration, rr.Valid)
	case <-time.After(waitFor):
		t.Fatal("round not archived")
	}

	s := bob.state()
	assert.Equal(t, engine.StatusEnded, s.Status)
	for _, p := range s.Players {
		for _, slot := range p.Hand {
			if slot.Card != nil {
				assert.True(t, slot.Card.Known, "hands are revealed at the end")
			}
		}
	}

	require.NoError(t, r.Send(context.Background(), Shutdown{}))
	r.Wait()
	assert.Contains(t, hist.types(), "round_start")
	assert.Contains(t, hist.types(), "declare")
}

func TestHistoryPublishedInOrder(t *testing.T) {
	hist := &fakeHistory{slow: true}
	r := newTestRoom(t, Config{History: hist})
	alice := join(t, r, "Alice")
	join(t, r, "Bob")
	alice.send(StartGame{})
	alice.send(DrawCard{})
	alice.sync()

	require.NoError(t, r.Send(context.Background(), Shutdown{}))
	r.Wait()
	got := hist.indexes()
	require.GreaterOrEqual(t, len(got), 4)
	for i, idx := range got {
		assert.Equal(t, i+1, idx)
	}
}

func TestNewRoundFromEnded(t *testing.T) {
	r := newTestRoom(t, Config{})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(StartGame{})
	alice.send(Declare{})
	bob.recv(EventGameEnded)

	alice.send(StartGame{})
	s := bob.state()
	assert.Equal(t, engine.StatusPlaying, s.Status)
	assert.Equal(t, 2, s.RoundNumber)
	assert.Equal(t, bob.player, s.CurrentPlayerID, "start seat rotates")
}

func TestSlowClientDropped(t *testing.T) {
	r := newTestRoom(t, Config{})
	out := make(chan Event) // never drained
	conn := uuid.New()
	require.NoError(t, r.Send(context.Background(), Attach{ConnID: conn, Outbox: out}))
	require.NoError(t, r.Send(context.Background(), FromClient{ConnID: conn, Cmd: JoinRoom{PlayerName: "Slow"}}))

	s, err := r.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Conns)
	assert.Equal(t, 0, s.Connected)
	_, ok := <-out
	assert.False(t, ok)
}

func TestTurnTimeoutForfeits(t *testing.T) {
	rules := engine.DefaultRules()
	rules.TurnTimeout = 40 * time.Millisecond
	r := newTestRoom(t, Config{Rules: rules})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(StartGame{})

	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-bob.out:
			if ev.Type == EventGameStateUpdate && ev.Payload.(StateView).CurrentPlayerID == bob.player {
				return
			}
		case <-deadline:
			t.Fatal("idle turn was never forfeited")
		}
	}
}

func TestLeaveBeforeStartRemovesPlayer(t *testing.T) {
	r := newTestRoom(t, Config{})
	alice := join(t, r, "Alice")
	bob := join(t, r, "Bob")
	alice.send(LeaveRoom{})

	s := bob.state()
	require.Len(t, s.Players, 1)
	assert.True(t, s.Players[0].IsHost)
	bob.send(StartGame{})
	assert.Equal(t, "need at least 2 players", bob.recv(EventError).Payload.(ErrorPayload).Message)
}

func TestSummaryTracksEmptiness(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := newTestRoom(t, Config{Now: func() time.Time { return start }})
	s, err := r.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start, s.EmptySince)

	alice := join(t, r, "Alice")
	s, err = r.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, s.EmptySince.IsZero())
	assert.Equal(t, []string{"Alice"}, s.Players)

	require.NoError(t, r.Send(context.Background(), Detach{ConnID: alice.conn}))
	s, err = r.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start, s.EmptySince)
}
