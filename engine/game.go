// Package engine implements the Declare card game rules.
//
// A Game is a plain mutable value owned by exactly one goroutine; no method
// is safe for concurrent use. Every operation either applies completely or
// returns a rule-violation error and leaves the state untouched.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DeckSize = 52

// Status is the lifecycle phase of a game.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// Player holds one participant's hand and per-round flags.
type Player struct {
	ID        uuid.UUID
	Name      string
	IsHost    bool
	Connected bool

	Hand       []Slot
	Score      int
	KnownCards map[uuid.UUID]struct{}

	SkippedTurn            bool
	HasEliminatedThisRound bool

	// Power state machine: Offered has ActivePower and PendingPowerActivation
	// set; Using has ActivePower set and UsingPower true.
	ActivePower            Rank
	UsingPower             bool
	PendingPowerActivation Rank
	PowerSelection         []CardRef

	// DrawnCard is held outside both the hand and the discard pile until it
	// is swapped in or discarded.
	DrawnCard *Card
}

// Knows reports whether the player has seen the card.
func (p *Player) Knows(id uuid.UUID) bool {
	_, ok := p.KnownCards[id]
	return ok
}

func (p *Player) learn(id uuid.UUID) {
	if p.KnownCards == nil {
		p.KnownCards = make(map[uuid.UUID]struct{})
	}
	p.KnownCards[id] = struct{}{}
}

// CardsInHand counts non-empty slots.
func (p *Player) CardsInHand() int {
	n := 0
	for _, s := range p.Hand {
		if !s.Empty() {
			n++
		}
	}
	return n
}

// FindCard returns the slot index of a card in this hand, or -1.
func (p *Player) FindCard(id uuid.UUID) int {
	for i, s := range p.Hand {
		if !s.Empty() && s.Card.ID == id {
			return i
		}
	}
	return -1
}

func (p *Player) clearPower() {
	p.ActivePower = RankNone
	p.UsingPower = false
	p.PendingPowerActivation = RankNone
	p.PowerSelection = nil
}

// PendingGive records a successful elimination whose eliminator still owes a
// card into the vacated slot.
type PendingGive struct {
	EliminatorID   uuid.UUID `json:"eliminatorId"`
	TargetPlayerID uuid.UUID `json:"targetPlayerId"`
	TargetSlot     int       `json:"targetSlot"`
}

// KingSwap is a revealed K swap waiting for its delay to elapse.
type KingSwap struct {
	Seq      uint64    `json:"seq"`
	PlayerID uuid.UUID `json:"playerId"`
	Card1    CardRef   `json:"card1"`
	Card2    CardRef   `json:"card2"`
	Card1ID  uuid.UUID `json:"card1Id"`
	Card2ID  uuid.UUID `json:"card2Id"`
}

// Game holds the complete state of one room's game.
type Game struct {
	Players            []*Player
	CurrentPlayerIndex int
	Deck               []*Card // top of deck is the last element
	DiscardPile        []*Card // top of pile is the last element
	Status             Status
	RoundNumber        int
	Declarer           uuid.UUID // uuid.Nil until someone declares
	LastAction         *GameAction

	EliminationUsedThisRound bool
	PendingCardGiving        *PendingGive
	PendingKingSwap          *KingSwap

	Rules Rules

	rng     uint64
	kingSeq uint64
	now     func() time.Time
}

// NewGame creates an empty game in the waiting state.
func NewGame(seed uint64, rules Rules) *Game {
	g := &Game{
		Status: StatusWaiting,
		Rules:  rules,
		rng:    seed,
		now:    time.Now,
	}
	if g.rng == 0 {
		g.rng = 1 // xorshift can't start at 0
	}
	return g
}

// SetClock overrides the time source used for action timestamps.
func (g *Game) SetClock(now func() time.Time) { g.now = now }

// ---------------------------------------------------------------------------
// xorshift64 RNG
// ---------------------------------------------------------------------------

func (g *Game) nextRand() uint64 {
	x := g.rng
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	g.rng = x
	return x
}

// randN returns a random number in [0, n).
func (g *Game) randN(n int) int {
	return int(g.nextRand() % uint64(n))
}

// rngReader feeds the game RNG into uuid generation so that a seeded game
// reproduces its card ids.
type rngReader struct{ g *Game }

func (r rngReader) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		x := r.g.nextRand()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(x >> (8 * j))
		}
	}
	return len(p), nil
}

func (g *Game) shuffle(cards []*Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := g.randN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// ---------------------------------------------------------------------------
// Players
// ---------------------------------------------------------------------------

// AddPlayer seats a new connected player. The first player becomes host.
func (g *Game) AddPlayer(id uuid.UUID, name string) (*Player, error) {
	if g.Status == StatusPlaying {
		return nil, ErrGameInProgress
	}
	if len(g.Players) >= g.Rules.MaxPlayers {
		return nil, ErrRoomFull
	}
	if _, _, err := g.player(id); err == nil {
		return nil, fmt.Errorf("player %s already seated", id)
	}
	p := &Player{
		ID:         id,
		Name:       name,
		Connected:  true,
		KnownCards: make(map[uuid.UUID]struct{}),
	}
	g.Players = append(g.Players, p)
	g.ReassignHost()
	return p, nil
}

// RemovePlayer drops a player from a game that is not in progress.
// During play players are only marked disconnected.
func (g *Game) RemovePlayer(id uuid.UUID) error {
	if g.Status == StatusPlaying {
		return ErrGameInProgress
	}
	_, idx, err := g.player(id)
	if err != nil {
		return err
	}
	g.Players = append(g.Players[:idx], g.Players[idx+1:]...)
	if g.CurrentPlayerIndex >= len(g.Players) {
		g.CurrentPlayerIndex = 0
	}
	g.ReassignHost()
	return nil
}

// SetConnected flags a player active or inactive.
func (g *Game) SetConnected(id uuid.UUID, connected bool) error {
	p, _, err := g.player(id)
	if err != nil {
		return err
	}
	p.Connected = connected
	return nil
}

// ReassignHost keeps exactly one host. A disconnected host yields to the
// earliest-seated connected player; with nobody connected the host stays.
// Returns the host id and whether it changed.
func (g *Game) ReassignHost() (uuid.UUID, bool) {
	var current *Player
	for _, p := range g.Players {
		if p.IsHost {
			current = p
			break
		}
	}
	if current != nil && current.Connected {
		return current.ID, false
	}
	for _, p := range g.Players {
		if p.Connected {
			if current != nil {
				current.IsHost = false
			}
			p.IsHost = true
			return p.ID, true
		}
	}
	if current == nil && len(g.Players) > 0 {
		g.Players[0].IsHost = true
		return g.Players[0].ID, true
	}
	if current == nil {
		return uuid.Nil, false
	}
	return current.ID, false
}

// Host returns the host player, or nil for an empty game.
func (g *Game) Host() *Player {
	for _, p := range g.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// ConnectedCount counts players currently marked connected.
func (g *Game) ConnectedCount() int {
	n := 0
	for _, p := range g.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Player looks up a player by id.
func (g *Game) Player(id uuid.UUID) (*Player, bool) {
	p, _, err := g.player(id)
	return p, err == nil
}

func (g *Game) player(id uuid.UUID) (*Player, int, error) {
	for i, p := range g.Players {
		if p.ID == id {
			return p, i, nil
		}
	}
	return nil, -1, fmt.Errorf("player %s: %w", id, ErrPlayerNotFound)
}

// ---------------------------------------------------------------------------
// Round setup
// ---------------------------------------------------------------------------

// newDeck builds the 52 cards with ids drawn from the game RNG.
func (g *Game) newDeck() []*Card {
	deck := make([]*Card, 0, DeckSize)
	r := rngReader{g}
	for _, suit := range Suits {
		for rank := RankAce; rank <= RankKing; rank++ {
			id, err := uuid.NewRandomFromReader(r)
			if err != nil {
				// rngReader never fails.
				panic(err)
			}
			deck = append(deck, NewCard(id, suit, rank))
		}
	}
	return deck
}

// StartRound deals a fresh round. Only the host may start it, and at least
// Rules.MinPlayers connected players are required. Players who went inactive
// during a previous round are unseated first.
func (g *Game) StartRound(requester uuid.UUID) error {
	if g.Status == StatusPlaying {
		return ErrGameInProgress
	}
	p, _, err := g.player(requester)
	if err != nil {
		return err
	}
	if !p.IsHost {
		return ErrNotHost
	}
	if g.ConnectedCount() < g.Rules.MinPlayers {
		return ErrNotEnoughPlayers
	}

	seated := g.Players[:0]
	for _, pl := range g.Players {
		if pl.Connected {
			seated = append(seated, pl)
		}
	}
	g.Players = seated

	g.Deck = g.newDeck()
	g.shuffle(g.Deck)
	g.DiscardPile = nil
	g.deal()

	g.RoundNumber++
	g.Status = StatusPlaying
	g.Declarer = uuid.Nil
	g.EliminationUsedThisRound = false
	g.PendingCardGiving = nil
	g.PendingKingSwap = nil
	g.LastAction = nil
	g.CurrentPlayerIndex = (g.RoundNumber - 1) % len(g.Players)
	return nil
}

// deal resets every player's round state and deals Rules.HandSize cards
// round-robin from the top of the deck.
func (g *Game) deal() {
	for _, pl := range g.Players {
		pl.Hand = make([]Slot, g.Rules.HandSize)
		pl.Score = 0
		pl.KnownCards = make(map[uuid.UUID]struct{})
		pl.SkippedTurn = false
		pl.HasEliminatedThisRound = false
		pl.DrawnCard = nil
		pl.clearPower()
	}
	for slot := 0; slot < g.Rules.HandSize; slot++ {
		for _, pl := range g.Players {
			c := g.popDeck()
			c.Position = slot
			pl.Hand[slot] = Slot{Card: c}
		}
	}
	for _, pl := range g.Players {
		for slot := 0; slot < g.Rules.InitialPeekCount && slot < len(pl.Hand); slot++ {
			pl.learn(pl.Hand[slot].Card.ID)
		}
	}
}

// HandCard pairs a card with its slot index.
type HandCard struct {
	Index int   `json:"index"`
	Card  *Card `json:"card"`
}

// InitialPeek returns the slots a player saw at deal time.
func (g *Game) InitialPeek(id uuid.UUID) []HandCard {
	p, _, err := g.player(id)
	if err != nil {
		return nil
	}
	var out []HandCard
	for i := 0; i < g.Rules.InitialPeekCount && i < len(p.Hand); i++ {
		if !p.Hand[i].Empty() {
			out = append(out, HandCard{Index: i, Card: p.Hand[i].Card})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Deck and discard helpers
// ---------------------------------------------------------------------------

func (g *Game) popDeck() *Card {
	n := len(g.Deck)
	c := g.Deck[n-1]
	g.Deck = g.Deck[:n-1]
	return c
}

func (g *Game) pushDiscard(c *Card) {
	c.IsRevealed = true
	g.DiscardPile = append(g.DiscardPile, c)
}

// DiscardTop returns the top of the discard pile, or nil.
func (g *Game) DiscardTop() *Card {
	if len(g.DiscardPile) == 0 {
		return nil
	}
	return g.DiscardPile[len(g.DiscardPile)-1]
}

// attemptReshuffle moves all discard cards except the top back into the deck
// and shuffles. Players forget the reshuffled cards.
func (g *Game) attemptReshuffle() bool {
	if len(g.DiscardPile) <= 1 {
		return false
	}
	top := g.DiscardPile[len(g.DiscardPile)-1]
	rest := g.DiscardPile[:len(g.DiscardPile)-1]

	g.Deck = make([]*Card, 0, len(rest))
	for _, c := range rest {
		c.IsRevealed = false
		c.Position = 0
		g.Deck = append(g.Deck, c)
		for _, p := range g.Players {
			delete(p.KnownCards, c.ID)
		}
	}
	g.DiscardPile = []*Card{top}
	g.shuffle(g.Deck)
	return true
}

// CardCount sums every card the game holds: deck, discard pile, hands, and
// drawn cards. It is DeckSize at every quiescent point of a dealt round.
func (g *Game) CardCount() int {
	n := len(g.Deck) + len(g.DiscardPile)
	for _, p := range g.Players {
		n += p.CardsInHand()
		if p.DrawnCard != nil {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Audit record
// ---------------------------------------------------------------------------

// ActionKind tags a GameAction.
type ActionKind string

const (
	ActionDraw                ActionKind = "draw"
	ActionSwap                ActionKind = "swap"
	ActionDiscard             ActionKind = "discard"
	ActionDeclare             ActionKind = "declare"
	ActionMatch               ActionKind = "match" // failed elimination attempt
	ActionView                ActionKind = "view"
	ActionElimination         ActionKind = "elimination"
	ActionEliminationTransfer ActionKind = "elimination-transfer"
	ActionPowerActivation     ActionKind = "power-activation"
)

// GameAction describes the last accepted mutation. It is an audit and
// broadcast record only.
type GameAction struct {
	Kind            ActionKind `json:"type"`
	PlayerID        uuid.UUID  `json:"playerId"`
	CardID          *uuid.UUID `json:"cardId,omitempty"`
	TargetPlayerID  *uuid.UUID `json:"targetPlayerId,omitempty"`
	TargetCardIndex *int       `json:"targetCardIndex,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	Message         string     `json:"message,omitempty"`
}

// actionOpt fills optional GameAction fields.
type actionOpt func(*GameAction)

func withCard(id uuid.UUID) actionOpt {
	return func(a *GameAction) { a.CardID = &id }
}

func withTarget(playerID uuid.UUID, index int) actionOpt {
	return func(a *GameAction) {
		a.TargetPlayerID = &playerID
		a.TargetCardIndex = &index
	}
}

func (g *Game) record(kind ActionKind, playerID uuid.UUID, msg string, opts ...actionOpt) {
	a := &GameAction{Kind: kind, PlayerID: playerID, Timestamp: g.now(), Message: msg}
	for _, o := range opts {
		o(a)
	}
	g.LastAction = a
}
