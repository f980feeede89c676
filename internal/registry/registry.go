// Package registry owns the set of live rooms keyed by room code.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/declare/engine"
	"github.com/jason-s-yu/declare/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomNotFound  = errors.New("room not found")
	ErrInvalidRoomID = errors.New("invalid room id")
)

const maxRoomIDLen = 32

// Config is the template every new room is built from.
type Config struct {
	Rules   engine.Rules
	Log     logrus.FieldLogger
	History room.ActionPublisher
	Results room.ResultRecorder
	Tokens  room.SeatTokens

	// GracePeriod is how long a room may sit with nobody connected before
	// the reaper closes it. Zero disables reaping.
	GracePeriod time.Duration
	// Seed fixes every room's shuffle when non-zero.
	Seed uint64
	Now  func() time.Time
}

type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room.Room

	ctx  context.Context
	cfg  Config
	log  logrus.FieldLogger
	stop chan struct{}
	once sync.Once
}

// New returns an empty registry. Rooms live until removed, reaped or until
// ctx is cancelled.
func New(ctx context.Context, cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}
	r := &Registry{
		rooms: make(map[string]*room.Room),
		ctx:   ctx,
		cfg:   cfg,
		log:   cfg.Log,
		stop:  make(chan struct{}),
	}
	if cfg.GracePeriod > 0 {
		go r.reaperLoop()
	}
	return r
}

// Create opens a room under a fresh random code.
func (r *Registry) Create() (*room.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := newRoomCode()
		if _, exists := r.rooms[id]; !exists {
			return r.openLocked(id), nil
		}
	}
}

// CreateWithID opens a room under a caller-chosen code.
func (r *Registry) CreateWithID(id string) (*room.Room, error) {
	if !ValidRoomID(id) {
		return nil, fmt.Errorf("%q: %w", id, ErrInvalidRoomID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[id]; exists {
		return nil, ErrRoomExists
	}
	return r.openLocked(id), nil
}

// GetOrCreate returns the room under id, opening it on first use.
func (r *Registry) GetOrCreate(id string) (*room.Room, error) {
	if !ValidRoomID(id) {
		return nil, fmt.Errorf("%q: %w", id, ErrInvalidRoomID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[id]; ok {
		return rm, nil
	}
	return r.openLocked(id), nil
}

// ValidRoomID accepts 1 to 32 ASCII letters, digits, '-' and '_'.
func ValidRoomID(id string) bool {
	if id == "" || len(id) > maxRoomIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func (r *Registry) openLocked(id string) *room.Room {
	seed := r.cfg.Seed
	if seed == 0 {
		seed = randomSeed()
	}
	rm := room.New(r.ctx, room.Config{
		ID:      id,
		Seed:    seed,
		Rules:   r.cfg.Rules,
		Log:     r.cfg.Log,
		History: r.cfg.History,
		Results: r.cfg.Results,
		Tokens:  r.cfg.Tokens,
		Now:     r.cfg.Now,
	})
	r.rooms[id] = rm
	r.log.WithField("room", id).Info("room created")
	return rm
}

func (r *Registry) Get(id string) (*room.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

// Remove shuts a room down and forgets it.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	rm, ok := r.rooms[id]
	delete(r.rooms, id)
	r.mu.Unlock()
	if !ok {
		return ErrRoomNotFound
	}
	if err := rm.Send(ctx, room.Shutdown{}); err != nil && !errors.Is(err, room.ErrClosed) {
		return err
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) snapshot() []*room.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*room.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm)
	}
	return out
}

// Summaries collects the summary of every live room.
func (r *Registry) Summaries(ctx context.Context) []room.Summary {
	var out []room.Summary
	for _, rm := range r.snapshot() {
		s, err := rm.Summary(ctx)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Reap closes rooms that have been empty for longer than the grace period
// and returns how many it closed.
func (r *Registry) Reap(ctx context.Context) int {
	cutoff := r.cfg.Now().Add(-r.cfg.GracePeriod)
	n := 0
	for _, s := range r.Summaries(ctx) {
		if s.Connected > 0 || s.EmptySince.IsZero() || !s.EmptySince.Before(cutoff) {
			continue
		}
		if err := r.Remove(ctx, s.ID); err == nil {
			r.log.WithField("room", s.ID).Info("reaped empty room")
			n++
		}
	}
	return n
}

func (r *Registry) reaperLoop() {
	ticker := time.NewTicker(r.cfg.GracePeriod / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
			r.Reap(ctx)
			cancel()
		case <-r.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

// Close shuts every room down and waits for them to finish.
func (r *Registry) Close(ctx context.Context) error {
	r.once.Do(func() { close(r.stop) })
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[string]*room.Room)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, rm := range rooms {
		g.Go(func() error {
			if err := rm.Send(ctx, room.Shutdown{}); err != nil && !errors.Is(err, room.ErrClosed) {
				return err
			}
			done := make(chan struct{})
			go func() {
				rm.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

const codeLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newRoomCode returns a crypto-random six character code without the
// easily confused I, O, 0 and 1.
func newRoomCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, len(buf))
	for i := range out {
		out[i] = codeLetters[int(buf[i])%len(codeLetters)]
	}
	return string(out)
}

func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}
