package registry

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/internal/logging"
	"github.com/jason-s-yu/declare/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	cfg.Log = logging.Discard()
	reg := New(context.Background(), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, reg.Close(ctx))
	})
	return reg
}

func TestCreateGetRemove(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	rm, err := reg.Create()
	require.NoError(t, err)
	assert.Len(t, rm.ID(), 6)

	got, ok := reg.Get(rm.ID())
	require.True(t, ok)
	assert.Same(t, rm, got)

	_, err = reg.CreateWithID(rm.ID())
	assert.ErrorIs(t, err, ErrRoomExists)

	require.NoError(t, reg.Remove(context.Background(), rm.ID()))
	_, ok = reg.Get(rm.ID())
	assert.False(t, ok)
	assert.ErrorIs(t, reg.Remove(context.Background(), rm.ID()), ErrRoomNotFound)

	select {
	case <-rm.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("removed room kept running")
	}
}

func TestGetOrCreate(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	rm, err := reg.GetOrCreate("R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", rm.ID())
	assert.Equal(t, 1, reg.Len())

	again, err := reg.GetOrCreate("R1")
	require.NoError(t, err)
	assert.Same(t, rm, again)
	assert.Equal(t, 1, reg.Len())

	for _, id := range []string{"", "room 1", "R1/ws", strings.Repeat("A", maxRoomIDLen+1), "Zürich"} {
		_, err := reg.GetOrCreate(id)
		assert.ErrorIs(t, err, ErrInvalidRoomID, "%q", id)
		_, err = reg.CreateWithID(id)
		assert.ErrorIs(t, err, ErrInvalidRoomID, "%q", id)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRoomCodes(t *testing.T) {
	seen := map[string]bool{}
	for range 200 {
		code := newRoomCode()
		require.Len(t, code, 6)
		for _, ch := range code {
			assert.True(t, strings.ContainsRune(codeLetters, ch), "unexpected %q", ch)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestReapEmptyRooms(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(t, Config{GracePeriod: time.Minute, Now: clock.Now})

	idle, err := reg.CreateWithID("IDLE")
	require.NoError(t, err)
	busy, err := reg.CreateWithID("BUSY")
	require.NoError(t, err)

	out := make(chan room.Event, 16)
	conn := uuid.New()
	ctx := context.Background()
	require.NoError(t, busy.Send(ctx, room.Attach{ConnID: conn, Outbox: out}))
	require.NoError(t, busy.Send(ctx, room.FromClient{ConnID: conn, Cmd: room.JoinRoom{PlayerName: "Alice"}}))

	// Both rooms were created at now; busy has a connected player.
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, reg.Reap(ctx))

	_, ok := reg.Get("IDLE")
	assert.False(t, ok)
	_, ok = reg.Get("BUSY")
	assert.True(t, ok)
	<-idle.Done()
}

func TestReapHonoursGracePeriod(t *testing.T) {
	reg := newTestRegistry(t, Config{GracePeriod: time.Hour})
	_, err := reg.Create()
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Reap(context.Background()))
	assert.Equal(t, 1, reg.Len())
}

func TestCloseStopsEveryRoom(t *testing.T) {
	reg := New(context.Background(), Config{Log: logging.Discard()})
	var rooms []*room.Room
	for range 3 {
		rm, err := reg.Create()
		require.NoError(t, err)
		rooms = append(rooms, rm)
	}
	require.Len(t, reg.Summaries(context.Background()), 3)
	require.NoError(t, reg.Close(context.Background()))
	for _, rm := range rooms {
		<-rm.Done()
	}
	assert.Equal(t, 0, reg.Len())
}
