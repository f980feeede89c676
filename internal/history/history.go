// Package history publishes per-action records of a room so rounds can be
// replayed or audited after the fact.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Record is one logged room action.
type Record struct {
	RoomID      string         `json:"roomId"`
	Round       int            `json:"round"`
	ActionIndex int            `json:"actionIndex"`
	ActorID     uuid.UUID      `json:"actorId"` // Nil for room events.
	ActionType  string         `json:"actionType"`
	Payload     map[string]any `json:"payload"`
	Timestamp   int64          `json:"timestamp"` // unix millis
}

// Publisher accepts action records.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// ListKey is the Redis list holding every record of a room in order.
func ListKey(roomID string) string { return "declare:history:" + roomID }

// Channel is the pub/sub channel every record is also announced on.
const Channel = "declare:actions"

// Pipeliner is the slice of the go-redis client RedisPublisher needs.
type Pipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// RedisPublisher appends records to a per-room list and publishes them.
type RedisPublisher struct {
	rdb Pipeliner
}

func NewRedisPublisher(rdb Pipeliner) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, ListKey(rec.RoomID), data)
		pipe.Publish(ctx, Channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish action %d of room %s: %w", rec.ActionIndex, rec.RoomID, err)
	}
	return nil
}

// Replay returns every stored record of a room ordered by ActionIndex.
func (p *RedisPublisher) Replay(ctx context.Context, roomID string) ([]Record, error) {
	raw, err := p.rdb.LRange(ctx, ListKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history of room %s: %w", roomID, err)
	}
	out := make([]Record, 0, len(raw))
	for _, s := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode history of room %s: %w", roomID, err)
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ActionIndex < out[j].ActionIndex })
	return out, nil
}

// LogPublisher writes records to a logger. Used when no Redis is configured.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(_ context.Context, rec Record) error {
	p.Log.WithFields(logrus.Fields{
		"room":   rec.RoomID,
		"round":  rec.Round,
		"index":  rec.ActionIndex,
		"actor":  rec.ActorID,
		"action": rec.ActionType,
	}).Debug("action")
	return nil
}
