// Package store archives finished rounds in Postgres.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoundResult is the archived outcome of one round.
type RoundResult struct {
	RoomID   string
	Round    int
	Declarer uuid.UUID
	Valid    bool
	Winners  []uuid.UUID
	Scores   map[uuid.UUID]int
	EndedAt  time.Time
}

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `CREATE TABLE IF NOT EXISTS round_results (
	id          BIGSERIAL PRIMARY KEY,
	room_id     TEXT        NOT NULL,
	round       INTEGER     NOT NULL,
	declarer    UUID        NOT NULL,
	valid       BOOLEAN     NOT NULL,
	winners     UUID[]      NOT NULL,
	scores      JSONB       NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL
)`

const insertResult = `INSERT INTO round_results (room_id, round, declarer, valid, winners, scores, ended_at)
VALUES ($1, $2, $3::uuid, $4, $5::uuid[], $6, $7)`

const selectRecent = `SELECT room_id, round, declarer::text, valid, winners::text[], scores, ended_at
FROM round_results ORDER BY ended_at DESC LIMIT $1`

type Store struct {
	db DB
}

func New(db DB) *Store { return &Store{db: db} }

// Open connects a pool and makes sure the table exists.
func Open(ctx context.Context, url string) (*pgxpool.Pool, *Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create round_results: %w", err)
	}
	return nil
}

// RecordRound inserts one finished round.
func (s *Store) RecordRound(ctx context.Context, r RoundResult) error {
	scores := make(map[string]int, len(r.Scores))
	for id, v := range r.Scores {
		scores[id.String()] = v
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	winners := make([]string, len(r.Winners))
	for i, id := range r.Winners {
		winners[i] = id.String()
	}
	if _, err := s.db.Exec(ctx, insertResult,
		r.RoomID, r.Round, r.Declarer.String(), r.Valid, winners, scoresJSON, r.EndedAt); err != nil {
		return fmt.Errorf("insert result for room %s round %d: %w", r.RoomID, r.Round, err)
	}
	return nil
}

// Recent lists the latest results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RoundResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []RoundResult
	for rows.Next() {
		var (
			r          RoundResult
			declarer   string
			winners    []string
			scoresJSON []byte
		)
		if err := rows.Scan(&r.RoomID, &r.Round, &declarer, &r.Valid, &winners, &scoresJSON, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Declarer, err = uuid.Parse(declarer); err != nil {
			return nil, fmt.Errorf("parse declarer: %w", err)
		}
		for _, w := range winners {
			id, err := uuid.Parse(w)
			if err != nil {
				return nil, fmt.Errorf("parse winner: %w", err)
			}
			r.Winners = append(r.Winners, id)
		}
		var scores map[string]int
		if err := json.Unmarshal(scoresJSON, &scores); err != nil {
			return nil, fmt.Errorf("decode scores: %w", err)
		}
		r.Scores = make(map[uuid.UUID]int, len(scores))
		for k, v := range scores {
			id, err := uuid.Parse(k)
			if err != nil {
				return nil, fmt.Errorf("parse score key: %w", err)
			}
			r.Scores[id] = v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
