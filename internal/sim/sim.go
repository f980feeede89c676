// Package sim plays whole rounds of random legal moves against the engine.
// It backs the simulate command and the conservation property tests.
package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/engine"
)

// ErrConservation reports a state where the 52 cards are no longer all
// accounted for.
var ErrConservation = errors.New("card conservation violated")

type Options struct {
	Players int
	Seed    uint64
	Rules   engine.Rules
	// MaxSteps bounds a round that never declares. Defaults to 2000.
	MaxSteps int
	// DeclareAfter keeps declare out of the candidate moves until this many
	// steps have been played. Defaults to 40.
	DeclareAfter int
}

func (o *Options) defaults() {
	if o.Rules == (engine.Rules{}) {
		o.Rules = engine.DefaultRules()
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = 2000
	}
	if o.DeclareAfter <= 0 {
		o.DeclareAfter = 40
	}
}

// Outcome summarises one simulated round.
type Outcome struct {
	Seed         uint64
	Players      int
	Steps        int
	Declared     bool
	Declarer     string
	Valid        bool
	Winners      []string
	Scores       map[string]int
	Eliminations int
	Penalties    int
	KingSwaps    int
	DeckLeft     int
}

// PlayerName is the seat name the simulator gives player i.
func PlayerName(i int) string { return fmt.Sprintf("P%d", i+1) }

// Play runs one round to a declaration or to MaxSteps. Conservation is
// checked after every accepted move.
func Play(opts Options) (Outcome, error) {
	opts.defaults()
	out := Outcome{Seed: opts.Seed, Players: opts.Players}

	g := engine.NewGame(opts.Seed, opts.Rules)
	ids := make([]uuid.UUID, opts.Players)
	names := make(map[uuid.UUID]string, opts.Players)
	for i := range ids {
		ids[i] = uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "declare-sim-%d-%d", opts.Seed, i))
		names[ids[i]] = PlayerName(i)
		if _, err := g.AddPlayer(ids[i], PlayerName(i)); err != nil {
			return out, fmt.Errorf("seat %d: %w", i, err)
		}
	}
	if err := g.StartRound(ids[0]); err != nil {
		return out, err
	}
	if err := checkConserved(g); err != nil {
		return out, fmt.Errorf("after deal: %w", err)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, uint64(opts.Players)))
	for out.Steps < opts.MaxSteps && g.Status == engine.StatusPlaying {
		out.Steps++

		if ks := g.PendingKingSwap; ks != nil {
			if _, err := g.ExecuteKingSwap(ks.Seq); err != nil {
				return out, fmt.Errorf("step %d: king swap: %w", out.Steps, err)
			}
			out.KingSwaps++
			if err := checkConserved(g); err != nil {
				return out, fmt.Errorf("step %d: %w", out.Steps, err)
			}
			continue
		}

		actor, m, ok := pick(g, ids, rng, out.Steps >= opts.DeclareAfter)
		if !ok {
			break
		}
		if m.Kind == engine.MoveDeclare {
			res, err := g.Declare(actor, guessRanks(g, actor, rng))
			if err != nil {
				return out, fmt.Errorf("step %d: declare: %w", out.Steps, err)
			}
			out.Declared = true
			out.Declarer = names[res.Declarer]
			out.Valid = res.Valid
			out.Scores = make(map[string]int, len(res.Scores))
			for id, s := range res.Scores {
				out.Scores[names[id]] = s
			}
			for _, id := range res.Winners {
				out.Winners = append(out.Winners, names[id])
			}
			break
		}
		if err := g.Apply(actor, m); err != nil {
			return out, fmt.Errorf("step %d: %s by %s rejected: %w", out.Steps, m.Kind, names[actor], err)
		}
		if m.Kind == engine.MoveEliminate {
			if a := g.LastAction; a != nil && a.Kind == engine.ActionMatch {
				out.Penalties++
			} else {
				out.Eliminations++
			}
		}
		if err := checkConserved(g); err != nil {
			return out, fmt.Errorf("step %d after %s: %w", out.Steps, m.Kind, err)
		}
	}
	out.DeckLeft = len(g.Deck)
	return out, nil
}

// Run plays games rounds with consecutive seeds starting at opts.Seed.
func Run(opts Options, games int) ([]Outcome, error) {
	outs := make([]Outcome, 0, games)
	for i := range games {
		o := opts
		o.Seed = opts.Seed + uint64(i)
		res, err := Play(o)
		if err != nil {
			return outs, fmt.Errorf("seed %d: %w", o.Seed, err)
		}
		outs = append(outs, res)
	}
	return outs, nil
}

// pick chooses a random player with at least one candidate move, then a
// random move for them. Eliminations are weighted down so turns progress.
func pick(g *engine.Game, ids []uuid.UUID, rng *rand.Rand, declareOK bool) (uuid.UUID, engine.Move, bool) {
	order := rng.Perm(len(ids))
	for _, i := range order {
		var turn, elim []engine.Move
		for _, m := range g.LegalMoves(ids[i]) {
			switch {
			case m.Kind == engine.MoveEliminate:
				elim = append(elim, m)
			case m.Kind == engine.MoveDeclare && !declareOK:
			default:
				turn = append(turn, m)
			}
		}
		if len(elim) > 0 && (len(turn) == 0 || rng.IntN(8) == 0) {
			return ids[i], elim[rng.IntN(len(elim))], true
		}
		if len(turn) > 0 {
			return ids[i], turn[rng.IntN(len(turn))], true
		}
	}
	return uuid.Nil, engine.Move{}, false
}

// guessRanks declares the true rank of every card the declarer has seen and
// a random rank for the rest.
func guessRanks(g *engine.Game, id uuid.UUID, rng *rand.Rand) []engine.Rank {
	p, _ := g.Player(id)
	var ranks []engine.Rank
	for _, s := range p.Hand {
		if s.Empty() {
			continue
		}
		if p.Knows(s.Card.ID) {
			ranks = append(ranks, s.Card.Rank)
		} else {
			ranks = append(ranks, engine.Rank(1+rng.IntN(13)))
		}
	}
	return ranks
}

func checkConserved(g *engine.Game) error {
	if n := g.CardCount(); n != engine.DeckSize {
		return fmt.Errorf("%w: %d cards", ErrConservation, n)
	}
	return nil
}
