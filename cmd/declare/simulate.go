package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jason-s-yu/declare/internal/config"
	"github.com/jason-s-yu/declare/internal/sim"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type simulateOpts struct {
	players int
	seed    uint64
	games   int
	steps   int
}

func newSimulateCmd(cfg *config.Config) *cobra.Command {
	var o simulateOpts
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play seeded rounds of random legal moves and print the outcomes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.players < 2 || o.players > 8 {
				return fmt.Errorf("--players must be between 2 and 8: %d", o.players)
			}
			if o.games < 1 {
				return fmt.Errorf("--games must be positive: %d", o.games)
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			outs, err := sim.Run(sim.Options{Players: o.players, Seed: o.seed, MaxSteps: o.steps}, o.games)
			if err != nil {
				return err
			}
			log.WithField("games", len(outs)).Debug("simulation finished")
			return printOutcomes(outs)
		},
	}
	fs := cmd.Flags()
	fs.IntVarP(&o.players, "players", "n", 4, "players per round (2-8)")
	fs.Uint64VarP(&o.seed, "seed", "s", 1, "seed of the first round, later rounds use seed+1, seed+2, ...")
	fs.IntVarP(&o.games, "games", "g", 10, "number of rounds to play")
	fs.IntVar(&o.steps, "max-steps", 2000, "step limit for a round that never declares")
	return cmd
}

func printOutcomes(outs []sim.Outcome) error {
	data := pterm.TableData{{"Seed", "Steps", "Declarer", "Valid", "Winners", "Scores", "Elims", "Penalties", "K swaps"}}
	valid := 0
	for _, o := range outs {
		declarer, ok := "-", "-"
		if o.Declared {
			declarer = o.Declarer
			ok = strconv.FormatBool(o.Valid)
			if o.Valid {
				valid++
			}
		}
		data = append(data, []string{
			strconv.FormatUint(o.Seed, 10),
			strconv.Itoa(o.Steps),
			declarer,
			ok,
			strings.Join(o.Winners, ","),
			formatScores(o.Scores),
			strconv.Itoa(o.Eliminations),
			strconv.Itoa(o.Penalties),
			strconv.Itoa(o.KingSwaps),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("%d rounds, %d valid declarations", len(outs), valid)
	return nil
}

func formatScores(scores map[string]int) string {
	names := make([]string, 0, len(scores))
	for n := range scores {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%d", n, scores[n])
	}
	return strings.Join(parts, " ")
}
