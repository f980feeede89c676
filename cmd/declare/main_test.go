package main

import (
	"bytes"
	"testing"

	"github.com/jason-s-yu/declare/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionFlag(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "declare v"+releaseVersion+"\n", out.String())
}

func TestSimulateRejectsBadPlayerCount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"simulate", "--players", "9", "--env-file", ""})
	assert.ErrorContains(t, cmd.Execute(), "--players")
}

func TestServeRejectsBadPort(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--port", "0", "--env-file", ""})
	assert.ErrorContains(t, cmd.Execute(), "invalid port")
}

func TestFormatScores(t *testing.T) {
	assert.Equal(t, "P1=3 P2=11", formatScores(map[string]int{"P2": 11, "P1": 3}))
	assert.Empty(t, formatScores(nil))
}

func TestPrintOutcomes(t *testing.T) {
	outs, err := sim.Run(sim.Options{Players: 2, Seed: 5}, 2)
	require.NoError(t, err)
	assert.NoError(t, printOutcomes(outs))
}
