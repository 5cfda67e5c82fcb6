package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"racehouse/config"
	"racehouse/game"
)

func raceInput(t *testing.T) game.VerifyInput {
	t.Helper()
	in := game.VerifyInput{
		RaceID:    "race-7",
		BlockHash: "0x" + strings.Repeat("ab", 32),
		Profile:   game.RaceProfile{Type: "sprint", Weights: game.StatVector{40, 20}, Luck: 12},
		Entrants: []game.Entrant{
			{ID: "pixel-steeds:1", Index: 0, Stats: game.StatVector{55, 40}},
			{ID: "pixel-steeds:2", Index: 1, Stats: game.StatVector{50, 45}},
			{ID: "moon-hounds:3", Index: 2, Stats: game.StatVector{60, 30}},
		},
	}
	res, err := game.RunRace(in.RaceID, in.BlockHash, in.Entrants, in.Profile)
	require.NoError(t, err)
	in.RecordedOrder = res.Order()
	return in
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFileMatch(t *testing.T) {
	data, err := json.Marshal(raceInput(t))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "race.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	out, err := run(t, "", "file", path)
	require.NoError(t, err)

	var report game.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.Match)
	require.Equal(t, "race-7", report.RaceID)
}

func TestFileMismatchFromStdin(t *testing.T) {
	in := raceInput(t)
	order := in.RecordedOrder
	in.RecordedOrder = []string{order[2], order[1], order[0]}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := run(t, string(data), "file", "-", "--quiet")
	require.ErrorIs(t, err, errMismatch)
	require.True(t, strings.HasPrefix(out, "MISMATCH race-7 seed="), out)
}

func TestFileRejectsBadInput(t *testing.T) {
	_, err := run(t, "{not json", "file", "-")
	require.Error(t, err)
}

func TestFairnessSpreadsWins(t *testing.T) {
	profile := mustProfile(t)
	field := []game.Entrant{
		{ID: "a", Index: 0, Stats: game.StatVector{50, 50, 50, 50, 50, 50}},
		{ID: "b", Index: 1, Stats: game.StatVector{50, 50, 50, 50, 50, 50}},
	}
	wins, err := simulateBatch(400, field, profile)
	require.NoError(t, err)
	require.Equal(t, 400, wins[0]+wins[1])
	// identical entrants: each slot wins well within 35-65%
	require.InDelta(t, 200, wins[0], 60)
}

func TestFairnessCommandRejectsTinyField(t *testing.T) {
	_, err := run(t, "", "fairness", "--entrants", "1")
	require.Error(t, err)
}

func mustProfile(t *testing.T) game.RaceProfile {
	t.Helper()
	cfg, err := config.LoadGame("")
	require.NoError(t, err)
	profile, err := cfg.RaceProfile("sprint")
	require.NoError(t, err)
	return profile
}
