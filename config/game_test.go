package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"racehouse/collection"
	"racehouse/game"
)

func TestMerge(t *testing.T) {
	base := map[string]any{
		"a": int64(1),
		"t": map[string]any{"x": int64(1), "y": int64(2), "deep": map[string]any{"k": "v"}},
		"l": []any{int64(1), int64(2)},
		"s": map[string]any{"n": int64(1)},
	}
	override := map[string]any{
		"t": map[string]any{"y": int64(20), "deep": map[string]any{"k2": "v2"}},
		"l": []any{int64(9)},
		"s": "scalar wins",
		"b": true,
	}

	got := Merge(base, override)
	require.Equal(t, map[string]any{
		"a": int64(1),
		"t": map[string]any{"x": int64(1), "y": int64(20), "deep": map[string]any{"k": "v", "k2": "v2"}},
		"l": []any{int64(9)},
		"s": "scalar wins",
		"b": true,
	}, got)

	// Inputs are untouched.
	require.Equal(t, int64(2), base["t"].(map[string]any)["y"])
	require.Len(t, base["t"].(map[string]any)["deep"], 1)
}

func TestLoadGameDefaults(t *testing.T) {
	cfg, err := LoadGame("")
	require.NoError(t, err)

	require.Equal(t, 80.0, cfg.Training.StatCap)
	require.Len(t, cfg.Training.Activities, 4)
	require.Equal(t, "1000000", cfg.Fees.TrainingFee.String())
	require.Equal(t, "CREDIT", cfg.Fees.Currency)
	require.Len(t, cfg.RaceDefaults.Payouts, 3)
	require.Equal(t, "3000000", cfg.RaceDefaults.Payouts[0].String())
	require.Equal(t, []string{"marathon", "sprint", "steeplechase"}, cfg.RaceTypeNames())

	profile, err := cfg.RaceProfile("sprint")
	require.NoError(t, err)
	require.Equal(t, 0.4, profile.Weights.Get(game.Speed))
	require.Equal(t, 6.0, profile.Luck)

	_, err = cfg.RaceProfile("derby")
	require.Error(t, err)
}

func TestPerCollectionOverrides(t *testing.T) {
	cfg, err := LoadGame("")
	require.NoError(t, err)
	require.Equal(t, []string{collection.MoonHoundsID, collection.PixelSteedsID}, cfg.CollectionIDs())

	hounds, err := cfg.TrainingFor(collection.MoonHoundsID)
	require.NoError(t, err)
	require.Equal(t, 82.0, hounds.StatCap)
	require.Equal(t, 3.0, hounds.FatigueRecoveryPerHour)
	// Untouched keys come from the global table.
	require.Equal(t, 0.95, hounds.SoftCapRatio)
	require.Len(t, hounds.Activities, 4)

	steeds, err := cfg.TrainingFor(collection.PixelSteedsID)
	require.NoError(t, err)
	require.Equal(t, 80.0, steeds.StatCap)

	p, err := cfg.CollectionParams(collection.MoonHoundsID)
	require.NoError(t, err)
	require.Equal(t, 5000, p.MaxSupply)
	require.Equal(t, 26.0, p.BaseSpread)
	require.Equal(t, 20.0, p.BaseMin)
	require.Equal(t, "https://assets.racehouse.gg/hounds", p.ImageBaseURL)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	require.Equal(t, cfg.CollectionIDs(), reg.IDs())
	houndsLoader, err := reg.Get(collection.MoonHoundsID)
	require.NoError(t, err)
	require.True(t, houndsLoader.Recognizes("MH-4999"))
	require.False(t, houndsLoader.Recognizes("MH-5000"))
}

func TestLoadGameFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.toml")
	doc := `
[training]
stat_cap = 90.0

[training.activities.hill_sprints]
primary = "accel"
primary_gain = 4.0
fatigue_cost = 18.0

[fees]
training_fee = "250000"

[race_defaults]
payouts = ["10"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := LoadGame(path)
	require.NoError(t, err)
	require.Equal(t, 90.0, cfg.Training.StatCap)
	require.Len(t, cfg.Training.Activities, 5)
	require.Equal(t, "250000", cfg.Fees.TrainingFee.String())
	require.Equal(t, "500000", cfg.Fees.TreatmentFee.String())
	require.Len(t, cfg.RaceDefaults.Payouts, 1)

	// The collection override still wins over the new global cap.
	hounds, err := cfg.TrainingFor(collection.MoonHoundsID)
	require.NoError(t, err)
	require.Equal(t, 82.0, hounds.StatCap)
	steeds, err := cfg.TrainingFor(collection.PixelSteedsID)
	require.NoError(t, err)
	require.Equal(t, 90.0, steeds.StatCap)
}

func TestParseGameRejectsBadTuning(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown stat", "[training.activities.x]\nprimary = \"charisma\"\nprimary_gain = 1.0\n"},
		{"bad race weight", "[race_types.derby]\nluck = 1.0\n[race_types.derby.weights]\nwings = 1.0\n"},
		{"bad collection override", "[collections.pixel-steeds.training]\ncondition_floor = 500.0\n"},
		{"unknown collection", "[collections.cyber-cats]\nbase_min = 1.0\n"},
		{"not toml", "[training\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseGame([]byte(tt.doc))
			if err == nil {
				_, err = cfg.Registry()
			}
			require.Error(t, err)
		})
	}
}
