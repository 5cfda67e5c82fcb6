package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"racehouse/collection"
	"racehouse/game"
	"racehouse/training"
)

//go:embed default.toml
var defaultGameConfig []byte

type FeeConfig struct {
	Currency     string          `toml:"currency"`
	TrainingFee  decimal.Decimal `toml:"training_fee"`
	TreatmentFee decimal.Decimal `toml:"treatment_fee"`
}

type RaceDefaults struct {
	EntryFee    decimal.Decimal   `toml:"entry_fee"`
	MaxEntrants int               `toml:"max_entrants"`
	Payouts     []decimal.Decimal `toml:"payouts"`
	BoostPlaces int               `toml:"boost_places"`
}

type RaceType struct {
	Luck    float64            `toml:"luck"`
	Weights map[string]float64 `toml:"weights"`
}

// GameConfig is the decoded game tuning. Collection-specific views come from
// ForCollection, which merges a collection's overrides over the global tables.
type GameConfig struct {
	Training     training.Config     `toml:"training"`
	Fees         FeeConfig           `toml:"fees"`
	RaceDefaults RaceDefaults        `toml:"race_defaults"`
	RaceTypes    map[string]RaceType `toml:"race_types"`

	raw map[string]any
}

// LoadGame reads the game config at path merged over the built-in defaults.
// An empty path returns the defaults.
func LoadGame(path string) (*GameConfig, error) {
	raw, err := parseTOML(defaultGameConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in game config: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read game config: %w", err)
		}
		override, err := parseTOML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		raw = Merge(raw, override)
	}
	return decodeGame(raw)
}

// ParseGame decodes a full game config document merged over the defaults.
func ParseGame(data []byte) (*GameConfig, error) {
	raw, err := parseTOML(defaultGameConfig)
	if err != nil {
		return nil, err
	}
	override, err := parseTOML(data)
	if err != nil {
		return nil, err
	}
	return decodeGame(Merge(raw, override))
}

func parseTOML(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeGame(raw map[string]any) (*GameConfig, error) {
	var cfg GameConfig
	if err := remarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode game config: %w", err)
	}
	cfg.raw = raw
	if err := cfg.Training.Validate(); err != nil {
		return nil, fmt.Errorf("invalid [training]: %w", err)
	}
	for name := range cfg.RaceTypes {
		if _, err := cfg.RaceProfile(name); err != nil {
			return nil, err
		}
	}
	for _, id := range cfg.CollectionIDs() {
		if _, err := cfg.TrainingFor(id); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// remarshal decodes a generic tree into a typed value by going through TOML.
func remarshal(tree map[string]any, out any) error {
	data, err := toml.Marshal(tree)
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, out)
}

/* =========================
   MERGE
========================= */

// Merge returns base with override laid over it. Nested tables are merged key
// by key; any other value in override, arrays included, replaces base's.
// Neither input is modified.
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if bm, ok := out[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				out[k] = Merge(bm, om)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func table(m map[string]any, key string) map[string]any {
	if t, ok := m[key].(map[string]any); ok {
		return t
	}
	return map[string]any{}
}

/* =========================
   VIEWS
========================= */

func (g *GameConfig) CollectionIDs() []string {
	ids := make([]string, 0)
	for id := range table(g.raw, "collections") {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrainingFor returns the training tuning of a collection: the global
// [training] table with [collections.<id>.training] merged over it.
func (g *GameConfig) TrainingFor(collectionID string) (training.Config, error) {
	coll := table(table(g.raw, "collections"), collectionID)
	merged := Merge(table(g.raw, "training"), table(coll, "training"))

	var cfg training.Config
	if err := remarshal(merged, &cfg); err != nil {
		return training.Config{}, fmt.Errorf("collection %s: failed to decode training config: %w", collectionID, err)
	}
	if err := cfg.Validate(); err != nil {
		return training.Config{}, fmt.Errorf("collection %s: %w", collectionID, err)
	}
	return cfg, nil
}

// CollectionParams returns loader parameters: [collection_defaults] with the
// collection's own keys merged over it.
func (g *GameConfig) CollectionParams(collectionID string) (collection.Params, error) {
	coll := table(table(g.raw, "collections"), collectionID)
	own := make(map[string]any, len(coll))
	for k, v := range coll {
		if k != "training" {
			own[k] = v
		}
	}
	var p collection.Params
	if err := remarshal(Merge(table(g.raw, "collection_defaults"), own), &p); err != nil {
		return collection.Params{}, fmt.Errorf("collection %s: failed to decode params: %w", collectionID, err)
	}
	return p, nil
}

// RaceProfile resolves a configured race type into weights and luck.
func (g *GameConfig) RaceProfile(name string) (game.RaceProfile, error) {
	rt, ok := g.RaceTypes[name]
	if !ok {
		return game.RaceProfile{}, fmt.Errorf("race type %q not configured", name)
	}
	weights, err := game.StatVectorFromMap(rt.Weights)
	if err != nil {
		return game.RaceProfile{}, fmt.Errorf("race type %s: %w", name, err)
	}
	if rt.Luck < 0 {
		return game.RaceProfile{}, fmt.Errorf("race type %s: luck must not be negative", name)
	}
	return game.RaceProfile{Type: name, Weights: weights, Luck: rt.Luck}, nil
}

func (g *GameConfig) RaceTypeNames() []string {
	names := make([]string, 0, len(g.RaceTypes))
	for n := range g.RaceTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registry builds the collection registry with every configured collection
// that has a loader.
func (g *GameConfig) Registry() (*collection.Registry, error) {
	reg := collection.NewRegistry()
	for _, id := range g.CollectionIDs() {
		p, err := g.CollectionParams(id)
		if err != nil {
			return nil, err
		}
		loader, err := collection.New(id, p)
		if err != nil {
			return nil, err
		}
		reg.Register(loader)
	}
	return reg, nil
}
