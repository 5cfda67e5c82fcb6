package collection

import (
	"math/big"
	"strconv"
	"strings"

	"racehouse/errs"
	"racehouse/game"
)

const (
	PixelSteedsID = "pixel-steeds"
	MoonHoundsID  = "moon-hounds"
)

// Params tune a loader's stat roll. Collections may override the defaults in
// the game config.
type Params struct {
	ContractAddress string  `toml:"contract_address"`
	BaseMin         float64 `toml:"base_min"`
	BaseSpread      float64 `toml:"base_spread"`
	TraitBonus      float64 `toml:"trait_bonus"`
	MaxSupply       int     `toml:"max_supply"`
	ImageBaseURL    string  `toml:"image_base_url"`
}

// Constructor builds a loader from its configured params.
type Constructor func(Params) Loader

// Constructors holds every collection this build can load, keyed by id.
// A new collection is a new Loader and one entry here.
var Constructors = map[string]Constructor{
	PixelSteedsID: func(p Params) Loader { return NewPixelSteeds(p) },
	MoonHoundsID:  func(p Params) Loader { return NewMoonHounds(p) },
}

// New builds the loader registered under id.
func New(id string, p Params) (Loader, error) {
	build, ok := Constructors[id]
	if !ok {
		return nil, errs.NotFound("collection %q has no loader", id)
	}
	return build(p), nil
}

/* =========================
   PIXEL STEEDS
   numeric token ids 1..MaxSupply, "breed" trait
========================= */

var steedBreeds = map[string][]string{
	"breed": {"thoroughbred", "mustang", "clydesdale", "arabian"},
	"coat":  {"bay", "chestnut", "grey", "black", "palomino"},
}

var steedBreedBonus = map[string]game.Stat{
	"thoroughbred": game.Speed,
	"mustang":      game.Agility,
	"clydesdale":   game.Stamina,
	"arabian":      game.Heart,
}

type PixelSteeds struct{ p Params }

func NewPixelSteeds(p Params) *PixelSteeds { return &PixelSteeds{p: p} }

func (s *PixelSteeds) ID() string              { return PixelSteedsID }
func (s *PixelSteeds) ContractAddress() string { return s.p.ContractAddress }

func (s *PixelSteeds) Recognizes(tokenID string) bool {
	n, err := strconv.Atoi(tokenID)
	if err != nil || n < 1 {
		return false
	}
	return s.p.MaxSupply <= 0 || n <= s.p.MaxSupply
}

func (s *PixelSteeds) ParseTraits(raw map[string]string) (map[string]string, error) {
	return normaliseTraits(raw, steedBreeds)
}

func (s *PixelSteeds) BaseStats(tokenID string, traits map[string]string) (game.StatVector, error) {
	if !s.Recognizes(tokenID) {
		return game.StatVector{}, errs.Validation("invalid pixel steed token %q", tokenID)
	}
	v := rollStats(PixelSteedsID, tokenID, s.p.BaseMin, s.p.BaseSpread)
	if stat, ok := steedBreedBonus[traits["breed"]]; ok {
		v[stat] += s.p.TraitBonus
	}
	return v, nil
}

func (s *PixelSteeds) Metadata(tokenID string, traits map[string]string) Metadata {
	return Metadata{
		Name:   displayName(tokenID, "Pixel Steed"),
		Image:  strings.TrimRight(s.p.ImageBaseURL, "/") + "/" + tokenID + ".png",
		Traits: traits,
	}
}

func (s *PixelSteeds) OnChainID(tokenID string) (*big.Int, error) {
	if !s.Recognizes(tokenID) {
		return nil, errs.Validation("invalid pixel steed token %q", tokenID)
	}
	n, _ := new(big.Int).SetString(tokenID, 10)
	return n, nil
}

/* =========================
   MOON HOUNDS
   token ids "MH-<n>", "lineage" and "phase" traits
========================= */

var houndTraits = map[string][]string{
	"lineage": {"greyhound", "saluki", "whippet", "borzoi"},
	"phase":   {"new", "crescent", "half", "full"},
}

var houndLineageBonus = map[string]game.Stat{
	"greyhound": game.Speed,
	"saluki":    game.Stamina,
	"whippet":   game.Accel,
	"borzoi":    game.Focus,
}

type MoonHounds struct{ p Params }

func NewMoonHounds(p Params) *MoonHounds { return &MoonHounds{p: p} }

func (h *MoonHounds) ID() string              { return MoonHoundsID }
func (h *MoonHounds) ContractAddress() string { return h.p.ContractAddress }

func (h *MoonHounds) Recognizes(tokenID string) bool {
	num, ok := strings.CutPrefix(strings.ToUpper(tokenID), "MH-")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return false
	}
	return h.p.MaxSupply <= 0 || n < h.p.MaxSupply
}

func (h *MoonHounds) ParseTraits(raw map[string]string) (map[string]string, error) {
	return normaliseTraits(raw, houndTraits)
}

func (h *MoonHounds) BaseStats(tokenID string, traits map[string]string) (game.StatVector, error) {
	if !h.Recognizes(tokenID) {
		return game.StatVector{}, errs.Validation("invalid moon hound token %q", tokenID)
	}
	v := rollStats(MoonHoundsID, strings.ToUpper(tokenID), h.p.BaseMin, h.p.BaseSpread)
	if stat, ok := houndLineageBonus[traits["lineage"]]; ok {
		v[stat] += h.p.TraitBonus
	}
	// A full moon steadies the hound.
	if traits["phase"] == "full" {
		v[game.Focus] += h.p.TraitBonus / 2
	}
	return v, nil
}

func (h *MoonHounds) Metadata(tokenID string, traits map[string]string) Metadata {
	return Metadata{
		Name:   displayName(strings.TrimPrefix(strings.ToUpper(tokenID), "MH-"), "Moon Hound"),
		Image:  strings.TrimRight(h.p.ImageBaseURL, "/") + "/" + strings.ToLower(tokenID) + ".webp",
		Traits: traits,
	}
}

func (h *MoonHounds) OnChainID(tokenID string) (*big.Int, error) {
	if !h.Recognizes(tokenID) {
		return nil, errs.Validation("invalid moon hound token %q", tokenID)
	}
	n, _ := new(big.Int).SetString(strings.TrimPrefix(strings.ToUpper(tokenID), "MH-"), 10)
	return n, nil
}
