package game

import (
	"encoding/hex"
	"sort"

	"racehouse/errs"
)

// MinEntrants is the smallest field a race can be run with.
const MinEntrants = 2

// Simulate ranks entrants for one race.
//
// Each entrant's score is its weighted stat sum plus a perturbation of
// (2u - 1) * profile.Luck, where u is one Float64 draw from the seed's stream.
// Draws are handed out in ascending registration index, independent of the
// order of the entrants slice, so rank follows identity rather than position.
// Exact score ties go to the lower registration index.
func Simulate(seed []byte, entrants []Entrant, profile RaceProfile) (Result, error) {
	if len(entrants) < MinEntrants {
		return Result{}, errs.Wrapf(errs.ErrInsufficientEntrants, "race has %d entrants, needs %d", len(entrants), MinEntrants)
	}
	if profile.Luck < 0 {
		return Result{}, errs.Validation("luck must not be negative")
	}

	ordered := make([]Entrant, len(entrants))
	copy(ordered, entrants)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	seenIDs := make(map[string]bool, len(ordered))
	for i, e := range ordered {
		if e.ID == "" {
			return Result{}, errs.Validation("entrant at index %d has no id", e.Index)
		}
		if seenIDs[e.ID] {
			return Result{}, errs.Validation("entrant %s listed twice", e.ID)
		}
		seenIDs[e.ID] = true
		if i > 0 && ordered[i-1].Index == e.Index {
			return Result{}, errs.Validation("registration index %d used twice", e.Index)
		}
	}

	rng, err := NewRng(seed)
	if err != nil {
		return Result{}, errs.Validation("%v", err)
	}

	placements := make([]Placement, len(ordered))
	for i, e := range ordered {
		base := e.Stats.Dot(profile.Weights)
		u := rng.Float64()
		perturbation := float64((2*u - 1) * profile.Luck)
		placements[i] = Placement{
			EntrantID:    e.ID,
			Index:        e.Index,
			BaseScore:    base,
			Draw:         u,
			Perturbation: perturbation,
			Score:        base + perturbation,
		}
	}

	sort.SliceStable(placements, func(i, j int) bool {
		if placements[i].Score != placements[j].Score {
			return placements[i].Score > placements[j].Score
		}
		return placements[i].Index < placements[j].Index
	})
	for i := range placements {
		placements[i].Rank = i + 1
	}

	return Result{
		Seed:       hex.EncodeToString(seed),
		Placements: placements,
	}, nil
}
