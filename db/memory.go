package db

import (
	"context"
	"sort"
	"sync"

	"racehouse/errs"
	"racehouse/game"
	"racehouse/training"
)

// Memory keeps creatures, races and entries in process. It follows the same
// version rules as Postgres and backs tests and database-less runs.
type Memory struct {
	mu        sync.RWMutex
	creatures map[string]training.Creature
	races     map[string]game.Race
	entries   map[string][]game.RaceEntry
}

func NewMemory() *Memory {
	return &Memory{
		creatures: make(map[string]training.Creature),
		races:     make(map[string]game.Race),
		entries:   make(map[string][]game.RaceEntry),
	}
}

/* =========================
   CREATURES
========================= */

func (m *Memory) InsertCreature(_ context.Context, c training.Creature) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.creatures[c.ID]; ok {
		return errs.Wrapf(errs.ErrStateConflict, "creature %s already registered", c.ID)
	}
	c = c.Clone()
	c.Version = 0
	m.creatures[c.ID] = c
	return nil
}

func (m *Memory) GetCreature(_ context.Context, id string) (training.Creature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.creatures[id]
	if !ok {
		return training.Creature{}, errs.NotFound("creature %s not found", id)
	}
	return c.Clone(), nil
}

func (m *Memory) UpdateCreature(_ context.Context, c training.Creature) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.creatures[c.ID]
	if !ok {
		return errs.NotFound("creature %s not found", c.ID)
	}
	if stored.Version != c.Version {
		return errs.Wrapf(errs.ErrConcurrentModification, "creature %s changed since version %d", c.ID, c.Version)
	}
	c = c.Clone()
	c.Version++
	m.creatures[c.ID] = c
	return nil
}

func (m *Memory) ListCreatures(_ context.Context, owner string) ([]training.Creature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []training.Creature
	for _, c := range m.creatures {
		if owner != "" && c.Owner != owner {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

/* =========================
   RACES
========================= */

func cloneRace(r game.Race) game.Race {
	r.Payouts = append(r.Payouts[:0:0], r.Payouts...)
	r.Ordering = append(r.Ordering[:0:0], r.Ordering...)
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		r.ResolvedAt = &t
	}
	return r
}

func cloneEntry(e game.RaceEntry) game.RaceEntry {
	if e.Stats != nil {
		v := *e.Stats
		e.Stats = &v
	}
	return e
}

func (m *Memory) CreateRace(_ context.Context, r game.Race) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.races[r.ID]; ok {
		return errs.Wrapf(errs.ErrStateConflict, "race %s already exists", r.ID)
	}
	r = cloneRace(r)
	r.Version = 0
	m.races[r.ID] = r
	return nil
}

func (m *Memory) GetRace(_ context.Context, id string) (game.Race, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.races[id]
	if !ok {
		return game.Race{}, errs.NotFound("race %s not found", id)
	}
	return cloneRace(r), nil
}

func (m *Memory) ListRaces(_ context.Context, status game.RaceStatus, limit int) ([]game.Race, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []game.Race
	for _, r := range m.races {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, cloneRace(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) checkRaceVersion(r game.Race) error {
	stored, ok := m.races[r.ID]
	if !ok {
		return errs.NotFound("race %s not found", r.ID)
	}
	if stored.Version != r.Version {
		return errs.Wrapf(errs.ErrConcurrentModification, "race %s changed since version %d", r.ID, r.Version)
	}
	return nil
}

func (m *Memory) UpdateRaceStatus(_ context.Context, r game.Race) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRaceVersion(r); err != nil {
		return err
	}
	stored := m.races[r.ID]
	stored.Status = r.Status
	stored.VoidReason = r.VoidReason
	stored.ResolvedAt = r.ResolvedAt
	stored.Version++
	m.races[r.ID] = cloneRace(stored)
	return nil
}

func (m *Memory) ResolveRace(_ context.Context, r game.Race, entries []game.RaceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRaceVersion(r); err != nil {
		return err
	}
	stored := m.races[r.ID]
	stored.Status = r.Status
	stored.BlockHash = r.BlockHash
	stored.Ordering = r.Ordering
	stored.ResolvedAt = r.ResolvedAt
	stored.VoidReason = r.VoidReason
	stored.Version++
	m.races[r.ID] = cloneRace(stored)

	current := m.entries[r.ID]
	for _, e := range entries {
		for i := range current {
			if current[i].CreatureID == e.CreatureID {
				current[i].Stats = cloneEntry(e).Stats
				current[i].Position = e.Position
				current[i].BoostAwarded = e.BoostAwarded
			}
		}
	}
	return nil
}

/* =========================
   RACE ENTRIES
========================= */

func (m *Memory) AddEntry(_ context.Context, e game.RaceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.races[e.RaceID]; !ok {
		return errs.NotFound("race %s not found", e.RaceID)
	}
	for _, existing := range m.entries[e.RaceID] {
		if existing.CreatureID == e.CreatureID || existing.Index == e.Index {
			return errs.Wrapf(errs.ErrAlreadyEntered, "creature %s is already entered in race %s", e.CreatureID, e.RaceID)
		}
	}
	m.entries[e.RaceID] = append(m.entries[e.RaceID], cloneEntry(e))
	return nil
}

func (m *Memory) RaceEntries(_ context.Context, raceID string) ([]game.RaceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[raceID]
	out := make([]game.RaceEntry, 0, len(list))
	for _, e := range list {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
