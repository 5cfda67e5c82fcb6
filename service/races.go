package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"racehouse/config"
	"racehouse/errs"
	"racehouse/game"
	"racehouse/ledger"
)

const (
	EventRaceCreated  = "race_created"
	EventRaceEntry    = "race_entry"
	EventRaceResolved = "race_resolved"
	EventRaceVoided   = "race_voided"
)

// RaceRequest describes a race to schedule. Zero values take the configured
// race defaults.
type RaceRequest struct {
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	OpensAt       time.Time         `json:"opensAt"`
	EntryDeadline time.Time         `json:"entryDeadline"`
	TargetHeight  uint64            `json:"targetBlockHeight,omitempty"`
	EntryFee      *decimal.Decimal  `json:"entryFee,omitempty"`
	MaxEntrants   int               `json:"maxEntrants,omitempty"`
	Payouts       []decimal.Decimal `json:"payouts,omitempty"`
	BoostPlaces   *int              `json:"boostPlaces,omitempty"`
}

type EnterRequest struct {
	RaceID     string `json:"raceId"`
	CreatureID string `json:"creatureId"`
	Signed
}

// Resolution is the outcome of resolving a race.
type Resolution struct {
	Race    game.Race        `json:"race"`
	Entries []game.RaceEntry `json:"entries"`
	Result  *game.Result     `json:"result,omitempty"`
}

/* =========================
   CREATE
========================= */

// CreateRace schedules a race bound to a block height that is not yet
// mined. Without an explicit height the target is estimated to land after
// the entry deadline.
func (s *Service) CreateRace(ctx context.Context, req RaceRequest) (game.Race, error) {
	now := s.now().UTC()

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > config.MaxRaceNameLength {
		return game.Race{}, errs.Validation("race name must be 1-%d characters", config.MaxRaceNameLength)
	}
	profile, err := s.game.RaceProfile(req.Type)
	if err != nil {
		return game.Race{}, errs.Validation("%v", err)
	}
	if req.OpensAt.IsZero() {
		req.OpensAt = now
	}
	if !req.EntryDeadline.After(req.OpensAt) {
		return game.Race{}, errs.Validation("entry deadline must be after the opening time")
	}
	if !req.EntryDeadline.After(now) {
		return game.Race{}, errs.Validation("entry deadline must be in the future")
	}

	defaults := s.game.RaceDefaults
	r := game.Race{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Profile:       profile,
		Status:        game.RacePending,
		OpensAt:       req.OpensAt.UTC(),
		EntryDeadline: req.EntryDeadline.UTC(),
		EntryFee:      defaults.EntryFee,
		Currency:      s.game.Fees.Currency,
		MaxEntrants:   defaults.MaxEntrants,
		Payouts:       defaults.Payouts,
		BoostPlaces:   defaults.BoostPlaces,
		CreatedAt:     now,
	}
	if r.Currency == "" {
		r.Currency = ledger.DefaultCurrency
	}
	if req.EntryFee != nil {
		r.EntryFee = *req.EntryFee
	}
	if req.MaxEntrants != 0 {
		r.MaxEntrants = req.MaxEntrants
	}
	if req.Payouts != nil {
		r.Payouts = req.Payouts
	}
	if req.BoostPlaces != nil {
		r.BoostPlaces = *req.BoostPlaces
	}
	if r.MaxEntrants == 0 {
		r.MaxEntrants = config.DefaultMaxEntrants
	}
	if err := validateRaceEconomics(r); err != nil {
		return game.Race{}, err
	}

	latest, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return game.Race{}, err
	}
	minHeight := latest + s.margin + 1
	// The earliest height expected to land after the entry deadline.
	deadlineHeight := minHeight + uint64(r.EntryDeadline.Sub(now)/s.blockTime)
	if req.TargetHeight == 0 {
		r.TargetBlockHeight = deadlineHeight
	} else {
		if req.TargetHeight < minHeight {
			return game.Race{}, errs.Validation("target block %d must be at least %d (latest %d + margin %d)",
				req.TargetHeight, minHeight, latest, s.margin)
		}
		if req.TargetHeight < deadlineHeight {
			return game.Race{}, errs.Validation("target block %d may be mined before the entry deadline, use %d or later",
				req.TargetHeight, deadlineHeight)
		}
		r.TargetBlockHeight = req.TargetHeight
	}

	if !now.Before(r.OpensAt) {
		r.Status = game.RaceOpen
	}
	if err := s.races.CreateRace(ctx, r); err != nil {
		return game.Race{}, err
	}

	log.Printf("🏁 Race %s (%s, %s) scheduled, target block %d, deadline %s",
		r.ID, r.Name, r.Profile.Type, r.TargetBlockHeight, r.EntryDeadline.Format(time.RFC3339))
	s.publish(EventRaceCreated, r.ID, r)
	return r, nil
}

func validateRaceEconomics(r game.Race) error {
	if r.MaxEntrants < 2 || r.MaxEntrants > config.MaxEntrantsLimit {
		return errs.Validation("max entrants must be between 2 and %d", config.MaxEntrantsLimit)
	}
	if r.EntryFee.IsNegative() {
		return errs.Validation("entry fee must not be negative")
	}
	if len(r.Payouts) > r.MaxEntrants {
		return errs.Validation("payout table has %d places for %d entrants", len(r.Payouts), r.MaxEntrants)
	}
	for i, p := range r.Payouts {
		if p.IsNegative() {
			return errs.Validation("payout for place %d must not be negative", i+1)
		}
	}
	if r.BoostPlaces < 0 || r.BoostPlaces > r.MaxEntrants {
		return errs.Validation("boost places must be between 0 and %d", r.MaxEntrants)
	}
	return nil
}

/* =========================
   STATUS
========================= */

// advanceStatus applies the time-driven transitions: pending opens at
// OpensAt, open closes at the entry deadline.
func advanceStatus(r game.Race, now time.Time) (game.Race, bool) {
	next := r.Status
	if next == game.RacePending && !now.Before(r.OpensAt) {
		next = game.RaceOpen
	}
	if next == game.RaceOpen && !now.Before(r.EntryDeadline) {
		next = game.RaceClosed
	}
	if next == r.Status || !game.CanTransition(r.Status, next) {
		return r, false
	}
	r.Status = next
	return r, true
}

// loadRace reads a race and persists any status transition that is due.
func (s *Service) loadRace(ctx context.Context, id string) (game.Race, error) {
	for attempt := 0; attempt < 3; attempt++ {
		r, err := s.races.GetRace(ctx, id)
		if err != nil {
			return game.Race{}, err
		}
		advanced, changed := advanceStatus(r, s.now())
		if !changed {
			return r, nil
		}
		err = s.races.UpdateRaceStatus(ctx, advanced)
		if err == nil {
			advanced.Version++
			log.Printf("🏁 Race %s: %s -> %s", id, r.Status, advanced.Status)
			return advanced, nil
		}
		if !errors.Is(err, errs.ErrConcurrentModification) {
			return game.Race{}, err
		}
	}
	return game.Race{}, errs.Wrapf(errs.ErrConcurrentModification, "race %s keeps changing", id)
}

func (s *Service) GetRace(ctx context.Context, id string) (game.Race, []game.RaceEntry, error) {
	r, err := s.loadRace(ctx, id)
	if err != nil {
		return game.Race{}, nil, err
	}
	entries, err := s.races.RaceEntries(ctx, id)
	if err != nil {
		return game.Race{}, nil, err
	}
	return r, entries, nil
}

// ListRaces lists races newest first; an empty status lists all.
func (s *Service) ListRaces(ctx context.Context, status game.RaceStatus, limit int) ([]game.Race, error) {
	races, err := s.races.ListRaces(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]game.Race, 0, len(races))
	for _, r := range races {
		r, _ = advanceStatus(r, now)
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

/* =========================
   ENTER
========================= */

// Enter registers a creature in an open race and debits the entry fee.
func (s *Service) Enter(ctx context.Context, req EnterRequest) (game.RaceEntry, error) {
	if req.RaceID == "" || req.CreatureID == "" {
		return game.RaceEntry{}, errs.Validation("raceId and creatureId are required")
	}
	if err := s.verifySigned(req.Signed, EnterMessage(req.CreatureID, req.RaceID, req.SignedAt)); err != nil {
		return game.RaceEntry{}, err
	}

	unlock, err := s.lock(ctx, "race:"+req.RaceID)
	if err != nil {
		return game.RaceEntry{}, err
	}
	defer unlock()

	r, err := s.loadRace(ctx, req.RaceID)
	if err != nil {
		return game.RaceEntry{}, err
	}
	switch r.Status {
	case game.RaceOpen:
	case game.RaceVoided:
		return game.RaceEntry{}, errs.Wrapf(errs.ErrRaceVoided, "race %s was voided", r.ID)
	default:
		return game.RaceEntry{}, errs.Wrapf(errs.ErrRaceNotOpen, "race %s is %s", r.ID, r.Status)
	}

	// Entries close for good once the seed block exists, whatever the clock says.
	latest, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return game.RaceEntry{}, err
	}
	if latest >= r.TargetBlockHeight {
		return game.RaceEntry{}, errs.Wrapf(errs.ErrRaceNotOpen, "race %s target block %d is already mined", r.ID, r.TargetBlockHeight)
	}

	c, err := s.creatures.GetCreature(ctx, req.CreatureID)
	if err != nil {
		return game.RaceEntry{}, err
	}
	owner := c.Owner
	if err := s.checkOwner(ctx, &c, req.Wallet); err != nil {
		return game.RaceEntry{}, err
	}
	engine, err := s.engineFor(c.CollectionID)
	if err != nil {
		return game.RaceEntry{}, err
	}
	now := s.now().UTC()
	refreshed, outcome := engine.Refresh(c, now)
	if refreshed.InTreatment(now) {
		return game.RaceEntry{}, errs.Wrapf(errs.ErrLocked, "creature %s is in treatment until %s",
			c.ID, refreshed.Treatment.EndsAt.Format(time.RFC3339))
	}

	entries, err := s.races.RaceEntries(ctx, r.ID)
	if err != nil {
		return game.RaceEntry{}, err
	}
	for _, e := range entries {
		if e.CreatureID == c.ID {
			return game.RaceEntry{}, errs.Wrapf(errs.ErrAlreadyEntered, "creature %s is already entered in race %s", c.ID, r.ID)
		}
	}
	if len(entries) >= r.MaxEntrants {
		return game.RaceEntry{}, errs.Wrapf(errs.ErrRaceFull, "race %s is full (%d entrants)", r.ID, r.MaxEntrants)
	}

	// Stats are frozen here, while the seed block is still unmined.
	stats := refreshed.Effective(engine.Config().StatCap)
	entry := game.RaceEntry{
		RaceID:     r.ID,
		CreatureID: c.ID,
		Wallet:     ledger.NormalizeWallet(req.Wallet),
		Index:      len(entries),
		Fee:        r.EntryFee,
		Currency:   r.Currency,
		Stats:      &stats,
		CreatedAt:  now,
	}
	if err := s.races.AddEntry(ctx, entry); err != nil {
		return game.RaceEntry{}, err
	}

	if outcome.Changed || refreshed.Owner != owner {
		if err := s.creatures.UpdateCreature(ctx, refreshed); err != nil {
			log.Printf("⚠️  Failed to persist refreshed creature %s: %v", c.ID, err)
		}
	}

	if entry.Fee.IsPositive() {
		s.record(ctx, ledger.Request{
			Wallet:    entry.Wallet,
			Type:      ledger.TxRaceEntryFee,
			Amount:    entry.Fee.Neg(),
			Currency:  entry.Currency,
			Reference: r.ID,
			Memo:      "entry " + c.ID,
		})
	}

	log.Printf("🏁 %s entered race %s at index %d", c.ID, r.ID, entry.Index)
	s.publish(EventRaceEntry, r.ID, entry)
	return entry, nil
}

/* =========================
   RESOLVE
========================= */

// Resolve computes and stores a closed race's ordering. It runs at most once
// per race. A race with fewer than two entrants is voided and refunded. When
// the target block is not mined or the oracle fails, the race stays closed
// and the call can be retried.
func (s *Service) Resolve(ctx context.Context, raceID string) (Resolution, error) {
	unlock, err := s.lock(ctx, "race:"+raceID)
	if err != nil {
		return Resolution{}, err
	}
	defer unlock()

	r, err := s.loadRace(ctx, raceID)
	if err != nil {
		return Resolution{}, err
	}
	switch r.Status {
	case game.RaceClosed:
	case game.RaceResolved:
		return Resolution{}, errs.Wrapf(errs.ErrAlreadyResolved, "race %s was resolved at %s", r.ID, formatTime(r.ResolvedAt))
	case game.RaceVoided:
		return Resolution{}, errs.Wrapf(errs.ErrRaceVoided, "race %s was voided: %s", r.ID, r.VoidReason)
	default:
		return Resolution{}, errs.Wrapf(errs.ErrRaceStillOpen, "race %s accepts entries until %s", r.ID, r.EntryDeadline.Format(time.RFC3339))
	}

	entries, err := s.races.RaceEntries(ctx, r.ID)
	if err != nil {
		return Resolution{}, err
	}
	if len(entries) < 2 {
		return s.void(ctx, r, entries)
	}

	hash, err := s.chain.BlockHash(ctx, r.TargetBlockHeight)
	if err != nil {
		log.Printf("⚠️  Race %s stays closed: %v", r.ID, err)
		return Resolution{}, err
	}

	entrants := make([]game.Entrant, len(entries))
	for i, e := range entries {
		if e.Stats == nil {
			return Resolution{}, fmt.Errorf("race %s: entry %s has no stat snapshot", r.ID, e.CreatureID)
		}
		entrants[i] = game.Entrant{ID: e.CreatureID, Index: e.Index, Stats: *e.Stats}
	}

	result, err := game.RunRace(r.ID, hash, entrants, r.Profile)
	if err != nil {
		return Resolution{}, err
	}

	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		byID[e.CreatureID] = i
	}
	for _, p := range result.Placements {
		e := &entries[byID[p.EntrantID]]
		e.Position = p.Rank
		e.BoostAwarded = p.Rank <= r.BoostPlaces
	}

	resolvedAt := s.now().UTC()
	r.Status = game.RaceResolved
	r.BlockHash = hash
	r.Ordering = result.Order()
	r.ResolvedAt = &resolvedAt
	if err := s.races.ResolveRace(ctx, r, entries); err != nil {
		if errors.Is(err, errs.ErrConcurrentModification) {
			if cur, getErr := s.races.GetRace(ctx, r.ID); getErr == nil && cur.Status == game.RaceResolved {
				return Resolution{}, errs.Wrapf(errs.ErrAlreadyResolved, "race %s was resolved concurrently", r.ID)
			}
		}
		return Resolution{}, err
	}
	r.Version++

	log.Printf("🏁 Race %s resolved at block %d: winner %s", r.ID, r.TargetBlockHeight, r.Ordering[0])
	s.settle(ctx, r, entries)
	s.publish(EventRaceResolved, r.ID, map[string]interface{}{
		"ordering":    r.Ordering,
		"blockHeight": r.TargetBlockHeight,
		"blockHash":   r.BlockHash,
		"seed":        result.Seed,
	})
	return Resolution{Race: r, Entries: entries, Result: &result}, nil
}

func (s *Service) void(ctx context.Context, r game.Race, entries []game.RaceEntry) (Resolution, error) {
	now := s.now().UTC()
	r.Status = game.RaceVoided
	r.VoidReason = fmt.Sprintf("insufficient entrants (%d)", len(entries))
	r.ResolvedAt = &now
	if err := s.races.ResolveRace(ctx, r, nil); err != nil {
		return Resolution{}, err
	}
	r.Version++

	for _, e := range entries {
		if !e.Fee.IsPositive() {
			continue
		}
		s.record(ctx, ledger.Request{
			Wallet:    e.Wallet,
			Type:      ledger.TxRefund,
			Amount:    e.Fee,
			Currency:  e.Currency,
			Reference: r.ID,
			Memo:      "refund " + e.CreatureID,
		})
	}

	log.Printf("⚠️  Race %s voided: %s", r.ID, r.VoidReason)
	s.publish(EventRaceVoided, r.ID, map[string]interface{}{"reason": r.VoidReason})
	return Resolution{Race: r, Entries: entries},
		errs.Wrapf(errs.ErrInsufficientEntrants, "race %s voided with %d entrants, fees refunded", r.ID, len(entries))
}

// settle pays out the payout table and hands boosts to the top finishers.
// Neither step can undo the stored result.
func (s *Service) settle(ctx context.Context, r game.Race, entries []game.RaceEntry) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range entries {
		if e.Position >= 1 && e.Position <= len(r.Payouts) {
			if amount := r.Payouts[e.Position-1]; amount.IsPositive() {
				s.record(ctx, ledger.Request{
					Wallet:    e.Wallet,
					Type:      ledger.TxRacePayout,
					Amount:    amount,
					Currency:  r.Currency,
					Reference: r.ID,
					Memo:      fmt.Sprintf("place %d %s", e.Position, e.CreatureID),
				})
			}
		}
		if e.BoostAwarded {
			if err := s.grantBoost(ctx, e.CreatureID); err != nil {
				log.Printf("❌ Failed to grant boost to %s for race %s: %v", e.CreatureID, r.ID, err)
			}
		}
	}
}

func (s *Service) grantBoost(ctx context.Context, creatureID string) error {
	for attempt := 0; attempt < 3; attempt++ {
		c, err := s.creatures.GetCreature(ctx, creatureID)
		if err != nil {
			return err
		}
		if c.Boosted {
			return nil
		}
		c.Boosted = true
		err = s.creatures.UpdateCreature(ctx, c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrConcurrentModification) {
			return err
		}
	}
	return errs.Wrapf(errs.ErrConcurrentModification, "creature %s keeps changing", creatureID)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown time"
	}
	return t.UTC().Format(time.RFC3339)
}

/* =========================
   VERIFY
========================= */

// VerifyRace recomputes a resolved race from its stored public inputs.
func (s *Service) VerifyRace(ctx context.Context, raceID string) (game.Report, error) {
	r, err := s.races.GetRace(ctx, raceID)
	if err != nil {
		return game.Report{}, err
	}
	entries, err := s.races.RaceEntries(ctx, raceID)
	if err != nil {
		return game.Report{}, err
	}
	in, err := VerifyInputFor(r, entries)
	if err != nil {
		return game.Report{}, err
	}
	return game.Verify(in)
}

// VerifyInputFor assembles the public verification inputs of a resolved race.
func VerifyInputFor(r game.Race, entries []game.RaceEntry) (game.VerifyInput, error) {
	if r.Status != game.RaceResolved {
		return game.VerifyInput{}, errs.Wrapf(errs.ErrStateConflict, "race %s is %s, not resolved", r.ID, r.Status)
	}
	in := game.VerifyInput{
		RaceID:        r.ID,
		BlockHeight:   r.TargetBlockHeight,
		BlockHash:     r.BlockHash,
		Profile:       r.Profile,
		RecordedOrder: r.Ordering,
		Entrants:      make([]game.Entrant, 0, len(entries)),
	}
	for _, e := range entries {
		if e.Stats == nil {
			return game.VerifyInput{}, errs.Validation("race %s: entry %s has no stat snapshot", r.ID, e.CreatureID)
		}
		in.Entrants = append(in.Entrants, game.Entrant{ID: e.CreatureID, Index: e.Index, Stats: *e.Stats})
	}
	return in, nil
}

// VerifyAll re-runs every resolved race concurrently.
func (s *Service) VerifyAll(ctx context.Context) ([]game.Report, error) {
	races, err := s.races.ListRaces(ctx, game.RaceResolved, 0)
	if err != nil {
		return nil, err
	}

	reports := make([]game.Report, len(races))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, r := range races {
		g.Go(func() error {
			report, err := s.VerifyRace(gctx, r.ID)
			if err != nil {
				return fmt.Errorf("race %s: %w", r.ID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mismatches := 0
	for _, rep := range reports {
		if !rep.Match {
			mismatches++
		}
	}
	if mismatches > 0 {
		log.Printf("❌ %d of %d resolved races failed verification", mismatches, len(reports))
	} else {
		log.Printf("✅ Verified %d resolved races", len(reports))
	}
	return reports, nil
}
