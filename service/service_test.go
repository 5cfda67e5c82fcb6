package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"racehouse/config"
	"racehouse/contract"
	"racehouse/db"
	"racehouse/errs"
	"racehouse/game"
	"racehouse/ledger"
	"racehouse/state"
	"racehouse/training"
)

/* =========================
   HARNESS
========================= */

type fakeChain struct {
	mu   sync.Mutex
	head uint64
	err  error
}

func (f *fakeChain) LatestHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChain) BlockHash(ctx context.Context, height uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if height > f.head {
		return "", errs.Wrapf(errs.ErrSeedUnavailable, "block %d not mined (head %d)", height, f.head)
	}
	return fmt.Sprintf("0x%064x", height*2654435761), nil
}

func (f *fakeChain) mine(height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = height
}

type recorder struct {
	mu     sync.Mutex
	events []state.FeedEvent
}

func (r *recorder) Publish(ev state.FeedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type player struct {
	key  *ecdsa.PrivateKey
	addr string
}

type harness struct {
	svc    *Service
	store  *db.Memory
	ledger *ledger.Ledger
	chain  *fakeChain
	feed   *recorder
	clock  *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gameCfg, err := config.LoadGame("")
	require.NoError(t, err)

	h := &harness{
		store: db.NewMemory(),
		chain: &fakeChain{head: 100},
		feed:  &recorder{},
		clock: &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	locks := state.NewKeyedMutex()
	h.ledger = ledger.New(ledger.NewMemoryStore(), locks).WithClock(h.clock.Now)

	h.svc, err = New(Options{
		Creatures: h.store,
		Races:     h.store,
		Ledger:    h.ledger,
		Chain:     h.chain,
		Game:      gameCfg,
		Locker:    locks,
		Notifier:  h.feed,
		Now:       h.clock.Now,
	})
	require.NoError(t, err)
	return h
}

func newPlayer(t *testing.T) player {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return player{key: key, addr: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (h *harness) sign(t *testing.T, p player, message func(int64) string) Signed {
	t.Helper()
	at := h.clock.Now().Unix()
	sig, err := contract.SignMessage(p.key, message(at))
	require.NoError(t, err)
	return Signed{Wallet: p.addr, Signature: sig, SignedAt: at}
}

func (h *harness) register(t *testing.T, p player, tokenID string) training.Creature {
	t.Helper()
	c, err := h.svc.RegisterCreature(context.Background(), RegisterRequest{
		CollectionID: "pixel-steeds",
		TokenID:      tokenID,
		Owner:        p.addr,
		Traits:       map[string]string{"breed": "thoroughbred", "coat": "bay"},
	})
	require.NoError(t, err)
	return c
}

func (h *harness) enter(t *testing.T, p player, raceID, creatureID string) (game.RaceEntry, error) {
	t.Helper()
	return h.svc.Enter(context.Background(), EnterRequest{
		RaceID:     raceID,
		CreatureID: creatureID,
		Signed:     h.sign(t, p, func(at int64) string { return EnterMessage(creatureID, raceID, at) }),
	})
}

func (h *harness) train(t *testing.T, p player, creatureID, activity string) (TrainOutcome, error) {
	t.Helper()
	return h.svc.Train(context.Background(), TrainRequest{
		CreatureID: creatureID,
		ActivityID: activity,
		Signed:     h.sign(t, p, func(at int64) string { return TrainMessage(creatureID, activity, at) }),
	})
}

func (h *harness) balance(t *testing.T, p player) decimal.Decimal {
	t.Helper()
	bal, err := h.svc.Balance(context.Background(), p.addr)
	require.NoError(t, err)
	return bal
}

func (h *harness) newRace(t *testing.T) game.Race {
	t.Helper()
	r, err := h.svc.CreateRace(context.Background(), RaceRequest{
		Name:          "Morning Sprint",
		Type:          "sprint",
		EntryDeadline: h.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return r
}

/* =========================
   RACES
========================= */

func TestRaceLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	players := []player{newPlayer(t), newPlayer(t), newPlayer(t)}
	creatures := make([]training.Creature, len(players))
	for i, p := range players {
		creatures[i] = h.register(t, p, fmt.Sprint(i+1))
	}

	r := h.newRace(t)
	require.Equal(t, game.RaceOpen, r.Status)
	// Latest 100, margin 5, one hour of two-second blocks.
	require.Equal(t, uint64(106+1800), r.TargetBlockHeight)

	for i, p := range players {
		entry, err := h.enter(t, p, r.ID, creatures[i].ID)
		require.NoError(t, err)
		require.Equal(t, i, entry.Index)
	}
	_, err := h.enter(t, players[0], r.ID, creatures[0].ID)
	require.True(t, errors.Is(err, errs.ErrAlreadyEntered))
	require.Equal(t, "-1000000", h.balance(t, players[0]).String())

	_, err = h.svc.Resolve(ctx, r.ID)
	require.True(t, errors.Is(err, errs.ErrRaceStillOpen))

	// Past the deadline, before the target block exists.
	h.clock.Advance(time.Hour)
	_, err = h.svc.Resolve(ctx, r.ID)
	require.True(t, errors.Is(err, errs.ErrSeedUnavailable))
	require.True(t, errs.Retryable(err))
	closed, _, err := h.svc.GetRace(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, game.RaceClosed, closed.Status)
	require.Empty(t, closed.Ordering)

	_, err = h.enter(t, players[0], r.ID, creatures[0].ID)
	require.True(t, errors.Is(err, errs.ErrRaceNotOpen))

	h.chain.mine(r.TargetBlockHeight)
	res, err := h.svc.Resolve(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, game.RaceResolved, res.Race.Status)
	require.Len(t, res.Race.Ordering, 3)
	require.NotEmpty(t, res.Race.BlockHash)

	// Payouts follow finishing position.
	payouts := map[int]decimal.Decimal{
		1: decimal.NewFromInt(3_000_000),
		2: decimal.NewFromInt(1_500_000),
		3: decimal.NewFromInt(500_000),
	}
	for _, e := range res.Entries {
		require.NotNil(t, e.Stats)
		require.True(t, e.BoostAwarded)
		idx := e.Index
		want := payouts[e.Position].Sub(decimal.NewFromInt(1_000_000))
		require.True(t, h.balance(t, players[idx]).Equal(want), "position %d", e.Position)

		c, err := h.store.GetCreature(ctx, e.CreatureID)
		require.NoError(t, err)
		require.True(t, c.Boosted)
	}

	// Resolution happens once.
	_, err = h.svc.Resolve(ctx, r.ID)
	require.True(t, errors.Is(err, errs.ErrAlreadyResolved))
	again, _, err := h.svc.GetRace(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, res.Race.Ordering, again.Ordering)

	report, err := h.svc.VerifyRace(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, report.Match)
	require.Equal(t, res.Race.Ordering, report.Actual)

	reports, err := h.svc.VerifyAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.True(t, reports[0].Match)

	require.Equal(t, []string{EventRaceCreated, EventRaceEntry, EventRaceEntry, EventRaceEntry, EventRaceResolved}, h.feed.types())
}

func TestResolutionUsesSnapshotNotLiveStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := newPlayer(t), newPlayer(t)
	ca, cb := h.register(t, a, "10"), h.register(t, b, "11")

	r := h.newRace(t)
	_, err := h.enter(t, a, r.ID, ca.ID)
	require.NoError(t, err)
	_, err = h.enter(t, b, r.ID, cb.ID)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)
	h.chain.mine(r.TargetBlockHeight + 10)
	_, err = h.svc.Resolve(ctx, r.ID)
	require.NoError(t, err)

	// Training after the race does not change what verification sees.
	_, err = h.train(t, a, ca.ID, "sprint_drills")
	require.NoError(t, err)
	report, err := h.svc.VerifyRace(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, report.Match)
}

func TestTrainingAfterDeadlineKeepsOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := newPlayer(t), newPlayer(t)
	ca, cb := h.register(t, a, "20"), h.register(t, b, "21")

	r := h.newRace(t)
	_, err := h.enter(t, a, r.ID, ca.ID)
	require.NoError(t, err)
	_, err = h.enter(t, b, r.ID, cb.ID)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	h.chain.mine(r.TargetBlockHeight)
	hash, err := h.chain.BlockHash(ctx, r.TargetBlockHeight)
	require.NoError(t, err)

	// Anyone can compute the result from the entry snapshots and the hash.
	_, entries, err := h.svc.GetRace(ctx, r.ID)
	require.NoError(t, err)
	entrants := make([]game.Entrant, len(entries))
	for i, e := range entries {
		require.NotNil(t, e.Stats)
		entrants[i] = game.Entrant{ID: e.CreatureID, Index: e.Index, Stats: *e.Stats}
	}
	predicted, err := game.RunRace(r.ID, hash, entrants, r.Profile)
	require.NoError(t, err)

	// The predicted loser trains before the operator resolves.
	loser := predicted.Order()[1]
	owner, loserIdx := a, 0
	if loser == cb.ID {
		owner, loserIdx = b, 1
	}
	_, err = h.train(t, owner, loser, "sprint_drills")
	require.NoError(t, err)
	view, err := h.svc.GetCreature(ctx, loser)
	require.NoError(t, err)
	require.Greater(t, view.Effective["speed"], entries[loserIdx].Stats[game.Speed])

	res, err := h.svc.Resolve(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, predicted.Order(), res.Race.Ordering)
	for i, e := range res.Entries {
		require.Equal(t, *entries[i].Stats, *e.Stats)
	}
}

func TestEnterClosesOnceSeedBlockIsMined(t *testing.T) {
	h := newHarness(t)
	a, b := newPlayer(t), newPlayer(t)
	ca, cb := h.register(t, a, "30"), h.register(t, b, "31")

	r := h.newRace(t)
	_, err := h.enter(t, a, r.ID, ca.ID)
	require.NoError(t, err)

	// Blocks came faster than estimated: the deadline is still ahead.
	h.chain.mine(r.TargetBlockHeight)
	open, _, err := h.svc.GetRace(context.Background(), r.ID)
	require.NoError(t, err)
	require.Equal(t, game.RaceOpen, open.Status)

	_, err = h.enter(t, b, r.ID, cb.ID)
	require.True(t, errors.Is(err, errs.ErrRaceNotOpen))
	require.True(t, h.balance(t, b).IsZero())

	_, entries, err := h.svc.GetRace(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestResolveVoidsAndRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := newPlayer(t)
	c := h.register(t, p, "7")

	r := h.newRace(t)
	_, err := h.enter(t, p, r.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, "-1000000", h.balance(t, p).String())

	h.clock.Advance(time.Hour)
	res, err := h.svc.Resolve(ctx, r.ID)
	require.True(t, errors.Is(err, errs.ErrInsufficientEntrants))
	require.Equal(t, errs.KindInsufficientEntrants, errs.KindOf(err))
	require.Equal(t, game.RaceVoided, res.Race.Status)
	require.True(t, h.balance(t, p).IsZero())

	history, err := h.svc.LedgerHistory(ctx, p.addr, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, ledger.TxRefund, history[1].Type)

	_, err = h.svc.Resolve(ctx, r.ID)
	require.True(t, errors.Is(err, errs.ErrRaceVoided))
	require.Contains(t, h.feed.types(), EventRaceVoided)
}

func TestResolveOracleFailureKeepsRaceClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := newPlayer(t), newPlayer(t)
	ca, cb := h.register(t, a, "1"), h.register(t, b, "2")
	r := h.newRace(t)
	_, err := h.enter(t, a, r.ID, ca.ID)
	require.NoError(t, err)
	_, err = h.enter(t, b, r.ID, cb.ID)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	h.chain.mine(r.TargetBlockHeight)
	h.chain.err = errs.Oracle(errors.New("503"), "rpc down")
	_, err = h.svc.Resolve(ctx, r.ID)
	require.Equal(t, errs.KindOracle, errs.KindOf(err))

	got, entries, err := h.svc.GetRace(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, game.RaceClosed, got.Status)
	for _, e := range entries {
		require.NotNil(t, e.Stats)
		require.Zero(t, e.Position)
	}

	h.chain.err = nil
	_, err = h.svc.Resolve(ctx, r.ID)
	require.NoError(t, err)
}

func TestEnterRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner, stranger := newPlayer(t), newPlayer(t)
	c := h.register(t, owner, "3")
	r := h.newRace(t)

	t.Run("signature from another wallet", func(t *testing.T) {
		signed := h.sign(t, stranger, func(at int64) string { return EnterMessage(c.ID, r.ID, at) })
		signed.Wallet = owner.addr
		_, err := h.svc.Enter(ctx, EnterRequest{RaceID: r.ID, CreatureID: c.ID, Signed: signed})
		require.Equal(t, errs.KindAuthorization, errs.KindOf(err))
	})

	t.Run("not the owner", func(t *testing.T) {
		_, err := h.enter(t, stranger, r.ID, c.ID)
		require.Equal(t, errs.KindAuthorization, errs.KindOf(err))
	})

	t.Run("stale signature", func(t *testing.T) {
		signed := h.sign(t, owner, func(at int64) string { return EnterMessage(c.ID, r.ID, at) })
		h.clock.Advance(config.SignatureMaxAge + time.Second)
		defer h.clock.Advance(-(config.SignatureMaxAge + time.Second))
		_, err := h.svc.Enter(ctx, EnterRequest{RaceID: r.ID, CreatureID: c.ID, Signed: signed})
		require.Equal(t, errs.KindAuthorization, errs.KindOf(err))
	})

	t.Run("bad wallet", func(t *testing.T) {
		_, err := h.svc.Enter(ctx, EnterRequest{RaceID: r.ID, CreatureID: c.ID, Signed: Signed{Wallet: "nope", Signature: "0x", SignedAt: 1}})
		require.Equal(t, errs.KindValidation, errs.KindOf(err))
	})

	t.Run("unknown race", func(t *testing.T) {
		_, err := h.enter(t, owner, "missing", c.ID)
		require.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})

	t.Run("in treatment", func(t *testing.T) {
		_, err := h.svc.StartTreatment(ctx, TreatmentRequest{
			CreatureID: c.ID,
			Signed:     h.sign(t, owner, func(at int64) string { return TreatmentMessage(c.ID, "", at) }),
		})
		require.NoError(t, err)
		_, err = h.enter(t, owner, r.ID, c.ID)
		require.True(t, errors.Is(err, errs.ErrLocked))
	})

	t.Run("race not open yet", func(t *testing.T) {
		later, err := h.svc.CreateRace(ctx, RaceRequest{
			Name:          "Evening Derby",
			Type:          "marathon",
			OpensAt:       h.clock.Now().Add(time.Hour),
			EntryDeadline: h.clock.Now().Add(2 * time.Hour),
		})
		require.NoError(t, err)
		require.Equal(t, game.RacePending, later.Status)
		other := h.register(t, owner, "4")
		_, err = h.enter(t, owner, later.ID, other.ID)
		require.True(t, errors.Is(err, errs.ErrRaceNotOpen))
	})
}

func TestEnterRaceFull(t *testing.T) {
	h := newHarness(t)
	two := 2
	r, err := h.svc.CreateRace(context.Background(), RaceRequest{
		Name:          "Match Race",
		Type:          "sprint",
		EntryDeadline: h.clock.Now().Add(time.Hour),
		MaxEntrants:   2,
		Payouts:       []decimal.Decimal{decimal.NewFromInt(10)},
		BoostPlaces:   &two,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		p := newPlayer(t)
		c := h.register(t, p, fmt.Sprint(100+i))
		_, err := h.enter(t, p, r.ID, c.ID)
		require.NoError(t, err)
	}
	p := newPlayer(t)
	c := h.register(t, p, "200")
	_, err = h.enter(t, p, r.ID, c.ID)
	require.True(t, errors.Is(err, errs.ErrRaceFull))
}

func TestCreateRaceValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	tests := []struct {
		name string
		req  RaceRequest
	}{
		{"empty name", RaceRequest{Type: "sprint", EntryDeadline: now.Add(time.Hour)}},
		{"unknown type", RaceRequest{Name: "x", Type: "hurdles", EntryDeadline: now.Add(time.Hour)}},
		{"deadline before opening", RaceRequest{Name: "x", Type: "sprint", OpensAt: now.Add(time.Hour), EntryDeadline: now}},
		{"deadline passed", RaceRequest{Name: "x", Type: "sprint", OpensAt: now.Add(-2 * time.Hour), EntryDeadline: now.Add(-time.Hour)}},
		{"target height too close", RaceRequest{Name: "x", Type: "sprint", EntryDeadline: now.Add(time.Hour), TargetHeight: 105}},
		{"target height before deadline", RaceRequest{Name: "x", Type: "sprint", EntryDeadline: now.Add(time.Hour), TargetHeight: 106}},
		{"too many payouts", RaceRequest{Name: "x", Type: "sprint", EntryDeadline: now.Add(time.Hour), MaxEntrants: 2,
			Payouts: []decimal.Decimal{decimal.NewFromInt(3), decimal.NewFromInt(2), decimal.NewFromInt(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateRace(ctx, tt.req)
			require.Equal(t, errs.KindValidation, errs.KindOf(err))
		})
	}

	// One hour of two-second blocks past latest 100 + margin 5.
	r, err := h.svc.CreateRace(ctx, RaceRequest{Name: "x", Type: "sprint", EntryDeadline: now.Add(time.Hour), TargetHeight: 1906})
	require.NoError(t, err)
	require.Equal(t, uint64(1906), r.TargetBlockHeight)
}

/* =========================
   TRAINING
========================= */

func TestTrainChargesFeeAndConsumesBoost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := newPlayer(t)
	c := h.register(t, p, "42")

	out, err := h.train(t, p, c.ID, "sprint_drills")
	require.NoError(t, err)
	require.Greater(t, out.Gains.StatDelta[game.Speed], 0.0)
	require.False(t, out.Gains.BoostUsed)
	require.Equal(t, "-1000000", h.balance(t, p).String())

	_, err = h.train(t, p, c.ID, "meditation")
	require.True(t, errors.Is(err, errs.ErrAlreadyTrainedToday))

	_, err = h.train(t, p, c.ID, "yoga")
	require.True(t, errors.Is(err, errs.ErrInvalidActivity))

	// A race boost carries into the next day's session and is spent there.
	stored, err := h.store.GetCreature(ctx, c.ID)
	require.NoError(t, err)
	stored.Boosted = true
	require.NoError(t, h.store.UpdateCreature(ctx, stored))

	h.clock.Advance(24 * time.Hour)
	out, err = h.train(t, p, c.ID, "endurance_run")
	require.NoError(t, err)
	require.True(t, out.Gains.BoostUsed)
	require.Equal(t, 1.25, out.Gains.Multiplier)
	require.False(t, out.Creature.Boosted)
	require.Equal(t, "-2000000", h.balance(t, p).String())
}

func TestTrainingFeeRecordedWhenRequestIsCancelled(t *testing.T) {
	h := newHarness(t)
	p := newPlayer(t)
	c := h.register(t, p, "43")

	// The client hangs up while the request is in flight.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := h.svc.Train(ctx, TrainRequest{
		CreatureID: c.ID,
		ActivityID: "sprint_drills",
		Signed:     h.sign(t, p, func(at int64) string { return TrainMessage(c.ID, "sprint_drills", at) }),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), out.Creature.Version)

	history, err := h.svc.LedgerHistory(context.Background(), p.addr, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, ledger.TxTrainingFee, history[0].Type)
	require.Equal(t, "-1000000", h.balance(t, p).String())
}

// conflictingStore fails the next creature update as if another writer won.
type conflictingStore struct {
	*db.Memory
	fail bool
}

func (c *conflictingStore) UpdateCreature(ctx context.Context, cr training.Creature) error {
	if c.fail {
		c.fail = false
		return errs.Wrapf(errs.ErrConcurrentModification, "creature %s changed", cr.ID)
	}
	return c.Memory.UpdateCreature(ctx, cr)
}

func TestTrainConcurrentModificationChargesNothing(t *testing.T) {
	h := newHarness(t)
	store := &conflictingStore{Memory: h.store}
	h.svc.creatures = store
	p := newPlayer(t)
	c := h.register(t, p, "5")

	store.fail = true
	_, err := h.train(t, p, c.ID, "sprint_drills")
	require.True(t, errors.Is(err, errs.ErrConcurrentModification))
	require.True(t, errs.Retryable(err))
	require.True(t, h.balance(t, p).IsZero())

	_, err = h.train(t, p, c.ID, "sprint_drills")
	require.NoError(t, err)
}

func TestTreatmentLockoutCompletesLazily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := newPlayer(t)
	c := h.register(t, p, "9")

	out, err := h.svc.StartTreatment(ctx, TreatmentRequest{
		CreatureID: c.ID,
		Kind:       "rest",
		Signed:     h.sign(t, p, func(at int64) string { return TreatmentMessage(c.ID, "rest", at) }),
	})
	require.NoError(t, err)
	require.Equal(t, h.clock.Now().Add(time.Hour), out.Treatment.EndsAt)
	require.Equal(t, "-500000", h.balance(t, p).String())

	h.clock.Advance(30 * time.Minute)
	_, err = h.train(t, p, c.ID, "sprint_drills")
	require.True(t, errors.Is(err, errs.ErrLocked))

	_, err = h.svc.StartTreatment(ctx, TreatmentRequest{
		CreatureID: c.ID,
		Signed:     h.sign(t, p, func(at int64) string { return TreatmentMessage(c.ID, "", at) }),
	})
	require.True(t, errors.Is(err, errs.ErrLocked))

	h.clock.Advance(31 * time.Minute)
	view, err := h.svc.GetCreature(ctx, c.ID)
	require.NoError(t, err)
	require.Nil(t, view.Treatment)

	stored, err := h.store.GetCreature(ctx, c.ID)
	require.NoError(t, err)
	require.Nil(t, stored.Treatment)

	_, err = h.train(t, p, c.ID, "sprint_drills")
	require.NoError(t, err)
}

func TestRegisterCreature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := newPlayer(t)

	c := h.register(t, p, "0042")
	require.Equal(t, "pixel-steeds:42", c.ID)
	require.Equal(t, ledger.NormalizeWallet(p.addr), c.Owner)

	_, err := h.svc.RegisterCreature(ctx, RegisterRequest{CollectionID: "pixel-steeds", TokenID: "42", Owner: p.addr})
	require.True(t, errors.Is(err, errs.ErrStateConflict))

	_, err = h.svc.RegisterCreature(ctx, RegisterRequest{CollectionID: "cyber-cats", TokenID: "1", Owner: p.addr})
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))

	hound, err := h.svc.RegisterCreature(ctx, RegisterRequest{CollectionID: "moon-hounds", TokenID: "MH-7", Owner: p.addr,
		Traits: map[string]string{"lineage": "saluki", "phase": "full"}})
	require.NoError(t, err)
	require.Equal(t, "moon-hounds:7", hound.ID)

	mine, err := h.svc.ListCreatures(ctx, p.addr)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.NotNil(t, mine[0].Metadata)
}

type denyOwnership struct{}

func (denyOwnership) VerifyOwnership(ctx context.Context, collectionID, tokenID, address string) error {
	return errs.Authorization("token %s/%s is not owned by %s", collectionID, tokenID, address)
}

func TestRegisterChecksOwnershipOracle(t *testing.T) {
	h := newHarness(t)
	h.svc.ownership = denyOwnership{}
	p := newPlayer(t)
	_, err := h.svc.RegisterCreature(context.Background(), RegisterRequest{CollectionID: "pixel-steeds", TokenID: "1", Owner: p.addr})
	require.True(t, errors.Is(err, errs.ErrAuthorization))
}

func TestLeaderboardIncludesOwnStanding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	players := []player{newPlayer(t), newPlayer(t), newPlayer(t)}
	for i, p := range players {
		h.ledger.Record(ctx, ledger.Request{Wallet: p.addr, Type: ledger.TxDeposit, Amount: decimal.NewFromInt(int64(10 * (i + 1)))})
	}

	top, own, err := h.svc.Leaderboard(ctx, 1, players[0].addr)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, ledger.NormalizeWallet(players[2].addr), top[0].Wallet)
	require.NotNil(t, own)
	require.Equal(t, 3, own.Rank)

	_, own, err = h.svc.Leaderboard(ctx, 1, players[2].addr)
	require.NoError(t, err)
	require.Nil(t, own)
}
