package training

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"racehouse/errs"
	"racehouse/game"
)

// Engine applies the progression rules of one Config. It holds no creature
// state; every method takes a creature value and returns the updated copy.
type Engine struct {
	cfg        Config
	curve      Curve
	activities map[string]Activity
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}
	e := &Engine{
		cfg:        cfg,
		curve:      SoftCapCurve{Ratio: cfg.SoftCapRatio, Exponent: cfg.TaperExponent},
		activities: make(map[string]Activity, len(cfg.Activities)),
	}
	if cfg.SoftCapRatio <= 0 {
		e.curve = FlatCurve{}
	}
	for id := range cfg.Activities {
		act, err := cfg.activity(id)
		if err != nil {
			return nil, err
		}
		e.activities[id] = act
	}
	return e, nil
}

// WithCurve swaps the diminishing-returns curve.
func (e *Engine) WithCurve(c Curve) *Engine {
	out := *e
	out.curve = c
	return &out
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Activity(id string) (Activity, bool) {
	act, ok := e.activities[id]
	return act, ok
}

/* =========================
   VALIDATION
========================= */

// ValidateAction checks whether c may perform activityID at now. Checks run
// in a fixed order: unknown activity, treatment lockout, once per UTC day,
// minimum condition. The first failure is returned.
func (e *Engine) ValidateAction(c Creature, activityID string, now time.Time) (Activity, error) {
	act, ok := e.activities[activityID]
	if !ok {
		return Activity{}, errs.Wrapf(errs.ErrInvalidActivity, "unknown activity %q", activityID)
	}
	if c.InTreatment(now) {
		return Activity{}, errs.Wrapf(errs.ErrLocked, "creature %s is in treatment until %s",
			c.ID, c.Treatment.EndsAt.UTC().Format(time.RFC3339))
	}
	if c.LastTrainedAt != nil && sameUTCDay(*c.LastTrainedAt, now) {
		return Activity{}, errs.Wrapf(errs.ErrAlreadyTrainedToday, "creature %s already trained on %s",
			c.ID, now.UTC().Format("2006-01-02"))
	}
	if c.Condition < e.cfg.MinTrainingCondition {
		return Activity{}, errs.Wrapf(errs.ErrInsufficientCondition, "creature %s condition %.2f below %.2f",
			c.ID, c.Condition, e.cfg.MinTrainingCondition)
	}
	return act, nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

/* =========================
   GAINS
========================= */

// ComputeTrainingGains returns the stat and fatigue deltas of act without
// mutating c. Every stat delta is clamped so base+trained stays within the cap.
func (e *Engine) ComputeTrainingGains(c Creature, act Activity, boosted bool) Gains {
	mult := 1.0
	if boosted {
		mult = e.cfg.BoostMultiplier
	}
	g := Gains{ActivityID: act.ID, Multiplier: mult, BoostUsed: boosted}

	g.StatDelta.Set(act.Primary, e.statGain(c, act.Primary, act.PrimaryGain*mult))
	if act.HasSecondary {
		g.StatDelta.Set(act.Secondary, e.statGain(c, act.Secondary, act.SecondaryGain*mult))
	}

	fatigue := clamp(c.Fatigue+act.FatigueCost, e.cfg.FatigueMin, e.cfg.FatigueMax)
	g.FatigueDelta = fatigue - c.Fatigue
	return g
}

func (e *Engine) statGain(c Creature, s game.Stat, raw float64) float64 {
	limit := e.cfg.StatCap
	current := c.Base.Get(s) + c.Trained.Get(s)
	headroom := limit - current
	if headroom <= 0 || raw <= 0 {
		return 0
	}
	return math.Min(e.curve.Scale(raw, current, limit), headroom)
}

// ApplyGains adds g to c and stamps the training time. The boost flag is
// cleared when g consumed it.
func (e *Engine) ApplyGains(c Creature, g Gains, now time.Time) Creature {
	out := c.Clone()
	for i := 0; i < game.NumStats; i++ {
		s := game.Stat(i)
		if g.StatDelta.Get(s) == 0 {
			continue
		}
		trained := out.Trained.Get(s) + g.StatDelta.Get(s)
		// Float addition can land one ulp above the cap.
		for out.Base.Get(s)+trained > e.cfg.StatCap && trained > 0 {
			trained = math.Nextafter(trained, math.Inf(-1))
		}
		out.Trained.Set(s, trained)
	}
	out.Fatigue = clamp(out.Fatigue+g.FatigueDelta, e.cfg.FatigueMin, e.cfg.FatigueMax)
	if g.BoostUsed {
		out.Boosted = false
	}
	t := now
	out.LastTrainedAt = &t
	return out
}

// Train refreshes c to now, validates the action and applies it.
func (e *Engine) Train(c Creature, activityID string, now time.Time) (Creature, Gains, error) {
	c, _ = e.Refresh(c, now)
	act, err := e.ValidateAction(c, activityID, now)
	if err != nil {
		return c, Gains{}, err
	}
	g := e.ComputeTrainingGains(c, act, c.Boosted)
	return e.ApplyGains(c, g, now), g, nil
}

/* =========================
   DECAY / RECOVERY
========================= */

// ApplyConditionDecay moves condition toward the floor exponentially.
// Condition at or below the floor is left alone. Decay over a+b equals decay
// over a followed by decay over b.
func (e *Engine) ApplyConditionDecay(c Creature, elapsed time.Duration) Creature {
	if elapsed <= 0 || c.Condition <= e.cfg.ConditionFloor {
		return c
	}
	floor := e.cfg.ConditionFloor
	c.Condition = floor + (c.Condition-floor)*math.Exp(-e.cfg.ConditionDecayPerHour*elapsed.Hours())
	c.Condition = clamp(c.Condition, e.cfg.ConditionMin, e.cfg.ConditionMax)
	return c
}

// ApplyFatigueRecovery lowers fatigue linearly, never below the minimum.
func (e *Engine) ApplyFatigueRecovery(c Creature, elapsed time.Duration) Creature {
	if elapsed <= 0 {
		return c
	}
	c.Fatigue = clamp(c.Fatigue-e.cfg.FatigueRecoveryPerHour*elapsed.Hours(), e.cfg.FatigueMin, e.cfg.FatigueMax)
	return c
}

// Refresh brings c up to now. A treatment whose window ended since
// UpdatedAt is completed at its EndsAt, with decay and recovery on either
// side, so the result does not depend on whether anyone read c in between.
// Calling it twice with the same now changes nothing the second time.
func (e *Engine) Refresh(c Creature, now time.Time) (Creature, RefreshOutcome) {
	out := c.Clone()
	var res RefreshOutcome

	if out.Treatment != nil && !now.Before(out.Treatment.EndsAt) {
		done := *out.Treatment
		out = e.advance(out, done.EndsAt)
		out.Condition = clamp(out.Condition+done.ConditionRestore, e.cfg.ConditionMin, e.cfg.ConditionMax)
		out.Fatigue = clamp(out.Fatigue-done.FatigueRestore, e.cfg.FatigueMin, e.cfg.FatigueMax)
		out.Treatment = nil
		res.Completed = &done
		res.Changed = true
	}

	if now.After(out.UpdatedAt) {
		out = e.advance(out, now)
		res.Changed = true
	}
	return out, res
}

// advance applies decay and recovery from UpdatedAt to to.
func (e *Engine) advance(c Creature, to time.Time) Creature {
	elapsed := to.Sub(c.UpdatedAt)
	if elapsed <= 0 {
		return c
	}
	c = e.ApplyConditionDecay(c, elapsed)
	c = e.ApplyFatigueRecovery(c, elapsed)
	c.UpdatedAt = to
	return c
}

/* =========================
   TREATMENT
========================= */

// StartTreatment puts c into a treatment of the given kind; an empty kind
// uses the configured default. The creature is refreshed first.
func (e *Engine) StartTreatment(c Creature, kind string, now time.Time) (Creature, Treatment, error) {
	if kind == "" {
		kind = e.cfg.DefaultTreatment
	}
	tc, ok := e.cfg.Treatments[kind]
	if !ok {
		return c, Treatment{}, errs.Validation("unknown treatment %q", kind)
	}

	c, _ = e.Refresh(c, now)
	if c.Treatment != nil {
		return c, Treatment{}, errs.Wrapf(errs.ErrLocked, "creature %s is already in treatment until %s",
			c.ID, c.Treatment.EndsAt.UTC().Format(time.RFC3339))
	}

	t := Treatment{
		ID:               uuid.NewString(),
		Kind:             kind,
		StartedAt:        now,
		EndsAt:           now.Add(tc.Duration()),
		ConditionRestore: tc.ConditionRestore,
		FatigueRestore:   tc.FatigueRestore,
	}
	c.Treatment = &t
	return c, t, nil
}

// NewCreature initialises progression state for a freshly registered token.
func (e *Engine) NewCreature(id, collectionID, tokenID, owner string, base game.StatVector, now time.Time) Creature {
	return Creature{
		ID:           id,
		CollectionID: collectionID,
		TokenID:      tokenID,
		Owner:        owner,
		Base:         base.Cap(e.cfg.StatCap),
		Fatigue:      e.cfg.FatigueMin,
		Condition:    e.cfg.ConditionMax,
		UpdatedAt:    now,
		CreatedAt:    now,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
