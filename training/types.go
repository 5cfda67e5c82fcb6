package training

import (
	"time"

	"racehouse/game"
)

// Creature is a registered token and its progression state.
type Creature struct {
	ID           string          `json:"id"`
	CollectionID string          `json:"collectionId"`
	TokenID      string          `json:"tokenId"`
	Name         string          `json:"name"`
	Owner        string          `json:"owner"`
	Base         game.StatVector `json:"base"`
	Trained      game.StatVector `json:"trained"`
	Fatigue      float64         `json:"fatigue"`
	Condition    float64         `json:"condition"`
	// UpdatedAt is the instant fatigue and condition were last brought up to date.
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastTrainedAt *time.Time `json:"lastTrainedAt,omitempty"`
	Boosted       bool       `json:"boosted"`
	Treatment     *Treatment `json:"treatment,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Version       int64      `json:"version"`
}

// Effective returns base+trained with every stat limited to cap.
func (c Creature) Effective(cap float64) game.StatVector {
	return c.Base.Add(c.Trained).Cap(cap)
}

// InTreatment reports whether the creature is locked out at now.
func (c Creature) InTreatment(now time.Time) bool {
	return c.Treatment != nil && now.Before(c.Treatment.EndsAt)
}

// Clone returns a copy that shares no pointers with c.
func (c Creature) Clone() Creature {
	out := c
	if c.LastTrainedAt != nil {
		t := *c.LastTrainedAt
		out.LastTrainedAt = &t
	}
	if c.Treatment != nil {
		tr := *c.Treatment
		out.Treatment = &tr
	}
	return out
}

// Treatment is an active lockout window and the effects applied when it ends.
type Treatment struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	StartedAt        time.Time `json:"startedAt"`
	EndsAt           time.Time `json:"endsAt"`
	ConditionRestore float64   `json:"conditionRestore"`
	FatigueRestore   float64   `json:"fatigueRestore"`
}

// Activity is a training action resolved against the stat table.
type Activity struct {
	ID            string
	Primary       game.Stat
	Secondary     game.Stat
	HasSecondary  bool
	PrimaryGain   float64
	SecondaryGain float64
	FatigueCost   float64
}

// Gains is the outcome of one training action.
type Gains struct {
	ActivityID   string          `json:"activityId"`
	StatDelta    game.StatVector `json:"statDelta"`
	FatigueDelta float64         `json:"fatigueDelta"`
	Multiplier   float64         `json:"multiplier"`
	BoostUsed    bool            `json:"boostUsed"`
}

// RefreshOutcome reports what a lazy refresh changed.
type RefreshOutcome struct {
	Changed   bool
	Completed *Treatment
}
