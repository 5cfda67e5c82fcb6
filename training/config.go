package training

import (
	"fmt"
	"time"

	"racehouse/game"
)

type ActivityConfig struct {
	Primary       string  `toml:"primary"`
	Secondary     string  `toml:"secondary"`
	PrimaryGain   float64 `toml:"primary_gain"`
	SecondaryGain float64 `toml:"secondary_gain"`
	FatigueCost   float64 `toml:"fatigue_cost"`
}

type TreatmentConfig struct {
	DurationMinutes  int     `toml:"duration_minutes"`
	ConditionRestore float64 `toml:"condition_restore"`
	FatigueRestore   float64 `toml:"fatigue_restore"`
}

// Config is the tuning of the progression system. Decoded from the [training]
// table of the game config, with per-collection overrides merged on top.
type Config struct {
	StatCap float64 `toml:"stat_cap"`

	FatigueMin             float64 `toml:"fatigue_min"`
	FatigueMax             float64 `toml:"fatigue_max"`
	FatigueRecoveryPerHour float64 `toml:"fatigue_recovery_per_hour"`

	ConditionMin          float64 `toml:"condition_min"`
	ConditionMax          float64 `toml:"condition_max"`
	ConditionFloor        float64 `toml:"condition_floor"`
	ConditionDecayPerHour float64 `toml:"condition_decay_per_hour"`
	MinTrainingCondition  float64 `toml:"min_training_condition"`

	BoostMultiplier float64 `toml:"boost_multiplier"`

	SoftCapRatio  float64 `toml:"soft_cap_ratio"`
	TaperExponent float64 `toml:"taper_exponent"`

	DefaultTreatment string                     `toml:"default_treatment"`
	Activities       map[string]ActivityConfig  `toml:"activities"`
	Treatments       map[string]TreatmentConfig `toml:"treatments"`
}

// Validate checks ranges and that every activity names real stats.
func (c Config) Validate() error {
	if c.StatCap <= 0 {
		return fmt.Errorf("stat_cap must be positive")
	}
	if c.FatigueMin > c.FatigueMax {
		return fmt.Errorf("fatigue_min above fatigue_max")
	}
	if c.ConditionMin > c.ConditionMax {
		return fmt.Errorf("condition_min above condition_max")
	}
	if c.ConditionFloor < c.ConditionMin || c.ConditionFloor > c.ConditionMax {
		return fmt.Errorf("condition_floor outside [condition_min, condition_max]")
	}
	if c.ConditionDecayPerHour < 0 || c.FatigueRecoveryPerHour < 0 {
		return fmt.Errorf("decay and recovery rates must not be negative")
	}
	if c.BoostMultiplier < 1 {
		return fmt.Errorf("boost_multiplier must be at least 1")
	}
	if len(c.Activities) == 0 {
		return fmt.Errorf("no training activities configured")
	}
	for id := range c.Activities {
		if _, err := c.activity(id); err != nil {
			return err
		}
	}
	for id, t := range c.Treatments {
		if t.DurationMinutes <= 0 {
			return fmt.Errorf("treatment %s: duration_minutes must be positive", id)
		}
	}
	if c.DefaultTreatment != "" {
		if _, ok := c.Treatments[c.DefaultTreatment]; !ok {
			return fmt.Errorf("default_treatment %q is not configured", c.DefaultTreatment)
		}
	}
	return nil
}

func (c Config) activity(id string) (Activity, error) {
	ac, ok := c.Activities[id]
	if !ok {
		return Activity{}, fmt.Errorf("activity %q not configured", id)
	}
	primary, err := game.ParseStat(ac.Primary)
	if err != nil {
		return Activity{}, fmt.Errorf("activity %s: %w", id, err)
	}
	act := Activity{
		ID:          id,
		Primary:     primary,
		PrimaryGain: ac.PrimaryGain,
		FatigueCost: ac.FatigueCost,
	}
	if ac.Secondary != "" {
		secondary, err := game.ParseStat(ac.Secondary)
		if err != nil {
			return Activity{}, fmt.Errorf("activity %s: %w", id, err)
		}
		if secondary == primary {
			return Activity{}, fmt.Errorf("activity %s: secondary stat repeats primary", id)
		}
		act.Secondary = secondary
		act.HasSecondary = true
		act.SecondaryGain = ac.SecondaryGain
	}
	if act.PrimaryGain < 0 || act.SecondaryGain < 0 || act.FatigueCost < 0 {
		return Activity{}, fmt.Errorf("activity %s: gains and fatigue cost must not be negative", id)
	}
	return act, nil
}

func (t TreatmentConfig) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// DefaultConfig is the built-in tuning used when no game config file is given.
func DefaultConfig() Config {
	return Config{
		StatCap:                80,
		FatigueMin:             0,
		FatigueMax:             100,
		FatigueRecoveryPerHour: 2,
		ConditionMin:           0,
		ConditionMax:           100,
		ConditionFloor:         20,
		ConditionDecayPerHour:  0.01,
		MinTrainingCondition:   10,
		BoostMultiplier:        1.25,
		SoftCapRatio:           0.95,
		TaperExponent:          2,
		DefaultTreatment:       "rest",
		Activities: map[string]ActivityConfig{
			"sprint_drills":  {Primary: "speed", Secondary: "accel", PrimaryGain: 5, SecondaryGain: 2, FatigueCost: 15},
			"endurance_run":  {Primary: "stamina", Secondary: "heart", PrimaryGain: 5, SecondaryGain: 2, FatigueCost: 20},
			"agility_course": {Primary: "agility", Secondary: "focus", PrimaryGain: 4, SecondaryGain: 2, FatigueCost: 12},
			"meditation":     {Primary: "focus", PrimaryGain: 3, FatigueCost: 5},
		},
		Treatments: map[string]TreatmentConfig{
			"rest": {DurationMinutes: 60, ConditionRestore: 25, FatigueRestore: 40},
			"spa":  {DurationMinutes: 240, ConditionRestore: 60, FatigueRestore: 100},
		},
	}
}
