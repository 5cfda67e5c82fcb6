package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

/* =========================
   STATS
========================= */

type Stat int

const (
	Speed Stat = iota
	Stamina
	Accel
	Agility
	Heart
	Focus

	NumStats = 6
)

var statNames = [NumStats]string{"speed", "stamina", "accel", "agility", "heart", "focus"}

func (s Stat) String() string {
	if s < 0 || int(s) >= NumStats {
		return fmt.Sprintf("stat(%d)", int(s))
	}
	return statNames[s]
}

// ParseStat maps a stat name ("speed", "heart", ...) to its Stat.
func ParseStat(name string) (Stat, error) {
	for i, n := range statNames {
		if n == name {
			return Stat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stat %q", name)
}

// StatVector holds one value per stat, indexed by Stat.
// JSON form is an object keyed by stat name.
type StatVector [NumStats]float64

func (v StatVector) Get(s Stat) float64 { return v[s] }

func (v *StatVector) Set(s Stat, value float64) { v[s] = value }

func (v StatVector) Add(o StatVector) StatVector {
	var out StatVector
	for i := range v {
		out[i] = v[i] + o[i]
	}
	return out
}

// Dot returns the weighted sum of v, accumulated in stat order.
// Each product is rounded before it is added; the explicit conversion stops
// the compiler from fusing multiply and add, which arm64 would otherwise do
// and amd64 does not.
func (v StatVector) Dot(weights StatVector) float64 {
	sum := 0.0
	for i := range v {
		sum += float64(v[i] * weights[i])
	}
	return sum
}

// Cap limits every component to max.
func (v StatVector) Cap(max float64) StatVector {
	var out StatVector
	for i := range v {
		out[i] = v[i]
		if out[i] > max {
			out[i] = max
		}
	}
	return out
}

func (v StatVector) Map() map[string]float64 {
	m := make(map[string]float64, NumStats)
	for i, n := range statNames {
		m[n] = v[i]
	}
	return m
}

// StatVectorFromMap builds a vector from a name->value map; missing stats are zero.
func StatVectorFromMap(m map[string]float64) (StatVector, error) {
	var v StatVector
	for name, value := range m {
		s, err := ParseStat(name)
		if err != nil {
			return v, err
		}
		v[s] = value
	}
	return v, nil
}

func (v StatVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

func (v *StatVector) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := StatVectorFromMap(m)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

/* =========================
   SIMULATION INPUT / OUTPUT
========================= */

// Entrant is one creature as the simulator sees it. Index is the registration
// order within the race and fixes which random draw the entrant receives.
type Entrant struct {
	ID    string     `json:"id"`
	Index int        `json:"index"`
	Stats StatVector `json:"stats"`
}

// RaceProfile is the race-type configuration a race is simulated with.
// It is copied onto the race at creation so verification never depends on
// the live configuration.
type RaceProfile struct {
	Type    string     `json:"type"`
	Weights StatVector `json:"weights"`
	Luck    float64    `json:"luck"`
}

type Placement struct {
	EntrantID    string  `json:"entrantId"`
	Index        int     `json:"index"`
	Rank         int     `json:"rank"`
	BaseScore    float64 `json:"baseScore"`
	Draw         float64 `json:"draw"`
	Perturbation float64 `json:"perturbation"`
	Score        float64 `json:"score"`
}

type Result struct {
	Seed       string      `json:"seed"`
	Placements []Placement `json:"placements"` // rank order
}

// Order returns entrant ids from first to last place.
func (r Result) Order() []string {
	out := make([]string, len(r.Placements))
	for i, p := range r.Placements {
		out[i] = p.EntrantID
	}
	return out
}

/* =========================
   RACE RECORDS
========================= */

type RaceStatus string

const (
	RacePending  RaceStatus = "pending"
	RaceOpen     RaceStatus = "open"
	RaceClosed   RaceStatus = "closed"
	RaceResolved RaceStatus = "resolved"
	RaceVoided   RaceStatus = "voided"
)

var statusRank = map[RaceStatus]int{
	RacePending:  0,
	RaceOpen:     1,
	RaceClosed:   2,
	RaceResolved: 3,
	RaceVoided:   3,
}

// CanTransition reports whether a race may move from one status to another.
// Status only ever moves forward; resolved and voided are terminal.
func CanTransition(from, to RaceStatus) bool {
	f, ok := statusRank[from]
	if !ok {
		return false
	}
	t, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == RaceResolved || from == RaceVoided {
		return false
	}
	return t > f
}

type Race struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Profile           RaceProfile       `json:"profile"`
	Status            RaceStatus        `json:"status"`
	OpensAt           time.Time         `json:"opensAt"`
	EntryDeadline     time.Time         `json:"entryDeadline"`
	TargetBlockHeight uint64            `json:"targetBlockHeight"`
	EntryFee          decimal.Decimal   `json:"entryFee"`
	Currency          string            `json:"currency"`
	MaxEntrants       int               `json:"maxEntrants"`
	Payouts           []decimal.Decimal `json:"payouts"`
	BoostPlaces       int               `json:"boostPlaces"`
	BlockHash         string            `json:"blockHash,omitempty"`
	VoidReason        string            `json:"voidReason,omitempty"`
	Ordering          []string          `json:"ordering,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	ResolvedAt        *time.Time        `json:"resolvedAt,omitempty"`
	Version           int64             `json:"version"`
}

type RaceEntry struct {
	RaceID       string          `json:"raceId"`
	CreatureID   string          `json:"creatureId"`
	Wallet       string          `json:"wallet"`
	Index        int             `json:"index"`
	Fee          decimal.Decimal `json:"fee"`
	Currency     string          `json:"currency"`
	Stats        *StatVector     `json:"stats,omitempty"` // frozen at entry
	Position     int             `json:"position,omitempty"`
	BoostAwarded bool            `json:"boostAwarded"`
	CreatedAt    time.Time       `json:"createdAt"`
}
