package game

import (
	"racehouse/crypto"
	"racehouse/errs"
)

// RunRace derives the race seed from the block hash and simulates the race.
// This is the full path from public inputs to ranking; resolution and
// verification both go through it.
func RunRace(raceID, blockHash string, entrants []Entrant, profile RaceProfile) (Result, error) {
	seed, err := crypto.SeedFromHex(blockHash, raceID)
	if err != nil {
		return Result{}, errs.Validation("race %s: %v", raceID, err)
	}
	return Simulate(seed[:], entrants, profile)
}

// VerifyInput is everything needed to re-run a race. All of it is public once
// the race has resolved.
type VerifyInput struct {
	RaceID        string      `json:"raceId"`
	BlockHeight   uint64      `json:"blockHeight,omitempty"`
	BlockHash     string      `json:"blockHash"`
	Profile       RaceProfile `json:"profile"`
	Entrants      []Entrant   `json:"entrants"`
	RecordedOrder []string    `json:"recordedOrder"`
}

type RankDiff struct {
	EntrantID    string `json:"entrantId"`
	ExpectedRank int    `json:"expectedRank"` // 0 when missing from the recorded order
	ActualRank   int    `json:"actualRank"`   // 0 when missing from the recomputed order
}

type Report struct {
	RaceID     string      `json:"raceId"`
	BlockHash  string      `json:"blockHash"`
	Seed       string      `json:"seed"`
	Match      bool        `json:"match"`
	Expected   []string    `json:"expected"`
	Actual     []string    `json:"actual"`
	Diff       []RankDiff  `json:"diff,omitempty"`
	Placements []Placement `json:"placements"`
}

// Verify recomputes a race from its public inputs and compares the result with
// the recorded order. It touches nothing outside its arguments.
func Verify(in VerifyInput) (Report, error) {
	result, err := RunRace(in.RaceID, in.BlockHash, in.Entrants, in.Profile)
	if err != nil {
		return Report{}, err
	}

	actual := result.Order()
	report := Report{
		RaceID:     in.RaceID,
		BlockHash:  in.BlockHash,
		Seed:       result.Seed,
		Expected:   append([]string(nil), in.RecordedOrder...),
		Actual:     actual,
		Placements: result.Placements,
	}
	report.Diff = diffOrders(in.RecordedOrder, actual)
	report.Match = len(report.Diff) == 0
	return report, nil
}

func diffOrders(expected, actual []string) []RankDiff {
	expRank := make(map[string]int, len(expected))
	for i, id := range expected {
		expRank[id] = i + 1
	}
	actRank := make(map[string]int, len(actual))
	for i, id := range actual {
		actRank[id] = i + 1
	}

	var diff []RankDiff
	for _, id := range actual {
		if expRank[id] != actRank[id] {
			diff = append(diff, RankDiff{EntrantID: id, ExpectedRank: expRank[id], ActualRank: actRank[id]})
		}
	}
	for _, id := range expected {
		if _, ok := actRank[id]; !ok {
			diff = append(diff, RankDiff{EntrantID: id, ExpectedRank: expRank[id]})
		}
	}
	return diff
}
