package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const deadbeefHash = "0xdeadbeef00000000000000000000000000000000000000000000000000000000"

func twoHorseInput() VerifyInput {
	return VerifyInput{
		RaceID:    "race-42",
		BlockHash: deadbeefHash,
		Profile:   RaceProfile{Type: "flat", Weights: StatVector{Speed: 1}, Luck: 10},
		Entrants: []Entrant{
			{ID: "A", Index: 0, Stats: StatVector{Speed: 50}},
			{ID: "B", Index: 1, Stats: StatVector{Speed: 50}},
		},
	}
}

func TestRunRaceKnownAnswer(t *testing.T) {
	in := twoHorseInput()
	res, err := RunRace(in.RaceID, in.BlockHash, in.Entrants, in.Profile)
	require.NoError(t, err)

	require.Equal(t, "ae99cd12b36c14a40a180b1d983fbd8504519816109ed78cbda3fb00367ebeba", res.Seed)
	require.Equal(t, []string{"B", "A"}, res.Order())
	require.InDelta(t, 58.930230205394096, res.Placements[0].Score, 1e-9)
	require.InDelta(t, 40.71445754554151, res.Placements[1].Score, 1e-9)
}

func TestVerifyMatchesSimulation(t *testing.T) {
	in := twoHorseInput()
	res, err := RunRace(in.RaceID, in.BlockHash, in.Entrants, in.Profile)
	require.NoError(t, err)

	in.RecordedOrder = res.Order()
	report, err := Verify(in)
	require.NoError(t, err)
	require.True(t, report.Match)
	require.Empty(t, report.Diff)
	require.Equal(t, in.RecordedOrder, report.Actual)
}

func TestVerifyReportsTampering(t *testing.T) {
	in := twoHorseInput()
	in.RecordedOrder = []string{"A", "B"}

	report, err := Verify(in)
	require.NoError(t, err)
	require.False(t, report.Match)
	require.ElementsMatch(t, []RankDiff{
		{EntrantID: "B", ExpectedRank: 2, ActualRank: 1},
		{EntrantID: "A", ExpectedRank: 1, ActualRank: 2},
	}, report.Diff)
}

func TestVerifyReportsMissingEntrant(t *testing.T) {
	in := twoHorseInput()
	in.RecordedOrder = []string{"B", "A", "ghost"}

	report, err := Verify(in)
	require.NoError(t, err)
	require.False(t, report.Match)
	require.Equal(t, []RankDiff{{EntrantID: "ghost", ExpectedRank: 3}}, report.Diff)
}

func TestVerifyDifferentBlockChangesSeed(t *testing.T) {
	in := twoHorseInput()
	other := in
	other.BlockHash = "0xdeadbeef00000000000000000000000000000000000000000000000000000001"

	a, err := Verify(in)
	require.NoError(t, err)
	b, err := Verify(other)
	require.NoError(t, err)
	require.NotEqual(t, a.Seed, b.Seed)
}

func TestVerifyBadHash(t *testing.T) {
	in := twoHorseInput()
	in.BlockHash = "not-a-hash"
	_, err := Verify(in)
	require.Error(t, err)
}
