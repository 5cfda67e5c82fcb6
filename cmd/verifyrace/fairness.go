package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"racehouse/config"
	"racehouse/game"
)

// fairnessCmd runs batches of races between identical entrants under fresh
// random block hashes. Every draw slot should win about equally often.
func fairnessCmd() *cobra.Command {
	var (
		batches  int
		races    int
		entrants int
		raceType string
	)
	cmd := &cobra.Command{
		Use:   "fairness",
		Short: "Simulate races between identical entrants and report wins per draw slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if entrants < game.MinEntrants || batches <= 0 || races <= 0 {
				return fmt.Errorf("need at least %d entrants and positive batch sizes", game.MinEntrants)
			}
			gameCfg, err := config.LoadGame("")
			if err != nil {
				return err
			}
			profile, err := gameCfg.RaceProfile(raceType)
			if err != nil {
				return err
			}

			field := make([]game.Entrant, entrants)
			for i := range field {
				field[i] = game.Entrant{ID: fmt.Sprintf("slot-%d", i), Index: i, Stats: game.StatVector{50, 50, 50, 50, 50, 50}}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running %d batches of %d %s races with %d identical entrants...\n\n", batches, races, raceType, entrants)

			total := make([]int, entrants)
			for batch := 1; batch <= batches; batch++ {
				wins, err := simulateBatch(races, field, profile)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Batch %d:", batch)
				for i, w := range wins {
					total[i] += w
					fmt.Fprintf(out, " %d=%.1f%%", i, 100*float64(w)/float64(races))
				}
				fmt.Fprintln(out)
			}

			fmt.Fprintf(out, "\nOverall (expected %.1f%% each):", 100/float64(entrants))
			for i, w := range total {
				fmt.Fprintf(out, " %d=%.1f%%", i, 100*float64(w)/float64(races*batches))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&batches, "batches", 5, "number of batches")
	cmd.Flags().IntVar(&races, "races", 100, "races per batch")
	cmd.Flags().IntVar(&entrants, "entrants", 4, "entrants per race")
	cmd.Flags().StringVar(&raceType, "type", "sprint", "race type")
	return cmd
}

// simulateBatch returns how often each draw slot won.
func simulateBatch(races int, field []game.Entrant, profile game.RaceProfile) ([]int, error) {
	wins := make([]int, len(field))
	hash := make([]byte, 32)
	for i := 0; i < races; i++ {
		if _, err := rand.Read(hash); err != nil {
			return nil, err
		}
		res, err := game.RunRace(fmt.Sprintf("fairness-%d", i), "0x"+hex.EncodeToString(hash), field, profile)
		if err != nil {
			return nil, err
		}
		wins[res.Placements[0].Index]++
	}
	return wins, nil
}
