package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"racehouse/config"
	"racehouse/db"
	"racehouse/game"
	"racehouse/service"
)

var errMismatch = errors.New("recorded order does not match the recomputed order")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "verifyrace",
		Short:        "Recompute a race from its block hash and compare the recorded order",
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("quiet", false, "print only the verdict")

	root.AddCommand(fileCmd(), raceCmd(), fairnessCmd())
	return root
}

func fileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <input.json>",
		Short: "Verify from a JSON verification input (\"-\" reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			var in game.VerifyInput
			if err := json.NewDecoder(r).Decode(&in); err != nil {
				return fmt.Errorf("failed to parse input: %w", err)
			}
			return verify(cmd, in)
		},
	}
}

func raceCmd() *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "race <race-id>",
		Short: "Verify a resolved race stored in PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = config.LoadEnv().DatabaseURL
			}
			if err := db.InitPostgres(databaseURL); err != nil {
				return err
			}
			defer db.ClosePostgres()

			store := db.NewPostgres(db.PostgresPool)
			ctx := cmd.Context()
			race, err := store.GetRace(ctx, args[0])
			if err != nil {
				return err
			}
			entries, err := store.RaceEntries(ctx, race.ID)
			if err != nil {
				return err
			}
			in, err := service.VerifyInputFor(race, entries)
			if err != nil {
				return err
			}
			return verify(cmd, in)
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	return cmd
}

func verify(cmd *cobra.Command, in game.VerifyInput) error {
	report, err := game.Verify(in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	quiet, _ := cmd.Flags().GetBool("quiet")
	if quiet {
		verdict := "MATCH"
		if !report.Match {
			verdict = "MISMATCH"
		}
		fmt.Fprintf(out, "%s %s seed=%s\n", verdict, report.RaceID, report.Seed)
	} else {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	}

	if !report.Match {
		return errMismatch
	}
	return nil
}
