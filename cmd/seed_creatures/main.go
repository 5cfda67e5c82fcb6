package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"racehouse/config"
	"racehouse/db"
	"racehouse/errs"
	"racehouse/ledger"
	"racehouse/service"
	"racehouse/state"
)

// demoChain satisfies the service without an RPC endpoint; seeding never
// creates or resolves races.
type demoChain struct{}

func (demoChain) LatestHeight(ctx context.Context) (uint64, error) { return 0, nil }

func (demoChain) BlockHash(ctx context.Context, height uint64) (string, error) {
	return "", errs.Wrapf(errs.ErrSeedUnavailable, "no chain while seeding")
}

func main() {
	env := config.LoadEnv()
	if env.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	if err := db.InitPostgres(env.DatabaseURL); err != nil {
		log.Fatalf("Failed to init postgres: %v", err)
	}
	defer db.ClosePostgres()

	gameCfg, err := config.LoadGame(env.GameConfigPath)
	if err != nil {
		log.Fatalf("Failed to load game config: %v", err)
	}

	store := db.NewPostgres(db.PostgresPool)
	locks := state.NewKeyedMutex()
	svc, err := service.New(service.Options{
		Creatures: store,
		Races:     store,
		Ledger:    ledger.New(store, locks),
		Chain:     demoChain{},
		Game:      gameCfg,
		Locker:    locks,
	})
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}

	ctx := context.Background()

	// Demo stable: four wallets across both collections
	demo := []service.RegisterRequest{
		{CollectionID: "pixel-steeds", TokenID: "1", Owner: "0x1234567890123456789012345678901234567890",
			Traits: map[string]string{"breed": "thoroughbred", "coat": "bay"}},
		{CollectionID: "pixel-steeds", TokenID: "2", Owner: "0x1234567890123456789012345678901234567890",
			Traits: map[string]string{"breed": "arabian", "coat": "grey"}},
		{CollectionID: "pixel-steeds", TokenID: "3", Owner: "0xABCDEF0123456789ABCDEF0123456789ABCDEF01",
			Traits: map[string]string{"breed": "mustang", "coat": "palomino"}},
		{CollectionID: "pixel-steeds", TokenID: "4", Owner: "0xABCDEF0123456789ABCDEF0123456789ABCDEF01",
			Traits: map[string]string{"breed": "clydesdale", "coat": "black"}},
		{CollectionID: "moon-hounds", TokenID: "MH-1", Owner: "0x9876543210987654321098765432109876543210",
			Traits: map[string]string{"lineage": "greyhound", "phase": "full"}},
		{CollectionID: "moon-hounds", TokenID: "MH-2", Owner: "0x9876543210987654321098765432109876543210",
			Traits: map[string]string{"lineage": "saluki", "phase": "crescent"}},
		{CollectionID: "moon-hounds", TokenID: "MH-3", Owner: "0xDEADBEEF000000000000000000000000DEADBEEF",
			Traits: map[string]string{"lineage": "borzoi", "phase": "half"}},
	}

	fmt.Println("Seeding demo creatures...")

	for _, req := range demo {
		c, err := svc.RegisterCreature(ctx, req)
		switch {
		case errors.Is(err, errs.ErrStateConflict):
			fmt.Printf("  %s:%s already registered\n", req.CollectionID, req.TokenID)
		case err != nil:
			log.Printf("Failed to register %s:%s: %v", req.CollectionID, req.TokenID, err)
		default:
			fmt.Printf("  %s -> %s (%s)\n", c.ID, c.Name, c.Owner[:10])
		}
	}

	fmt.Println("\nDone! Listing stable...")

	views, err := svc.ListCreatures(ctx, "")
	if err != nil {
		log.Fatalf("Failed to list creatures: %v", err)
	}

	fmt.Printf("\nCreatures (%d):\n", len(views))
	for _, v := range views {
		fmt.Printf("  %-18s %-24s speed=%.1f stamina=%.1f\n", v.ID, v.Name, v.Effective["speed"], v.Effective["stamina"])
	}
}
