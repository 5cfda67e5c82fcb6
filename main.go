package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racehouse/api"
	"racehouse/collection"
	"racehouse/config"
	"racehouse/contract"
	"racehouse/db"
	"racehouse/ledger"
	"racehouse/service"
	"racehouse/state"
	"racehouse/ws"
)

func main() {
	env := config.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gameCfg, err := config.LoadGame(env.GameConfigPath)
	if err != nil {
		log.Fatalf("❌ Failed to load game config: %v", err)
	}
	registry, err := gameCfg.Registry()
	if err != nil {
		log.Fatalf("❌ Failed to build collection registry: %v", err)
	}

	// Stores: PostgreSQL when configured, in-process otherwise
	var (
		creatures   service.CreatureStore
		races       service.RaceStore
		ledgerStore ledger.Store
	)
	if err := db.InitPostgres(env.DatabaseURL); err != nil {
		log.Printf("⚠️  Warning: PostgreSQL initialization failed: %v", err)
		log.Println("   Falling back to in-memory stores, nothing will survive a restart")
		mem := db.NewMemory()
		creatures, races, ledgerStore = mem, mem, ledger.NewMemoryStore()
	} else {
		pg := db.NewPostgres(db.PostgresPool)
		creatures, races, ledgerStore = pg, pg, pg
	}
	defer db.ClosePostgres()

	// Locks and rate limits: shared through Redis across instances
	var (
		locker  service.Locker = state.NewKeyedMutex()
		limiter api.RateLimiter
	)
	if err := db.InitRedis(env.RedisURL, env.RedisPassword, env.RedisDB); err != nil {
		log.Printf("⚠️  Warning: Redis initialization failed: %v", err)
		log.Println("   Using in-process locks and per-instance rate limits")
	} else {
		locker = db.NewRedisLocker(db.RedisClient)
		limiter = db.NewRedisRateLimiter(db.RedisClient, config.MaxRequestsPerSecond, config.RateLimitWindow)
	}
	defer db.CloseRedis()

	// Chain client
	client, err := contract.Dial(ctx, env.RPCURL)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer client.Close()
	if id, err := client.ChainID(ctx); err != nil {
		log.Printf("⚠️  Warning: could not read chain id: %v", err)
	} else if id.Int64() != env.ChainID {
		log.Printf("⚠️  Warning: RPC reports chain %d, expected %d", id.Int64(), env.ChainID)
	}

	oracle, err := contract.NewBlockOracle(client, contract.DefaultOracleConfig())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	var ownership service.Ownership
	if allContractsConfigured(registry) {
		caller, err := contract.NewERC721Caller(client)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		ownership = contract.NewOwnershipOracle(caller, registry)
	} else {
		log.Println("⚠️  Warning: not every collection has a contract address, trusting stored owners")
	}

	hub := ws.NewHub(config.WSFeedBacklog)
	go hub.Run(ctx)

	svc, err := service.New(service.Options{
		Creatures:         creatures,
		Races:             races,
		Ledger:            ledger.New(ledgerStore, locker),
		Chain:             oracle,
		Ownership:         ownership,
		Game:              gameCfg,
		Registry:          registry,
		Locker:            locker,
		Notifier:          hub,
		BlockSafetyMargin: env.BlockSafetyMargin,
	})
	if err != nil {
		log.Fatalf("❌ Failed to build service: %v", err)
	}

	server := api.NewServer(api.Options{
		Service:    svc,
		Feed:       hub.HandleWS,
		Limiter:    limiter,
		AdminToken: env.AdminToken,
		Health: map[string]api.HealthCheck{
			"postgres": db.HealthCheckPostgres,
			"redis":    db.HealthCheck,
			"chain": func(ctx context.Context) error {
				_, err := oracle.LatestHeight(ctx)
				return err
			},
		},
	})

	httpServer := &http.Server{
		Addr:              env.ServerAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🚀 Server starting on %s", env.ServerAddr)
	log.Println("")
	log.Println("📡 WebSocket Endpoint:")
	log.Println("   GET  /ws - Race feed, subscribe to 'races' or 'race:<id>'")
	log.Println("")
	log.Println("🔌 API Endpoints:")
	log.Println("   GET  /api/races - List races")
	log.Println("   POST /api/races - Schedule a race (admin)")
	log.Println("   GET  /api/races/:id - Race with entries")
	log.Println("   POST /api/races/:id/entries - Enter a creature (signed)")
	log.Println("   POST /api/races/:id/resolve - Resolve a closed race (admin)")
	log.Println("   GET  /api/races/:id/verify - Recompute a resolved race")
	log.Println("   GET  /api/creatures/:id - Creature with effective stats")
	log.Println("   POST /api/creatures/:id/train - Train (signed)")
	log.Println("   POST /api/creatures/:id/treatment - Start a treatment (signed)")
	log.Println("   GET  /api/ledger/:wallet - Balance and history")
	log.Println("   GET  /api/leaderboard - Balance leaderboard")
	log.Println("   GET  /api/health - Health check (PostgreSQL + Redis + chain)")
	log.Println("")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Server error:", err)
		}
	case <-ctx.Done():
		log.Println("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("❌ Shutdown error: %v", err)
		}
	}
}

func allContractsConfigured(registry *collection.Registry) bool {
	for _, id := range registry.IDs() {
		loader, err := registry.Get(id)
		if err != nil || !common.IsHexAddress(loader.ContractAddress()) {
			return false
		}
	}
	return true
}
