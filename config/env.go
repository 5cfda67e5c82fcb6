package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env is the process configuration read from the environment.
type Env struct {
	DatabaseURL       string
	RedisURL          string
	RedisPassword     string
	RedisDB           int
	RPCURL            string
	ChainID           int64
	GameConfigPath    string
	ServerAddr        string
	BlockSafetyMargin uint64
	AdminToken        string
}

// LoadEnv loads .env when present and reads the environment with defaults.
func LoadEnv() Env {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables")
	} else {
		log.Println("✅ Loaded environment variables from .env")
	}

	return Env{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0),
		RPCURL:            getString("RPC_URL", MantleSepoliaRPC),
		ChainID:           int64(getInt("CHAIN_ID", MantleChainID)),
		GameConfigPath:    os.Getenv("GAME_CONFIG"),
		ServerAddr:        getString("SERVER_ADDR", ServerHost+":"+ServerPort),
		BlockSafetyMargin: uint64(getInt("BLOCK_SAFETY_MARGIN", DefaultBlockSafetyMargin)),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
