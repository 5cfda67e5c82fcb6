package config

import "time"

/* =========================
   NETWORK CONFIGURATION
========================= */

const (
	// Mantle Sepolia Testnet
	MantleSepoliaRPC = "https://rpc.sepolia.mantle.xyz"
	MantleChainID    = 5003
)

/* =========================
   CHAIN ORACLE
========================= */

const (
	// Blocks that must separate the latest height from a race's target height
	// when the race is created.
	DefaultBlockSafetyMargin = 5

	OracleMaxAttempts    = 4
	OracleAttemptTimeout = 5 * time.Second
	OracleBaseBackoff    = 250 * time.Millisecond
	OracleMaxBackoff     = 4 * time.Second

	// Mined block hashes never change, so they are cached.
	BlockHashCacheSize = 4096

	// Mantle produces a block roughly every two seconds.
	EstimatedBlockTime = 2 * time.Second
)

/* =========================
   RACES
========================= */

const (
	DefaultMaxEntrants = 12
	MaxEntrantsLimit   = 64
	RaceLockTimeout    = 30 * time.Second
	MaxRaceNameLength  = 64
)

/* =========================
   LEDGER
========================= */

const (
	LedgerHistoryDefault = 50
	LedgerHistoryMax     = 500
	// Fees and payouts are written after the action commits, detached from
	// the request, within this bound.
	LedgerWriteTimeout = 10 * time.Second
)

/* =========================
   REDIS TTL CONFIGURATION
========================= */

const (
	// Lock lease. A crashed holder frees the key after this long.
	// Key: lock:{name}
	LockTTL = 15 * time.Second

	// Retry interval while waiting on a held lock
	LockRetryInterval = 25 * time.Millisecond

	// Fixed rate-limit window
	// Key: ratelimit:{client}:{window}
	RateLimitWindow = 1 * time.Second
)

/* =========================
   REDIS KEY PATTERNS
========================= */

const (
	RedisLockKey      = "lock:%s"         // lock:{name}
	RedisRateLimitKey = "ratelimit:%s:%d" // ratelimit:{client}:{unix window}
)

/* =========================
   POSTGRESQL CONFIGURATION
========================= */

const (
	// Connection pool settings
	MaxOpenConns    = 25
	MaxIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute
)

/* =========================
   API CONFIGURATION
========================= */

const (
	// Server settings
	ServerPort = "8080"
	ServerHost = "0.0.0.0"

	// CORS settings
	AllowOrigin = "*"

	// Rate limiting
	MaxRequestsPerSecond = 100
	RateLimitBurst       = 200

	RequestTimeout = 30 * time.Second
	MaxBodyBytes   = 1 << 20
)

/* =========================
   WEBSOCKET CONFIGURATION
========================= */

const (
	// WebSocket settings
	WSReadDeadline  = 60 * time.Second
	WSWriteDeadline = 10 * time.Second
	WSPingInterval  = 30 * time.Second

	// Buffer sizes
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024

	// Message size limits
	MaxMessageSize = 512 * 1024 // 512KB

	// Recent events replayed to a new subscriber
	WSFeedBacklog = 15
)

/* =========================
   SIGNED ACTIONS
========================= */

const (
	// Canonical messages the wallet signs. Arguments: creature id, action detail, unix time.
	TrainMessageFormat     = "racehouse:train:%s:%s:%d"
	TreatmentMessageFormat = "racehouse:treatment:%s:%s:%d"
	EnterMessageFormat     = "racehouse:enter:%s:%s:%d"

	// Signed messages older than this are rejected.
	SignatureMaxAge = 10 * time.Minute
)
