package contract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"racehouse/config"
	"racehouse/errs"
)

// ChainReader is the part of ethclient.Client the block oracle uses.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	log.Printf("✅ Chain client connected - RPC: %s", rpcURL)
	return client, nil
}

type OracleConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	CacheSize      int
}

func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		MaxAttempts:    config.OracleMaxAttempts,
		AttemptTimeout: config.OracleAttemptTimeout,
		BaseBackoff:    config.OracleBaseBackoff,
		MaxBackoff:     config.OracleMaxBackoff,
		CacheSize:      config.BlockHashCacheSize,
	}
}

// BlockOracle reads block hashes and the chain head. Every call gets a
// per-attempt timeout and exponential backoff between attempts.
type BlockOracle struct {
	client ChainReader
	cfg    OracleConfig
	cache  *lru.Cache
	group  singleflight.Group
}

func NewBlockOracle(client ChainReader, cfg OracleConfig) (*BlockOracle, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = config.BlockHashCacheSize
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block hash cache: %w", err)
	}
	return &BlockOracle{client: client, cfg: cfg, cache: cache}, nil
}

// LatestHeight returns the current chain head.
func (o *BlockOracle) LatestHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := o.retry(ctx, "block number", func(ctx context.Context) error {
		n, err := o.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		height = n
		return nil
	})
	if err != nil {
		return 0, errs.Oracle(err, "failed to read chain head")
	}
	return height, nil
}

// BlockHash returns the 0x-prefixed hash of the block at height. It fails
// with errs.ErrSeedUnavailable while the block is not mined yet and with an
// oracle error when the node cannot be reached after retries.
func (o *BlockOracle) BlockHash(ctx context.Context, height uint64) (string, error) {
	if v, ok := o.cache.Get(height); ok {
		return v.(string), nil
	}

	v, err, _ := o.group.Do(strconv.FormatUint(height, 10), func() (interface{}, error) {
		var hash string
		err := o.retry(ctx, "header", func(ctx context.Context) error {
			header, err := o.client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
			if err != nil {
				return err
			}
			if header == nil {
				return ethereum.NotFound
			}
			hash = header.Hash().Hex()
			return nil
		})
		if errors.Is(err, ethereum.NotFound) {
			return nil, errs.Wrapf(errs.ErrSeedUnavailable, "block %d is not mined yet", height)
		}
		if err != nil {
			return nil, errs.Oracle(err, "failed to fetch block %d", height)
		}
		o.cache.Add(height, hash)
		return hash, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// retry runs fn up to MaxAttempts times. ethereum.NotFound is a definite
// answer and is returned without retrying.
func (o *BlockOracle) retry(ctx context.Context, what string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.retryDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if o.cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, ethereum.NotFound) {
			return err
		}
		lastErr = err
		log.Printf("⚠️  Chain %s attempt %d/%d failed: %v", what, attempt+1, o.cfg.MaxAttempts, err)
	}
	return fmt.Errorf("max attempts exceeded: %w", lastErr)
}

func (o *BlockOracle) retryDelay(attempt int) time.Duration {
	delay := o.cfg.BaseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
	if o.cfg.MaxBackoff > 0 && delay > o.cfg.MaxBackoff {
		delay = o.cfg.MaxBackoff
	}
	return delay
}
