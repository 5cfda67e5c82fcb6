// Package service runs the game: race lifecycle, training and treatments,
// with every fee and payout mirrored to the credit ledger.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racehouse/collection"
	"racehouse/config"
	"racehouse/contract"
	"racehouse/errs"
	"racehouse/game"
	"racehouse/ledger"
	"racehouse/state"
	"racehouse/training"
)

/* =========================
   COLLABORATORS
========================= */

type CreatureStore interface {
	InsertCreature(ctx context.Context, c training.Creature) error
	GetCreature(ctx context.Context, id string) (training.Creature, error)
	// UpdateCreature writes c when the stored version equals c.Version.
	UpdateCreature(ctx context.Context, c training.Creature) error
	ListCreatures(ctx context.Context, owner string) ([]training.Creature, error)
}

type RaceStore interface {
	CreateRace(ctx context.Context, r game.Race) error
	GetRace(ctx context.Context, id string) (game.Race, error)
	ListRaces(ctx context.Context, status game.RaceStatus, limit int) ([]game.Race, error)
	UpdateRaceStatus(ctx context.Context, r game.Race) error
	// ResolveRace stores the race outcome and entry results in one write.
	ResolveRace(ctx context.Context, r game.Race, entries []game.RaceEntry) error
	AddEntry(ctx context.Context, e game.RaceEntry) error
	RaceEntries(ctx context.Context, raceID string) ([]game.RaceEntry, error)
}

// BlockSource is the chain-data oracle.
type BlockSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (string, error)
}

type Ownership interface {
	VerifyOwnership(ctx context.Context, collectionID, tokenID, address string) error
}

// Notifier receives race feed events. Publish must not block.
type Notifier interface {
	Publish(ev state.FeedEvent)
}

type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Options struct {
	Creatures CreatureStore
	Races     RaceStore
	Ledger    *ledger.Ledger
	Chain     BlockSource
	// Ownership may be nil, in which case the stored owner is trusted.
	Ownership Ownership
	Game      *config.GameConfig
	Registry  *collection.Registry
	Locker    Locker
	Notifier  Notifier

	BlockSafetyMargin uint64
	// BlockTime estimates block spacing when a race has no explicit target height.
	BlockTime time.Duration
	Now       func() time.Time
}

type Service struct {
	creatures CreatureStore
	races     RaceStore
	ledger    *ledger.Ledger
	chain     BlockSource
	ownership Ownership
	game      *config.GameConfig
	registry  *collection.Registry
	locker    Locker
	notifier  Notifier
	engines   map[string]*training.Engine

	margin    uint64
	blockTime time.Duration
	now       func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Creatures == nil || opts.Races == nil || opts.Ledger == nil || opts.Chain == nil || opts.Game == nil {
		return nil, fmt.Errorf("service: creature store, race store, ledger, chain and game config are required")
	}
	s := &Service{
		creatures: opts.Creatures,
		races:     opts.Races,
		ledger:    opts.Ledger,
		chain:     opts.Chain,
		ownership: opts.Ownership,
		game:      opts.Game,
		registry:  opts.Registry,
		locker:    opts.Locker,
		notifier:  opts.Notifier,
		engines:   make(map[string]*training.Engine),
		margin:    opts.BlockSafetyMargin,
		blockTime: opts.BlockTime,
		now:       opts.Now,
	}
	if s.registry == nil {
		reg, err := opts.Game.Registry()
		if err != nil {
			return nil, err
		}
		s.registry = reg
	}
	if s.locker == nil {
		s.locker = state.NewKeyedMutex()
	}
	if s.margin == 0 {
		s.margin = config.DefaultBlockSafetyMargin
	}
	if s.blockTime <= 0 {
		s.blockTime = config.EstimatedBlockTime
	}
	if s.now == nil {
		s.now = time.Now
	}

	for _, id := range s.registry.IDs() {
		cfg, err := opts.Game.TrainingFor(id)
		if err != nil {
			return nil, err
		}
		engine, err := training.NewEngine(cfg)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", id, err)
		}
		s.engines[id] = engine
	}
	return s, nil
}

func (s *Service) engineFor(collectionID string) (*training.Engine, error) {
	e, ok := s.engines[collectionID]
	if !ok {
		return nil, errs.NotFound("collection %q is not supported", collectionID)
	}
	return e, nil
}

func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, config.RaceLockTimeout)
	defer cancel()
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return nil, errs.WithCause(errs.ErrConcurrentModification, err)
	}
	return unlock, nil
}

// record mirrors a committed action to the ledger. The write outlives a
// cancelled request so billing follows what was stored.
func (s *Service) record(ctx context.Context, req ledger.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.LedgerWriteTimeout)
	defer cancel()
	s.ledger.Record(ctx, req)
}

func (s *Service) publish(eventType, raceID string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(state.FeedEvent{Type: eventType, RaceID: raceID, Payload: payload, Timestamp: s.now().UTC()})
}

/* =========================
   SIGNED ACTIONS
========================= */

// Signed carries the wallet signature over an action's canonical message.
type Signed struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
	// SignedAt is the unix time embedded in the signed message.
	SignedAt int64 `json:"signedAt"`
}

func TrainMessage(creatureID, activityID string, signedAt int64) string {
	return fmt.Sprintf(config.TrainMessageFormat, creatureID, activityID, signedAt)
}

func TreatmentMessage(creatureID, kind string, signedAt int64) string {
	return fmt.Sprintf(config.TreatmentMessageFormat, creatureID, kind, signedAt)
}

func EnterMessage(creatureID, raceID string, signedAt int64) string {
	return fmt.Sprintf(config.EnterMessageFormat, creatureID, raceID, signedAt)
}

func validateWallet(wallet string) error {
	if !common.IsHexAddress(wallet) {
		return errs.Validation("invalid wallet address %q", wallet)
	}
	return nil
}

func (s *Service) verifySigned(sig Signed, message string) error {
	if err := validateWallet(sig.Wallet); err != nil {
		return err
	}
	if sig.Signature == "" || sig.SignedAt == 0 {
		return errs.Validation("signature and signedAt are required")
	}
	age := s.now().Sub(time.Unix(sig.SignedAt, 0))
	if age > config.SignatureMaxAge || age < -config.SignatureMaxAge {
		return errs.Authorization("signature is older than %s or from the future", config.SignatureMaxAge)
	}
	return contract.VerifySignature(message, sig.Signature, sig.Wallet)
}

// checkOwner confirms wallet owns c. With an ownership oracle the chain is
// authoritative and a transferred token takes its new owner.
func (s *Service) checkOwner(ctx context.Context, c *training.Creature, wallet string) error {
	if s.ownership == nil {
		if !strings.EqualFold(c.Owner, wallet) {
			return errs.Authorization("wallet %s does not own creature %s", wallet, c.ID)
		}
		return nil
	}
	if err := s.ownership.VerifyOwnership(ctx, c.CollectionID, c.TokenID, wallet); err != nil {
		return err
	}
	c.Owner = ledger.NormalizeWallet(wallet)
	return nil
}
