package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"racehouse/collection"
	"racehouse/errs"
	"racehouse/ledger"
	"racehouse/training"
)

type RegisterRequest struct {
	CollectionID string            `json:"collectionId"`
	TokenID      string            `json:"tokenId"`
	Owner        string            `json:"owner"`
	Traits       map[string]string `json:"traits"`
}

type TrainRequest struct {
	CreatureID string `json:"creatureId"`
	ActivityID string `json:"activityId"`
	Signed
}

type TreatmentRequest struct {
	CreatureID string `json:"creatureId"`
	Kind       string `json:"kind"`
	Signed
}

type TrainOutcome struct {
	Creature training.Creature `json:"creature"`
	Gains    training.Gains    `json:"gains"`
}

type TreatmentOutcome struct {
	Creature  training.Creature  `json:"creature"`
	Treatment training.Treatment `json:"treatment"`
}

// CreatureView is a creature together with its token metadata and the
// stats it would race with right now.
type CreatureView struct {
	training.Creature
	Effective map[string]float64  `json:"effective"`
	Metadata  *collection.Metadata `json:"metadata,omitempty"`
}

// CreatureID is the canonical id of a token: collection id and the
// contract's numeric token id.
func (s *Service) CreatureID(collectionID, tokenID string) (string, error) {
	loader, err := s.registry.Get(collectionID)
	if err != nil {
		return "", err
	}
	onChain, err := loader.OnChainID(tokenID)
	if err != nil {
		return "", err
	}
	return collectionID + ":" + onChain.String(), nil
}

/* =========================
   REGISTRATION
========================= */

// RegisterCreature loads a token through its collection and stores a fresh
// creature for it.
func (s *Service) RegisterCreature(ctx context.Context, req RegisterRequest) (training.Creature, error) {
	if err := validateWallet(req.Owner); err != nil {
		return training.Creature{}, err
	}
	base, meta, err := s.registry.Load(req.CollectionID, req.TokenID, req.Traits)
	if err != nil {
		return training.Creature{}, err
	}
	id, err := s.CreatureID(req.CollectionID, req.TokenID)
	if err != nil {
		return training.Creature{}, err
	}
	if s.ownership != nil {
		if err := s.ownership.VerifyOwnership(ctx, req.CollectionID, req.TokenID, req.Owner); err != nil {
			return training.Creature{}, err
		}
	}
	engine, err := s.engineFor(req.CollectionID)
	if err != nil {
		return training.Creature{}, err
	}

	c := engine.NewCreature(id, req.CollectionID, req.TokenID, ledger.NormalizeWallet(req.Owner), base, s.now().UTC())
	c.Name = meta.Name
	if err := s.creatures.InsertCreature(ctx, c); err != nil {
		return training.Creature{}, err
	}
	log.Printf("✅ Registered %s (%s) for %s", c.ID, c.Name, c.Owner)
	return c, nil
}

/* =========================
   READS
========================= */

// GetCreature returns the creature brought up to date. Completed treatments
// and decay are persisted as a side effect.
func (s *Service) GetCreature(ctx context.Context, id string) (CreatureView, error) {
	c, err := s.creatures.GetCreature(ctx, id)
	if err != nil {
		return CreatureView{}, err
	}
	engine, err := s.engineFor(c.CollectionID)
	if err != nil {
		return CreatureView{}, err
	}
	refreshed, outcome := engine.Refresh(c, s.now().UTC())
	if outcome.Changed {
		if err := s.creatures.UpdateCreature(ctx, refreshed); err != nil {
			if !errors.Is(err, errs.ErrConcurrentModification) {
				return CreatureView{}, err
			}
			// Someone else wrote first; what we return is still current.
		} else {
			refreshed.Version++
		}
	}
	if outcome.Completed != nil {
		log.Printf("🏋️ %s finished %s treatment", refreshed.ID, outcome.Completed.Kind)
	}
	return s.view(refreshed, engine), nil
}

func (s *Service) view(c training.Creature, engine *training.Engine) CreatureView {
	v := CreatureView{Creature: c, Effective: c.Effective(engine.Config().StatCap).Map()}
	if loader, err := s.registry.Get(c.CollectionID); err == nil {
		meta := loader.Metadata(c.TokenID, nil)
		v.Metadata = &meta
	}
	return v
}

func (s *Service) ListCreatures(ctx context.Context, owner string) ([]CreatureView, error) {
	if owner != "" {
		owner = ledger.NormalizeWallet(owner)
	}
	list, err := s.creatures.ListCreatures(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := make([]CreatureView, 0, len(list))
	for _, c := range list {
		engine, err := s.engineFor(c.CollectionID)
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", c.ID, err)
			continue
		}
		refreshed, _ := engine.Refresh(c, now)
		out = append(out, s.view(refreshed, engine))
	}
	return out, nil
}

/* =========================
   TRAINING
========================= */

// Train runs one training session. The creature write is version checked;
// a concurrent change fails with ConcurrentModification and nothing is charged.
func (s *Service) Train(ctx context.Context, req TrainRequest) (TrainOutcome, error) {
	if req.CreatureID == "" || req.ActivityID == "" {
		return TrainOutcome{}, errs.Validation("creatureId and activityId are required")
	}
	if err := s.verifySigned(req.Signed, TrainMessage(req.CreatureID, req.ActivityID, req.SignedAt)); err != nil {
		return TrainOutcome{}, err
	}

	c, engine, err := s.ownedCreature(ctx, req.CreatureID, req.Wallet)
	if err != nil {
		return TrainOutcome{}, err
	}
	trained, gains, err := engine.Train(c, req.ActivityID, s.now().UTC())
	if err != nil {
		return TrainOutcome{}, err
	}
	if err := s.creatures.UpdateCreature(ctx, trained); err != nil {
		return TrainOutcome{}, err
	}
	trained.Version++

	s.charge(ctx, req.Wallet, ledger.TxTrainingFee, s.game.Fees.TrainingFee, trained.ID, "training "+req.ActivityID)
	log.Printf("🏋️ %s trained %s (x%.2f, boost %t)", trained.ID, req.ActivityID, gains.Multiplier, gains.BoostUsed)
	return TrainOutcome{Creature: trained, Gains: gains}, nil
}

// StartTreatment locks the creature into a treatment window.
func (s *Service) StartTreatment(ctx context.Context, req TreatmentRequest) (TreatmentOutcome, error) {
	if req.CreatureID == "" {
		return TreatmentOutcome{}, errs.Validation("creatureId is required")
	}
	if err := s.verifySigned(req.Signed, TreatmentMessage(req.CreatureID, req.Kind, req.SignedAt)); err != nil {
		return TreatmentOutcome{}, err
	}

	c, engine, err := s.ownedCreature(ctx, req.CreatureID, req.Wallet)
	if err != nil {
		return TreatmentOutcome{}, err
	}
	treated, t, err := engine.StartTreatment(c, req.Kind, s.now().UTC())
	if err != nil {
		return TreatmentOutcome{}, err
	}
	if err := s.creatures.UpdateCreature(ctx, treated); err != nil {
		return TreatmentOutcome{}, err
	}
	treated.Version++

	s.charge(ctx, req.Wallet, ledger.TxTrainingFee, s.game.Fees.TreatmentFee, treated.ID, "treatment "+t.Kind)
	log.Printf("🏋️ %s in %s treatment until %s", treated.ID, t.Kind, t.EndsAt.Format("15:04:05"))
	return TreatmentOutcome{Creature: treated, Treatment: t}, nil
}

func (s *Service) ownedCreature(ctx context.Context, id, wallet string) (training.Creature, *training.Engine, error) {
	c, err := s.creatures.GetCreature(ctx, id)
	if err != nil {
		return training.Creature{}, nil, err
	}
	if err := s.checkOwner(ctx, &c, wallet); err != nil {
		return training.Creature{}, nil, err
	}
	engine, err := s.engineFor(c.CollectionID)
	if err != nil {
		return training.Creature{}, nil, err
	}
	return c, engine, nil
}

// charge debits a fee. The ledger never fails the action.
func (s *Service) charge(ctx context.Context, wallet string, txType ledger.TxType, fee decimal.Decimal, ref, memo string) {
	if !fee.IsPositive() {
		return
	}
	s.record(ctx, ledger.Request{
		Wallet:    wallet,
		Type:      txType,
		Amount:    fee.Neg(),
		Currency:  s.game.Fees.Currency,
		Reference: ref,
		Memo:      strings.TrimSpace(memo),
	})
}

/* =========================
   WALLETS
========================= */

func (s *Service) Balance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if err := validateWallet(wallet); err != nil {
		return decimal.Zero, err
	}
	return s.ledger.Balance(ctx, wallet)
}

func (s *Service) LedgerHistory(ctx context.Context, wallet string, limit int) ([]ledger.Entry, error) {
	if err := validateWallet(wallet); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, wallet, limit)
}

// Leaderboard returns the top wallets by balance and, when wallet is set and
// outside the top, that wallet's own standing.
func (s *Service) Leaderboard(ctx context.Context, limit int, wallet string) ([]ledger.Standing, *ledger.Standing, error) {
	top, err := s.ledger.Leaderboard(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	if wallet == "" {
		return top, nil, nil
	}
	for _, st := range top {
		if st.Wallet == ledger.NormalizeWallet(wallet) {
			return top, nil, nil
		}
	}
	own, err := s.ledger.Rank(ctx, wallet)
	if err != nil {
		log.Printf("⚠️  Failed to get rank for %s: %v", wallet, err)
		return top, nil, nil
	}
	return top, own, nil
}
