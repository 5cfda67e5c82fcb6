// Package ledger records fees and payouts as an append-only, per-wallet
// chain of entries with running balances.
//
// The ledger is advisory. Record never fails the caller: a training session or
// race entry goes ahead even when its fee could not be written, and the
// failure is only logged.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"lukechampine.com/blake3"

	"racehouse/errs"
)

type TxType string

const (
	TxTrainingFee  TxType = "training_fee"
	TxRaceEntryFee TxType = "race_entry_fee"
	TxRacePayout   TxType = "race_payout"
	TxSeasonPayout TxType = "season_payout"
	TxDeposit      TxType = "deposit"
	TxWithdrawal   TxType = "withdrawal"
	TxAdminCredit  TxType = "admin_credit"
	TxRefund       TxType = "race_refund"
)

const DefaultCurrency = "CREDIT"

func (t TxType) Valid() bool {
	switch t {
	case TxTrainingFee, TxRaceEntryFee, TxRacePayout, TxSeasonPayout,
		TxDeposit, TxWithdrawal, TxAdminCredit, TxRefund:
		return true
	}
	return false
}

type Entry struct {
	ID           string          `json:"id"`
	Wallet       string          `json:"wallet"`
	Type         TxType          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Sequence     int64           `json:"sequence"`
	Currency     string          `json:"currency"`
	Reference    string          `json:"reference,omitempty"`
	Memo         string          `json:"memo,omitempty"`
	PrevHash     string          `json:"prevHash"`
	Hash         string          `json:"hash"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Request describes an entry to append. Amount is signed: debits are negative.
type Request struct {
	Wallet    string
	Type      TxType
	Amount    decimal.Decimal
	Currency  string
	Reference string
	Memo      string
}

// Store persists entries. Append must reject an entry whose sequence is not
// exactly one past the wallet's last entry with errs.ErrConcurrentModification.
type Store interface {
	LastEntry(ctx context.Context, wallet string) (*Entry, error)
	AppendEntry(ctx context.Context, e Entry) error
	Entries(ctx context.Context, wallet string, limit int) ([]Entry, error)
	// Standings ranks wallets by current balance, highest first.
	Standings(ctx context.Context, limit int) ([]Standing, error)
}

// Standing is a wallet's position on the balance leaderboard.
type Standing struct {
	Rank    int             `json:"rank"`
	Wallet  string          `json:"wallet"`
	Balance decimal.Decimal `json:"balance"`
}

// Locker serializes appends for one wallet.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Ledger struct {
	store       Store
	locker      Locker
	maxAttempts int
	now         func() time.Time
}

// New returns a ledger over store. locker may be nil, in which case appends
// rely on the store's sequence check alone.
func New(store Store, locker Locker) *Ledger {
	return &Ledger{
		store:       store,
		locker:      locker,
		maxAttempts: 5,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func NormalizeWallet(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

/* =========================
   RECORD
========================= */

// Record appends req to the wallet's chain. It returns the stored entry, or
// nil when the entry could not be written; it never returns an error.
func (l *Ledger) Record(ctx context.Context, req Request) *Entry {
	req.Wallet = NormalizeWallet(req.Wallet)
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if err := validate(req); err != nil {
		log.Printf("❌ Ledger rejected %s for %s: %v", req.Type, req.Wallet, err)
		return nil
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		entry, err := l.appendOnce(ctx, req)
		if err == nil {
			log.Printf("💰 Ledger %s %s %s %s -> balance %s (seq %d)",
				entry.Wallet, entry.Type, entry.Amount.String(), entry.Currency, entry.BalanceAfter.String(), entry.Sequence)
			return &entry
		}
		if !errors.Is(err, errs.ErrConcurrentModification) {
			log.Printf("❌ Failed to record ledger %s for %s: %v", req.Type, req.Wallet, err)
			return nil
		}
		log.Printf("⚠️  Ledger sequence conflict for %s (attempt %d/%d)", req.Wallet, attempt, l.maxAttempts)
	}
	log.Printf("❌ Gave up recording ledger %s for %s after %d attempts", req.Type, req.Wallet, l.maxAttempts)
	return nil
}

func validate(req Request) error {
	if req.Wallet == "" {
		return errs.Validation("wallet is required")
	}
	if !req.Type.Valid() {
		return errs.Validation("unknown tx type %q", req.Type)
	}
	if req.Amount.IsZero() {
		return errs.Validation("amount must not be zero")
	}
	return nil
}

func (l *Ledger) appendOnce(ctx context.Context, req Request) (Entry, error) {
	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, "ledger:"+req.Wallet)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to lock wallet: %w", err)
		}
		defer unlock()
	}

	last, err := l.store.LastEntry(ctx, req.Wallet)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read last entry: %w", err)
	}

	entry := Entry{
		ID:           uuid.NewString(),
		Wallet:       req.Wallet,
		Type:         req.Type,
		Amount:       req.Amount,
		BalanceAfter: req.Amount,
		Sequence:     1,
		Currency:     req.Currency,
		Reference:    req.Reference,
		Memo:         req.Memo,
		CreatedAt:    l.now().UTC().Truncate(time.Microsecond),
	}
	if last != nil {
		entry.Sequence = last.Sequence + 1
		entry.BalanceAfter = last.BalanceAfter.Add(req.Amount)
		entry.PrevHash = last.Hash
	}
	entry.Hash = HashEntry(entry)

	if err := l.store.AppendEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

/* =========================
   READS
========================= */

// Balance is the running balance after the wallet's last entry, or zero.
func (l *Ledger) Balance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	last, err := l.store.LastEntry(ctx, NormalizeWallet(wallet))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.BalanceAfter, nil
}

// History returns the wallet's entries in sequence order. limit <= 0 means all;
// otherwise the most recent limit entries.
func (l *Ledger) History(ctx context.Context, wallet string, limit int) ([]Entry, error) {
	entries, err := l.store.Entries(ctx, NormalizeWallet(wallet), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger history: %w", err)
	}
	return entries, nil
}

// Leaderboard returns the top limit wallets by balance.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	standings, err := l.store.Standings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return standings, nil
}

// Rank returns the wallet's standing, or nil when it has no entries.
func (l *Ledger) Rank(ctx context.Context, wallet string) (*Standing, error) {
	wallet = NormalizeWallet(wallet)
	standings, err := l.store.Standings(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	for i := range standings {
		if standings[i].Wallet == wallet {
			return &standings[i], nil
		}
	}
	return nil, nil
}

// VerifyChain checks that the wallet's entries form an unbroken chain:
// consecutive sequences, running balance equal to the prefix sum of amounts,
// and each hash covering the entry and its predecessor's hash.
func (l *Ledger) VerifyChain(ctx context.Context, wallet string) error {
	entries, err := l.History(ctx, wallet, 0)
	if err != nil {
		return err
	}
	return CheckChain(entries)
}

func CheckChain(entries []Entry) error {
	balance := decimal.Zero
	prevHash := ""
	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			return errs.Validation("entry %s: sequence %d, want %d", e.ID, e.Sequence, i+1)
		}
		balance = balance.Add(e.Amount)
		if !e.BalanceAfter.Equal(balance) {
			return errs.Validation("entry %s: balance %s, prefix sum %s", e.ID, e.BalanceAfter, balance)
		}
		if e.PrevHash != prevHash {
			return errs.Validation("entry %s: previous hash does not match entry %d", e.ID, i)
		}
		if want := HashEntry(e); e.Hash != want {
			return errs.Validation("entry %s: hash mismatch", e.ID)
		}
		prevHash = e.Hash
	}
	return nil
}

// HashEntry is BLAKE3 over the entry's canonical fields and PrevHash.
func HashEntry(e Entry) string {
	var b strings.Builder
	for _, field := range []string{
		e.PrevHash,
		e.ID,
		e.Wallet,
		string(e.Type),
		e.Amount.String(),
		e.BalanceAfter.String(),
		strconv.FormatInt(e.Sequence, 10),
		e.Currency,
		e.Reference,
		e.Memo,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	} {
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
		b.WriteByte('|')
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
