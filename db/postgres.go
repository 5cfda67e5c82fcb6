package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"racehouse/config"
	"racehouse/errs"
	"racehouse/game"
	"racehouse/ledger"
	"racehouse/training"
)

var (
	// PostgresPool is the global PostgreSQL connection pool
	PostgresPool *pgxpool.Pool
)

// InitPostgres initializes the PostgreSQL connection pool
func InitPostgres(databaseURL string) error {
	log.Println("🔌 Connecting to PostgreSQL...")

	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = config.MaxOpenConns
	poolConfig.MinConns = config.MaxIdleConns
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime

	PostgresPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := PostgresPool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ PostgreSQL connected successfully")

	if err := InitSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// ClosePostgres closes the PostgreSQL connection pool
func ClosePostgres() {
	if PostgresPool != nil {
		log.Println("🔌 Closing PostgreSQL connection...")
		PostgresPool.Close()
	}
}

// InitSchema creates the database tables if they don't exist
func InitSchema(ctx context.Context) error {
	log.Println("📋 Initializing database schema...")

	creaturesSchema := `
	CREATE TABLE IF NOT EXISTS creatures (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		token_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL,
		base JSONB NOT NULL,
		trained JSONB NOT NULL,
		fatigue DOUBLE PRECISION NOT NULL,
		condition DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		last_trained_at TIMESTAMPTZ,
		boosted BOOLEAN NOT NULL DEFAULT FALSE,
		treatment JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		version BIGINT NOT NULL DEFAULT 0,
		UNIQUE(collection_id, token_id)
	);

	CREATE INDEX IF NOT EXISTS idx_creatures_owner ON creatures(owner);
	`

	if _, err := PostgresPool.Exec(ctx, creaturesSchema); err != nil {
		return fmt.Errorf("failed to create creatures table: %w", err)
	}

	racesSchema := `
	CREATE TABLE IF NOT EXISTS races (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		profile JSONB NOT NULL,
		status TEXT NOT NULL,
		opens_at TIMESTAMPTZ NOT NULL,
		entry_deadline TIMESTAMPTZ NOT NULL,
		target_block_height BIGINT NOT NULL,
		entry_fee NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		max_entrants INT NOT NULL,
		payouts JSONB NOT NULL,
		boost_places INT NOT NULL DEFAULT 0,
		block_hash TEXT NOT NULL DEFAULT '',
		void_reason TEXT NOT NULL DEFAULT '',
		ordering JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ,
		version BIGINT NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_races_status ON races(status);
	CREATE INDEX IF NOT EXISTS idx_races_created_at ON races(created_at DESC);

	CREATE TABLE IF NOT EXISTS race_entries (
		race_id TEXT NOT NULL REFERENCES races(id),
		creature_id TEXT NOT NULL,
		wallet TEXT NOT NULL,
		idx INT NOT NULL,
		fee NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		stats JSONB,
		position INT NOT NULL DEFAULT 0,
		boost_awarded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (race_id, creature_id),
		UNIQUE (race_id, idx)
	);
	`

	if _, err := PostgresPool.Exec(ctx, racesSchema); err != nil {
		return fmt.Errorf("failed to create races tables: %w", err)
	}

	ledgerSchema := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		balance_after NUMERIC NOT NULL,
		sequence BIGINT NOT NULL,
		currency TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		prev_hash TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(wallet, sequence)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_wallet_seq ON ledger_entries(wallet, sequence DESC);
	`

	if _, err := PostgresPool.Exec(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("failed to create ledger_entries table: %w", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

// HealthCheckPostgres performs a PostgreSQL health check
func HealthCheckPostgres(ctx context.Context) error {
	if PostgresPool == nil {
		return fmt.Errorf("PostgreSQL connection pool not initialized")
	}
	return PostgresPool.Ping(ctx)
}

// Postgres implements the creature, race and ledger stores on a pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

/* =========================
   CREATURES
========================= */

const creatureColumns = `id, collection_id, token_id, name, owner, base, trained, fatigue, condition,
	updated_at, last_trained_at, boosted, treatment, created_at, version`

func scanCreature(row pgx.Row) (training.Creature, error) {
	var (
		c                     training.Creature
		baseJSON, trainedJSON []byte
		treatmentJSON         []byte
	)
	err := row.Scan(&c.ID, &c.CollectionID, &c.TokenID, &c.Name, &c.Owner, &baseJSON, &trainedJSON,
		&c.Fatigue, &c.Condition, &c.UpdatedAt, &c.LastTrainedAt, &c.Boosted, &treatmentJSON,
		&c.CreatedAt, &c.Version)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(baseJSON, &c.Base); err != nil {
		return c, fmt.Errorf("failed to unmarshal base stats: %w", err)
	}
	if err := json.Unmarshal(trainedJSON, &c.Trained); err != nil {
		return c, fmt.Errorf("failed to unmarshal trained stats: %w", err)
	}
	if len(treatmentJSON) > 0 && string(treatmentJSON) != "null" {
		var t training.Treatment
		if err := json.Unmarshal(treatmentJSON, &t); err != nil {
			return c, fmt.Errorf("failed to unmarshal treatment: %w", err)
		}
		c.Treatment = &t
	}
	return c, nil
}

func creatureArgs(c training.Creature) ([]any, error) {
	base, err := json.Marshal(c.Base)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal base stats: %w", err)
	}
	trained, err := json.Marshal(c.Trained)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trained stats: %w", err)
	}
	var treatment []byte
	if c.Treatment != nil {
		if treatment, err = json.Marshal(c.Treatment); err != nil {
			return nil, fmt.Errorf("failed to marshal treatment: %w", err)
		}
	}
	return []any{c.ID, c.CollectionID, c.TokenID, c.Name, c.Owner, base, trained, c.Fatigue, c.Condition,
		c.UpdatedAt, c.LastTrainedAt, c.Boosted, treatment, c.CreatedAt}, nil
}

func (p *Postgres) InsertCreature(ctx context.Context, c training.Creature) error {
	args, err := creatureArgs(c)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO creatures (id, collection_id, token_id, name, owner, base, trained, fatigue, condition,
			updated_at, last_trained_at, boosted, treatment, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0)
	`
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return errs.Wrapf(errs.ErrStateConflict, "creature %s already registered", c.ID)
		}
		return fmt.Errorf("failed to insert creature: %w", err)
	}
	return nil
}

func (p *Postgres) GetCreature(ctx context.Context, id string) (training.Creature, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+creatureColumns+` FROM creatures WHERE id = $1`, id)
	c, err := scanCreature(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return training.Creature{}, errs.NotFound("creature %s not found", id)
	}
	if err != nil {
		return training.Creature{}, fmt.Errorf("failed to get creature: %w", err)
	}
	return c, nil
}

// UpdateCreature writes c if the stored version still equals c.Version and
// bumps the stored version by one.
func (p *Postgres) UpdateCreature(ctx context.Context, c training.Creature) error {
	args, err := creatureArgs(c)
	if err != nil {
		return err
	}
	query := `
		UPDATE creatures SET collection_id = $2, token_id = $3, name = $4, owner = $5, base = $6,
			trained = $7, fatigue = $8, condition = $9, updated_at = $10, last_trained_at = $11,
			boosted = $12, treatment = $13, created_at = $14, version = version + 1
		WHERE id = $1 AND version = $15
	`
	tag, err := p.pool.Exec(ctx, query, append(args, c.Version)...)
	if err != nil {
		return fmt.Errorf("failed to update creature: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetCreature(ctx, c.ID); err != nil {
			return err
		}
		return errs.Wrapf(errs.ErrConcurrentModification, "creature %s changed since version %d", c.ID, c.Version)
	}
	return nil
}

func (p *Postgres) ListCreatures(ctx context.Context, owner string) ([]training.Creature, error) {
	query := `SELECT ` + creatureColumns + ` FROM creatures`
	args := []any{}
	if owner != "" {
		query += ` WHERE owner = $1`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query creatures: %w", err)
	}
	defer rows.Close()

	var out []training.Creature
	for rows.Next() {
		c, err := scanCreature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan creature: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

/* =========================
   RACES
========================= */

const raceColumns = `id, name, profile, status, opens_at, entry_deadline, target_block_height,
	entry_fee::text, currency, max_entrants, payouts, boost_places, block_hash, void_reason, ordering,
	created_at, resolved_at, version`

func scanRace(row pgx.Row) (game.Race, error) {
	var (
		r                        game.Race
		profileJSON, payoutsJSON []byte
		orderingJSON             []byte
		entryFee, status         string
		targetHeight             int64
	)
	err := row.Scan(&r.ID, &r.Name, &profileJSON, &status, &r.OpensAt, &r.EntryDeadline, &targetHeight,
		&entryFee, &r.Currency, &r.MaxEntrants, &payoutsJSON, &r.BoostPlaces, &r.BlockHash, &r.VoidReason,
		&orderingJSON, &r.CreatedAt, &r.ResolvedAt, &r.Version)
	if err != nil {
		return r, err
	}
	r.Status = game.RaceStatus(status)
	r.TargetBlockHeight = uint64(targetHeight)
	if r.EntryFee, err = decimal.NewFromString(entryFee); err != nil {
		return r, fmt.Errorf("failed to parse entry fee: %w", err)
	}
	if err := json.Unmarshal(profileJSON, &r.Profile); err != nil {
		return r, fmt.Errorf("failed to unmarshal race profile: %w", err)
	}
	if err := json.Unmarshal(payoutsJSON, &r.Payouts); err != nil {
		return r, fmt.Errorf("failed to unmarshal payouts: %w", err)
	}
	if len(orderingJSON) > 0 && string(orderingJSON) != "null" {
		if err := json.Unmarshal(orderingJSON, &r.Ordering); err != nil {
			return r, fmt.Errorf("failed to unmarshal ordering: %w", err)
		}
	}
	return r, nil
}

func (p *Postgres) CreateRace(ctx context.Context, r game.Race) error {
	profile, err := json.Marshal(r.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal race profile: %w", err)
	}
	payouts, err := json.Marshal(r.Payouts)
	if err != nil {
		return fmt.Errorf("failed to marshal payouts: %w", err)
	}
	query := `
		INSERT INTO races (id, name, profile, status, opens_at, entry_deadline, target_block_height,
			entry_fee, currency, max_entrants, payouts, boost_places, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10, $11, $12, $13, 0)
	`
	_, err = p.pool.Exec(ctx, query, r.ID, r.Name, profile, string(r.Status), r.OpensAt, r.EntryDeadline,
		int64(r.TargetBlockHeight), r.EntryFee.String(), r.Currency, r.MaxEntrants, payouts, r.BoostPlaces, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Wrapf(errs.ErrStateConflict, "race %s already exists", r.ID)
		}
		return fmt.Errorf("failed to insert race: %w", err)
	}
	log.Printf("✅ Stored race %s (target block %d)", r.ID, r.TargetBlockHeight)
	return nil
}

func (p *Postgres) GetRace(ctx context.Context, id string) (game.Race, error) {
	r, err := scanRace(p.pool.QueryRow(ctx, `SELECT `+raceColumns+` FROM races WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Race{}, errs.NotFound("race %s not found", id)
	}
	if err != nil {
		return game.Race{}, fmt.Errorf("failed to get race: %w", err)
	}
	return r, nil
}

func (p *Postgres) ListRaces(ctx context.Context, status game.RaceStatus, limit int) ([]game.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query races: %w", err)
	}
	defer rows.Close()

	var out []game.Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// UpdateRaceStatus moves a race's status when the stored version matches.
func (p *Postgres) UpdateRaceStatus(ctx context.Context, r game.Race) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE races SET status = $2, void_reason = $3, resolved_at = $4, version = version + 1
		WHERE id = $1 AND version = $5
	`, r.ID, string(r.Status), r.VoidReason, r.ResolvedAt, r.Version)
	if err != nil {
		return fmt.Errorf("failed to update race status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.raceConflict(ctx, r)
	}
	return nil
}

func (p *Postgres) raceConflict(ctx context.Context, r game.Race) error {
	if _, err := p.GetRace(ctx, r.ID); err != nil {
		return err
	}
	return errs.Wrapf(errs.ErrConcurrentModification, "race %s changed since version %d", r.ID, r.Version)
}

// ResolveRace persists the outcome of a race in one transaction: status,
// block hash, ordering and every entry's snapshot and position. Nothing is
// written when the race version has moved.
func (p *Postgres) ResolveRace(ctx context.Context, r game.Race, entries []game.RaceEntry) error {
	ordering, err := json.Marshal(r.Ordering)
	if err != nil {
		return fmt.Errorf("failed to marshal ordering: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE races SET status = $2, block_hash = $3, ordering = $4, resolved_at = $5,
			void_reason = $6, version = version + 1
		WHERE id = $1 AND version = $7
	`, r.ID, string(r.Status), r.BlockHash, ordering, r.ResolvedAt, r.VoidReason, r.Version)
	if err != nil {
		return fmt.Errorf("failed to update race: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.raceConflict(ctx, r)
	}

	for _, e := range entries {
		var stats []byte
		if e.Stats != nil {
			if stats, err = json.Marshal(e.Stats); err != nil {
				return fmt.Errorf("failed to marshal entry stats: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE race_entries SET stats = $3, position = $4, boost_awarded = $5
			WHERE race_id = $1 AND creature_id = $2
		`, e.RaceID, e.CreatureID, stats, e.Position, e.BoostAwarded); err != nil {
			return fmt.Errorf("failed to update entry %s: %w", e.CreatureID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit race resolution: %w", err)
	}
	return nil
}

/* =========================
   RACE ENTRIES
========================= */

func (p *Postgres) AddEntry(ctx context.Context, e game.RaceEntry) error {
	var stats []byte
	if e.Stats != nil {
		var err error
		if stats, err = json.Marshal(e.Stats); err != nil {
			return fmt.Errorf("failed to marshal entry stats: %w", err)
		}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO race_entries (race_id, creature_id, wallet, idx, fee, currency, stats, created_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8)
	`, e.RaceID, e.CreatureID, e.Wallet, e.Index, e.Fee.String(), e.Currency, stats, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Wrapf(errs.ErrAlreadyEntered, "creature %s is already entered in race %s", e.CreatureID, e.RaceID)
		}
		return fmt.Errorf("failed to insert race entry: %w", err)
	}
	return nil
}

func (p *Postgres) RaceEntries(ctx context.Context, raceID string) ([]game.RaceEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT race_id, creature_id, wallet, idx, fee::text, currency, stats, position, boost_awarded, created_at
		FROM race_entries WHERE race_id = $1 ORDER BY idx
	`, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query race entries: %w", err)
	}
	defer rows.Close()

	var out []game.RaceEntry
	for rows.Next() {
		var (
			e         game.RaceEntry
			fee       string
			statsJSON []byte
		)
		if err := rows.Scan(&e.RaceID, &e.CreatureID, &e.Wallet, &e.Index, &fee, &e.Currency, &statsJSON,
			&e.Position, &e.BoostAwarded, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan race entry: %w", err)
		}
		if e.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("failed to parse entry fee: %w", err)
		}
		if len(statsJSON) > 0 && string(statsJSON) != "null" {
			var v game.StatVector
			if err := json.Unmarshal(statsJSON, &v); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entry stats: %w", err)
			}
			e.Stats = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

/* =========================
   LEDGER
========================= */

const ledgerColumns = `id, wallet, tx_type, amount::text, balance_after::text, sequence, currency,
	reference, memo, prev_hash, hash, created_at`

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		e               ledger.Entry
		txType          string
		amount, balance string
	)
	if err := row.Scan(&e.ID, &e.Wallet, &txType, &amount, &balance, &e.Sequence, &e.Currency,
		&e.Reference, &e.Memo, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
		return e, err
	}
	e.Type = ledger.TxType(txType)
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("failed to parse amount: %w", err)
	}
	if e.BalanceAfter, err = decimal.NewFromString(balance); err != nil {
		return e, fmt.Errorf("failed to parse balance: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (p *Postgres) LastEntry(ctx context.Context, wallet string) (*ledger.Entry, error) {
	e, err := scanEntry(p.pool.QueryRow(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries WHERE wallet = $1 ORDER BY sequence DESC LIMIT 1
	`, wallet))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last ledger entry: %w", err)
	}
	return &e, nil
}

// AppendEntry inserts e only if it directly follows the wallet's last entry.
func (p *Postgres) AppendEntry(ctx context.Context, e ledger.Entry) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO ledger_entries (id, wallet, tx_type, amount, balance_after, sequence, currency,
			reference, memo, prev_hash, hash, created_at)
		SELECT $1::text, $2::text, $3::text, $4::text::numeric, $5::text::numeric, $6::bigint, $7::text,
			$8::text, $9::text, $10::text, $11::text, $12::timestamptz
		WHERE COALESCE((SELECT MAX(sequence) FROM ledger_entries WHERE wallet = $2::text), 0) = $6::bigint - 1
	`, e.ID, e.Wallet, string(e.Type), e.Amount.String(), e.BalanceAfter.String(), e.Sequence, e.Currency,
		e.Reference, e.Memo, e.PrevHash, e.Hash, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Wrapf(errs.ErrConcurrentModification, "wallet %s: sequence %d already taken", e.Wallet, e.Sequence)
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.Wrapf(errs.ErrConcurrentModification, "wallet %s: sequence %d does not follow the last entry", e.Wallet, e.Sequence)
	}
	return nil
}

func (p *Postgres) Entries(ctx context.Context, wallet string, limit int) ([]ledger.Entry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE wallet = $1 ORDER BY sequence DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := p.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	// Oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Standings ranks wallets by the balance of their latest entry.
func (p *Postgres) Standings(ctx context.Context, limit int) ([]ledger.Standing, error) {
	query := `
		SELECT wallet, balance::text, ROW_NUMBER() OVER (ORDER BY balance DESC, wallet) AS rank FROM (
			SELECT DISTINCT ON (wallet) wallet, balance_after AS balance
			FROM ledger_entries
			ORDER BY wallet, sequence DESC
		) latest
		ORDER BY balance DESC, wallet
	`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []ledger.Standing
	for rows.Next() {
		var (
			s       ledger.Standing
			balance string
		)
		if err := rows.Scan(&s.Wallet, &balance, &s.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if s.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("failed to parse balance: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
