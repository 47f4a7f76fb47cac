/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements billing.Store and billing.TxStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  accounts:        One row per billable party, keyed by external id
  charges:         Ad-hoc ledger entries (REAL and DRAFT)
  exclusion_dates: The no-service date set, one row per date
  holiday_ranges:  Holiday ranges with their notification flags
  checkpoints:     Per-account "paid through" instants, append-only
  meta:            Key/value scalars (charge id counter, global floor)

TIMESTAMPS:
  Instants are stored as RFC3339Nano in UTC so the checkpoint-equality
  tie-break survives a round-trip at full precision. Calendar dates are
  stored as YYYY-MM-DD, which also makes them ORDER BY-able as text.

ID ALLOCATION:
  The charge id counter lives in the meta table and is read+advanced
  through the same *sql.Tx as the insert, so concurrent appends cannot
  claim the same id.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine, err := billing.New(store, cfg)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/billing-engine/billing"
	"github.com/shopspring/decimal"
)

// Store implements billing.Store and billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (one row per billable party)
	CREATE TABLE IF NOT EXISTS accounts (
		external_id TEXT PRIMARY KEY,
		alias INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		base_override TEXT,
		service_start TEXT,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Charges (the ad-hoc ledger; rows are immutable, only deleted)
	CREATE TABLE IF NOT EXISTS charges (
		id INTEGER PRIMARY KEY,
		account_id TEXT NOT NULL,
		at TEXT NOT NULL,
		amount TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		class TEXT NOT NULL,
		account_name TEXT NOT NULL DEFAULT ''
	);

	-- Hot path: per-account window queries in the report builder
	CREATE INDEX IF NOT EXISTS idx_charges_account_at
		ON charges(account_id, at);
	CREATE INDEX IF NOT EXISTS idx_charges_class
		ON charges(class);

	-- Exclusion calendar (single no-service dates, range-expanded too)
	CREATE TABLE IF NOT EXISTS exclusion_dates (
		date TEXT PRIMARY KEY
	);

	-- Holiday ranges with their monotone notification flags
	CREATE TABLE IF NOT EXISTS holiday_ranges (
		id TEXT PRIMARY KEY,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		notified_on_create BOOLEAN NOT NULL DEFAULT FALSE,
		notified_before_start BOOLEAN NOT NULL DEFAULT FALSE,
		notified_before_end BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_holiday_ranges_start
		ON holiday_ranges(start_date);

	-- Checkpoints (append-only "paid through" instants)
	CREATE TABLE IF NOT EXISTS checkpoints (
		account_id TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_account
		ON checkpoints(account_id, at);

	-- Scalars: charge id counter, global counting floor
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper
// runs either standalone or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNTS (billing.Store interface)
// =============================================================================

// SaveAccount inserts or fully replaces the account.
func (s *Store) SaveAccount(ctx context.Context, a billing.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAccount(ctx, s.db, a)
}

func (s *Store) saveAccount(ctx context.Context, db dbtx, a billing.Account) error {
	var baseOverride *string
	if a.BaseOverride != nil {
		v := a.BaseOverride.String()
		baseOverride = &v
	}
	var serviceStart *string
	if a.ServiceStart != nil {
		v := a.ServiceStart.String()
		serviceStart = &v
	}

	query := `
		INSERT INTO accounts
		(external_id, alias, name, active, base_override, service_start, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			alias = excluded.alias,
			name = excluded.name,
			active = excluded.active,
			base_override = excluded.base_override,
			service_start = excluded.service_start,
			is_default = excluded.is_default
	`

	_, err := db.ExecContext(ctx, query,
		a.ExternalID,
		a.Alias,
		a.Name,
		a.Active,
		baseOverride,
		serviceStart,
		a.IsDefault,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

const accountColumns = `external_id, alias, name, active, base_override, service_start, is_default, created_at`

// AccountByExternalID returns nil (no error) when absent.
func (s *Store) AccountByExternalID(ctx context.Context, externalID string) (*billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountByExternalID(ctx, s.db, externalID)
}

func (s *Store) accountByExternalID(ctx context.Context, db dbtx, externalID string) (*billing.Account, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE external_id = ?", externalID)
	return scanAccountRow(row)
}

// AccountByAlias returns nil (no error) when absent.
func (s *Store) AccountByAlias(ctx context.Context, alias int) (*billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountByAlias(ctx, s.db, alias)
}

func (s *Store) accountByAlias(ctx context.Context, db dbtx, alias int) (*billing.Account, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE alias = ?", alias)
	return scanAccountRow(row)
}

// ListAccounts returns every account, active or not, ordered by alias.
func (s *Store) ListAccounts(ctx context.Context) ([]billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAccounts(ctx, s.db)
}

func (s *Store) listAccounts(ctx context.Context, db dbtx) ([]billing.Account, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY alias ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []billing.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(r rowScanner) (billing.Account, error) {
	var (
		a            billing.Account
		baseOverride sql.NullString
		serviceStart sql.NullString
		createdAt    string
	)

	err := r.Scan(&a.ExternalID, &a.Alias, &a.Name, &a.Active,
		&baseOverride, &serviceStart, &a.IsDefault, &createdAt)
	if err != nil {
		return a, err
	}

	if baseOverride.Valid {
		d, err := decimal.NewFromString(baseOverride.String)
		if err != nil {
			return a, fmt.Errorf("corrupt base override %q: %w", baseOverride.String, err)
		}
		a.BaseOverride = &d
	}
	if serviceStart.Valid {
		d, err := billing.ParseDay(serviceStart.String)
		if err != nil {
			return a, fmt.Errorf("corrupt service start: %w", err)
		}
		a.ServiceStart = &d
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return a, nil
}

func scanAccountRow(row *sql.Row) (*billing.Account, error) {
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// =============================================================================
// CHARGES
// =============================================================================

const nextChargeIDKey = "next_charge_id"

// NextChargeID claims and advances the ledger-wide charge id counter.
func (s *Store) NextChargeID(ctx context.Context) (billing.ChargeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextChargeID(ctx, s.db)
}

func (s *Store) nextChargeID(ctx context.Context, db dbtx) (billing.ChargeID, error) {
	if _, err := db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, '1') ON CONFLICT(key) DO NOTHING",
		nextChargeIDKey); err != nil {
		return 0, fmt.Errorf("failed to seed charge id counter: %w", err)
	}

	var value string
	if err := db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", nextChargeIDKey).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read charge id counter: %w", err)
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt charge id counter %q: %w", value, err)
	}

	if _, err := db.ExecContext(ctx,
		"UPDATE meta SET value = ? WHERE key = ?",
		strconv.FormatInt(id+1, 10), nextChargeIDKey); err != nil {
		return 0, fmt.Errorf("failed to advance charge id counter: %w", err)
	}
	return billing.ChargeID(id), nil
}

// AppendCharge inserts an immutable charge.
func (s *Store) AppendCharge(ctx context.Context, c billing.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendCharge(ctx, s.db, c)
}

func (s *Store) appendCharge(ctx context.Context, db dbtx, c billing.Charge) error {
	query := `
		INSERT INTO charges (id, account_id, at, amount, label, class, account_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		int64(c.ID),
		c.AccountID,
		c.At.UTC().Format(time.RFC3339Nano),
		c.Amount.String(),
		c.Label,
		string(c.Class),
		c.AccountName,
	)
	if err != nil {
		return fmt.Errorf("failed to append charge: %w", err)
	}
	return nil
}

// DeleteCharge hard-deletes by id; false when the id does not exist.
func (s *Store) DeleteCharge(ctx context.Context, id billing.ChargeID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCharge(ctx, s.db, id)
}

func (s *Store) deleteCharge(ctx context.Context, db dbtx, id billing.ChargeID) (bool, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM charges WHERE id = ?", int64(id))
	if err != nil {
		return false, fmt.Errorf("failed to delete charge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Charges returns matching charges ordered by id ascending.
func (s *Store) Charges(ctx context.Context, f billing.ChargeFilter) ([]billing.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.charges(ctx, s.db, f)
}

func (s *Store) charges(ctx context.Context, db dbtx, f billing.ChargeFilter) ([]billing.Charge, error) {
	// Restrict by indexed columns in SQL; the timestamp bounds are
	// applied via Matches after parsing, so ordering never depends on
	// lexical comparison of formatted instants.
	query := "SELECT id, account_id, at, amount, label, class, account_name FROM charges"
	var (
		conds []string
		args  []any
	)
	if f.AccountID != nil {
		conds = append(conds, "account_id = ?")
		args = append(args, *f.AccountID)
	}
	if f.Class != nil {
		conds = append(conds, "class = ?")
		args = append(args, string(*f.Class))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	var charges []billing.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		if f.Matches(c) {
			charges = append(charges, c)
		}
	}
	return charges, rows.Err()
}

func scanCharge(rows *sql.Rows) (billing.Charge, error) {
	var (
		c      billing.Charge
		id     int64
		at     string
		amount string
		class  string
	)

	err := rows.Scan(&id, &c.AccountID, &at, &amount, &c.Label, &class, &c.AccountName)
	if err != nil {
		return c, fmt.Errorf("failed to scan charge: %w", err)
	}

	c.ID = billing.ChargeID(id)
	c.At, err = time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return c, fmt.Errorf("corrupt charge timestamp %q: %w", at, err)
	}
	c.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return c, fmt.Errorf("corrupt charge amount %q: %w", amount, err)
	}
	c.Class = billing.ChargeClass(class)
	return c, nil
}

// =============================================================================
// EXCLUSION CALENDAR
// =============================================================================

// AddExclusionDays inserts dates into the exclusion set, absorbing
// duplicates.
func (s *Store) AddExclusionDays(ctx context.Context, days []billing.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addExclusionDays(ctx, s.db, days)
}

func (s *Store) addExclusionDays(ctx context.Context, db dbtx, days []billing.Day) error {
	for _, d := range days {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO exclusion_dates (date) VALUES (?) ON CONFLICT(date) DO NOTHING",
			d.String()); err != nil {
			return fmt.Errorf("failed to add exclusion date %s: %w", d, err)
		}
	}
	return nil
}

// RemoveExclusionDay deletes one date; false when it was not present.
func (s *Store) RemoveExclusionDay(ctx context.Context, d billing.Day) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeExclusionDay(ctx, s.db, d)
}

func (s *Store) removeExclusionDay(ctx context.Context, db dbtx, d billing.Day) (bool, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM exclusion_dates WHERE date = ?", d.String())
	if err != nil {
		return false, fmt.Errorf("failed to remove exclusion date: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExclusionDays returns the full set, sorted ascending.
func (s *Store) ExclusionDays(ctx context.Context) ([]billing.Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exclusionDays(ctx, s.db)
}

func (s *Store) exclusionDays(ctx context.Context, db dbtx) ([]billing.Day, error) {
	rows, err := db.QueryContext(ctx, "SELECT date FROM exclusion_dates ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusion dates: %w", err)
	}
	defer rows.Close()

	var days []billing.Day
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, err
		}
		d, err := billing.ParseDay(dateStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt exclusion date: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// SaveHolidayRange inserts or updates a range. The update clause ORs the
// notification flags so they only ever go false -> true.
func (s *Store) SaveHolidayRange(ctx context.Context, r billing.HolidayRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveHolidayRange(ctx, s.db, r)
}

func (s *Store) saveHolidayRange(ctx context.Context, db dbtx, r billing.HolidayRange) error {
	query := `
		INSERT INTO holiday_ranges
		(id, start_date, end_date, notified_on_create, notified_before_start, notified_before_end)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			notified_on_create = holiday_ranges.notified_on_create OR excluded.notified_on_create,
			notified_before_start = holiday_ranges.notified_before_start OR excluded.notified_before_start,
			notified_before_end = holiday_ranges.notified_before_end OR excluded.notified_before_end
	`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.Start.String(), r.End.String(),
		r.NotifiedOnCreate, r.NotifiedBeforeStart, r.NotifiedBeforeEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to save holiday range: %w", err)
	}
	return nil
}

// HolidayRanges returns all ranges ordered by start date.
func (s *Store) HolidayRanges(ctx context.Context) ([]billing.HolidayRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holidayRanges(ctx, s.db)
}

func (s *Store) holidayRanges(ctx context.Context, db dbtx) ([]billing.HolidayRange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, start_date, end_date, notified_on_create, notified_before_start, notified_before_end
		FROM holiday_ranges
		ORDER BY start_date ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holiday ranges: %w", err)
	}
	defer rows.Close()

	var ranges []billing.HolidayRange
	for rows.Next() {
		var (
			r          billing.HolidayRange
			start, end string
		)
		if err := rows.Scan(&r.ID, &start, &end,
			&r.NotifiedOnCreate, &r.NotifiedBeforeStart, &r.NotifiedBeforeEnd); err != nil {
			return nil, err
		}
		if r.Start, err = billing.ParseDay(start); err != nil {
			return nil, fmt.Errorf("corrupt range start: %w", err)
		}
		if r.End, err = billing.ParseDay(end); err != nil {
			return nil, fmt.Errorf("corrupt range end: %w", err)
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// =============================================================================
// CHECKPOINTS
// =============================================================================

// AppendCheckpoint appends to the account's checkpoint list.
func (s *Store) AppendCheckpoint(ctx context.Context, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendCheckpoint(ctx, s.db, accountID, at)
}

func (s *Store) appendCheckpoint(ctx context.Context, db dbtx, accountID string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO checkpoints (account_id, at) VALUES (?, ?)",
		accountID, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	return nil
}

// Checkpoints returns the account's checkpoints ascending by time.
func (s *Store) Checkpoints(ctx context.Context, accountID string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints(ctx, s.db, accountID)
}

func (s *Store) checkpoints(ctx context.Context, db dbtx, accountID string) ([]time.Time, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT at FROM checkpoints WHERE account_id = ?", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []time.Time
	for rows.Next() {
		var at string
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("corrupt checkpoint %q: %w", at, err)
		}
		cps = append(cps, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Sorted in Go: formatted instants are not lexically ordered.
	sort.Slice(cps, func(i, j int) bool { return cps[i].Before(cps[j]) })
	return cps, nil
}

// LastCheckpoint returns the account's maximum checkpoint, or nil.
func (s *Store) LastCheckpoint(ctx context.Context, accountID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheckpoint(ctx, s.db, accountID)
}

func (s *Store) lastCheckpoint(ctx context.Context, db dbtx, accountID string) (*time.Time, error) {
	cps, err := s.checkpoints(ctx, db, accountID)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, nil
	}
	last := cps[len(cps)-1]
	return &last, nil
}

// =============================================================================
// COUNTING FLOOR
// =============================================================================

const globalFloorKey = "global_floor"

// GlobalFloor returns the configured floor date, or nil when unset.
func (s *Store) GlobalFloor(ctx context.Context) (*billing.Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalFloor(ctx, s.db)
}

func (s *Store) globalFloor(ctx context.Context, db dbtx) (*billing.Day, error) {
	var value string
	err := db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", globalFloorKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read global floor: %w", err)
	}
	d, err := billing.ParseDay(value)
	if err != nil {
		return nil, fmt.Errorf("corrupt global floor: %w", err)
	}
	return &d, nil
}

// SetGlobalFloor records the floor date.
func (s *Store) SetGlobalFloor(ctx context.Context, d billing.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setGlobalFloor(ctx, s.db, d)
}

func (s *Store) setGlobalFloor(ctx context.Context, db dbtx, d billing.Day) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		globalFloorKey, d.String())
	if err != nil {
		return fmt.Errorf("failed to set global floor: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every operation through the open *sql.Tx, so reads
// inside a transaction (account resolution, the id counter) observe the
// transaction's own writes.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveAccount(ctx context.Context, a billing.Account) error {
	return ts.parent.saveAccount(ctx, ts.tx, a)
}

func (ts *txStore) AccountByExternalID(ctx context.Context, externalID string) (*billing.Account, error) {
	return ts.parent.accountByExternalID(ctx, ts.tx, externalID)
}

func (ts *txStore) AccountByAlias(ctx context.Context, alias int) (*billing.Account, error) {
	return ts.parent.accountByAlias(ctx, ts.tx, alias)
}

func (ts *txStore) ListAccounts(ctx context.Context) ([]billing.Account, error) {
	return ts.parent.listAccounts(ctx, ts.tx)
}

func (ts *txStore) NextChargeID(ctx context.Context) (billing.ChargeID, error) {
	return ts.parent.nextChargeID(ctx, ts.tx)
}

func (ts *txStore) AppendCharge(ctx context.Context, c billing.Charge) error {
	return ts.parent.appendCharge(ctx, ts.tx, c)
}

func (ts *txStore) DeleteCharge(ctx context.Context, id billing.ChargeID) (bool, error) {
	return ts.parent.deleteCharge(ctx, ts.tx, id)
}

func (ts *txStore) Charges(ctx context.Context, f billing.ChargeFilter) ([]billing.Charge, error) {
	return ts.parent.charges(ctx, ts.tx, f)
}

func (ts *txStore) AddExclusionDays(ctx context.Context, days []billing.Day) error {
	return ts.parent.addExclusionDays(ctx, ts.tx, days)
}

func (ts *txStore) RemoveExclusionDay(ctx context.Context, d billing.Day) (bool, error) {
	return ts.parent.removeExclusionDay(ctx, ts.tx, d)
}

func (ts *txStore) ExclusionDays(ctx context.Context) ([]billing.Day, error) {
	return ts.parent.exclusionDays(ctx, ts.tx)
}

func (ts *txStore) SaveHolidayRange(ctx context.Context, r billing.HolidayRange) error {
	return ts.parent.saveHolidayRange(ctx, ts.tx, r)
}

func (ts *txStore) HolidayRanges(ctx context.Context) ([]billing.HolidayRange, error) {
	return ts.parent.holidayRanges(ctx, ts.tx)
}

func (ts *txStore) AppendCheckpoint(ctx context.Context, accountID string, at time.Time) error {
	return ts.parent.appendCheckpoint(ctx, ts.tx, accountID, at)
}

func (ts *txStore) Checkpoints(ctx context.Context, accountID string) ([]time.Time, error) {
	return ts.parent.checkpoints(ctx, ts.tx, accountID)
}

func (ts *txStore) LastCheckpoint(ctx context.Context, accountID string) (*time.Time, error) {
	return ts.parent.lastCheckpoint(ctx, ts.tx, accountID)
}

func (ts *txStore) GlobalFloor(ctx context.Context) (*billing.Day, error) {
	return ts.parent.globalFloor(ctx, ts.tx)
}

func (ts *txStore) SetGlobalFloor(ctx context.Context, d billing.Day) error {
	return ts.parent.setGlobalFloor(ctx, ts.tx, d)
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"charges", "checkpoints", "exclusion_dates", "holiday_ranges", "accounts", "meta"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
