/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists formula configuration and employee deduction records. The
  payroll engine only reads from it; writes come from seeding, the formula
  API and the payroll orchestrator that owns the employee records.

INTERFACES IMPLEMENTED:
  formula.Store:          Formula, bracket, split, relief and component reads
  formula.Writer:         Seeding and supersession
  deductions.RecordWriter: Loans, advances, loss/damage charges, benefit grants

SUPERSESSION:
  A formula version is never edited. Supersede closes the old version's
  effective_to and clears its is_current flag, then inserts the new version,
  in one SQL transaction.

KEY TABLES:
  formulas:           Versioned rule sets (decimals stored as TEXT)
  formula_items:      Bracket rows, in declaration order
  split_ratios:       Employee/employer split per formula
  reliefs:            Named reliefs with optional repeal date
  payroll_components: Deduction/earning/benefit line items
  deduction_records:  Employee-linked loans, advances, charges and grants

INDEXES:
  - idx_formulas_lookup: Resolution by (type, category) (hot path)
  - idx_formulas_one_current: At most one current formula per (type, category)
  - idx_records_employee_active: Aggregation per employee

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to a
  single connection because each new connection would see an empty schema.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(store, store, engine.Options{})

SEE ALSO:
  - formula/store.go: Interface definitions
  - formula/store/memory.go: In-memory implementation for testing
  - deductions/records.go: Record interfaces
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/formula"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ formula.Writer          = (*Store)(nil)
	_ deductions.RecordWriter = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
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

// Ping checks the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Formulas (versioned, closed rather than edited)
	CREATE TABLE IF NOT EXISTS formulas (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		upper_limit TEXT NOT NULL DEFAULT '0',
		upper_limit_amount TEXT NOT NULL DEFAULT '0',
		upper_limit_percentage TEXT NOT NULL DEFAULT '0',
		personal_relief TEXT NOT NULL DEFAULT '0',
		relief_carry_forward BOOLEAN NOT NULL DEFAULT FALSE,
		progressive BOOLEAN NOT NULL DEFAULT FALSE,
		bracket_mode TEXT NOT NULL DEFAULT '',
		component_id TEXT,
		version TEXT NOT NULL DEFAULT '',
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		deduction_order_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_formulas_lookup
		ON formulas(type, category, effective_from);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_formulas_one_current
		ON formulas(type, category) WHERE is_current;

	-- Bracket rows
	CREATE TABLE IF NOT EXISTS formula_items (
		id TEXT PRIMARY KEY,
		formula_id TEXT NOT NULL REFERENCES formulas(id),
		position INTEGER NOT NULL,
		amount_from TEXT NOT NULL,
		amount_to TEXT,
		deduct_amount TEXT NOT NULL DEFAULT '0',
		deduct_percentage TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_formula_items_formula
		ON formula_items(formula_id, position);

	-- Split ratios (one per formula)
	CREATE TABLE IF NOT EXISTS split_ratios (
		formula_id TEXT PRIMARY KEY REFERENCES formulas(id),
		employee_percentage TEXT NOT NULL,
		employer_percentage TEXT NOT NULL
	);

	-- Reliefs
	CREATE TABLE IF NOT EXISTS reliefs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		fixed_limit TEXT NOT NULL DEFAULT '0',
		percentage TEXT NOT NULL DEFAULT '0',
		percent_of TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		repealed_on TEXT
	);

	-- Payroll components
	CREATE TABLE IF NOT EXISTS payroll_components (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT 'monthly',
		non_cash BOOLEAN NOT NULL DEFAULT FALSE,
		deduct_after_taxing BOOLEAN NOT NULL DEFAULT FALSE,
		applicable_relief TEXT,
		checkoff BOOLEAN NOT NULL DEFAULT FALSE,
		statutory BOOLEAN NOT NULL DEFAULT FALSE,
		phase TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0
	);

	-- Employee deduction records
	CREATE TABLE IF NOT EXISTS deduction_records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		installment TEXT NOT NULL DEFAULT '0',
		percentage TEXT NOT NULL DEFAULT '0',
		repay_amount TEXT,
		repay_installments INTEGER,
		component_id TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		issued_on TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_employee_active
		ON deduction_records(employee_id, active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDate(d *formula.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad decimal %q: %w", s, err)
	}
	return d, nil
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := parseDecimal(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseNullDate(ns sql.NullString) (*formula.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := formula.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseDecimals parses TEXT columns into their destinations.
func parseDecimals(cols map[*decimal.Decimal]string) error {
	for dst, raw := range cols {
		d, err := parseDecimal(raw)
		if err != nil {
			return err
		}
		*dst = d
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
