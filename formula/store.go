/*
store.go - Persistence interfaces for formula configuration

PURPOSE:
  Defines the interface between the engine and the configuration tables
  (formulas, formula items, split ratios, reliefs, payroll components).
  The engine only reads; seeding and administration write.

KEY INTERFACES:
  Store:  Read access used by the resolver and the rate loader
  Writer: Store plus the write operations used by seeding/administration

SUPERSESSION CONTRACT:
  A formula is never edited once superseded. Supersede() closes the previous
  version's effective_to, clears its is_current flag and inserts the next
  version, atomically. Nothing is ever hard-deleted.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - formula/store/memory.go: In-memory for testing

SEE ALSO:
  - resolver.go: Reads through Store
  - factory/bundle.go: Seeder writes through Writer
*/
package formula

import "context"

// =============================================================================
// STORE - Read access
// =============================================================================

type Store interface {
	// FormulasFor returns every version for (type, category), any order.
	FormulasFor(ctx context.Context, t Type, c Category) ([]Formula, error)

	// Formula returns one formula or ErrFormulaNotFound.
	Formula(ctx context.Context, id FormulaID) (*Formula, error)

	// Items returns the bracket rows of a formula, in storage order.
	Items(ctx context.Context, id FormulaID) ([]FormulaItem, error)

	// SplitRatio returns the split row, or nil when none exists.
	SplitRatio(ctx context.Context, id FormulaID) (*SplitRatio, error)

	// Component returns a payroll component or ErrComponentNotFound.
	Component(ctx context.Context, id ComponentID) (*PayrollComponent, error)

	// Relief returns a relief or ErrReliefNotFound.
	Relief(ctx context.Context, id ReliefID) (*Relief, error)
}

// =============================================================================
// WRITER - Administrative writes
// =============================================================================

type Writer interface {
	Store

	// SaveFormula inserts a new formula with its rows.
	// Returns ErrDuplicateFormula if the id exists.
	SaveFormula(ctx context.Context, def Definition) error

	// Supersede closes oldID the day before next starts and inserts next as
	// the current version. Either both happen or neither does.
	Supersede(ctx context.Context, oldID FormulaID, next Definition) error

	SaveComponent(ctx context.Context, c PayrollComponent) error
	SaveRelief(ctx context.Context, r Relief) error

	// ListFormulas returns all formulas ordered by type, category, effective_from.
	ListFormulas(ctx context.Context) ([]Formula, error)
}

// SupersededRange returns the closing date for a formula replaced by one
// starting on next.
func SupersededRange(old Formula, next Date) EffectiveRange {
	end := next.AddDays(-1)
	return EffectiveRange{From: old.EffectiveFrom, To: &end}
}
