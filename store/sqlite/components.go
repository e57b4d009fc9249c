package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// PAYROLL COMPONENTS
// =============================================================================

func (s *Store) Component(ctx context.Context, id formula.ComponentID) (*formula.PayrollComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c      formula.PayrollComponent
		relief sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, mode, non_cash, deduct_after_taxing,
		       applicable_relief, checkoff, statutory, phase, priority
		FROM payroll_components WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Category, &c.Mode, &c.NonCash, &c.DeductAfterTaxing,
		&relief, &c.Checkoff, &c.Statutory, &c.Phase, &c.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", formula.ErrComponentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load component: %w", err)
	}
	c.ApplicableRelief = formula.ReliefID(relief.String)
	return &c, nil
}

// SaveComponent inserts or replaces a component.
func (s *Store) SaveComponent(ctx context.Context, c formula.PayrollComponent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payroll_components (
			id, name, category, mode, non_cash, deduct_after_taxing,
			applicable_relief, checkoff, statutory, phase, priority
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			mode = excluded.mode,
			non_cash = excluded.non_cash,
			deduct_after_taxing = excluded.deduct_after_taxing,
			applicable_relief = excluded.applicable_relief,
			checkoff = excluded.checkoff,
			statutory = excluded.statutory,
			phase = excluded.phase,
			priority = excluded.priority`,
		c.ID, c.Name, c.Category, string(c.Mode), c.NonCash, c.DeductAfterTaxing,
		nullString(string(c.ApplicableRelief)), c.Checkoff, c.Statutory, string(c.Phase), c.Priority,
	)
	if err != nil {
		return fmt.Errorf("failed to save component %s: %w", c.ID, err)
	}
	return nil
}

// =============================================================================
// RELIEFS
// =============================================================================

func (s *Store) Relief(ctx context.Context, id formula.ReliefID) (*formula.Relief, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r                 formula.Relief
		limit, percentage string
		repealed          sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, fixed_limit, percentage, percent_of, is_active, repealed_on
		FROM reliefs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.Type, &limit, &percentage, &r.PercentOf, &r.IsActive, &repealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", formula.ErrReliefNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load relief: %w", err)
	}

	if r.FixedLimit, err = parseDecimal(limit); err != nil {
		return nil, fmt.Errorf("relief %s: %w", id, err)
	}
	if r.Percentage, err = parseDecimal(percentage); err != nil {
		return nil, fmt.Errorf("relief %s: %w", id, err)
	}
	if r.RepealedOn, err = parseNullDate(repealed); err != nil {
		return nil, fmt.Errorf("relief %s: %w", id, err)
	}
	return &r, nil
}

// SaveRelief inserts or replaces a relief.
func (s *Store) SaveRelief(ctx context.Context, r formula.Relief) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reliefs (id, name, type, fixed_limit, percentage, percent_of, is_active, repealed_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			fixed_limit = excluded.fixed_limit,
			percentage = excluded.percentage,
			percent_of = excluded.percent_of,
			is_active = excluded.is_active,
			repealed_on = excluded.repealed_on`,
		r.ID, r.Name, string(r.Type), r.FixedLimit.String(), r.Percentage.String(),
		string(r.PercentOf), r.IsActive, nullDate(r.RepealedOn),
	)
	if err != nil {
		return fmt.Errorf("failed to save relief %s: %w", r.ID, err)
	}
	return nil
}
