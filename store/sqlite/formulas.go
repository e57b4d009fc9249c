package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// FORMULA STORE (formula.Store interface)
// =============================================================================

const formulaColumns = `
	id, type, category, title, unit, effective_from, effective_to,
	upper_limit, upper_limit_amount, upper_limit_percentage, personal_relief,
	relief_carry_forward, progressive, bracket_mode, component_id, version,
	is_current, deduction_order_json`

// FormulasFor returns every version for (type, category).
func (s *Store) FormulasFor(ctx context.Context, t formula.Type, c formula.Category) ([]formula.Formula, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + formulaColumns + `
		FROM formulas
		WHERE type = ? AND category = ?
		ORDER BY effective_from ASC`

	return s.queryFormulas(ctx, s.db, query, t, c)
}

// Formula loads one formula by id.
func (s *Store) Formula(ctx context.Context, id formula.FormulaID) (*formula.Formula, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFormula(ctx, s.db, id)
}

func getFormula(ctx context.Context, db dbtx, id formula.FormulaID) (*formula.Formula, error) {
	row := db.QueryRowContext(ctx, `SELECT `+formulaColumns+` FROM formulas WHERE id = ?`, id)
	f, err := scanFormula(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", formula.ErrFormulaNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFormulas returns every stored formula ordered by type, category and
// effective date.
func (s *Store) ListFormulas(ctx context.Context) ([]formula.Formula, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + formulaColumns + `
		FROM formulas
		ORDER BY type, category, effective_from`

	return s.queryFormulas(ctx, s.db, query)
}

// Items returns the bracket rows in declaration order.
func (s *Store) Items(ctx context.Context, id formula.FormulaID) ([]formula.FormulaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, formula_id, amount_from, amount_to, deduct_amount, deduct_percentage
		FROM formula_items
		WHERE formula_id = ?
		ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query formula items: %w", err)
	}
	defer rows.Close()

	var result []formula.FormulaItem
	for rows.Next() {
		var (
			item                     formula.FormulaItem
			from, amount, percentage string
			to                       sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.FormulaID, &from, &to, &amount, &percentage); err != nil {
			return nil, fmt.Errorf("failed to scan formula item: %w", err)
		}
		if err := parseDecimals(map[*decimal.Decimal]string{
			&item.AmountFrom:       from,
			&item.DeductAmount:     amount,
			&item.DeductPercentage: percentage,
		}); err != nil {
			return nil, fmt.Errorf("formula item %s: %w", item.ID, err)
		}
		if item.AmountTo, err = parseNullDecimal(to); err != nil {
			return nil, fmt.Errorf("formula item %s: %w", item.ID, err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// SplitRatio returns nil, nil when the formula has no split row.
func (s *Store) SplitRatio(ctx context.Context, id formula.FormulaID) (*formula.SplitRatio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var employee, employer string
	err := s.db.QueryRowContext(ctx,
		`SELECT employee_percentage, employer_percentage FROM split_ratios WHERE formula_id = ?`, id,
	).Scan(&employee, &employer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load split ratio: %w", err)
	}

	split := &formula.SplitRatio{FormulaID: id}
	if err := parseDecimals(map[*decimal.Decimal]string{
		&split.EmployeePercentage: employee,
		&split.EmployerPercentage: employer,
	}); err != nil {
		return nil, fmt.Errorf("split ratio %s: %w", id, err)
	}
	return split, nil
}

func (s *Store) queryFormulas(ctx context.Context, db dbtx, query string, args ...any) ([]formula.Formula, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query formulas: %w", err)
	}
	defer rows.Close()

	var result []formula.Formula
	for rows.Next() {
		f, err := scanFormula(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func scanFormula(row scanner) (formula.Formula, error) {
	var (
		f                                      formula.Formula
		from                                   string
		to, componentID, orderJSON             sql.NullString
		limit, limitAmount, limitPct, personal string
	)
	err := row.Scan(
		&f.ID, &f.Type, &f.Category, &f.Title, &f.Unit, &from, &to,
		&limit, &limitAmount, &limitPct, &personal,
		&f.ReliefCarryForward, &f.Progressive, &f.BracketMode, &componentID, &f.Version,
		&f.IsCurrent, &orderJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, err
		}
		return f, fmt.Errorf("failed to scan formula: %w", err)
	}

	if f.EffectiveFrom, err = formula.ParseDate(from); err != nil {
		return f, fmt.Errorf("formula %s: %w", f.ID, err)
	}
	if f.EffectiveTo, err = parseNullDate(to); err != nil {
		return f, fmt.Errorf("formula %s: %w", f.ID, err)
	}
	if err := parseDecimals(map[*decimal.Decimal]string{
		&f.UpperLimit:           limit,
		&f.UpperLimitAmount:     limitAmount,
		&f.UpperLimitPercentage: limitPct,
		&f.PersonalRelief:       personal,
	}); err != nil {
		return f, fmt.Errorf("formula %s: %w", f.ID, err)
	}
	f.ComponentID = formula.ComponentID(componentID.String)
	if orderJSON.Valid {
		if f.DeductionOrder, err = formula.ParseDeductionOrder([]byte(orderJSON.String)); err != nil {
			return f, fmt.Errorf("formula %s: %w", f.ID, err)
		}
	}
	return f, nil
}

// =============================================================================
// FORMULA WRITER (formula.Writer interface)
// =============================================================================

// SaveFormula inserts a formula with its items and split ratio atomically.
func (s *Store) SaveFormula(ctx context.Context, def formula.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertDefinition(ctx, tx, def); err != nil {
		return err
	}
	return tx.Commit()
}

// Supersede closes oldID the day before next takes effect and inserts next
// as the current version.
func (s *Store) Supersede(ctx context.Context, oldID formula.FormulaID, next formula.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := getFormula(ctx, tx, oldID)
	if err != nil {
		return err
	}

	closed := formula.SupersededRange(*old, next.Formula.EffectiveFrom)
	if _, err := tx.ExecContext(ctx,
		`UPDATE formulas SET effective_to = ?, is_current = FALSE WHERE id = ?`,
		nullDate(closed.To), oldID,
	); err != nil {
		return fmt.Errorf("failed to close formula %s: %w", oldID, err)
	}

	next.Formula.IsCurrent = true
	if err := insertDefinition(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

func insertDefinition(ctx context.Context, db dbtx, def formula.Definition) error {
	f := def.Formula

	var orderJSON sql.NullString
	if !f.DeductionOrder.IsEmpty() {
		raw, err := json.Marshal(f.DeductionOrder)
		if err != nil {
			return fmt.Errorf("failed to encode deduction order: %w", err)
		}
		orderJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO formulas (`+formulaColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Type, f.Category, f.Title, f.Unit,
		f.EffectiveFrom.String(), nullDate(f.EffectiveTo),
		f.UpperLimit.String(), f.UpperLimitAmount.String(), f.UpperLimitPercentage.String(), f.PersonalRelief.String(),
		f.ReliefCarryForward, f.Progressive, string(f.BracketMode), nullString(string(f.ComponentID)), f.Version,
		f.IsCurrent, orderJSON,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s (id taken or another current version exists)", formula.ErrDuplicateFormula, f.ID)
		}
		return fmt.Errorf("failed to insert formula %s: %w", f.ID, err)
	}

	for i, item := range def.Items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", f.ID, i+1)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO formula_items (id, formula_id, position, amount_from, amount_to, deduct_amount, deduct_percentage)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, f.ID, i, item.AmountFrom.String(), nullDecimal(item.AmountTo),
			item.DeductAmount.String(), item.DeductPercentage.String(),
		); err != nil {
			return fmt.Errorf("failed to insert formula item %s: %w", id, err)
		}
	}

	if def.Split != nil {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO split_ratios (formula_id, employee_percentage, employer_percentage)
			VALUES (?, ?, ?)`,
			f.ID, def.Split.EmployeePercentage.String(), def.Split.EmployerPercentage.String(),
		); err != nil {
			return fmt.Errorf("failed to insert split ratio: %w", err)
		}
	}
	return nil
}
