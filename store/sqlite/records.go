package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// DEDUCTION RECORDS (deductions.RecordWriter interface)
// =============================================================================

const recordColumns = `
	id, kind, employee_id, amount, installment, percentage,
	repay_amount, repay_installments, component_id, active, issued_on, description`

// SaveRecord validates and upserts an employee record.
func (s *Store) SaveRecord(ctx context.Context, r deductions.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		repayAmount       sql.NullString
		repayInstallments sql.NullInt64
		issued            sql.NullString
	)
	if r.Repay != nil {
		repayAmount = sql.NullString{String: r.Repay.Amount.String(), Valid: true}
		repayInstallments = sql.NullInt64{Int64: int64(r.Repay.Installments), Valid: true}
	}
	if !r.IssuedOn.IsZero() {
		issued = sql.NullString{String: r.IssuedOn.String(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deduction_records (`+recordColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			amount = excluded.amount,
			installment = excluded.installment,
			percentage = excluded.percentage,
			repay_amount = excluded.repay_amount,
			repay_installments = excluded.repay_installments,
			component_id = excluded.component_id,
			active = excluded.active,
			issued_on = excluded.issued_on,
			description = excluded.description
		WHERE deduction_records.employee_id = excluded.employee_id`,
		r.ID, string(r.Kind), string(r.EmployeeID),
		r.Amount.String(), r.Installment.String(), r.Percentage.String(),
		repayAmount, repayInstallments, nullString(string(r.ComponentID)),
		r.Active, issued, r.Description,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", r.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", deductions.ErrRecordOwnership, r.ID)
	}
	return nil
}

// Records returns every record of an employee, active or not.
func (s *Store) Records(ctx context.Context, employee deductions.EmployeeID) ([]deductions.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM deduction_records
		WHERE employee_id = ?
		ORDER BY id`, employee)
}

// ActiveRecords returns the records the aggregator sums for a pay period.
func (s *Store) ActiveRecords(ctx context.Context, employee deductions.EmployeeID) ([]deductions.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM deduction_records
		WHERE employee_id = ? AND active
		ORDER BY id`, employee)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]deductions.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var result []deductions.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRecord(row scanner) (deductions.Record, error) {
	var (
		r                               deductions.Record
		amount, installment, percentage string
		repayAmount                     sql.NullString
		repayInstallments               sql.NullInt64
		componentID, issued             sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.Kind, &r.EmployeeID, &amount, &installment, &percentage,
		&repayAmount, &repayInstallments, &componentID, &r.Active, &issued, &r.Description,
	); err != nil {
		return r, fmt.Errorf("failed to scan record: %w", err)
	}

	if err := parseDecimals(map[*decimal.Decimal]string{
		&r.Amount:      amount,
		&r.Installment: installment,
		&r.Percentage:  percentage,
	}); err != nil {
		return r, fmt.Errorf("record %s: %w", r.ID, err)
	}
	if repayAmount.Valid {
		total, err := parseDecimal(repayAmount.String)
		if err != nil {
			return r, fmt.Errorf("record %s: %w", r.ID, err)
		}
		r.Repay = &deductions.RepayOption{Amount: total, Installments: int(repayInstallments.Int64)}
	}
	r.ComponentID = formula.ComponentID(componentID.String)
	if issued.Valid {
		d, err := formula.ParseDate(issued.String)
		if err != nil {
			return r, fmt.Errorf("record %s: %w", r.ID, err)
		}
		r.IssuedOn = d
	}
	return r, nil
}
