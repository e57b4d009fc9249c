/*
records.go - Employee-linked deduction records

PURPOSE:
  Loans, salary advances, loss/damage charges and non-cash benefit grants
  attached to one employee. Each record is append-only history: the payroll
  orchestrator that commits a run clears Active once a record is repaid.
  This package only reads them.

MONTHLY AMOUNT:
  A record resolves to one monthly figure, in this order:
    1. RepayOption set     -> Amount / Installments (decimal division)
    2. Installment set     -> Installment
    3. Percentage set      -> gross pay × Percentage / 100
    4. otherwise           -> Amount (benefit grants)

SEE ALSO:
  - aggregator.go: Sums active records per kind
  - store/sqlite: Persistent RecordStore
*/
package deductions

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/formula"
)

type EmployeeID string

// RecordKind identifies which total a record contributes to.
type RecordKind string

const (
	KindLoan         RecordKind = "loan"
	KindAdvance      RecordKind = "advance"
	KindLossDamage   RecordKind = "loss_damage"
	KindBenefitGrant RecordKind = "benefit_grant"
)

func (k RecordKind) Valid() bool {
	switch k {
	case KindLoan, KindAdvance, KindLossDamage, KindBenefitGrant:
		return true
	}
	return false
}

// RepayOption spreads a total over a number of monthly installments.
type RepayOption struct {
	Amount       decimal.Decimal
	Installments int
}

var (
	errNoInstallments = errors.New("repayment option has no installments")
	errNegative       = errors.New("negative amount")

	// ErrRecordOwnership is returned when a record id is already held by
	// another employee.
	ErrRecordOwnership = errors.New("record id belongs to another employee")
)

// Installment returns Amount / Installments without truncation.
func (o RepayOption) Installment() (decimal.Decimal, error) {
	if o.Installments <= 0 {
		return decimal.Zero, errNoInstallments
	}
	if o.Amount.IsNegative() {
		return decimal.Zero, errNegative
	}
	return o.Amount.Div(decimal.NewFromInt(int64(o.Installments))), nil
}

// Record is one loan, advance, loss/damage charge or benefit grant.
type Record struct {
	ID         string
	Kind       RecordKind
	EmployeeID EmployeeID

	Amount      decimal.Decimal // principal, charge or benefit value
	Installment decimal.Decimal // fixed monthly installment
	Percentage  decimal.Decimal // of gross pay
	Repay       *RepayOption

	// Benefit grants only: the component whose non-cash flag decides
	// whether the grant is counted.
	ComponentID formula.ComponentID

	Active      bool
	IssuedOn    formula.Date
	Description string
}

// Monthly returns the record's deduction for one pay period.
func (r Record) Monthly(gross decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch {
	case r.Repay != nil:
		v, err := r.Repay.Installment()
		if err != nil {
			return decimal.Zero, err
		}
		amount = v
	case !r.Installment.IsZero():
		amount = r.Installment
	case !r.Percentage.IsZero():
		amount = gross.Mul(formula.Percent(r.Percentage))
	default:
		amount = r.Amount
	}
	if amount.IsNegative() {
		return decimal.Zero, errNegative
	}
	return amount, nil
}

// Validate checks a record before it is stored.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: record id is required", formula.ErrInvalidRequest)
	}
	if r.EmployeeID == "" {
		return fmt.Errorf("%w: employee id is required", formula.ErrInvalidRequest)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown record kind %q", formula.ErrInvalidRequest, r.Kind)
	}
	if r.Kind == KindBenefitGrant && r.ComponentID == "" {
		return fmt.Errorf("%w: benefit grant %s has no component", formula.ErrInvalidRequest, r.ID)
	}
	if _, err := r.Monthly(decimal.Zero); err != nil {
		return fmt.Errorf("%w: record %s: %v", formula.ErrInvalidRequest, r.ID, err)
	}
	return nil
}

// =============================================================================
// STORE
// =============================================================================

// RecordStore reads employee deduction records.
type RecordStore interface {
	// ActiveRecords returns the employee's active records of every kind.
	ActiveRecords(ctx context.Context, employee EmployeeID) ([]Record, error)
}

// RecordWriter adds record persistence. SaveRecord may update a record of
// the same employee but never moves a record to another employee.
type RecordWriter interface {
	RecordStore
	SaveRecord(ctx context.Context, r Record) error
	Records(ctx context.Context, employee EmployeeID) ([]Record, error)
}

// ComponentLookup resolves payroll components; formula.Store satisfies it.
type ComponentLookup interface {
	Component(ctx context.Context, id formula.ComponentID) (*formula.PayrollComponent, error)
}
