package deductions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/formula"
)

// Totals are the unrounded monthly sums for one employee.
type Totals struct {
	Loans           decimal.Decimal
	Advances        decimal.Decimal
	LossDamages     decimal.Decimal
	NonCashBenefits decimal.Decimal

	// Faults lists the records that were skipped. Each is a
	// *formula.RecordFaultError.
	Faults []error
}

func (t Totals) add(kind RecordKind, amount decimal.Decimal) Totals {
	switch kind {
	case KindLoan:
		t.Loans = t.Loans.Add(amount)
	case KindAdvance:
		t.Advances = t.Advances.Add(amount)
	case KindLossDamage:
		t.LossDamages = t.LossDamages.Add(amount)
	case KindBenefitGrant:
		t.NonCashBenefits = t.NonCashBenefits.Add(amount)
	}
	return t
}

// Aggregator sums an employee's active deduction records.
//
// A record that cannot be evaluated is logged and contributes zero; it never
// fails the employee's computation.
type Aggregator struct {
	Records    RecordStore
	Components ComponentLookup
	Logger     *slog.Logger
}

func NewAggregator(records RecordStore, components ComponentLookup, logger *slog.Logger) *Aggregator {
	return &Aggregator{Records: records, Components: components, Logger: logger}
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Aggregate returns the employee's loans, advances, loss/damage charges and
// non-cash benefits for one period.
func (a *Aggregator) Aggregate(ctx context.Context, employee EmployeeID, gross decimal.Decimal) Totals {
	totals := Totals{
		Loans:           decimal.Zero,
		Advances:        decimal.Zero,
		LossDamages:     decimal.Zero,
		NonCashBenefits: decimal.Zero,
	}
	if a.Records == nil {
		return totals
	}

	records, err := a.Records.ActiveRecords(ctx, employee)
	if err != nil {
		totals.Faults = append(totals.Faults, a.fault(ctx, employee, "records", "", err))
		return totals
	}

	for _, r := range records {
		if !r.Active || r.EmployeeID != employee {
			continue
		}
		amount, counted, err := a.evaluate(ctx, r, gross)
		if err != nil {
			totals.Faults = append(totals.Faults, a.fault(ctx, employee, string(r.Kind), r.ID, err))
			continue
		}
		if counted {
			totals = totals.add(r.Kind, amount)
		}
	}
	return totals
}

// evaluate computes one record. counted is false for records that are valid
// but do not contribute, such as cash benefit grants.
func (a *Aggregator) evaluate(ctx context.Context, r Record, gross decimal.Decimal) (amount decimal.Decimal, counted bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			amount, counted, err = decimal.Zero, false, fmt.Errorf("panic: %v", p)
		}
	}()

	if !r.Kind.Valid() {
		return decimal.Zero, false, fmt.Errorf("unknown record kind %q", r.Kind)
	}
	if r.Kind == KindBenefitGrant {
		nonCash, err := a.nonCash(ctx, r.ComponentID)
		if err != nil {
			return decimal.Zero, false, err
		}
		if !nonCash {
			return decimal.Zero, false, nil
		}
	}
	amount, err = r.Monthly(gross)
	if err != nil {
		return decimal.Zero, false, err
	}
	return amount, true, nil
}

func (a *Aggregator) nonCash(ctx context.Context, id formula.ComponentID) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("benefit grant has no component")
	}
	if a.Components == nil {
		return false, fmt.Errorf("no component lookup configured")
	}
	c, err := a.Components.Component(ctx, id)
	if err != nil {
		return false, err
	}
	return c.NonCash, nil
}

func (a *Aggregator) fault(ctx context.Context, employee EmployeeID, kind, id string, cause error) error {
	a.logger().WarnContext(ctx, "employee record skipped",
		"employee_id", employee,
		"record_kind", kind,
		"record_id", id,
		"error", cause,
	)
	return &formula.RecordFaultError{Kind: kind, RecordID: id, Cause: cause}
}
