package statutory

import (
	"context"

	"github.com/warp/payroll-engine/formula"
)

// LegacyHealthInsurance looks up a flat contribution by salary bracket.
// Insurance relief applies only to periods before LegacyHealthReliefCutoff.
type LegacyHealthInsurance struct {
	Deps
}

func NewLegacyHealthInsurance(deps Deps) *LegacyHealthInsurance {
	return &LegacyHealthInsurance{Deps: deps}
}

func (c *LegacyHealthInsurance) Calculate(ctx context.Context, in Input) (res Result, err error) {
	defer c.recoverInto(ctx, ComponentLegacyHealthInsurance, &res, &err)
	return c.contribution(ctx, ComponentLegacyHealthInsurance,
		formula.TypeDeduction, formula.CategoryLegacyHealthInsurance, in,
		reliefAllowed(in.AsOf, LegacyHealthReliefCutoff))
}

// HealthInsurance is the current percentage-of-salary scheme. It has no
// relief.
type HealthInsurance struct {
	Deps
}

func NewHealthInsurance(deps Deps) *HealthInsurance {
	return &HealthInsurance{Deps: deps}
}

func (c *HealthInsurance) Calculate(ctx context.Context, in Input) (res Result, err error) {
	defer c.recoverInto(ctx, ComponentHealthInsurance, &res, &err)
	return c.contribution(ctx, ComponentHealthInsurance,
		formula.TypeDeduction, formula.CategoryCurrentHealthInsurance, in, false)
}

// contribution is the single-table calculation shared by health insurance
// and the housing levy: apply the formula's brackets, split, and grant
// relief on the employee share when allowed.
func (d Deps) contribution(ctx context.Context, component string, t formula.Type, c formula.Category, in Input, withRelief bool) (Result, error) {
	f, rates, err := d.load(ctx, t, c, in)
	if err != nil {
		return d.fail(ctx, component, err)
	}
	if rates.Degraded {
		return d.degraded(ctx, component, f.ID, rates.Err), nil
	}

	total := formula.Apply(rates.Mode, in.Amount, rates.Brackets)

	res := Result{Component: component, FormulaID: f.ID}
	res.Employee, res.Employer = split(total, rates)
	if withRelief {
		res.Relief = rates.Relief(total.Mul(rates.EmployeeFraction))
	}
	return res, nil
}
