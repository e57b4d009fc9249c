// Package statutory implements the statutory contribution calculators
// (social security, health insurance, housing levy, income tax) on top of
// the formula resolver and rate loader.
//
// Every calculator fails open: an internal fault yields an all-zero result
// flagged Degraded and a WARN log, so one bad formula never stops a payroll
// run. The only error a calculator returns is a configuration gap.
package statutory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/formula"
)

// Component names used in results and logs.
const (
	ComponentSocialSecurity        = "social_security"
	ComponentLegacyHealthInsurance = "legacy_health_insurance"
	ComponentHealthInsurance       = "health_insurance"
	ComponentHousingLevy           = "housing_levy"
	ComponentIncomeTax             = "income_tax"
)

// TaxCategory is the employee's income-tax category.
type TaxCategory string

const (
	TaxPrimary   TaxCategory = "primary"
	TaxSecondary TaxCategory = "secondary"
	TaxNone      TaxCategory = "none"
)

func ParseTaxCategory(s string) (TaxCategory, bool) {
	switch TaxCategory(s) {
	case TaxPrimary, TaxSecondary, TaxNone:
		return TaxCategory(s), true
	}
	return "", false
}

// Input is what every calculator receives.
type Input struct {
	Amount      decimal.Decimal // gross or taxable pay, depending on the phase
	AsOf        formula.Date    // payment period date
	Override    formula.FormulaID
	TaxCategory TaxCategory // income tax only
}

// Result carries the rounded output of one calculator.
type Result struct {
	Component string
	FormulaID formula.FormulaID

	Employee decimal.Decimal
	Employer decimal.Decimal
	Relief   decimal.Decimal

	// Social security tiers; zero for other calculators.
	Tier1Employee decimal.Decimal
	Tier2Employee decimal.Decimal
	Tier1Employer decimal.Decimal
	Tier2Employer decimal.Decimal

	Degraded bool
	Err      error
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

// Deps are the collaborators shared by all calculators.
type Deps struct {
	Resolver formula.Resolver
	Loader   *formula.RateLoader
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// load resolves the formula and expands it. A configuration gap is returned
// as-is; any other failure is wrapped for degradation.
func (d Deps) load(ctx context.Context, t formula.Type, c formula.Category, in Input) (*formula.Formula, formula.Rates, error) {
	f, err := d.Resolver.Resolve(ctx, t, c, in.AsOf, in.Override)
	if err != nil {
		return nil, formula.Rates{}, err
	}
	return f, d.Loader.Load(ctx, *f, in.AsOf), nil
}

// fail turns a load error into the calculator's return values.
func (d Deps) fail(ctx context.Context, component string, err error) (Result, error) {
	if formula.IsConfigurationGap(err) {
		return Result{Component: component}, err
	}
	return d.degraded(ctx, component, "", err), nil
}

func (d Deps) degraded(ctx context.Context, component string, id formula.FormulaID, cause error) Result {
	d.logger().WarnContext(ctx, "statutory calculation degraded",
		"component", component,
		"formula_id", id,
		"error", cause,
	)
	return Result{
		Component: component,
		FormulaID: id,
		Degraded:  true,
		Err:       &formula.DegradedError{Component: component, FormulaID: id, Cause: cause},
	}
}

// recoverInto converts a panic inside a calculator into a degraded result.
func (d Deps) recoverInto(ctx context.Context, component string, res *Result, err *error) {
	if p := recover(); p != nil {
		*res = d.degraded(ctx, component, res.FormulaID, fmt.Errorf("panic: %v", p))
		*err = nil
	}
}

// split applies the employee/employer fractions and rounds at output.
func split(total decimal.Decimal, rates formula.Rates) (employee, employer decimal.Decimal) {
	return formula.RoundMoney(total.Mul(rates.EmployeeFraction)),
		formula.RoundMoney(total.Mul(rates.EmployerFraction))
}
