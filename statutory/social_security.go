package statutory

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/formula"
)

// SocialSecurity computes the two-tier pension contribution.
//
// Tier I covers the bracket starting at zero; tier II covers brackets from
// TierThreshold upwards. A bracket stored twice is counted once.
type SocialSecurity struct {
	Deps

	// TierThreshold is the lower bound of tier II. Zero means "the smallest
	// positive lower bound in the table".
	TierThreshold decimal.Decimal
}

func NewSocialSecurity(deps Deps, tierThreshold decimal.Decimal) *SocialSecurity {
	return &SocialSecurity{Deps: deps, TierThreshold: tierThreshold}
}

func (c *SocialSecurity) Calculate(ctx context.Context, in Input) (res Result, err error) {
	defer c.recoverInto(ctx, ComponentSocialSecurity, &res, &err)

	f, rates, err := c.load(ctx, formula.TypeDeduction, formula.CategorySocialSecurity, in)
	if err != nil {
		return c.fail(ctx, ComponentSocialSecurity, err)
	}
	if rates.Degraded {
		return c.degraded(ctx, ComponentSocialSecurity, f.ID, rates.Err), nil
	}

	brackets := formula.Dedup(rates.Brackets)
	threshold, tiered := c.threshold(brackets)

	tier1, tier2 := decimal.Zero, decimal.Zero
	for _, s := range formula.Slices(in.Amount, brackets) {
		if !tiered || s.Bracket.Lower.LessThan(threshold) {
			tier1 = tier1.Add(s.Contribution)
		} else {
			tier2 = tier2.Add(s.Contribution)
		}
	}

	res = Result{Component: ComponentSocialSecurity, FormulaID: f.ID}
	res.Tier1Employee, res.Tier1Employer = split(tier1, rates)
	res.Tier2Employee, res.Tier2Employer = split(tier2, rates)
	res.Employee = res.Tier1Employee.Add(res.Tier2Employee)
	res.Employer = res.Tier1Employer.Add(res.Tier2Employer)
	res.Relief = rates.Relief(tier1.Add(tier2).Mul(rates.EmployeeFraction))
	return res, nil
}

func (c *SocialSecurity) threshold(brackets []formula.Bracket) (decimal.Decimal, bool) {
	if c.TierThreshold.IsPositive() {
		return c.TierThreshold, true
	}
	for _, b := range brackets { // sorted ascending
		if b.Lower.IsPositive() {
			return b.Lower, true
		}
	}
	return decimal.Zero, false
}
