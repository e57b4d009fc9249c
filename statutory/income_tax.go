package statutory

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/formula"
)

// IncomeTax computes PAYE on taxable pay.
//
//   - primary:   the primary-employee brackets, applied progressively
//   - secondary: the secondary-employee rate, applied flat to the whole amount
//   - none:      zero
//
// Employee holds the tax before relief and Relief the formula's personal
// relief; the orchestrator does the subtraction.
type IncomeTax struct {
	Deps
}

func NewIncomeTax(deps Deps) *IncomeTax {
	return &IncomeTax{Deps: deps}
}

func (c *IncomeTax) Calculate(ctx context.Context, in Input) (res Result, err error) {
	defer c.recoverInto(ctx, ComponentIncomeTax, &res, &err)

	var category formula.Category
	switch in.TaxCategory {
	case TaxPrimary:
		category = formula.CategoryPrimaryEmployee
	case TaxSecondary:
		category = formula.CategorySecondaryEmployee
	default:
		return Result{Component: ComponentIncomeTax}, nil
	}

	f, rates, err := c.load(ctx, formula.TypeIncomeTax, category, in)
	if err != nil {
		return c.fail(ctx, ComponentIncomeTax, err)
	}
	if rates.Degraded {
		return c.degraded(ctx, ComponentIncomeTax, f.ID, rates.Err), nil
	}

	var tax decimal.Decimal
	if in.TaxCategory == TaxSecondary {
		tax = in.Amount.Mul(flatRate(rates.Brackets))
	} else {
		tax = formula.Apply(rates.Mode, in.Amount, rates.Brackets)
	}

	return Result{
		Component: ComponentIncomeTax,
		FormulaID: f.ID,
		Employee:  formula.RoundMoney(formula.MaxZero(tax)),
		Relief:    formula.RoundMoney(f.PersonalRelief),
	}, nil
}

// flatRate is the rate of the lowest percentage bracket.
func flatRate(brackets []formula.Bracket) decimal.Decimal {
	for _, b := range brackets {
		if !b.Flat {
			return b.Rate
		}
	}
	return decimal.Zero
}
