package formula_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/formula/store"
)

func loadRates(t *testing.T, mem *store.Memory, id formula.FormulaID, asOf formula.Date) formula.Rates {
	t.Helper()
	ctx := context.Background()
	f, err := mem.Formula(ctx, id)
	require.NoError(t, err)
	return formula.NewRateLoader(mem, nil).Load(ctx, *f, asOf)
}

func TestRateLoader_SyntheticTopBracket(t *testing.T) {
	// GIVEN: A levy with one flat row and a 2.75% rate above 10,909
	// WHEN: Loading rates
	// THEN: A synthetic (10909, +inf, 2.75%) bracket is appended

	mem := newResolverStore(t, formula.Definition{
		Formula: formula.Formula{
			ID:                   "shif",
			Type:                 formula.TypeDeduction,
			Category:             formula.CategoryCurrentHealthInsurance,
			EffectiveFrom:        date(2024, time.October, 1),
			UpperLimit:           dec("10909"),
			UpperLimitPercentage: dec("2.75"),
		},
		Items: []formula.FormulaItem{
			{ID: "i1", AmountFrom: dec("0"), AmountTo: decPtr("10909"), DeductAmount: dec("300")},
		},
		Split: &formula.SplitRatio{EmployeePercentage: dec("100"), EmployerPercentage: dec("0")},
	})

	rates := loadRates(t, mem, "shif", date(2025, time.January, 1))

	assert.False(t, rates.Degraded)
	assert.Equal(t, formula.BracketFirstMatch, rates.Mode)
	require.Len(t, rates.Brackets, 2)
	top := rates.Brackets[1]
	assertMoney(t, "10909", top.Lower)
	assert.Nil(t, top.Upper)
	assertMoney(t, "0.0275", top.Rate)
	assertMoney(t, "1", rates.EmployeeFraction)
	assertMoney(t, "0", rates.EmployerFraction)
}

func TestRateLoader_IncomeTax_NoSyntheticBracket(t *testing.T) {
	mem := newResolverStore(t, formula.Definition{
		Formula: formula.Formula{
			ID:                   "paye",
			Type:                 formula.TypeIncomeTax,
			Category:             formula.CategoryPrimaryEmployee,
			EffectiveFrom:        date(2023, time.July, 1),
			UpperLimit:           dec("32333"),
			UpperLimitPercentage: dec("35"),
		},
		Items: []formula.FormulaItem{
			{ID: "b1", AmountFrom: dec("0"), AmountTo: decPtr("24000"), DeductPercentage: dec("10")},
			{ID: "b2", AmountFrom: dec("24000"), DeductPercentage: dec("25")},
		},
	})

	rates := loadRates(t, mem, "paye", date(2025, time.January, 1))

	assert.Len(t, rates.Brackets, 2)
	assert.Equal(t, formula.BracketCumulative, rates.Mode)
}

func TestRateLoader_NoLimitNoRate_NothingAppended(t *testing.T) {
	mem := newResolverStore(t, formula.Definition{
		Formula: formula.Formula{
			ID:            "nhif",
			Type:          formula.TypeDeduction,
			Category:      formula.CategoryLegacyHealthInsurance,
			EffectiveFrom: date(2015, time.April, 1),
		},
		Items: []formula.FormulaItem{
			{ID: "n1", AmountFrom: dec("0"), AmountTo: decPtr("5999"), DeductAmount: dec("150")},
		},
	})

	rates := loadRates(t, mem, "nhif", date(2020, time.January, 1))
	assert.Len(t, rates.Brackets, 1)
}

func TestRateLoader_DefaultSplit(t *testing.T) {
	// GIVEN: No split ratio row
	// WHEN: Loading rates
	// THEN: Employee carries the whole contribution

	mem := newResolverStore(t, healthFormula("h", date(2024, time.January, 1), nil, true))
	rates := loadRates(t, mem, "h", date(2025, time.January, 1))

	assert.False(t, rates.Degraded)
	assertMoney(t, "1", rates.EmployeeFraction)
	assertMoney(t, "0", rates.EmployerFraction)
	assert.Empty(t, rates.Brackets)
}

func TestRateLoader_ReliefFraction(t *testing.T) {
	// GIVEN: A formula linked to a deduction component with a 15% relief
	// WHEN: Loading before and after the relief's repeal date
	// THEN: The fraction is 0.15 before and zero after

	ctx := context.Background()
	repealed := date(2024, time.December, 27)
	mem := newResolverStore(t, formula.Definition{Formula: formula.Formula{
		ID:            "ahl",
		Type:          formula.TypeLevy,
		Category:      formula.CategoryHousingLevy,
		EffectiveFrom: date(2024, time.March, 19),
		ComponentID:   "housing_levy",
	}})
	require.NoError(t, mem.SaveComponent(ctx, formula.PayrollComponent{
		ID: "housing_levy", Category: formula.ComponentDeduction, ApplicableRelief: "ahr",
	}))
	require.NoError(t, mem.SaveRelief(ctx, formula.Relief{
		ID: "ahr", Percentage: dec("15"), IsActive: true, RepealedOn: &repealed,
	}))

	before := loadRates(t, mem, "ahl", date(2024, time.November, 1))
	assertMoney(t, "0.15", before.ReliefFraction)

	after := loadRates(t, mem, "ahl", date(2025, time.January, 1))
	assert.True(t, after.ReliefFraction.IsZero())
}

func TestRateLoader_ReliefCappedAtFixedLimit(t *testing.T) {
	// GIVEN: A 15% insurance relief with a 5,000 monthly limit
	// WHEN: Computing relief on 20,000 and on 40,000 of contributions
	// THEN: 3,000 is granted in full, 6,000 is capped at 5,000

	ctx := context.Background()
	mem := newResolverStore(t, formula.Definition{Formula: formula.Formula{
		ID: "nhif", Type: formula.TypeDeduction, Category: formula.CategoryLegacyHealthInsurance,
		EffectiveFrom: date(2015, time.April, 1), ComponentID: "nhif",
	}})
	require.NoError(t, mem.SaveComponent(ctx, formula.PayrollComponent{
		ID: "nhif", Category: formula.ComponentDeduction, ApplicableRelief: "insurance",
	}))
	require.NoError(t, mem.SaveRelief(ctx, formula.Relief{
		ID: "insurance", Percentage: dec("15"), FixedLimit: dec("5000"), IsActive: true,
	}))

	rates := loadRates(t, mem, "nhif", date(2024, time.June, 30))
	assertMoney(t, "5000", rates.ReliefCap)
	assertMoney(t, "3000", rates.Relief(dec("20000")))
	assertMoney(t, "5000", rates.Relief(dec("40000")))

	uncapped := formula.Rates{ReliefFraction: dec("0.15")}
	assertMoney(t, "6000", uncapped.Relief(dec("40000")))
}

func TestRateLoader_EarningComponent_NoRelief(t *testing.T) {
	ctx := context.Background()
	mem := newResolverStore(t, formula.Definition{Formula: formula.Formula{
		ID: "f", Type: formula.TypeDeduction, Category: formula.CategorySocialSecurity,
		EffectiveFrom: date(2024, time.January, 1), ComponentID: "c",
	}})
	require.NoError(t, mem.SaveComponent(ctx, formula.PayrollComponent{
		ID: "c", Category: formula.ComponentEarning, ApplicableRelief: "r",
	}))
	require.NoError(t, mem.SaveRelief(ctx, formula.Relief{ID: "r", Percentage: dec("15"), IsActive: true}))

	rates := loadRates(t, mem, "f", date(2025, time.January, 1))
	assert.True(t, rates.ReliefFraction.IsZero())
}

// =============================================================================
// FAIL-OPEN
// =============================================================================

func TestRateLoader_MissingComponent_Degrades(t *testing.T) {
	// GIVEN: Formula references a component that does not exist
	// WHEN: Loading rates
	// THEN: Defaults come back flagged degraded, no panic, no error

	mem := newResolverStore(t, formula.Definition{Formula: formula.Formula{
		ID: "f", Type: formula.TypeDeduction, Category: formula.CategorySocialSecurity,
		EffectiveFrom: date(2024, time.January, 1), ComponentID: "ghost",
		UpperLimit: dec("100"), UpperLimitPercentage: dec("5"),
	}})

	rates := loadRates(t, mem, "f", date(2025, time.January, 1))

	assert.True(t, rates.Degraded)
	assert.Error(t, rates.Err)
	assert.Empty(t, rates.Brackets)
	assertMoney(t, "1", rates.EmployeeFraction)
	assert.True(t, rates.ReliefFraction.IsZero())
}

func TestRateLoader_MalformedItem_Degrades(t *testing.T) {
	mem := newResolverStore(t, formula.Definition{
		Formula: formula.Formula{
			ID: "bad", Type: formula.TypeDeduction, Category: formula.CategorySocialSecurity,
			EffectiveFrom: date(2024, time.January, 1),
		},
		Items: []formula.FormulaItem{
			{ID: "x", AmountFrom: dec("5000"), AmountTo: decPtr("100"), DeductPercentage: dec("6")},
		},
	})

	rates := loadRates(t, mem, "bad", date(2025, time.January, 1))
	assert.True(t, rates.Degraded)
	assert.True(t, formula.ApplyProgressive(dec("50000"), rates.Brackets).IsZero())
}
