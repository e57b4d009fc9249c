package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/formula/store"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return formula.MustParseDecimal(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

var feb2025 = formula.NewDate(2025, time.February, 28)

// newKenyaEngine seeds the embedded preset into memory stores.
func newKenyaEngine(t *testing.T, records ...deductions.Record) (*engine.Engine, *store.Memory, *deductions.Memory) {
	t.Helper()
	ctx := context.Background()

	formulas := store.NewMemory()
	_, err := factory.NewSeeder(formulas, nil).Seed(ctx, factory.KenyaPreset())
	require.NoError(t, err)

	recs := deductions.NewMemory()
	for _, r := range records {
		require.NoError(t, recs.SaveRecord(ctx, r))
	}
	return engine.New(formulas, recs, engine.Options{}), formulas, recs
}

func employeeRecords(emp deductions.EmployeeID) []deductions.Record {
	return []deductions.Record{
		{ID: "loan-1", Kind: deductions.KindLoan, EmployeeID: emp, Amount: dec("60000"), Installment: dec("5000"), Active: true},
		{ID: "adv-1", Kind: deductions.KindAdvance, EmployeeID: emp, Amount: dec("12000"), Active: true,
			Repay: &deductions.RepayOption{Amount: dec("12000"), Installments: 4}},
		{ID: "car-1", Kind: deductions.KindBenefitGrant, EmployeeID: emp, Amount: dec("2000"), ComponentID: "company_car", Active: true},
	}
}

// =============================================================================
// END TO END
// =============================================================================

func TestComputeDeductions_Kenya2025_EndToEnd(t *testing.T) {
	// GIVEN: Gross pay 180,119.00, primary employee, February 2025, one loan,
	// one advance over four installments and a non-cash car benefit
	// WHEN: Computing deductions
	// THEN: Every statutory line and the net pay match the hand-computed
	// reference

	eng, _, _ := newKenyaEngine(t, employeeRecords("emp-1")...)

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID:    "emp-1",
		GrossPay:      dec("180119.00"),
		PaymentPeriod: feb2025,
		TaxCategory:   statutory.TaxPrimary,
	})
	require.NoError(t, err)

	assertMoney(t, "180119.00", b.GrossPay)
	assertMoney(t, "480", b.NSSFTier1Employee)
	assertMoney(t, "3840", b.NSSFTier2Employee)
	assertMoney(t, "4320", b.NSSFEmployerTotal)
	assertMoney(t, "4953.27", b.HealthInsuranceEmployee)
	assertMoney(t, "0", b.HealthInsuranceEmployer)
	assertMoney(t, "2701.79", b.HousingLevyEmployee)
	assertMoney(t, "2701.79", b.HousingLevyEmployer)

	assertMoney(t, "168143.94", b.TaxablePay)
	assertMoney(t, "2400", b.PersonalRelief)
	assertMoney(t, "0", b.OtherReliefs)
	assertMoney(t, "42826.53", b.PAYE)

	assertMoney(t, "5000", b.Loans)
	assertMoney(t, "3000", b.Advances)
	assertMoney(t, "0", b.LossDamages)
	assertMoney(t, "2000", b.NonCashBenefits)

	assertMoney(t, "62801.59", b.TotalDeductions)
	assertMoney(t, "117317.41", b.NetPay)
	assert.False(t, b.Degraded)
	assert.Empty(t, b.Skipped)
}

func TestComputeDeductions_PhaseBreakdown(t *testing.T) {
	eng, _, _ := newKenyaEngine(t, employeeRecords("emp-1")...)

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("180119"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxPrimary,
	})
	require.NoError(t, err)

	require.Len(t, b.Phases, 4)
	for i, p := range formula.Phases {
		assert.Equal(t, p, b.Phases[i].Phase)
	}

	before := b.Phase(formula.PhaseBeforeTax)
	require.Len(t, before.Components, 3)
	assert.Equal(t, engine.KindNSSF, before.Components[0].Component)
	assert.Equal(t, engine.KindSHIF, before.Components[1].Component)
	assert.Equal(t, engine.KindHousingLevy, before.Components[2].Component)
	assertMoney(t, "11975.06", before.Subtotal)

	afterTax := b.Phase(formula.PhaseAfterTax)
	assertMoney(t, "42826.53", afterTax.Subtotal)
	paye, ok := b.Line(engine.KindPAYE)
	require.True(t, ok)
	assert.Equal(t, formula.FormulaID("paye-primary-2024-12"), paye.FormulaID)
	assertMoney(t, "45226.53", paye.Employee)
	assertMoney(t, "2400", paye.Relief)

	assertMoney(t, "8000", b.Phase(formula.PhaseAfterPAYE).Subtotal)

	final := b.Phase(formula.PhaseFinal)
	assertMoney(t, "2000", final.Subtotal)
	require.Len(t, final.Components, 1)
	assert.True(t, final.Components[0].RecordOnly)
}

// =============================================================================
// TAX CATEGORIES
// =============================================================================

func TestComputeDeductions_SecondaryEmployee(t *testing.T) {
	eng, _, _ := newKenyaEngine(t)

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-2", GrossPay: dec("20000"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxSecondary,
	})
	require.NoError(t, err)

	// tier I 8000 x 6% = 480, tier II 12000 x 6% = 720
	assertMoney(t, "1200", b.NSSFTier1Employee.Add(b.NSSFTier2Employee))
	assertMoney(t, "550", b.HealthInsuranceEmployee)
	assertMoney(t, "300", b.HousingLevyEmployee)
	assertMoney(t, "17950", b.TaxablePay)
	assertMoney(t, "5385", b.PAYE)
	assertMoney(t, "12565", b.NetPay)
}

func TestComputeDeductions_NoTax(t *testing.T) {
	eng, _, _ := newKenyaEngine(t)

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-3", GrossPay: dec("20000"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxNone,
	})
	require.NoError(t, err)
	assert.True(t, b.PAYE.IsZero())
	assertMoney(t, "17950", b.NetPay)
}

func TestComputeDeductions_LowIncome_PAYEFloorsAtZero(t *testing.T) {
	// GIVEN: Taxable pay whose tax is below personal relief
	// WHEN: Computing
	// THEN: PAYE is zero, never negative

	eng, _, _ := newKenyaEngine(t)

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-4", GrossPay: dec("15000"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxPrimary,
	})
	require.NoError(t, err)
	assert.True(t, b.PAYE.IsZero())
	assert.False(t, b.NetPay.GreaterThan(b.GrossPay))
}

// =============================================================================
// DEDUCTION ORDER
// =============================================================================

func saveOrderFormula(t *testing.T, mem *store.Memory, id formula.FormulaID, order formula.DeductionOrder) {
	t.Helper()
	ctx := context.Background()
	def := formula.Definition{
		Formula: formula.Formula{
			ID: id, Type: formula.TypeIncomeTax, Category: formula.CategoryPrimaryEmployee,
			EffectiveFrom: formula.NewDate(2025, time.January, 1), IsCurrent: true,
			PersonalRelief: dec("2400"), DeductionOrder: order,
		},
		Items: []formula.FormulaItem{
			{ID: string(id) + "-1", AmountFrom: dec("0"), DeductPercentage: dec("10")},
		},
	}
	require.NoError(t, mem.Supersede(ctx, "paye-primary-2024-12", def))
}

func TestComputeDeductions_UnknownComponentSkipped(t *testing.T) {
	// GIVEN: A deduction order naming a component and a phase the engine
	// does not know
	// WHEN: Computing
	// THEN: Both are skipped, the rest runs

	eng, mem, _ := newKenyaEngine(t)
	saveOrderFormula(t, mem, "paye-custom", formula.DeductionOrder{
		formula.PhaseBeforeTax: {"nssf", "pension_top_up"},
		formula.PhaseAfterTax:  {"paye"},
		"payday":               {"bonus"},
	})

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("50000"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxPrimary,
	})
	require.NoError(t, err)

	assert.Contains(t, b.Skipped, "pension_top_up")
	assert.Contains(t, b.Skipped, "phase:payday")
	assert.True(t, b.HealthInsuranceEmployee.IsZero())

	// nssf: 480 + 2520 = 3000; taxable 47000; tax 4700 - 2400
	assertMoney(t, "47000", b.TaxablePay)
	assertMoney(t, "2300", b.PAYE)
	assertMoney(t, "44700", b.NetPay)
}

func TestComputeDeductions_DuplicateComponentRunsOnce(t *testing.T) {
	eng, mem, _ := newKenyaEngine(t)
	saveOrderFormula(t, mem, "paye-dup", formula.DeductionOrder{
		formula.PhaseBeforeTax: {"nssf", "NSSF"},
		formula.PhaseAfterTax:  {"paye"},
	})

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("50000"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxPrimary,
	})
	require.NoError(t, err)

	assert.Len(t, b.Phase(formula.PhaseBeforeTax).Components, 1)
	assertMoney(t, "3000", b.Phase(formula.PhaseBeforeTax).Subtotal)
}

func TestComputeDeductions_LegacyHealthBeforeCutoff(t *testing.T) {
	// GIVEN: The unmodified preset and a June 2024 payslip
	// WHEN: Computing
	// THEN: NHIF runs instead of SHIF, NHIF and the housing levy are charged
	// after tax, and their 15% reliefs reduce PAYE

	eng, _, _ := newKenyaEngine(t)

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("50000"), PaymentPeriod: formula.NewDate(2024, time.June, 30), TaxCategory: statutory.TaxPrimary,
	})
	require.NoError(t, err)

	_, ok := b.Line(engine.KindSHIF)
	assert.False(t, ok)

	nhif, ok := b.Line(engine.KindNHIF)
	require.True(t, ok)
	assert.Equal(t, formula.FormulaID("nhif-2015"), nhif.FormulaID)
	assertMoney(t, "1200", nhif.Employee)
	assertMoney(t, "180", nhif.Relief)
	assertMoney(t, "1200", b.HealthInsuranceEmployee)

	// 1500 levy split 50/50, relief 15% of 750
	levy, ok := b.Line(engine.KindHousingLevy)
	require.True(t, ok)
	assertMoney(t, "750", levy.Employee)
	assertMoney(t, "112.50", levy.Relief)
	assertMoney(t, "292.50", b.OtherReliefs)

	// nssf-2024: 7000*6% + 29000*6% = 420 + 1740 = 2160
	assertMoney(t, "2160", b.NSSFTier1Employee.Add(b.NSSFTier2Employee))
	before := b.Phase(formula.PhaseBeforeTax)
	require.Len(t, before.Components, 1)
	assert.Equal(t, engine.KindNSSF, before.Components[0].Component)

	// tax on 47840: 2400 + 2083.25 + 4652.10 = 9135.35; less 2400 and 292.50
	assertMoney(t, "47840", b.TaxablePay)
	assertMoney(t, "6442.85", b.PAYE)
	paye, ok := b.Line(engine.KindPAYE)
	require.True(t, ok)
	assert.Equal(t, formula.FormulaID("paye-primary-2023"), paye.FormulaID)

	assertMoney(t, "39447.15", b.NetPay)
}

func TestComputeDeductions_SHIFBeforeDeductibility(t *testing.T) {
	// GIVEN: The unmodified preset and a November 2024 payslip
	// WHEN: Computing
	// THEN: SHIF replaces NHIF but, like the housing levy, is still charged
	// after tax; only the housing relief remains

	eng, _, _ := newKenyaEngine(t)

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("50000"), PaymentPeriod: formula.NewDate(2024, time.November, 30), TaxCategory: statutory.TaxPrimary,
	})
	require.NoError(t, err)

	_, ok := b.Line(engine.KindNHIF)
	assert.False(t, ok)
	shif, ok := b.Line(engine.KindSHIF)
	require.True(t, ok)
	assert.Equal(t, formula.FormulaID("shif-2024"), shif.FormulaID)
	assertMoney(t, "1375", shif.Employee)

	assertMoney(t, "47840", b.TaxablePay)
	assertMoney(t, "112.50", b.OtherReliefs)
	// 9135.35 - 2400 - 112.50
	assertMoney(t, "6622.85", b.PAYE)
	assertMoney(t, "39092.15", b.NetPay)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// =============================================================================
// ERRORS
// =============================================================================

func TestComputeDeductions_ConfigurationGapAborts(t *testing.T) {
	// GIVEN: No formulas at all
	// WHEN: Computing with the default order
	// THEN: A configuration gap is returned, not a zero breakdown

	eng := engine.New(store.NewMemory(), deductions.NewMemory(), engine.Options{})

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("50000"), PaymentPeriod: feb2025,
	})
	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, formula.IsConfigurationGap(err))
}

func TestComputeDeductions_InvalidRequest(t *testing.T) {
	eng, _, _ := newKenyaEngine(t)
	ctx := context.Background()

	cases := map[string]engine.Request{
		"missing employee": {GrossPay: dec("1"), PaymentPeriod: feb2025},
		"negative gross":   {EmployeeID: "e", GrossPay: dec("-1"), PaymentPeriod: feb2025},
		"missing period":   {EmployeeID: "e", GrossPay: dec("1")},
		"unknown category": {EmployeeID: "e", GrossPay: dec("1"), PaymentPeriod: feb2025, TaxCategory: "tertiary"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := eng.ComputeDeductions(ctx, req)
			assert.ErrorIs(t, err, formula.ErrInvalidRequest)
		})
	}
}

func TestComputeDeductions_MalformedFormulaDegrades(t *testing.T) {
	// GIVEN: The SHIF formula superseded by one with a reversed bracket
	// WHEN: Computing
	// THEN: SHIF contributes zero, the breakdown is flagged, nothing aborts

	eng, mem, _ := newKenyaEngine(t)
	require.NoError(t, mem.Supersede(context.Background(), "shif-2024", formula.Definition{
		Formula: formula.Formula{
			ID: "shif-broken", Type: formula.TypeDeduction, Category: formula.CategoryCurrentHealthInsurance,
			EffectiveFrom: formula.NewDate(2025, time.January, 1),
		},
		Items: []formula.FormulaItem{
			{ID: "x", AmountFrom: dec("5000"), AmountTo: decPtr("10"), DeductAmount: dec("300")},
		},
	}))

	b, err := eng.ComputeDeductions(context.Background(), engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("180119"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxPrimary,
	})
	require.NoError(t, err)

	assert.True(t, b.Degraded)
	assert.Equal(t, []string{"shif"}, b.DegradedComponents)
	assert.True(t, b.HealthInsuranceEmployee.IsZero())
	assertMoney(t, "4320", b.NSSFTier1Employee.Add(b.NSSFTier2Employee))
}

func TestComputeDeductions_OverrideHonoredWhenCurrent(t *testing.T) {
	// GIVEN: A 2% housing levy taking over from 2026, so February 2025 still
	// resolves to the 3% version by date
	// WHEN: Computing February 2025 with and without an override naming it
	// THEN: Only the override applies the new rate

	eng, mem, _ := newKenyaEngine(t)
	ctx := context.Background()
	require.NoError(t, mem.Supersede(ctx, "housing-levy-2024", formula.Definition{
		Formula: formula.Formula{
			ID: "ahl-pilot", Type: formula.TypeLevy, Category: formula.CategoryHousingLevy,
			EffectiveFrom:        formula.NewDate(2026, time.January, 1),
			UpperLimitPercentage: dec("2"),
		},
		Split: &formula.SplitRatio{EmployeePercentage: dec("50"), EmployerPercentage: dec("50")},
	}))

	req := engine.Request{
		EmployeeID: "emp-1", GrossPay: dec("100000"), PaymentPeriod: feb2025, TaxCategory: statutory.TaxPrimary,
	}
	b, err := eng.ComputeDeductions(ctx, req)
	require.NoError(t, err)
	assertMoney(t, "1500", b.HousingLevyEmployee)

	req.Overrides = map[formula.Type]formula.FormulaID{formula.TypeLevy: "ahl-pilot"}
	b, err = eng.ComputeDeductions(ctx, req)
	require.NoError(t, err)
	assertMoney(t, "1000", b.HousingLevyEmployee)
}
