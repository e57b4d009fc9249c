package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/formula/store"
)

func TestKenyaPreset_Parses(t *testing.T) {
	b := factory.KenyaPreset()

	assert.Equal(t, "kenya_2025", b.Name)
	assert.Len(t, b.Formulas, 9)
	assert.Contains(t, factory.Presets(), factory.PresetKenya2025)

	_, err := factory.Preset("atlantis")
	assert.Error(t, err)
}

func TestSeeder_SeedsPreset(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Seeding the Kenya preset
	// THEN: Every formula is inserted and resolvable for February 2025

	ctx := context.Background()
	mem := store.NewMemory()
	seeder := factory.NewSeeder(mem, nil)

	report, err := seeder.Seed(ctx, factory.KenyaPreset())
	require.NoError(t, err)
	assert.Len(t, report.Inserted, 9)
	assert.Empty(t, report.Overlapping)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 3, report.Reliefs)

	r := formula.NewResolver(mem)
	feb := formula.NewDate(2025, time.February, 28)

	f, err := r.Resolve(ctx, formula.TypeDeduction, formula.CategorySocialSecurity, feb, "")
	require.NoError(t, err)
	assert.Equal(t, formula.FormulaID("nssf-2025"), f.ID)

	f, err = r.Resolve(ctx, formula.TypeDeduction, formula.CategorySocialSecurity, formula.NewDate(2024, time.June, 30), "")
	require.NoError(t, err)
	assert.Equal(t, formula.FormulaID("nssf-2024"), f.ID)

	f, err = r.Resolve(ctx, formula.TypeIncomeTax, formula.CategoryPrimaryEmployee, feb, "")
	require.NoError(t, err)
	assert.Equal(t, formula.FormulaID("paye-primary-2024-12"), f.ID)
	assert.Equal(t, []string{"paye"}, f.DeductionOrder[formula.PhaseAfterTax])

	f, err = r.Resolve(ctx, formula.TypeIncomeTax, formula.CategoryPrimaryEmployee, formula.NewDate(2024, time.June, 30), "")
	require.NoError(t, err)
	assert.Equal(t, formula.FormulaID("paye-primary-2023"), f.ID)
	assert.Equal(t, []string{"nhif", "housing_levy", "paye"}, f.DeductionOrder[formula.PhaseAfterTax])

	items, err := mem.Items(ctx, "nhif-2015")
	require.NoError(t, err)
	assert.Len(t, items, 17)

	levy, err := mem.Formula(ctx, "housing-levy-2024")
	require.NoError(t, err)
	assert.Equal(t, "3", levy.UpperLimitPercentage.String())
}

func TestSeeder_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seeder := factory.NewSeeder(mem, nil)

	_, err := seeder.Seed(ctx, factory.KenyaPreset())
	require.NoError(t, err)

	report, err := seeder.Seed(ctx, factory.KenyaPreset())
	require.NoError(t, err)
	assert.Empty(t, report.Inserted)
	assert.Len(t, report.Skipped, 9)

	all, err := mem.ListFormulas(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 9)
}

func TestSeeder_NewCurrentVersionSupersedes(t *testing.T) {
	// GIVEN: The preset is seeded
	// WHEN: A bundle with a newer current SHIF formula is seeded
	// THEN: The old formula is closed the day before and loses is_current

	ctx := context.Background()
	mem := store.NewMemory()
	seeder := factory.NewSeeder(mem, nil)
	_, err := seeder.Seed(ctx, factory.KenyaPreset())
	require.NoError(t, err)

	update, err := factory.ParseBundleYAML([]byte(`
name: shif-update
formulas:
  - id: shif-2026
    type: deduction
    category: current_health_insurance
    title: SHIF 2026
    effective_from: "2026-01-01"
    upper_limit: 12000
    upper_limit_percentage: 3
    is_current: true
    items:
      - {amount_from: 0, amount_to: 12000, deduct_amount: 360}
    split: {employee_percentage: 100, employer_percentage: 0}
`))
	require.NoError(t, err)

	report, err := seeder.Seed(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, []formula.FormulaID{"shif-2024"}, report.Superseded)

	old, err := mem.Formula(ctx, "shif-2024")
	require.NoError(t, err)
	assert.False(t, old.IsCurrent)
	require.NotNil(t, old.EffectiveTo)
	assert.Equal(t, "2025-12-31", old.EffectiveTo.String())
}

func TestSeeder_InvalidBundle_WritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	bad, err := factory.ParseBundleYAML([]byte(`
name: broken
reliefs:
  - {id: r1, name: R1, percentage: 10, is_active: true}
formulas:
  - id: ok
    type: levy
    category: housing_levy
    effective_from: "2024-01-01"
  - id: broken
    type: levy
    category: nowhere
    effective_from: "2024-01-01"
`))
	require.NoError(t, err)

	_, err = factory.NewSeeder(mem, nil).Seed(ctx, bad)
	assert.ErrorIs(t, err, formula.ErrInvalidFormula)

	all, err := mem.ListFormulas(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = mem.Relief(ctx, "r1")
	assert.ErrorIs(t, err, formula.ErrReliefNotFound)
}

func TestSeeder_ReportsOverlappingRanges(t *testing.T) {
	// GIVEN: The preset with an open-ended housing levy from 2024-03-19
	// WHEN: Seeding a non-current levy formula dated inside that range, and
	// one closed before it
	// THEN: Both are inserted; only the first is reported as overlapping

	ctx := context.Background()
	mem := store.NewMemory()
	seeder := factory.NewSeeder(mem, nil)
	_, err := seeder.Seed(ctx, factory.KenyaPreset())
	require.NoError(t, err)

	extra, err := factory.ParseBundleYAML([]byte(`
name: levy-drafts
formulas:
  - id: levy-draft
    type: levy
    category: housing_levy
    effective_from: "2025-06-01"
    upper_limit_percentage: 2
  - id: levy-2023
    type: levy
    category: housing_levy
    effective_from: "2023-07-01"
    effective_to: "2024-03-18"
    upper_limit_percentage: 3
`))
	require.NoError(t, err)

	report, err := seeder.Seed(ctx, extra)
	require.NoError(t, err)
	assert.Equal(t, []formula.FormulaID{"levy-draft", "levy-2023"}, report.Inserted)
	assert.Equal(t, []formula.FormulaID{"levy-draft"}, report.Overlapping)
}
