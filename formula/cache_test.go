package formula_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/formula"
)

type countingResolver struct {
	next  formula.Resolver
	calls atomic.Int32
}

func (c *countingResolver) Resolve(ctx context.Context, t formula.Type, cat formula.Category, asOf formula.Date, override formula.FormulaID) (*formula.Formula, error) {
	c.calls.Add(1)
	return c.next.Resolve(ctx, t, cat, asOf, override)
}

func TestCachingResolver_ReusesResolution(t *testing.T) {
	// GIVEN: A caching resolver in front of a counting one
	// WHEN: Resolving the same key twice and a different date once
	// THEN: The underlying resolver is hit twice

	mem := newResolverStore(t, healthFormula("h", date(2024, time.January, 1), nil, true))
	counter := &countingResolver{next: formula.NewResolver(mem)}
	cache := formula.NewCachingResolver(counter)
	ctx := context.Background()
	asOf := date(2025, time.January, 31)

	for i := 0; i < 2; i++ {
		f, err := cache.Resolve(ctx, formula.TypeDeduction, formula.CategoryCurrentHealthInsurance, asOf, "")
		require.NoError(t, err)
		assert.Equal(t, formula.FormulaID("h"), f.ID)
	}
	_, err := cache.Resolve(ctx, formula.TypeDeduction, formula.CategoryCurrentHealthInsurance, date(2025, time.February, 28), "")
	require.NoError(t, err)

	assert.Equal(t, int32(2), counter.calls.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestCachingResolver_ErrorsNotCached(t *testing.T) {
	mem := newResolverStore(t)
	counter := &countingResolver{next: formula.NewResolver(mem)}
	cache := formula.NewCachingResolver(counter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cache.Resolve(ctx, formula.TypeIncomeTax, formula.CategoryPrimaryEmployee, date(2025, time.January, 1), "")
		assert.True(t, formula.IsConfigurationGap(err))
	}
	assert.Equal(t, int32(2), counter.calls.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestCachingResolver_ReturnsCopies(t *testing.T) {
	mem := newResolverStore(t, healthFormula("h", date(2024, time.January, 1), nil, true))
	cache := formula.NewCachingResolver(formula.NewResolver(mem))
	ctx := context.Background()
	asOf := date(2025, time.January, 1)

	f, err := cache.Resolve(ctx, formula.TypeDeduction, formula.CategoryCurrentHealthInsurance, asOf, "")
	require.NoError(t, err)
	f.Title = "mutated"

	again, err := cache.Resolve(ctx, formula.TypeDeduction, formula.CategoryCurrentHealthInsurance, asOf, "")
	require.NoError(t, err)
	assert.Empty(t, again.Title)
}
