package formula_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/formula"
)

func TestParseDeductionOrder(t *testing.T) {
	order, err := formula.ParseDeductionOrder([]byte(`{"before_tax":["nssf","housing_levy"],"after_tax":["paye"],"bonus":["x"]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"nssf", "housing_levy"}, order[formula.PhaseBeforeTax])
	assert.Equal(t, []formula.Phase{"bonus"}, order.UnknownPhases())
	assert.False(t, order.IsEmpty())
}

func TestParseDeductionOrder_EmptyFallsBackToDefault(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		order, err := formula.ParseDeductionOrder([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, formula.DefaultDeductionOrder(), order.OrDefault(), raw)
	}
}

func TestParseDeductionOrder_Malformed(t *testing.T) {
	_, err := formula.ParseDeductionOrder([]byte(`["nssf"]`))
	assert.Error(t, err)
}
