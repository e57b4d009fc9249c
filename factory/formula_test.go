package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/formula"
)

const nssfJSON = `{
  "id": "nssf-2025",
  "type": "deduction",
  "category": "social_security",
  "title": "NSSF",
  "effective_from": "2025-02-01",
  "upper_limit": "72000",
  "bracket_mode": "cumulative",
  "is_current": true,
  "items": [
    {"amount_from": "8000", "amount_to": "72000", "deduct_percentage": "12"},
    {"amount_from": 0, "amount_to": 8000, "deduct_percentage": 12}
  ],
  "split": {"employee_percentage": "50", "employer_percentage": "50"}
}`

func TestParseFormula_Valid(t *testing.T) {
	// GIVEN: A social-security formula with items out of order
	// WHEN: Parsing
	// THEN: Items come back sorted with generated ids and the split attached

	def, err := factory.NewFormulaFactory().ParseFormula(nssfJSON)
	require.NoError(t, err)

	assert.Equal(t, formula.FormulaID("nssf-2025"), def.Formula.ID)
	assert.Equal(t, formula.CategorySocialSecurity, def.Formula.Category)
	assert.Equal(t, formula.BracketCumulative, def.Formula.Mode())
	assert.Equal(t, "2025-02-01", def.Formula.EffectiveFrom.String())
	assert.Nil(t, def.Formula.EffectiveTo)

	require.Len(t, def.Items, 2)
	assert.True(t, def.Items[0].AmountFrom.IsZero())
	assert.Equal(t, "8000", def.Items[1].AmountFrom.String())
	assert.Equal(t, formula.FormulaID("nssf-2025"), def.Items[0].FormulaID)
	assert.NotEmpty(t, def.Items[0].ID)

	require.NotNil(t, def.Split)
	assert.Equal(t, "50", def.Split.EmployerPercentage.String())
}

func TestParseFormula_GeneratesID(t *testing.T) {
	def, err := factory.NewFormulaFactory().ParseFormula(`{
		"type": "levy", "category": "housing_levy", "title": "Levy",
		"effective_from": "2024-03-19", "upper_limit_percentage": "3", "items": []
	}`)
	require.NoError(t, err)
	assert.Len(t, string(def.Formula.ID), 36)
}

func TestParseFormula_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		json  string
		field string
	}{
		{"unknown type", `{"id":"x","type":"bonus","category":"housing_levy","effective_from":"2025-01-01"}`, "type"},
		{"unknown category", `{"id":"x","type":"levy","category":"pension","effective_from":"2025-01-01"}`, "category"},
		{"bad date", `{"id":"x","type":"levy","category":"housing_levy","effective_from":"01/01/2025"}`, "effective_from"},
		{"range reversed", `{"id":"x","type":"levy","category":"housing_levy","effective_from":"2025-01-01","effective_to":"2024-12-31"}`, "effective_to"},
		{"bad mode", `{"id":"x","type":"levy","category":"housing_levy","effective_from":"2025-01-01","bracket_mode":"sum"}`, "bracket_mode"},
		{"negative limit", `{"id":"x","type":"levy","category":"housing_levy","effective_from":"2025-01-01","upper_limit":"-1"}`, "upper_limit"},
		{"bad phase", `{"id":"x","type":"income_tax","category":"primary_employee","effective_from":"2025-01-01","deduction_order":{"payday":["paye"]}}`, "deduction_order"},
		{"split over 100", `{"id":"x","type":"levy","category":"housing_levy","effective_from":"2025-01-01","split":{"employee_percentage":"150","employer_percentage":"0"}}`, "split"},
		{"gap between items", `{"id":"x","type":"income_tax","category":"primary_employee","effective_from":"2025-01-01","items":[
			{"amount_from":"0","amount_to":"100","deduct_percentage":"10"},
			{"amount_from":"150","deduct_percentage":"20"}]}`, "items"},
		{"overlapping items", `{"id":"x","type":"income_tax","category":"primary_employee","effective_from":"2025-01-01","items":[
			{"amount_from":"0","amount_to":"200","deduct_percentage":"10"},
			{"amount_from":"150","deduct_percentage":"20"}]}`, "items"},
		{"open item not last", `{"id":"x","type":"income_tax","category":"primary_employee","effective_from":"2025-01-01","items":[
			{"amount_from":"0","deduct_percentage":"10"},
			{"amount_from":"150","amount_to":"300","deduct_percentage":"20"}]}`, "items"},
		{"empty bracket", `{"id":"x","type":"income_tax","category":"primary_employee","effective_from":"2025-01-01","items":[
			{"amount_from":"100","amount_to":"100","deduct_percentage":"10"}]}`, "items"},
	}

	f := factory.NewFormulaFactory()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ParseFormula(tc.json)
			require.Error(t, err)
			assert.ErrorIs(t, err, formula.ErrInvalidFormula)

			var verr *formula.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestParseFormula_MalformedJSON(t *testing.T) {
	_, err := factory.NewFormulaFactory().ParseFormula(`{"id":`)
	assert.ErrorIs(t, err, formula.ErrInvalidFormula)
}

func TestToJSON_ParsesBackToSameDefinition(t *testing.T) {
	f := factory.NewFormulaFactory()
	def, err := f.ParseFormula(nssfJSON)
	require.NoError(t, err)

	raw, err := json.Marshal(f.ToJSON(*def))
	require.NoError(t, err)

	again, err := f.ParseFormula(string(raw))
	require.NoError(t, err)
	assert.Equal(t, def.Formula.ID, again.Formula.ID)
	assert.Equal(t, def.Formula.EffectiveFrom, again.Formula.EffectiveFrom)
	assert.True(t, def.Formula.UpperLimit.Equal(again.Formula.UpperLimit))
	require.Len(t, again.Items, len(def.Items))
	for i := range def.Items {
		assert.True(t, def.Items[i].AmountFrom.Equal(again.Items[i].AmountFrom))
		assert.True(t, def.Items[i].DeductPercentage.Equal(again.Items[i].DeductPercentage))
	}
}
