/*
Package factory converts formula definitions between their JSON/YAML form
and formula.Definition, and seeds formula stores from bundles.

PURPOSE:
  Statutory rates change by law, not by release. Formula versions are
  therefore data: an administrator writes a JSON or YAML definition, the
  factory validates it and turns it into the rows the resolver reads.

JSON SCHEMA:
  {
    "id": "nssf-2025",
    "type": "deduction",
    "category": "social_security",
    "title": "NSSF Tier I & II",
    "unit": "KES",
    "effective_from": "2025-02-01",
    "upper_limit": "72000",
    "upper_limit_percentage": "0",
    "bracket_mode": "cumulative",
    "is_current": true,
    "items": [
      {"amount_from": "0",    "amount_to": "8000",  "deduct_percentage": "12"},
      {"amount_from": "8000", "amount_to": "72000", "deduct_percentage": "12"}
    ],
    "split": {"employee_percentage": "50", "employer_percentage": "50"}
  }

VALIDATION:
  - type, category and bracket_mode must be known values
  - effective_to, when set, is not before effective_from
  - items sorted by amount_from are contiguous and non-overlapping, and
    only the last item may be open-ended
  - no negative amounts; split sides within 0..100
  - deduction_order uses known phases

USAGE:
  f := factory.NewFormulaFactory()
  def, err := f.ParseFormula(jsonString)
  err = writer.SaveFormula(ctx, *def)

SEE ALSO:
  - bundle.go: YAML bundles and the Seeder
  - presets.go: Embedded Kenya 2025 bundle
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// FormulaJSON is the JSON/YAML representation of a formula version.
type FormulaJSON struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	Type          string `json:"type" yaml:"type"`
	Category      string `json:"category" yaml:"category"`
	Title         string `json:"title" yaml:"title"`
	Unit          string `json:"unit,omitempty" yaml:"unit,omitempty"`
	EffectiveFrom string `json:"effective_from" yaml:"effective_from"`
	EffectiveTo   string `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`

	UpperLimit           decimal.Decimal `json:"upper_limit" yaml:"upper_limit,omitempty"`
	UpperLimitAmount     decimal.Decimal `json:"upper_limit_amount" yaml:"upper_limit_amount,omitempty"`
	UpperLimitPercentage decimal.Decimal `json:"upper_limit_percentage" yaml:"upper_limit_percentage,omitempty"`
	PersonalRelief       decimal.Decimal `json:"personal_relief" yaml:"personal_relief,omitempty"`

	ReliefCarryForward bool   `json:"relief_carry_forward,omitempty" yaml:"relief_carry_forward,omitempty"`
	Progressive        bool   `json:"progressive,omitempty" yaml:"progressive,omitempty"`
	BracketMode        string `json:"bracket_mode,omitempty" yaml:"bracket_mode,omitempty"`
	ComponentID        string `json:"component_id,omitempty" yaml:"component_id,omitempty"`
	Version            string `json:"version,omitempty" yaml:"version,omitempty"`
	IsCurrent          bool   `json:"is_current" yaml:"is_current"`

	DeductionOrder map[string][]string `json:"deduction_order,omitempty" yaml:"deduction_order,omitempty"`

	Items []ItemJSON `json:"items" yaml:"items"`
	Split *SplitJSON `json:"split,omitempty" yaml:"split,omitempty"`
}

// ItemJSON is one bracket row. A missing amount_to is open-ended.
type ItemJSON struct {
	ID               string           `json:"id,omitempty" yaml:"id,omitempty"`
	AmountFrom       decimal.Decimal  `json:"amount_from" yaml:"amount_from"`
	AmountTo         *decimal.Decimal `json:"amount_to,omitempty" yaml:"amount_to,omitempty"`
	DeductAmount     decimal.Decimal  `json:"deduct_amount" yaml:"deduct_amount,omitempty"`
	DeductPercentage decimal.Decimal  `json:"deduct_percentage" yaml:"deduct_percentage,omitempty"`
}

type SplitJSON struct {
	EmployeePercentage decimal.Decimal `json:"employee_percentage" yaml:"employee_percentage"`
	EmployerPercentage decimal.Decimal `json:"employer_percentage" yaml:"employer_percentage"`
}

// =============================================================================
// FORMULA FACTORY
// =============================================================================

// FormulaFactory converts formula JSON to definitions and back.
type FormulaFactory struct{}

func NewFormulaFactory() *FormulaFactory {
	return &FormulaFactory{}
}

// ParseFormula parses and validates a JSON formula.
func (f *FormulaFactory) ParseFormula(jsonStr string) (*formula.Definition, error) {
	var fj FormulaJSON
	if err := json.Unmarshal([]byte(jsonStr), &fj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse formula JSON: %v", formula.ErrInvalidFormula, err)
	}
	return f.FromJSON(fj)
}

// FromJSON validates fj and converts it. A missing id is generated.
func (f *FormulaFactory) FromJSON(fj FormulaJSON) (*formula.Definition, error) {
	id := formula.FormulaID(fj.ID)
	if id == "" {
		id = formula.FormulaID(uuid.NewString())
	}
	invalid := func(field, format string, args ...any) error {
		return &formula.ValidationError{FormulaID: id, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	t := formula.Type(fj.Type)
	if !t.Valid() {
		return nil, invalid("type", "unknown type %q", fj.Type)
	}
	c := formula.Category(fj.Category)
	if !c.Valid() {
		return nil, invalid("category", "unknown category %q", fj.Category)
	}
	mode := formula.BracketMode(fj.BracketMode)
	if mode != "" && mode != formula.BracketCumulative && mode != formula.BracketFirstMatch {
		return nil, invalid("bracket_mode", "unknown bracket mode %q", fj.BracketMode)
	}

	from, err := formula.ParseDate(fj.EffectiveFrom)
	if err != nil {
		return nil, invalid("effective_from", "%v", err)
	}
	var to *formula.Date
	if fj.EffectiveTo != "" {
		d, err := formula.ParseDate(fj.EffectiveTo)
		if err != nil {
			return nil, invalid("effective_to", "%v", err)
		}
		if d.Before(from) {
			return nil, invalid("effective_to", "%s is before effective_from %s", d, from)
		}
		to = &d
	}

	for field, v := range map[string]decimal.Decimal{
		"upper_limit":            fj.UpperLimit,
		"upper_limit_amount":     fj.UpperLimitAmount,
		"upper_limit_percentage": fj.UpperLimitPercentage,
		"personal_relief":        fj.PersonalRelief,
	} {
		if v.IsNegative() {
			return nil, invalid(field, "must not be negative")
		}
	}

	order, err := parseDeductionOrder(fj.DeductionOrder)
	if err != nil {
		return nil, invalid("deduction_order", "%v", err)
	}

	items, err := parseItems(id, fj.Items)
	if err != nil {
		return nil, invalid("items", "%v", err)
	}

	def := &formula.Definition{
		Formula: formula.Formula{
			ID:                   id,
			Type:                 t,
			Category:             c,
			Title:                fj.Title,
			Unit:                 fj.Unit,
			EffectiveFrom:        from,
			EffectiveTo:          to,
			UpperLimit:           fj.UpperLimit,
			UpperLimitAmount:     fj.UpperLimitAmount,
			UpperLimitPercentage: fj.UpperLimitPercentage,
			PersonalRelief:       fj.PersonalRelief,
			ReliefCarryForward:   fj.ReliefCarryForward,
			Progressive:          fj.Progressive,
			BracketMode:          mode,
			ComponentID:          formula.ComponentID(fj.ComponentID),
			Version:              fj.Version,
			IsCurrent:            fj.IsCurrent,
			DeductionOrder:       order,
		},
		Items: items,
	}

	if fj.Split != nil {
		if !percentage(fj.Split.EmployeePercentage) || !percentage(fj.Split.EmployerPercentage) {
			return nil, invalid("split", "percentages must be within 0..100")
		}
		def.Split = &formula.SplitRatio{
			FormulaID:          id,
			EmployeePercentage: fj.Split.EmployeePercentage,
			EmployerPercentage: fj.Split.EmployerPercentage,
		}
	}
	return def, nil
}

// ToJSON converts a definition to its JSON form.
func (f *FormulaFactory) ToJSON(def formula.Definition) FormulaJSON {
	fm := def.Formula
	fj := FormulaJSON{
		ID:                   string(fm.ID),
		Type:                 string(fm.Type),
		Category:             string(fm.Category),
		Title:                fm.Title,
		Unit:                 fm.Unit,
		EffectiveFrom:        fm.EffectiveFrom.String(),
		UpperLimit:           fm.UpperLimit,
		UpperLimitAmount:     fm.UpperLimitAmount,
		UpperLimitPercentage: fm.UpperLimitPercentage,
		PersonalRelief:       fm.PersonalRelief,
		ReliefCarryForward:   fm.ReliefCarryForward,
		Progressive:          fm.Progressive,
		BracketMode:          string(fm.BracketMode),
		ComponentID:          string(fm.ComponentID),
		Version:              fm.Version,
		IsCurrent:            fm.IsCurrent,
		Items:                []ItemJSON{},
	}
	if fm.EffectiveTo != nil {
		fj.EffectiveTo = fm.EffectiveTo.String()
	}
	if !fm.DeductionOrder.IsEmpty() {
		fj.DeductionOrder = make(map[string][]string, len(fm.DeductionOrder))
		for p, names := range fm.DeductionOrder {
			fj.DeductionOrder[string(p)] = append([]string(nil), names...)
		}
	}
	for _, item := range def.Items {
		fj.Items = append(fj.Items, ItemJSON{
			ID:               item.ID,
			AmountFrom:       item.AmountFrom,
			AmountTo:         item.AmountTo,
			DeductAmount:     item.DeductAmount,
			DeductPercentage: item.DeductPercentage,
		})
	}
	if def.Split != nil {
		fj.Split = &SplitJSON{
			EmployeePercentage: def.Split.EmployeePercentage,
			EmployerPercentage: def.Split.EmployerPercentage,
		}
	}
	return fj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

func percentage(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

func parseDeductionOrder(raw map[string][]string) (formula.DeductionOrder, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	order := make(formula.DeductionOrder, len(raw))
	for name, components := range raw {
		p := formula.Phase(name)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown phase %q", name)
		}
		order[p] = append([]string(nil), components...)
	}
	return order, nil
}

// parseItems sorts the rows and checks the table is contiguous.
func parseItems(id formula.FormulaID, raw []ItemJSON) ([]formula.FormulaItem, error) {
	items := make([]formula.FormulaItem, 0, len(raw))
	for i, ij := range raw {
		if ij.AmountFrom.IsNegative() || ij.DeductAmount.IsNegative() || ij.DeductPercentage.IsNegative() {
			return nil, fmt.Errorf("item %d: negative value", i)
		}
		if ij.AmountTo != nil && !ij.AmountTo.GreaterThan(ij.AmountFrom) {
			return nil, fmt.Errorf("item %d: amount_to %s must exceed amount_from %s", i, ij.AmountTo, ij.AmountFrom)
		}
		itemID := ij.ID
		if itemID == "" {
			itemID = fmt.Sprintf("%s-%d", id, i+1)
		}
		items = append(items, formula.FormulaItem{
			ID:               itemID,
			FormulaID:        id,
			AmountFrom:       ij.AmountFrom,
			AmountTo:         ij.AmountTo,
			DeductAmount:     ij.DeductAmount,
			DeductPercentage: ij.DeductPercentage,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].AmountFrom.LessThan(items[j].AmountFrom)
	})
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if prev.AmountTo == nil {
			return nil, fmt.Errorf("open-ended item at %s is not the last", prev.AmountFrom)
		}
		if !prev.AmountTo.Equal(cur.AmountFrom) {
			return nil, fmt.Errorf("gap or overlap between %s and %s", prev.AmountTo, cur.AmountFrom)
		}
	}
	return items, nil
}
