package formula

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// DEDUCTION ORDER - Phase sequence declared on a formula version
// =============================================================================

// Phase is one stage of the deduction sequence.
type Phase string

const (
	PhaseBeforeTax Phase = "before_tax" // reduces taxable pay
	PhaseAfterTax  Phase = "after_tax"  // income tax on taxable pay
	PhaseAfterPAYE Phase = "after_paye" // employee-specific recoveries
	PhaseFinal     Phase = "final"      // non-cash items, recorded only
)

// Phases lists the phases in execution order.
var Phases = []Phase{PhaseBeforeTax, PhaseAfterTax, PhaseAfterPAYE, PhaseFinal}

func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// DeductionOrder maps each phase to component names in declaration order.
// Component names are interpreted by the engine; this package treats them as
// opaque strings.
type DeductionOrder map[Phase][]string

// DefaultDeductionOrder is used for formulas created before ordering was
// configurable.
func DefaultDeductionOrder() DeductionOrder {
	return DeductionOrder{
		PhaseBeforeTax: {"nssf", "shif", "housing_levy"},
		PhaseAfterTax:  {"paye"},
		PhaseAfterPAYE: {"loans", "advances", "loss_damages"},
		PhaseFinal:     {"non_cash_benefits"},
	}
}

func (o DeductionOrder) IsEmpty() bool {
	for _, names := range o {
		if len(names) > 0 {
			return false
		}
	}
	return true
}

// OrDefault returns o, or the default order when nothing is configured.
func (o DeductionOrder) OrDefault() DeductionOrder {
	if o.IsEmpty() {
		return DefaultDeductionOrder()
	}
	return o
}

// UnknownPhases returns configured phase keys the engine does not run.
func (o DeductionOrder) UnknownPhases() []Phase {
	var unknown []Phase
	for p := range o {
		if !p.Valid() {
			unknown = append(unknown, p)
		}
	}
	return unknown
}

// ParseDeductionOrder decodes the stored JSON form
// {"before_tax": ["nssf", ...], ...}. Empty input yields an empty order.
func ParseDeductionOrder(raw []byte) (DeductionOrder, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var order DeductionOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("failed to parse deduction order: %w", err)
	}
	return order, nil
}
