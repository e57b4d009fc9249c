package engine

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/statutory"
)

// Line is one evaluated component inside a phase.
type Line struct {
	Component ComponentKind     `json:"component"`
	FormulaID formula.FormulaID `json:"formula_id,omitempty"`

	// Amount is what the employee is charged. RecordOnly lines are listed
	// for reporting and never reduce net pay.
	Amount   decimal.Decimal `json:"amount"`
	Employee decimal.Decimal `json:"employee"`
	Employer decimal.Decimal `json:"employer"`
	Relief   decimal.Decimal `json:"relief"`

	RecordOnly bool `json:"record_only,omitempty"`
	Degraded   bool `json:"degraded,omitempty"`
}

// PhaseResult holds the lines of one phase in evaluation order.
type PhaseResult struct {
	Phase      formula.Phase   `json:"phase"`
	Components []Line          `json:"components"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// Breakdown is the full deduction computation for one employee and period.
type Breakdown struct {
	EmployeeID    deductions.EmployeeID `json:"employee_id"`
	PaymentPeriod formula.Date          `json:"payment_period"`
	TaxCategory   statutory.TaxCategory `json:"tax_category"`

	GrossPay       decimal.Decimal `json:"gross_pay"`
	TaxablePay     decimal.Decimal `json:"taxable_pay"`
	PAYE           decimal.Decimal `json:"paye"`
	PersonalRelief decimal.Decimal `json:"personal_relief"`
	OtherReliefs   decimal.Decimal `json:"other_reliefs"`

	NSSFTier1Employee decimal.Decimal `json:"nssf_tier1_employee"`
	NSSFTier2Employee decimal.Decimal `json:"nssf_tier2_employee"`
	NSSFEmployerTotal decimal.Decimal `json:"nssf_employer_total"`

	HealthInsuranceEmployee decimal.Decimal `json:"health_insurance_employee"`
	HealthInsuranceEmployer decimal.Decimal `json:"health_insurance_employer"`
	HousingLevyEmployee     decimal.Decimal `json:"housing_levy_employee"`
	HousingLevyEmployer     decimal.Decimal `json:"housing_levy_employer"`

	Loans           decimal.Decimal `json:"loans"`
	Advances        decimal.Decimal `json:"advances"`
	LossDamages     decimal.Decimal `json:"loss_damages"`
	NonCashBenefits decimal.Decimal `json:"non_cash_benefits"`

	TotalDeductions decimal.Decimal `json:"total_deductions"`
	NetPay          decimal.Decimal `json:"net_pay"`

	Phases []PhaseResult `json:"phase_breakdown"`

	// Degraded is set when any component fell back to zero; the payslip
	// needs manual review.
	Degraded           bool     `json:"degraded"`
	DegradedComponents []string `json:"degraded_components,omitempty"`
	RecordFaults       []string `json:"record_faults,omitempty"`
	Skipped            []string `json:"skipped,omitempty"`
}

// Phase returns the result for p, or nil.
func (b *Breakdown) Phase(p formula.Phase) *PhaseResult {
	for i := range b.Phases {
		if b.Phases[i].Phase == p {
			return &b.Phases[i]
		}
	}
	return nil
}

// Line returns the first line for kind across all phases.
func (b *Breakdown) Line(kind ComponentKind) (Line, bool) {
	for _, p := range b.Phases {
		for _, l := range p.Components {
			if l.Component == kind {
				return l, true
			}
		}
	}
	return Line{}, false
}

func newBreakdown(req Request) *Breakdown {
	b := &Breakdown{
		EmployeeID:    req.EmployeeID,
		PaymentPeriod: req.PaymentPeriod,
		TaxCategory:   req.TaxCategory,
		GrossPay:      formula.RoundMoney(req.GrossPay),
	}
	for _, p := range formula.Phases {
		b.Phases = append(b.Phases, PhaseResult{Phase: p, Components: []Line{}, Subtotal: decimal.Zero})
	}
	return b
}

// finish computes subtotals, totals and net pay.
func (b *Breakdown) finish() {
	total := decimal.Zero
	for i := range b.Phases {
		p := &b.Phases[i]
		p.Subtotal = decimal.Zero
		for _, l := range p.Components {
			p.Subtotal = p.Subtotal.Add(l.Amount)
			if !l.RecordOnly {
				total = total.Add(l.Amount)
			}
		}
	}
	b.TotalDeductions = total
	b.NetPay = b.GrossPay.Sub(total)
}
