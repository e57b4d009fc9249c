package engine

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// COMPONENT KINDS - Names recognised in a deduction order
// =============================================================================

// ComponentKind is the closed set of components the orchestrator can run.
type ComponentKind string

const (
	KindNSSF            ComponentKind = "nssf"
	KindSHIF            ComponentKind = "shif"
	KindNHIF            ComponentKind = "nhif"
	KindHousingLevy     ComponentKind = "housing_levy"
	KindPAYE            ComponentKind = "paye"
	KindLoans           ComponentKind = "loans"
	KindAdvances        ComponentKind = "advances"
	KindLossDamages     ComponentKind = "loss_damages"
	KindNonCashBenefits ComponentKind = "non_cash_benefits"
)

// ComponentKinds lists every recognised kind.
var ComponentKinds = []ComponentKind{
	KindNSSF, KindSHIF, KindNHIF, KindHousingLevy, KindPAYE,
	KindLoans, KindAdvances, KindLossDamages, KindNonCashBenefits,
}

// ParseComponentKind maps a configured name to its kind. Matching ignores
// case and surrounding space.
func ParseComponentKind(name string) (ComponentKind, bool) {
	k := ComponentKind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range ComponentKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// =============================================================================
// HANDLER TABLE
// =============================================================================

// handler evaluates one component against the run state. Only a
// configuration gap is returned as an error.
type handler func(ctx context.Context, s *state) (Line, error)

var handlers = map[ComponentKind]handler{
	KindNSSF:            handleSocialSecurity,
	KindSHIF:            handleHealthInsurance,
	KindNHIF:            handleLegacyHealthInsurance,
	KindHousingLevy:     handleHousingLevy,
	KindPAYE:            handleIncomeTax,
	KindLoans:           handleRecords(KindLoans),
	KindAdvances:        handleRecords(KindAdvances),
	KindLossDamages:     handleRecords(KindLossDamages),
	KindNonCashBenefits: handleRecords(KindNonCashBenefits),
}

func statutoryLine(kind ComponentKind, res statutory.Result) Line {
	return Line{
		Component: kind,
		FormulaID: res.FormulaID,
		Amount:    res.Employee,
		Employee:  res.Employee,
		Employer:  res.Employer,
		Relief:    res.Relief,
		Degraded:  res.Degraded,
	}
}

func handleSocialSecurity(ctx context.Context, s *state) (Line, error) {
	res, err := s.calc.socialSecurity.Calculate(ctx, s.input(s.req.GrossPay, formula.TypeDeduction))
	if err != nil {
		return Line{}, err
	}
	s.out.NSSFTier1Employee = res.Tier1Employee
	s.out.NSSFTier2Employee = res.Tier2Employee
	s.out.NSSFEmployerTotal = res.Employer
	s.addRelief(res.Relief)
	return statutoryLine(KindNSSF, res), nil
}

func handleHealthInsurance(ctx context.Context, s *state) (Line, error) {
	res, err := s.calc.health.Calculate(ctx, s.input(s.req.GrossPay, formula.TypeDeduction))
	if err != nil {
		return Line{}, err
	}
	s.out.HealthInsuranceEmployee = res.Employee
	s.out.HealthInsuranceEmployer = res.Employer
	return statutoryLine(KindSHIF, res), nil
}

func handleLegacyHealthInsurance(ctx context.Context, s *state) (Line, error) {
	res, err := s.calc.legacyHealth.Calculate(ctx, s.input(s.req.GrossPay, formula.TypeDeduction))
	if err != nil {
		return Line{}, err
	}
	s.out.HealthInsuranceEmployee = res.Employee
	s.out.HealthInsuranceEmployer = res.Employer
	s.addRelief(res.Relief)
	return statutoryLine(KindNHIF, res), nil
}

func handleHousingLevy(ctx context.Context, s *state) (Line, error) {
	res, err := s.calc.housingLevy.Calculate(ctx, s.input(s.req.GrossPay, formula.TypeLevy))
	if err != nil {
		return Line{}, err
	}
	s.out.HousingLevyEmployee = res.Employee
	s.out.HousingLevyEmployer = res.Employer
	s.addRelief(res.Relief)
	return statutoryLine(KindHousingLevy, res), nil
}

// handleIncomeTax charges PAYE on taxable pay less personal relief and the
// reliefs granted by earlier components. PAYE never goes below zero.
func handleIncomeTax(ctx context.Context, s *state) (Line, error) {
	taxable := s.taxable()
	in := s.input(taxable, formula.TypeIncomeTax)
	in.TaxCategory = s.req.TaxCategory

	res, err := s.calc.incomeTax.Calculate(ctx, in)
	if err != nil {
		return Line{}, err
	}

	relief := res.Relief.Add(s.reliefs)
	paye := formula.MaxZero(res.Employee.Sub(relief))

	s.out.TaxablePay = taxable
	s.out.PAYE = paye
	s.out.PersonalRelief = res.Relief
	s.out.OtherReliefs = s.reliefs

	return Line{
		Component: KindPAYE,
		FormulaID: res.FormulaID,
		Amount:    paye,
		Employee:  res.Employee,
		Employer:  decimal.Zero,
		Relief:    decimal.Min(relief, res.Employee),
		Degraded:  res.Degraded,
	}, nil
}

func handleRecords(kind ComponentKind) handler {
	return func(ctx context.Context, s *state) (Line, error) {
		totals := s.recordTotals(ctx)

		var amount decimal.Decimal
		switch kind {
		case KindLoans:
			amount = totals.Loans
			s.out.Loans = formula.RoundMoney(amount)
		case KindAdvances:
			amount = totals.Advances
			s.out.Advances = formula.RoundMoney(amount)
		case KindLossDamages:
			amount = totals.LossDamages
			s.out.LossDamages = formula.RoundMoney(amount)
		case KindNonCashBenefits:
			amount = totals.NonCashBenefits
			s.out.NonCashBenefits = formula.RoundMoney(amount)
		}
		amount = formula.RoundMoney(amount)

		return Line{
			Component:  kind,
			Amount:     amount,
			Employee:   amount,
			Employer:   decimal.Zero,
			Relief:     decimal.Zero,
			RecordOnly: kind == KindNonCashBenefits,
		}, nil
	}
}
