/*
Package formula provides the regulatory rule model for the payroll engine.

PURPOSE:
  This package holds the versioned, time-bounded rule sets (formulas) that
  drive every statutory deduction: income tax brackets, social-security
  tiers, health-insurance tables and levies. It also contains the pieces
  that turn those rules into money: the resolver that picks the formula in
  force on a date, the rate loader that expands a formula into brackets, and
  the bracket calculator.

KEY CONCEPTS IN THIS FILE (types.go):
  - Formula: A versioned rule set for one (type, category)
  - FormulaItem: One bracket row of a formula
  - SplitRatio: Employee/employer division of a contribution
  - Relief: A tax credit that can be repealed by law on a date
  - PayrollComponent: A nameable deduction/earning/benefit line item

DESIGN PRINCIPLES:
  1. Immutability: Superseded formulas are closed, never edited
  2. Precision: All money is decimal.Decimal, rounded to cents only at output
  3. Type Safety: Distinct ID types for formulas, components and reliefs
  4. Auditability: Every result can name the formula version it used

USAGE:
  f := formula.Formula{
      ID:            "paye-2025",
      Type:          formula.TypeIncomeTax,
      Category:      formula.CategoryPrimaryEmployee,
      EffectiveFrom: formula.NewDate(2025, time.January, 1),
      IsCurrent:     true,
  }

SEE ALSO:
  - resolver.go: Effective-date resolution
  - rates.go: Formula -> brackets expansion
  - brackets.go: Progressive and first-match bracket application
*/
package formula

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal helpers
// =============================================================================

// MoneyPlaces is the number of fractional digits kept on output values.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to cents, half away from zero. For the non-negative
// amounts the engine produces this is round-half-up (1646.3936 -> 1646.39,
// 2701.785 -> 2701.79).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent converts a percentage (12.5) to a fraction (0.125).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// MustParseDecimal parses a literal amount and panics if it is malformed.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MaxZero clamps negative values to zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FormulaID string
type ComponentID string
type ReliefID string

// =============================================================================
// FORMULA - Versioned regulatory rule set
// =============================================================================

type Type string

const (
	TypeIncomeTax        Type = "income_tax"
	TypeDeduction        Type = "deduction"
	TypeEarning          Type = "earning"
	TypeFringeBenefitTax Type = "fringe_benefit_tax"
	TypeLevy             Type = "levy"
	TypeReliefAllowance  Type = "relief_allowance"
)

func (t Type) Valid() bool {
	switch t {
	case TypeIncomeTax, TypeDeduction, TypeEarning, TypeFringeBenefitTax, TypeLevy, TypeReliefAllowance:
		return true
	}
	return false
}

type Category string

const (
	CategoryPrimaryEmployee        Category = "primary_employee"
	CategorySecondaryEmployee      Category = "secondary_employee"
	CategoryFringeBenefit          Category = "fringe_benefit"
	CategoryHousingLevy            Category = "housing_levy"
	CategorySocialSecurity         Category = "social_security"
	CategoryLegacyHealthInsurance  Category = "legacy_health_insurance"
	CategoryCurrentHealthInsurance Category = "current_health_insurance"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryPrimaryEmployee, CategorySecondaryEmployee, CategoryFringeBenefit,
		CategoryHousingLevy, CategorySocialSecurity,
		CategoryLegacyHealthInsurance, CategoryCurrentHealthInsurance:
		return true
	}
	return false
}

// BracketMode selects how brackets are applied to an amount.
type BracketMode string

const (
	// BracketCumulative sums the marginal contribution of every bracket the
	// amount reaches (income tax, two-tier social security).
	BracketCumulative BracketMode = "cumulative"

	// BracketFirstMatch takes the single bracket containing the amount
	// (tiered-threshold tables such as health insurance and levies).
	BracketFirstMatch BracketMode = "first_match"
)

// Formula is one version of a regulatory rule set.
type Formula struct {
	ID       FormulaID
	Type     Type
	Category Category
	Title    string
	Unit     string // currency, e.g. "KES"

	EffectiveFrom Date
	EffectiveTo   *Date // nil = open-ended

	// Above UpperLimit a synthetic bracket applies UpperLimitAmount (flat)
	// or UpperLimitPercentage. Not used for income tax.
	UpperLimit           decimal.Decimal
	UpperLimitAmount     decimal.Decimal
	UpperLimitPercentage decimal.Decimal

	PersonalRelief     decimal.Decimal
	ReliefCarryForward bool
	Progressive        bool
	BracketMode        BracketMode

	// Optional link to the payroll component whose relief applies.
	ComponentID ComponentID

	Version        string
	IsCurrent      bool
	DeductionOrder DeductionOrder
}

// Mode returns the explicit bracket mode, or derives one for formulas
// stored before the field existed.
func (f Formula) Mode() BracketMode {
	if f.BracketMode != "" {
		return f.BracketMode
	}
	if f.Progressive || f.Type == TypeIncomeTax || f.Category == CategorySocialSecurity {
		return BracketCumulative
	}
	return BracketFirstMatch
}

// EffectiveRange returns the validity interval of the formula.
func (f Formula) EffectiveRange() EffectiveRange {
	return EffectiveRange{From: f.EffectiveFrom, To: f.EffectiveTo}
}

// ActiveOn reports whether the formula's interval contains d.
func (f Formula) ActiveOn(d Date) bool {
	return f.EffectiveRange().Contains(d)
}

// FormulaItem is one bracket row. A non-zero DeductAmount is a flat
// contribution; otherwise DeductPercentage applies.
type FormulaItem struct {
	ID               string
	FormulaID        FormulaID
	AmountFrom       decimal.Decimal
	AmountTo         *decimal.Decimal // nil = open upper bound
	DeductAmount     decimal.Decimal
	DeductPercentage decimal.Decimal
}

// SplitRatio divides a contribution between employee and employer. The two
// sides are used independently; they are not forced to sum to 100.
type SplitRatio struct {
	FormulaID          FormulaID
	EmployeePercentage decimal.Decimal
	EmployerPercentage decimal.Decimal
}

// Definition bundles a formula with its rows, as written by seeding and
// supersession.
type Definition struct {
	Formula Formula
	Items   []FormulaItem
	Split   *SplitRatio
}

// =============================================================================
// RELIEF
// =============================================================================

type ReliefType string

const (
	ReliefPersonal   ReliefType = "personal"
	ReliefDeductible ReliefType = "deductible"
)

// PercentOf names the aggregate a percentage relief is computed from.
type PercentOf string

const (
	PercentOfActualAmount             PercentOf = "actual_amount"
	PercentOfBasicPay                 PercentOf = "basic_pay"
	PercentOfBasicPlusBenefits        PercentOf = "basic_plus_benefits"
	PercentOfBasicPlusBenefitsLessOwn PercentOf = "basic_plus_benefits_less_benefit"
)

type Relief struct {
	ID         ReliefID
	Name       string
	Type       ReliefType
	FixedLimit decimal.Decimal // monthly cap on the relief; zero = uncapped
	Percentage decimal.Decimal
	PercentOf  PercentOf
	IsActive   bool

	// RepealedOn is the first date the relief no longer applies.
	RepealedOn *Date
}

// ActiveOn reports the effective status on d. A stored IsActive flag is not
// enough: a repealed relief is inactive from RepealedOn onwards.
func (r Relief) ActiveOn(d Date) bool {
	if !r.IsActive {
		return false
	}
	if r.RepealedOn != nil && d.AfterOrEqual(*r.RepealedOn) {
		return false
	}
	return true
}

// =============================================================================
// PAYROLL COMPONENT
// =============================================================================

type ComponentCategory string

const (
	ComponentBenefit   ComponentCategory = "benefit"
	ComponentEarning   ComponentCategory = "earning"
	ComponentDeduction ComponentCategory = "deduction"
)

type PaymentMode string

const (
	ModeMonthly    PaymentMode = "monthly"
	ModeWeekly     PaymentMode = "weekly"
	ModeDaily      PaymentMode = "daily"
	ModePerHour    PaymentMode = "per_hour"
	ModePerDay     PaymentMode = "per_day"
	ModePerPiece   PaymentMode = "per_piece"
	ModeCommission PaymentMode = "commission"
)

// PayrollComponent is a nameable line item such as "NSSF" or "Housing Levy".
type PayrollComponent struct {
	ID                ComponentID
	Name              string
	Category          ComponentCategory
	Mode              PaymentMode
	NonCash           bool
	DeductAfterTaxing bool
	ApplicableRelief  ReliefID
	Checkoff          bool
	Statutory         bool
	Phase             Phase
	Priority          int
}
