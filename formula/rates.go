package formula

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE LOADER - Formula -> brackets, relief and split fractions
// =============================================================================

// Rates is the expanded, ready-to-apply form of a formula.
type Rates struct {
	FormulaID        FormulaID
	Mode             BracketMode
	Brackets         []Bracket
	ReliefFraction   decimal.Decimal
	ReliefCap        decimal.Decimal // zero = uncapped
	EmployeeFraction decimal.Decimal
	EmployerFraction decimal.Decimal

	// Degraded is set when loading failed and defaults were returned.
	Degraded bool
	Err      error
}

// DefaultRates contributes nothing: no brackets, no relief, the whole
// (zero) contribution on the employee side.
func DefaultRates() Rates {
	return Rates{
		ReliefFraction:   decimal.Zero,
		EmployeeFraction: decimal.NewFromInt(1),
		EmployerFraction: decimal.Zero,
	}
}

// RateLoader expands formulas using the configuration Store.
//
// Loading is fail-open: a missing relation or bad row yields DefaultRates
// with Degraded set, and a WARN log. Downstream, an empty bracket list
// contributes zero.
type RateLoader struct {
	Store  Store
	Logger *slog.Logger
}

func NewRateLoader(store Store, logger *slog.Logger) *RateLoader {
	return &RateLoader{Store: store, Logger: logger}
}

func (l *RateLoader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Load expands f as of the given date. It never returns an error.
func (l *RateLoader) Load(ctx context.Context, f Formula, asOf Date) (rates Rates) {
	defer func() {
		if p := recover(); p != nil {
			rates = l.degrade(ctx, f, fmt.Errorf("panic: %v", p))
		}
	}()

	r, err := l.load(ctx, f, asOf)
	if err != nil {
		return l.degrade(ctx, f, err)
	}
	return r
}

func (l *RateLoader) degrade(ctx context.Context, f Formula, err error) Rates {
	l.logger().WarnContext(ctx, "rate loader fell back to defaults",
		"formula_id", f.ID,
		"type", f.Type,
		"category", f.Category,
		"error", err,
	)
	r := DefaultRates()
	r.FormulaID = f.ID
	r.Mode = f.Mode()
	r.Degraded = true
	r.Err = err
	return r
}

func (l *RateLoader) load(ctx context.Context, f Formula, asOf Date) (Rates, error) {
	rates := DefaultRates()
	rates.FormulaID = f.ID
	rates.Mode = f.Mode()

	fraction, limit, err := l.relief(ctx, f, asOf)
	if err != nil {
		return Rates{}, err
	}
	rates.ReliefFraction = fraction
	rates.ReliefCap = limit

	items, err := l.Store.Items(ctx, f.ID)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to load items: %w", err)
	}
	brackets := make([]Bracket, 0, len(items)+1)
	for _, item := range items {
		b, err := bracketFromItem(item)
		if err != nil {
			return Rates{}, err
		}
		brackets = append(brackets, b)
	}
	if top, ok := upperLimitBracket(f); ok {
		brackets = append(brackets, top)
	}
	rates.Brackets = SortBrackets(brackets)

	split, err := l.Store.SplitRatio(ctx, f.ID)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to load split ratio: %w", err)
	}
	if split != nil {
		rates.EmployeeFraction = Percent(split.EmployeePercentage)
		rates.EmployerFraction = Percent(split.EmployerPercentage)
	}
	return rates, nil
}

// relief returns the relief fraction and its monthly cap. The fraction is
// non-zero only when the formula's component is a deduction whose
// applicable relief is in effect on asOf.
func (l *RateLoader) relief(ctx context.Context, f Formula, asOf Date) (fraction, limit decimal.Decimal, err error) {
	if f.ComponentID == "" {
		return decimal.Zero, decimal.Zero, nil
	}
	comp, err := l.Store.Component(ctx, f.ComponentID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to load component %s: %w", f.ComponentID, err)
	}
	if comp.Category != ComponentDeduction || comp.ApplicableRelief == "" {
		return decimal.Zero, decimal.Zero, nil
	}
	relief, err := l.Store.Relief(ctx, comp.ApplicableRelief)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to load relief %s: %w", comp.ApplicableRelief, err)
	}
	if !relief.ActiveOn(asOf) {
		return decimal.Zero, decimal.Zero, nil
	}
	return Percent(relief.Percentage), MaxZero(relief.FixedLimit), nil
}

// Relief is the relief earned on an employee contribution, capped at
// ReliefCap when one is set, rounded to cents.
func (r Rates) Relief(employee decimal.Decimal) decimal.Decimal {
	relief := employee.Mul(r.ReliefFraction)
	if r.ReliefCap.IsPositive() {
		relief = decimal.Min(relief, r.ReliefCap)
	}
	return RoundMoney(relief)
}

var errBadItem = errors.New("bad formula item")

func bracketFromItem(item FormulaItem) (Bracket, error) {
	if item.AmountFrom.IsNegative() || item.DeductAmount.IsNegative() || item.DeductPercentage.IsNegative() {
		return Bracket{}, fmt.Errorf("%w %s: negative value", errBadItem, item.ID)
	}
	if item.AmountTo != nil && item.AmountTo.LessThan(item.AmountFrom) {
		return Bracket{}, fmt.Errorf("%w %s: amount_to below amount_from", errBadItem, item.ID)
	}
	b := Bracket{Lower: item.AmountFrom, Upper: item.AmountTo}
	if item.DeductAmount.IsPositive() {
		b.Rate = item.DeductAmount
		b.Flat = true
	} else {
		b.Rate = Percent(item.DeductPercentage)
	}
	return b, nil
}

// upperLimitBracket returns the synthetic (upper_limit, +inf) bracket. Income
// tax never gets one: its top band is an ordinary open-ended item. A formula
// with neither a limit nor an above-limit rate has nothing to append.
func upperLimitBracket(f Formula) (Bracket, bool) {
	if f.Type == TypeIncomeTax {
		return Bracket{}, false
	}
	b := Bracket{Lower: f.UpperLimit}
	if f.UpperLimitAmount.IsPositive() {
		b.Rate = f.UpperLimitAmount
		b.Flat = true
	} else {
		b.Rate = Percent(f.UpperLimitPercentage)
	}
	if f.UpperLimit.IsZero() && b.Rate.IsZero() {
		return Bracket{}, false
	}
	return b, true
}
