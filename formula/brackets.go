package formula

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BRACKET - One (lower, upper, rate) slice of a table
// =============================================================================

// Bracket is one slice of a progressive or tiered table. Rate is a
// fraction (0.25) unless Flat is set, in which case it is a fixed amount
// charged once the bracket is reached.
type Bracket struct {
	Lower decimal.Decimal
	Upper *decimal.Decimal // nil = unbounded
	Rate  decimal.Decimal
	Flat  bool
}

// Width returns upper-lower; ok is false for an unbounded bracket.
func (b Bracket) Width() (decimal.Decimal, bool) {
	if b.Upper == nil {
		return decimal.Zero, false
	}
	return b.Upper.Sub(b.Lower), true
}

func (b Bracket) contains(amount decimal.Decimal) bool {
	if !amount.GreaterThan(b.Lower) {
		return false
	}
	return b.Upper == nil || amount.LessThanOrEqual(*b.Upper)
}

func (b Bracket) contribution(taxable decimal.Decimal) decimal.Decimal {
	if b.Flat {
		return b.Rate
	}
	return taxable.Mul(b.Rate)
}

func sameBounds(a, b Bracket) bool {
	if !a.Lower.Equal(b.Lower) {
		return false
	}
	if a.Upper == nil || b.Upper == nil {
		return a.Upper == nil && b.Upper == nil
	}
	return a.Upper.Equal(*b.Upper)
}

// SortBrackets returns a copy ordered by lower bound. Storage order is never
// trusted.
func SortBrackets(brackets []Bracket) []Bracket {
	sorted := make([]Bracket, len(brackets))
	copy(sorted, brackets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Lower.LessThan(sorted[j].Lower)
	})
	return sorted
}

// Dedup drops brackets whose (lower, upper) repeats an earlier one, so a row
// stored twice is counted once.
func Dedup(brackets []Bracket) []Bracket {
	out := make([]Bracket, 0, len(brackets))
	for _, b := range brackets {
		dup := false
		for _, seen := range out {
			if sameBounds(seen, b) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, b)
		}
	}
	return out
}

// =============================================================================
// APPLICATION
// =============================================================================

// Slice is the portion of an amount falling in one bracket.
type Slice struct {
	Bracket      Bracket
	Taxable      decimal.Decimal
	Contribution decimal.Decimal
}

// Slices walks the brackets in ascending order and returns the marginal
// slice of amount in each bracket it reaches. The walk stops at the bracket
// whose upper bound covers amount. Contributions are unrounded.
func Slices(amount decimal.Decimal, brackets []Bracket) []Slice {
	var out []Slice
	for _, b := range SortBrackets(brackets) {
		if !amount.GreaterThan(b.Lower) {
			continue
		}
		taxable := amount.Sub(b.Lower)
		if width, bounded := b.Width(); bounded && taxable.GreaterThan(width) {
			taxable = MaxZero(width)
		}
		out = append(out, Slice{
			Bracket:      b,
			Taxable:      taxable,
			Contribution: b.contribution(taxable),
		})
		if b.Upper != nil && amount.LessThanOrEqual(*b.Upper) {
			break
		}
	}
	return out
}

// ApplyProgressive sums the marginal contribution of every bracket reached.
func ApplyProgressive(amount decimal.Decimal, brackets []Bracket) decimal.Decimal {
	total := decimal.Zero
	for _, s := range Slices(amount, brackets) {
		total = total.Add(s.Contribution)
	}
	return total
}

// ApplyFirstMatch computes the contribution from the single bracket that
// contains amount (lower < amount <= upper). A flat bracket charges its
// amount; a percentage bracket charges amount × rate.
func ApplyFirstMatch(amount decimal.Decimal, brackets []Bracket) decimal.Decimal {
	for _, b := range SortBrackets(brackets) {
		if b.contains(amount) {
			return b.contribution(amount)
		}
	}
	return decimal.Zero
}

// Apply dispatches on the bracket mode.
func Apply(mode BracketMode, amount decimal.Decimal, brackets []Bracket) decimal.Decimal {
	if mode == BracketFirstMatch {
		return ApplyFirstMatch(amount, brackets)
	}
	return ApplyProgressive(amount, brackets)
}
