package formula

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// RESOLVER - Picks the formula in force on a date
// =============================================================================

// Resolver returns the single effective formula for (type, category) on a
// date. An override id is honoured only when it names a current formula of
// the same type and category.
type Resolver interface {
	Resolve(ctx context.Context, t Type, c Category, asOf Date, override FormulaID) (*Formula, error)
}

// StoreResolver resolves directly against a Store.
type StoreResolver struct {
	Store Store
}

func NewResolver(store Store) *StoreResolver {
	return &StoreResolver{Store: store}
}

// Resolve applies, in order:
//  1. the override, if it exists, is current and matches (type, category);
//  2. the formula whose effective range contains asOf, latest EffectiveFrom
//     winning ties;
//  3. the formula flagged current;
//  4. the formula with the latest EffectiveFrom.
//
// A ConfigurationGapError is returned only when no formula matches
// (type, category) at all.
func (r *StoreResolver) Resolve(ctx context.Context, t Type, c Category, asOf Date, override FormulaID) (*Formula, error) {
	if override != "" {
		f, err := r.Store.Formula(ctx, override)
		switch {
		case err == nil:
			if f.IsCurrent && f.Type == t && f.Category == c {
				return f, nil
			}
		case !errors.Is(err, ErrFormulaNotFound):
			return nil, fmt.Errorf("failed to load override formula %s: %w", override, err)
		}
	}

	candidates, err := r.Store.FormulasFor(ctx, t, c)
	if err != nil {
		return nil, fmt.Errorf("failed to list formulas: %w", err)
	}
	if len(candidates) == 0 {
		return nil, &ConfigurationGapError{Type: t, Category: c}
	}

	if f := latestActive(candidates, asOf); f != nil {
		return f, nil
	}
	for i := range candidates {
		if candidates[i].IsCurrent {
			f := candidates[i]
			return &f, nil
		}
	}
	return latest(candidates), nil
}

func latestActive(candidates []Formula, asOf Date) *Formula {
	var best *Formula
	for i := range candidates {
		f := candidates[i]
		if !f.ActiveOn(asOf) {
			continue
		}
		if best == nil || f.EffectiveFrom.After(best.EffectiveFrom) {
			best = &f
		}
	}
	return best
}

func latest(candidates []Formula) *Formula {
	best := candidates[0]
	for _, f := range candidates[1:] {
		if f.EffectiveFrom.After(best.EffectiveFrom) {
			best = f
		}
	}
	return &best
}
