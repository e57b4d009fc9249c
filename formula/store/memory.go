// Package store provides in-memory formula.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	formulas   map[formula.FormulaID]formula.Formula
	items      map[formula.FormulaID][]formula.FormulaItem
	splits     map[formula.FormulaID]formula.SplitRatio
	components map[formula.ComponentID]formula.PayrollComponent
	reliefs    map[formula.ReliefID]formula.Relief
}

var _ formula.Writer = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		formulas:   make(map[formula.FormulaID]formula.Formula),
		items:      make(map[formula.FormulaID][]formula.FormulaItem),
		splits:     make(map[formula.FormulaID]formula.SplitRatio),
		components: make(map[formula.ComponentID]formula.PayrollComponent),
		reliefs:    make(map[formula.ReliefID]formula.Relief),
	}
}

func (m *Memory) FormulasFor(_ context.Context, t formula.Type, c formula.Category) ([]formula.Formula, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []formula.Formula
	for _, f := range m.formulas {
		if f.Type == t && f.Category == c {
			result = append(result, f)
		}
	}
	return result, nil
}

func (m *Memory) Formula(_ context.Context, id formula.FormulaID) (*formula.Formula, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.formulas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", formula.ErrFormulaNotFound, id)
	}
	return &f, nil
}

func (m *Memory) Items(_ context.Context, id formula.FormulaID) ([]formula.FormulaItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]formula.FormulaItem, len(m.items[id]))
	copy(result, m.items[id])
	return result, nil
}

func (m *Memory) SplitRatio(_ context.Context, id formula.FormulaID) (*formula.SplitRatio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.splits[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) Component(_ context.Context, id formula.ComponentID) (*formula.PayrollComponent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.components[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", formula.ErrComponentNotFound, id)
	}
	return &c, nil
}

func (m *Memory) Relief(_ context.Context, id formula.ReliefID) (*formula.Relief, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reliefs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", formula.ErrReliefNotFound, id)
	}
	return &r, nil
}

// SaveFormula adds a formula with its rows. Like the SQLite store, it
// rejects a second current formula for the same (type, category).
func (m *Memory) SaveFormula(_ context.Context, def formula.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(def, "")
}

// saveLocked inserts def. replacing names a current formula that is about
// to be closed and so does not count against the one-current rule.
func (m *Memory) saveLocked(def formula.Definition, replacing formula.FormulaID) error {
	id := def.Formula.ID
	if _, exists := m.formulas[id]; exists {
		return fmt.Errorf("%w: %s", formula.ErrDuplicateFormula, id)
	}
	if def.Formula.IsCurrent {
		for otherID, other := range m.formulas {
			if otherID == replacing || !other.IsCurrent {
				continue
			}
			if other.Type == def.Formula.Type && other.Category == def.Formula.Category {
				return fmt.Errorf("%w: %s/%s already has current formula %s",
					formula.ErrDuplicateFormula, def.Formula.Type, def.Formula.Category, otherID)
			}
		}
	}

	m.formulas[id] = def.Formula
	items := make([]formula.FormulaItem, len(def.Items))
	for i, item := range def.Items {
		item.FormulaID = id
		items[i] = item
	}
	m.items[id] = items
	if def.Split != nil {
		split := *def.Split
		split.FormulaID = id
		m.splits[id] = split
	}
	return nil
}

// Supersede closes oldID and inserts next. Simulated atomicity: the old
// formula is only closed once next has been accepted.
func (m *Memory) Supersede(_ context.Context, oldID formula.FormulaID, next formula.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.formulas[oldID]
	if !ok {
		return fmt.Errorf("%w: %s", formula.ErrFormulaNotFound, oldID)
	}

	next.Formula.IsCurrent = true
	if err := m.saveLocked(next, oldID); err != nil {
		return err
	}

	closed := formula.SupersededRange(old, next.Formula.EffectiveFrom)
	old.EffectiveTo = closed.To
	old.IsCurrent = false
	m.formulas[oldID] = old
	return nil
}

func (m *Memory) SaveComponent(_ context.Context, c formula.PayrollComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[c.ID] = c
	return nil
}

func (m *Memory) SaveRelief(_ context.Context, r formula.Relief) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reliefs[r.ID] = r
	return nil
}

func (m *Memory) ListFormulas(_ context.Context) ([]formula.Formula, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]formula.Formula, 0, len(m.formulas))
	for _, f := range m.formulas {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.EffectiveFrom.Before(b.EffectiveFrom)
	})
	return result, nil
}
