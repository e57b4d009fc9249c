package deductions

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory RecordWriter for tests and development.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ RecordWriter = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

// SaveRecord inserts or replaces a record by id.
func (m *Memory) SaveRecord(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[r.ID]; ok && existing.EmployeeID != r.EmployeeID {
		return fmt.Errorf("%w: %s", ErrRecordOwnership, r.ID)
	}
	m.records[r.ID] = r
	return nil
}

func (m *Memory) Records(_ context.Context, employee EmployeeID) ([]Record, error) {
	return m.filter(employee, false), nil
}

func (m *Memory) ActiveRecords(_ context.Context, employee EmployeeID) ([]Record, error) {
	return m.filter(employee, true), nil
}

func (m *Memory) filter(employee EmployeeID, activeOnly bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Record
	for _, r := range m.records {
		if r.EmployeeID != employee || (activeOnly && !r.Active) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
