package catalog

import (
	"context"
	"sync"
)

// Memory is a Store kept in a map.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*Memory)(nil)

// NewMemory creates a store seeded with records.
func NewMemory(records ...Record) *Memory {
	m := &Memory{records: make(map[string]Record, len(records))}
	for _, r := range records {
		m.records[r.Name] = r.Clone()
	}
	return m
}

// Select implements Store.
func (m *Memory) Select(_ context.Context, pred Predicate) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Record
	for _, r := range m.records {
		if pred(r) {
			result = append(result, r.Clone())
		}
	}
	sortRecords(result)
	return result, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, name string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[name]
	if !ok {
		return Record{}, false, nil
	}
	return r.Clone(), true, nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, name string, fn func(*Record) error) (Record, error) {
	if err := CheckName(name); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[name]
	if ok {
		r = r.Clone()
	} else {
		r = Record{Name: name}
	}
	if err := fn(&r); err != nil {
		return Record{}, err
	}
	r.Name = name
	m.records[name] = r
	return r.Clone(), nil
}

// Len implements Store.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

// rows returns every record flattened, sorted by name.
func (m *Memory) rows() []map[string]string {
	m.mu.Lock()
	records := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	m.mu.Unlock()

	sortRecords(records)
	rows := make([]map[string]string, len(records))
	for i, r := range records {
		rows[i] = r.Attributes()
	}
	return rows
}
