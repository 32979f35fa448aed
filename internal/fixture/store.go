package fixture

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Record is one entity instance as it appears on the wire.
type Record = map[string]any

// Schema declares the constraints the fixture enforces on writes.
type Schema struct {
	Required []string `json:"required,omitempty"`
	Unique   []string `json:"unique,omitempty"`
}

// State is the full contents of the fixture, as accepted by /admin/state.
type State struct {
	Schema map[string]Schema   `json:"schema,omitempty"`
	Data   map[string][]Record `json:"data"`
}

// Table is a thread-safe, in-memory collection of records of one entity,
// keyed by integer ID and listed in insertion order.
type Table struct {
	mu      sync.RWMutex
	items   map[int]Record
	order   []int
	counter int
	schema  Schema
}

func newTable(schema Schema) *Table {
	return &Table{items: make(map[int]Record), schema: schema}
}

// nextID returns the next free ID. Caller holds the write lock.
func (t *Table) nextID() int {
	t.counter++
	for {
		if _, taken := t.items[t.counter]; !taken {
			return t.counter
		}
		t.counter++
	}
}

// put stores rec under id, preserving the original position on overwrite.
// Caller holds the write lock.
func (t *Table) put(id int, rec Record) {
	if _, exists := t.items[id]; !exists {
		t.order = append(t.order, id)
	}
	rec["id"] = id
	t.items[id] = rec
	if id > t.counter {
		t.counter = id
	}
}

// Get retrieves a copy of the record with the given ID.
func (t *Table) Get(id int) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.items[id]
	if !ok {
		return nil, false
	}
	return clone(rec), true
}

// List returns copies of all records in insertion order.
func (t *Table) List() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, clone(t.items[id]))
	}
	return out
}

// Count returns the number of records.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Insert validates rec and stores it under a new ID.
func (t *Table) Insert(rec Record) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.validate(0, rec); err != nil {
		return nil, err
	}
	rec = clone(rec)
	t.put(t.nextID(), rec)
	return clone(rec), nil
}

// Update merges fields into the record with the given ID.
func (t *Table) Update(id int, fields Record) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	merged := clone(cur)
	for k, v := range fields {
		if k != "id" {
			merged[k] = v
		}
	}
	if err := t.validate(id, merged); err != nil {
		return nil, err
	}
	t.put(id, merged)
	return clone(merged), nil
}

// Delete removes the record with the given ID and returns it.
func (t *Table) Delete(id int) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.items[id]
	if !ok {
		return nil, false
	}
	delete(t.items, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return rec, true
}

// validate enforces required and unique fields. self is the ID being
// updated, or 0 on insert. Caller holds the lock.
func (t *Table) validate(self int, rec Record) error {
	var missing []string
	for _, f := range t.schema.Required {
		v, ok := rec[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	for _, f := range t.schema.Unique {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		for _, id := range t.order {
			if id == self {
				continue
			}
			if other, ok := t.items[id][f]; ok && fmt.Sprint(other) == fmt.Sprint(v) {
				return &ConstraintError{Field: f, Value: v}
			}
		}
	}
	return nil
}

// DB is the set of entity tables behind the fixture.
type DB struct {
	mu      sync.RWMutex
	tables  map[string]*Table
	initial State
}

// NewDB creates a database loaded with the given initial state. Reset
// returns to it.
func NewDB(initial State) (*DB, error) {
	db := &DB{initial: initial}
	if err := db.Load(initial); err != nil {
		return nil, err
	}
	return db, nil
}

// Table returns the table for entity, matched case-insensitively.
func (db *DB) Table(entity string) (*Table, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if t, ok := db.tables[entity]; ok {
		return t, true
	}
	for name, t := range db.tables {
		if strings.EqualFold(name, entity) {
			return t, true
		}
	}
	return nil, false
}

// Load replaces every table from state.
func (db *DB) Load(state State) error {
	tables := make(map[string]*Table, len(state.Data)+len(state.Schema))
	for entity, schema := range state.Schema {
		tables[entity] = newTable(schema)
	}
	for entity, records := range state.Data {
		t, ok := tables[entity]
		if !ok {
			t = newTable(Schema{})
			tables[entity] = t
		}
		for i, rec := range records {
			rec = clone(rec)
			id, err := recordID(rec)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", entity, i, err)
			}
			if id == 0 {
				id = t.nextID()
			}
			t.put(id, rec)
		}
	}

	db.mu.Lock()
	db.tables = tables
	db.mu.Unlock()
	return nil
}

// Reset restores the initial state.
func (db *DB) Reset() {
	_ = db.Load(db.initial)
}

// Snapshot returns the current state.
func (db *DB) Snapshot() State {
	db.mu.RLock()
	defer db.mu.RUnlock()
	st := State{Schema: make(map[string]Schema), Data: make(map[string][]Record)}
	for name, t := range db.tables {
		t.mu.RLock()
		st.Schema[name] = t.schema
		t.mu.RUnlock()
		st.Data[name] = t.List()
	}
	return st
}

// Entities returns the entity names in sorted order.
func (db *DB) Entities() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func recordID(rec Record) (int, error) {
	v, ok := rec["id"]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) || n < 1 {
			return 0, fmt.Errorf("invalid id %v", v)
		}
		return int(n), nil
	case int:
		if n < 1 {
			return 0, fmt.Errorf("invalid id %v", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid id %v", v)
}

func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
