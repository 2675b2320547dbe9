package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
)

// CompanyFilter is one tenant and the queues it owns (queue id -> display name)
type CompanyFilter struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Filter string            `json:"filter"`
	Queues map[string]string `json:"queues"`
}

// File is the on-disk routing document
type File struct {
	Filters []CompanyFilter `json:"filters"`
}

// Route attributes one queue to its company
type Route struct {
	Queue         string `json:"queue"`
	QueueName     string `json:"queueName"`
	CompanyID     string `json:"companyId"`
	CompanyName   string `json:"companyName"`
	CompanyFilter string `json:"companyFilter"`
}

// Table is an immutable queue -> company mapping
type Table struct {
	routes    map[string]Route
	companies map[string]CompanyFilter
}

// NewTable builds a table from company filters. A queue claimed by more than
// one company is an error.
func NewTable(filters []CompanyFilter) (*Table, error) {
	t := &Table{
		routes:    make(map[string]Route),
		companies: make(map[string]CompanyFilter, len(filters)),
	}

	for _, f := range filters {
		if f.ID == "" {
			return nil, fmt.Errorf("company filter %q has no id", f.Name)
		}
		if _, dup := t.companies[f.ID]; dup {
			return nil, fmt.Errorf("duplicate company id %q", f.ID)
		}
		t.companies[f.ID] = f

		for queue, name := range f.Queues {
			if existing, ok := t.routes[queue]; ok {
				return nil, fmt.Errorf("queue %q routed to both %q and %q", queue, existing.CompanyID, f.ID)
			}
			t.routes[queue] = Route{
				Queue:         queue,
				QueueName:     name,
				CompanyID:     f.ID,
				CompanyName:   f.Name,
				CompanyFilter: f.Filter,
			}
		}
	}

	return t, nil
}

// Empty returns a table that routes nothing
func Empty() *Table {
	t, _ := NewTable(nil)
	return t
}

// Parse decodes a routing document
func Parse(data []byte) (*Table, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routing: %w", err)
	}
	return NewTable(f.Filters)
}

// LoadFile reads and parses a routing document from disk
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing file: %w", err)
	}
	return Parse(data)
}

// Lookup returns the route for a queue
func (t *Table) Lookup(queue string) (Route, bool) {
	r, ok := t.routes[queue]
	return r, ok
}

// HasCompany reports whether the company id is known
func (t *Table) HasCompany(id string) bool {
	_, ok := t.companies[id]
	return ok
}

// Company returns the filter entry for a company
func (t *Table) Company(id string) (CompanyFilter, bool) {
	c, ok := t.companies[id]
	return c, ok
}

// QueuesFor returns the routes owned by a company, sorted by queue
func (t *Table) QueuesFor(companyID string) []Route {
	var out []Route
	for _, r := range t.routes {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Queue < out[j].Queue })
	return out
}

// Companies returns every company id, sorted
func (t *Table) Companies() []string {
	out := make([]string, 0, len(t.companies))
	for id := range t.companies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of routed queues
func (t *Table) Len() int {
	return len(t.routes)
}

// Holder publishes the current table. Readers never see a partial update.
type Holder struct {
	current atomic.Pointer[Table]
}

// NewHolder creates a holder seeded with t (or an empty table)
func NewHolder(t *Table) *Holder {
	if t == nil {
		t = Empty()
	}
	h := &Holder{}
	h.current.Store(t)
	return h
}

// Load returns the current table
func (h *Holder) Load() *Table {
	return h.current.Load()
}

// Swap replaces the table
func (h *Holder) Swap(t *Table) {
	if t == nil {
		t = Empty()
	}
	h.current.Store(t)
}
