package routing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const sampleRouting = `{
  "filters": [
    {"id": "c1", "name": "Acme", "filter": "acme-agents", "queues": {"sales": "Sales", "support": "Support"}},
    {"id": "c2", "name": "Globex", "filter": "globex-agents", "queues": {"billing": "Billing"}}
  ]
}`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(sampleRouting))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, ok := table.Lookup("sales")
	if !ok {
		t.Fatal("expected sales to be routed")
	}
	if r.CompanyID != "c1" || r.CompanyName != "Acme" || r.CompanyFilter != "acme-agents" || r.QueueName != "Sales" {
		t.Errorf("unexpected route %+v", r)
	}

	if _, ok := table.Lookup("unknown"); ok {
		t.Error("expected unknown queue to be unrouted")
	}
	if table.Len() != 3 {
		t.Errorf("expected 3 routes, got %d", table.Len())
	}
	if !table.HasCompany("c2") || table.HasCompany("c3") {
		t.Error("unexpected company membership")
	}

	queues := table.QueuesFor("c1")
	if len(queues) != 2 || queues[0].Queue != "sales" || queues[1].Queue != "support" {
		t.Errorf("unexpected queues for c1: %+v", queues)
	}

	companies := table.Companies()
	if len(companies) != 2 || companies[0] != "c1" {
		t.Errorf("unexpected companies %v", companies)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid json", `{"filters": [`},
		{"missing id", `{"filters": [{"name": "x", "queues": {}}]}`},
		{"duplicate company", `{"filters": [{"id": "a", "queues": {}}, {"id": "a", "queues": {}}]}`},
		{"queue claimed twice", `{"filters": [{"id": "a", "queues": {"q": "Q"}}, {"id": "b", "queues": {"q": "Q"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.json")
	if err := os.WriteFile(path, []byte(sampleRouting), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("expected 3 routes, got %d", table.Len())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHolderSwap(t *testing.T) {
	h := NewHolder(nil)
	if h.Load().Len() != 0 {
		t.Fatal("expected empty table")
	}

	table, _ := Parse([]byte(sampleRouting))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := h.Load().Len()
			if n != 0 && n != 3 {
				t.Errorf("observed partial table with %d routes", n)
			}
		}()
	}
	h.Swap(table)
	wg.Wait()

	if h.Load().Len() != 3 {
		t.Errorf("expected swapped table, got %d routes", h.Load().Len())
	}
}
