package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

// fakeDynamo answers the JSON protocol by X-Amz-Target
type fakeDynamo struct {
	mu       sync.Mutex
	requests map[string][]map[string]any
}

func (f *fakeDynamo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), "DynamoDB_20120810.")
	body, _ := io.ReadAll(r.Body)

	var payload map[string]any
	json.Unmarshal(body, &payload)

	f.mu.Lock()
	f.requests[op] = append(f.requests[op], payload)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	switch op {
	case "DescribeTable":
		io.WriteString(w, `{"Table":{"TableName":"call-records","TableStatus":"ACTIVE"}}`)
	case "Query":
		io.WriteString(w, `{"Count":1,"Items":[{"DateKey":{"S":"2024-05-01"},"UniqueID":{"S":"1714550400.1"},"CompanyID":{"S":"c1"},"Duration":{"N":"42"},"EventCount":{"N":"7"}}]}`)
	default:
		io.WriteString(w, `{}`)
	}
}

func (f *fakeDynamo) calls(op string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[op]
}

func newFakeStore(t *testing.T) (*DynamoDBStore, *fakeDynamo) {
	t.Helper()
	fake := &fakeDynamo{requests: make(map[string][]map[string]any)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	st, err := NewDynamoDBStore(context.Background(), DynamoConfig{
		Mode:             DynamoModeLocal,
		Endpoint:         srv.URL,
		Region:           "us-east-1",
		CallRecordsTable: "call-records",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return st, fake
}

func TestSaveCallRecord(t *testing.T) {
	st, fake := newFakeStore(t)

	err := st.SaveCallRecord(context.Background(), types.CallRecord{
		DateKey:   "2024-05-01",
		UniqueID:  "1714550400.1",
		CompanyID: "c1",
		Direction: types.DirectionInbound,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	puts := fake.calls("PutItem")
	if len(puts) != 1 {
		t.Fatalf("expected one PutItem, got %d", len(puts))
	}
	if puts[0]["TableName"] != "call-records" {
		t.Errorf("unexpected table %v", puts[0]["TableName"])
	}
	item, _ := puts[0]["Item"].(map[string]any)
	if _, ok := item["UniqueID"]; !ok {
		t.Errorf("expected UniqueID attribute, got %v", item)
	}
}

func TestGetCompanyCallsByDate(t *testing.T) {
	st, fake := newFakeStore(t)

	records, err := st.GetCompanyCallsByDate(context.Background(), "c1", "2024-05-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].UniqueID != "1714550400.1" || records[0].EventCount != 7 {
		t.Errorf("unexpected records %+v", records)
	}

	queries := fake.calls("Query")
	if len(queries) != 1 {
		t.Fatalf("expected one Query, got %d", len(queries))
	}
	if _, ok := queries[0]["FilterExpression"]; !ok {
		t.Error("expected a company filter expression")
	}
}

func TestLocalModeSkipsExistingTable(t *testing.T) {
	_, fake := newFakeStore(t)
	if n := len(fake.calls("CreateTable")); n != 0 {
		t.Errorf("expected no CreateTable for an existing table, got %d", n)
	}
}

func TestNewStoreNoop(t *testing.T) {
	st, err := NewStore(context.Background(), DynamoConfig{Mode: DynamoModeNone}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := st.(*NoopStore); !ok {
		t.Errorf("expected NoopStore, got %T", st)
	}
	if err := st.SaveCallRecord(context.Background(), types.CallRecord{}); err != nil {
		t.Errorf("noop save failed: %v", err)
	}
}

func TestParseDynamoMode(t *testing.T) {
	for in, want := range map[string]DynamoMode{
		"local": DynamoModeLocal,
		"aws":   DynamoModeAWS,
		"":      DynamoModeNone,
		"s3":    DynamoModeNone,
	} {
		if got := ParseDynamoMode(in); got != want {
			t.Errorf("ParseDynamoMode(%q) = %s, want %s", in, got, want)
		}
	}
}
