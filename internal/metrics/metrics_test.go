package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := Get()
	m.RecordEventReceived()
	m.RecordWindow(3, 10*time.Millisecond)
	m.RecordCommand("hangup")
	m.SetConnectionState("listening")
	m.UpdateStoreStats(2, 5, 7)

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"switchboard_events_received_total",
		`switchboard_commands_total{key="hangup"}`,
		`switchboard_ami_connection_state{state="listening"} 1`,
		"switchboard_active_calls 2",
		"switchboard_routed_queues 7",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %s", ct)
	}
}

func TestGetIsSingleton(t *testing.T) {
	if Get() != Get() {
		t.Error("expected the same instance")
	}
}
