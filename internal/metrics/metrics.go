package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Event metrics
	EventsReceivedTotal   int64
	EventsAcceptedTotal   int64
	EventsDroppedTotal    int64
	EventProcessingErrors int64

	// Connection metrics
	ReconnectsTotal int64
	connectionState string

	// Window metrics
	WindowsTotal       int64
	WindowEventsTotal  int64
	lastWindowDuration time.Duration

	// Snapshot metrics
	SnapshotsPublishedTotal int64
	SnapshotErrorsTotal     int64

	// Command metrics
	commandsTotal map[string]int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// Store gauges
	activeCalls  int
	queueMembers int
	routedQueues int

	// HTTP metrics
	httpRequestsTotal map[string]map[int]int64 // endpoint -> status -> count

	startTime time.Time
}

var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			connectionState:   "disconnected",
			commandsTotal:     make(map[string]int64),
			httpRequestsTotal: make(map[string]map[int]int64),
			startTime:         time.Now(),
		}
	})
	return instance
}

// RecordEventReceived counts a decoded manager event
func (m *Metrics) RecordEventReceived() {
	m.mu.Lock()
	m.EventsReceivedTotal++
	m.mu.Unlock()
}

// RecordEventAccepted counts an event admitted to a window
func (m *Metrics) RecordEventAccepted() {
	m.mu.Lock()
	m.EventsAcceptedTotal++
	m.mu.Unlock()
}

// RecordEventDropped counts an event outside the allow-list
func (m *Metrics) RecordEventDropped() {
	m.mu.Lock()
	m.EventsDroppedTotal++
	m.mu.Unlock()
}

// RecordEventError counts a malformed event
func (m *Metrics) RecordEventError() {
	m.mu.Lock()
	m.EventProcessingErrors++
	m.mu.Unlock()
}

// RecordReconnect counts a reconnect attempt
func (m *Metrics) RecordReconnect() {
	m.mu.Lock()
	m.ReconnectsTotal++
	m.mu.Unlock()
}

// SetConnectionState records the manager connection state
func (m *Metrics) SetConnectionState(state string) {
	m.mu.Lock()
	m.connectionState = state
	m.mu.Unlock()
}

// ConnectionState returns the last recorded connection state
func (m *Metrics) ConnectionState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectionState
}

// RecordWindow records a flushed window
func (m *Metrics) RecordWindow(size int, duration time.Duration) {
	m.mu.Lock()
	m.WindowsTotal++
	m.WindowEventsTotal += int64(size)
	m.lastWindowDuration = duration
	m.mu.Unlock()
}

// RecordSnapshotPublished counts a produced snapshot
func (m *Metrics) RecordSnapshotPublished() {
	m.mu.Lock()
	m.SnapshotsPublishedTotal++
	m.mu.Unlock()
}

// RecordSnapshotError counts a snapshot that failed to marshal or produce
func (m *Metrics) RecordSnapshotError() {
	m.mu.Lock()
	m.SnapshotErrorsTotal++
	m.mu.Unlock()
}

// RecordCommand counts an inbound command by key
func (m *Metrics) RecordCommand(key string) {
	m.mu.Lock()
	m.commandsTotal[key]++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// UpdateStoreStats sets the store gauges
func (m *Metrics) UpdateStoreStats(calls, members, routes int) {
	m.mu.Lock()
	m.activeCalls = calls
	m.queueMembers = members
	m.routedQueues = routes
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		write("switchboard_uptime_seconds", time.Since(m.startTime).Seconds())

		write("switchboard_events_received_total", m.EventsReceivedTotal)
		write("switchboard_events_accepted_total", m.EventsAcceptedTotal)
		write("switchboard_events_dropped_total", m.EventsDroppedTotal)
		write("switchboard_event_errors_total", m.EventProcessingErrors)

		write("switchboard_ami_reconnects_total", m.ReconnectsTotal)
		write("switchboard_ami_connection_state", 1, "state", m.connectionState)

		write("switchboard_windows_total", m.WindowsTotal)
		write("switchboard_window_events_total", m.WindowEventsTotal)
		write("switchboard_window_duration_seconds", m.lastWindowDuration.Seconds())

		write("switchboard_snapshots_published_total", m.SnapshotsPublishedTotal)
		write("switchboard_snapshot_errors_total", m.SnapshotErrorsTotal)

		keys := make([]string, 0, len(m.commandsTotal))
		for k := range m.commandsTotal {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write("switchboard_commands_total", m.commandsTotal[k], "key", k)
		}

		write("switchboard_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("switchboard_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("switchboard_websocket_active_connections", m.activeConnections)
		write("switchboard_websocket_messages_total", m.WebSocketMessagesTotal)
		write("switchboard_websocket_errors_total", m.WebSocketErrorsTotal)

		write("switchboard_active_calls", m.activeCalls)
		write("switchboard_queue_members", m.queueMembers)
		write("switchboard_routed_queues", m.routedQueues)

		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("switchboard_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
