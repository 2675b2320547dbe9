package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Manager event names handled by the worker
const (
	EventQueueMember        = "QueueMember"
	EventQueueMemberStatus  = "QueueMemberStatus"
	EventQueueMemberAdded   = "QueueMemberAdded"
	EventQueueMemberRemoved = "QueueMemberRemoved"
	EventQueueMemberPaused  = "QueueMemberPaused"
	EventStatus             = "Status"
	EventHangup             = "Hangup"
	EventHold               = "Hold"
	EventUnhold             = "Unhold"
	EventAgentConnect       = "AgentConnect"
	EventAgentComplete      = "AgentComplete"
	EventNewchannel         = "Newchannel"
	EventNewstate           = "Newstate"
	EventRename             = "Rename"
)

// ManagerEvent is one decoded protocol block. Keys are lower-case and keep
// the order in which they were first seen.
type ManagerEvent struct {
	keys   []string
	values map[string]string
}

// NewEvent builds an event from alternating key/value pairs
func NewEvent(pairs ...string) ManagerEvent {
	var e ManagerEvent
	for i := 0; i+1 < len(pairs); i += 2 {
		e.Set(pairs[i], pairs[i+1])
	}
	return e
}

// Set stores value under the lower-cased key. The first value seen for a key
// wins; Set reports whether the value was stored.
func (e *ManagerEvent) Set(key, value string) bool {
	key = strings.ToLower(key)
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, exists := e.values[key]; exists {
		return false
	}
	e.keys = append(e.keys, key)
	e.values[key] = value
	return true
}

// Get returns the value for key and whether it was present
func (e ManagerEvent) Get(key string) (string, bool) {
	v, ok := e.values[strings.ToLower(key)]
	return v, ok
}

// Value returns the value for key or an empty string
func (e ManagerEvent) Value(key string) string {
	return e.values[strings.ToLower(key)]
}

// Has reports whether key is present
func (e ManagerEvent) Has(key string) bool {
	_, ok := e.Get(key)
	return ok
}

// Name returns the "event" property
func (e ManagerEvent) Name() string {
	return e.values["event"]
}

// Keys returns the property names in insertion order
func (e ManagerEvent) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len returns the number of properties
func (e ManagerEvent) Len() int {
	return len(e.keys)
}

// Timestamp parses the "timestamp" property. Missing or malformed values
// sort as zero.
func (e ManagerEvent) Timestamp() float64 {
	ts, err := strconv.ParseFloat(e.values["timestamp"], 64)
	if err != nil {
		return 0
	}
	return ts
}

// MarshalJSON writes the event as an object in insertion order
func (e ManagerEvent) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
