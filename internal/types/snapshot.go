package types

import "time"

// PausedKind tells which record a paused entry carries
type PausedKind string

const (
	PausedMember PausedKind = "member"
	PausedCall   PausedKind = "call"
)

// PausedEntry is either a paused queue member or a held call
type PausedEntry struct {
	Kind   PausedKind   `json:"kind"`
	Member *QueueMember `json:"member,omitempty"`
	Call   *Call        `json:"call,omitempty"`
}

// QueueSnapshot is the publishable state of one queue, keyed by interface
type QueueSnapshot struct {
	Members      map[string]QueueMember `json:"members"`
	Available    map[string]QueueMember `json:"available"`
	Disconnected map[string]QueueMember `json:"disconnected"`
	InCall       map[string]Call        `json:"in_call"`
	Paused       map[string]PausedEntry `json:"paused"`
	Ringing      map[string]Call        `json:"ringing"`
}

// OutboundSnapshot is the company-wide view of outbound calls, keyed by uniqueid
type OutboundSnapshot struct {
	InCall  map[string]Call `json:"in_call"`
	Paused  map[string]Call `json:"paused"`
	Ringing map[string]Call `json:"ringing"`
}

// CompanySnapshot is the single payload published per company
type CompanySnapshot struct {
	Type        string                   `json:"type"` // always "resume"
	CompanyID   string                   `json:"companyId"`
	CompanyName string                   `json:"companyName,omitempty"`
	Timestamp   time.Time                `json:"timestamp"`
	Queues      map[string]QueueSnapshot `json:"queues"`
	Outbound    OutboundSnapshot         `json:"outbound"`
}
