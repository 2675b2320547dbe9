package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InterfacePrefix is stripped from a member interface to get its extension
const InterfacePrefix = "SIP/"

// ErrMissingField is returned when an event lacks a property its handler needs
var ErrMissingField = errors.New("missing required field")

// QueueMember is an agent's membership in one queue. Every membership event
// replaces the whole record.
type QueueMember struct {
	Interface  string    `json:"agent"`
	Extension  *int64    `json:"extension"`
	Name       string    `json:"name"`
	Membership string    `json:"membership"`
	CallsTaken int       `json:"callsTaken"`
	LastCall   time.Time `json:"lastCall"`
	Paused     bool      `json:"paused"`
	Status     int       `json:"status"`
	InCall     bool      `json:"inCall"`
	LoginDate  time.Time `json:"loginDate"`
	Queue      string    `json:"queue"`
}

// Key identifies the member within the member table
func (m QueueMember) Key() string {
	return m.Queue + ":" + m.Interface
}

// PlainInterface strips the SIP prefix from a device address
func PlainInterface(iface string) string {
	return strings.ReplaceAll(iface, InterfacePrefix, "")
}

// ParseQueueMember converts a QueueMember/QueueMemberStatus event into a
// record. The display name is left empty for the caller to resolve.
func ParseQueueMember(e ManagerEvent) (QueueMember, error) {
	var m QueueMember

	iface, ok := memberInterface(e)
	if !ok {
		return m, fmt.Errorf("interface/location: %w", ErrMissingField)
	}

	queue, err := requireField(e, "queue")
	if err != nil {
		return m, err
	}
	membership, err := requireField(e, "membership")
	if err != nil {
		return m, err
	}
	callsTaken, err := intField(e, "callstaken")
	if err != nil {
		return m, err
	}
	lastCall, err := intField(e, "lastcall")
	if err != nil {
		return m, err
	}
	paused, err := requireField(e, "paused")
	if err != nil {
		return m, err
	}
	status, err := intField(e, "status")
	if err != nil {
		return m, err
	}
	inCall, err := requireField(e, "incall")
	if err != nil {
		return m, err
	}
	loginTime, err := intField(e, "logintime")
	if err != nil {
		return m, err
	}

	m = QueueMember{
		Interface:  iface,
		Membership: membership,
		CallsTaken: callsTaken,
		LastCall:   time.Unix(int64(lastCall), 0).UTC(),
		Paused:     paused == "1",
		Status:     status,
		InCall:     inCall == "1",
		LoginDate:  time.Unix(int64(loginTime), 0).UTC(),
		Queue:      queue,
	}
	if ext, err := strconv.ParseInt(PlainInterface(iface), 10, 64); err == nil {
		m.Extension = &ext
	}
	return m, nil
}

// memberInterface returns whichever of location/interface appears first
func memberInterface(e ManagerEvent) (string, bool) {
	for _, k := range e.keys {
		if k == "location" || k == "interface" {
			return e.values[k], true
		}
	}
	return "", false
}

func requireField(e ManagerEvent, key string) (string, error) {
	v, ok := e.Get(key)
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrMissingField)
	}
	return v, nil
}

func intField(e ManagerEvent, key string) (int, error) {
	v, err := requireField(e, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
