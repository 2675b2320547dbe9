package types

import (
	"encoding/json"
	"strings"
)

// Direction of a call as decided from its master leg
type Direction string

const (
	DirectionInbound  Direction = "Inbound"
	DirectionOutbound Direction = "OutBound"
)

// HoldOrigin records who put a call on hold
type HoldOrigin string

const (
	HoldClient HoldOrigin = "Client"
	HoldServer HoldOrigin = "Server"
)

// Call is the correlated view of one active call, keyed by the uniqueid of
// the first leg seen for it.
type Call struct {
	PhoneNumber      string         `json:"phoneNumber,omitempty"`
	CompanyID        string         `json:"companyId,omitempty"`
	ClientChannel    string         `json:"clientChannel,omitempty"`
	ExtensionChannel string         `json:"extensionChannel,omitempty"`
	LinkedID         string         `json:"linkedId,omitempty"`
	UniqueID         string         `json:"uniqueId,omitempty"`
	State            *int           `json:"state"`
	Queue            string         `json:"queue,omitempty"`
	ExternalID       string         `json:"nit,omitempty"`
	Direction        Direction      `json:"type,omitempty"`
	Paused           *bool          `json:"paused"`
	HoldOrigin       HoldOrigin     `json:"-"`
	Events           []ManagerEvent `json:"events"`
}

// Interface is the device part of the extension channel (before the first '-')
func (c Call) Interface() string {
	if c.ExtensionChannel == "" {
		return ""
	}
	iface, _, _ := strings.Cut(c.ExtensionChannel, "-")
	return iface
}

// IsPaused reports whether the call is currently on hold
func (c Call) IsPaused() bool {
	return c.Paused != nil && *c.Paused
}

// HasState reports whether the channel state is one of states
func (c Call) HasState(states ...int) bool {
	if c.State == nil {
		return false
	}
	for _, s := range states {
		if *c.State == s {
			return true
		}
	}
	return false
}

// MarshalJSON adds the derived interface to the serialized call
func (c Call) MarshalJSON() ([]byte, error) {
	type alias Call
	return json.Marshal(struct {
		alias
		Interface string `json:"interface,omitempty"`
	}{alias(c), c.Interface()})
}
