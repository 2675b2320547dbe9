package store

import (
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jscgfz/asterisk-events-worker-service/internal/resolver"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
)

// Options control how channel events are classified
type Options struct {
	ExtensionPattern *regexp.Regexp
	ClientPattern    *regexp.Regexp
	InboundContexts  []string
	IVRPrefix        string
}

// DefaultOptions returns the stock channel patterns and inbound contexts
func DefaultOptions() Options {
	return Options{
		ExtensionPattern: regexp.MustCompile(`^(SIP/\d+-[a-z0-9]+)$`),
		ClientPattern:    regexp.MustCompile(`^(SIP/troncal-panasonic-[a-z0-9]+)$`),
		InboundContexts:  []string{"trunkinbound", "colas", "verMiem"},
		IVRPrefix:        "ivr",
	}
}

func (o Options) validChannel(channel string) bool {
	return o.ExtensionPattern.MatchString(channel) || o.ClientPattern.MatchString(channel)
}

// inbound matches the context exactly against the inbound set, or by
// case-insensitive IVR prefix
func (o Options) inbound(context string) bool {
	for _, c := range o.InboundContexts {
		if c == context {
			return true
		}
	}
	return o.IVRPrefix != "" && len(context) >= len(o.IVRPrefix) &&
		strings.EqualFold(context[:len(o.IVRPrefix)], o.IVRPrefix)
}

// trackedCall guards one Call. Locks of two calls are never held together.
type trackedCall struct {
	id string

	mu   sync.Mutex
	call types.Call
}

func newTrackedCall(id string) *trackedCall {
	return &trackedCall{id: id}
}

// apply folds one event into the call. Identity and descriptive fields are
// first-write-wins; state and paused are overwritten.
func (t *trackedCall) apply(e types.ManagerEvent, opts Options, res resolver.Resolver) {
	name := e.Name()
	if name == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.insert(e)

	c := &t.call
	switch name {
	case types.EventHold:
		if e.Value("channelstate") == "6" {
			c.Paused = boolPtr(true)
			c.HoldOrigin = types.HoldClient
		}
	case types.EventUnhold:
		c.Paused = boolPtr(false)
		c.HoldOrigin = types.HoldClient
	default:
		t.correlate(e, opts, res)
	}
}

func (t *trackedCall) correlate(e types.ManagerEvent, opts Options, res resolver.Resolver) {
	channel, hasChannel := e.Get("channel")
	uniqueID, hasUnique := e.Get("uniqueid")
	linkedID, hasLinked := e.Get("linkedid")
	channelState, hasState := e.Get("channelstate")
	if !hasChannel || !hasUnique || !hasLinked || !hasState || channelState == "0" {
		return
	}
	if !opts.validChannel(channel) {
		return
	}

	c := &t.call
	if n, err := strconv.Atoi(channelState); err == nil {
		c.State = &n
	}
	setOnce(&c.LinkedID, linkedID)
	setOnce(&c.UniqueID, uniqueID)

	if opts.ClientPattern.MatchString(channel) {
		c.ClientChannel = channel
	}
	extension := opts.ExtensionPattern.MatchString(channel)

	if uniqueID == linkedID {
		context, ok := e.Get("context")
		if !ok {
			return
		}

		if c.Direction == "" {
			if opts.inbound(context) {
				c.Direction = types.DirectionInbound
			} else {
				c.Direction = types.DirectionOutbound
			}
		}

		if c.Queue == "" && strings.EqualFold(e.Value("application"), "queue") {
			c.Queue, _, _ = strings.Cut(e.Value("data"), ",")
		}
		setOnce(&c.Queue, e.Value("queue"))

		phoneKey := "exten"
		if c.Direction == types.DirectionInbound {
			phoneKey = "calleridnum"
		}
		if phone, ok := e.Get(phoneKey); ok {
			phone, _, _ = strings.Cut(phone, "*")
			setOnce(&c.PhoneNumber, phone)
		}

		if c.Direction == types.DirectionOutbound && extension {
			setOnce(&c.ExtensionChannel, channel)
			setOnce(&c.CompanyID, e.Value("accountcode"))
		}
	} else if (c.Direction == "" || c.Direction == types.DirectionInbound) && extension {
		c.ExtensionChannel = channel
		setOnce(&c.CompanyID, e.Value("accountcode"))
	}

	if c.ExternalID == "" {
		c.ExternalID = res.ExternalID(linkedID)
	}
}

// insert keeps the timeline sorted by timestamp, ties in arrival order
func (t *trackedCall) insert(e types.ManagerEvent) {
	ts := e.Timestamp()
	events := t.call.Events
	i := sort.Search(len(events), func(i int) bool { return events[i].Timestamp() > ts })
	t.call.Events = slices.Insert(events, i, e)
}

// hasEventFrom reports whether any timeline event came from the given leg
func (t *trackedCall) hasEventFrom(uniqueID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.call.Events {
		if e.Value("uniqueid") == uniqueID {
			return true
		}
	}
	return false
}

func (t *trackedCall) timeline() []types.ManagerEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.call.Events)
}

func (t *trackedCall) linkedID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.call.LinkedID
}

func (t *trackedCall) setServerPause(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.call.Paused = boolPtr(paused)
	t.call.HoldOrigin = types.HoldServer
}

// snapshot returns a deep copy safe to read without the lock
func (t *trackedCall) snapshot() types.Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.call
	if c.State != nil {
		s := *c.State
		c.State = &s
	}
	if c.Paused != nil {
		p := *c.Paused
		c.Paused = &p
	}
	c.Events = slices.Clone(c.Events)
	return c
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func boolPtr(b bool) *bool {
	return &b
}
