package store

import (
	"sort"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
)

var (
	availableMemberStatus    = []int{1, 2, 3, 6, 7, 8}
	disconnectedMemberStatus = []int{0, 4, 5}

	inCallChannelState  = []int{6}
	ringingChannelState = []int{3, 4, 5}
)

// ComputeSnapshot builds the publishable view for each known company. Unknown
// ids are omitted.
func (s *Store) ComputeSnapshot(companyIDs []string) map[string]types.CompanySnapshot {
	table := s.routing.Load()
	members := s.memberList()
	calls := s.callList()
	now := time.Now().UTC()

	// Interfaces with any active call, regardless of company
	busy := make(map[string]bool)
	for _, c := range calls {
		if iface := c.Interface(); iface != "" {
			busy[iface] = true
		}
	}

	out := make(map[string]types.CompanySnapshot, len(companyIDs))
	for _, id := range companyIDs {
		company, ok := table.Company(id)
		if !ok {
			continue
		}

		snap := types.CompanySnapshot{
			Type:        "resume",
			CompanyID:   id,
			CompanyName: company.Name,
			Timestamp:   now,
			Queues:      make(map[string]types.QueueSnapshot),
			Outbound:    outboundView(id, calls),
		}
		for _, route := range table.QueuesFor(id) {
			snap.Queues[route.Queue] = queueView(route.Queue, members, calls, busy)
		}
		out[id] = snap
	}
	return out
}

func queueView(queue string, members []types.QueueMember, calls []types.Call, busy map[string]bool) types.QueueSnapshot {
	view := types.QueueSnapshot{
		Members:      make(map[string]types.QueueMember),
		Available:    make(map[string]types.QueueMember),
		Disconnected: make(map[string]types.QueueMember),
		InCall:       make(map[string]types.Call),
		Paused:       make(map[string]types.PausedEntry),
		Ringing:      make(map[string]types.Call),
	}

	for _, m := range members {
		if m.Queue == queue {
			view.Members[m.Interface] = m
		}
	}

	// Each view keeps the first matching call per member interface, in
	// uniqueid order. An agent may hold one call while talking on another.
	heldCalls := make(map[string]types.Call)
	for _, c := range calls {
		iface := c.Interface()
		if _, isMember := view.Members[iface]; !isMember {
			continue
		}
		if c.IsPaused() {
			if _, seen := heldCalls[iface]; !seen {
				heldCalls[iface] = c
			}
			continue
		}
		if _, seen := view.InCall[iface]; !seen && c.HasState(inCallChannelState...) {
			view.InCall[iface] = c
		}
		if _, seen := view.Ringing[iface]; !seen && c.HasState(ringingChannelState...) {
			view.Ringing[iface] = c
		}
	}

	for iface, m := range view.Members {
		if contains(availableMemberStatus, m.Status) && !m.Paused && !busy[iface] {
			view.Available[iface] = m
		}
		if contains(disconnectedMemberStatus, m.Status) {
			view.Disconnected[iface] = m
		}

		held, onHold := heldCalls[iface]
		if !(contains(availableMemberStatus, m.Status) && m.Paused) && !onHold {
			continue
		}
		if m.Paused {
			member := m
			view.Paused[iface] = types.PausedEntry{Kind: types.PausedMember, Member: &member}
		} else {
			view.Paused[iface] = types.PausedEntry{Kind: types.PausedCall, Call: &held}
		}
	}

	return view
}

func outboundView(companyID string, calls []types.Call) types.OutboundSnapshot {
	view := types.OutboundSnapshot{
		InCall:  make(map[string]types.Call),
		Paused:  make(map[string]types.Call),
		Ringing: make(map[string]types.Call),
	}

	inCall := make(map[string]bool)
	paused := make(map[string]bool)
	ringing := make(map[string]bool)

	for _, c := range calls {
		if c.Direction != types.DirectionOutbound || c.CompanyID != companyID {
			continue
		}
		if c.ExtensionChannel == "" || c.UniqueID == "" {
			continue
		}

		// One call per interface in each view
		iface := c.Interface()
		switch {
		case c.IsPaused():
			if !paused[iface] {
				paused[iface] = true
				view.Paused[c.UniqueID] = c
			}
		case c.HasState(inCallChannelState...):
			if !inCall[iface] {
				inCall[iface] = true
				view.InCall[c.UniqueID] = c
			}
		case c.HasState(ringingChannelState...):
			if !ringing[iface] {
				ringing[iface] = true
				view.Ringing[c.UniqueID] = c
			}
		}
	}

	return view
}

func (s *Store) memberList() []types.QueueMember {
	s.membersMu.RLock()
	defer s.membersMu.RUnlock()

	out := make([]types.QueueMember, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// callList copies every active call, ordered by table key
func (s *Store) callList() []types.Call {
	s.callsMu.RLock()
	ids := make([]string, 0, len(s.calls))
	tracked := make([]*trackedCall, 0, len(s.calls))
	for id := range s.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		tracked = append(tracked, s.calls[id])
	}
	s.callsMu.RUnlock()

	out := make([]types.Call, 0, len(tracked))
	for _, t := range tracked {
		out = append(out, t.snapshot())
	}
	return out
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
