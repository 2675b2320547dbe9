package store

import (
	"context"
	"sync"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/resolver"
	"github.com/jscgfz/asterisk-events-worker-service/internal/routing"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

// archiveTimeout bounds one asynchronous archive write
const archiveTimeout = 10 * time.Second

// CallArchive persists closed calls
type CallArchive interface {
	SaveCallRecord(ctx context.Context, record types.CallRecord) error
}

// Store holds queue members and active calls in memory and attributes every
// change to the company that owns it.
type Store struct {
	routing  *routing.Holder
	resolver resolver.Resolver
	opts     Options
	archive  CallArchive
	logger   zerolog.Logger

	membersMu sync.RWMutex
	members   map[string]types.QueueMember // queue:interface -> member

	callsMu sync.RWMutex
	calls   map[string]*trackedCall        // uniqueid -> call
	linked  map[string]map[string]struct{} // linkedid -> uniqueids
}

// New creates an empty store
func New(routes *routing.Holder, res resolver.Resolver, opts Options, logger zerolog.Logger) *Store {
	return &Store{
		routing:  routes,
		resolver: res,
		opts:     opts,
		logger:   logger.With().Str("component", "store").Logger(),
		members:  make(map[string]types.QueueMember),
		calls:    make(map[string]*trackedCall),
		linked:   make(map[string]map[string]struct{}),
	}
}

// SetArchive sets where closed calls are persisted
func (s *Store) SetArchive(archive CallArchive) {
	s.archive = archive
}

// UpsertMember replaces the member record. Members of unrouted queues are
// kept but report no company.
func (s *Store) UpsertMember(m types.QueueMember) (string, bool) {
	s.membersMu.Lock()
	s.members[m.Key()] = m
	s.membersMu.Unlock()

	route, ok := s.routing.Load().Lookup(m.Queue)
	if !ok {
		return "", false
	}
	return route.CompanyID, true
}

// Member returns a stored member by queue and interface
func (s *Store) Member(queue, iface string) (types.QueueMember, bool) {
	s.membersMu.RLock()
	defer s.membersMu.RUnlock()

	m, ok := s.members[queue+":"+iface]
	return m, ok
}

// ApplyChannelEvent folds a channel event into its call and cross-links legs
// sharing a linkedid.
func (s *Store) ApplyChannelEvent(e types.ManagerEvent) (string, bool) {
	uniqueID := e.Value("uniqueid")
	if uniqueID == "" {
		return "", false
	}

	call := s.findOrCreate(uniqueID)
	call.apply(e, s.opts, s.resolver)
	s.index(call)

	if linkedID := e.Value("linkedid"); linkedID != "" {
		if uniqueID == linkedID {
			// Master leg: legs that arrived first still need its data.
			for _, sibling := range s.siblings(linkedID, uniqueID) {
				sibling.apply(e, s.opts, s.resolver)
			}
		} else if !call.hasEventFrom(linkedID) {
			// Secondary leg: catch up on a master that arrived first.
			if master, ok := s.lookup(linkedID); ok {
				for _, me := range master.timeline() {
					call.apply(me, s.opts, s.resolver)
				}
			}
		}
	}

	return s.companyOf(call.snapshot())
}

// CloseChannel removes the call keyed by the event's uniqueid
func (s *Store) CloseChannel(e types.ManagerEvent) (string, bool) {
	uniqueID := e.Value("uniqueid")
	if uniqueID == "" {
		return "", false
	}

	s.callsMu.Lock()
	tracked, ok := s.calls[uniqueID]
	if ok {
		delete(s.calls, uniqueID)
		s.unindex(tracked)
	}
	s.callsMu.Unlock()

	if !ok {
		return "", false
	}

	call := tracked.snapshot()
	s.archiveCall(call, e)
	return s.companyOf(call)
}

// SetServerPause marks a call paused or resumed by the server side
func (s *Store) SetServerPause(uniqueID string, paused bool) (string, bool) {
	call, ok := s.lookup(uniqueID)
	if !ok {
		return "", false
	}
	call.setServerPause(paused)
	return s.companyOf(call.snapshot())
}

// Call returns a copy of an active call
func (s *Store) Call(uniqueID string) (types.Call, bool) {
	call, ok := s.lookup(uniqueID)
	if !ok {
		return types.Call{}, false
	}
	return call.snapshot(), true
}

// Stats returns the number of active calls and stored members
func (s *Store) Stats() (calls, members int) {
	s.callsMu.RLock()
	calls = len(s.calls)
	s.callsMu.RUnlock()

	s.membersMu.RLock()
	members = len(s.members)
	s.membersMu.RUnlock()
	return calls, members
}

func (s *Store) findOrCreate(uniqueID string) *trackedCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	call, ok := s.calls[uniqueID]
	if !ok {
		call = newTrackedCall(uniqueID)
		s.calls[uniqueID] = call
	}
	return call
}

func (s *Store) lookup(uniqueID string) (*trackedCall, bool) {
	s.callsMu.RLock()
	defer s.callsMu.RUnlock()

	call, ok := s.calls[uniqueID]
	return call, ok
}

// index registers the call under its linkedid once it is known
func (s *Store) index(call *trackedCall) {
	linkedID := call.linkedID()
	if linkedID == "" {
		return
	}

	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	if _, live := s.calls[call.id]; !live {
		return
	}
	set, ok := s.linked[linkedID]
	if !ok {
		set = make(map[string]struct{})
		s.linked[linkedID] = set
	}
	set[call.id] = struct{}{}
}

// unindex must be called with callsMu held
func (s *Store) unindex(call *trackedCall) {
	linkedID := call.linkedID()
	set, ok := s.linked[linkedID]
	if !ok {
		return
	}
	delete(set, call.id)
	if len(set) == 0 {
		delete(s.linked, linkedID)
	}
}

func (s *Store) siblings(linkedID, exclude string) []*trackedCall {
	s.callsMu.RLock()
	defer s.callsMu.RUnlock()

	var out []*trackedCall
	for id := range s.linked[linkedID] {
		if id == exclude {
			continue
		}
		if call, ok := s.calls[id]; ok {
			out = append(out, call)
		}
	}
	return out
}

// companyOf attributes a call by its routed queue, else by a known company id
func (s *Store) companyOf(call types.Call) (string, bool) {
	table := s.routing.Load()
	if call.Queue != "" {
		if route, ok := table.Lookup(call.Queue); ok {
			return route.CompanyID, true
		}
	}
	if call.CompanyID != "" && table.HasCompany(call.CompanyID) {
		return call.CompanyID, true
	}
	return "", false
}

func (s *Store) archiveCall(call types.Call, closing types.ManagerEvent) {
	if s.archive == nil {
		return
	}

	record := callToRecord(call, closing)
	archive := s.archive
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := archive.SaveCallRecord(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("uniqueid", record.UniqueID).Msg("failed to save call record")
		}
	}()
}

// callToRecord converts a closed call for persistence
func callToRecord(call types.Call, closing types.ManagerEvent) types.CallRecord {
	end := time.Now().UTC()
	if ts := closing.Timestamp(); ts > 0 {
		end = unixFloat(ts)
	}
	start := end
	if len(call.Events) > 0 {
		if ts := call.Events[0].Timestamp(); ts > 0 {
			start = unixFloat(ts)
		}
	}

	uniqueID := call.UniqueID
	if uniqueID == "" {
		uniqueID = closing.Value("uniqueid")
	}

	return types.CallRecord{
		DateKey:     end.Format("2006-01-02"),
		UniqueID:    uniqueID,
		LinkedID:    call.LinkedID,
		CompanyID:   call.CompanyID,
		Queue:       call.Queue,
		Direction:   call.Direction,
		PhoneNumber: call.PhoneNumber,
		ExternalID:  call.ExternalID,
		Extension:   call.ExtensionChannel,
		StartTime:   start.Format(time.RFC3339),
		EndTime:     end.Format(time.RFC3339),
		Duration:    end.Sub(start).Seconds(),
		EventCount:  len(call.Events),
	}
}

func unixFloat(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
