package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jscgfz/asterisk-events-worker-service/internal/bus"
	"github.com/jscgfz/asterisk-events-worker-service/internal/metrics"
	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
	"github.com/rs/zerolog"
)

// Store is the subset of the correlation store the sender drives
type Store interface {
	UpsertMember(m types.QueueMember) (string, bool)
	ApplyChannelEvent(e types.ManagerEvent) (string, bool)
	CloseChannel(e types.ManagerEvent) (string, bool)
	ComputeSnapshot(companyIDs []string) map[string]types.CompanySnapshot
}

// NameResolver resolves an agent display name from its plain extension
type NameResolver interface {
	Name(extension string) string
}

// Sender applies one window of events to the store and publishes a snapshot
// for every company the window touched.
type Sender struct {
	store    Store
	names    NameResolver
	producer bus.Producer
	logger   zerolog.Logger
}

// NewSender creates a sender
func NewSender(store Store, names NameResolver, producer bus.Producer, logger zerolog.Logger) *Sender {
	return &Sender{
		store:    store,
		names:    names,
		producer: producer,
		logger:   logger.With().Str("component", "sender").Logger(),
	}
}

// Process applies the batch in order, then publishes once per distinct company
func (s *Sender) Process(ctx context.Context, batch []types.ManagerEvent) {
	seen := make(map[string]bool)
	var companies []string

	for _, e := range batch {
		company, ok := s.resolve(e)
		if !ok || seen[company] {
			continue
		}
		seen[company] = true
		companies = append(companies, company)
	}

	if len(companies) == 0 {
		return
	}
	if err := s.Publish(ctx, companies); err != nil {
		s.logger.Error().Err(err).Msg("failed to publish snapshots")
	}
}

// Publish computes and produces the snapshot of each company
func (s *Sender) Publish(ctx context.Context, companies []string) error {
	m := metrics.Get()
	var errs []error

	for id, snap := range s.store.ComputeSnapshot(companies) {
		data, err := json.Marshal(snap)
		if err != nil {
			m.RecordSnapshotError()
			errs = append(errs, fmt.Errorf("marshal snapshot %s: %w", id, err))
			continue
		}

		if err := s.producer.Produce(ctx, id, data); err != nil {
			m.RecordSnapshotError()
			errs = append(errs, fmt.Errorf("produce snapshot %s: %w", id, err))
			continue
		}

		m.RecordSnapshotPublished()
		s.logger.Debug().
			Str("company", id).
			Int("queues", len(snap.Queues)).
			Int("bytes", len(data)).
			Msg("snapshot published")
	}

	return errors.Join(errs...)
}

func (s *Sender) resolve(e types.ManagerEvent) (string, bool) {
	switch e.Name() {
	case types.EventQueueMember, types.EventQueueMemberStatus:
		member, err := types.ParseQueueMember(e)
		if err != nil {
			metrics.Get().RecordEventError()
			s.logger.Warn().Err(err).Str("event", e.Name()).Msg("skipping malformed member event")
			return "", false
		}
		member.Name = s.names.Name(types.PlainInterface(member.Interface))
		return s.store.UpsertMember(member)

	case types.EventHangup, types.EventAgentComplete:
		return s.store.CloseChannel(e)

	case types.EventUnhold, types.EventHold, types.EventStatus, types.EventNewchannel,
		types.EventNewstate, types.EventAgentConnect, types.EventRename:
		return s.store.ApplyChannelEvent(e)

	default:
		s.logger.Info().Interface("event", e).Msg("unhandled event")
		return "", false
	}
}
