package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/ami"
	"github.com/jscgfz/asterisk-events-worker-service/internal/bus"
	"github.com/jscgfz/asterisk-events-worker-service/internal/metrics"
	"github.com/rs/zerolog"
)

// KeyHangup asks the PBX to hang up the channel named in the message value
const KeyHangup = "hangup"

// consumeBackoff paces the loop after a failed read
const consumeBackoff = time.Second

// ActionSender writes a manager action on the live connection
type ActionSender interface {
	SendAction(action string, args ...ami.Arg) bool
}

// Service turns bus commands into manager actions
type Service struct {
	actions ActionSender
	logger  zerolog.Logger
}

// NewService creates a command service
func NewService(actions ActionSender, logger zerolog.Logger) *Service {
	return &Service{
		actions: actions,
		logger:  logger.With().Str("component", "commands").Logger(),
	}
}

// Run consumes commands until ctx is cancelled or the consumer closes. Read
// errors are logged and the loop continues.
func (s *Service) Run(ctx context.Context, consumer bus.Consumer) {
	s.logger.Info().Msg("command consumer started")
	defer s.logger.Info().Msg("command consumer stopped")

	for {
		msg, err := consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bus.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("failed to consume command")
			select {
			case <-ctx.Done():
				return
			case <-time.After(consumeBackoff):
			}
			continue
		}

		s.Handle(msg)
	}
}

// Handle executes one command. Unknown keys are ignored.
func (s *Service) Handle(msg bus.Message) bool {
	metrics.Get().RecordCommand(msg.Key)

	switch msg.Key {
	case KeyHangup:
		channel := strings.TrimSpace(string(msg.Value))
		if channel == "" {
			s.logger.Warn().Msg("hangup command without channel")
			return false
		}

		id := ami.NewActionID()
		ok := s.actions.SendAction(ami.Hangup, ami.WithActionID(id, ami.Arg{Key: "Channel", Value: channel})...)
		if !ok {
			s.logger.Warn().Str("channel", channel).Str("action_id", id).Msg("hangup not sent")
			return false
		}
		s.logger.Info().Str("channel", channel).Str("action_id", id).Msg("hangup sent")
		return true

	default:
		s.logger.Debug().Str("key", msg.Key).Msg("ignoring unknown command")
		return false
	}
}
