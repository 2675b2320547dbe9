package ami

import "github.com/google/uuid"

// Hangup is the action that terminates a channel
const Hangup = "Hangup"

// NewActionID returns a fresh correlation id for an action
func NewActionID() string {
	return uuid.New().String()
}

// WithActionID appends an ActionID argument so responses can be correlated
func WithActionID(id string, args ...Arg) []Arg {
	return append(args, Arg{Key: "ActionID", Value: id})
}
