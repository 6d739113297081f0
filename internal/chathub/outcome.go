package chathub

import "mindspace/backend/internal/apperr"

// OutcomeKind classifies how a socket event was handled.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeIgnored covers malformed, unknown or unauthorized events. Nothing
	// is written back to the sender.
	OutcomeIgnored
	// OutcomeFailed means the event was valid but the server could not apply it.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of handling one inbound event.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeSuccess}
	case apperr.IsClientError(err):
		return Outcome{Kind: OutcomeIgnored, Err: err}
	default:
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
}
