package bulk

import (
	"errors"
	"fmt"
)

// Sentinel errors for the round's failure taxonomy. Every fatal error
// returned by RunRound wraps exactly one of these via PhaseError, so
// callers can classify failures with errors.Is regardless of the
// human-readable detail attached.
var (
	ErrConfig             = errors.New("bulk: invalid configuration")
	ErrRoundMismatch      = errors.New("bulk: round id mismatch")
	ErrKey                = errors.New("bulk: key error")
	ErrCommitmentMismatch = errors.New("bulk: commitment mismatch")
	ErrSelfAbsent         = errors.New("bulk: self not recognized in any slot")
	ErrArchive            = errors.New("bulk: archive error")
	ErrTransport          = errors.New("bulk: transport error")
)

// Phase names a point in the round's state machine, used only for
// diagnostics — the orchestrator never branches on it.
type Phase int

const (
	PhaseKeyExchange Phase = iota
	PhaseDescriptorBuild
	PhaseShuffle
	PhaseSlotCompute
	PhaseReconstruct
)

func (p Phase) String() string {
	switch p {
	case PhaseKeyExchange:
		return "key-exchange"
	case PhaseDescriptorBuild:
		return "descriptor-build"
	case PhaseShuffle:
		return "shuffle"
	case PhaseSlotCompute:
		return "slot-compute"
	case PhaseReconstruct:
		return "reconstruct"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseError names the phase and wraps the sentinel cause, plus any
// free-form contextual detail (slot, contributor id, and so on).
type PhaseError struct {
	Phase  Phase
	Cause  error
	Detail string
}

func (e *PhaseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("round aborted in phase %s: %v", e.Phase, e.Cause)
	}
	return fmt.Sprintf("round aborted in phase %s: %v: %s", e.Phase, e.Cause, e.Detail)
}

func (e *PhaseError) Unwrap() error { return e.Cause }

// fail builds a *PhaseError, the single construction point so every abort
// path attaches the same shape of diagnostic.
func fail(phase Phase, cause error, detail string) error {
	return &PhaseError{Phase: phase, Cause: cause, Detail: detail}
}

func failf(phase Phase, cause error, format string, args ...any) error {
	return fail(phase, cause, fmt.Sprintf(format, args...))
}
