// Package errs defines the three-class error taxonomy shared by every
// governance component: Hard-stop, Blocking, Recoverable.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies how a caller must react to a GovernanceError.
type Kind int

const (
	// Recoverable errors are returned to the caller; the core performs no
	// internal retry. The caller may start a fresh authorized attempt.
	Recoverable Kind = iota
	// Blocking errors surface to a human and await further input
	// (a friction stage not yet satisfied, a missing confirmation token).
	Blocking
	// HardStop errors halt the current workflow. When Scope is System the
	// whole process is halted (integrity violation, architectural guard
	// trip) and must never be retried automatically.
	HardStop
)

func (k Kind) String() string {
	switch k {
	case Recoverable:
		return "recoverable"
	case Blocking:
		return "blocking"
	case HardStop:
		return "hard_stop"
	default:
		return "unknown"
	}
}

// Scope narrows a HardStop to either the single workflow or the whole
// system. It is meaningless for Recoverable/Blocking errors.
type Scope int

const (
	ScopeWorkflow Scope = iota
	ScopeSystem
)

// GovernanceError is the single wrapping error type every package returns.
// Sentinel errors (errors.New) identify the specific condition; this struct
// carries the dispatch-relevant Kind plus structured context fields.
type GovernanceError struct {
	Kind    Kind
	Scope   Scope
	Err     error
	Fields  map[string]any
	Message string
}

func (e *GovernanceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GovernanceError) Unwrap() error { return e.Err }

// New builds a GovernanceError wrapping sentinel with the given kind.
func New(kind Kind, sentinel error, msg string, fields map[string]any) *GovernanceError {
	return &GovernanceError{Kind: kind, Err: sentinel, Message: msg, Fields: fields}
}

// HardStopErr builds a HardStop GovernanceError with the given scope:
// ScopeWorkflow, or ScopeSystem for integrity/architectural violations.
func HardStopErr(scope Scope, sentinel error, msg string, fields map[string]any) *GovernanceError {
	return &GovernanceError{Kind: HardStop, Scope: scope, Err: sentinel, Message: msg, Fields: fields}
}

// BlockingErr builds a Blocking GovernanceError.
func BlockingErr(sentinel error, msg string, fields map[string]any) *GovernanceError {
	return &GovernanceError{Kind: Blocking, Err: sentinel, Message: msg, Fields: fields}
}

// RecoverableErr builds a Recoverable GovernanceError.
func RecoverableErr(sentinel error, msg string, fields map[string]any) *GovernanceError {
	return &GovernanceError{Kind: Recoverable, Err: sentinel, Message: msg, Fields: fields}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *GovernanceError. Unrecognized errors are treated as Recoverable.
func KindOf(err error) Kind {
	var ge *GovernanceError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Recoverable
}

// IsSystemHalt reports whether err is a HardStop scoped to the whole system.
func IsSystemHalt(err error) bool {
	var ge *GovernanceError
	if errors.As(err, &ge) {
		return ge.Kind == HardStop && ge.Scope == ScopeSystem
	}
	return false
}
