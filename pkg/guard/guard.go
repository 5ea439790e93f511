// Package guard implements the architectural invariants nothing upstream
// is allowed to route around: a static scan for forbidden automation
// method names, a duplicate-submission reservation, the single-request
// adapter-call invariant, and the disk-retention critical check.
package guard

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// forbiddenPrefixes mirrors the original browser_shell/scope.py
// "FORBIDDEN CAPABILITIES" banner: any method beginning with one of these
// would let a caller script around human authorization.
var forbiddenPrefixes = []string{
	"auto_", "Auto",
	"bypass_", "Bypass",
	"skip_", "Skip",
	"override_", "Override",
	"expand_", "Expand",
	"learn_", "Learn",
}

// forbiddenExactNames are specific method names that would reintroduce
// scoring, classification, or auto-proof generation, none of which a human
// governance gate is allowed to delegate away.
var forbiddenExactNames = map[string]bool{
	"ComputeSeverity":   true,
	"Classify":          true,
	"GenerateProof":     true,
	"ComputeConfidence": true,
	"RecommendAction":   true,
}

// ErrForbiddenMethod is returned by CheckForbiddenMethods when a type
// exposes a method this architecture forbids.
var ErrForbiddenMethod = errors.New("guard: type exposes a forbidden automation method")

// CheckForbiddenMethods walks every exported method of v's type (or *v's
// type, to catch pointer-receiver methods) and fails the first one whose
// name matches a forbidden prefix or exact name. It checks only the value
// it is given; guard_test.go runs it over sample clean and forbidden types.
func CheckForbiddenMethods(v any) error {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil
	}
	if t.Kind() != reflect.Ptr {
		pt := reflect.PtrTo(t)
		if err := scanMethods(pt); err != nil {
			return err
		}
	}
	return scanMethods(t)
}

func scanMethods(t reflect.Type) error {
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		if forbiddenExactNames[name] {
			return fmt.Errorf("%w: %s.%s", ErrForbiddenMethod, t, name)
		}
		for _, prefix := range forbiddenPrefixes {
			if strings.HasPrefix(name, prefix) {
				return fmt.Errorf("%w: %s.%s", ErrForbiddenMethod, t, name)
			}
		}
	}
	return nil
}

// DuplicateKey identifies a (decision, platform) submission target.
type DuplicateKey struct {
	DecisionID string
	Platform   string
}

// ErrDuplicateSubmission is returned by Reserve when the same
// (decision, platform) pair has already been reserved. This is a blocking
// invariant, never an advisory heuristic; a separate, non-gating advisory
// hook exists elsewhere for informational duplicate detection.
var ErrDuplicateSubmission = errors.New("guard: duplicate submission for this decision and platform")

// DuplicateSubmissionGuard reserves (decision_id, platform) pairs so no two
// transmissions of the same finding to the same platform are in flight at
// once. A pair can be reserved again after Release.
type DuplicateSubmissionGuard struct {
	mu        sync.Mutex
	reserved  map[DuplicateKey]bool
}

// NewDuplicateSubmissionGuard constructs an empty guard.
func NewDuplicateSubmissionGuard() *DuplicateSubmissionGuard {
	return &DuplicateSubmissionGuard{reserved: make(map[DuplicateKey]bool)}
}

// Reserve atomically checks-and-records a (decision, platform) pair.
func (g *DuplicateSubmissionGuard) Reserve(decisionID, platform string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := DuplicateKey{DecisionID: decisionID, Platform: platform}
	if g.reserved[key] {
		return ErrDuplicateSubmission
	}
	g.reserved[key] = true
	return nil
}

// Release frees a (decision, platform) reservation. Callers release on
// explicit success or on error: success because the reservation's job is
// done, and error because a recoverable adapter failure must not
// permanently block a fresh, independently-authorized retry to the same
// platform. It is a no-op if the pair was never reserved.
func (g *DuplicateSubmissionGuard) Release(decisionID, platform string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.reserved, DuplicateKey{DecisionID: decisionID, Platform: platform})
}

// ErrAdapterCalledTwice is returned when an adapter invocation is attempted
// a second time for the same authorized flow.
var ErrAdapterCalledTwice = errors.New("guard: adapter invoked more than once for this authorization")

// SingleRequestGuard enforces that an external adapter is called at most
// once per authorized flow. Reset must be called explicitly at the start
// of each new, independently-authorized attempt — there is no automatic
// reset, since automatic reset would let a caller loop invocations under
// one authorization.
type SingleRequestGuard struct {
	mu      sync.Mutex
	invoked bool
}

// NewSingleRequestGuard constructs a guard ready for one invocation.
func NewSingleRequestGuard() *SingleRequestGuard {
	return &SingleRequestGuard{}
}

// Invoke runs fn if this guard has not yet been used, else returns
// ErrAdapterCalledTwice without calling fn.
func (g *SingleRequestGuard) Invoke(fn func() error) error {
	g.mu.Lock()
	if g.invoked {
		g.mu.Unlock()
		return ErrAdapterCalledTwice
	}
	g.invoked = true
	g.mu.Unlock()
	return fn()
}

// Reset rearms the guard for a fresh, independently-authorized attempt.
func (g *SingleRequestGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invoked = false
}

// ErrDiskRetentionCritical is returned by CheckDiskRetention when usage
// has crossed the critical threshold.
var ErrDiskRetentionCritical = errors.New("guard: disk usage at or above critical retention threshold")

// CheckDiskRetention compares usedBytes/totalBytes against criticalPercent
// (0-100). Returns ErrDiskRetentionCritical if at or over the threshold.
func CheckDiskRetention(usedBytes, totalBytes int64, criticalPercent float64) error {
	if totalBytes <= 0 {
		return fmt.Errorf("guard: invalid totalBytes %d", totalBytes)
	}
	pct := float64(usedBytes) / float64(totalBytes) * 100
	if pct >= criticalPercent {
		return fmt.Errorf("%w: %.1f%% used (critical at %.1f%%)", ErrDiskRetentionCritical, pct, criticalPercent)
	}
	return nil
}
