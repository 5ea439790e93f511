// Package scope enforces explicit, comma-separated host scopes for
// browser-shell execution: no wildcards, no regex, no "includes
// subdomains" phrasing, no IP literals — a target is either named exactly
// or it is out of scope. Grounded on
// original_source/python/browser_shell/scope.py's ScopeParser/ScopeValidator.
package scope

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
)

var (
	ErrEmptyScope          = errors.New("scope: scope definition must not be empty")
	ErrForbiddenPattern    = errors.New("scope: scope definition contains a forbidden metacharacter")
	ErrForbiddenInheritance = errors.New("scope: scope definition implies subdomain inheritance")
	ErrInvalidTarget       = errors.New("scope: target is not a valid host")
	ErrNotHumanConfirmed   = errors.New("scope: activation requires human confirmation")
	ErrScopeAlreadyActive  = errors.New("scope: session already has an active, immutable scope")
	ErrNoActiveScope       = errors.New("scope: session has no active scope")
)

// forbiddenPatterns are the exact metacharacters the original
// ScopeParser.FORBIDDEN_PATTERNS list rejects.
var forbiddenPatterns = regexp.MustCompile(`[*?\[\]\\^$|+{}]`)

// hostPattern is the exact host-name shape spec.md §6 gives verbatim: one
// alphanumeric, then any run of alphanumerics/dots/hyphens, then one
// alphanumeric. This alone rejects bare IPv6 bracket literals (`[`, `]`
// already forbidden above), at-signs, percent-encoded escapes, and null
// bytes, since none of those characters appear in the allowed class.
var hostPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.-]*[a-zA-Z0-9]$`)

// forbiddenKeywords are phrases that imply inheritance to subdomains,
// which this enforcer never grants implicitly.
var forbiddenKeywords = []string{
	"includes subdomains",
	"all subdomains",
	"and subdomains",
	"with subdomains",
	"subdomain",
}

// Activation is an immutable record of one session's scope, once granted.
type Activation struct {
	SessionID string
	Targets   map[string]bool
	Hash      string
}

// Parse validates a raw scope definition and returns the explicit target
// set. It never infers, expands, or normalizes beyond trimming whitespace
// around comma-separated entries.
func Parse(definition string) (map[string]bool, error) {
	trimmed := strings.TrimSpace(definition)
	if trimmed == "" {
		return nil, ErrEmptyScope
	}
	lower := strings.ToLower(trimmed)
	for _, kw := range forbiddenKeywords {
		if strings.Contains(lower, kw) {
			return nil, fmt.Errorf("%w: %q", ErrForbiddenInheritance, kw)
		}
	}
	if forbiddenPatterns.MatchString(trimmed) {
		return nil, ErrForbiddenPattern
	}

	targets := make(map[string]bool)
	for _, part := range strings.Split(trimmed, ",") {
		target := strings.TrimSpace(part)
		if target == "" {
			continue
		}
		if !isValidTarget(target) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}
		targets[target] = true
	}
	if len(targets) == 0 {
		return nil, ErrEmptyScope
	}
	return targets, nil
}

// isValidTarget rejects IP literals (the scope is host-name only), any
// target not matching the exact host regex spec.md §6 gives verbatim —
// which by construction rejects at-signs, backslashes, percent-encoded
// escapes like "%40", null bytes, and IPv6 bracket literals, since none of
// those characters fall in the allowed alphanumeric/dot/hyphen class — and
// requires at least one dot with no empty labels.
func isValidTarget(target string) bool {
	if net.ParseIP(target) != nil {
		return false
	}
	if !hostPattern.MatchString(target) {
		return false
	}
	if !strings.Contains(target, ".") {
		return false
	}
	labels := strings.Split(target, ".")
	for _, l := range labels {
		if l == "" {
			return false
		}
	}
	return true
}

// AuditSink receives every activation and validation decision, mirroring
// the original ScopeValidator's _log_scope_action.
type AuditSink interface {
	LogScopeActivated(sessionID, definition, hash string)
	LogScopeValidated(sessionID, target string)
	LogScopeViolation(sessionID, target, reason string)
}

// Enforcer tracks one immutable scope per session.
type Enforcer struct {
	mu     sync.RWMutex
	active map[string]Activation
	audit  AuditSink
}

// New constructs an Enforcer. audit may be nil to disable logging (tests).
func New(audit AuditSink) *Enforcer {
	return &Enforcer{active: make(map[string]Activation), audit: audit}
}

// Activate parses and binds a scope to sessionID. A session's scope is
// granted exactly once and can never be replaced or widened afterward.
func (e *Enforcer) Activate(sessionID, definition string, humanConfirmed bool, hash string) (Activation, error) {
	if !humanConfirmed {
		return Activation{}, ErrNotHumanConfirmed
	}
	targets, err := Parse(definition)
	if err != nil {
		return Activation{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.active[sessionID]; exists {
		return Activation{}, ErrScopeAlreadyActive
	}
	act := Activation{SessionID: sessionID, Targets: targets, Hash: hash}
	e.active[sessionID] = act
	if e.audit != nil {
		e.audit.LogScopeActivated(sessionID, definition, hash)
	}
	return act, nil
}

// Validate reports whether target is in sessionID's activated scope. Every
// call — pass or block — is logged.
func (e *Enforcer) Validate(sessionID, target string) error {
	e.mu.RLock()
	act, ok := e.active[sessionID]
	e.mu.RUnlock()

	if !ok {
		if e.audit != nil {
			e.audit.LogScopeViolation(sessionID, target, "no active scope")
		}
		return ErrNoActiveScope
	}
	if !act.Targets[target] {
		if e.audit != nil {
			e.audit.LogScopeViolation(sessionID, target, "target not in scope")
		}
		return fmt.Errorf("%w: %q not in session scope", ErrInvalidTarget, target)
	}
	if e.audit != nil {
		e.audit.LogScopeValidated(sessionID, target)
	}
	return nil
}
