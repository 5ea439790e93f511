// Package friction implements the Friction Gate: an ordered sequence of
// human-facing checkpoints a decision must pass through before it is
// eligible for authorization. Every stage-completion method returns a new
// immutable State snapshot rather than mutating one in place, the same
// pattern the original governance_friction/coordinator.py uses for its
// FrictionState dataclass.
package friction

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/certen/bounty-governance/pkg/adapter"
)

// Sentinel errors, one per stage violation.
var (
	ErrUnknownDecision       = errors.New("friction: unknown decision id")
	ErrDeliberationTooShort  = errors.New("friction: deliberation ended before minimum elapsed time")
	ErrForcedEditViolation   = errors.New("friction: edit is not materially different from the original")
	ErrChallengeNotAnswered  = errors.New("friction: challenge answer too short or empty")
	ErrCooldownTooShort      = errors.New("friction: cooldown ended before minimum elapsed time")
	ErrAuditIncomplete       = errors.New("friction: not all audit items were recorded")
	ErrStageOutOfOrder       = errors.New("friction: stage attempted out of order")
)

// Config holds the gate's tunable minimums, loaded from pkg/config.
type Config struct {
	MinDeliberation         time.Duration
	MinCooldown             time.Duration
	MinChallengeAnswerChars int
	RubberStampWarnThreshold time.Duration
	RubberStampMinDecisions int
}

// stage tracks which of the four audit items have been recorded for a
// decision. All four are required before CompleteFriction succeeds.
type stage struct {
	deliberation bool
	edit         bool
	challenge    bool
	cooldown     bool
}

func (s stage) complete() bool {
	return s.deliberation && s.edit && s.challenge && s.cooldown
}

// State is an immutable snapshot of one decision's progress through the
// gate.
type State struct {
	DecisionID        string
	OriginalContent   string
	DeliberationStart time.Time
	DeliberationEnd   time.Time
	EditSubmitted     bool
	ChallengeAnswered bool
	CooldownStart     time.Time
	CooldownEnd       time.Time
	Complete          bool
	items             stage
}

// RubberStampAdvisory is emitted (never blocking) when a reviewer's
// deliberation time falls under the configured warn threshold across
// enough recent decisions to be a pattern, not a one-off.
type RubberStampAdvisory struct {
	ReviewerID string
	DecisionID string
	Elapsed    time.Duration
}

// Gate drives one or more decisions through the five ordered stages.
type Gate struct {
	mu       sync.Mutex
	cfg      Config
	clock    adapter.Clock
	states   map[string]State
	// reviewerTimes tracks recent deliberation durations per reviewer for
	// the advisory-only rubber-stamp pattern detector.
	reviewerTimes map[string][]time.Duration
}

// New constructs a Gate.
func New(cfg Config, clock adapter.Clock) *Gate {
	return &Gate{
		cfg:           cfg,
		clock:         clock,
		states:        make(map[string]State),
		reviewerTimes: make(map[string][]time.Duration),
	}
}

// Start begins the gate for decisionID: starts the deliberation timer and
// registers originalContent as the forced-edit baseline.
func (g *Gate) Start(decisionID, originalContent string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := State{
		DecisionID:        decisionID,
		OriginalContent:   originalContent,
		DeliberationStart: g.clock.MonotonicNow(),
	}
	g.states[decisionID] = s
	return s
}

func (g *Gate) get(decisionID string) (State, error) {
	s, ok := g.states[decisionID]
	if !ok {
		return State{}, ErrUnknownDecision
	}
	return s, nil
}

// SubmitEdit registers editedContent as the forced edit for decisionID. The
// edit must differ from the original beyond whitespace normalization and
// single-character substitution — see isTrivialEdit.
func (g *Gate) SubmitEdit(decisionID, editedContent string) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.get(decisionID)
	if err != nil {
		return State{}, err
	}
	if isTrivialEdit(s.OriginalContent, editedContent) {
		return s, ErrForcedEditViolation
	}
	s.EditSubmitted = true
	s.items.edit = true
	g.states[decisionID] = s
	return s, nil
}

// SubmitChallengeAnswer records a non-trivial challenge answer.
func (g *Gate) SubmitChallengeAnswer(decisionID, answer string) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.get(decisionID)
	if err != nil {
		return State{}, err
	}
	trimmed := strings.TrimSpace(answer)
	if len(trimmed) < g.cfg.MinChallengeAnswerChars {
		return s, ErrChallengeNotAnswered
	}
	s.ChallengeAnswered = true
	s.items.challenge = true
	g.states[decisionID] = s
	return s, nil
}

// CompleteDeliberation ends the deliberation timer, enforces the minimum
// elapsed time, computes the (non-blocking) rubber-stamp advisory, and
// starts the cooldown timer.
func (g *Gate) CompleteDeliberation(decisionID, reviewerID string) (State, *RubberStampAdvisory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.get(decisionID)
	if err != nil {
		return State{}, nil, err
	}
	now := g.clock.MonotonicNow()
	elapsed := now.Sub(s.DeliberationStart)
	if elapsed < g.cfg.MinDeliberation {
		return s, nil, ErrDeliberationTooShort
	}
	s.DeliberationEnd = now
	s.items.deliberation = true
	s.CooldownStart = now

	advisory := g.recordRubberStamp(reviewerID, decisionID, elapsed)
	g.states[decisionID] = s
	return s, advisory, nil
}

// recordRubberStamp tracks elapsed deliberation durations per reviewer and
// returns an advisory if the reviewer's recent decisions are consistently
// under the warn threshold. This never blocks completion — callers may log
// or surface the advisory but must not gate on it, per spec.md §4.5.
func (g *Gate) recordRubberStamp(reviewerID, decisionID string, elapsed time.Duration) *RubberStampAdvisory {
	if reviewerID == "" {
		return nil
	}
	times := append(g.reviewerTimes[reviewerID], elapsed)
	if len(times) > g.cfg.RubberStampMinDecisions {
		times = times[len(times)-g.cfg.RubberStampMinDecisions:]
	}
	g.reviewerTimes[reviewerID] = times

	if len(times) < g.cfg.RubberStampMinDecisions {
		return nil
	}
	for _, t := range times {
		if t >= g.cfg.RubberStampWarnThreshold {
			return nil
		}
	}
	return &RubberStampAdvisory{ReviewerID: reviewerID, DecisionID: decisionID, Elapsed: elapsed}
}

// CompleteFriction ends the cooldown timer, enforces its minimum elapsed
// time, and requires all four audit items (deliberation, edit, challenge,
// cooldown) to have been recorded before marking the gate complete.
func (g *Gate) CompleteFriction(decisionID string) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.get(decisionID)
	if err != nil {
		return State{}, err
	}
	if s.CooldownStart.IsZero() {
		return s, fmt.Errorf("%w: cooldown not started", ErrStageOutOfOrder)
	}
	now := g.clock.MonotonicNow()
	elapsed := now.Sub(s.CooldownStart)
	if elapsed < g.cfg.MinCooldown {
		return s, ErrCooldownTooShort
	}
	s.CooldownEnd = now
	s.items.cooldown = true

	if !s.items.complete() {
		return s, ErrAuditIncomplete
	}
	s.Complete = true
	g.states[decisionID] = s
	return s, nil
}

// isTrivialEdit reports whether edited differs from original by at most one
// substituted character once whitespace is collapsed and case/punctuation
// differences are ignored — the forced-edit stage rejects no-op edits,
// cosmetic ones and single-character substitutions.
func isTrivialEdit(original, edited string) bool {
	a, b := []rune(normalize(original)), []rune(normalize(edited))
	if len(a) != len(b) {
		return false
	}
	diff := 0
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff <= 1
}

func normalize(s string) string {
	var b strings.Builder
	prevSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
			continue
		}
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(b.String())
}
