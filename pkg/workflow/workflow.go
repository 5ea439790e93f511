// Package workflow implements the two finite-state machines that govern a
// security decision from creation to outcome: the Decision graph and the
// Submission graph. Both are fixed adjacency maps evaluated at compile
// time, never constructed dynamically, so an invalid edge is a build-time
// fact rather than a runtime possibility.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Status is a node in either graph.
type Status string

const (
	Initialized     Status = "Initialized"
	AwaitingHuman   Status = "AwaitingHuman"
	HumanConfirmed  Status = "HumanConfirmed"
	Completed       Status = "Completed"
	Failed          Status = "Failed"

	Pending   Status = "Pending"
	Confirmed Status = "Confirmed"
	Submitted Status = "Submitted"
	Acknowledged Status = "Acknowledged"
	Rejected  Status = "Rejected"
)

// Graph is a fixed adjacency map of allowed transitions.
type Graph map[Status][]Status

// DecisionGraph governs a single security decision's lifecycle.
var DecisionGraph = Graph{
	Initialized:    {AwaitingHuman},
	AwaitingHuman:  {HumanConfirmed, Failed},
	HumanConfirmed: {Completed, Failed},
}

// SubmissionGraph governs a report's path to a bounty platform. Pending
// cannot reach Submitted directly: human confirmation can never be
// bypassed on the way to an external submission.
var SubmissionGraph = Graph{
	Pending:   {Confirmed},
	Confirmed: {Submitted, Failed},
	Submitted: {Acknowledged, Rejected},
}

// ErrInvalidTransition is returned when target is not reachable from
// current in the graph.
var ErrInvalidTransition = errors.New("workflow: invalid state transition")

// ErrAutomationAttempt is returned when a transition requiring human
// confirmation is attempted with an empty or whitespace-only token.
var ErrAutomationAttempt = errors.New("workflow: transition attempted without human confirmation")

// confirmationRequired lists the edges that must carry a non-empty
// human_confirmation_token, exactly spec.md §4.4's edge list.
var confirmationRequired = map[[2]Status]bool{
	{AwaitingHuman, HumanConfirmed}: true,
	{Pending, Confirmed}:            true,
}

// State is an immutable snapshot of a workflow's current status. Every
// transition returns a new State rather than mutating in place.
type State struct {
	Current Status
	History []Status
}

// NewState returns a fresh State at the graph's natural start node.
func NewState(start Status) State {
	return State{Current: start, History: []Status{start}}
}

// Transition validates and applies current -> target within g, returning a
// new State. humanConfirmation must be non-empty (after trimming
// whitespace) for any edge in confirmationRequired.
func (g Graph) Transition(s State, target Status, humanConfirmation string) (State, error) {
	allowed := g[s.Current]
	ok := false
	for _, a := range allowed {
		if a == target {
			ok = true
			break
		}
	}
	if !ok {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Current, target)
	}
	if confirmationRequired[[2]Status{s.Current, target}] && strings.TrimSpace(humanConfirmation) == "" {
		return s, fmt.Errorf("%w: %s -> %s", ErrAutomationAttempt, s.Current, target)
	}
	next := State{
		Current: target,
		History: append(append([]Status(nil), s.History...), target),
	}
	return next, nil
}
