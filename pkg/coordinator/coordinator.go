// Package coordinator drives the reference authorized-submission flow:
// request review, pass the friction gate, obtain human confirmation,
// consume a one-time token, reserve against duplicate submission,
// re-verify content hasn't drifted since authorization, invoke the
// platform adapter exactly once, and record every step to the audit
// ledger. It performs no retries anywhere — see DESIGN.md Open Question 3.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/certen/bounty-governance/pkg/adapter"
	"github.com/certen/bounty-governance/pkg/auditledger"
	"github.com/certen/bounty-governance/pkg/authtoken"
	"github.com/certen/bounty-governance/pkg/content"
	"github.com/certen/bounty-governance/pkg/errs"
	"github.com/certen/bounty-governance/pkg/friction"
	"github.com/certen/bounty-governance/pkg/guard"
	"github.com/certen/bounty-governance/pkg/workflow"
)

// Metrics is the subset of pkg/metrics.Registry the coordinator touches,
// kept as a local interface to avoid an import cycle.
type Metrics interface {
	IncTokenIssued(contentKind string)
	IncTokenConsumed(contentKind string)
	IncTokenReplayBlocked()
	IncAdapterInvoke(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) IncTokenIssued(string)   {}
func (noopMetrics) IncTokenConsumed(string) {}
func (noopMetrics) IncTokenReplayBlocked()  {}
func (noopMetrics) IncAdapterInvoke(string) {}

// Coordinator wires together every governance component for one logical
// decision workflow. A single Coordinator instance may drive many
// concurrent decisions; per-decision state lives in the components it
// wraps (pkg/friction.Gate, pkg/guard.DuplicateSubmissionGuard), not here.
type Coordinator struct {
	Ledger   *auditledger.Ledger
	Tokens   *authtoken.Issuer
	Friction *friction.Gate
	DupGuard *guard.DuplicateSubmissionGuard
	Clock    adapter.Clock
	Metrics  Metrics
	Logger   *log.Logger
}

// New constructs a Coordinator from its already-built components.
func New(ledger *auditledger.Ledger, tokens *authtoken.Issuer, fg *friction.Gate, dup *guard.DuplicateSubmissionGuard, clock adapter.Clock, m Metrics) *Coordinator {
	if m == nil {
		m = noopMetrics{}
	}
	return &Coordinator{
		Ledger:   ledger,
		Tokens:   tokens,
		Friction: fg,
		DupGuard: dup,
		Clock:    clock,
		Metrics:  m,
		Logger:   log.New(log.Writer(), "[Coordinator] ", log.LstdFlags),
	}
}

// RequestReview begins governance for decisionID: starts the friction gate
// against the draft's current body and records the request in the ledger.
func (c *Coordinator) RequestReview(decisionID string, draft content.DraftReport) error {
	c.Friction.Start(decisionID, draft.Body)
	canonical, err := draft.Canonical()
	if err != nil {
		return errs.RecoverableErr(err, "failed to canonicalize draft", nil)
	}
	_, err = c.Ledger.Append(auditledger.Event{
		EntryID:          decisionID + ":request",
		Type:             auditledger.EventWorkflowTransition,
		Correlation:      auditledger.CorrelationKey(decisionID),
		PayloadCanonical: canonical,
	})
	return ledgerErr(err)
}

// Authorize completes the friction gate's deliberation/cooldown stages
// (the caller must already have driven SubmitEdit/SubmitChallengeAnswer),
// applies the workflow transition gated on a non-empty human confirmation
// token, and mints a one-time authorization token bound to draft's current
// content hash.
func (c *Coordinator) Authorize(decisionID, reviewerID, humanConfirmation string, draft content.DraftReport) (authtoken.Token, error) {
	if _, _, err := c.Friction.CompleteDeliberation(decisionID, reviewerID); err != nil {
		return authtoken.Token{}, errs.BlockingErr(err, "deliberation stage not satisfied", nil)
	}
	if _, err := c.Friction.CompleteFriction(decisionID); err != nil {
		return authtoken.Token{}, errs.BlockingErr(err, "friction gate not complete", nil)
	}

	s := workflow.NewState(workflow.AwaitingHuman)
	if _, err := workflow.DecisionGraph.Transition(s, workflow.HumanConfirmed, humanConfirmation); err != nil {
		if errors.Is(err, workflow.ErrAutomationAttempt) {
			return authtoken.Token{}, errs.BlockingErr(err, "human confirmation required", nil)
		}
		return authtoken.Token{}, errs.HardStopErr(errs.ScopeWorkflow, err, "invalid workflow transition", nil)
	}

	hash, err := content.Hash(draft)
	if err != nil {
		return authtoken.Token{}, errs.RecoverableErr(err, "failed to hash draft content", nil)
	}
	tok, err := c.Tokens.Issue(hash)
	if err != nil {
		return authtoken.Token{}, errs.RecoverableErr(err, "failed to issue token", nil)
	}
	c.Metrics.IncTokenIssued(string(draft.ContentKind()))

	canonical, _ := draft.Canonical()
	if _, err := c.Ledger.Append(auditledger.Event{
		EntryID:          decisionID + ":authorize",
		Type:             auditledger.EventTokenIssued,
		Correlation:      auditledger.CorrelationKey(decisionID),
		PayloadCanonical: canonical,
	}); err != nil {
		return authtoken.Token{}, ledgerErr(err)
	}
	return tok, nil
}

// Execute runs the authorized submission exactly once. The ordering is
// fixed and non-negotiable: consume the token before any observable side
// effect, reserve against duplicate submission, re-verify the content
// hash against what the token actually authorized, then invoke the
// adapter through a fresh SingleRequestGuard. A failure at the adapter
// step is Recoverable and is never retried internally — see DESIGN.md.
func (c *Coordinator) Execute(ctx context.Context, decisionID, platform string, tok authtoken.Token, draft content.DraftReport, plat adapter.PlatformAdapter) (adapter.SubmissionReceipt, error) {
	hash, err := content.Hash(draft)
	if err != nil {
		return adapter.SubmissionReceipt{}, errs.RecoverableErr(err, "failed to hash draft content", nil)
	}

	if err := c.Tokens.Consume(tok, hash); err != nil {
		if errors.Is(err, authtoken.ErrTokenAlreadyUsed) {
			c.Metrics.IncTokenReplayBlocked()
		}
		_, _ = c.Ledger.Append(auditledger.Event{
			EntryID:          decisionID + ":replay_blocked",
			Type:             auditledger.EventTokenReplayBlocked,
			Correlation:      auditledger.CorrelationKey(decisionID),
			PayloadCanonical: []byte(err.Error()),
		})
		return adapter.SubmissionReceipt{}, errs.BlockingErr(err, "token consumption rejected", nil)
	}
	c.Metrics.IncTokenConsumed(string(draft.ContentKind()))

	if err := c.DupGuard.Reserve(decisionID, platform); err != nil {
		return adapter.SubmissionReceipt{}, errs.BlockingErr(err, "duplicate submission blocked", nil)
	}
	// Released on every path below (explicit success or error): a
	// recoverable adapter failure must leave the caller free to start a
	// fresh, independently-authorized retry to the same platform.
	defer c.DupGuard.Release(decisionID, platform)

	// content-hash re-verification: recompute the draft's hash once more
	// immediately before the side effect and compare it with the hash the
	// consumed token was checked against.
	reverifyHash, err := content.Hash(draft)
	if err != nil || !reverifyHash.Equal(hash) {
		return adapter.SubmissionReceipt{}, errs.HardStopErr(errs.ScopeWorkflow, errors.New("content changed between authorization and execution"), "content re-verification failed", nil)
	}

	single := guard.NewSingleRequestGuard()
	var receipt adapter.SubmissionReceipt
	invokeErr := single.Invoke(func() error {
		canonical, _ := draft.Canonical()
		req := adapter.SubmissionRequest{Platform: platform, DraftID: draft.DraftID, Content: canonical}
		r, err := plat.Submit(ctx, req)
		receipt = r
		return err
	})
	if invokeErr != nil {
		c.Metrics.IncAdapterInvoke("error")
		_, _ = c.Ledger.Append(auditledger.Event{
			EntryID:          decisionID + ":adapter_error",
			Type:             auditledger.EventAdapterInvoked,
			Correlation:      auditledger.CorrelationKey(decisionID),
			PayloadCanonical: []byte(invokeErr.Error()),
		})
		return adapter.SubmissionReceipt{}, errs.RecoverableErr(invokeErr, "adapter submission failed, no internal retry", nil)
	}
	c.Metrics.IncAdapterInvoke("success")

	canonical, _ := draft.Canonical()
	if _, err := c.Ledger.Append(auditledger.Event{
		EntryID:          decisionID + ":submitted",
		Type:             auditledger.EventAdapterInvoked,
		Correlation:      auditledger.CorrelationKey(decisionID),
		PayloadCanonical: canonical,
	}); err != nil {
		return receipt, ledgerErr(err)
	}
	return receipt, nil
}

// Decline records a human's decision NOT to authorize. The reason is
// stored verbatim (hashed into the ledger payload, never parsed or
// scored).
func (c *Coordinator) Decline(decisionID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("coordinator: decline reason must not be empty")
	}
	_, err := c.Ledger.Append(auditledger.Event{
		EntryID:          decisionID + ":decline",
		Type:             auditledger.EventDeclineRecorded,
		Correlation:      auditledger.CorrelationKey(decisionID),
		PayloadCanonical: []byte(reason),
	})
	return ledgerErr(err)
}

// AdvisoryDuplicateHook is the non-gating counterpart to DupGuard: it
// never blocks, only records an observation for a human to review later.
// This is the explicit advisory-vs-blocking split from DESIGN.md Open
// Question 1.
type AdvisoryDuplicateHook struct {
	seen map[string]time.Time
}

// NewAdvisoryDuplicateHook constructs an empty hook.
func NewAdvisoryDuplicateHook() *AdvisoryDuplicateHook {
	return &AdvisoryDuplicateHook{seen: make(map[string]time.Time)}
}

// Observe records that key was seen at now and reports whether it was
// already seen before — purely informational, callers must not gate
// control flow on the return value.
func (h *AdvisoryDuplicateHook) Observe(key string, now time.Time) bool {
	_, seenBefore := h.seen[key]
	h.seen[key] = now
	return seenBefore
}

// NewDecisionID mints a fresh identifier for a decision entering governance.
// Callers that already have a stable external identifier (a platform's own
// finding ID) should use that instead; this exists for decisions that
// originate inside the system with no natural identifier of their own.
func NewDecisionID() string { return uuid.NewString() }

func ledgerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, auditledger.ErrSystemHalted) {
		return err
	}
	return errs.RecoverableErr(err, "ledger append failed", nil)
}
