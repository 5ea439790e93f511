package auditledger

// EventType enumerates the fixed set of events the ledger records. This
// enumeration is closed: Append rejects any event type not listed here.
type EventType string

const (
	EventTokenIssued           EventType = "TOKEN_ISSUED"
	EventTokenConsumed         EventType = "TOKEN_CONSUMED"
	EventTokenReplayBlocked    EventType = "TOKEN_REPLAY_BLOCKED"
	EventWorkflowTransition    EventType = "WORKFLOW_TRANSITION"
	EventFrictionStageDone     EventType = "FRICTION_STAGE_COMPLETE"
	EventFrictionViolation     EventType = "FRICTION_VIOLATION"
	EventRubberStampAdvisory   EventType = "RUBBER_STAMP_ADVISORY"
	EventScopeActivated        EventType = "SCOPE_ACTIVATED"
	EventScopeValidated        EventType = "SCOPE_VALIDATED"
	EventScopeViolation        EventType = "SCOPE_VIOLATION"
	EventGuardViolation        EventType = "GUARD_VIOLATION"
	EventAdapterInvoked        EventType = "ADAPTER_INVOKED"
	EventDeclineRecorded       EventType = "DECLINE_RECORDED"
	EventSystemHalted          EventType = "SYSTEM_HALTED"
	EventEvidenceBundleRecorded EventType = "EVIDENCE_BUNDLE_RECORDED"
)

var validEvents = map[EventType]bool{
	EventTokenIssued:            true,
	EventTokenConsumed:          true,
	EventTokenReplayBlocked:     true,
	EventWorkflowTransition:     true,
	EventFrictionStageDone:      true,
	EventFrictionViolation:      true,
	EventRubberStampAdvisory:    true,
	EventScopeActivated:         true,
	EventScopeValidated:         true,
	EventScopeViolation:         true,
	EventGuardViolation:         true,
	EventAdapterInvoked:         true,
	EventDeclineRecorded:        true,
	EventSystemHalted:           true,
	EventEvidenceBundleRecorded: true,
}

// CorrelationKey groups related ledger entries for Query, e.g. a
// decision_id, session_id, or workflow_id.
type CorrelationKey string

// Event is one entry appended to the ledger.
type Event struct {
	EntryID          string
	Type             EventType
	Correlation      CorrelationKey
	PayloadCanonical []byte
}
