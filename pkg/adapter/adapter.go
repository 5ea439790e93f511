// Package adapter defines the external-collaborator contracts the
// governance core depends on but never implements for real: platform
// submission APIs, a browser execution engine, time, and randomness. Each
// is a single-purpose interface in the style of pkg/ledger.KV in the
// teacher repo, never a class hierarchy.
package adapter

import (
	"context"
	"time"
)

// Clock is the core's only source of time. Production code never calls
// time.Now() directly; every timer and timestamp goes through Clock so
// tests can control elapsed time deterministically.
type Clock interface {
	// MonotonicNow returns a monotonic instant suitable for measuring
	// elapsed durations (deliberation, cooldown). Never used for display.
	MonotonicNow() time.Time
	// WallNow returns the current wall-clock time, used only for
	// timestamps persisted into records.
	WallNow() time.Time
}

// RandomSource is the core's only source of entropy, used for token
// material and any identifier that must not be guessable.
type RandomSource interface {
	// Bytes returns n cryptographically random bytes.
	Bytes(n int) ([]byte, error)
}

// SubmissionRequest is the payload handed to a PlatformAdapter.
type SubmissionRequest struct {
	Platform string
	DraftID  string
	Content  []byte
}

// SubmissionReceipt confirms a platform accepted a submission.
type SubmissionReceipt struct {
	SubmissionID string
	Platform     string
	AcceptedAt   time.Time
}

// PlatformAdapter submits an already-authorized report to an external bug
// bounty platform. The core invokes this at most once per authorized
// request (see pkg/guard's single-request invariant) and never retries.
type PlatformAdapter interface {
	Submit(ctx context.Context, req SubmissionRequest) (SubmissionReceipt, error)
}

// BrowserAction is one scoped action sent to a BrowserEngine.
type BrowserAction struct {
	SessionID string
	Kind      string
	Target    string
	Payload   []byte
}

// BrowserEngine drives a scoped, human-authorized browser session. Real
// implementations wrap a headless browser; pkg/adapter/browserfake provides
// an in-memory double for tests.
type BrowserEngine interface {
	StartSession(ctx context.Context, sessionID string) error
	ExecuteAction(ctx context.Context, action BrowserAction) ([]byte, error)
	CaptureScreenshot(ctx context.Context, sessionID string) ([]byte, error)
	StopSession(ctx context.Context, sessionID string) error
}

// SystemClock is the default Clock, backed by the runtime's monotonic and
// wall clocks.
type SystemClock struct{}

func (SystemClock) MonotonicNow() time.Time { return time.Now() }
func (SystemClock) WallNow() time.Time      { return time.Now().UTC() }

var _ Clock = SystemClock{}
