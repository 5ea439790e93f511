package friction

import (
	"testing"
	"time"

	"github.com/certen/bounty-governance/pkg/adapter"
)

func testConfig() Config {
	return Config{
		MinDeliberation:          30 * time.Second,
		MinCooldown:              15 * time.Second,
		MinChallengeAnswerChars:  5,
		RubberStampWarnThreshold: 10 * time.Second,
		RubberStampMinDecisions:  3,
	}
}

func TestHappyPath(t *testing.T) {
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(testConfig(), clock)

	g.Start("d1", "original finding text")

	if _, err := g.SubmitEdit("d1", "revised finding text after review"); err != nil {
		t.Fatalf("SubmitEdit() error = %v", err)
	}
	if _, err := g.SubmitChallengeAnswer("d1", "because the impact is confirmed"); err != nil {
		t.Fatalf("SubmitChallengeAnswer() error = %v", err)
	}

	clock.Advance(31 * time.Second)
	if _, _, err := g.CompleteDeliberation("d1", "reviewer-1"); err != nil {
		t.Fatalf("CompleteDeliberation() error = %v", err)
	}

	clock.Advance(16 * time.Second)
	final, err := g.CompleteFriction("d1")
	if err != nil {
		t.Fatalf("CompleteFriction() error = %v", err)
	}
	if !final.Complete {
		t.Error("final state not marked complete")
	}
}

func TestCompleteDeliberation_RejectsTooShort(t *testing.T) {
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(testConfig(), clock)
	g.Start("d1", "original")

	clock.Advance(5 * time.Second)
	if _, _, err := g.CompleteDeliberation("d1", "r1"); err != ErrDeliberationTooShort {
		t.Fatalf("error = %v, want ErrDeliberationTooShort", err)
	}
}

func TestSubmitEdit_RejectsTrivialEdit(t *testing.T) {
	clock := adapter.NewFakeClock(time.Now())
	g := New(testConfig(), clock)
	g.Start("d1", "Original Finding, Confirmed!")

	_, err := g.SubmitEdit("d1", "original finding confirmed")
	if err != ErrForcedEditViolation {
		t.Fatalf("error = %v, want ErrForcedEditViolation", err)
	}
}

func TestSubmitChallengeAnswer_RejectsShortAnswer(t *testing.T) {
	clock := adapter.NewFakeClock(time.Now())
	g := New(testConfig(), clock)
	g.Start("d1", "original")

	_, err := g.SubmitChallengeAnswer("d1", "ok")
	if err != ErrChallengeNotAnswered {
		t.Fatalf("error = %v, want ErrChallengeNotAnswered", err)
	}
}

func TestCompleteFriction_RejectsIncompleteAudit(t *testing.T) {
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(testConfig(), clock)
	g.Start("d1", "original")

	// Skip edit and challenge entirely.
	clock.Advance(31 * time.Second)
	if _, _, err := g.CompleteDeliberation("d1", "r1"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(16 * time.Second)

	if _, err := g.CompleteFriction("d1"); err != ErrAuditIncomplete {
		t.Fatalf("error = %v, want ErrAuditIncomplete", err)
	}
}

func TestRubberStampAdvisory_NeverBlocksCompletion(t *testing.T) {
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.MinDeliberation = 1 * time.Second
	cfg.RubberStampWarnThreshold = 10 * time.Second
	cfg.RubberStampMinDecisions = 2
	g := New(cfg, clock)

	for i, id := range []string{"d1", "d2"} {
		g.Start(id, "original")
		if _, err := g.SubmitEdit(id, "materially different edited text"); err != nil {
			t.Fatal(err)
		}
		if _, err := g.SubmitChallengeAnswer(id, "because reasons"); err != nil {
			t.Fatal(err)
		}
		clock.Advance(2 * time.Second) // under the 10s warn threshold
		_, advisory, err := g.CompleteDeliberation(id, "fast-reviewer")
		if err != nil {
			t.Fatalf("CompleteDeliberation() error = %v", err)
		}
		if i == 1 && advisory == nil {
			t.Error("expected rubber-stamp advisory on second fast decision")
		}
		clock.Advance(16 * time.Second)
		if _, err := g.CompleteFriction(id); err != nil {
			t.Fatalf("CompleteFriction() should succeed even with advisory: %v", err)
		}
	}
}
