package auditledger

import (
	"os"
	"testing"
	"time"

	"github.com/certen/bounty-governance/pkg/adapter"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	led, err := Open(dir, clock)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return led
}

func TestAppend_ChainsAndQueries(t *testing.T) {
	led := newTestLedger(t)

	_, err := led.Append(Event{EntryID: "e1", Type: EventTokenIssued, Correlation: "session-1", PayloadCanonical: []byte("a")})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	_, err = led.Append(Event{EntryID: "e2", Type: EventTokenConsumed, Correlation: "session-1", PayloadCanonical: []byte("b")})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	_, err = led.Append(Event{EntryID: "e3", Type: EventTokenIssued, Correlation: "session-2", PayloadCanonical: []byte("c")})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := led.Query("session-1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Query(session-1) returned %d records, want 2", len(records))
	}
	if err := led.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity() = %v, want nil", err)
	}
}

func TestAppend_RejectsUnknownEventType(t *testing.T) {
	led := newTestLedger(t)
	_, err := led.Append(Event{EntryID: "e1", Type: EventType("NOT_REAL"), Correlation: "s", PayloadCanonical: []byte("a")})
	if err != ErrUnknownEventType {
		t.Fatalf("Append() error = %v, want ErrUnknownEventType", err)
	}
}

func TestOpen_ReloadsAndReverifies(t *testing.T) {
	dir := t.TempDir()
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	led, err := Open(dir, clock)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := led.Append(Event{EntryID: "e1", Type: EventTokenIssued, Correlation: "s1", PayloadCanonical: []byte("a")}); err != nil {
		t.Fatal(err)
	}
	if _, err := led.Append(Event{EntryID: "e2", Type: EventTokenConsumed, Correlation: "s1", PayloadCanonical: []byte("b")}); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, clock)
	if err != nil {
		t.Fatalf("reopen: Open() error = %v", err)
	}
	records, _ := reopened.Query("s1")
	if len(records) != 2 {
		t.Fatalf("reopened ledger has %d records for s1, want 2", len(records))
	}
}

func TestOpen_HaltsOnTamperedFile(t *testing.T) {
	dir := t.TempDir()
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	led, err := Open(dir, clock)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := led.Append(Event{EntryID: "e1", Type: EventTokenIssued, Correlation: "s1", PayloadCanonical: []byte("a")}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(led.dataPath)
	if err != nil {
		t.Fatal(err)
	}
	tampered := append(data, []byte(`{"index":1,"entry_id":"fake","timestamp":"x","event_type":"TOKEN_ISSUED","correlation":"s1","previous_hash":"00","payload_hash":"00","hash":"00"}`+"\n")...)
	if err := os.WriteFile(led.dataPath, tampered, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(dir, clock)
	if err == nil {
		t.Fatal("Open() on tampered ledger = nil error, want integrity failure")
	}
}

func TestAppend_BlockedAfterHalt(t *testing.T) {
	led := newTestLedger(t)
	led.mu.Lock()
	led.halted = true
	led.mu.Unlock()

	_, err := led.Append(Event{EntryID: "e1", Type: EventTokenIssued, Correlation: "s", PayloadCanonical: []byte("a")})
	if err == nil {
		t.Fatal("Append() after halt = nil error, want ErrSystemHalted")
	}
}

// TestExport_SucceedsWithInterleavedCorrelations is the normal case per
// spec.md §5: multiple workflows drive the ledger in parallel, so a given
// correlation key's records are rarely contiguous in the full chain. Export
// must still succeed even though the filtered slice's first record does not
// chain from Genesis().
func TestExport_SucceedsWithInterleavedCorrelations(t *testing.T) {
	led := newTestLedger(t)

	if _, err := led.Append(Event{EntryID: "a1", Type: EventTokenIssued, Correlation: "workflow-a", PayloadCanonical: []byte("a1")}); err != nil {
		t.Fatal(err)
	}
	if _, err := led.Append(Event{EntryID: "b1", Type: EventTokenIssued, Correlation: "workflow-b", PayloadCanonical: []byte("b1")}); err != nil {
		t.Fatal(err)
	}
	if _, err := led.Append(Event{EntryID: "a2", Type: EventTokenConsumed, Correlation: "workflow-a", PayloadCanonical: []byte("a2")}); err != nil {
		t.Fatal(err)
	}
	if _, err := led.Append(Event{EntryID: "b2", Type: EventTokenConsumed, Correlation: "workflow-b", PayloadCanonical: []byte("b2")}); err != nil {
		t.Fatal(err)
	}

	bundle, err := led.Export("workflow-a")
	if err != nil {
		t.Fatalf("Export() error = %v, want nil for an interleaved but intact chain", err)
	}
	if len(bundle.Records) != 2 {
		t.Fatalf("Export() returned %d records, want 2", len(bundle.Records))
	}
	if bundle.Records[0].EntryID != "a1" || bundle.Records[1].EntryID != "a2" {
		t.Fatalf("Export() records = %+v, want a1 then a2 in append order", bundle.Records)
	}
	if bundle.BundleID == "" {
		t.Fatal("Export() BundleID is empty")
	}
	if bundle.BundleHash == (bundle.Records[0].Hash) {
		t.Fatal("BundleHash should not equal a member record's own chain hash")
	}

	// VerifyIntegrity against the full chain still succeeds: the chain
	// itself was never broken, only the per-correlation view is non-contiguous.
	if err := led.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity() = %v, want nil", err)
	}
}

func TestExport_DetectsTamperedMember(t *testing.T) {
	led := newTestLedger(t)
	if _, err := led.Append(Event{EntryID: "e1", Type: EventTokenIssued, Correlation: "s1", PayloadCanonical: []byte("a")}); err != nil {
		t.Fatal(err)
	}

	led.mu.Lock()
	led.byCorrelation["s1"][0].EntryID = "tampered"
	led.mu.Unlock()

	if _, err := led.Export("s1"); err == nil {
		t.Fatal("Export() on tampered member = nil error, want integrity failure")
	}
}

func TestExport_BundleHashChangesWithDifferentBundleID(t *testing.T) {
	led := newTestLedger(t)
	if _, err := led.Append(Event{EntryID: "e1", Type: EventTokenIssued, Correlation: "s1", PayloadCanonical: []byte("a")}); err != nil {
		t.Fatal(err)
	}

	first, err := led.Export("s1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := led.Export("s1")
	if err != nil {
		t.Fatal(err)
	}
	if first.BundleID == second.BundleID {
		t.Fatal("two independent Export() calls minted the same BundleID")
	}
	if first.BundleHash == second.BundleHash {
		t.Fatal("BundleHash should depend on BundleID and so differ across independent exports")
	}
}
