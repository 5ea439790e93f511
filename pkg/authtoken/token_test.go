package authtoken

import (
	"sync"
	"testing"
	"time"

	"github.com/certen/bounty-governance/pkg/adapter"
	"github.com/certen/bounty-governance/pkg/hashchain"
)

func newTestIssuer(t *testing.T) (*Issuer, *adapter.FakeClock) {
	t.Helper()
	clock := adapter.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewIssuer(clock, adapter.CryptoRandom{}, 10*time.Minute), clock
}

func TestConsume_Succeeds(t *testing.T) {
	iss, _ := newTestIssuer(t)
	hash := hashchain.HashPayload([]byte("draft-v1"))
	tok, err := iss.Issue(hash)
	if err != nil {
		t.Fatal(err)
	}
	if err := iss.Consume(tok, hash); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
}

func TestConsume_RejectsReplay(t *testing.T) {
	iss, _ := newTestIssuer(t)
	hash := hashchain.HashPayload([]byte("draft-v1"))
	tok, _ := iss.Issue(hash)

	if err := iss.Consume(tok, hash); err != nil {
		t.Fatal(err)
	}
	if err := iss.Consume(tok, hash); err != ErrTokenAlreadyUsed {
		t.Fatalf("second Consume() error = %v, want ErrTokenAlreadyUsed", err)
	}
}

func TestConsume_RejectsContentMismatch(t *testing.T) {
	iss, _ := newTestIssuer(t)
	original := hashchain.HashPayload([]byte("draft-v1"))
	edited := hashchain.HashPayload([]byte("draft-v2"))
	tok, _ := iss.Issue(original)

	if err := iss.Consume(tok, edited); err != ErrTokenContentMismatch {
		t.Fatalf("Consume() error = %v, want ErrTokenContentMismatch", err)
	}
}

func TestConsume_RejectsExpired(t *testing.T) {
	iss, clock := newTestIssuer(t)
	hash := hashchain.HashPayload([]byte("draft-v1"))
	tok, _ := iss.Issue(hash)

	clock.Advance(11 * time.Minute)

	if err := iss.Consume(tok, hash); err != ErrTokenExpired {
		t.Fatalf("Consume() error = %v, want ErrTokenExpired", err)
	}
}

func TestConsume_ConcurrentReplaySeesExactlyOneWinner(t *testing.T) {
	iss, _ := newTestIssuer(t)
	hash := hashchain.HashPayload([]byte("draft-v1"))
	tok, _ := iss.Issue(hash)

	const n = 50
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = iss.Consume(tok, hash)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	if successes != 1 {
		t.Errorf("concurrent Consume() successes = %d, want exactly 1", successes)
	}
}

func TestIssueBatch_BindsSingleTokenToSortedConcatenatedHash(t *testing.T) {
	iss, _ := newTestIssuer(t)
	h1 := hashchain.HashPayload([]byte("finding-a"))
	h2 := hashchain.HashPayload([]byte("finding-b"))
	h3 := hashchain.HashPayload([]byte("finding-c"))

	tok, err := iss.IssueBatch([]hashchain.Hash{h3, h1, h2})
	if err != nil {
		t.Fatal(err)
	}
	if tok.ScopeTag != BatchScope(3) {
		t.Fatalf("ScopeTag = %q, want %q", tok.ScopeTag, BatchScope(3))
	}
	if tok.BatchContentHash != tok.ContentHash {
		t.Fatalf("BatchContentHash = %v, want equal to ContentHash", tok.BatchContentHash)
	}

	reordered, err := iss.IssueBatch([]hashchain.Hash{h2, h3, h1})
	if err != nil {
		t.Fatal(err)
	}
	if reordered.ContentHash != tok.ContentHash {
		t.Fatalf("batch content hash depends on member order, want order-independent")
	}

	if err := iss.Consume(tok, tok.BatchContentHash); err != nil {
		t.Fatalf("Consume() for batch token error = %v", err)
	}
}

func TestIssueBatch_DeduplicatesMemberHashes(t *testing.T) {
	iss, _ := newTestIssuer(t)
	h1 := hashchain.HashPayload([]byte("finding-a"))
	h2 := hashchain.HashPayload([]byte("finding-b"))

	withDup, err := iss.IssueBatch([]hashchain.Hash{h1, h2, h1})
	if err != nil {
		t.Fatal(err)
	}
	withoutDup, err := iss.IssueBatch([]hashchain.Hash{h1, h2})
	if err != nil {
		t.Fatal(err)
	}
	if withDup.ContentHash != withoutDup.ContentHash {
		t.Fatalf("duplicate member hashes were not deduplicated before hashing")
	}
	if withDup.ScopeTag != BatchScope(2) {
		t.Fatalf("ScopeTag = %q, want %q after dedup", withDup.ScopeTag, BatchScope(2))
	}
}

func TestIssueBatch_RejectsEmptyMemberSet(t *testing.T) {
	iss, _ := newTestIssuer(t)
	if _, err := iss.IssueBatch(nil); err != ErrEmptyBatch {
		t.Fatalf("IssueBatch(nil) error = %v, want ErrEmptyBatch", err)
	}
}
