// Package hashchain implements the tamper-evident hash link used by every
// audit trail in this module: each record's hash is a function of its
// predecessor's hash plus its own canonical payload, so truncating or
// rewriting history is detectable by recomputing the chain.
package hashchain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the digest length in bytes (SHA-256).
const Size = sha256.Size

// Hash is a chain link digest.
type Hash [Size]byte

// Genesis returns the all-zero hash that seeds every chain.
func Genesis() Hash { return Hash{} }

// String renders the hash as lowercase hex.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Equal does a constant-time comparison so hash checks never leak timing
// information about where two digests first diverge.
func (h Hash) Equal(o Hash) bool {
	return subtle.ConstantTimeCompare(h[:], o[:]) == 1
}

// ParseHash decodes a hex string produced by String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hashchain: invalid hex: %w", err)
	}
	if len(b) != Size {
		return h, fmt.Errorf("hashchain: expected %d bytes, got %d", Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Record is one link in the chain: a payload bound to its predecessor.
type Record struct {
	Index        uint64
	EntryID      string
	Timestamp    string // RFC3339 UTC, matches pkg/content canonicalization
	EventType    string
	PreviousHash Hash
	PayloadHash  Hash
	Hash         Hash
}

// ErrEmptyEntryID is returned by Extend when entryID is empty.
var ErrEmptyEntryID = errors.New("hashchain: entry id must not be empty")

// Extend computes the next record's hash from the previous link plus the
// new entry's identity, timestamp, event type and payload hash. The link
// formula mirrors original_source's
// entry_id:timestamp:previous_hash:payload_hash:event_type construction.
func Extend(index uint64, entryID, timestamp, eventType string, previous Hash, payloadHash Hash) (Record, error) {
	if entryID == "" {
		return Record{}, ErrEmptyEntryID
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s:%s:%s:%s", entryID, timestamp, previous.String(), payloadHash.String(), eventType)
	var sum Hash
	copy(sum[:], h.Sum(nil))
	return Record{
		Index:        index,
		EntryID:      entryID,
		Timestamp:    timestamp,
		EventType:    eventType,
		PreviousHash: previous,
		PayloadHash:  payloadHash,
		Hash:         sum,
	}, nil
}

// HashPayload hashes an arbitrary canonical payload byte slice, the value
// callers pass as Extend's payloadHash argument.
func HashPayload(canonical []byte) Hash {
	return Hash(sha256.Sum256(canonical))
}

// IntegrityError reports the first point at which a chain fails to verify.
type IntegrityError struct {
	FirstBadIndex uint64
	Expected      Hash
	Actual        Hash
	Reason        string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("hashchain: integrity violation at index %d (%s): expected %s, got %s",
		e.FirstBadIndex, e.Reason, e.Expected, e.Actual)
}

// Verify recomputes every link in records and confirms each one's
// previous_hash matches its predecessor's hash and its own hash matches the
// recomputed value. The first entry must chain from Genesis(). Returns nil
// only if every link verifies. Only valid for a contiguous, genesis-rooted
// chain — use VerifySelfConsistent for an arbitrary filtered slice.
func Verify(records []Record) error {
	prev := Genesis()
	for i, r := range records {
		if !r.PreviousHash.Equal(prev) {
			return &IntegrityError{FirstBadIndex: r.Index, Expected: prev, Actual: r.PreviousHash, Reason: "previous_hash mismatch"}
		}
		recomputed, err := Extend(r.Index, r.EntryID, r.Timestamp, r.EventType, r.PreviousHash, r.PayloadHash)
		if err != nil {
			return &IntegrityError{FirstBadIndex: r.Index, Reason: fmt.Sprintf("malformed record: %v", err)}
		}
		if !recomputed.Hash.Equal(r.Hash) {
			return &IntegrityError{FirstBadIndex: r.Index, Expected: recomputed.Hash, Actual: r.Hash, Reason: "hash mismatch"}
		}
		prev = r.Hash
		_ = i
	}
	return nil
}

// VerifySelfConsistent recomputes each record's own hash from its own
// fields without requiring previous_hash to match an adjacent record in the
// slice. Use this for an arbitrary filtered view — e.g. one correlation
// key's records pulled out of a chain interleaved with other workflows —
// where Verify's contiguous, genesis-rooted invariant does not hold even
// though the full chain the records came from is perfectly intact.
func VerifySelfConsistent(records []Record) error {
	for _, r := range records {
		recomputed, err := Extend(r.Index, r.EntryID, r.Timestamp, r.EventType, r.PreviousHash, r.PayloadHash)
		if err != nil {
			return &IntegrityError{FirstBadIndex: r.Index, Reason: fmt.Sprintf("malformed record: %v", err)}
		}
		if !recomputed.Hash.Equal(r.Hash) {
			return &IntegrityError{FirstBadIndex: r.Index, Expected: recomputed.Hash, Actual: r.Hash, Reason: "hash mismatch"}
		}
	}
	return nil
}
