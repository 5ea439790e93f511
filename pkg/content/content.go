// Package content defines the value types that flow through the
// governance kernel as authorized payloads, and the canonical
// serialization every hash in this module is computed over.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/certen/bounty-governance/pkg/hashchain"
	"github.com/certen/bounty-governance/pkg/merkle"
)

// Kind discriminates the concrete Content variant so a single hash-chained
// record stream can carry several payload shapes.
type Kind string

const (
	KindSafeAction     Kind = "safe_action"
	KindDraftReport    Kind = "draft_report"
	KindEvidenceBundle Kind = "evidence_bundle"
	KindAttestation    Kind = "attestation_body"
)

// Content is any value type that can be content-hash-bound to a token and
// recorded in the ledger.
type Content interface {
	ContentKind() Kind
	// Canonical returns a schema-stable byte encoding: sorted map keys,
	// RFC3339 UTC timestamps, no non-finite floats. content_hash() in
	// spec.md §3 is defined as sha256(Canonical()).
	Canonical() ([]byte, error)
}

// Hash computes the content_hash() for any Content value.
func Hash(c Content) (hashchain.Hash, error) {
	b, err := c.Canonical()
	if err != nil {
		return hashchain.Hash{}, err
	}
	return hashchain.HashPayload(b), nil
}

// SafeAction is a single pre-vetted, scope-checked action a browser engine
// may execute (e.g. navigate, click, extract) — never an arbitrary script.
type SafeAction struct {
	ActionID string `json:"action_id"`
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	Params   map[string]string `json:"params,omitempty"`
}

func (SafeAction) ContentKind() Kind { return KindSafeAction }
func (a SafeAction) Canonical() ([]byte, error) { return canonicalJSON(a) }

// DraftReport is a human-editable vulnerability report draft awaiting
// authorization before submission to a platform.
type DraftReport struct {
	DraftID     string    `json:"draft_id"`
	Platform    string    `json:"platform"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	LastEdited  time.Time `json:"last_edited"`
}

func (DraftReport) ContentKind() Kind { return KindDraftReport }
func (d DraftReport) Canonical() ([]byte, error) {
	d.LastEdited = d.LastEdited.UTC()
	return canonicalJSON(d)
}

// EvidenceFile is one file bundled as chain-of-custody evidence.
type EvidenceFile struct {
	Name string `json:"name"`
	Hash string `json:"hash"` // hex sha256 of the file's bytes
}

// EvidenceBundle groups evidence files under a single Merkle root so the
// bundle can be referenced by one hash while still supporting per-file
// inclusion proofs (see pkg/merkle).
type EvidenceBundle struct {
	BundleID   string         `json:"bundle_id"`
	Files      []EvidenceFile `json:"files"`
	MerkleRoot string         `json:"merkle_root"`
}

func (EvidenceBundle) ContentKind() Kind { return KindEvidenceBundle }
func (b EvidenceBundle) Canonical() ([]byte, error) { return canonicalJSON(b) }

// NewEvidenceBundle builds an EvidenceBundle from its member files, computing
// MerkleRoot from their hex file hashes via merkle.BuildEvidenceRoot rather
// than accepting a caller-supplied root. files must be non-empty and every
// EvidenceFile.Hash must be a hex-encoded sha256 digest.
func NewEvidenceBundle(bundleID string, files []EvidenceFile) (EvidenceBundle, error) {
	if len(files) == 0 {
		return EvidenceBundle{}, fmt.Errorf("content: evidence bundle requires at least one file")
	}
	hashes := make([]string, len(files))
	for i, f := range files {
		hashes[i] = f.Hash
	}
	root, _, err := merkle.BuildEvidenceRoot(hashes)
	if err != nil {
		return EvidenceBundle{}, fmt.Errorf("content: build evidence root: %w", err)
	}
	return EvidenceBundle{BundleID: bundleID, Files: files, MerkleRoot: root}, nil
}

// AttestationBody is a signed third-party assurance statement about a
// ledger slice, handed to an external auditor.
type AttestationBody struct {
	AttestationID string    `json:"attestation_id"`
	Subject       string    `json:"subject"` // correlation key attested to
	IssuedAt      time.Time `json:"issued_at"`
	Statement     string    `json:"statement"`
}

func (AttestationBody) ContentKind() Kind { return KindAttestation }
func (a AttestationBody) Canonical() ([]byte, error) {
	a.IssuedAt = a.IssuedAt.UTC()
	return canonicalJSON(a)
}

// canonicalJSON marshals v to JSON with object keys sorted. time.Time
// fields are written in RFC3339 with their own offset, so each Canonical
// method converts its timestamps to UTC before calling it. encoding/json itself rejects NaN/+-Inf floats, which is the
// non-finite-number rejection spec.md's canonical form requires.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("content: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("content: re-decode: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeSorted(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeSorted(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeSorted(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeSorted(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("content: marshal leaf: %w", err)
		}
		buf.Write(b)
	}
	return nil
}

