// Package authtoken implements one-time, content-bound, expiring
// authorization tokens and the atomic consumption registry that prevents a
// token from authorizing more than one side effect.
package authtoken

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/certen/bounty-governance/pkg/adapter"
	"github.com/certen/bounty-governance/pkg/hashchain"
)

// Sentinel errors. Each is wrapped into an errs.GovernanceError by callers
// that need to classify it (pkg/coordinator).
var (
	ErrTokenAlreadyUsed     = errors.New("authtoken: token already consumed")
	ErrTokenExpired         = errors.New("authtoken: token expired")
	ErrTokenContentMismatch = errors.New("authtoken: token content hash does not match draft")
	ErrTokenNotFound        = errors.New("authtoken: token not found")
	ErrEmptyBatch           = errors.New("authtoken: batch requires at least one member content hash")
)

// ScopeTag discriminates what a token authorizes: a single content item, or
// a batch of distinct items bound together under one token.
type ScopeTag string

// ScopeSingle is the scope_tag of every token minted by Issue.
const ScopeSingle ScopeTag = "single"

// BatchScope returns the scope_tag for a batch token covering n distinct
// member content hashes, e.g. "batch:3".
func BatchScope(n int) ScopeTag { return ScopeTag(fmt.Sprintf("batch:%d", n)) }

// Token is a one-time authorization bound to a specific content hash and a
// validity window. It is immutable once issued.
type Token struct {
	ID          string
	ContentHash hashchain.Hash
	ScopeTag    ScopeTag
	// BatchContentHash is the sha256 over the sorted concatenation of
	// distinct member content hashes. Zero value unless ScopeTag is a
	// batch:N scope, in which case it equals ContentHash.
	BatchContentHash hashchain.Hash
	IssuedAt         time.Time
	ExpiresAt        time.Time
}

// IsExpired reports whether now is at or after ExpiresAt.
func (t Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// MatchesContent reports whether hash is the token's bound content hash.
func (t Token) MatchesContent(hash hashchain.Hash) bool {
	return t.ContentHash.Equal(hash)
}

// Issuer issues tokens bound to a content hash with a fixed validity
// window, and tracks one-time consumption.
type Issuer struct {
	mu       sync.Mutex
	clock    adapter.Clock
	rng      adapter.RandomSource
	validity time.Duration
	consumed map[string]bool
}

// NewIssuer constructs an Issuer. validity is the default token lifetime.
func NewIssuer(clock adapter.Clock, rng adapter.RandomSource, validity time.Duration) *Issuer {
	return &Issuer{
		clock:    clock,
		rng:      rng,
		validity: validity,
		consumed: make(map[string]bool),
	}
}

// Issue mints a new token bound to contentHash, valid from now for the
// issuer's configured validity window.
func (iss *Issuer) Issue(contentHash hashchain.Hash) (Token, error) {
	raw, err := iss.rng.Bytes(32)
	if err != nil {
		return Token{}, err
	}
	id := base64.RawURLEncoding.EncodeToString(raw)
	now := iss.clock.WallNow()
	return Token{
		ID:          id,
		ContentHash: contentHash,
		ScopeTag:    ScopeSingle,
		IssuedAt:    now,
		ExpiresAt:   now.Add(iss.validity),
	}, nil
}

// IssueBatch mints a single token scoped to n distinct member content
// hashes (duplicates are dropped before counting). The token's content_hash
// is bound to the whole set via BatchContentHash, not to any one member, so
// one authorization covers the batch as a unit.
func (iss *Issuer) IssueBatch(memberHashes []hashchain.Hash) (Token, error) {
	distinct := distinctHashes(memberHashes)
	if len(distinct) == 0 {
		return Token{}, ErrEmptyBatch
	}

	raw, err := iss.rng.Bytes(32)
	if err != nil {
		return Token{}, err
	}
	id := base64.RawURLEncoding.EncodeToString(raw)
	now := iss.clock.WallNow()
	batchHash := BatchContentHash(distinct)
	return Token{
		ID:               id,
		ContentHash:      batchHash,
		ScopeTag:         BatchScope(len(distinct)),
		BatchContentHash: batchHash,
		IssuedAt:         now,
		ExpiresAt:        now.Add(iss.validity),
	}, nil
}

// BatchContentHash sorts the distinct member hashes and returns sha256 over
// their concatenation — the batch_content_hash a batch token is bound to.
func BatchContentHash(hashes []hashchain.Hash) hashchain.Hash {
	sorted := append([]hashchain.Hash(nil), hashes...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	var buf bytes.Buffer
	for _, h := range sorted {
		buf.Write(h[:])
	}
	return hashchain.HashPayload(buf.Bytes())
}

func distinctHashes(hashes []hashchain.Hash) []hashchain.Hash {
	seen := make(map[hashchain.Hash]bool, len(hashes))
	out := make([]hashchain.Hash, 0, len(hashes))
	for _, h := range hashes {
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Consume atomically checks-and-records use of tok against contentHash.
// The check (expiry, content match, prior consumption) and the record
// (marking consumed) happen under a single lock acquisition so two
// concurrent callers can never both succeed for the same token.
func (iss *Issuer) Consume(tok Token, contentHash hashchain.Hash) error {
	iss.mu.Lock()
	defer iss.mu.Unlock()

	if iss.clock.WallNow().After(tok.ExpiresAt) || iss.clock.WallNow().Equal(tok.ExpiresAt) {
		return ErrTokenExpired
	}
	if !tok.MatchesContent(contentHash) {
		return ErrTokenContentMismatch
	}
	if iss.consumed[tok.ID] {
		return ErrTokenAlreadyUsed
	}
	iss.consumed[tok.ID] = true
	return nil
}

// IsConsumed reports whether tok has already been used. For diagnostics
// only; Consume is the sole authoritative check-and-record path.
func (iss *Issuer) IsConsumed(tok Token) bool {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return iss.consumed[tok.ID]
}
