// Package auditledger is the tamper-evident, append-only audit trail every
// governance component writes to. It wraps pkg/hashchain with on-disk
// persistence (line-delimited canonical JSON plus a ledger.head sidecar)
// and halts the whole ledger the instant a re-verification fails: once
// integrity is in doubt, every further append is refused rather than risk
// building on a corrupted chain.
package auditledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/certen/bounty-governance/pkg/adapter"
	"github.com/certen/bounty-governance/pkg/errs"
	"github.com/certen/bounty-governance/pkg/hashchain"
)

// ErrSystemHalted is returned by Append once the ledger has detected an
// integrity violation. It never clears itself; the process must restart
// against a repaired or replaced ledger file.
var ErrSystemHalted = errors.New("auditledger: system halted after integrity violation")

// ErrUnknownEventType is returned by Append for an EventType not in the
// fixed enumeration.
var ErrUnknownEventType = errors.New("auditledger: unknown event type")

// storedRecord is the on-disk line-delimited JSON form of a hashchain.Record.
type storedRecord struct {
	Index        uint64 `json:"index"`
	EntryID      string `json:"entry_id"`
	Timestamp    string `json:"timestamp"`
	EventType    string `json:"event_type"`
	Correlation  string `json:"correlation"`
	PreviousHash string `json:"previous_hash"`
	PayloadHash  string `json:"payload_hash"`
	Hash         string `json:"hash"`
}

// Ledger is a single append-only, hash-chained audit trail backed by a
// directory on disk.
type Ledger struct {
	mu       sync.Mutex
	dir      string
	dataPath string
	headPath string
	clock    adapter.Clock
	logger   *log.Logger
	metrics  Metrics

	head    hashchain.Hash
	nextIdx uint64
	halted  bool

	byCorrelation map[CorrelationKey][]hashchain.Record
	all           []hashchain.Record
}

// Metrics is the subset of pkg/metrics that the ledger increments. Defined
// here (not imported from pkg/metrics) to avoid a dependency cycle; see
// pkg/metrics.LedgerAdapter for the concrete wiring.
type Metrics interface {
	IncAppend(eventType string)
	IncHalt()
}

type noopMetrics struct{}

func (noopMetrics) IncAppend(string) {}
func (noopMetrics) IncHalt()         {}

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithLogger overrides the default [AuditLedger]-prefixed logger.
func WithLogger(l *log.Logger) Option {
	return func(led *Ledger) { led.logger = l }
}

// WithMetrics wires a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(led *Ledger) { led.metrics = m }
}

// Open loads (or initializes) a ledger rooted at dir. It re-verifies the
// entire chain against the head sidecar on open and returns an error if
// they disagree, matching spec.md §6's "ledger.head must agree with the
// recomputed tail, or the system halts" requirement.
func Open(dir string, clock adapter.Clock, opts ...Option) (*Ledger, error) {
	led := &Ledger{
		dir:           dir,
		dataPath:      filepath.Join(dir, "ledger.jsonl"),
		headPath:      filepath.Join(dir, "ledger.head"),
		clock:         clock,
		logger:        log.New(log.Writer(), "[AuditLedger] ", log.LstdFlags),
		metrics:       noopMetrics{},
		byCorrelation: make(map[CorrelationKey][]hashchain.Record),
	}
	for _, o := range opts {
		o(led)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("auditledger: mkdir: %w", err)
	}
	if err := led.load(); err != nil {
		return nil, err
	}
	return led, nil
}

func (l *Ledger) load() error {
	records, err := l.readAll()
	if err != nil {
		return fmt.Errorf("auditledger: read: %w", err)
	}
	if err := hashchain.Verify(records); err != nil {
		l.logger.Printf("integrity verification failed on open: %v", err)
		return errs.HardStopErr(errs.ScopeSystem, err, "ledger failed integrity verification on open", nil)
	}
	head, err := l.readHead()
	if err != nil {
		return fmt.Errorf("auditledger: read head: %w", err)
	}
	tail := hashchain.Genesis()
	if len(records) > 0 {
		tail = records[len(records)-1].Hash
	}
	if head != (hashchain.Hash{}) && !head.Equal(tail) {
		err := fmt.Errorf("auditledger: head sidecar %s disagrees with recomputed tail %s", head, tail)
		return errs.HardStopErr(errs.ScopeSystem, err, "ledger.head does not match recomputed tail", nil)
	}
	l.all = records
	l.nextIdx = uint64(len(records))
	l.head = tail
	return l.rebuildCorrelationIndex()
}

func (l *Ledger) rebuildCorrelationIndex() error {
	f, err := os.Open(l.dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	i := 0
	for scanner.Scan() {
		var sr storedRecord
		if err := json.Unmarshal(scanner.Bytes(), &sr); err != nil {
			return err
		}
		if i < len(l.all) {
			key := CorrelationKey(sr.Correlation)
			l.byCorrelation[key] = append(l.byCorrelation[key], l.all[i])
		}
		i++
	}
	return scanner.Err()
}

func (l *Ledger) readAll() ([]hashchain.Record, error) {
	f, err := os.Open(l.dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []hashchain.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var sr storedRecord
		if err := json.Unmarshal(scanner.Bytes(), &sr); err != nil {
			return nil, fmt.Errorf("malformed ledger line: %w", err)
		}
		prev, err := hashchain.ParseHash(sr.PreviousHash)
		if err != nil {
			return nil, err
		}
		payload, err := hashchain.ParseHash(sr.PayloadHash)
		if err != nil {
			return nil, err
		}
		h, err := hashchain.ParseHash(sr.Hash)
		if err != nil {
			return nil, err
		}
		records = append(records, hashchain.Record{
			Index:        sr.Index,
			EntryID:      sr.EntryID,
			Timestamp:    sr.Timestamp,
			EventType:    sr.EventType,
			PreviousHash: prev,
			PayloadHash:  payload,
			Hash:         h,
		})
	}
	return records, scanner.Err()
}

func (l *Ledger) readHead() (hashchain.Hash, error) {
	b, err := os.ReadFile(l.headPath)
	if errors.Is(err, os.ErrNotExist) {
		return hashchain.Hash{}, nil
	}
	if err != nil {
		return hashchain.Hash{}, err
	}
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	if s == "" {
		return hashchain.Hash{}, nil
	}
	return hashchain.ParseHash(s)
}

func (l *Ledger) writeHeadAtomic(h hashchain.Hash) error {
	tmp := l.headPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(h.String()+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.headPath)
}

// Append writes one event, computes its chain link, fsyncs the data file,
// then atomically rewrites the head sidecar. If anything fails partway the
// ledger halts rather than risk an inconsistent head/tail pair.
func (l *Ledger) Append(ev Event) (hashchain.Record, error) {
	if !validEvents[ev.Type] {
		return hashchain.Record{}, ErrUnknownEventType
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return hashchain.Record{}, errs.HardStopErr(errs.ScopeSystem, ErrSystemHalted, "ledger is halted", nil)
	}

	ts := l.clock.WallNow().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	payloadHash := hashchain.HashPayload(ev.PayloadCanonical)
	record, err := hashchain.Extend(l.nextIdx, ev.EntryID, ts, string(ev.Type), l.head, payloadHash)
	if err != nil {
		return hashchain.Record{}, err
	}

	sr := storedRecord{
		Index:        record.Index,
		EntryID:      record.EntryID,
		Timestamp:    record.Timestamp,
		EventType:    record.EventType,
		Correlation:  string(ev.Correlation),
		PreviousHash: record.PreviousHash.String(),
		PayloadHash:  record.PayloadHash.String(),
		Hash:         record.Hash.String(),
	}
	line, err := json.Marshal(sr)
	if err != nil {
		return hashchain.Record{}, err
	}
	if err := l.appendLine(line); err != nil {
		l.halt(fmt.Errorf("append failed: %w", err))
		return hashchain.Record{}, errs.HardStopErr(errs.ScopeSystem, err, "failed writing ledger entry", nil)
	}
	if err := l.writeHeadAtomic(record.Hash); err != nil {
		l.halt(fmt.Errorf("head write failed: %w", err))
		return hashchain.Record{}, errs.HardStopErr(errs.ScopeSystem, err, "failed writing ledger head", nil)
	}

	l.head = record.Hash
	l.nextIdx++
	l.all = append(l.all, record)
	l.byCorrelation[ev.Correlation] = append(l.byCorrelation[ev.Correlation], record)
	l.metrics.IncAppend(string(ev.Type))
	return record, nil
}

func (l *Ledger) appendLine(line []byte) error {
	f, err := os.OpenFile(l.dataPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (l *Ledger) halt(cause error) {
	l.halted = true
	l.metrics.IncHalt()
	l.logger.Printf("HALT: %v", cause)
}

// Query returns every record appended under the given correlation key, in
// append order.
func (l *Ledger) Query(key CorrelationKey) ([]hashchain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := l.byCorrelation[key]
	out := make([]hashchain.Record, len(records))
	copy(out, records)
	return out, nil
}

// VerifyIntegrity recomputes the entire in-memory chain. Query keeps
// serving even after a failed verification; only Append is blocked.
func (l *Ledger) VerifyIntegrity() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := hashchain.Verify(l.all); err != nil {
		l.halt(err)
		return errs.HardStopErr(errs.ScopeSystem, err, "ledger failed integrity re-verification", nil)
	}
	return nil
}

// Halted reports whether the ledger has stopped accepting Append calls.
func (l *Ledger) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// ExportBundle packages every record under a correlation key plus a bundle
// hash binding the bundle's own identity to its member records, for handing
// to an external auditor. This is read-only and adds no authority of its
// own: it selects no records beyond the caller-supplied correlation key and
// performs no analysis of their content.
type ExportBundle struct {
	BundleID    string
	CreatedAt   string
	Correlation CorrelationKey
	Records     []hashchain.Record
	BundleHash  hashchain.Hash
}

// Export builds an ExportBundle for key. The member records are checked for
// self-consistency (each record's own hash still matches its own fields);
// this is not the same check as VerifyIntegrity, which additionally
// requires the slice to be a contiguous, genesis-rooted chain — true of the
// whole ledger but not, in general, of one correlation key's records once a
// second workflow has interleaved entries between them.
func (l *Ledger) Export(key CorrelationKey) (*ExportBundle, error) {
	records, err := l.Query(key)
	if err != nil {
		return nil, err
	}
	if err := hashchain.VerifySelfConsistent(records); err != nil {
		return nil, err
	}
	bundleID := uuid.NewString()
	createdAt := l.clock.WallNow().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	return &ExportBundle{
		BundleID:    bundleID,
		CreatedAt:   createdAt,
		Correlation: key,
		Records:     records,
		BundleHash:  bundleHash(bundleID, createdAt, records),
	}, nil
}

// bundleHash hashes the bundle's own identity (bundle_id, created_at) and
// its member entry ids, not a re-walk of the chain — the bundle attests to
// what it contains, not to the whole ledger's integrity, which Export
// already checked via VerifySelfConsistent.
func bundleHash(bundleID, createdAt string, records []hashchain.Record) hashchain.Hash {
	entryIDs := make([]string, len(records))
	for i, r := range records {
		entryIDs[i] = r.EntryID
	}
	payload := struct {
		BundleID  string   `json:"bundle_id"`
		CreatedAt string   `json:"created_at"`
		EntryIDs  []string `json:"entry_ids"`
	}{bundleID, createdAt, entryIDs}
	b, _ := json.Marshal(payload)
	return hashchain.HashPayload(b)
}
