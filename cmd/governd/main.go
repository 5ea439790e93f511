// Command governd runs the bounty-governance kernel: it wires the
// configuration, audit ledger, authorization tokens, friction gate, scope
// enforcer and guard layer into a Coordinator, then exposes a
// health/metrics/ledger-query/export HTTP surface plus scope-validation and
// evidence-bundle endpoints that record ledger events. It never talks to a bounty
// platform or a browser itself — those are pkg/adapter implementations
// supplied by a caller embedding this module, per spec.md's Non-goals.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/bounty-governance/pkg/adapter"
	"github.com/certen/bounty-governance/pkg/auditledger"
	"github.com/certen/bounty-governance/pkg/authtoken"
	"github.com/certen/bounty-governance/pkg/config"
	"github.com/certen/bounty-governance/pkg/content"
	"github.com/certen/bounty-governance/pkg/coordinator"
	"github.com/certen/bounty-governance/pkg/friction"
	"github.com/certen/bounty-governance/pkg/guard"
	"github.com/certen/bounty-governance/pkg/metrics"
	"github.com/certen/bounty-governance/pkg/scope"
	"github.com/certen/bounty-governance/pkg/storage"
)

var logger = log.New(log.Writer(), "[governd] ", log.LstdFlags)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	clock := adapter.SystemClock{}
	rng := adapter.CryptoRandom{}

	ledger, err := auditledger.Open(cfg.LedgerDir, clock,
		auditledger.WithMetrics(metrics.LedgerAdapter{R: metricsReg}))
	if err != nil {
		logger.Fatalf("open ledger: %v", err)
	}
	if ledger.Halted() {
		logger.Fatalf("ledger halted on open, refusing to serve")
	}

	if cfg.DatabaseURL != "" {
		client, err := storage.NewClient(cfg)
		if err != nil {
			if cfg.DatabaseRequired {
				logger.Fatalf("database required but unavailable: %v", err)
			}
			logger.Printf("durable registry unavailable, continuing with in-process registries only: %v", err)
		} else {
			if err := client.MigrateUp(context.Background()); err != nil {
				logger.Fatalf("migrate: %v", err)
			}
			defer client.Close()
			logger.Printf("durable registry backend connected")
		}
	}

	tokens := authtoken.NewIssuer(clock, rng, cfg.TokenValidityDefault)
	frictionCfg := friction.Config{
		MinDeliberation:          time.Duration(cfg.MinDeliberationSeconds) * time.Second,
		MinCooldown:              time.Duration(cfg.MinCooldownSeconds) * time.Second,
		MinChallengeAnswerChars:  cfg.MinChallengeAnswerChars,
		RubberStampWarnThreshold: time.Duration(cfg.RubberStampWarnThreshold) * time.Second,
		RubberStampMinDecisions:  cfg.RubberStampMinDecisions,
	}
	gate := friction.New(frictionCfg, clock)
	dup := guard.NewDuplicateSubmissionGuard()

	scopeEnforcer := scope.New(ledgerScopeAuditSink{ledger: ledger})

	coord := coordinator.New(ledger, tokens, gate, dup, clock, metrics.CoordinatorAdapter{R: metricsReg})
	metricsReg.SetLive(true)

	srv := newServer(cfg, ledger, coord, scopeEnforcer, reg)
	go func() {
		logger.Printf("serving on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	metricsReg.SetLive(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

// ledgerScopeAuditSink adapts the audit ledger to scope.AuditSink so every
// scope activation/validation/violation is recorded in the tamper-evident
// trail, not just logged to stdout.
type ledgerScopeAuditSink struct {
	ledger *auditledger.Ledger
}

func (s ledgerScopeAuditSink) LogScopeActivated(sessionID, definition, hash string) {
	s.append(sessionID, auditledger.EventScopeActivated, definition)
}

func (s ledgerScopeAuditSink) LogScopeValidated(sessionID, target string) {
	s.append(sessionID, auditledger.EventScopeValidated, target)
}

func (s ledgerScopeAuditSink) LogScopeViolation(sessionID, target, reason string) {
	s.append(sessionID, auditledger.EventScopeViolation, target+": "+reason)
}

func (s ledgerScopeAuditSink) append(sessionID string, eventType auditledger.EventType, payload string) {
	_, err := s.ledger.Append(auditledger.Event{
		EntryID:          sessionID + ":" + string(eventType),
		Type:             eventType,
		Correlation:      auditledger.CorrelationKey(sessionID),
		PayloadCanonical: []byte(payload),
	})
	if err != nil {
		logger.Printf("failed to record scope event: %v", err)
	}
}

// healthStatus is a snapshot-under-lock singleton reporting process
// liveness and ledger health for the /healthz endpoint.
type healthStatus struct {
	mu               sync.RWMutex
	ledger           *auditledger.Ledger
	coordinatorReady bool
	started          time.Time
}

func (h *healthStatus) snapshot() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"status":            statusString(h.ledger.Halted()),
		"uptime_sec":        time.Since(h.started).Seconds(),
		"halted":            h.ledger.Halted(),
		"coordinator_ready": h.coordinatorReady,
	}
}

func statusString(halted bool) string {
	if halted {
		return "halted"
	}
	return "serving"
}

func newServer(cfg *config.Config, ledger *auditledger.Ledger, coord *coordinator.Coordinator, scopeEnforcer *scope.Enforcer, reg *prometheus.Registry) *http.Server {
	health := &healthStatus{ledger: ledger, coordinatorReady: coord != nil, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := health.snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap["halted"] == true {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ledger/query", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("correlation")
		if key == "" {
			http.Error(w, "correlation query parameter is required", http.StatusBadRequest)
			return
		}
		records, err := ledger.Query(auditledger.CorrelationKey(key))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	})
	mux.HandleFunc("/scope/validate", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		target := r.URL.Query().Get("target")
		if sessionID == "" || target == "" {
			http.Error(w, "session and target query parameters are required", http.StatusBadRequest)
			return
		}
		err := scopeEnforcer.Validate(sessionID, target)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"allowed": "false", "reason": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"allowed": "true"})
	})
	mux.HandleFunc("/ledger/export", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("correlation")
		if key == "" {
			http.Error(w, "correlation query parameter is required", http.StatusBadRequest)
			return
		}
		bundle, err := ledger.Export(auditledger.CorrelationKey(key))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bundle)
	})
	mux.HandleFunc("/evidence/bundle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			BundleID    string                 `json:"bundle_id"`
			Correlation string                 `json:"correlation"`
			Files       []content.EvidenceFile `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		bundle, err := content.NewEvidenceBundle(req.BundleID, req.Files)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Correlation != "" {
			canonical, err := bundle.Canonical()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if _, err := ledger.Append(auditledger.Event{
				EntryID:          req.Correlation + ":evidence:" + bundle.BundleID,
				Type:             auditledger.EventEvidenceBundleRecorded,
				Correlation:      auditledger.CorrelationKey(req.Correlation),
				PayloadCanonical: canonical,
			}); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bundle)
	})

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
