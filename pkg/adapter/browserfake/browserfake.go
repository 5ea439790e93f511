// Package browserfake is an in-memory BrowserEngine double used by tests.
// It models the session lifecycle from the reviewed browser session
// prototype: a session is Active until stopped, then Terminated, one-way.
package browserfake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/certen/bounty-governance/pkg/adapter"
)

type sessionStatus int

const (
	statusActive sessionStatus = iota
	statusTerminated
)

var (
	// ErrSessionNotFound is returned for an action/screenshot/stop against
	// a session ID never started.
	ErrSessionNotFound = errors.New("browserfake: session not found")
	// ErrSessionTerminated is returned for any operation against a
	// session that has already been stopped. Termination is one-way.
	ErrSessionTerminated = errors.New("browserfake: session terminated")
	// ErrSessionExists is returned by StartSession on a duplicate ID.
	ErrSessionExists = errors.New("browserfake: session already exists")
)

// Engine is a deterministic, in-memory BrowserEngine for tests.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]sessionStatus
	actions  map[string][]adapter.BrowserAction
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		sessions: make(map[string]sessionStatus),
		actions:  make(map[string][]adapter.BrowserAction),
	}
}

func (e *Engine) StartSession(_ context.Context, sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[sessionID]; ok {
		return ErrSessionExists
	}
	e.sessions[sessionID] = statusActive
	return nil
}

func (e *Engine) ExecuteAction(_ context.Context, action adapter.BrowserAction) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.sessions[action.SessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if status == statusTerminated {
		return nil, ErrSessionTerminated
	}
	e.actions[action.SessionID] = append(e.actions[action.SessionID], action)
	return []byte(fmt.Sprintf("ok:%s:%s", action.Kind, action.Target)), nil
}

func (e *Engine) CaptureScreenshot(_ context.Context, sessionID string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if status == statusTerminated {
		return nil, ErrSessionTerminated
	}
	return []byte("fake-screenshot:" + sessionID), nil
}

func (e *Engine) StopSession(_ context.Context, sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if status == statusTerminated {
		return ErrSessionTerminated
	}
	e.sessions[sessionID] = statusTerminated
	return nil
}

// ActionsFor returns the recorded actions for a session, for test assertions.
func (e *Engine) ActionsFor(sessionID string) []adapter.BrowserAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]adapter.BrowserAction(nil), e.actions[sessionID]...)
}

var _ adapter.BrowserEngine = (*Engine)(nil)
