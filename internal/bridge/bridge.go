// Package bridge implements the typed request/response protocol between
// the background engine, per-tab agents, and popup clients.
//
// Each context is a goroutine (or an external WebSocket client for the
// popup); there is no shared memory across the protocol, only messages.
// Requests carry a correlation id and a bounded timeout; idle signals
// are fire-and-forget.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTimeout means the target did not answer within the bound.
	// Callers proceed with degraded data instead of blocking.
	ErrTimeout = fmt.Errorf("bridge: request timed out")

	// ErrNoTarget means the addressed context is not registered
	// (tab closed, popup disconnected).
	ErrNoTarget = fmt.Errorf("bridge: no such target")

	// ErrInFlight rejects a second concurrent request for the same
	// target and kind; one logical request per call site.
	ErrInFlight = fmt.Errorf("bridge: request already in flight")
)

// Handler processes one message for a registered context.
type Handler func(ctx context.Context, p Payload) (Payload, error)

type pendingResult struct {
	payload Payload
	err     error
}

type Bridge struct {
	timeout time.Duration

	mu         sync.RWMutex
	tabs       map[string]Handler
	background Handler
	popup      Handler

	pendingMu sync.Mutex
	pending   map[string]chan pendingResult
	inflight  map[string]bool
}

func New(timeout time.Duration) *Bridge {
	return &Bridge{
		timeout:  timeout,
		tabs:     make(map[string]Handler),
		pending:  make(map[string]chan pendingResult),
		inflight: make(map[string]bool),
	}
}

// AttachTab registers the handler for one tab agent.
func (b *Bridge) AttachTab(tabID string, h Handler) {
	b.mu.Lock()
	b.tabs[tabID] = h
	b.mu.Unlock()
}

func (b *Bridge) DetachTab(tabID string) {
	b.mu.Lock()
	delete(b.tabs, tabID)
	b.mu.Unlock()
}

// SetBackground registers the background engine's handler (idle signals).
func (b *Bridge) SetBackground(h Handler) {
	b.mu.Lock()
	b.background = h
	b.mu.Unlock()
}

// SetPopup registers the popup hub's handler (event fan-out).
func (b *Bridge) SetPopup(h Handler) {
	b.mu.Lock()
	b.popup = h
	b.mu.Unlock()
}

func (b *Bridge) resolve(t Target) (Handler, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch t.Kind {
	case TargetTab:
		h, ok := b.tabs[t.TabID]
		if !ok {
			return nil, fmt.Errorf("%w: tab %s", ErrNoTarget, t.TabID)
		}
		return h, nil
	case TargetBackground:
		if b.background == nil {
			return nil, fmt.Errorf("%w: background", ErrNoTarget)
		}
		return b.background, nil
	case TargetPopup:
		if b.popup == nil {
			return nil, fmt.Errorf("%w: popup", ErrNoTarget)
		}
		return b.popup, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoTarget, t.Kind)
	}
}

func flightKey(t Target, k Kind) string {
	return string(t.Kind) + "/" + t.TabID + "/" + string(k)
}

// Call sends a request and waits for the reply, bounded by the bridge
// timeout. A timeout leaves the handler running but abandons the reply.
func (b *Bridge) Call(ctx context.Context, target Target, p Payload) (Payload, error) {
	h, err := b.resolve(target)
	if err != nil {
		return nil, err
	}

	fk := flightKey(target, p.Kind())
	id := uuid.NewString()
	ch := make(chan pendingResult, 1)

	b.pendingMu.Lock()
	if b.inflight[fk] {
		b.pendingMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInFlight, fk)
	}
	b.inflight[fk] = true
	b.pending[id] = ch
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		delete(b.inflight, fk)
		b.pendingMu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	go func() {
		resp, err := h(callCtx, p)
		select {
		case ch <- pendingResult{payload: resp, err: err}:
		default:
		}
	}()

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("bridge call timed out", "id", id, "name", p.Kind(), "target", target.Kind, "tab", target.TabID)
		return nil, fmt.Errorf("%w: %s to %s", ErrTimeout, p.Kind(), target.Kind)
	}
}

// Notify dispatches a fire-and-forget message. Delivery failures are
// logged, never returned: idle signals are best effort by design of the
// protocol and the registry is idempotent under loss and reordering.
func (b *Bridge) Notify(target Target, p Payload) {
	h, err := b.resolve(target)
	if err != nil {
		slog.Debug("bridge notify dropped", "name", p.Kind(), "err", err)
		return
	}
	go func() {
		if _, err := h(context.Background(), p); err != nil {
			slog.Debug("bridge notify handler", "name", p.Kind(), "err", err)
		}
	}()
}
