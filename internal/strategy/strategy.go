// Package strategy implements the pluggable idle-detection variants.
// Exactly one strategy is active at a time, selected by the close rule's
// idle condition; switching tears the old one down before the new one
// installs.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
)

// Tab is the slice of a tab agent that strategies need: evaluate JS,
// inject page hooks, receive page signals, raise the idle report.
type Tab interface {
	TabID() string
	Eval(ctx context.Context, expr string, out any) error
	InjectScript(script string) (page.ScriptIdentifier, error)
	RemoveScript(id page.ScriptIdentifier)
	ListenBinding(fn func(payload string)) error
	ClearBinding()
	ReportIdle()
}

// Teardown undoes an Install. Must be called before a different
// strategy installs on the same tab; a dangling hook is a defect.
type Teardown func()

// Strategy is one idle-detection approach.
type Strategy interface {
	// Name returns the identifier matching the rule's idle condition.
	Name() string

	// UsesContentScript reports whether detection runs in the page
	// (visibility, idle) or on the background timer (window).
	UsesContentScript() bool

	// Install activates detection for one tab with the configured
	// refresh interval. Background-driven strategies return a no-op
	// teardown.
	Install(ctx context.Context, tab Tab, interval time.Duration) (Teardown, error)
}

// Factory creates a new Strategy instance.
type Factory func() Strategy

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register adds a strategy factory to the registry.
// Called from init() in each strategy file.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// New creates a strategy by name from the registry.
func New(name string) (Strategy, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s (available: %v)", name, Names())
	}
	return factory(), nil
}

// Names returns all registered strategy names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
