package strategy

import (
	"context"
	"time"
)

func init() {
	Register("window", func() Strategy { return &Window{} })
}

// Window detects activity from the background: a shared timer probes
// which tab currently has window focus and refreshes its activity
// stamp. Pages are not instrumented at all.
type Window struct{}

func (Window) Name() string            { return "window" }
func (Window) UsesContentScript() bool { return false }

// Install is a no-op: the polling loop is owned by the registry engine,
// keyed off UsesContentScript.
func (Window) Install(_ context.Context, _ Tab, _ time.Duration) (Teardown, error) {
	return func() {}, nil
}

const focusProbe = `document.visibilityState === "visible" && document.hasFocus()`

// IsFocused probes a tab for window focus. Errors (tab navigating,
// closed mid-probe) read as not focused.
func IsFocused(ctx context.Context, tab Tab) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var focused bool
	if err := tab.Eval(probeCtx, focusProbe, &focused); err != nil {
		return false
	}
	return focused
}
