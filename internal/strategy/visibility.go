package strategy

import (
	"context"
	"time"
)

func init() {
	Register("visibility", func() Strategy { return &Visibility{} })
}

// Visibility instruments each page to report over the CDP binding when
// it transitions to hidden. Becoming visible reports nothing: activity
// stamps are advanced only by the registry's own event handlers, while
// a hidden report triggers an immediate closure re-evaluation.
type Visibility struct{}

func (Visibility) Name() string            { return "visibility" }
func (Visibility) UsesContentScript() bool { return true }

const visibilityHook = `(() => {
	if (window.__alttab_vis) return true;
	window.__alttab_vis = true;
	document.addEventListener("visibilitychange", () => {
		if (document.visibilityState === "hidden" && window.__alttab_report) {
			window.__alttab_report("hidden");
		}
	});
	return true;
})()`

func (Visibility) Install(ctx context.Context, tab Tab, _ time.Duration) (Teardown, error) {
	if err := tab.ListenBinding(func(payload string) {
		if payload == "hidden" {
			tab.ReportIdle()
		}
	}); err != nil {
		return nil, err
	}

	scriptID, err := tab.InjectScript(visibilityHook)
	if err != nil {
		tab.ClearBinding()
		return nil, err
	}

	// Injected scripts only reach future documents; hook the current
	// one directly.
	evalCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var hooked bool
	_ = tab.Eval(evalCtx, visibilityHook, &hooked)

	return func() {
		tab.RemoveScript(scriptID)
		tab.ClearBinding()
	}, nil
}
