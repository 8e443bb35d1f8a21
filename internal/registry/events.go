package registry

import (
	"context"
	"log/slog"

	"github.com/chromedp/cdproto/target"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// Tab lifecycle handlers. Each normalizes the browser's target object
// into a TabSnapshot and writes it through the store; events without a
// usable identity are dropped silently, never treated as errors.
//
// LastActivityAt is advanced only on activity-qualifying transitions:
// a new tab, a completed navigation, or activation under the
// window-focus strategy.

func (e *Engine) OnTabCreated(ctx context.Context, t *target.Info) {
	snap := tabmodel.FromTarget(t)
	if snap == nil || !tabmodel.IsPage(t) {
		return
	}
	snap.LastActivityAt = e.now()
	e.store.PutTab(snap)

	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != nil {
		if err := e.installFor(ctx, snap.ID, active); err != nil {
			slog.Debug("strategy install on create", "tabId", snap.ID, "err", err)
		}
	}
	slog.Debug("tab created", "tabId", snap.ID, "url", snap.URL)
}

func (e *Engine) OnTabUpdated(ctx context.Context, t *target.Info) {
	snap := tabmodel.FromTarget(t)
	if snap == nil {
		return
	}

	prev, known := e.store.Tab(snap.ID)
	if !known {
		// Updates for untracked pages behave like creation.
		if tabmodel.IsPage(t) {
			e.OnTabCreated(ctx, t)
		}
		return
	}

	navigated := prev.URL != snap.URL && snap.URL != ""

	prev.Title = snap.Title
	prev.URL = snap.URL
	prev.IsUnloaded = snap.IsUnloaded
	if navigated {
		// Navigation completion qualifies as activity.
		prev.LastActivityAt = maxInt64(prev.LastActivityAt, e.now())
	}
	e.store.PutTab(prev)
}

// OnTabReplaced carries the activity history from the old identity to
// the new one (prerender/portal swaps).
func (e *Engine) OnTabReplaced(ctx context.Context, oldID string, t *target.Info) {
	snap := tabmodel.FromTarget(t)
	if snap == nil {
		return
	}
	if prev, ok := e.store.Tab(oldID); ok {
		snap.LastActivityAt = prev.LastActivityAt
		e.store.DeleteTab(oldID)
		e.dropTracking(oldID)
	}
	e.store.PutTab(snap)
}

func (e *Engine) OnTabRemoved(tabID string) {
	if tabID == "" {
		return
	}
	e.store.DeleteTab(tabID)
	e.dropTracking(tabID)
	e.platform.Release(tabID)
	slog.Debug("tab removed", "tabId", tabID)
}

// OnTabActivated advances the activity stamp only under the
// window-focus strategy; content-script strategies never move the
// stamp from activation.
func (e *Engine) OnTabActivated(tabID string) {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active == nil || active.UsesContentScript() {
		return
	}

	tab, ok := e.store.Tab(tabID)
	if !ok {
		return
	}
	tab.LastActivityAt = maxInt64(tab.LastActivityAt, e.now())
	e.store.PutTab(tab)
}

// dropTracking clears strategy bookkeeping and archive selection for a
// tab that no longer exists.
func (e *Engine) dropTracking(tabID string) {
	e.mu.Lock()
	td, hadTd := e.teardowns[tabID]
	delete(e.teardowns, tabID)
	delete(e.intervals, tabID)
	e.mu.Unlock()
	if hadTd {
		td()
	}

	e.selectMu.Lock()
	delete(e.selected, tabID)
	delete(e.archiving, tabID)
	e.selectMu.Unlock()
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
