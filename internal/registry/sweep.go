package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep evaluates every tracked tab for closure. Sweeps never overlap:
// a sweep requested while one is running is skipped, the periodic timer
// covers it. Individual tab-event handlers may interleave freely; a tab
// that vanishes mid-sweep is a no-op.
func (e *Engine) Sweep(ctx context.Context) {
	e.sweepMu.Lock()
	if e.sweeping {
		e.sweepMu.Unlock()
		return
	}
	e.sweeping = true
	e.sweepMu.Unlock()

	defer func() {
		e.sweepMu.Lock()
		e.sweeping = false
		e.sweepMu.Unlock()
	}()

	setting := e.store.Settings()
	for _, tab := range e.store.Tabs() {
		e.sweepTab(ctx, tab, setting)
	}
}

// evaluateOne is the eager path used by idle signals: one tab, same
// policy as a full sweep.
func (e *Engine) evaluateOne(ctx context.Context, tab *tabmodel.TabSnapshot) {
	e.sweepTab(ctx, tab, e.store.Settings())
}

func (e *Engine) sweepTab(ctx context.Context, tab *tabmodel.TabSnapshot, setting rules.Setting) {
	rule := setting.Resolve(tab.URL)
	if rule.NeverCloses() {
		return
	}

	elapsed := time.Duration(e.now()-tab.LastActivityAt) * time.Millisecond
	if elapsed < time.Duration(rule.IdleTimeoutMinutes)*time.Minute {
		return
	}

	ok, block := EvaluateClosure(tab, rule)
	if !ok {
		slog.Debug("closure blocked", "tabId", tab.ID, "reason", block)
		return
	}

	if e.deferToArchive(ctx, tab.ID) {
		return
	}

	e.closeTab(tab.ID)
}

// deferToArchive starts the archive pipeline for a pre-selected tab and
// reports that closure must wait. The archiver closes the tab itself on
// success; on failure the selection stays and the next sweep retries,
// so no data is lost to an eager close.
func (e *Engine) deferToArchive(ctx context.Context, tabID string) bool {
	e.selectMu.Lock()
	pinCode, selected := e.selected[tabID]
	inflight := e.archiving[tabID]
	a := e.archiver
	if selected && !inflight && a != nil {
		e.archiving[tabID] = true
	}
	e.selectMu.Unlock()

	if !selected {
		return false
	}
	if inflight || a == nil {
		return true
	}

	go func() {
		err := a.ArchiveAndClose(ctx, []string{tabID}, pinCode)

		e.selectMu.Lock()
		delete(e.archiving, tabID)
		if err == nil {
			delete(e.selected, tabID)
		}
		e.selectMu.Unlock()

		if err != nil {
			slog.Warn("archive before close failed, will retry", "tabId", tabID, "err", err)
		}
	}()
	return true
}

// closeTab performs the close action. A tab that disappeared between
// decision and close is a no-op, not an error.
func (e *Engine) closeTab(tabID string) {
	if err := e.platform.CloseTab(tabID); err != nil {
		slog.Debug("close tab", "tabId", tabID, "err", err)
	}
	e.store.DeleteTab(tabID)
	e.dropTracking(tabID)
	slog.Info("closed idle tab", "tabId", tabID)
}
