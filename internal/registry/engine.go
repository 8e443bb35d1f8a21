// Package registry is the background-resident source of truth for open
// tabs and the closure policy applied to them.
//
// The engine owns the persisted tab map exclusively. Everything else
// (tab agents, popup clients) reads the store or asks the engine over
// the bridge; out-of-order idle signals are applied last-write-wins by
// timestamp, never by arrival order.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/bridge"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/store"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/strategy"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// Platform is the slice of the tab manager the engine needs. The
// concrete implementation talks CDP; tests substitute fakes.
type Platform interface {
	ListTargets() ([]*target.Info, error)
	CloseTab(tabID string) error
	Release(tabID string)
	Tab(tabID string) (strategy.Tab, error)
	OnRefreshInterval(tabID string, fn func(ctx context.Context, req bridge.RefreshIntervalRequest) error) error
}

// Archiver runs the capture-encrypt-submit-close pipeline for tabs the
// user pre-selected. It closes the tabs itself on success.
type Archiver interface {
	ArchiveAndClose(ctx context.Context, tabIDs []string, pin string) error
}

// IntervalEntry tracks, per tab, whether idle detection is delegated to
// the tab's own context or driven by the shared background timer.
type IntervalEntry struct {
	TabID                     string
	UsesContentScriptStrategy bool
}

type Engine struct {
	store    *store.Store
	bridge   *bridge.Bridge
	platform Platform
	archiver Archiver

	refreshInterval time.Duration
	sweepInterval   time.Duration
	now             func() int64 // millis; test hook

	mu        sync.Mutex
	intervals map[string]IntervalEntry
	teardowns map[string]strategy.Teardown
	active    strategy.Strategy

	selectMu  sync.Mutex
	selected  map[string]string // tabID -> archive PIN
	archiving map[string]bool

	sweepMu  sync.Mutex
	sweeping bool

	windowCancel context.CancelFunc
}

type Options struct {
	RefreshInterval time.Duration
	SweepInterval   time.Duration
	Now             func() int64
}

func NewEngine(st *store.Store, br *bridge.Bridge, platform Platform, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = tabmodel.NowMillis
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	e := &Engine{
		store:           st,
		bridge:          br,
		platform:        platform,
		refreshInterval: opts.RefreshInterval,
		sweepInterval:   opts.SweepInterval,
		now:             opts.Now,
		intervals:       make(map[string]IntervalEntry),
		teardowns:       make(map[string]strategy.Teardown),
		selected:        make(map[string]string),
		archiving:       make(map[string]bool),
	}
	br.SetBackground(e.handleMessage)
	return e
}

// SetArchiver wires the archive pipeline; done after construction to
// break the registry/archive dependency loop.
func (e *Engine) SetArchiver(a Archiver) {
	e.selectMu.Lock()
	e.archiver = a
	e.selectMu.Unlock()
}

// Start rebuilds the tab map from a live target query, installs the
// configured strategy, and runs the sweep and settings-watch loops
// until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Rebuild(); err != nil {
		return fmt.Errorf("rebuild tab map: %w", err)
	}
	if err := e.ApplySettings(ctx); err != nil {
		slog.Warn("initial strategy install failed", "err", err)
	}

	go e.sweepLoop(ctx)
	go e.settingsLoop(ctx)
	return nil
}

// Stop tears down strategy state.
func (e *Engine) Stop() {
	e.teardownAll()
}

// Rebuild replaces the persisted tab map with the browser's live list.
func (e *Engine) Rebuild() error {
	targets, err := e.platform.ListTargets()
	if err != nil {
		return err
	}

	defaultCtx := dominantBrowserContext(targets)
	tabs := make(map[string]*tabmodel.TabSnapshot, len(targets))
	for i, t := range targets {
		snap := tabmodel.FromTarget(t)
		if snap == nil {
			continue
		}
		snap.TabIndex = i
		snap.LastActivityAt = e.now()
		// A non-default browser context marks a container tab.
		if snap.WindowID != defaultCtx {
			snap.GroupID = snap.WindowID
		}
		tabs[snap.ID] = snap
	}
	e.store.ReplaceTabs(tabs)
	return nil
}

// dominantBrowserContext picks the context id most targets share; tabs
// outside it are treated as container tabs.
func dominantBrowserContext(targets []*target.Info) string {
	counts := make(map[string]int)
	best, bestN := "", 0
	for _, t := range targets {
		id := string(t.BrowserContextID)
		counts[id]++
		if counts[id] > bestN {
			best, bestN = id, counts[id]
		}
	}
	return best
}

// handleMessage is the engine's bridge handler.
func (e *Engine) handleMessage(ctx context.Context, p bridge.Payload) (bridge.Payload, error) {
	switch sig := p.(type) {
	case bridge.RefreshTabSignal:
		e.onIdleSignal(ctx, sig)
		return bridge.Ack{}, nil
	default:
		return nil, fmt.Errorf("background: unexpected message %s", p.Kind())
	}
}

// onIdleSignal handles a content-side idle report: it never advances
// the activity stamp, it only triggers an eager closure re-evaluation.
// Signals older than the tab's last recorded activity are stale (the
// tab was active after the page went idle) and are dropped.
func (e *Engine) onIdleSignal(ctx context.Context, sig bridge.RefreshTabSignal) {
	tab, ok := e.store.Tab(sig.TabID)
	if !ok {
		return
	}
	if sig.ReportedAt < tab.LastActivityAt {
		slog.Debug("stale idle signal dropped", "tabId", sig.TabID)
		return
	}
	e.evaluateOne(ctx, tab)
}

// MarkForArchive pre-selects tabs: the next sweep that finds them
// closable archives them (with the given PIN) instead of plainly
// closing.
func (e *Engine) MarkForArchive(tabIDs []string, pinCode string) {
	e.selectMu.Lock()
	defer e.selectMu.Unlock()
	for _, id := range tabIDs {
		if id != "" {
			e.selected[id] = pinCode
		}
	}
}

func (e *Engine) UnmarkForArchive(tabIDs []string) {
	e.selectMu.Lock()
	defer e.selectMu.Unlock()
	for _, id := range tabIDs {
		delete(e.selected, id)
	}
}

// Intervals returns a copy of the per-tab strategy bookkeeping.
func (e *Engine) Intervals() map[string]IntervalEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]IntervalEntry, len(e.intervals))
	for k, v := range e.intervals {
		out[k] = v
	}
	return out
}

func (e *Engine) settingsLoop(ctx context.Context) {
	ch := e.store.Watch(store.KeySettings)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if err := e.ApplySettings(ctx); err != nil {
				slog.Warn("apply settings", "err", err)
			}
			// Settings changes trigger an immediate sweep.
			e.Sweep(ctx)
		}
	}
}

// ApplySettings switches the active idle strategy to match the global
// rule. The previous strategy's listeners and timers are torn down
// before the new one installs; a dangling timer is a defect, not an
// accepted cost.
func (e *Engine) ApplySettings(ctx context.Context) error {
	setting := e.store.Settings()
	name := string(setting.Global.IdleCondition)

	next, err := strategy.New(name)
	if err != nil {
		return err
	}

	e.teardownAll()

	e.mu.Lock()
	e.active = next
	e.mu.Unlock()

	if !next.UsesContentScript() {
		winCtx, cancel := context.WithCancel(ctx)
		e.mu.Lock()
		e.windowCancel = cancel
		e.mu.Unlock()
		go e.windowPollLoop(winCtx)
	}

	for id := range e.store.Tabs() {
		if err := e.installFor(ctx, id, next); err != nil {
			slog.Debug("strategy install", "tabId", id, "strategy", name, "err", err)
		}
	}
	slog.Info("idle strategy active", "strategy", name)
	return nil
}

// installFor routes the refresh-interval request to the tab's agent
// over the bridge, which lands in applyRefreshInterval below.
func (e *Engine) installFor(ctx context.Context, tabID string, s strategy.Strategy) error {
	if !s.UsesContentScript() {
		e.mu.Lock()
		e.intervals[tabID] = IntervalEntry{TabID: tabID, UsesContentScriptStrategy: false}
		e.mu.Unlock()
		return nil
	}

	if err := e.platform.OnRefreshInterval(tabID, func(ctx context.Context, req bridge.RefreshIntervalRequest) error {
		return e.applyRefreshInterval(ctx, tabID, req)
	}); err != nil {
		return err
	}

	_, err := e.bridge.Call(ctx, bridge.ToTab(tabID), bridge.RefreshIntervalRequest{
		Condition:  rules.IdleCondition(s.Name()),
		IntervalMs: e.refreshInterval.Milliseconds(),
		Enabled:    true,
	})
	return err
}

// applyRefreshInterval runs in the tab agent's context: it installs or
// removes the content-side strategy hooks for this tab.
func (e *Engine) applyRefreshInterval(ctx context.Context, tabID string, req bridge.RefreshIntervalRequest) error {
	e.mu.Lock()
	if td, ok := e.teardowns[tabID]; ok {
		delete(e.teardowns, tabID)
		e.mu.Unlock()
		td()
		e.mu.Lock()
	}
	delete(e.intervals, tabID)
	e.mu.Unlock()

	if !req.Enabled {
		return nil
	}

	s, err := strategy.New(string(req.Condition))
	if err != nil {
		return err
	}
	tab, err := e.platform.Tab(tabID)
	if err != nil {
		return err
	}

	td, err := s.Install(ctx, tab, time.Duration(req.IntervalMs)*time.Millisecond)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.teardowns[tabID] = td
	e.intervals[tabID] = IntervalEntry{TabID: tabID, UsesContentScriptStrategy: true}
	e.mu.Unlock()
	return nil
}

func (e *Engine) teardownAll() {
	e.mu.Lock()
	if e.windowCancel != nil {
		e.windowCancel()
		e.windowCancel = nil
	}
	tds := e.teardowns
	e.teardowns = make(map[string]strategy.Teardown)
	e.intervals = make(map[string]IntervalEntry)
	e.mu.Unlock()

	for _, td := range tds {
		td()
	}
}

// windowPollLoop is the shared background timer for the window-focus
// strategy: it probes every tracked tab and refreshes the focused one's
// activity stamp.
func (e *Engine) windowPollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for id, snap := range e.store.Tabs() {
			tab, err := e.platform.Tab(id)
			if err != nil {
				continue
			}
			if strategy.IsFocused(ctx, tab) {
				snap.LastActivityAt = e.now()
				e.store.PutTab(snap)
			}
		}
	}
}
