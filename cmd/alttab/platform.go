package main

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/bridge"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/registry"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/strategy"
)

// tabPlatform adapts the tab manager to the engine's platform interface.
type tabPlatform struct {
	tm *bridge.TabManager
}

func (p *tabPlatform) ListTargets() ([]*target.Info, error) {
	return p.tm.ListTargets()
}

func (p *tabPlatform) CloseTab(tabID string) error {
	return p.tm.CloseTab(tabID)
}

func (p *tabPlatform) Release(tabID string) {
	p.tm.Release(tabID)
}

func (p *tabPlatform) Tab(tabID string) (strategy.Tab, error) {
	return p.tm.Agent(tabID)
}

func (p *tabPlatform) OnRefreshInterval(tabID string, fn func(ctx context.Context, req bridge.RefreshIntervalRequest) error) error {
	a, err := p.tm.Agent(tabID)
	if err != nil {
		return err
	}
	a.OnRefreshInterval(fn)
	return nil
}

// watchTargets subscribes to browser-wide target lifecycle events and
// routes them into the engine.
//
// Prerendered pages are held back until activation: a prerender target
// leaving its "prerender" subtype replaces the tab that initiated it
// (the opener), so the engine carries the activity history across the
// identity swap instead of treating it as a fresh tab.
func watchTargets(browserCtx context.Context, engine *registry.Engine) error {
	var mu sync.Mutex
	prerenders := make(map[target.ID]target.ID) // prerender target -> initiating tab

	chromedp.ListenBrowser(browserCtx, func(ev any) {
		switch e := ev.(type) {
		case *target.EventTargetCreated:
			if e.TargetInfo.Subtype == "prerender" {
				mu.Lock()
				prerenders[e.TargetInfo.TargetID] = e.TargetInfo.OpenerID
				mu.Unlock()
				return
			}
			engine.OnTabCreated(browserCtx, e.TargetInfo)
		case *target.EventTargetInfoChanged:
			mu.Lock()
			opener, pending := prerenders[e.TargetInfo.TargetID]
			if pending && e.TargetInfo.Subtype != "prerender" {
				delete(prerenders, e.TargetInfo.TargetID)
			}
			mu.Unlock()
			if pending {
				if e.TargetInfo.Subtype == "prerender" {
					return
				}
				engine.OnTabReplaced(browserCtx, string(opener), e.TargetInfo)
				return
			}
			engine.OnTabUpdated(browserCtx, e.TargetInfo)
		case *target.EventTargetDestroyed:
			mu.Lock()
			_, pending := prerenders[e.TargetID]
			delete(prerenders, e.TargetID)
			mu.Unlock()
			if pending {
				// Discarded before activation; nothing was tracked.
				return
			}
			engine.OnTabRemoved(string(e.TargetID))
		}
	})

	return chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	}))
}
