package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// TabManager owns the chromedp contexts for every open tab and the
// agents attached to them. It is the only component that talks to the
// browser about tab lifecycle.
type TabManager struct {
	browserCtx context.Context
	bridge     *Bridge

	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewTabManager(browserCtx context.Context, b *Bridge) *TabManager {
	return &TabManager{
		browserCtx: browserCtx,
		bridge:     b,
		agents:     make(map[string]*Agent),
	}
}

// Agent returns the attached agent for a tab, creating one (and its
// chromedp context) on first use.
func (tm *TabManager) Agent(tabID string) (*Agent, error) {
	tm.mu.RLock()
	if a, ok := tm.agents[tabID]; ok {
		tm.mu.RUnlock()
		return a, nil
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if a, ok := tm.agents[tabID]; ok {
		return a, nil
	}
	if tm.browserCtx == nil {
		return nil, fmt.Errorf("no browser connection")
	}

	ctx, cancel := chromedp.NewContext(tm.browserCtx,
		chromedp.WithTargetID(target.ID(tabID)),
	)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("tab %s not found: %w", tabID, err)
	}

	a := newAgent(tabID, ctx, cancel, tm.bridge)
	tm.agents[tabID] = a
	tm.bridge.AttachTab(tabID, a.Handle)
	return a, nil
}

// CreateTab opens a new tab. When active is false the tab is created in
// the background, which is what the restore flow wants.
func (tm *TabManager) CreateTab(url string, active bool) (string, error) {
	if tm.browserCtx == nil {
		return "", fmt.Errorf("no browser context available")
	}

	navURL := "about:blank"
	if url != "" {
		navURL = url
	}

	var targetID target.ID
	createCtx, createCancel := context.WithTimeout(tm.browserCtx, 10*time.Second)
	defer createCancel()
	if err := chromedp.Run(createCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			params := target.CreateTarget(navURL)
			if !active {
				params = params.WithBackground(true)
			}
			targetID, err = params.Do(ctx)
			return err
		}),
	); err != nil {
		return "", fmt.Errorf("create target: %w", err)
	}

	return string(targetID), nil
}

// CloseTab cancels the agent and closes the browser target. A tab that
// is already gone is a no-op, not an error.
func (tm *TabManager) CloseTab(tabID string) error {
	tm.mu.Lock()
	a, tracked := tm.agents[tabID]
	delete(tm.agents, tabID)
	tm.mu.Unlock()

	if tracked {
		tm.bridge.DetachTab(tabID)
		a.stop()
	}

	closeCtx, closeCancel := context.WithTimeout(tm.browserCtx, 5*time.Second)
	defer closeCancel()

	if err := target.CloseTarget(target.ID(tabID)).Do(cdp.WithExecutor(closeCtx, chromedp.FromContext(closeCtx).Browser)); err != nil {
		slog.Debug("close target CDP", "tabId", tabID, "err", err)
	}
	return nil
}

// Release drops the agent for a tab that the browser already closed.
func (tm *TabManager) Release(tabID string) {
	tm.mu.Lock()
	a, tracked := tm.agents[tabID]
	delete(tm.agents, tabID)
	tm.mu.Unlock()
	if tracked {
		tm.bridge.DetachTab(tabID)
		a.stop()
	}
}

// ListTargets returns the open page targets.
func (tm *TabManager) ListTargets() ([]*target.Info, error) {
	if tm.browserCtx == nil {
		return nil, fmt.Errorf("no browser connection")
	}
	var targets []*target.Info
	if err := chromedp.Run(tm.browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			targets, err = target.GetTargets().Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}

	pages := make([]*target.Info, 0)
	for _, t := range targets {
		if tabmodel.IsPage(t) {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

// GetCookies collects the cookies visible to the given URLs in a tab's
// context, already converted to the snapshot form.
func (tm *TabManager) GetCookies(tabID string, urls []string) ([]tabmodel.Cookie, error) {
	a, err := tm.Agent(tabID)
	if err != nil {
		return nil, err
	}

	tCtx, tCancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer tCancel()

	var cookies []*network.Cookie
	if err := chromedp.Run(tCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs(urls).Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	out := make([]tabmodel.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, tabmodel.Cookie{
			Name:           c.Name,
			Value:          c.Value,
			Domain:         c.Domain,
			Path:           c.Path,
			Secure:         c.Secure,
			HTTPOnly:       c.HTTPOnly,
			SameSite:       c.SameSite.String(),
			ExpirationDate: c.Expires,
		})
	}
	return out, nil
}

// SetCookies writes cookies into the browser-wide cookie store. Used by
// the restore flow before the tab exists, so the first request already
// carries the session. Failures for individual cookies are counted, not
// fatal.
func (tm *TabManager) SetCookies(cookies []tabmodel.Cookie) (int, error) {
	if tm.browserCtx == nil {
		return 0, fmt.Errorf("no browser connection")
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			URL:      c.URL(),
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.ExpirationDate > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.ExpirationDate), 0))
			p.Expires = &exp
		}
		switch c.SameSite {
		case "strict", "Strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax", "Lax":
			p.SameSite = network.CookieSameSiteLax
		case "none", "None":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return 0, nil
	}

	tCtx, tCancel := context.WithTimeout(tm.browserCtx, 10*time.Second)
	defer tCancel()

	if err := chromedp.Run(tCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return storage.SetCookies(params).Do(ctx)
		}),
	); err != nil {
		return 0, fmt.Errorf("set cookies: %w", err)
	}
	return len(params), nil
}

// ActivateTab brings a tab to the foreground.
func (tm *TabManager) ActivateTab(tabID string) error {
	a, err := tm.Agent(tabID)
	if err != nil {
		return err
	}
	return chromedp.Run(a.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

// WaitLoaded blocks until the tab reports document.readyState complete
// or the timeout passes. Restoration proceeds either way.
func (tm *TabManager) WaitLoaded(tabID string, timeout time.Duration) {
	a, err := tm.Agent(tabID)
	if err != nil {
		return
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var state string
		evalCtx, evalCancel := context.WithTimeout(a.ctx, time.Second)
		err := chromedp.Run(evalCtx, chromedp.Evaluate("document.readyState", &state))
		evalCancel()
		if err == nil && state == "complete" {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	slog.Debug("load-complete wait expired", "tabId", tabID, "timeout", timeout)
}

// Shutdown stops every agent.
func (tm *TabManager) Shutdown() {
	tm.mu.Lock()
	agents := tm.agents
	tm.agents = make(map[string]*Agent)
	tm.mu.Unlock()

	for id, a := range agents {
		tm.bridge.DetachTab(id)
		a.stop()
	}
}
