package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// reportBinding is the CDP binding injected pages call to signal the
// agent (visibility transitions, idle-detector state changes).
const reportBinding = "__alttab_report"

// Agent is the daemon-side stand-in for a page's content-script context.
// It owns the tab's chromedp context and answers bridge requests by
// evaluating JS in the page.
type Agent struct {
	tabID  string
	ctx    context.Context
	cancel context.CancelFunc
	bridge *Bridge

	mu              sync.Mutex
	bindingInstalled bool
	onBinding       func(payload string)
	onRefresh       func(ctx context.Context, req RefreshIntervalRequest) error
}

func newAgent(tabID string, ctx context.Context, cancel context.CancelFunc, b *Bridge) *Agent {
	return &Agent{tabID: tabID, ctx: ctx, cancel: cancel, bridge: b}
}

func (a *Agent) TabID() string { return a.tabID }

func (a *Agent) stop() {
	a.mu.Lock()
	a.onBinding = nil
	a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Handle is the agent's bridge handler: the closed message set makes
// this switch exhaustive.
func (a *Agent) Handle(ctx context.Context, p Payload) (Payload, error) {
	switch req := p.(type) {
	case GetTabInfoRequest:
		return a.captureInfo(ctx)
	case RestoreStorageRequest:
		return a.restoreStorage(ctx, req)
	case RefreshIntervalRequest:
		a.mu.Lock()
		fn := a.onRefresh
		a.mu.Unlock()
		if fn == nil {
			return Ack{}, nil
		}
		if err := fn(ctx, req); err != nil {
			return nil, err
		}
		return Ack{}, nil
	default:
		return nil, fmt.Errorf("tab agent: unexpected message %s", p.Kind())
	}
}

// OnRefreshInterval installs the engine's strategy switchboard for this
// tab.
func (a *Agent) OnRefreshInterval(fn func(ctx context.Context, req RefreshIntervalRequest) error) {
	a.mu.Lock()
	a.onRefresh = fn
	a.mu.Unlock()
}

// ReportIdle sends the fire-and-forget idle signal to the background.
func (a *Agent) ReportIdle() {
	a.bridge.Notify(ToBackground(), RefreshTabSignal{
		TabID:      a.tabID,
		ReportedAt: tabmodel.NowMillis(),
	})
}

const captureScript = `(() => {
	const dump = (s) => {
		const o = {};
		try {
			for (let i = 0; i < s.length; i++) {
				const k = s.key(i);
				o[k] = s.getItem(k);
			}
		} catch (e) {}
		return JSON.stringify(o);
	};
	return {
		session: dump(sessionStorage),
		local: dump(localStorage),
		scroll: { x: Math.round(window.scrollX), y: Math.round(window.scrollY) },
	};
})()`

func (a *Agent) captureInfo(ctx context.Context) (Payload, error) {
	evalCtx, cancel := mergeDeadline(a.ctx, ctx)
	defer cancel()

	var out TabInfoResult
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(captureScript, &out)); err != nil {
		return nil, fmt.Errorf("capture tab info: %w", err)
	}
	return out, nil
}

func (a *Agent) restoreStorage(ctx context.Context, req RestoreStorageRequest) (Payload, error) {
	sessionArg, err := json.Marshal(req.Session)
	if err != nil {
		return nil, fmt.Errorf("encode session storage: %w", err)
	}
	localArg, err := json.Marshal(req.Local)
	if err != nil {
		return nil, fmt.Errorf("encode local storage: %w", err)
	}

	script := fmt.Sprintf(`(() => {
	const fill = (s, data) => {
		if (!data) return;
		try {
			const o = JSON.parse(data);
			for (const k in o) s.setItem(k, o[k]);
		} catch (e) {}
	};
	fill(sessionStorage, %s);
	fill(localStorage, %s);
	window.scrollTo(%d, %d);
	return true;
})()`, sessionArg, localArg, req.Scroll.X, req.Scroll.Y)

	evalCtx, cancel := mergeDeadline(a.ctx, ctx)
	defer cancel()

	var ok bool
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return nil, fmt.Errorf("restore storage: %w", err)
	}
	return Ack{}, nil
}

// Eval runs an expression in the page. Strategies use this for focus
// and visibility probes.
func (a *Agent) Eval(ctx context.Context, expr string, out any) error {
	evalCtx, cancel := mergeDeadline(a.ctx, ctx)
	defer cancel()
	return chromedp.Run(evalCtx, chromedp.Evaluate(expr, out))
}

// InjectScript installs JS evaluated on every new document in this tab.
// Returns the script id for later removal.
func (a *Agent) InjectScript(script string) (page.ScriptIdentifier, error) {
	var id page.ScriptIdentifier
	err := chromedp.Run(a.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("inject script: %w", err)
	}
	return id, nil
}

func (a *Agent) RemoveScript(id page.ScriptIdentifier) {
	if id == "" {
		return
	}
	if err := chromedp.Run(a.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.RemoveScriptToEvaluateOnNewDocument(id).Do(ctx)
	})); err != nil {
		slog.Debug("remove injected script", "tabId", a.tabID, "err", err)
	}
}

// ListenBinding routes calls to the report binding into fn. The CDP
// listener lives for the tab context's lifetime; fn is swapped (or
// cleared) on strategy changes without reinstalling the binding.
func (a *Agent) ListenBinding(fn func(payload string)) error {
	a.mu.Lock()
	installed := a.bindingInstalled
	a.onBinding = fn
	a.bindingInstalled = true
	a.mu.Unlock()

	if installed {
		return nil
	}

	if err := chromedp.Run(a.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.AddBinding(reportBinding).Do(ctx)
	})); err != nil {
		return fmt.Errorf("add binding: %w", err)
	}

	chromedp.ListenTarget(a.ctx, func(ev any) {
		call, ok := ev.(*runtime.EventBindingCalled)
		if !ok || call.Name != reportBinding {
			return
		}
		a.mu.Lock()
		handler := a.onBinding
		a.mu.Unlock()
		if handler != nil {
			handler(call.Payload)
		}
	})
	return nil
}

// ClearBinding detaches the current binding consumer; page calls become
// no-ops until a strategy installs a new one.
func (a *Agent) ClearBinding() {
	a.mu.Lock()
	a.onBinding = nil
	a.mu.Unlock()
}

// mergeDeadline runs against the tab context but honors the caller's
// cancellation/deadline.
func mergeDeadline(tabCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(callCtx, cancel)
	return ctx, func() { stop(); cancel() }
}
