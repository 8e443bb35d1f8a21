package strategy

import (
	"context"
	"fmt"
	"time"
)

func init() {
	Register("idle", func() Strategy { return &OSIdle{} })
}

// OSIdle uses the page IdleDetector API to observe OS-level idleness
// with a threshold equal to the refresh interval. When the platform
// denies the permission the page reports nothing and the tab relies on
// the periodic sweep alone; no error is surfaced.
type OSIdle struct{}

func (OSIdle) Name() string            { return "idle" }
func (OSIdle) UsesContentScript() bool { return true }

// IdleDetector rejects thresholds under a minute.
const minIdleThreshold = time.Minute

const osIdleHookTmpl = `(async () => {
	if (window.__alttab_os_idle) return true;
	window.__alttab_os_idle = true;
	try {
		if (typeof IdleDetector === "undefined") return false;
		if ((await IdleDetector.requestPermission()) !== "granted") return false;
		const detector = new IdleDetector();
		detector.addEventListener("change", () => {
			if (detector.userState === "idle" && window.__alttab_report) {
				window.__alttab_report("idle");
			}
		});
		window.__alttab_idle_abort = new AbortController();
		await detector.start({ threshold: %d, signal: window.__alttab_idle_abort.signal });
		return true;
	} catch (e) {
		return false;
	}
})()`

const osIdleAbort = `(() => {
	if (window.__alttab_idle_abort) {
		try { window.__alttab_idle_abort.abort(); } catch (e) {}
		window.__alttab_idle_abort = null;
	}
	window.__alttab_os_idle = false;
	return true;
})()`

func (OSIdle) Install(ctx context.Context, tab Tab, interval time.Duration) (Teardown, error) {
	if interval < minIdleThreshold {
		interval = minIdleThreshold
	}
	hook := fmt.Sprintf(osIdleHookTmpl, interval.Milliseconds())

	if err := tab.ListenBinding(func(payload string) {
		if payload == "idle" {
			tab.ReportIdle()
		}
	}); err != nil {
		return nil, err
	}

	scriptID, err := tab.InjectScript(hook)
	if err != nil {
		tab.ClearBinding()
		return nil, err
	}

	// Arm the current document too. A false result means the detector
	// is unavailable or the permission was denied; both degrade to
	// sweep-only silently.
	evalCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var armed bool
	_ = tab.Eval(evalCtx, hook, &armed)

	return func() {
		abortCtx, abortCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer abortCancel()
		var aborted bool
		_ = tab.Eval(abortCtx, osIdleAbort, &aborted)
		tab.RemoveScript(scriptID)
		tab.ClearBinding()
	}, nil
}
