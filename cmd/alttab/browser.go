package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/chromedp/chromedp"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/config"
)

func setupAllocator(cfg *config.RuntimeConfig) (context.Context, context.CancelFunc) {
	if cfg.CdpURL != "" {
		slog.Info("connecting to Chrome", "url", cfg.CdpURL)
		return chromedp.NewRemoteAllocator(context.Background(), cfg.CdpURL)
	}

	if err := os.MkdirAll(cfg.ProfileDir, 0755); err != nil {
		slog.Error("cannot create profile dir", "err", err)
		os.Exit(1)
	}

	for _, lockName := range []string{"SingletonLock", "SingletonSocket", "SingletonCookie"} {
		lockPath := fmt.Sprintf("%s/%s", cfg.ProfileDir, lockName)
		if err := os.Remove(lockPath); err == nil {
			slog.Warn("removed stale lock", "file", lockName)
		}
	}

	slog.Info("launching Chrome", "profile", cfg.ProfileDir, "headless", cfg.Headless)
	return chromedp.NewExecAllocator(context.Background(), buildChromeOpts(cfg)...)
}

func buildChromeOpts(cfg *config.RuntimeConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.UserDataDir(cfg.ProfileDir),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,

		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// Backgrounded renderers must keep running: the idle
		// strategies evaluate JS in unfocused tabs.
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
	}

	if cfg.ChromeBinary != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromeBinary))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

func startChrome(allocCtx context.Context) (context.Context, context.CancelFunc, error) {
	bCtx, bCancel := chromedp.NewContext(allocCtx)

	startCtx, startDone := context.WithTimeout(context.Background(), chromeStartTimeout)
	defer startDone()

	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(bCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			bCancel()
			return nil, nil, err
		}
		return bCtx, bCancel, nil
	case <-startCtx.Done():
		bCancel()
		return nil, nil, fmt.Errorf("timed out after %s", chromeStartTimeout)
	}
}
