package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/archive"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/bridge"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/config"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/handlers"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/registry"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/store"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

var version = "dev"

const chromeStartTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("alttab %s\n", version)
		os.Exit(0)
	}

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		slog.Error("cannot create state dir", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.StateDir)
	if err != nil {
		slog.Error("open store", "err", err)
		os.Exit(1)
	}

	allocCtx, allocCancel := setupAllocator(cfg)
	defer allocCancel()

	browserCtx, browserCancel, err := startChrome(allocCtx)
	if err != nil {
		slog.Error("Chrome failed to start", "err", err, "cdp", cfg.CdpURL)
		allocCancel()
		os.Exit(1)
	}
	defer browserCancel()

	br := bridge.New(cfg.BridgeTimeout)
	tm := bridge.NewTabManager(browserCtx, br)
	hub := bridge.NewPopupHub(br)

	engine := registry.NewEngine(st, br, &tabPlatform{tm: tm}, registry.Options{
		RefreshInterval: cfg.RefreshInterval,
		SweepInterval:   cfg.SweepInterval,
	})

	remote := archive.NewClient(cfg.ArchiveURL, st)
	pipe := archive.NewPipeline(tm, br, remote, archive.Options{
		Device:      deviceName(),
		LoadTimeout: cfg.RestoreTimeout,
	})
	engine.SetArchiver(pipe)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if err := watchTargets(browserCtx, engine); err != nil {
		slog.Error("target discovery", "err", err)
		os.Exit(1)
	}
	if err := engine.Start(runCtx); err != nil {
		slog.Error("engine start", "err", err)
		os.Exit(1)
	}
	go forwardTabEvents(runCtx, st, br)

	mux := http.NewServeMux()
	h := handlers.New(cfg, st, engine, pipe, remote, hub)

	var srv *http.Server
	shutdownOnce := &sync.Once{}
	doShutdown := func() {
		shutdownOnce.Do(func() {
			slog.Info("shutting down")
			engine.Stop()
			runCancel()
			tm.Shutdown()

			shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)

			browserCancel()
			allocCancel()
			slog.Info("chrome closed")
		})
	}

	h.RegisterRoutes(mux, doShutdown)

	handler := handlers.LoggingMiddleware(
		handlers.RequestIDMiddleware(
			handlers.CorsMiddleware(
				handlers.AuthMiddleware(cfg, mux))))

	srv = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	setupSignalHandler(doShutdown, func() {
		runCancel()
		browserCancel()
		allocCancel()
	})

	slog.Info("alttab daemon up",
		"port", cfg.Port,
		"cdp", cfg.CdpURL,
		"archive", cfg.ArchiveURL,
		"token", config.MaskToken(cfg.Token),
	)

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server", "err", err)
		os.Exit(1)
	}
}

// forwardTabEvents pushes a refresh signal to connected popups whenever
// the tab map changes, so they refetch /tabs instead of polling.
func forwardTabEvents(ctx context.Context, st *store.Store, br *bridge.Bridge) {
	ch := st.Watch(store.KeyTabs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			br.Notify(bridge.ToPopup(), bridge.TabsChangedSignal{UpdatedAt: tabmodel.NowMillis()})
		}
	}
}

func deviceName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "alttab"
}

func setupSignalHandler(shutdownFn func(), forceFn func()) {
	go func() {
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		go shutdownFn()
		<-sig
		slog.Warn("force shutdown requested")
		forceFn()
		os.Exit(130)
	}()
}
