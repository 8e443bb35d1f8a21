package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/groupstore"
)

var version = "dev"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func jwtSecret() []byte {
	if v := os.Getenv("GROUPSTORE_SECRET"); v != "" {
		return []byte(v)
	}
	// An ephemeral secret invalidates all tokens on restart; clients
	// recover through their register/refresh flow.
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	slog.Warn("GROUPSTORE_SECRET not set, using ephemeral secret", "secret", hex.EncodeToString(b[:4])+"...")
	return b
}

func main() {
	bind := envOr("GROUPSTORE_BIND", "127.0.0.1")
	port := envOr("GROUPSTORE_PORT", "9869")
	dbPath := envOr("GROUPSTORE_DB", filepath.Join(homeDir(), ".alttab", "groups.db"))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		slog.Error("cannot create data dir", "err", err)
		os.Exit(1)
	}

	st, err := groupstore.NewStore(dbPath)
	if err != nil {
		slog.Error("open group store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	auth := groupstore.NewAuth(jwtSecret(), 15*time.Minute)
	srv := groupstore.NewServer(st, auth, groupstore.ServerOptions{})

	httpSrv := &http.Server{
		Addr:              bind + ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutCtx)
	}()

	slog.Info("group store up", "version", version, "addr", httpSrv.Addr, "db", dbPath)
	if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server", "err", err)
		os.Exit(1)
	}
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}
