// Package handlers provides the HTTP surface popup clients use: tab
// listing, settings, the archive/restore operations, and the events
// WebSocket. All mutations go through the engine or the pipeline; the
// handlers themselves never write the store's tab map.
package handlers

import (
	"context"
	"net/http"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/archive"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/bridge"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/config"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/registry"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/store"
)

// ArchiveService is the pipeline slice the handlers call.
type ArchiveService interface {
	Archive(ctx context.Context, tabIDs []string, pinCode string) (*archive.ArchivedGroup, error)
	Restore(ctx context.Context, group *archive.ArchivedGroup, pinCode string) (int, error)
	GenerateShareLink(ctx context.Context, groupID string) (*archive.ShareAlias, error)
}

// EngineAPI is the registry slice the handlers call.
type EngineAPI interface {
	MarkForArchive(tabIDs []string, pinCode string)
	UnmarkForArchive(tabIDs []string)
	Intervals() map[string]registry.IntervalEntry
}

type Handlers struct {
	Config  *config.RuntimeConfig
	Store   *store.Store
	Engine  EngineAPI
	Archive ArchiveService
	Remote  archive.Remote
	Hub     *bridge.PopupHub
}

func New(cfg *config.RuntimeConfig, st *store.Store, engine EngineAPI, svc ArchiveService, remote archive.Remote, hub *bridge.PopupHub) *Handlers {
	return &Handlers{
		Config:  cfg,
		Store:   st,
		Engine:  engine,
		Archive: svc,
		Remote:  remote,
		Hub:     hub,
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux, doShutdown func()) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /tabs", h.HandleTabs)
	mux.HandleFunc("GET /settings", h.HandleGetSettings)
	mux.HandleFunc("PUT /settings", h.HandlePutSettings)
	mux.HandleFunc("POST /archive", h.HandleArchive)
	mux.HandleFunc("POST /archive/select", h.HandleArchiveSelect)
	mux.HandleFunc("DELETE /archive/select", h.HandleArchiveUnselect)
	mux.HandleFunc("POST /restore", h.HandleRestore)
	mux.HandleFunc("GET /groups", h.HandleGroups)
	mux.HandleFunc("DELETE /groups", h.HandleDeleteGroup)
	mux.HandleFunc("POST /share-link", h.HandleShareLink)

	if h.Hub != nil {
		mux.Handle("GET /events", h.Hub)
	}
	if doShutdown != nil {
		mux.HandleFunc("POST /shutdown", h.HandleShutdown(doShutdown))
	}
}
