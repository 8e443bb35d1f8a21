package handlers

import (
	"net/http"
	"sort"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/web"
)

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, 200, map[string]any{
		"status": "ok",
		"tabs":   len(h.Store.Tabs()),
		"cdp":    h.Config.CdpURL,
	})
}

// HandleTabs returns the registry's view of every tracked tab plus the
// strategy bookkeeping for each.
func (h *Handlers) HandleTabs(w http.ResponseWriter, r *http.Request) {
	intervals := h.Engine.Intervals()

	tabs := make([]map[string]any, 0)
	for id, t := range h.Store.Tabs() {
		entry := map[string]any{
			"id":             t.ID,
			"title":          t.Title,
			"url":            t.URL,
			"windowId":       t.WindowID,
			"tabIndex":       t.TabIndex,
			"groupId":        t.GroupID,
			"isPinned":       t.IsPinned,
			"isAudible":      t.IsAudible,
			"isUnloaded":     t.IsUnloaded,
			"lastActivityAt": t.LastActivityAt,
		}
		if iv, ok := intervals[id]; ok {
			entry["usesContentScriptStrategy"] = iv.UsesContentScriptStrategy
		}
		tabs = append(tabs, entry)
	}
	sort.Slice(tabs, func(i, j int) bool {
		return tabs[i]["id"].(string) < tabs[j]["id"].(string)
	})
	web.JSON(w, 200, map[string]any{"tabs": tabs})
}

func (h *Handlers) HandleShutdown(doShutdown func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.JSON(w, 200, map[string]string{"status": "shutting down"})
		go doShutdown()
	}
}
