// Package tabmodel defines the canonical representation of an open tab:
// the registry-owned TabSnapshot and its FullTabSnapshot variant carrying
// cookies and page storage for the archive pipeline.
package tabmodel

import (
	"time"

	"github.com/chromedp/cdproto/target"
)

// TabSnapshot is the registry's view of one open tab. LastActivityAt is
// epoch milliseconds and only ever advanced by activity-qualifying events.
type TabSnapshot struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	FaviconURL     string `json:"faviconUrl"`
	URL            string `json:"url"`
	WindowID       string `json:"windowId"`
	TabIndex       int    `json:"tabIndex"`
	GroupID        string `json:"groupId"`
	IsPinned       bool   `json:"isPinned"`
	IsAudible      bool   `json:"isAudible"`
	IsUnloaded     bool   `json:"isUnloaded"`
	LastActivityAt int64  `json:"lastActivityAt"`
}

// ScrollPosition is a page scroll offset in CSS pixels.
type ScrollPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// StorageSnapshot holds serialized page state. In an archived group each
// field is an AES-GCM ciphertext; in transit over the bridge it is the
// plain JSON serialization.
type StorageSnapshot struct {
	Session string `json:"session"`
	Local   string `json:"local"`
	Cookies string `json:"cookies"`
}

// FullTabSnapshot extends TabSnapshot with everything needed to recreate
// the tab elsewhere. Built on demand for archiving, never persisted
// outside the archive flow.
type FullTabSnapshot struct {
	TabSnapshot
	Device         string          `json:"device"`
	IsIncognito    bool            `json:"isIncognito"`
	ScrollPosition ScrollPosition  `json:"scrollPosition"`
	Storage        StorageSnapshot `json:"storage"`
}

// NowMillis is the registry's clock for LastActivityAt stamps.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FromTarget normalizes a CDP target into a TabSnapshot. Returns nil for
// targets without a usable identity; callers drop those silently.
func FromTarget(t *target.Info) *TabSnapshot {
	if t == nil || t.TargetID == "" {
		return nil
	}
	return &TabSnapshot{
		ID:       string(t.TargetID),
		Title:    t.Title,
		URL:      t.URL,
		WindowID: string(t.BrowserContextID),
		// Attached is a session-level signal, the closest CDP offers
		// for a discarded tab; it flips to loaded once an agent
		// attaches and stays there.
		IsUnloaded:     !t.Attached,
		LastActivityAt: NowMillis(),
	}
}

// IsPage reports whether a target is a regular page (not devtools,
// workers, extensions).
func IsPage(t *target.Info) bool {
	return t != nil && t.Type == "page"
}
