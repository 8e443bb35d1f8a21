package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/archive"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/pin"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/web"
)

type archiveRequest struct {
	TabIDs []string `json:"tabIds"`
	Pin    string   `json:"pin"`
}

// HandleArchive runs the pipeline immediately: capture, encrypt,
// submit, close.
func (h *Handlers) HandleArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.TabIDs) == 0 {
		web.ErrorCode(w, 400, "bad_request", "tabIds and pin required")
		return
	}
	if err := pin.Validate(req.Pin); err != nil {
		web.ErrorCode(w, 422, "invalid_pin", err.Error())
		return
	}

	group, err := h.Archive.Archive(r.Context(), req.TabIDs, req.Pin)
	if err != nil {
		archiveError(w, err)
		return
	}
	web.JSON(w, 200, group)
}

// HandleArchiveSelect defers archiving to the sweep: the tabs are
// archived (then closed) when they become idle, instead of right away.
func (h *Handlers) HandleArchiveSelect(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.TabIDs) == 0 {
		web.ErrorCode(w, 400, "bad_request", "tabIds and pin required")
		return
	}
	if err := pin.Validate(req.Pin); err != nil {
		web.ErrorCode(w, 422, "invalid_pin", err.Error())
		return
	}
	h.Engine.MarkForArchive(req.TabIDs, req.Pin)
	web.JSON(w, 200, map[string]any{"selected": len(req.TabIDs)})
}

func (h *Handlers) HandleArchiveUnselect(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.TabIDs) == 0 {
		web.ErrorCode(w, 400, "bad_request", "tabIds required")
		return
	}
	h.Engine.UnmarkForArchive(req.TabIDs)
	web.JSON(w, 200, map[string]any{"unselected": len(req.TabIDs)})
}

type restoreRequest struct {
	GroupID string `json:"groupId,omitempty"`
	Alias   string `json:"alias,omitempty"`
	Pin     string `json:"pin"`
}

// HandleRestore fetches a group by id (owner path) or share alias
// (receiving device) and replays it into the browser.
func (h *Handlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.ErrorCode(w, 400, "bad_request", "malformed request")
		return
	}
	if (req.GroupID == "") == (req.Alias == "") {
		web.ErrorCode(w, 400, "bad_request", "exactly one of groupId or alias required")
		return
	}

	var (
		group *archive.ArchivedGroup
		err   error
	)
	if req.Alias != "" {
		group, err = h.Remote.GetByAlias(r.Context(), req.Alias)
	} else {
		group, err = h.Remote.GetGroup(r.Context(), req.GroupID)
	}
	if err != nil {
		archiveError(w, err)
		return
	}

	restored, err := h.Archive.Restore(r.Context(), group, req.Pin)
	if err != nil {
		archiveError(w, err)
		return
	}
	web.JSON(w, 200, map[string]any{
		"restored": restored,
		"of":       len(group.BrowserTabInfos),
	})
}

func (h *Handlers) HandleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Remote.ListGroups(r.Context())
	if err != nil {
		archiveError(w, err)
		return
	}
	web.JSON(w, 200, map[string]any{"groups": groups})
}

func (h *Handlers) HandleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		web.ErrorCode(w, 400, "bad_request", "id required")
		return
	}
	if err := h.Remote.DeleteGroup(r.Context(), req.ID); err != nil {
		archiveError(w, err)
		return
	}
	web.JSON(w, 200, map[string]string{"id": req.ID})
}

func (h *Handlers) HandleShareLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		web.ErrorCode(w, 400, "bad_request", "id required")
		return
	}
	alias, err := h.Archive.GenerateShareLink(r.Context(), req.ID)
	if err != nil {
		archiveError(w, err)
		return
	}
	web.JSON(w, 200, alias)
}

// archiveError maps the pipeline's error taxonomy onto status codes:
// wrong PIN and store-unavailable are the two user-visible classes.
func archiveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, archive.ErrBadPin), errors.Is(err, pin.ErrInvalidPin):
		web.ErrorCode(w, 403, "bad_pin", "incorrect pin")
	case errors.Is(err, archive.ErrNotFound):
		web.ErrorCode(w, 404, "not_found", "archive group not found")
	case errors.Is(err, archive.ErrUnavailable):
		web.ErrorCode(w, 502, "archive_unavailable", "archive store unavailable")
	default:
		web.Error(w, 500, err)
	}
}
