package groupstore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/archive"
)

// AliasTTL is the share-alias validity window.
const AliasTTL = 10 * time.Minute

// Server wires the store and auth into the REST API the daemon's
// archive client consumes.
type Server struct {
	store    *Store
	auth     *Auth
	aliasTTL time.Duration
	now      func() time.Time
}

type ServerOptions struct {
	AliasTTL time.Duration
	Now      func() time.Time // test hook
}

func NewServer(st *Store, auth *Auth, opts ServerOptions) *Server {
	if opts.AliasTTL <= 0 {
		opts.AliasTTL = AliasTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{store: st, auth: auth, aliasTTL: opts.AliasTTL, now: opts.Now}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Post("/auth/token", s.handleRegister)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Get("/tab-group/alias/{path}", s.handleResolveAlias)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/tab-group", s.handleCreateGroup)
		r.Get("/tab-group", s.handleListGroups)
		r.Get("/tab-group/{id}", s.handleGetGroup)
		r.Delete("/tab-group", s.handleDeleteGroup)
		r.Post("/tab-group/qr-code", s.handleCreateAlias)
	})

	return r
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// handleRegister issues a token pair for a new anonymous device.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.issueTokens(w, uuid.NewString())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken required")
		return
	}

	device, err := s.store.ConsumeRefreshToken(body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	s.issueTokens(w, device)
}

func (s *Server) issueTokens(w http.ResponseWriter, deviceID string) {
	access, err := s.auth.IssueAccess(deviceID)
	if err != nil {
		slog.Error("issue access token", "err", err)
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	refresh := uuid.NewString()
	if err := s.store.SaveRefreshToken(refresh, deviceID); err != nil {
		slog.Error("save refresh token", "err", err)
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var group archive.ArchivedGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeError(w, http.StatusBadRequest, "malformed group")
		return
	}
	if group.Secret == "" || group.Salt == "" || len(group.BrowserTabInfos) == 0 {
		writeError(w, http.StatusBadRequest, "secret, salt and tabs required")
		return
	}

	stored, err := s.store.CreateGroup(deviceID(r.Context()), &group)
	if err != nil {
		slog.Error("create group", "err", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	slog.Info("group archived", "id", stored.ID, "tabs", len(stored.BrowserTabInfos))
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups(deviceID(r.Context()))
	if err != nil {
		slog.Error("list groups", "err", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.store.GetGroup(deviceID(r.Context()), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNoGroup) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		slog.Error("get group", "err", err)
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	err := s.store.DeleteGroup(deviceID(r.Context()), body.ID)
	if errors.Is(err, ErrNoGroup) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		slog.Error("delete group", "err", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": body.ID})
}

// handleCreateAlias mints the time-boxed path a QR code encodes.
func (s *Server) handleCreateAlias(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	expiresAt := s.now().Add(s.aliasTTL)
	path := strings.ReplaceAll(uuid.NewString(), "-", "")
	err := s.store.CreateAlias(deviceID(r.Context()), body.ID, path, expiresAt)
	if errors.Is(err, ErrNoGroup) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		slog.Error("create alias", "err", err)
		writeError(w, http.StatusInternalServerError, "alias failed")
		return
	}
	writeJSON(w, http.StatusOK, archive.ShareAlias{Path: path, ExpiresAt: expiresAt.UnixMilli()})
}

// handleResolveAlias serves a live alias without auth so the receiving
// device can restore before registering. Expired aliases are a 404.
func (s *Server) handleResolveAlias(w http.ResponseWriter, r *http.Request) {
	group, err := s.store.ResolveAlias(chi.URLParam(r, "path"), s.now())
	if errors.Is(err, ErrNoGroup) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		slog.Error("resolve alias", "err", err)
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
