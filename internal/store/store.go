// Package store persists the three shared state keys (tabs, settings,
// tokens) as JSON files under the state dir and lets other parts of the
// process watch them for changes.
//
// Memory is authoritative: a failed file write is logged and retried on
// the next write of the same key, never surfaced as a dropped update.
// Only the background engine mutates the store; HTTP-facing code reads
// or asks the engine for mutations.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// Key names the three logical entries.
type Key string

const (
	KeyTabs     Key = "tabs"
	KeySettings Key = "settings"
	KeyTokens   Key = "tokens"
)

// Tokens are the opaque credentials for the remote archive store.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Store struct {
	dir string

	mu       sync.RWMutex
	tabs     map[string]*tabmodel.TabSnapshot
	settings rules.Setting
	tokens   Tokens
	dirty    map[Key]bool

	watchMu  sync.Mutex
	watchers map[Key][]chan Key
}

// Open loads durable keys from disk. The tabs key is session-scoped: it
// always starts empty and the previous session's file is discarded.
// Missing or malformed settings self-heal to the defaults.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		tabs:     make(map[string]*tabmodel.TabSnapshot),
		settings: rules.Default(),
		tokens:   Tokens{},
		dirty:    make(map[Key]bool),
		watchers: make(map[Key][]chan Key),
	}

	if err := s.readFile(KeySettings, &s.settings); err != nil {
		slog.Warn("settings missing or malformed, writing defaults", "err", err)
		s.settings = rules.Default()
		s.persist(KeySettings)
	}
	if err := s.settings.Validate(); err != nil {
		slog.Warn("stored settings invalid, writing defaults", "err", err)
		s.settings = rules.Default()
		s.persist(KeySettings)
	}

	if err := s.readFile(KeyTokens, &s.tokens); err != nil {
		s.tokens = Tokens{}
	}

	// Previous session's tab map is stale by definition.
	_ = os.Remove(s.path(KeyTabs))

	return s, nil
}

func (s *Store) path(key Key) string {
	return filepath.Join(s.dir, string(key)+".json")
}

func (s *Store) readFile(key Key, v any) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// persist writes one key to disk. Caller holds s.mu (or is Open).
func (s *Store) persist(key Key) {
	var (
		v   any
		err error
	)
	switch key {
	case KeyTabs:
		v = s.tabs
	case KeySettings:
		v = s.settings
	case KeyTokens:
		v = s.tokens
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("persist: marshal", "key", key, "err", err)
		return
	}
	if err := os.WriteFile(s.path(key), data, 0644); err != nil {
		// Memory stays authoritative; retried on the next write.
		s.dirty[key] = true
		slog.Warn("persist failed, will retry on next write", "key", key, "err", err)
		return
	}
	delete(s.dirty, key)
}

// flushDirty retries any previously failed writes. Caller holds s.mu.
func (s *Store) flushDirty() {
	for key := range s.dirty {
		s.persist(key)
	}
}

// Tabs returns a copy of the tab map.
func (s *Store) Tabs() map[string]*tabmodel.TabSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*tabmodel.TabSnapshot, len(s.tabs))
	for id, t := range s.tabs {
		c := *t
		out[id] = &c
	}
	return out
}

func (s *Store) Tab(id string) (*tabmodel.TabSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tabs[id]
	if !ok {
		return nil, false
	}
	c := *t
	return &c, true
}

// PutTab inserts or replaces one tab snapshot. Entries with an empty id
// are dropped silently per the registry contract.
func (s *Store) PutTab(t *tabmodel.TabSnapshot) {
	if t == nil || t.ID == "" {
		return
	}
	s.mu.Lock()
	c := *t
	s.tabs[t.ID] = &c
	s.flushDirty()
	s.persist(KeyTabs)
	s.mu.Unlock()
	s.notify(KeyTabs)
}

func (s *Store) DeleteTab(id string) {
	s.mu.Lock()
	_, existed := s.tabs[id]
	delete(s.tabs, id)
	if existed {
		s.flushDirty()
		s.persist(KeyTabs)
	}
	s.mu.Unlock()
	if existed {
		s.notify(KeyTabs)
	}
}

// ReplaceTabs swaps the whole tab map, used by the startup rebuild.
func (s *Store) ReplaceTabs(tabs map[string]*tabmodel.TabSnapshot) {
	s.mu.Lock()
	s.tabs = make(map[string]*tabmodel.TabSnapshot, len(tabs))
	for id, t := range tabs {
		if id == "" || t == nil {
			continue
		}
		c := *t
		s.tabs[id] = &c
	}
	s.flushDirty()
	s.persist(KeyTabs)
	s.mu.Unlock()
	s.notify(KeyTabs)
}

func (s *Store) Settings() rules.Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Store) PutSettings(set rules.Setting) error {
	if err := set.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = set
	s.flushDirty()
	s.persist(KeySettings)
	s.mu.Unlock()
	s.notify(KeySettings)
	return nil
}

func (s *Store) Tokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *Store) PutTokens(t Tokens) {
	s.mu.Lock()
	s.tokens = t
	s.flushDirty()
	s.persist(KeyTokens)
	s.mu.Unlock()
	s.notify(KeyTokens)
}

// Watch returns a channel that receives the key after each successful
// mutation. Notifications coalesce: a slow reader sees at least one
// notification for a burst of writes, not necessarily all of them.
func (s *Store) Watch(key Key) <-chan Key {
	ch := make(chan Key, 1)
	s.watchMu.Lock()
	s.watchers[key] = append(s.watchers[key], ch)
	s.watchMu.Unlock()
	return ch
}

func (s *Store) notify(key Key) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers[key] {
		select {
		case ch <- key:
		default:
		}
	}
}
