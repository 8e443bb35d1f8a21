// Package groupstore is the reference archive server: the REST API the
// daemon's archive client consumes, backed by sqlite. Groups are scoped
// to the device that created them; share aliases are the only
// unauthenticated read path and expire after a short window.
package groupstore

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/archive"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

//go:embed schema.sql
var schema string

var (
	ErrNoGroup    = fmt.Errorf("group not found")
	ErrBadRefresh = fmt.Errorf("unknown refresh token")
)

// Store handles all database operations.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateGroup stores a new group under the owning device and returns it
// with its assigned id.
func (s *Store) CreateGroup(deviceID string, g *archive.ArchivedGroup) (*archive.ArchivedGroup, error) {
	tabs, err := json.Marshal(g.BrowserTabInfos)
	if err != nil {
		return nil, fmt.Errorf("encode tabs: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		"INSERT INTO tab_groups (id, device_id, secret, salt, tabs, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, deviceID, g.Secret, g.Salt, string(tabs), time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	stored := *g
	stored.ID = id
	return &stored, nil
}

// ListGroups returns every group owned by the device.
func (s *Store) ListGroups(deviceID string) ([]archive.ArchivedGroup, error) {
	rows, err := s.db.Query(
		"SELECT id, secret, salt, tabs FROM tab_groups WHERE device_id = ? ORDER BY created_at DESC",
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]archive.ArchivedGroup, 0)
	for rows.Next() {
		g, err := scanGroup(rows.Scan)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// GetGroup returns one group, owner-scoped: another device's group is
// indistinguishable from a missing one.
func (s *Store) GetGroup(deviceID, id string) (*archive.ArchivedGroup, error) {
	row := s.db.QueryRow(
		"SELECT id, secret, salt, tabs FROM tab_groups WHERE id = ? AND device_id = ?",
		id, deviceID,
	)
	g, err := scanGroup(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNoGroup
	}
	return g, err
}

func (s *Store) DeleteGroup(deviceID, id string) error {
	res, err := s.db.Exec("DELETE FROM tab_groups WHERE id = ? AND device_id = ?", id, deviceID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoGroup
	}
	return nil
}

// CreateAlias mints a share alias for an owned group.
func (s *Store) CreateAlias(deviceID, groupID, path string, expiresAt time.Time) error {
	if _, err := s.GetGroup(deviceID, groupID); err != nil {
		return err
	}
	if _, err := s.db.Exec(
		"INSERT INTO aliases (path, group_id, expires_at) VALUES (?, ?, ?)",
		path, groupID, expiresAt,
	); err != nil {
		return fmt.Errorf("insert alias: %w", err)
	}
	return nil
}

// ResolveAlias returns the group behind a live alias. Expired aliases
// are removed and reported as missing, never served.
func (s *Store) ResolveAlias(path string, now time.Time) (*archive.ArchivedGroup, error) {
	var (
		groupID   string
		expiresAt time.Time
	)
	err := s.db.QueryRow(
		"SELECT group_id, expires_at FROM aliases WHERE path = ?", path,
	).Scan(&groupID, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoGroup
	}
	if err != nil {
		return nil, fmt.Errorf("resolve alias: %w", err)
	}

	if now.After(expiresAt) {
		_, _ = s.db.Exec("DELETE FROM aliases WHERE path = ?", path)
		return nil, ErrNoGroup
	}

	row := s.db.QueryRow("SELECT id, secret, salt, tabs FROM tab_groups WHERE id = ?", groupID)
	g, err := scanGroup(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNoGroup
	}
	return g, err
}

// SaveRefreshToken records a freshly issued refresh token for a device.
func (s *Store) SaveRefreshToken(token, deviceID string) error {
	if _, err := s.db.Exec(
		"INSERT INTO refresh_tokens (token, device_id, created_at) VALUES (?, ?, ?)",
		token, deviceID, time.Now(),
	); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken validates and invalidates a refresh token in one
// step; each token rotates on use.
func (s *Store) ConsumeRefreshToken(token string) (string, error) {
	var deviceID string
	err := s.db.QueryRow(
		"SELECT device_id FROM refresh_tokens WHERE token = ?", token,
	).Scan(&deviceID)
	if err == sql.ErrNoRows {
		return "", ErrBadRefresh
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM refresh_tokens WHERE token = ?", token); err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}
	return deviceID, nil
}

func scanGroup(scan func(dest ...any) error) (*archive.ArchivedGroup, error) {
	var (
		g    archive.ArchivedGroup
		tabs string
	)
	if err := scan(&g.ID, &g.Secret, &g.Salt, &tabs); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	g.BrowserTabInfos = []tabmodel.FullTabSnapshot{}
	if err := json.Unmarshal([]byte(tabs), &g.BrowserTabInfos); err != nil {
		return nil, fmt.Errorf("decode tabs: %w", err)
	}
	return &g, nil
}
