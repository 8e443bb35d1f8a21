package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/bridge"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/cryptox"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/pin"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// Browser is the slice of the tab manager the pipeline needs. The
// concrete implementation is bridge.TabManager.
type Browser interface {
	ListTargets() ([]*target.Info, error)
	GetCookies(tabID string, urls []string) ([]tabmodel.Cookie, error)
	SetCookies(cookies []tabmodel.Cookie) (int, error)
	CreateTab(url string, active bool) (string, error)
	CloseTab(tabID string) error
	WaitLoaded(tabID string, timeout time.Duration)
}

// Pipeline captures, encrypts and submits tab snapshots, and replays
// them on restore.
type Pipeline struct {
	browser Browser
	bridge  *bridge.Bridge
	remote  Remote
	device  string

	loadTimeout time.Duration
}

type Options struct {
	// Device labels snapshots with their origin (user-agent style).
	Device string
	// LoadTimeout bounds the load-complete wait before storage is
	// pushed into a restored tab.
	LoadTimeout time.Duration
}

func NewPipeline(browser Browser, br *bridge.Bridge, remote Remote, opts Options) *Pipeline {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 5 * time.Second
	}
	return &Pipeline{
		browser:     browser,
		bridge:      br,
		remote:      remote,
		device:      opts.Device,
		loadTimeout: opts.LoadTimeout,
	}
}

// Archive captures the given tabs, encrypts their page state under a
// fresh PIN-derived key, and submits the group. Tabs stay open until
// submission succeeds; there is no cancellation once it begins.
func (p *Pipeline) Archive(ctx context.Context, tabIDs []string, pinCode string) (*ArchivedGroup, error) {
	derived, err := pin.Generate(pinCode)
	if err != nil {
		return nil, err
	}
	key, err := cryptox.DecodeBase64(derived.Secret)
	if err != nil {
		return nil, err
	}

	targets, err := p.browser.ListTargets()
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	byID := make(map[string]*target.Info, len(targets))
	for _, t := range targets {
		byID[string(t.TargetID)] = t
	}

	infos := make([]tabmodel.FullTabSnapshot, 0, len(tabIDs))
	for _, id := range tabIDs {
		t, ok := byID[id]
		if !ok {
			slog.Warn("archive: tab gone before capture", "tabId", id)
			continue
		}
		snap, err := p.capture(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("capture tab %s: %w", id, err)
		}
		if err := encryptStorage(&snap.Storage, key); err != nil {
			return nil, fmt.Errorf("encrypt tab %s: %w", id, err)
		}
		infos = append(infos, *snap)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no tabs to archive")
	}

	group, err := p.remote.CreateGroup(ctx, &ArchivedGroup{
		Secret:          derived.Secret,
		Salt:            derived.Salt,
		BrowserTabInfos: infos,
	})
	if err != nil {
		return nil, fmt.Errorf("submit archive group: %w", err)
	}

	for _, id := range tabIDs {
		if err := p.browser.CloseTab(id); err != nil {
			slog.Debug("close archived tab", "tabId", id, "err", err)
		}
	}
	slog.Info("archived tabs", "group", group.ID, "count", len(infos))
	return group, nil
}

// ArchiveAndClose adapts Archive to the registry's archiver contract.
func (p *Pipeline) ArchiveAndClose(ctx context.Context, tabIDs []string, pinCode string) error {
	_, err := p.Archive(ctx, tabIDs, pinCode)
	return err
}

// capture builds one FullTabSnapshot with plaintext storage fields. The
// bridge round trip is bounded by the bridge timeout; a timeout leaves
// storage and scroll empty instead of failing the batch.
func (p *Pipeline) capture(ctx context.Context, t *target.Info) (*tabmodel.FullTabSnapshot, error) {
	base := tabmodel.FromTarget(t)
	if base == nil {
		return nil, fmt.Errorf("target without identity")
	}

	var info bridge.TabInfoResult
	resp, err := p.bridge.Call(ctx, bridge.ToTab(base.ID), bridge.GetTabInfoRequest{})
	if err != nil {
		slog.Debug("tab info unavailable, archiving without storage", "tabId", base.ID, "err", err)
	} else if r, ok := resp.(bridge.TabInfoResult); ok {
		info = r
	}

	cookieJSON := ""
	if cookies, err := p.collectCookies(base.ID, base.URL); err != nil {
		slog.Debug("cookie capture failed", "tabId", base.ID, "err", err)
	} else if serialized, err := tabmodel.SerializeCookies(cookies); err == nil {
		cookieJSON = serialized
	}

	return &tabmodel.FullTabSnapshot{
		TabSnapshot:    *base,
		Device:         p.device,
		ScrollPosition: info.Scroll,
		Storage: tabmodel.StorageSnapshot{
			Session: info.Session,
			Local:   info.Local,
			Cookies: cookieJSON,
		},
	}, nil
}

// collectCookies gathers cookies for the tab URL and its parent domains
// so cross-subdomain session cookies survive, deduped by
// (name, domain, path) with the exact-URL match winning.
func (p *Pipeline) collectCookies(tabID, rawURL string) ([]tabmodel.Cookie, error) {
	if rawURL == "" {
		return nil, nil
	}
	urls := []string{rawURL}
	for _, domain := range tabmodel.ParentDomains(rawURL) {
		urls = append(urls, "https://"+domain, "http://"+domain)
	}
	cookies, err := p.browser.GetCookies(tabID, urls)
	if err != nil {
		return nil, err
	}
	return tabmodel.DedupeCookies(cookies), nil
}

// Restore verifies the PIN and replays each snapshot: cookies land in
// the browser store before the tab exists so the first request already
// carries the session, then storage and scroll are pushed once the page
// loads. Per-tab failures are logged and skipped.
func (p *Pipeline) Restore(ctx context.Context, group *ArchivedGroup, pinCode string) (int, error) {
	if !pin.Verify(pinCode, group.Secret, group.Salt) {
		return 0, ErrBadPin
	}
	key, err := pin.Derive(pinCode, group.Salt)
	if err != nil {
		return 0, ErrBadPin
	}

	restored := 0
	for i := range group.BrowserTabInfos {
		if err := p.restoreOne(ctx, &group.BrowserTabInfos[i], key); err != nil {
			slog.Warn("restore tab skipped", "url", group.BrowserTabInfos[i].URL, "err", err)
			continue
		}
		restored++
	}
	slog.Info("restored tabs", "group", group.ID, "count", restored, "of", len(group.BrowserTabInfos))
	return restored, nil
}

func (p *Pipeline) restoreOne(ctx context.Context, snap *tabmodel.FullTabSnapshot, key []byte) error {
	storage := snap.Storage
	if err := decryptStorage(&storage, key); err != nil {
		return err
	}

	if storage.Cookies != "" {
		cookies, err := tabmodel.ParseCookies(storage.Cookies)
		if err != nil {
			return err
		}
		if _, err := p.browser.SetCookies(cookies); err != nil {
			return err
		}
	}

	tabID, err := p.browser.CreateTab(snap.URL, false)
	if err != nil {
		return fmt.Errorf("create tab: %w", err)
	}

	hasState := storage.Session != "" || storage.Local != "" ||
		snap.ScrollPosition.X != 0 || snap.ScrollPosition.Y != 0
	if !hasState {
		return nil
	}

	p.browser.WaitLoaded(tabID, p.loadTimeout)
	if _, err := p.bridge.Call(ctx, bridge.ToTab(tabID), bridge.RestoreStorageRequest{
		Session: storage.Session,
		Local:   storage.Local,
		Scroll:  snap.ScrollPosition,
	}); err != nil {
		// The tab itself is open and navigated; storage is best effort.
		slog.Debug("storage push failed", "tabId", tabID, "err", err)
	}
	return nil
}

// GenerateShareLink asks the remote store for the time-boxed alias a QR
// code encodes. Expired aliases resolve to ErrNotFound on the other end.
func (p *Pipeline) GenerateShareLink(ctx context.Context, groupID string) (*ShareAlias, error) {
	alias, err := p.remote.CreateAlias(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("create share alias: %w", err)
	}
	return alias, nil
}

func encryptStorage(s *tabmodel.StorageSnapshot, key []byte) error {
	var err error
	if s.Session, err = cryptox.Encrypt(s.Session, key); err != nil {
		return err
	}
	if s.Local, err = cryptox.Encrypt(s.Local, key); err != nil {
		return err
	}
	if s.Cookies, err = cryptox.Encrypt(s.Cookies, key); err != nil {
		return err
	}
	return nil
}

func decryptStorage(s *tabmodel.StorageSnapshot, key []byte) error {
	var err error
	if s.Session, err = cryptox.Decrypt(s.Session, key); err != nil {
		return err
	}
	if s.Local, err = cryptox.Decrypt(s.Local, key); err != nil {
		return err
	}
	if s.Cookies, err = cryptox.Decrypt(s.Cookies, key); err != nil {
		return err
	}
	return nil
}
