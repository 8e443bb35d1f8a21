package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/archive"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/config"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/registry"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/store"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

type fakeEngine struct {
	marked   map[string]string
	unmarked []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{marked: make(map[string]string)}
}

func (f *fakeEngine) MarkForArchive(tabIDs []string, pinCode string) {
	for _, id := range tabIDs {
		f.marked[id] = pinCode
	}
}

func (f *fakeEngine) UnmarkForArchive(tabIDs []string) {
	f.unmarked = append(f.unmarked, tabIDs...)
}

func (f *fakeEngine) Intervals() map[string]registry.IntervalEntry {
	return map[string]registry.IntervalEntry{
		"t1": {TabID: "t1", UsesContentScriptStrategy: true},
	}
}

type fakeArchiveSvc struct {
	archiveErr error
	restoreErr error
	restored   int
	lastPin    string
}

func (f *fakeArchiveSvc) Archive(ctx context.Context, tabIDs []string, pinCode string) (*archive.ArchivedGroup, error) {
	if f.archiveErr != nil {
		return nil, f.archiveErr
	}
	f.lastPin = pinCode
	infos := make([]tabmodel.FullTabSnapshot, len(tabIDs))
	for i, id := range tabIDs {
		infos[i] = tabmodel.FullTabSnapshot{TabSnapshot: tabmodel.TabSnapshot{ID: id}}
	}
	return &archive.ArchivedGroup{ID: "g1", BrowserTabInfos: infos}, nil
}

func (f *fakeArchiveSvc) Restore(ctx context.Context, group *archive.ArchivedGroup, pinCode string) (int, error) {
	if f.restoreErr != nil {
		return 0, f.restoreErr
	}
	return f.restored, nil
}

func (f *fakeArchiveSvc) GenerateShareLink(ctx context.Context, groupID string) (*archive.ShareAlias, error) {
	return &archive.ShareAlias{Path: "alias-" + groupID}, nil
}

type fakeRemote struct {
	groups map[string]*archive.ArchivedGroup
	err    error
}

func (f *fakeRemote) CreateGroup(ctx context.Context, g *archive.ArchivedGroup) (*archive.ArchivedGroup, error) {
	return g, nil
}

func (f *fakeRemote) ListGroups(ctx context.Context) ([]archive.ArchivedGroup, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]archive.ArchivedGroup, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (f *fakeRemote) GetGroup(ctx context.Context, id string) (*archive.ArchivedGroup, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.groups[id]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return g, nil
}

func (f *fakeRemote) DeleteGroup(ctx context.Context, id string) error {
	if _, ok := f.groups[id]; !ok {
		return archive.ErrNotFound
	}
	delete(f.groups, id)
	return nil
}

func (f *fakeRemote) CreateAlias(ctx context.Context, id string) (*archive.ShareAlias, error) {
	return &archive.ShareAlias{Path: "alias-" + id}, nil
}

func (f *fakeRemote) GetByAlias(ctx context.Context, path string) (*archive.ArchivedGroup, error) {
	for _, g := range f.groups {
		if "alias-"+g.ID == path {
			return g, nil
		}
	}
	return nil, archive.ErrNotFound
}

func newTestHandlers(t *testing.T) (*Handlers, *fakeEngine, *fakeArchiveSvc, *fakeRemote, *http.ServeMux) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	engine := newFakeEngine()
	svc := &fakeArchiveSvc{restored: 2}
	remote := &fakeRemote{groups: map[string]*archive.ArchivedGroup{
		"g1": {ID: "g1", BrowserTabInfos: make([]tabmodel.FullTabSnapshot, 3)},
	}}
	h := New(&config.RuntimeConfig{}, st, engine, svc, remote, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, nil)
	return h, engine, svc, remote, mux
}

func doReq(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	h, _, _, _, mux := newTestHandlers(t)
	h.Store.PutTab(&tabmodel.TabSnapshot{ID: "t1"})

	rec := doReq(t, mux, "GET", "/health", nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["tabs"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}

func TestHandleTabs(t *testing.T) {
	h, _, _, _, mux := newTestHandlers(t)
	h.Store.PutTab(&tabmodel.TabSnapshot{ID: "t1", URL: "https://a.example", IsPinned: true})
	h.Store.PutTab(&tabmodel.TabSnapshot{ID: "t2", URL: "https://b.example"})

	rec := doReq(t, mux, "GET", "/tabs", nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Tabs []map[string]any `json:"tabs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tabs) != 2 {
		t.Fatalf("tabs = %d", len(body.Tabs))
	}
	if body.Tabs[0]["id"] != "t1" || body.Tabs[0]["isPinned"] != true {
		t.Errorf("first tab = %v", body.Tabs[0])
	}
	if body.Tabs[0]["usesContentScriptStrategy"] != true {
		t.Errorf("strategy flag missing: %v", body.Tabs[0])
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	_, _, _, _, mux := newTestHandlers(t)

	set := rules.Default()
	set.Global.IdleTimeoutMinutes = 45
	rec := doReq(t, mux, "PUT", "/settings", set)
	if rec.Code != 200 {
		t.Fatalf("put: status = %d: %s", rec.Code, rec.Body)
	}

	rec = doReq(t, mux, "GET", "/settings", nil)
	var got rules.Setting
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Global.IdleTimeoutMinutes != 45 {
		t.Errorf("timeout = %d", got.Global.IdleTimeoutMinutes)
	}
}

func TestPutSettingsRejectsInvalid(t *testing.T) {
	_, _, _, _, mux := newTestHandlers(t)

	set := rules.Default()
	set.Global.IdleCondition = "bogus"
	rec := doReq(t, mux, "PUT", "/settings", set)
	if rec.Code != 422 {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandleArchive(t *testing.T) {
	_, _, svc, _, mux := newTestHandlers(t)

	rec := doReq(t, mux, "POST", "/archive", archiveRequest{TabIDs: []string{"t1", "t2"}, Pin: "482913"})
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if svc.lastPin != "482913" {
		t.Errorf("pin = %q", svc.lastPin)
	}
	var group archive.ArchivedGroup
	if err := json.Unmarshal(rec.Body.Bytes(), &group); err != nil {
		t.Fatal(err)
	}
	if group.ID != "g1" || len(group.BrowserTabInfos) != 2 {
		t.Errorf("group = %+v", group)
	}
}

func TestHandleArchiveRejectsBadPin(t *testing.T) {
	_, _, _, _, mux := newTestHandlers(t)

	rec := doReq(t, mux, "POST", "/archive", archiveRequest{TabIDs: []string{"t1"}, Pin: "12ab56"})
	if rec.Code != 422 {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandleArchiveSelect(t *testing.T) {
	_, engine, _, _, mux := newTestHandlers(t)

	rec := doReq(t, mux, "POST", "/archive/select", archiveRequest{TabIDs: []string{"t1", "t2"}, Pin: "482913"})
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if engine.marked["t1"] != "482913" || engine.marked["t2"] != "482913" {
		t.Errorf("marked = %v", engine.marked)
	}

	rec = doReq(t, mux, "DELETE", "/archive/select", archiveRequest{TabIDs: []string{"t1"}})
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(engine.unmarked) != 1 || engine.unmarked[0] != "t1" {
		t.Errorf("unmarked = %v", engine.unmarked)
	}
}

func TestHandleRestoreByID(t *testing.T) {
	_, _, _, _, mux := newTestHandlers(t)

	rec := doReq(t, mux, "POST", "/restore", restoreRequest{GroupID: "g1", Pin: "482913"})
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["restored"] != float64(2) || body["of"] != float64(3) {
		t.Errorf("body = %v", body)
	}
}

func TestHandleRestoreByAlias(t *testing.T) {
	_, _, _, _, mux := newTestHandlers(t)

	rec := doReq(t, mux, "POST", "/restore", restoreRequest{Alias: "alias-g1", Pin: "482913"})
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestHandleRestoreRequiresOneSource(t *testing.T) {
	_, _, _, _, mux := newTestHandlers(t)

	rec := doReq(t, mux, "POST", "/restore", restoreRequest{Pin: "482913"})
	if rec.Code != 400 {
		t.Fatalf("neither source: status = %d", rec.Code)
	}
	rec = doReq(t, mux, "POST", "/restore", restoreRequest{GroupID: "g1", Alias: "x", Pin: "482913"})
	if rec.Code != 400 {
		t.Fatalf("both sources: status = %d", rec.Code)
	}
}

func TestHandleRestoreErrorMapping(t *testing.T) {
	_, _, svc, _, mux := newTestHandlers(t)

	svc.restoreErr = archive.ErrBadPin
	rec := doReq(t, mux, "POST", "/restore", restoreRequest{GroupID: "g1", Pin: "000000"})
	if rec.Code != 403 {
		t.Fatalf("bad pin: status = %d", rec.Code)
	}

	rec = doReq(t, mux, "POST", "/restore", restoreRequest{GroupID: "missing", Pin: "482913"})
	if rec.Code != 404 {
		t.Fatalf("missing group: status = %d", rec.Code)
	}
}

func TestHandleGroupsUnavailable(t *testing.T) {
	_, _, _, remote, mux := newTestHandlers(t)
	remote.err = archive.ErrUnavailable

	rec := doReq(t, mux, "GET", "/groups", nil)
	if rec.Code != 502 {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestHandleDeleteGroup(t *testing.T) {
	_, _, _, remote, mux := newTestHandlers(t)

	rec := doReq(t, mux, "DELETE", "/groups", map[string]string{"id": "g1"})
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := remote.groups["g1"]; ok {
		t.Error("group not deleted")
	}

	rec = doReq(t, mux, "DELETE", "/groups", map[string]string{"id": "g1"})
	if rec.Code != 404 {
		t.Fatalf("second delete: status = %d", rec.Code)
	}
}

func TestHandleShareLink(t *testing.T) {
	_, _, _, _, mux := newTestHandlers(t)

	rec := doReq(t, mux, "POST", "/share-link", map[string]string{"id": "g1"})
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var alias archive.ShareAlias
	if err := json.Unmarshal(rec.Body.Bytes(), &alias); err != nil {
		t.Fatal(err)
	}
	if alias.Path != "alias-g1" {
		t.Errorf("path = %q", alias.Path)
	}
}
