package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

func TestOpenSelfHealsSettings(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := rules.Default()
	if got := s.Settings(); got.Global != want.Global {
		t.Errorf("Settings() = %+v, want defaults", got)
	}

	// The healed settings must have been written back.
	data, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	if err != nil {
		t.Fatalf("settings file not rewritten: %v", err)
	}
	if len(data) == 0 {
		t.Error("settings file empty")
	}
}

func TestOpenHealsParseableButInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	// Well-formed JSON carrying a condition no strategy implements.
	bad := []byte(`{"global":{"idleCondition":"focus","idleTimeoutMinutes":30}}`)
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), bad, 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := rules.Default()
	if got := s.Settings(); got.Global != want.Global {
		t.Errorf("Settings() = %+v, want defaults", got)
	}
}

func TestTabsSessionScoped(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.PutTab(&tabmodel.TabSnapshot{ID: "tab-1", Title: "one"})

	// Reopen: previous session's tabs are gone.
	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(s2.Tabs()); got != 0 {
		t.Errorf("tabs after reopen = %d, want 0", got)
	}
}

func TestPutTabDropsEmptyIdentity(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	s.PutTab(nil)
	s.PutTab(&tabmodel.TabSnapshot{ID: ""})
	if got := len(s.Tabs()); got != 0 {
		t.Errorf("tabs = %d, want 0", got)
	}
}

func TestPutTabCopies(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	orig := &tabmodel.TabSnapshot{ID: "tab-1", Title: "before"}
	s.PutTab(orig)
	orig.Title = "after"

	got, ok := s.Tab("tab-1")
	if !ok || got.Title != "before" {
		t.Errorf("stored snapshot shares memory with caller: %+v", got)
	}

	// Mutating the returned copy must not affect the store either.
	got.Title = "mutated"
	again, _ := s.Tab("tab-1")
	if again.Title != "before" {
		t.Error("Tab() returned a live reference")
	}
}

func TestTokensDurable(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.PutTokens(Tokens{AccessToken: "acc", RefreshToken: "ref"})

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Tokens(); got.AccessToken != "acc" || got.RefreshToken != "ref" {
		t.Errorf("Tokens() = %+v", got)
	}
}

func TestPutSettingsValidates(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	bad := rules.Default()
	bad.Global.IdleCondition = "focus"
	if err := s.PutSettings(bad); err == nil {
		t.Error("invalid settings accepted")
	}
}

func TestWatchNotifies(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ch := s.Watch(KeySettings)
	if err := s.PutSettings(rules.Default()); err != nil {
		t.Fatal(err)
	}

	select {
	case k := <-ch:
		if k != KeySettings {
			t.Errorf("notified key = %v", k)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestWatchCoalesces(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ch := s.Watch(KeyTabs)
	for i := 0; i < 10; i++ {
		s.PutTab(&tabmodel.TabSnapshot{ID: "tab-1"})
	}

	// At least one notification arrives; the burst never blocks writers.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestReplaceTabs(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.PutTab(&tabmodel.TabSnapshot{ID: "old"})

	s.ReplaceTabs(map[string]*tabmodel.TabSnapshot{
		"new-1": {ID: "new-1"},
		"":      {ID: ""}, // dropped
	})

	tabs := s.Tabs()
	if len(tabs) != 1 {
		t.Fatalf("tabs = %d, want 1", len(tabs))
	}
	if _, ok := tabs["new-1"]; !ok {
		t.Error("new-1 missing after replace")
	}
}
