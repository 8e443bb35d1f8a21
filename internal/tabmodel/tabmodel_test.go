package tabmodel

import (
	"testing"

	"github.com/chromedp/cdproto/target"
)

func TestFromTarget(t *testing.T) {
	info := &target.Info{
		TargetID: "tab-1",
		Type:     "page",
		Title:    "Example",
		URL:      "https://example.com/",
		Attached: true,
	}

	snap := FromTarget(info)
	if snap == nil {
		t.Fatal("FromTarget() = nil, want snapshot")
	}
	if snap.ID != "tab-1" || snap.Title != "Example" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.IsUnloaded {
		t.Error("attached target should not be unloaded")
	}
	if snap.LastActivityAt == 0 {
		t.Error("LastActivityAt not stamped")
	}
}

func TestFromTargetEmptyIdentity(t *testing.T) {
	if got := FromTarget(nil); got != nil {
		t.Errorf("FromTarget(nil) = %v, want nil", got)
	}
	if got := FromTarget(&target.Info{URL: "https://example.com"}); got != nil {
		t.Errorf("FromTarget(no id) = %v, want nil", got)
	}
}

func TestIsPage(t *testing.T) {
	tests := []struct {
		typ  string
		want bool
	}{
		{"page", true},
		{"iframe", false},
		{"service_worker", false},
		{"background_page", false},
	}
	for _, tt := range tests {
		if got := IsPage(&target.Info{TargetID: "x", Type: tt.typ}); got != tt.want {
			t.Errorf("IsPage(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
	if IsPage(nil) {
		t.Error("IsPage(nil) = true")
	}
}
