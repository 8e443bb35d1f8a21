package registry

import (
	"testing"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

func TestEvaluateClosure(t *testing.T) {
	base := rules.CloseRule{
		IdleCondition:      rules.ConditionWindow,
		IdleTimeoutMinutes: 30,
	}

	tests := []struct {
		name  string
		tab   tabmodel.TabSnapshot
		mut   func(*rules.CloseRule)
		want  bool
		block CloseBlock
	}{
		{
			name: "plain tab closable",
			tab:  tabmodel.TabSnapshot{ID: "t"},
			mut:  func(r *rules.CloseRule) {},
			want: true, block: BlockNone,
		},
		{
			name: "timeout zero protects everything",
			tab:  tabmodel.TabSnapshot{ID: "t"},
			mut:  func(r *rules.CloseRule) { r.IdleTimeoutMinutes = 0 },
			want: false, block: BlockProtected,
		},
		{
			name: "unloaded ignored",
			tab:  tabmodel.TabSnapshot{ID: "t", IsUnloaded: true},
			mut:  func(r *rules.CloseRule) { r.IgnoreUnloadedTab = true },
			want: false, block: BlockUnloaded,
		},
		{
			name: "unloaded not ignored",
			tab:  tabmodel.TabSnapshot{ID: "t", IsUnloaded: true},
			mut:  func(r *rules.CloseRule) {},
			want: true, block: BlockNone,
		},
		{
			name: "pinned with protection",
			tab:  tabmodel.TabSnapshot{ID: "t", IsPinned: true},
			mut:  func(r *rules.CloseRule) { r.AllowPinnedTab = true },
			want: false, block: BlockPinned,
		},
		{
			name: "pinned without protection",
			tab:  tabmodel.TabSnapshot{ID: "t", IsPinned: true},
			mut:  func(r *rules.CloseRule) {},
			want: true, block: BlockNone,
		},
		{
			name: "audible protected by default",
			tab:  tabmodel.TabSnapshot{ID: "t", IsAudible: true},
			mut:  func(r *rules.CloseRule) {},
			want: false, block: BlockAudible,
		},
		{
			name: "audible closable only by opt-in",
			tab:  tabmodel.TabSnapshot{ID: "t", IsAudible: true},
			mut:  func(r *rules.CloseRule) { r.IgnoreAudibleTab = true },
			want: true, block: BlockNone,
		},
		{
			name: "container tab ignored",
			tab:  tabmodel.TabSnapshot{ID: "t", GroupID: "ctx-2"},
			mut:  func(r *rules.CloseRule) { r.IgnoreContainerTab = true },
			want: false, block: BlockContainer,
		},
		{
			name: "no container id never blocks",
			tab:  tabmodel.TabSnapshot{ID: "t", GroupID: ""},
			mut:  func(r *rules.CloseRule) { r.IgnoreContainerTab = true },
			want: true, block: BlockNone,
		},
		{
			name: "first blocking reason wins",
			tab:  tabmodel.TabSnapshot{ID: "t", IsUnloaded: true, IsPinned: true, IsAudible: true},
			mut: func(r *rules.CloseRule) {
				r.IgnoreUnloadedTab = true
				r.AllowPinnedTab = true
			},
			want: false, block: BlockUnloaded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := base
			tt.mut(&rule)
			got, block := EvaluateClosure(&tt.tab, rule)
			if got != tt.want || block != tt.block {
				t.Errorf("EvaluateClosure() = %v/%q, want %v/%q", got, block, tt.want, tt.block)
			}
		})
	}
}
