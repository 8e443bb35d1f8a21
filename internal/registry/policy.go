package registry

import (
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// CloseBlock names the first reason a tab cannot be closed, for logging.
type CloseBlock string

const (
	BlockNone      CloseBlock = ""
	BlockProtected CloseBlock = "timeout-zero"
	BlockUnloaded  CloseBlock = "unloaded"
	BlockPinned    CloseBlock = "pinned"
	BlockAudible   CloseBlock = "audible"
	BlockContainer CloseBlock = "container"
)

// EvaluateClosure decides whether a tab may be closed under a rule.
// Checks run in fixed order and the first blocking reason wins:
//
//  1. a zero idle timeout protects the tab permanently
//  2. unloaded tabs are kept when the rule says to ignore them
//  3. pinned tabs are kept when the rule allows pinning as protection
//  4. audible tabs are protected unless the rule opts in to closing them
//  5. grouped/container tabs are kept when the rule says to ignore them
//
// The elapsed-time comparison is the caller's job; this is only the
// flag gate.
func EvaluateClosure(tab *tabmodel.TabSnapshot, rule rules.CloseRule) (bool, CloseBlock) {
	if rule.NeverCloses() {
		return false, BlockProtected
	}
	if tab.IsUnloaded && rule.IgnoreUnloadedTab {
		return false, BlockUnloaded
	}
	if tab.IsPinned && rule.AllowPinnedTab {
		return false, BlockPinned
	}
	if tab.IsAudible && !rule.IgnoreAudibleTab {
		return false, BlockAudible
	}
	if tab.GroupID != "" && rule.IgnoreContainerTab {
		return false, BlockContainer
	}
	return true, BlockNone
}
