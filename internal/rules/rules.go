// Package rules holds the closure policy configuration: the global
// CloseRule, per-URL-prefix overrides, and the resolver that merges them.
package rules

import "fmt"

// IdleCondition selects which idle-detection strategy drives a rule.
type IdleCondition string

const (
	ConditionWindow     IdleCondition = "window"
	ConditionVisibility IdleCondition = "visibility"
	ConditionIdle       IdleCondition = "idle"
)

func (c IdleCondition) Valid() bool {
	switch c {
	case ConditionWindow, ConditionVisibility, ConditionIdle:
		return true
	}
	return false
}

// CloseRule decides when a tab may be closed.
// IdleTimeoutMinutes == 0 means the tab is never closed, regardless of
// any other flag.
type CloseRule struct {
	IdleCondition      IdleCondition `json:"idleCondition"`
	IdleTimeoutMinutes int           `json:"idleTimeoutMinutes"`
	IgnoreUnloadedTab  bool          `json:"ignoreUnloadedTab"`
	IgnoreAudibleTab   bool          `json:"ignoreAudibleTab"`
	AllowPinnedTab     bool          `json:"allowPinnedTab"`
	IgnoreContainerTab bool          `json:"ignoreContainerTab"`
}

// NeverCloses reports the permanent-protection case.
func (r CloseRule) NeverCloses() bool {
	return r.IdleTimeoutMinutes == 0
}

// Override is a partial CloseRule: nil fields inherit from the global rule.
type Override struct {
	IdleCondition      *IdleCondition `json:"idleCondition,omitempty"`
	IdleTimeoutMinutes *int           `json:"idleTimeoutMinutes,omitempty"`
	IgnoreUnloadedTab  *bool          `json:"ignoreUnloadedTab,omitempty"`
	IgnoreAudibleTab   *bool          `json:"ignoreAudibleTab,omitempty"`
	AllowPinnedTab     *bool          `json:"allowPinnedTab,omitempty"`
	IgnoreContainerTab *bool          `json:"ignoreContainerTab,omitempty"`
}

// Setting is the persisted policy: one global rule plus a whitelist of
// URL-prefix overrides.
type Setting struct {
	Global    CloseRule           `json:"global"`
	Whitelist map[string]Override `json:"whitelist"`
}

// Default returns the self-healing fallback written when persisted
// settings are missing or malformed.
func Default() Setting {
	return Setting{
		Global: CloseRule{
			IdleCondition:      ConditionWindow,
			IdleTimeoutMinutes: 30,
			IgnoreUnloadedTab:  false,
			IgnoreAudibleTab:   false,
			AllowPinnedTab:     false,
			IgnoreContainerTab: false,
		},
		Whitelist: map[string]Override{},
	}
}

// Validate rejects settings a caller must not persist.
func (s Setting) Validate() error {
	if !s.Global.IdleCondition.Valid() {
		return fmt.Errorf("invalid idle condition %q", s.Global.IdleCondition)
	}
	if s.Global.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("negative idle timeout %d", s.Global.IdleTimeoutMinutes)
	}
	for prefix, o := range s.Whitelist {
		if prefix == "" {
			return fmt.Errorf("empty whitelist prefix")
		}
		if o.IdleCondition != nil && !o.IdleCondition.Valid() {
			return fmt.Errorf("whitelist %q: invalid idle condition %q", prefix, *o.IdleCondition)
		}
		if o.IdleTimeoutMinutes != nil && *o.IdleTimeoutMinutes < 0 {
			return fmt.Errorf("whitelist %q: negative idle timeout", prefix)
		}
	}
	return nil
}

// Resolve returns the effective rule for a URL.
//
// When several whitelist prefixes match, the longest prefix wins. The
// upstream behavior relied on map iteration order here; longest-prefix
// is the documented deterministic tie-break. Equal-length ties cannot
// occur since prefixes are map keys.
func (s Setting) Resolve(url string) CloseRule {
	var (
		best    *Override
		bestLen = -1
	)
	for prefix, o := range s.Whitelist {
		if len(prefix) > bestLen && hasPrefix(url, prefix) {
			ov := o
			best = &ov
			bestLen = len(prefix)
		}
	}
	if best == nil {
		return s.Global
	}
	return merge(s.Global, *best)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func merge(base CloseRule, o Override) CloseRule {
	if o.IdleCondition != nil {
		base.IdleCondition = *o.IdleCondition
	}
	if o.IdleTimeoutMinutes != nil {
		base.IdleTimeoutMinutes = *o.IdleTimeoutMinutes
	}
	if o.IgnoreUnloadedTab != nil {
		base.IgnoreUnloadedTab = *o.IgnoreUnloadedTab
	}
	if o.IgnoreAudibleTab != nil {
		base.IgnoreAudibleTab = *o.IgnoreAudibleTab
	}
	if o.AllowPinnedTab != nil {
		base.AllowPinnedTab = *o.AllowPinnedTab
	}
	if o.IgnoreContainerTab != nil {
		base.IgnoreContainerTab = *o.IgnoreContainerTab
	}
	return base
}
