package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

// Kind names one of the message types in the protocol. The set is closed:
// payload structs implement the unexported marker so a new kind cannot be
// added without touching this file.
type Kind string

const (
	KindGetTabInfo      Kind = "get-tab-info"
	KindRefreshInterval Kind = "refresh-interval"
	KindRefreshTab      Kind = "refresh-tab"
	KindRestoreStorage  Kind = "restore-storage"
	KindTabsChanged     Kind = "tabs-changed"
)

// TargetKind addresses one of the three context classes.
type TargetKind string

const (
	TargetBackground TargetKind = "background"
	TargetTab        TargetKind = "tab"
	TargetPopup      TargetKind = "popup"
)

// Target is the destination of a message. TabID is set only for TargetTab.
type Target struct {
	Kind  TargetKind `json:"kind"`
	TabID string     `json:"tabId,omitempty"`
}

func ToTab(tabID string) Target { return Target{Kind: TargetTab, TabID: tabID} }
func ToBackground() Target      { return Target{Kind: TargetBackground} }
func ToPopup() Target           { return Target{Kind: TargetPopup} }

// Payload is implemented by every message body.
type Payload interface {
	Kind() Kind
}

// GetTabInfoRequest asks a tab agent for its page storage and scroll
// position.
type GetTabInfoRequest struct{}

func (GetTabInfoRequest) Kind() Kind { return KindGetTabInfo }

// TabInfoResult is the reply: both storages as JSON-serialized key/value
// objects. Empty strings mean the page gave no data (or the call timed
// out and the caller substituted the zero value).
type TabInfoResult struct {
	Session string                  `json:"session"`
	Local   string                  `json:"local"`
	Scroll  tabmodel.ScrollPosition `json:"scroll"`
}

func (TabInfoResult) Kind() Kind { return KindGetTabInfo }

// RefreshIntervalRequest configures or disables the content-side idle
// strategy for one tab.
type RefreshIntervalRequest struct {
	Condition  rules.IdleCondition `json:"condition"`
	IntervalMs int64               `json:"intervalMs"`
	Enabled    bool                `json:"enabled"`
}

func (RefreshIntervalRequest) Kind() Kind { return KindRefreshInterval }

// Ack is the empty success reply for requests without result data.
type Ack struct{}

func (Ack) Kind() Kind { return KindRefreshInterval }

// RefreshTabSignal is the fire-and-forget idle report from a tab agent.
// ReportedAt is epoch milliseconds at the moment the page went idle;
// receivers apply it last-write-wins by timestamp, not arrival order.
type RefreshTabSignal struct {
	TabID      string `json:"tabId"`
	ReportedAt int64  `json:"reportedAt"`
}

func (RefreshTabSignal) Kind() Kind { return KindRefreshTab }

// TabsChangedSignal tells popup clients the tab map changed; they
// refetch the list instead of polling.
type TabsChangedSignal struct {
	UpdatedAt int64 `json:"updatedAt"`
}

func (TabsChangedSignal) Kind() Kind { return KindTabsChanged }

// RestoreStorageRequest pushes decrypted page state into a fresh tab.
type RestoreStorageRequest struct {
	Session string                  `json:"session"`
	Local   string                  `json:"local"`
	Scroll  tabmodel.ScrollPosition `json:"scroll"`
}

func (RestoreStorageRequest) Kind() Kind { return KindRestoreStorage }

// Envelope is the wire form used on the popup WebSocket and in logs.
type Envelope struct {
	ID      string          `json:"id"`
	Name    Kind            `json:"name"`
	Target  Target          `json:"target"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func seal(id string, target Target, p Payload) (*Envelope, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return &Envelope{ID: id, Name: p.Kind(), Target: target, Payload: raw}, nil
}

func (e *Envelope) encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}
