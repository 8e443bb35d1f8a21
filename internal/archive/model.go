// Package archive implements the capture-encrypt-submit pipeline and its
// inverse: restoring archived tabs into a running browser. The PIN never
// leaves this process; only the Argon2id output and salt travel to the
// remote store.
package archive

import (
	"fmt"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/tabmodel"
)

var (
	// ErrBadPin means the entered PIN does not reproduce the group's
	// stored secret. Retry is allowed; there is no lockout counter.
	ErrBadPin = fmt.Errorf("incorrect pin")

	// ErrUnavailable means the remote archive store rejected the
	// credentials even after a token refresh. Surfaced to the user,
	// never retried silently.
	ErrUnavailable = fmt.Errorf("archive store unavailable")

	// ErrNotFound covers missing groups and expired share aliases.
	ErrNotFound = fmt.Errorf("archive group not found")
)

// ArchivedGroup is the remote store's unit: the PIN-derived secret/salt
// pair (base64) plus the captured tabs. Storage and cookie fields inside
// BrowserTabInfos are AES-GCM ciphertexts under the secret.
type ArchivedGroup struct {
	ID              string                     `json:"id"`
	Secret          string                     `json:"secret"`
	Salt            string                     `json:"salt"`
	BrowserTabInfos []tabmodel.FullTabSnapshot `json:"browserTabInfos"`
}

// ShareAlias is the time-boxed QR handle for a group. Path resolves the
// group without the owner's token until ExpiresAt.
type ShareAlias struct {
	Path      string `json:"path"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}
