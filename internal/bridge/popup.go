package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// PopupHub fans bridge messages out to connected popup clients over
// WebSocket. Popups only ever receive; mutations flow through the HTTP
// API, never through this socket.
type PopupHub struct {
	mu    sync.Mutex
	conns map[string]chan []byte
}

func NewPopupHub(b *Bridge) *PopupHub {
	h := &PopupHub{conns: make(map[string]chan []byte)}
	b.SetPopup(h.handle)
	return h
}

// handle is the hub's bridge handler: every popup-targeted message is
// broadcast to all connected clients.
func (h *PopupHub) handle(_ context.Context, p Payload) (Payload, error) {
	env, err := seal(uuid.NewString(), Target{Kind: TargetPopup}, p)
	if err != nil {
		return nil, err
	}
	data, err := env.encode()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	for _, ch := range h.conns {
		select {
		case ch <- data:
		default: // slow client drops frames, never blocks the engine
		}
	}
	h.mu.Unlock()
	return Ack{}, nil
}

// ServeHTTP upgrades to WebSocket and streams messages until the client
// disconnects.
func (h *PopupHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	id := uuid.NewString()
	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.conns[id] = ch
	h.mu.Unlock()

	slog.Debug("popup connected", "id", id)

	defer func() {
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
		_ = conn.Close()
		slog.Debug("popup disconnected", "id", id)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-ch:
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
