package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/rules"
	"github.com/SimYunSup/alt-tab-extension-sub000/internal/web"
)

func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, 200, h.Store.Settings())
}

// HandlePutSettings validates and persists new settings. The engine
// picks the change up through its store watch; the sweep it triggers
// applies the new rules immediately.
func (h *Handlers) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var setting rules.Setting
	if err := json.NewDecoder(r.Body).Decode(&setting); err != nil {
		web.ErrorCode(w, 400, "bad_request", "malformed settings")
		return
	}
	if err := h.Store.PutSettings(setting); err != nil {
		web.ErrorCode(w, 422, "invalid_settings", err.Error())
		return
	}
	web.JSON(w, 200, setting)
}
