package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleRegisterPushToken registers a device push token for an owner.
func (r *Router) handleRegisterPushToken(w http.ResponseWriter, req *http.Request) {
	var body struct {
		UID      string `json:"uid"`
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}

	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if body.UID == "" {
		http.Error(w, `{"error": "uid is required"}`, http.StatusBadRequest)
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}
	if body.Platform != "ios" && body.Platform != "android" {
		http.Error(w, `{"error": "platform must be 'ios' or 'android'"}`, http.StatusBadRequest)
		return
	}

	if err := r.store.RegisterPushToken(req.Context(), body.UID, body.Token, body.Platform); err != nil {
		r.logger.Error("push: failed to register token", "uid", body.UID, "err", err)
		http.Error(w, `{"error": "failed to register token"}`, http.StatusInternalServerError)
		return
	}

	r.logger.Info("push: registered token", "uid", body.UID, "platform", body.Platform)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleUnregisterPushToken removes a device push token.
func (r *Router) handleUnregisterPushToken(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if err := r.store.UnregisterPushToken(req.Context(), body.Token); err != nil {
		r.logger.Error("push: failed to unregister token", "err", err)
		http.Error(w, `{"error": "failed to unregister token"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
