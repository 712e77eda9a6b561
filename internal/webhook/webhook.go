// Package webhook implements the external-trigger adapter (C9): HTTP
// handlers that translate verified external callbacks into
// single-reminder fire decisions, and a cleanup trigger for C8.
//
// HMAC signature verification is implemented on the standard library
// (crypto/hmac, crypto/sha256) — no HMAC-signature verification
// library appears anywhere in the retrieved corpus, so this is the one
// ambient concern carried on stdlib rather than a third-party package.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"reminderd/internal/engine"
	"reminderd/internal/store"
)

// ErrSignatureInvalid names the case in which neither the current nor
// the next signing key produces a matching MAC. Verify reports that
// case as false and the handlers answer it with 401; neither returns
// this value.
var ErrSignatureInvalid = errors.New("webhook: invalid signature")

const signatureHeader = "X-Signature"

// SignatureVerifier checks the X-Signature header against a rotating
// pair of HMAC-SHA256 keys, so a key can be rotated by publishing the
// new value as "next" before promoting it to "current".
type SignatureVerifier struct {
	Current string
	Next    string
}

func hmacHex(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under either key.
func (v SignatureVerifier) Verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	sig := []byte(signature)
	if v.Current != "" && hmac.Equal(sig, []byte(hmacHex(v.Current, body))) {
		return true
	}
	if v.Next != "" && hmac.Equal(sig, []byte(hmacHex(v.Next, body))) {
		return true
	}
	return false
}

// reminderAlertRequest is the body of a POST to
// /webhooks/reminder-alert, per spec.md §6.
type reminderAlertRequest struct {
	ReminderID  int64 `json:"reminderId"`
	IsRecurring *bool `json:"isRecurring,omitempty"`
}

type statusResponse struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	ReminderTitle string `json:"reminderTitle,omitempty"`
}

// Handler serves the C9 HTTP surface.
type Handler struct {
	Engine   *engine.Engine
	Store    store.Store
	Clock    clockwork.Clock
	Verifier SignatureVerifier
	Log      zerolog.Logger
}

// Routes registers the webhook endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/reminder-alert", h.handleReminderAlert)
	mux.HandleFunc("/webhooks/cleanup", h.handleCleanup)
}

func (h *Handler) readVerifiedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, false
	}
	if !h.Verifier.Verify(body, r.Header.Get(signatureHeader)) {
		h.Log.Warn().Str("path", r.URL.Path).Msg("webhook signature invalid")
		w.WriteHeader(http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

// handleReminderAlert implements the C9 flow from spec.md §4.8:
// signature verification happens before any store access; a missing
// or inactive reminder is a no-op response; otherwise the reminder is
// fired and, for a genuinely one-time reminder, deactivated in the
// same request.
func (h *Handler) handleReminderAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, ok := h.readVerifiedBody(w, r)
	if !ok {
		return
	}

	var req reminderAlertRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	rem, err := h.Store.FindByID(ctx, req.ReminderID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "skipped", Reason: "reminder_not_found"})
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Int64("reminder_id", req.ReminderID).Msg("webhook store read failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !rem.IsActive {
		writeJSON(w, http.StatusOK, statusResponse{Status: "skipped", Reason: "inactive"})
		return
	}

	now := h.Clock.Now()
	h.Engine.Fire(ctx, rem, now)

	requestedRecurring := req.IsRecurring != nil && *req.IsRecurring
	if !requestedRecurring && !rem.IsRecurring {
		if err := h.Store.Deactivate(ctx, rem.ID); err != nil {
			h.Log.Error().Err(err).Int64("reminder_id", rem.ID).Msg("webhook deactivate failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", ReminderTitle: rem.Title})
}

// handleCleanup triggers a single C8 cleanup pass.
func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, ok := h.readVerifiedBody(w, r)
	if !ok {
		return
	}
	_ = body

	result, err := h.Engine.Cleanup(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("webhook cleanup failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Checked     int `json:"checked"`
		Deactivated int `json:"deactivated"`
	}{result.Checked, result.Deactivated})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

