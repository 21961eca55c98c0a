package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	resultSent         = "message_sent_succesfully"
	resultException    = "exception_error"
	resultInbox        = "API Client not found for this inbox. Verify Chatwoot Whatsapp Web service configuration."
	resultUnauthorized = "Unauthorized access. Please provide a valid token."
)

// Handler serves the Chatwoot webhook endpoint.
type Handler struct {
	relay  *Relay
	logger *zap.Logger
}

// NewHandler creates the webhook HTTP handler.
func NewHandler(relay *Relay, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{relay: relay, logger: logger.Named("webhook")}
}

// ServeHTTP handles POST /chatwootMessage?token=<secret>.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.logger.Warn("invalid webhook body", zap.Error(err))
		writeResult(w, http.StatusBadRequest, resultException)
		return
	}

	_, err := h.relay.Deliver(r.Context(), &p, requestToken(r))
	switch {
	case err == nil:
		writeResult(w, http.StatusOK, resultSent)
	case errors.Is(err, ErrInboxMismatch):
		h.logger.Warn("webhook for foreign inbox rejected", zap.Int64("inbox_id", p.Inbox.ID))
		writeResult(w, http.StatusBadRequest, resultInbox)
	case errors.Is(err, ErrUnauthorized):
		h.logger.Warn("webhook with invalid token rejected", zap.String("remote", r.RemoteAddr))
		writeResult(w, http.StatusUnauthorized, resultUnauthorized)
	default:
		h.logger.Error("webhook processing failed", zap.Error(err), zap.Int64("chatwoot_msg_id", p.ID))
		writeResult(w, http.StatusBadRequest, resultException)
	}
}

// requestToken reads the shared secret from the token query parameter, or
// from a bearer Authorization header.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeResult(w http.ResponseWriter, status int, result string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
}
