package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/littlelatte/go-restaurant-orders/internal/webhook"
	"github.com/littlelatte/go-restaurant-orders/internal/yoco"
)

type WebhookHandler struct {
	Reconciler *webhook.Reconciler
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/yoco/webhook", h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	// The signature covers the exact bytes on the wire, so the body must be
	// read raw before any JSON parsing.
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	sig := r.Header.Get("webhook-signature")

	out, err := h.Reconciler.Process(r.Context(), body, sig)
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	case errors.Is(err, yoco.ErrMalformedEvent):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		// transient failure; non-2xx asks the provider to redeliver
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
	default:
		writeJSON(w, http.StatusOK, out)
	}
}
