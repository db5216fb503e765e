package payment

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/respond"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the payment routes. The provider callbacks are not
// authenticated with a bearer token.
func (h *Handler) Register(mux *http.ServeMux, authn func(http.Handler) http.Handler) {
	mux.Handle("POST /orders/{id}/pay", authn(http.HandlerFunc(h.HandleInitiate)))
	mux.HandleFunc("GET /payments/return", h.HandleReturn)
	mux.HandleFunc("GET /payments/cancel", h.HandleCancel)
	mux.HandleFunc("POST /payments/webhook", h.HandleWebhook)
}

type initiateResponse struct {
	OrderID         string `json:"order_id"`
	ProviderOrderID string `json:"provider_order_id"`
	ApprovalURL     string `json:"approval_url"`
}

func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)
	orderID := r.PathValue("id")

	checkout, err := h.service.Initiate(r.Context(), actor, orderID)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, initiateResponse{
		OrderID:         orderID,
		ProviderOrderID: checkout.ProviderOrderID,
		ApprovalURL:     checkout.ApprovalURL,
	})
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.service.Confirm)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.service.CancelCheckout)
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, token string) (string, error)) {
	log := logging.FromContext(r.Context(), h.logger)

	token := r.URL.Query().Get("token")
	if token == "" {
		respond.Error(w, log, domain.Errorf(domain.KindInvalidArgument, "token query parameter is required"))
		return
	}

	target, err := fn(r.Context(), token)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleWebhook always acknowledges with 200 so the provider does not retry
// deliveries that can never succeed. Failures are logged.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	ack := map[string]bool{"received": true}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("failed to read webhook body", zap.Error(err))
		respond.JSON(w, log, http.StatusOK, ack)
		return
	}

	event, err := h.service.ParseWebhook(r.Context(), r, body)
	if err != nil {
		log.Warn("rejected webhook delivery", zap.Error(err))
		respond.JSON(w, log, http.StatusOK, ack)
		return
	}

	if err := h.service.HandleWebhook(r.Context(), event); err != nil {
		log.Error("failed to apply webhook event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("provider_order_id", event.ProviderOrderID),
		)
	}

	respond.JSON(w, log, http.StatusOK, ack)
}
