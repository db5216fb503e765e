package cart

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/respond"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the cart routes. Every route expects an authenticated actor.
func (h *Handler) Register(mux *http.ServeMux, authn func(http.Handler) http.Handler) {
	mux.Handle("GET /cart", authn(http.HandlerFunc(h.HandleGet)))
	mux.Handle("DELETE /cart", authn(http.HandlerFunc(h.HandleClear)))
	mux.Handle("POST /cart/items", authn(http.HandlerFunc(h.HandleAddItem)))
	mux.Handle("PATCH /cart/items/{productId}", authn(http.HandlerFunc(h.HandleUpdateItem)))
	mux.Handle("DELETE /cart/items/{productId}", authn(http.HandlerFunc(h.HandleRemoveItem)))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	cart, err := h.service.Get(r.Context(), actor.UserID)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, cart)
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	var req addItemRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, log, err)
		return
	}

	cart, err := h.service.AddItem(r.Context(), actor.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, cart)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	var req updateItemRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, log, err)
		return
	}

	cart, err := h.service.UpdateItem(r.Context(), actor.UserID, r.PathValue("productId"), req.Quantity)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, cart)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	cart, err := h.service.RemoveItem(r.Context(), actor.UserID, r.PathValue("productId"))
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, cart)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	cart, err := h.service.Clear(r.Context(), actor.UserID)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, cart)
}
