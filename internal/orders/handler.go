package orders

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
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

// Register mounts the order routes. authn authenticates the caller and admin
// additionally requires the admin role.
func (h *Handler) Register(mux *http.ServeMux, authn, admin func(http.Handler) http.Handler) {
	mux.Handle("GET /orders", authn(http.HandlerFunc(h.HandleList)))
	mux.Handle("POST /orders", authn(http.HandlerFunc(h.HandleCreate)))
	mux.Handle("POST /orders/from-cart", authn(http.HandlerFunc(h.HandleCreateFromCart)))
	mux.Handle("GET /orders/{id}", authn(http.HandlerFunc(h.HandleGet)))
	mux.Handle("POST /orders/{id}/cancel", authn(http.HandlerFunc(h.HandleCancel)))
	mux.Handle("PATCH /orders/{id}/ship", authn(admin(http.HandlerFunc(h.HandleShip))))
	mux.Handle("PATCH /orders/{id}/deliver", authn(admin(http.HandlerFunc(h.HandleDeliver))))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.Place)
}

func (h *Handler) HandleCreateFromCart(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.PlaceFromCart)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, place func(ctx context.Context, in PlaceInput) (*domain.Order, error)) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	var in PlaceInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, log, err)
		return
	}
	in.UserID = actor.UserID

	order, err := place(r.Context(), in)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	order, err := h.service.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	orders, err := h.service.List(r.Context(), actor)
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	log.Debug("orders listed", zap.Int("count", len(orders)))
	respond.JSON(w, log, http.StatusOK, orders)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) HandleShip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Ship)
}

func (h *Handler) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Deliver)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error)) {
	actor, _ := auth.ActorFromContext(r.Context())
	log := logging.FromContext(r.Context(), h.logger)

	order, err := fn(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	respond.JSON(w, log, http.StatusOK, order)
}
