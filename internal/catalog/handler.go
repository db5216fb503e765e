// Package catalog exposes the read side of the product catalog and the admin
// restock operation.
package catalog

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/respond"
	"github.com/joao-fontenele/storefront/internal/store"
)

type Handler struct {
	store  store.Store
	logger *zap.Logger
}

func NewHandler(st store.Store, logger *zap.Logger) *Handler {
	return &Handler{store: st, logger: logger}
}

// Register mounts the catalog routes. Product reads are public; unpublished
// products are reported as missing.
func (h *Handler) Register(mux *http.ServeMux, authn, admin func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /products/{id}", h.HandleGetProduct)
	mux.Handle("POST /products/{id}/restock", authn(admin(http.HandlerFunc(h.HandleRestock))))
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	id := r.PathValue("id")

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		respond.Error(w, log, productNotFound(err, id))
		return
	}
	if !product.IsPublished {
		respond.Error(w, log, domain.Errorf(domain.KindNotFound, "product %s not found", id))
		return
	}

	respond.JSON(w, log, http.StatusOK, product)
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// HandleRestock adds units to a product's stock, published or not.
func (h *Handler) HandleRestock(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	actor, _ := auth.ActorFromContext(r.Context())
	id := r.PathValue("id")

	var req restockRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, log, err)
		return
	}
	if req.Quantity < 1 {
		respond.Error(w, log, domain.Errorf(domain.KindInvalidArgument, "quantity must be at least 1"))
		return
	}

	var product *domain.Product
	err := h.store.InTx(r.Context(), func(tx store.Tx) error {
		if err := tx.IncrementStock(r.Context(), id, req.Quantity); err != nil {
			return productNotFound(err, id)
		}
		var err error
		product, err = tx.GetProduct(r.Context(), id)
		return productNotFound(err, id)
	})
	if err != nil {
		respond.Error(w, log, err)
		return
	}

	log.Info("product restocked",
		zap.String("product_id", id),
		zap.Int("quantity", req.Quantity),
		zap.Int("stock", product.StockQuantity),
		zap.String("by", actor.UserID),
	)
	respond.JSON(w, log, http.StatusOK, product)
}

func productNotFound(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "product %s not found", id)
	}
	return err
}
