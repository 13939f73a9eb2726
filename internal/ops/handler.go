// Package ops exposes the operational HTTP surface: liveness and read-only
// order lookups for audit.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/marshallcc/purchase-bot/internal/order/domain"
)

type OrderGetter interface {
	Get(ctx context.Context, id int64) (domain.Order, error)
}

type Handler struct {
	log    *slog.Logger
	orders OrderGetter
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, orders OrderGetter) *Handler {
	return &Handler{
		log:    log,
		orders: orders,
		tracer: otel.Tracer("ops-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)
	r.Get("/orders/{id}", h.getOrder)

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.orders.Get(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("order lookup failed", "order_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(o)
}
