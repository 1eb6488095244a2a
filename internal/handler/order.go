package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/blindbox-shop/order-service/internal/domain/auth"
	"github.com/blindbox-shop/order-service/internal/domain/order"
	"github.com/blindbox-shop/order-service/pkg/idempotency"
)

// CreateOrder handles POST /api/orders. When the client supplies an
// Idempotency-Key that was already fulfilled, the original order is returned
// instead of creating a duplicate.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idemKey := idempotency.Key(r)
	if h.idempotent != nil && idemKey != "" {
		if existingID, err := h.idempotent.Lookup(r.Context(), idemKey); err != nil {
			zctx.From(r.Context()).Warn("idempotency lookup failed", zap.Error(err))
		} else if existingID != "" {
			existing, err := h.orders.Get(r.Context(), caller, existingID)
			if err == nil {
				writeJSON(w, http.StatusOK, orderEnvelope{Order: toOrderResponse(existing)})
				return
			}
		}
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Blindbox:  (*order.BlindboxSnapshot)(it.Blindbox),
		}
	}

	var billing *order.Address
	if req.BillingAddress != nil {
		b := toAddress(req.BillingAddress)
		billing = &b
	}

	o, err := h.orders.PlaceOrder(r.Context(), caller, order.PlaceOrderRequest{
		StoreID:         req.StoreID,
		Items:           items,
		ShippingAddress: toAddress(req.ShippingAddress),
		BillingAddress:  billing,
		PaymentMethod: order.PaymentMethod{
			Type:    order.PaymentMethodType(req.PaymentMethod.Type),
			Details: req.PaymentMethod.Details,
		},
		Notes: req.Notes,
	})
	if err != nil {
		writeDomainError(r, w, err)
		return
	}

	if h.idempotent != nil && idemKey != "" {
		if err := h.idempotent.Remember(r.Context(), idemKey, o.ID); err != nil {
			zctx.From(r.Context()).Warn("idempotency remember failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, orderEnvelope{Order: toOrderResponse(o)})
}

// UpdateOrderStatus handles PUT /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), caller, chi.URLParam(r, "id"), order.StatusUpdateRequest{
		Status:             order.Status(req.Status),
		Note:               req.Note,
		CancellationReason: req.CancellationReason,
		ReturnReason:       req.ReturnReason,
	})
	if err != nil {
		writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, orderEnvelope{Order: toOrderResponse(o)})
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())

	o, err := h.orders.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, orderEnvelope{Order: toOrderResponse(o)})
}

// ListOrders handles GET /api/orders with role-scoped filters.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())

	f := listFilterFromQuery(r)
	orders, total, err := h.orders.List(r.Context(), caller, f)
	if err != nil {
		writeDomainError(r, w, err)
		return
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	resp := orderListResponse{
		Count:       len(orders),
		Total:       total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		Orders:      make([]orderResponse, len(orders)),
	}
	for i := range orders {
		resp.Orders[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// OrderStatistics handles GET /api/orders/statistics for sellers and admins.
func (h *Handler) OrderStatistics(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())

	stats, err := h.orders.Stats(r.Context(), caller, r.URL.Query().Get("storeId"))
	if err != nil {
		writeDomainError(r, w, err)
		return
	}

	resp := statisticsResponse{
		TotalOrders:  stats.TotalOrders,
		ByStatus:     make([]statusCountDTO, len(stats.ByStatus)),
		DailyRevenue: make([]dailyRevenueDTO, len(stats.DailyRevenue)),
	}
	for i, sc := range stats.ByStatus {
		resp.ByStatus[i] = statusCountDTO{
			Status:  string(sc.Status),
			Count:   sc.Count,
			Revenue: sc.Revenue.InexactFloat64(),
		}
	}
	for i, dr := range stats.DailyRevenue {
		resp.DailyRevenue[i] = dailyRevenueDTO{
			Date:    dr.Day.Format("2006-01-02"),
			Orders:  dr.Orders,
			Revenue: dr.Revenue.InexactFloat64(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func listFilterFromQuery(r *http.Request) order.ListFilter {
	q := r.URL.Query()
	f := order.ListFilter{
		StoreID: q.Get("storeId"),
		Status:  order.Status(q.Get("status")),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}
	if t, err := time.Parse(time.RFC3339, q.Get("fromDate")); err == nil {
		f.From = t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("toDate")); err == nil {
		f.To = t
	}
	return f
}
