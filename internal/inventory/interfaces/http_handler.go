package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"lager/internal/inventory/application"
	"lager/internal/inventory/domain"
)

// StockHandler 封装了库存预占引擎的 HTTP 处理器
type StockHandler struct {
	service *application.StockService
}

// NewStockHandler 创建一个新的 HTTP 处理器实例
func NewStockHandler(service *application.StockService) *StockHandler {
	return &StockHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *StockHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/stock/introduce", h.handleIntroduce)
	mux.HandleFunc("/stock/inbound", h.handleInbound)
	mux.HandleFunc("/stock/check", h.handleCheck)
	mux.HandleFunc("/stock/get", h.handleGetStock)
	mux.HandleFunc("/stock/ledger", h.handleLedger)
	mux.HandleFunc("/stock/recalculate", h.handleRecalculate)

	mux.HandleFunc("/reservation/reserve", h.handleReserve)
	mux.HandleFunc("/reservation/confirm", h.handleConfirm)
	mux.HandleFunc("/reservation/cancel", h.handleCancel)
}

func (h *StockHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *StockHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	productID := r.URL.Query().Get("product_id")
	quantity, _ := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)

	resp, err := h.service.CheckAvailability(ctx, productID, quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

type reserveRequest struct {
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	Holder     string `json:"holder"`
	OrderRef   string `json:"order_ref"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (h *StockHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Reserve(ctx, application.ReserveRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Holder:    req.Holder,
		OrderRef:  req.OrderRef,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"reservation_id": result.Reservation.ID,
		"product_id":     result.Reservation.ProductID,
		"quantity":       result.Reservation.Quantity,
		"status":         result.Reservation.Status,
		"expires_at":     result.Reservation.ExpiresAt,
		"reused":         result.Reused,
		"strategy":       result.StrategyUsed,
	})
}

type reservationActionRequest struct {
	ReservationID string `json:"reservation_id"`
	Actor         string `json:"actor"`
	Reason        string `json:"reason"`
}

func (h *StockHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req reservationActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reservation, err := h.service.Confirm(ctx, req.ReservationID, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, reservation)
}

func (h *StockHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req reservationActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by holder"
	}

	reservation, err := h.service.Cancel(ctx, req.ReservationID, req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, reservation)
}

type inboundRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason"`
}

func (h *StockHandler) handleInbound(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stock, err := h.service.ReceiveInbound(ctx, req.ProductID, req.Quantity, req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stock)
}

type introduceRequest struct {
	ProductID     string `json:"product_id"`
	WarehouseCode string `json:"warehouse_code"`
	MinStockLevel int64  `json:"min_stock_level"`
	ReorderPoint  int64  `json:"reorder_point"`
}

func (h *StockHandler) handleIntroduce(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req introduceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stock, err := h.service.IntroduceStock(ctx, req.ProductID, req.WarehouseCode, req.MinStockLevel, req.ReorderPoint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stock)
}

func (h *StockHandler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	stock, err := h.service.GetStock(ctx, r.URL.Query().Get("product_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stock)
}

func (h *StockHandler) handleLedger(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Ledger(ctx, r.URL.Query().Get("product_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (h *StockHandler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	corrected, err := h.service.RecalculateAvailability(ctx, req.ProductID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"corrected": corrected})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError 把领域错误映射为 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrReservationExpired),
		errors.Is(err, domain.ErrStockExists):
		statusCode = http.StatusConflict // 请求有效，但当前状态拒绝执行
	case errors.Is(err, domain.ErrConcurrencyConflict):
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}
