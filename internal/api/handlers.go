package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/api/middleware"
	"github.com/example/localmart/internal/command"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/feed"
	"github.com/example/localmart/internal/query"
	"github.com/example/localmart/internal/tracking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	tracking     *tracking.Service
	feed         *feed.Broker
	logger       *zap.Logger
}

func NewHandlers(
	cmdHandler *command.Handler,
	queryHandler *query.Handler,
	trackingSvc *tracking.Service,
	broker *feed.Broker,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		tracking:     trackingSvc,
		feed:         broker,
		logger:       logger.Named("api"),
	}
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.queryHandler.ListProducts(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.queryHandler.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateProduct
	if !decodeBody(w, r, &cmd) {
		return
	}

	product, err := h.cmdHandler.CreateProduct(r.Context(), principal(r), cmd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpdateProduct
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.ProductID = chi.URLParam(r, "id")

	product, err := h.cmdHandler.UpdateProduct(r.Context(), principal(r), cmd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	cmd := command.DeleteProduct{ProductID: chi.URLParam(r, "id")}
	if err := h.cmdHandler.DeleteProduct(r.Context(), principal(r), cmd); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.queryHandler.GetCart(r.Context(), principal(r).ID())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	cart, err := h.cmdHandler.AddToCart(r.Context(), command.AddToCart{
		CustomerID: principal(r).ID(),
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *Handlers) ChangeCartQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	cart, err := h.cmdHandler.ChangeCartQuantity(r.Context(), command.ChangeCartQuantity{
		CustomerID: principal(r).ID(),
		ProductID:  chi.URLParam(r, "productID"),
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cmdHandler.RemoveFromCart(r.Context(), command.RemoveFromCart{
		CustomerID: principal(r).ID(),
		ProductID:  chi.URLParam(r, "productID"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cmdHandler.ClearCart(r.Context(), command.ClearCart{CustomerID: principal(r).ID()})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// Order Handlers

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instructions string `json:"instructions"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	order, err := h.cmdHandler.Checkout(r.Context(), command.Checkout{
		CustomerID:   principal(r).ID(),
		Instructions: req.Instructions,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListOrders(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.queryHandler.GetOrder(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	order, err := h.cmdHandler.CancelOrder(r.Context(), principal(r), command.CancelOrder{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	order, err := h.cmdHandler.ProcessOrder(r.Context(), principal(r), command.ProcessOrder{
		OrderID: chi.URLParam(r, "id"),
		Note:    req.Note,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.cmdHandler.DeliverOrder(r.Context(), principal(r), command.DeliverOrder{
		OrderID: chi.URLParam(r, "id"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// Helper functions

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, errorResponse{Error: code, Message: msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "invalid_transition":
		return http.StatusUnprocessableEntity
	case "conflict":
		return http.StatusConflict
	case "unavailable":
		return http.StatusServiceUnavailable
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports err with its kind as the error code. Refused
// transitions carry only their reason so clients can show it as is.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.Kind(err)
	status := statusFor(kind)
	msg := err.Error()

	var transitionErr *errs.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		msg = transitionErr.Reason.Error()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeError(w, status, kind, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// principal returns the authenticated principal. Routes using it sit
// behind AuthMiddleware.
func principal(r *http.Request) actor.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}
