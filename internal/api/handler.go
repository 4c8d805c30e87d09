package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openretail/magpie/internal/checkout"
	"github.com/openretail/magpie/internal/domain"
	"github.com/openretail/magpie/internal/repository"
	"github.com/openretail/magpie/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	processor *checkout.Processor
	rules     *rules.Engine
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, processor *checkout.Processor, rulesEngine *rules.Engine, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		processor: processor,
		rules:     rulesEngine,
		version:   version,
	}
}

// GlobalRetailerID is used for rules that apply to all retailers.
const GlobalRetailerID = "*"

// RecordSale handles POST /sales requests.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)

	var req domain.SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.processor.RecordSale(ctx, retailerID, &req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetSale retrieves a sale by ID.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)
	saleID := chi.URLParam(r, "id")

	if saleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "sale id is required",
		})
		return
	}

	sale, err := h.repo.GetSale(ctx, retailerID, saleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "sale not found",
			})
			return
		}
		slog.Error("failed to get sale", "id", saleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load sale",
		})
		return
	}

	writeJSON(w, http.StatusOK, sale)
}

// ListCustomerSales retrieves a customer's purchase history, newest first.
func (h *Handler) ListCustomerSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)
	phone := chi.URLParam(r, "phone")

	if phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer phone is required",
		})
		return
	}

	sales, err := h.repo.ListSalesByCustomer(ctx, retailerID, phone)
	if err != nil {
		slog.Error("failed to list customer sales", "phone", phone, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load sales",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sales": sales,
		"count": len(sales),
	})
}

// ListAlerts returns open alerts for review, newest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	alerts, err := h.repo.ListOpenAlerts(ctx, retailerID, limit)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlert marks an alert as reviewed. The row is retained for audit.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)
	alertID := chi.URLParam(r, "id")

	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	if err := h.repo.ResolveAlert(ctx, retailerID, alertID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to resolve alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve alert",
		})
		return
	}

	slog.Info("alert resolved", "id", alertID, "retailer_id", retailerID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "alert resolved",
	})
}

// DeleteAlert permanently removes an alert.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)
	alertID := chi.URLParam(r, "id")

	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	if err := h.repo.DeleteAlert(ctx, retailerID, alertID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to delete alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete alert",
		})
		return
	}

	slog.Info("alert deleted", "id", alertID, "retailer_id", retailerID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "alert deleted",
	})
}

// ListProducts returns the retailer's catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)

	products, err := h.repo.ListProducts(ctx, retailerID)
	if err != nil {
		slog.Error("failed to list products", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load products",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct retrieves a catalog entry by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)
	productID := chi.URLParam(r, "id")

	if productID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "product id is required",
		})
		return
	}

	product, err := h.repo.GetProduct(ctx, retailerID, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "product not found",
			})
			return
		}
		slog.Error("failed to get product", "id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load product",
		})
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// SaveProductRequest is the request body for creating or updating a product.
type SaveProductRequest struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// SaveProduct creates or updates a catalog entry. The cached price is
// invalidated so discount checks see the new list price immediately.
func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	retailerID := GetRetailerID(ctx)

	var req SaveProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if req.Price < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "price must be non-negative",
		})
		return
	}

	product := &domain.Product{
		ID:    req.ID,
		Name:  req.Name,
		Price: req.Price,
		Stock: req.Stock,
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}

	if err := h.repo.SaveProduct(ctx, retailerID, product); err != nil {
		slog.Error("failed to save product", "id", product.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save product",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.Delete(ctx, retailerID, "price:"+product.ID)
	}

	slog.Info("product saved", "id", product.ID, "retailer_id", retailerID)
	writeJSON(w, http.StatusCreated, product)
}

// ListRules returns all loaded custom rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rules engine not available",
		})
		return
	}

	loadedRules := h.rules.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rules engine not available",
		})
		return
	}

	for _, rule := range h.rules.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Severity    domain.Severity   `json:"severity,omitempty"`
	SignalType  domain.SignalType `json:"signalType,omitempty"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new custom rule and saves it to the database.
// Rules are saved globally (retailer_id = "*") so they apply to all retailers.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rules engine not available",
		})
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	// Create rule config (global retailer)
	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		RetailerID:  GlobalRetailerID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Severity:    req.Severity,
		SignalType:  req.SignalType,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.rules.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository (global retailer ID)
	if err := h.repo.SaveRuleConfig(ctx, GlobalRetailerID, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all custom rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rules engine not available",
		})
		return
	}

	// Load rules from database (global rules)
	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalRetailerID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	// Reload into engine
	if err := h.rules.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
