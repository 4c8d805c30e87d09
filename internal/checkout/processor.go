// Package checkout implements the sale recording pipeline: persist the
// sale, resolve catalog prices, run fraud analysis, and file alerts.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openretail/magpie/internal/domain"
	"github.com/openretail/magpie/internal/engine"
	"github.com/openretail/magpie/internal/rules"
)

// Default TTL for catalog prices cached during original-price resolution.
const priceCacheTTL = 10 * time.Minute

// Processor records sales and drives fraud analysis over them.
// Analysis failures never fail the sale: a recorded sale is the source
// of truth, alerts are best-effort.
type Processor struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	engine *engine.Engine
	rules  *rules.Engine
}

// NewProcessor creates a checkout processor. The rules engine may be nil
// when no retailer-defined rules are configured.
func NewProcessor(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, rulesEngine *rules.Engine) *Processor {
	return &Processor{
		repo:   repo,
		cache:  cache,
		bus:    bus,
		engine: eng,
		rules:  rulesEngine,
	}
}

// Result is the outcome of recording one sale.
type Result struct {
	SaleID     string               `json:"saleId"`
	Total      float64              `json:"total"`
	Signals    []domain.FraudSignal `json:"signals"`
	AlertCount int                  `json:"alertCount"`
	DurationMs int64                `json:"durationMs"`
}

// RecordSale validates and persists a sale, then analyzes it for fraud.
// Returns an error only when the sale itself cannot be recorded.
func (p *Processor) RecordSale(ctx context.Context, retailerID string, req *domain.SaleRequest) (*Result, error) {
	start := time.Now()

	if retailerID == "" {
		return nil, fmt.Errorf("retailerID is required")
	}
	if req == nil || len(req.Items) == 0 {
		return nil, fmt.Errorf("sale must contain at least one item")
	}
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("payment method is required")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %q has invalid quantity %d", item.Name, item.Quantity)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("item %q has negative price", item.Name)
		}
	}

	now := time.Now()
	sale := &domain.Sale{
		ID:            uuid.New().String(),
		RetailerID:    retailerID,
		CustomerPhone: req.CustomerPhone,
		CashierID:     req.CashierID,
		Items:         p.resolveItems(ctx, retailerID, req.Items),
		PaymentMethod: req.PaymentMethod,
		Timestamp:     now,
		CreatedAt:     now.UTC(),
	}
	sale.Subtotal = req.Total()
	sale.Total = sale.Subtotal + sale.Tax

	if err := p.repo.SaveSale(ctx, retailerID, sale); err != nil {
		return nil, fmt.Errorf("failed to save sale: %w", err)
	}

	signals := p.analyze(ctx, sale)

	alertCount := p.fileAlerts(ctx, retailerID, sale.ID, signals)

	slog.Info("sale recorded",
		"sale_id", sale.ID,
		"retailer_id", retailerID,
		"total", sale.Total,
		"signal_count", len(signals),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		SaleID:     sale.ID,
		Total:      sale.Total,
		Signals:    signals,
		AlertCount: alertCount,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// AnalyzeSale re-runs fraud analysis over an already-persisted sale
// without filing alerts. Used by the async worker and dry-run callers.
func (p *Processor) AnalyzeSale(ctx context.Context, sale *domain.Sale) []domain.FraudSignal {
	if sale == nil {
		return nil
	}
	return p.analyze(ctx, sale)
}

// resolveItems converts request lines to sale lines, filling in the
// catalog price for discount detection. Cache first, repository on miss.
// A line that cannot be matched keeps a nil original price and is simply
// exempt from the discount check.
func (p *Processor) resolveItems(ctx context.Context, retailerID string, reqItems []domain.SaleRequestItem) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(reqItems))
	for _, ri := range reqItems {
		item := domain.LineItem{
			ID:       ri.ProductID,
			Name:     ri.Name,
			Price:    ri.Price,
			Quantity: ri.Quantity,
		}
		if ri.ProductID != "" {
			item.OriginalPrice = p.lookupPrice(ctx, retailerID, ri.ProductID)
		}
		items = append(items, item)
	}
	return items
}

func (p *Processor) lookupPrice(ctx context.Context, retailerID, productID string) *float64 {
	if p.cache != nil {
		price, err := p.cache.GetProductPrice(ctx, retailerID, productID)
		if err != nil {
			slog.Warn("price cache lookup failed",
				"product_id", productID,
				"error", err,
			)
		} else if price != nil {
			return price
		}
	}

	product, err := p.repo.GetProduct(ctx, retailerID, productID)
	if err != nil {
		return nil
	}

	if p.cache != nil {
		if err := p.cache.SetProductPrice(ctx, retailerID, productID, product.Price, priceCacheTTL); err != nil {
			slog.Warn("price cache write failed",
				"product_id", productID,
				"error", err,
			)
		}
	}

	return &product.Price
}

// analyze runs the built-in checks, then any retailer-defined rules.
func (p *Processor) analyze(ctx context.Context, sale *domain.Sale) []domain.FraudSignal {
	tx := &domain.TransactionContext{
		Items:         sale.Items,
		TotalAmount:   sale.Total,
		PaymentMethod: sale.PaymentMethod,
		CustomerPhone: sale.CustomerPhone,
		CashierID:     sale.CashierID,
		Timestamp:     sale.Timestamp,
	}

	signals := p.engine.Analyze(tx)

	if p.rules != nil && p.rules.RulesCount() > 0 {
		signals = append(signals, p.rules.Evaluate(ctx, tx)...)
	}

	return signals
}

// fileAlerts persists alerts for the signals and announces them on the
// bus. Returns the number of alerts written.
func (p *Processor) fileAlerts(ctx context.Context, retailerID, saleID string, signals []domain.FraudSignal) int {
	if len(signals) == 0 {
		return 0
	}

	alerts := domain.AlertsFromSignals(retailerID, saleID, signals, time.Now().UTC())
	for _, alert := range alerts {
		alert.ID = uuid.New().String()
	}

	if err := p.repo.InsertAlerts(ctx, retailerID, alerts); err != nil {
		slog.Error("failed to save alerts",
			"sale_id", saleID,
			"alert_count", len(alerts),
			"error", err,
		)
		return 0
	}

	if p.bus != nil {
		payload, _ := json.Marshal(alerts)
		if err := p.bus.Publish(ctx, retailerID, domain.TopicAlertRaised, payload); err != nil {
			slog.Error("failed to publish alerts",
				"sale_id", saleID,
				"error", err,
			)
		}
	}

	return len(alerts)
}
