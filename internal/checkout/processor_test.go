package checkout

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openretail/magpie/internal/bus"
	"github.com/openretail/magpie/internal/cache"
	"github.com/openretail/magpie/internal/domain"
	"github.com/openretail/magpie/internal/engine"
	"github.com/openretail/magpie/internal/repository"
	"github.com/openretail/magpie/internal/rules"
)

func newTestProcessor(t *testing.T) (*Processor, domain.Repository, *bus.ChannelBus) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "magpie-checkout-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	priceCache := cache.NewLRUCache(100)
	eng := engine.New(domain.DefaultEngineConfig())

	p := NewProcessor(repo, priceCache, eventBus, eng, nil)
	return p, repo, eventBus
}

func TestRecordSale(t *testing.T) {
	p, repo, _ := newTestProcessor(t)
	ctx := context.Background()
	retailerID := "retailer-001"

	req := &domain.SaleRequest{
		Items: []domain.SaleRequestItem{
			{ProductID: "prod-001", Name: "Sunflower Oil 1L", Price: 180, Quantity: 2},
		},
		PaymentMethod: "upi",
		CustomerPhone: "9876543210",
		CashierID:     "cashier-1",
	}

	result, err := p.RecordSale(ctx, retailerID, req)
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	if result.SaleID == "" {
		t.Error("expected sale ID to be assigned")
	}
	if result.Total != 360 {
		t.Errorf("expected total 360, got %.2f", result.Total)
	}
	for _, sig := range result.Signals {
		// A run during off-hours legitimately adds time_anomaly.
		if sig.Type != domain.SignalTimeAnomaly {
			t.Errorf("expected clean sale, got signal: %v", sig)
		}
	}

	// Sale must be persisted regardless of analysis outcome.
	sale, err := repo.GetSale(ctx, retailerID, result.SaleID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if sale.PaymentMethod != "upi" || len(sale.Items) != 1 {
		t.Errorf("unexpected persisted sale: %+v", sale)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *domain.SaleRequest
	}{
		{"NilRequest", nil},
		{"EmptyItems", &domain.SaleRequest{PaymentMethod: "cash"}},
		{"MissingPaymentMethod", &domain.SaleRequest{
			Items: []domain.SaleRequestItem{{Name: "Milk", Price: 30, Quantity: 1}},
		}},
		{"ZeroQuantity", &domain.SaleRequest{
			Items:         []domain.SaleRequestItem{{Name: "Milk", Price: 30, Quantity: 0}},
			PaymentMethod: "cash",
		}},
		{"NegativePrice", &domain.SaleRequest{
			Items:         []domain.SaleRequestItem{{Name: "Milk", Price: -5, Quantity: 1}},
			PaymentMethod: "cash",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.RecordSale(ctx, "retailer-001", tc.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	t.Run("MissingRetailerID", func(t *testing.T) {
		req := &domain.SaleRequest{
			Items:         []domain.SaleRequestItem{{Name: "Milk", Price: 30, Quantity: 1}},
			PaymentMethod: "cash",
		}
		if _, err := p.RecordSale(ctx, "", req); err == nil {
			t.Error("expected error for missing retailerID")
		}
	})
}

func TestRecordSaleFilesAlerts(t *testing.T) {
	p, repo, eventBus := newTestProcessor(t)
	ctx := context.Background()
	retailerID := "retailer-001"

	var alertPublished atomic.Bool
	eventBus.Subscribe(ctx, retailerID, domain.TopicAlertRaised, func(ctx context.Context, msg *domain.Message) error {
		alertPublished.Store(true)
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	// Large cash sale: cash_pocketing fires.
	req := &domain.SaleRequest{
		Items: []domain.SaleRequestItem{
			{Name: "Pressure Cooker 5L", Price: 6000, Quantity: 1},
		},
		PaymentMethod: "cash",
	}

	result, err := p.RecordSale(ctx, retailerID, req)
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	if len(result.Signals) == 0 {
		t.Fatal("expected cash volume signal")
	}
	if result.Signals[0].Type != domain.SignalCashPocketing {
		t.Errorf("expected cash_pocketing signal, got %s", result.Signals[0].Type)
	}
	if result.AlertCount != len(result.Signals) {
		t.Errorf("expected %d alerts, got %d", len(result.Signals), result.AlertCount)
	}

	open, err := repo.ListOpenAlerts(ctx, retailerID, 0)
	if err != nil {
		t.Fatalf("ListOpenAlerts failed: %v", err)
	}
	if len(open) != len(result.Signals) {
		t.Fatalf("expected %d persisted alerts, got %d", len(result.Signals), len(open))
	}
	if open[0].TransactionID != result.SaleID {
		t.Errorf("alert should reference sale %s, got %s", result.SaleID, open[0].TransactionID)
	}

	time.Sleep(50 * time.Millisecond)
	if !alertPublished.Load() {
		t.Error("expected alert event on the bus")
	}
}

func TestRecordSaleResolvesOriginalPrices(t *testing.T) {
	p, repo, _ := newTestProcessor(t)
	ctx := context.Background()
	retailerID := "retailer-001"

	// Catalog says 200; sale rings it up at 80: >50% discount.
	if err := repo.SaveProduct(ctx, retailerID, &domain.Product{
		ID:    "prod-ghee",
		Name:  "Ghee 500ml",
		Price: 200,
		Stock: 10,
	}); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}

	req := &domain.SaleRequest{
		Items: []domain.SaleRequestItem{
			{ProductID: "prod-ghee", Name: "Ghee 500ml", Price: 80, Quantity: 1},
		},
		PaymentMethod: "card",
	}

	result, err := p.RecordSale(ctx, retailerID, req)
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	var found bool
	for _, sig := range result.Signals {
		if sig.Type == domain.SignalDiscountAbuse {
			found = true
			if sig.Details["original"] != 200.0 {
				t.Errorf("expected original 200, got %v", sig.Details["original"])
			}
		}
	}
	if !found {
		t.Errorf("expected discount_abuse signal, got %v", result.Signals)
	}
}

func TestRecordSaleUnknownProductExempt(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	ctx := context.Background()

	// No catalog entry: the discount check cannot apply.
	req := &domain.SaleRequest{
		Items: []domain.SaleRequestItem{
			{ProductID: "prod-missing", Name: "Loose Jaggery", Price: 10, Quantity: 1},
		},
		PaymentMethod: "card",
	}

	result, err := p.RecordSale(ctx, "retailer-001", req)
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	for _, sig := range result.Signals {
		if sig.Type == domain.SignalDiscountAbuse {
			t.Errorf("unmatched product should be exempt from discount check: %v", sig)
		}
	}
}

func TestRecordSaleWithCustomRules(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	ctx := context.Background()

	rulesEngine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rules engine: %v", err)
	}
	defer rulesEngine.Close()

	err = rulesEngine.LoadRule(&domain.RuleConfig{
		ID:         "card-cap",
		Name:       "Card Cap",
		Expression: "payment_method == 'card' && total_amount > 400.0",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}
	p.rules = rulesEngine

	req := &domain.SaleRequest{
		Items: []domain.SaleRequestItem{
			{Name: "Basmati Rice 5kg", Price: 450, Quantity: 1},
		},
		PaymentMethod: "card",
	}

	result, err := p.RecordSale(ctx, "retailer-001", req)
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	var found bool
	for _, sig := range result.Signals {
		if sig.Type == domain.SignalPriceOverride {
			found = true
		}
	}
	if !found {
		t.Errorf("expected custom rule signal, got %v", result.Signals)
	}
}

func TestAnalyzeSale(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	ctx := context.Background()

	sale := &domain.Sale{
		ID:            "sale-001",
		RetailerID:    "retailer-001",
		Items:         []domain.LineItem{{Name: "Soap", Price: 6000, Quantity: 1}},
		Total:         6000,
		PaymentMethod: "cash",
		Timestamp:     time.Date(2025, 3, 10, 14, 0, 0, 0, time.Local),
	}

	signals := p.AnalyzeSale(ctx, sale)
	if len(signals) != 1 || signals[0].Type != domain.SignalCashPocketing {
		t.Errorf("expected single cash_pocketing signal, got %v", signals)
	}

	if got := p.AnalyzeSale(ctx, nil); got != nil {
		t.Errorf("expected nil for nil sale, got %v", got)
	}
}
