package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/openretail/magpie/internal/bus"
	"github.com/openretail/magpie/internal/cache"
	"github.com/openretail/magpie/internal/checkout"
	"github.com/openretail/magpie/internal/domain"
	"github.com/openretail/magpie/internal/engine"
	"github.com/openretail/magpie/internal/repository"
	"github.com/openretail/magpie/internal/rules"
)

// createTestServer wires a full server against a temp sqlite database.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "magpie-api-*.db")
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

	rulesEngine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rules engine: %v", err)
	}
	t.Cleanup(func() { rulesEngine.Close() })

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	processor := checkout.NewProcessor(repo, priceCache, eventBus, engine.New(domain.DefaultEngineConfig()), rulesEngine)
	return NewServer(cfg, repo, priceCache, processor, rulesEngine, "test-v1")
}

func doRequest(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Retailer-ID", "retailer-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestRecordSaleEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulSale", func(t *testing.T) {
		reqBody := domain.SaleRequest{
			Items: []domain.SaleRequestItem{
				{Name: "Toothpaste", Price: 99, Quantity: 2},
			},
			PaymentMethod: "upi",
			CashierID:     "cashier-1",
		}

		rr := doRequest(server, http.MethodPost, "/sales", reqBody)
		if rr.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp checkout.Result
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.SaleID == "" {
			t.Error("expected saleId in response")
		}
		if resp.Total != 198 {
			t.Errorf("expected total 198, got %.2f", resp.Total)
		}
	})

	t.Run("MissingRetailerID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sales", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Retailer-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sales", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Retailer-ID", "retailer-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("EmptyItems", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/sales", domain.SaleRequest{
			PaymentMethod: "cash",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("SaleWithSignals", func(t *testing.T) {
		reqBody := domain.SaleRequest{
			Items: []domain.SaleRequestItem{
				{Name: "Gold Chain", Price: 8000, Quantity: 1},
			},
			PaymentMethod: "cash",
		}

		rr := doRequest(server, http.MethodPost, "/sales", reqBody)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp checkout.Result
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Signals) == 0 {
			t.Error("expected cash volume signal in response")
		}
	})
}

func TestGetSaleEndpoint(t *testing.T) {
	server := createTestServer(t)

	rr := doRequest(server, http.MethodPost, "/sales", domain.SaleRequest{
		Items:         []domain.SaleRequestItem{{Name: "Milk 1L", Price: 62, Quantity: 1}},
		PaymentMethod: "cash",
		CustomerPhone: "9876543210",
	})
	var created checkout.Result
	json.Unmarshal(rr.Body.Bytes(), &created)

	t.Run("Found", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/sales/"+created.SaleID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var sale domain.Sale
		json.Unmarshal(rr.Body.Bytes(), &sale)
		if sale.ID != created.SaleID || sale.Total != 62 {
			t.Errorf("unexpected sale: %+v", sale)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/sales/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("CustomerHistory", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/customers/9876543210/sales", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 sale, got %d", resp.Count)
		}
	})
}

func TestAlertEndpoints(t *testing.T) {
	server := createTestServer(t)

	// Record a sale that raises an alert.
	rr := doRequest(server, http.MethodPost, "/sales", domain.SaleRequest{
		Items:         []domain.SaleRequestItem{{Name: "Saree", Price: 5500, Quantity: 1}},
		PaymentMethod: "cash",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("setup sale failed: %d %s", rr.Code, rr.Body.String())
	}

	var alertID string

	t.Run("List", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alerts", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Alerts []domain.Alert `json:"alerts"`
			Count  int            `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count == 0 {
			t.Fatal("expected at least one open alert")
		}
		alertID = resp.Alerts[0].ID
	})

	t.Run("BadLimit", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alerts?limit=-1", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, fmt.Sprintf("/alerts/%s/resolve", alertID), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		// Resolved alerts drop out of the open list.
		rr = doRequest(server, http.MethodGet, "/alerts", nil)
		var resp struct {
			Alerts []domain.Alert `json:"alerts"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		for _, a := range resp.Alerts {
			if a.ID == alertID {
				t.Error("resolved alert still listed as open")
			}
		}
	})

	t.Run("ResolveMissing", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alerts/nope/resolve", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := doRequest(server, http.MethodDelete, "/alerts/"+alertID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		rr = doRequest(server, http.MethodDelete, "/alerts/"+alertID, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on double delete, got %d", rr.Code)
		}
	})
}

func TestProductEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Create", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/products", SaveProductRequest{
			ID:    "prod-001",
			Name:  "Basmati Rice 5kg",
			Price: 450,
			Stock: 20,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Get", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/products/prod-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var product domain.Product
		json.Unmarshal(rr.Body.Bytes(), &product)
		if product.Price != 450 {
			t.Errorf("expected price 450, got %.2f", product.Price)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/products", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 product, got %d", resp.Count)
		}
	})

	t.Run("MissingName", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/products", SaveProductRequest{Price: 10})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/products/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Create", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "card-cap-001",
			Name:       "Card Cap",
			Expression: "payment_method == 'card' && total_amount > 400.0",
			Severity:   domain.SeverityHigh,
			Enabled:    true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "bad-rule",
			Name:       "Bad",
			Expression: "total_amount +",
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NonBoolExpression", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "non-bool",
			Name:       "NonBool",
			Expression: "total_amount + 1.0",
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetAndList", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/rules/card-cap-001", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		rr = doRequest(server, http.MethodGet, "/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", resp.Count)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 rule after reload, got %d", resp.Count)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}
