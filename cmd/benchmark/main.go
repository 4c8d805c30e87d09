// Load generator for testing Magpie against synthetic checkout traffic.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 10000
//
// This tool:
//   1. Generates synthetic sales with a configurable share of suspicious patterns
//   2. Sends each sale to Magpie for recording and analysis
//   3. Compares the signals Magpie raised with the injected patterns
//   4. Calculates detection rate, false-alarm rate, and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// SyntheticSale is one generated checkout with its injected label.
type SyntheticSale struct {
	Seq           int
	Items         []SaleItem
	PaymentMethod string
	CustomerPhone string
	CashierID     string
	Pattern       string // "" for clean sales
}

type SaleItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// RecordRequest is the Magpie API request format
type RecordRequest struct {
	Items         []SaleItem `json:"items"`
	PaymentMethod string     `json:"paymentMethod"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	CashierID     string     `json:"cashierId,omitempty"`
}

// RecordResponse is the Magpie API response format
type RecordResponse struct {
	SaleID  string  `json:"saleId"`
	Total   float64 `json:"total"`
	Signals []struct {
		Type     string `json:"type"`
		Severity string `json:"severity"`
	} `json:"signals"`
	AlertCount int `json:"alertCount"`
}

// Metrics tracks load-test results
type Metrics struct {
	TruePositives  int64 // injected pattern flagged
	FalsePositives int64 // clean sale flagged
	TrueNegatives  int64 // clean sale passed
	FalseNegatives int64 // injected pattern missed

	TotalProcessed int64
	TotalInjected  int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Magpie base URL")
	retailerID := flag.String("retailer", "benchmark-store", "Retailer ID for requests")
	count := flag.Int("count", 10000, "Number of sales to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudRate := flag.Float64("fraud", 0.1, "Share of sales with an injected pattern (0.0-1.0)")
	seed := flag.Int64("seed", 42, "Random seed for reproducible traffic")
	verbose := flag.Bool("verbose", false, "Print each sale result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          MAGPIE LOAD TEST - Synthetic Checkout Traffic        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nMagpie URL:  %s\n", *baseURL)
	fmt.Printf("Retailer:    %s\n", *retailerID)
	fmt.Printf("Sales:       %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Fraud Rate:  %.2f\n", *fraudRate)
	fmt.Println()

	// Check Magpie is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Magpie not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Magpie is running:")
		fmt.Println("  go run cmd/magpie/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Magpie is healthy")

	// Generate traffic
	fmt.Printf("\nGenerating %d synthetic sales...\n", *count)
	sales := generateSales(*count, *fraudRate, *seed)

	injected := 0
	for _, s := range sales {
		if s.Pattern != "" {
			injected++
		}
	}
	fmt.Printf("✓ Generated %d sales\n", len(sales))
	fmt.Printf("  - Injected:  %d (%.2f%%)\n", injected, 100*float64(injected)/float64(len(sales)))
	fmt.Printf("  - Clean:     %d (%.2f%%)\n", len(sales)-injected, 100*float64(len(sales)-injected)/float64(len(sales)))

	// Run load test
	fmt.Printf("\nRunning load test with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoadTest(sales, *baseURL, *retailerID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

var productNames = []string{
	"Rice 5kg", "Sunflower Oil 1L", "Toor Dal 1kg", "Sugar 1kg", "Tea 250g",
	"Atta 10kg", "Detergent 2kg", "Shampoo 340ml", "Biscuits", "Salt 1kg",
}

func generateSales(count int, fraudRate float64, seed int64) []SyntheticSale {
	rng := rand.New(rand.NewSource(seed))
	sales := make([]SyntheticSale, 0, count)

	for i := 0; i < count; i++ {
		sale := SyntheticSale{
			Seq:           i,
			PaymentMethod: []string{"cash", "card", "upi"}[rng.Intn(3)],
			CashierID:     fmt.Sprintf("cashier-%d", rng.Intn(5)+1),
		}
		if rng.Float64() < 0.6 {
			sale.CustomerPhone = fmt.Sprintf("98%08d", rng.Intn(100000000))
		}

		if rng.Float64() < fraudRate {
			switch rng.Intn(3) {
			case 0:
				// Basket stuffed with near-worthless lines
				sale.Pattern = "skip_scan"
				n := 5 + rng.Intn(5)
				for j := 0; j < n; j++ {
					sale.Items = append(sale.Items, SaleItem{
						ProductID: fmt.Sprintf("sku-%d", rng.Intn(1000)),
						Name:      productNames[rng.Intn(len(productNames))],
						Quantity:  1,
						Price: 2 + rng.Float64()*10,
					})
				}
			case 1:
				// One oversized cash settlement
				sale.Pattern = "cash_pocketing"
				sale.PaymentMethod = "cash"
				sale.Items = append(sale.Items, SaleItem{
					ProductID: fmt.Sprintf("sku-%d", rng.Intn(1000)),
					Name:      "Pressure Cooker 5L",
					Quantity:  1,
					Price: 5500 + rng.Float64()*3000,
				})
			default:
				// Low-value basket that still trips the per-item average
				sale.Pattern = "skip_scan"
				n := 6 + rng.Intn(4)
				for j := 0; j < n; j++ {
					sale.Items = append(sale.Items, SaleItem{
						ProductID: fmt.Sprintf("sku-%d", rng.Intn(1000)),
						Name:      productNames[rng.Intn(len(productNames))],
						Quantity:  1 + rng.Intn(2),
						Price: 5 + rng.Float64()*8,
					})
				}
			}
		} else {
			// Ordinary basket: a few items at healthy prices
			n := 1 + rng.Intn(4)
			for j := 0; j < n; j++ {
				sale.Items = append(sale.Items, SaleItem{
					ProductID: fmt.Sprintf("sku-%d", rng.Intn(1000)),
					Name:      productNames[rng.Intn(len(productNames))],
					Quantity:  1 + rng.Intn(3),
					Price: 40 + rng.Float64()*400,
				})
			}
		}

		sales = append(sales, sale)
	}

	return sales
}

func runLoadTest(sales []SyntheticSale, baseURL, retailerID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan SyntheticSale, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for sale := range work {
				start := time.Now()
				result, err := recordSale(client, baseURL, retailerID, sale)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: sale %d -> %v\n", sale.Seq, err)
					}
					continue
				}

				injected := sale.Pattern != ""
				if injected {
					atomic.AddInt64(&metrics.TotalInjected, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				flagged := hasSignal(result, sale.Pattern)

				if flagged && injected {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if flagged && !injected {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !flagged && !injected {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (flagged && !injected) || (!flagged && injected) {
						status = "✗"
					}
					fmt.Printf("%s sale %-6d | Pay: %-4s | Total: ₹%10.2f | Pattern: %-14s | Signals: %d\n",
						status,
						sale.Seq,
						sale.PaymentMethod,
						result.Total,
						orDash(sale.Pattern),
						len(result.Signals),
					)
				}
			}
		}()
	}

	for _, sale := range sales {
		work <- sale
	}
	close(work)

	wg.Wait()

	return metrics
}

// hasSignal reports whether the response carries the expected signal. Clean
// sales count as flagged when any non-time signal fires; time_anomaly is
// excluded since it depends on when the load test runs, not on the basket.
func hasSignal(result *RecordResponse, pattern string) bool {
	for _, sig := range result.Signals {
		if pattern != "" && sig.Type == pattern {
			return true
		}
		if pattern == "" && sig.Type != "time_anomaly" {
			return true
		}
	}
	return false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func recordSale(client *http.Client, baseURL, retailerID string, sale SyntheticSale) (*RecordResponse, error) {
	req := RecordRequest{
		Items:         sale.Items,
		PaymentMethod: sale.PaymentMethod,
		CustomerPhone: sale.CustomerPhone,
		CashierID:     sale.CashierID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/sales", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Retailer-ID", retailerID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result RecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      LOAD TEST RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TRAFFIC STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Injected:         %d\n", m.TotalInjected)
	fmt.Printf("   Clean:            %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Flagged")
	fmt.Println("                    YES         NO")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Injected   │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("   Clean      │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged sales, how many were injected)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of injected sales, how many were caught)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalInjected > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalInjected) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalInjected) * 100
		fmt.Printf("   Patterns Caught:   %d / %d (%.2f%%)\n", m.TruePositives, m.TotalInjected, detectionRate)
		fmt.Printf("   Patterns Missed:   %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalInjected, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f sales/sec\n", tps)
	}

	fmt.Println()
}
