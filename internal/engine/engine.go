// Package engine implements the checkout fraud-signal detection engine.
//
// The engine is a pure function of its input: one transaction snapshot in,
// zero or more severity-tagged signals out, in fixed check order. It holds
// no state between calls, performs no I/O, and never fails — a malformed
// snapshot simply produces fewer signals. It runs synchronously inside the
// checkout flow, after the sale is committed, and must not be able to fail
// the sale.
package engine

import (
	"fmt"

	"github.com/openretail/magpie/internal/domain"
)

// Engine evaluates a transaction snapshot against the built-in checks.
type Engine struct {
	cfg domain.EngineConfig
}

// New creates an engine with the given thresholds. Zero-valued thresholds
// fall back to the stock defaults.
func New(cfg domain.EngineConfig) *Engine {
	def := domain.DefaultEngineConfig()
	if cfg.BulkItemCount <= 0 {
		cfg.BulkItemCount = def.BulkItemCount
	}
	if cfg.BulkAvgPrice <= 0 {
		cfg.BulkAvgPrice = def.BulkAvgPrice
	}
	if cfg.DiscountPercent <= 0 {
		cfg.DiscountPercent = def.DiscountPercent
	}
	if cfg.CashCeiling <= 0 {
		cfg.CashCeiling = def.CashCeiling
	}
	if cfg.OffHoursStart <= 0 {
		cfg.OffHoursStart = def.OffHoursStart
	}
	if cfg.OffHoursEnd <= 0 {
		cfg.OffHoursEnd = def.OffHoursEnd
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	return &Engine{cfg: cfg}
}

// Analyze runs the four checks in fixed order and returns their signals
// concatenated. No check depends on another's outcome and none can abort
// the evaluation; output order is check order, not severity order.
func (e *Engine) Analyze(tx *domain.TransactionContext) []domain.FraudSignal {
	if tx == nil {
		return nil
	}

	var signals []domain.FraudSignal
	if sig := e.checkSkipScan(tx); sig != nil {
		signals = append(signals, *sig)
	}
	signals = append(signals, e.checkDiscountAbuse(tx)...)
	if sig := e.checkCashVolume(tx); sig != nil {
		signals = append(signals, *sig)
	}
	if sig := e.checkOffHours(tx); sig != nil {
		signals = append(signals, *sig)
	}
	return signals
}

// checkSkipScan flags a bulk basket with an abnormally low per-item
// average: a cashier who scans only part of a large basket produces a
// total far below what the item count implies.
func (e *Engine) checkSkipScan(tx *domain.TransactionContext) *domain.FraudSignal {
	itemCount := tx.ItemCount()

	divisor := itemCount
	if divisor < 1 {
		divisor = 1
	}
	avgPricePerItem := tx.TotalAmount / float64(divisor)

	if itemCount < e.cfg.BulkItemCount || avgPricePerItem >= e.cfg.BulkAvgPrice {
		return nil
	}

	return &domain.FraudSignal{
		Severity: domain.SeverityHigh,
		Type:     domain.SignalSkipScan,
		Description: fmt.Sprintf("Suspiciously low bill amount (%s%.2f) for high item count (%d). Possible skip-scan.",
			e.cfg.Currency, tx.TotalAmount, itemCount),
		Details: map[string]any{
			"itemCount":       itemCount,
			"avgPricePerItem": avgPricePerItem,
		},
	}
}

// checkDiscountAbuse flags each line sold at a discount deeper than the
// threshold against its catalog price. Lines without a resolved catalog
// price are exempt, not suspicious: missing data must not flag a sale.
func (e *Engine) checkDiscountAbuse(tx *domain.TransactionContext) []domain.FraudSignal {
	var signals []domain.FraudSignal
	for _, item := range tx.Items {
		if item.OriginalPrice == nil {
			continue
		}
		original := *item.OriginalPrice
		if original <= 0 || item.Price >= original {
			continue
		}

		discountPercent := (original - item.Price) / original * 100
		if discountPercent <= e.cfg.DiscountPercent {
			continue
		}

		signals = append(signals, domain.FraudSignal{
			Severity: domain.SeverityMedium,
			Type:     domain.SignalDiscountAbuse,
			Description: fmt.Sprintf("Heavy discount (%.0f%%) detected on %s.",
				discountPercent, item.Name),
			Details: map[string]any{
				"item":     item.Name,
				"original": original,
				"sold":     item.Price,
			},
		})
	}
	return signals
}

// checkCashVolume flags large cash sales, which carry higher
// under-recording risk and merit manual reconciliation.
func (e *Engine) checkCashVolume(tx *domain.TransactionContext) *domain.FraudSignal {
	if tx.PaymentMethod != domain.PaymentCash || tx.TotalAmount <= e.cfg.CashCeiling {
		return nil
	}

	return &domain.FraudSignal{
		Severity: domain.SeverityMedium,
		Type:     domain.SignalCashPocketing,
		Description: fmt.Sprintf("High value cash transaction (%s%.2f). Verify cash collection.",
			e.cfg.Currency, tx.TotalAmount),
	}
}

// checkOffHours flags sales recorded late at night or early in the
// morning, using the hour of the supplied timestamp only.
func (e *Engine) checkOffHours(tx *domain.TransactionContext) *domain.FraudSignal {
	hour := tx.Timestamp.Hour()
	if hour < e.cfg.OffHoursStart && hour >= e.cfg.OffHoursEnd {
		return nil
	}

	return &domain.FraudSignal{
		Severity: domain.SeverityLow,
		Type:     domain.SignalTimeAnomaly,
		Description: fmt.Sprintf("Transaction recorded outside normal business hours (%s).",
			tx.Timestamp.Format("3:04:05 PM")),
	}
}
