package domain

import (
	"time"
)

// Alert is a persisted fraud signal awaiting retailer review. The mapping
// from FraudSignal is 1:1 (Type -> AlertType).
type Alert struct {
	ID            string         `json:"id"`
	RetailerID    string         `json:"retailerId"`
	TransactionID string         `json:"transactionId"`
	Severity      Severity       `json:"severity"`
	AlertType     SignalType     `json:"alertType"`
	Description   string         `json:"description"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`

	// ResolvedAt is set when a retailer marks the alert reviewed. Resolved
	// alerts are retained for audit and excluded from the review list.
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// AlertsFromSignals converts engine output to alert rows for one sale.
func AlertsFromSignals(retailerID, saleID string, signals []FraudSignal, now time.Time) []*Alert {
	alerts := make([]*Alert, 0, len(signals))
	for _, sig := range signals {
		alerts = append(alerts, &Alert{
			RetailerID:    retailerID,
			TransactionID: saleID,
			Severity:      sig.Severity,
			AlertType:     sig.Type,
			Description:   sig.Description,
			Details:       sig.Details,
			CreatedAt:     now,
		})
	}
	return alerts
}
