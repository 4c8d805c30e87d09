package domain

// Severity is the ordinal severity of a fraud signal.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"

	// SeverityCritical is reserved for forward compatibility; no built-in
	// check emits it.
	SeverityCritical Severity = "critical"
)

// SignalType identifies which check produced a signal. Each built-in check
// emits exactly one fixed type.
type SignalType string

const (
	SignalSkipScan      SignalType = "skip_scan"
	SignalDiscountAbuse SignalType = "discount_abuse"
	SignalCashPocketing SignalType = "cash_pocketing"
	SignalTimeAnomaly   SignalType = "time_anomaly"

	// SignalPriceOverride is not emitted by any built-in check; it is the
	// default type for retailer-defined custom rules.
	SignalPriceOverride SignalType = "price_override"
)

// FraudSignal is one flagged anomaly emitted for a single transaction.
// Description is a fully interpolated sentence embedding the offending
// values; Details carries the raw numbers for audit and drill-down.
type FraudSignal struct {
	Severity    Severity       `json:"severity"`
	Type        SignalType     `json:"type"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}
