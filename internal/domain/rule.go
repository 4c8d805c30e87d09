package domain

// RuleConfig defines a retailer-supplied custom detection rule.
//
// Custom rules run after the built-in checks and never alter them: a rule
// whose CEL expression evaluates to true contributes one extra signal with
// the configured severity and type.
type RuleConfig struct {
	ID          string `json:"id"`
	RetailerID  string `json:"retailerId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression over the sale snapshot. It must
	// evaluate to bool.
	Expression string `json:"expression"`

	// Severity of the emitted signal. Defaults to medium.
	Severity Severity `json:"severity"`

	// SignalType of the emitted signal. Defaults to price_override, the
	// taxonomy slot no built-in check uses.
	SignalType SignalType `json:"signalType"`

	Enabled bool `json:"enabled"`
}
