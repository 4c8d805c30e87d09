package rules

import (
	"context"
	"testing"
	"time"

	"github.com/openretail/magpie/internal/domain"
)

func testContext() *domain.TransactionContext {
	return &domain.TransactionContext{
		Items: []domain.LineItem{
			{ID: "p1", Name: "Cooking Oil", Price: 180, Quantity: 2},
			{ID: "p2", Name: "Flour", Price: 45, Quantity: 1},
		},
		TotalAmount:   405,
		PaymentMethod: "card",
		CashierID:     "cashier-7",
		Timestamp:     time.Date(2025, 3, 10, 19, 0, 0, 0, time.Local),
	}
}

func TestEngineCreation(t *testing.T) {
	eng, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer eng.Close()

	if eng.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", eng.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	rule := &domain.RuleConfig{
		ID:         "card-cap-001",
		Name:       "Card Cap",
		Expression: "payment_method == 'card' && total_amount > 400.0",
		Enabled:    true,
	}

	if err := eng.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if eng.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", eng.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	rule := &domain.RuleConfig{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := eng.LoadRule(rule); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestLoadNonBoolRule(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	rule := &domain.RuleConfig{
		ID:         "numeric-rule",
		Name:       "Numeric Rule",
		Expression: "total_amount * 2.0",
		Enabled:    true,
	}

	if err := eng.LoadRule(rule); err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestEvaluateMatch(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	rule := &domain.RuleConfig{
		ID:          "evening-card-001",
		Name:        "Evening Card Spend",
		Description: "Card sale above 400 in the evening.",
		Expression:  "payment_method == 'card' && total_amount > 400.0 && hour >= 18",
		Severity:    domain.SeverityHigh,
		SignalType:  domain.SignalPriceOverride,
		Enabled:     true,
	}
	if err := eng.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	signals := eng.Evaluate(context.Background(), testContext())
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}

	sig := signals[0]
	if sig.Type != domain.SignalPriceOverride {
		t.Errorf("expected price_override, got %s", sig.Type)
	}
	if sig.Severity != domain.SeverityHigh {
		t.Errorf("expected high severity, got %s", sig.Severity)
	}
	if sig.Description != rule.Description {
		t.Errorf("expected description %q, got %q", rule.Description, sig.Description)
	}
	if sig.Details["ruleId"] != "evening-card-001" {
		t.Errorf("expected ruleId in details, got %v", sig.Details)
	}
}

func TestEvaluateNoMatch(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	rule := &domain.RuleConfig{
		ID:         "late-night-001",
		Name:       "Late Night",
		Expression: "hour >= 23",
		Enabled:    true,
	}
	eng.LoadRule(rule)

	if signals := eng.Evaluate(context.Background(), testContext()); len(signals) != 0 {
		t.Errorf("expected no signals, got %d", len(signals))
	}
}

func TestEvaluateDefaults(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	// No severity, type, or description configured.
	rule := &domain.RuleConfig{
		ID:         "bare-001",
		Name:       "Bare Rule",
		Expression: "item_count >= 3",
		Enabled:    true,
	}
	eng.LoadRule(rule)

	signals := eng.Evaluate(context.Background(), testContext())
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Severity != domain.SeverityMedium {
		t.Errorf("expected medium default severity, got %s", signals[0].Severity)
	}
	if signals[0].Type != domain.SignalPriceOverride {
		t.Errorf("expected price_override default type, got %s", signals[0].Type)
	}
	if signals[0].Description == "" {
		t.Error("expected generated description")
	}
}

func TestEvaluateOrderedByRuleID(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	for _, id := range []string{"rule-b", "rule-a", "rule-c"} {
		eng.LoadRule(&domain.RuleConfig{
			ID:         id,
			Name:       id,
			Expression: "true",
			Enabled:    true,
		})
	}

	signals := eng.Evaluate(context.Background(), testContext())
	if len(signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(signals))
	}
	for i, want := range []string{"rule-a", "rule-b", "rule-c"} {
		if signals[i].Details["ruleId"] != want {
			t.Errorf("position %d: expected %s, got %v", i, want, signals[i].Details["ruleId"])
		}
	}
}

func TestEvaluateItemsVariable(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	rule := &domain.RuleConfig{
		ID:         "pricy-line-001",
		Name:       "Pricy Line",
		Expression: "items.exists(i, double(i.price) > 150.0)",
		Enabled:    true,
	}
	if err := eng.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if signals := eng.Evaluate(context.Background(), testContext()); len(signals) != 1 {
		t.Errorf("expected 1 signal from items expression, got %d", len(signals))
	}
}

func TestReloadRules(t *testing.T) {
	eng, _ := NewEngine()
	defer eng.Close()

	eng.LoadRule(&domain.RuleConfig{ID: "old", Name: "Old", Expression: "true", Enabled: true})

	err := eng.ReloadRules([]*domain.RuleConfig{
		{ID: "new-1", Name: "New 1", Expression: "total_amount > 0.0", Enabled: true},
		{ID: "disabled", Name: "Disabled", Expression: "true", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if eng.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", eng.RulesCount())
	}
	if rules := eng.GetLoadedRules(); len(rules) != 1 || rules[0].ID != "new-1" {
		t.Errorf("unexpected loaded rules: %v", rules)
	}
}
