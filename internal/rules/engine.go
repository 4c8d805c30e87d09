// Package rules provides the CEL-Go engine for retailer-defined custom
// detection rules.
//
// Custom rules are layered on top of the built-in checks by the checkout
// processor: they can add signals but never suppress or reorder the
// built-in ones. A rule whose expression evaluates to true emits one
// signal with its configured severity and type.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/openretail/magpie/internal/domain"
)

// Engine is the CEL-based custom rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a custom rule engine with the sale snapshot variables
// declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("total_amount", cel.DoubleType),
		cel.Variable("payment_method", cel.StringType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("avg_price", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("customer_phone", cel.StringType),
		cel.Variable("cashier_id", cel.StringType),
		cel.Variable("items", cel.ListType(cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// Evaluate runs all loaded rules against a sale snapshot and returns one
// signal per matching rule, ordered by rule ID for determinism. A rule
// that fails to evaluate is skipped: analysis happens after the sale is
// committed and must not be able to fail it.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.TransactionContext) []domain.FraudSignal {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 || tx == nil {
		return nil
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	itemCount := tx.ItemCount()
	divisor := itemCount
	if divisor < 1 {
		divisor = 1
	}

	items := make([]map[string]any, 0, len(tx.Items))
	for _, item := range tx.Items {
		entry := map[string]any{
			"id":       item.ID,
			"name":     item.Name,
			"price":    item.Price,
			"quantity": item.Quantity,
		}
		if item.OriginalPrice != nil {
			entry["original_price"] = *item.OriginalPrice
		}
		items = append(items, entry)
	}

	activation := map[string]any{
		"total_amount":   tx.TotalAmount,
		"payment_method": tx.PaymentMethod,
		"item_count":     itemCount,
		"avg_price":      tx.TotalAmount / float64(divisor),
		"hour":           tx.Timestamp.Hour(),
		"customer_phone": tx.CustomerPhone,
		"cashier_id":     tx.CashierID,
		"items":          items,
	}

	var signals []domain.FraudSignal
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			slog.Warn("custom rule evaluation failed",
				"rule_id", rule.Config.ID,
				"error", err,
			)
			continue
		}

		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}

		signals = append(signals, e.toSignal(rule.Config))
	}

	return signals
}

// toSignal builds the emitted signal for a matched rule.
func (e *Engine) toSignal(cfg *domain.RuleConfig) domain.FraudSignal {
	severity := cfg.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	sigType := cfg.SignalType
	if sigType == "" {
		sigType = domain.SignalPriceOverride
	}

	description := cfg.Description
	if description == "" {
		description = fmt.Sprintf("Custom rule %q matched.", cfg.Name)
	}

	return domain.FraudSignal{
		Severity:    severity,
		Type:        sigType,
		Description: description,
		Details: map[string]any{
			"ruleId":   cfg.ID,
			"ruleName": cfg.Name,
		},
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
