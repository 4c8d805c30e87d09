// Package worker provides async sale processing for distributed deployments.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/openretail/magpie/internal/checkout"
	"github.com/openretail/magpie/internal/domain"
)

// Worker processes sale events asynchronously from the EventBus.
// POS lanes publish sale snapshots to TopicSaleRecorded; the worker runs
// fraud analysis and files alerts without blocking the lane.
type Worker struct {
	bus       domain.EventBus
	processor *checkout.Processor

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// RetailerIDs is the list of retailers to process (empty = all via global subscription)
	RetailerIDs []string

	// WorkerCount is the number of concurrent workers per retailer
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, processor *checkout.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given retailers.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.RetailerIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, retailerID := range cfg.RetailerIDs {
		if err := w.startRetailerWorker(retailerID); err != nil {
			slog.Error("failed to start worker for retailer",
				"retailer_id", retailerID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"retailer_count", len(cfg.RetailerIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all retailers (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" retailer ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSaleRecorded, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startRetailerWorker starts workers for a specific retailer.
func (w *Worker) startRetailerWorker(retailerID string) error {
	sub, err := w.bus.Subscribe(w.ctx, retailerID, domain.TopicSaleRecorded, func(ctx context.Context, msg *domain.Message) error {
		return w.processSale(ctx, retailerID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("retailer worker started",
		"retailer_id", retailerID,
		"topic", domain.TopicSaleRecorded,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processSale(ctx, msg.RetailerID, msg)
}

// SaleMessage is the message payload for async sale recording.
type SaleMessage struct {
	RetailerID    string                   `json:"retailerId"`
	Items         []domain.SaleRequestItem `json:"items"`
	PaymentMethod string                   `json:"paymentMethod"`
	CustomerPhone string                   `json:"customerPhone,omitempty"`
	CashierID     string                   `json:"cashierId,omitempty"`
}

// processSale records a published sale through the checkout pipeline.
func (w *Worker) processSale(ctx context.Context, retailerID string, msg *domain.Message) error {
	start := time.Now()

	var saleMsg SaleMessage
	if err := json.Unmarshal(msg.Payload, &saleMsg); err != nil {
		slog.Error("failed to parse sale message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message retailer if provided
	if saleMsg.RetailerID != "" {
		retailerID = saleMsg.RetailerID
	}

	slog.Debug("processing sale",
		"retailer_id", retailerID,
		"message_id", msg.ID,
	)

	req := &domain.SaleRequest{
		Items:         saleMsg.Items,
		PaymentMethod: saleMsg.PaymentMethod,
		CustomerPhone: saleMsg.CustomerPhone,
		CashierID:     saleMsg.CashierID,
	}

	result, err := w.processor.RecordSale(ctx, retailerID, req)
	if err != nil {
		slog.Error("failed to record sale",
			"retailer_id", retailerID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Info("sale processed",
		"sale_id", result.SaleID,
		"retailer_id", retailerID,
		"signal_count", len(result.Signals),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
