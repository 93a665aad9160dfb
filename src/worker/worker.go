// Package worker runs triage rules on request. It consumes TriageRequest
// messages from the broker and publishes match events and rule summaries
// through the orchestrator.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"buildtriage/src/broker"
	"buildtriage/src/config"
	"buildtriage/src/contracts"
	"buildtriage/src/logger"
	"buildtriage/src/triage"
)

// ConsumerGroup is the consumer group workers share, so each request is
// handled once.
const ConsumerGroup = "buildtriage-worker"

// RuleRunner runs rules and reports one summary per rule.
type RuleRunner interface {
	RunAll(ctx context.Context, requestID string, rules []config.Rule) []contracts.RuleSummary
}

var _ RuleRunner = (*triage.Orchestrator)(nil)

// Worker consumes triage requests.
type Worker struct {
	broker broker.Broker
	rules  *config.Rules
	runner RuleRunner
	logger logger.Logger
}

// New creates a worker.
func New(brk broker.Broker, rules *config.Rules, runner RuleRunner, log logger.Logger) *Worker {
	return &Worker{
		broker: brk,
		rules:  rules,
		runner: runner,
		logger: log,
	}
}

// Run processes requests until ctx is done or the subscription closes.
// Requests are handled one at a time.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("[Worker] Starting...")

	msgChan, err := w.broker.Subscribe(ctx, contracts.TopicTriageRequests, ConsumerGroup)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", contracts.TopicTriageRequests, err)
	}

	w.logger.Info("[Worker] Listening for requests on '%s' topic...", contracts.TopicTriageRequests)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				w.logger.Info("[Worker] Message channel closed, shutting down")
				return nil
			}

			if _, err := w.Handle(ctx, msg); err != nil {
				w.logger.Error("[Worker] Error processing request: %v", err)
			}

		case <-ctx.Done():
			w.logger.Info("[Worker] Context cancelled, shutting down")
			return ctx.Err()
		}
	}
}

// Handle runs the rules one request names.
func (w *Worker) Handle(ctx context.Context, msg broker.Message) ([]contracts.RuleSummary, error) {
	var req contracts.TriageRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}

	rules, err := w.rules.Select(req.RuleName)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.RequestID, err)
	}

	w.logger.Info("[Worker] Processing request %s (%d rules)", req.RequestID, len(rules))
	summaries := w.runner.RunAll(ctx, req.RequestID, rules)

	newRecords := 0
	for _, s := range summaries {
		newRecords += s.NewRecords
	}
	w.logger.Info("[Worker] Completed request %s (%d new records)", req.RequestID, newRecords)
	return summaries, nil
}

// Submit publishes a request to run ruleName, or every rule when it is
// empty, and returns the request ID.
func Submit(ctx context.Context, p broker.Publisher, ruleName string) (string, error) {
	req := contracts.TriageRequest{
		RequestID: uuid.New().String(),
		RuleName:  ruleName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := broker.PublishJSON(ctx, p, contracts.TopicTriageRequests, req.RequestID, req); err != nil {
		return "", err
	}
	return req.RequestID, nil
}
