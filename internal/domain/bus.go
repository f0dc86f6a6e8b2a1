package domain

import "context"

// Topic names for the EventBus. The Batch Orchestrator publishes
// TopicValidationCompleted; no component in this module publishes
// TopicRunPersisted.
const (
	TopicValidationCompleted = "validation.completed"
	TopicRunPersisted        = "run.persisted"
)

// RunEvent is the payload published after a single exchange sweep
// completes, consumed by anything watching batch progress.
type RunEvent struct {
	RunID       string `json:"runId"`
	ProductType string `json:"productType"`
	Exchange    string `json:"exchange"`
	Success     bool   `json:"success"`
}

// EventBus decouples the Batch Orchestrator's per-exchange completions
// from whatever consumes them (a regional summary aggregator in-process,
// or an external subscriber over NATS in pro tier).
type EventBus interface {
	Publish(ctx context.Context, topic string, event RunEvent) error
	Subscribe(ctx context.Context, topic string, handler func(RunEvent)) (unsubscribe func(), err error)
	Close() error
}

// EventBusConfig selects the bus backend: "channel" (default, in-process)
// or "nats" (pro tier, see internal/bus).
type EventBusConfig struct {
	Backend string
	NatsURL string
}
