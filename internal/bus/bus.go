// Package bus provides event bus implementations for the batch
// orchestrator's run-completion notifications.
package bus

import (
	"fmt"

	"github.com/refdata/validate-service/internal/domain"
)

// New creates an event bus based on configuration.
// Community tier: ChannelBus. Pro tier: NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Backend {
	case "", "channel":
		return NewChannelBus(1000), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus backend: %s", cfg.Backend)
	}
}
