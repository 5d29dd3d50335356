package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// HealthChecker probes the brokers with a dedicated client so readiness
// does not depend on producer or consumer state.
type HealthChecker struct {
	client *kgo.Client
}

func NewHealthChecker(brokers string) (*HealthChecker, error) {
	if strings.TrimSpace(brokers) == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(strings.Split(brokers, ",")...))
	if err != nil {
		return nil, fmt.Errorf("create kafka health client: %w", err)
	}
	return &HealthChecker{client: client}, nil
}

// Check returns nil if any seed broker answers a metadata request.
func (h *HealthChecker) Check(ctx context.Context) error {
	if err := h.client.Ping(ctx); err != nil {
		return fmt.Errorf("no kafka brokers reachable: %w", err)
	}
	return nil
}

func (h *HealthChecker) Name() string {
	return "kafka"
}

func (h *HealthChecker) Close() {
	h.client.Close()
}
