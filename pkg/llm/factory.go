package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewClient creates an oracle client for the configured provider.
// When breakerCfg.Threshold is positive the client is guarded by a circuit breaker.
func NewClient(cfg *Config, breakerCfg CircuitBreakerConfig, logger *zap.Logger) (Client, error) {
	var (
		client Client
		err    error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		client, err = NewOpenAIClient(cfg, logger)
	case ProviderAnthropic:
		client, err = NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	if breakerCfg.Threshold > 0 {
		return NewBreakerClient(client, NewCircuitBreaker(breakerCfg), logger), nil
	}
	return client, nil
}
