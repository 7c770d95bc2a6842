package config

import (
	"fmt"
	"strings"

	"cyberswap/storage"
)

func ValidateConfig(c *Config) error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	switch c.Backend {
	case storage.BackendLevelDB, storage.BackendBolt:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("DataDir must be set for the %s backend", c.Backend)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("Backend %q is not one of leveldb, bolt, memory", c.Backend)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when limiting")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	switch c.Indexer.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: Driver %q is not one of sqlite, postgres", c.Indexer.Driver)
	}
	if c.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must not be negative")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: HMACSecret must be set when auth is enabled")
	}
	if c.Auth.ClockSkew < 0 {
		return fmt.Errorf("auth: ClockSkew must not be negative")
	}
	if _, err := c.FeeRouter(); err != nil {
		return err
	}
	return nil
}
