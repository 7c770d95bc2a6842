package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cyberswap/core/types"
	"cyberswap/native/common"
	"cyberswap/native/escrow"
	"cyberswap/storage"
)

type Config struct {
	ListenAddress string   `toml:"ListenAddress"`
	DataDir       string   `toml:"DataDir"`
	Backend       string   `toml:"Backend"`
	GenesisFile   string   `toml:"GenesisFile"`
	Environment   string   `toml:"Environment"`
	LogLevel      string   `toml:"LogLevel"`
	LogFile       string   `toml:"LogFile"`
	Pauses        []string `toml:"Pauses"`

	RPC       RPC       `toml:"rpc"`
	RateLimit RateLimit `toml:"rate_limit"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
	Fees      Fees      `toml:"fees"`
	Auth      Auth      `toml:"auth"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./cyberswap-data",
		Backend:       storage.BackendLevelDB,
		Environment:   "local",
		LogLevel:      "info",
		Pauses:        []string{},
		RPC: RPC{
			ReadHeaderTimeout: 5,
			ReadTimeout:       15,
			WriteTimeout:      15,
			IdleTimeout:       60,
			MaxBodyBytes:      1 << 20,
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
		Indexer:   Indexer{Driver: "sqlite"},
		Auth:      Auth{ClockSkew: 120},
	}
}

// resolvePaths anchors relative file paths at the config file's directory.
func (c *Config) resolvePaths(base string) {
	if base == "" || base == "." {
		return
	}
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.DataDir = anchor(c.DataDir)
	c.GenesisFile = anchor(c.GenesisFile)
	c.LogFile = anchor(c.LogFile)
}

// PauseView returns the modules paused by configuration.
func (c *Config) PauseView() common.PauseView {
	return common.NewPauses(c.Pauses...)
}

// FeeRouter returns the configured fee destination. Without a treasury fees
// go to the community pool, which cannot receive them.
func (c *Config) FeeRouter() (escrow.FeeRouter, error) {
	addr := strings.TrimSpace(c.Fees.TreasuryAddress)
	if addr == "" {
		return escrow.CommunityPool{}, nil
	}
	treasury, err := types.ParseAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("fees.TreasuryAddress: %w", err)
	}
	denom := strings.TrimSpace(c.Fees.TreasuryDenom)
	if denom == "" {
		denom = escrow.DefaultFeeDenom
	}
	return escrow.Treasury{Address: treasury, Denom: denom}, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
