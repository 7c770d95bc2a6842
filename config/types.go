package config

import "time"

// RPC bounds the HTTP server. Durations are in seconds.
type RPC struct {
	ReadHeaderTimeout int   `toml:"ReadHeaderTimeout"`
	ReadTimeout       int   `toml:"ReadTimeout"`
	WriteTimeout      int   `toml:"WriteTimeout"`
	IdleTimeout       int   `toml:"IdleTimeout"`
	MaxBodyBytes      int64 `toml:"MaxBodyBytes"`
}

func seconds(v int) time.Duration { return time.Duration(v) * time.Second }

func (r RPC) ReadHeaderTimeoutDuration() time.Duration { return seconds(r.ReadHeaderTimeout) }
func (r RPC) ReadTimeoutDuration() time.Duration       { return seconds(r.ReadTimeout) }
func (r RPC) WriteTimeoutDuration() time.Duration      { return seconds(r.WriteTimeout) }
func (r RPC) IdleTimeoutDuration() time.Duration       { return seconds(r.IdleTimeout) }

// RateLimit throttles HTTP clients by remote address. A zero rate disables it.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Indexer configures the SQL event journal. An empty DSN disables it.
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Fees selects where settlement fees are routed.
type Fees struct {
	TreasuryAddress string `toml:"TreasuryAddress"`
	TreasuryDenom   string `toml:"TreasuryDenom"`
}

// Auth requires callers to present an HS256 bearer token whose subject is the
// address they act as.
type Auth struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	ClockSkew  int    `toml:"ClockSkew"`
}

func (a Auth) ClockSkewDuration() time.Duration { return seconds(a.ClockSkew) }
