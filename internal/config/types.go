// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// EnvironmentProduction is the environment name that forbids relaxed URL
// validation unless explicitly overridden.
const EnvironmentProduction = "production"

// Environments lists the accepted environment names. Matching ignores case
// and surrounding whitespace.
var Environments = []string{"development", "staging", EnvironmentProduction}

// FileConfig represents the YAML configuration structure.
type FileConfig struct {
	Environment  string `yaml:"environment,omitempty"`
	LogLevel     string `yaml:"logLevel,omitempty"`
	LogService   string `yaml:"logService,omitempty"`
	DownloadRoot string `yaml:"downloadRoot,omitempty"`
	TempRoot     string `yaml:"tempRoot,omitempty"`
	FilePrefix   string `yaml:"filePrefix,omitempty"`

	Security  SecurityFileConfig  `yaml:"security,omitempty"`
	Merge     MergeFileConfig     `yaml:"merge,omitempty"`
	Fetch     FetchFileConfig     `yaml:"fetch,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
	Metrics   MetricsFileConfig   `yaml:"metrics,omitempty"`

	// AllowedDomains replaces the built-in host suffixes per platform.
	AllowedDomains map[string][]string `yaml:"allowedDomains,omitempty"`
}

// SecurityFileConfig holds outbound validation settings.
type SecurityFileConfig struct {
	StrictValidation         *bool `yaml:"strictValidation,omitempty"`
	AllowRelaxedInProduction *bool `yaml:"allowRelaxedInProduction,omitempty"`
}

// MergeFileConfig holds multiplexer settings.
type MergeFileConfig struct {
	Concurrency      *int   `yaml:"concurrency,omitempty"`
	FFmpegBin        string `yaml:"ffmpegBin,omitempty"`
	StderrLimitBytes *int   `yaml:"stderrLimitBytes,omitempty"`
	KillGrace        string `yaml:"killGrace,omitempty"` // e.g. "3s"
}

// FetchFileConfig holds streaming fetch settings.
type FetchFileConfig struct {
	ChunkSize             *int     `yaml:"chunkSize,omitempty"`
	Timeout               string   `yaml:"timeout,omitempty"`
	ResponseHeaderTimeout string   `yaml:"responseHeaderTimeout,omitempty"`
	MaxBytes              *int64   `yaml:"maxBytes,omitempty"`
	RequestsPerSecond     *float64 `yaml:"requestsPerSecond,omitempty"`
	MaxRedirects          *int     `yaml:"maxRedirects,omitempty"`
	UserAgent             string   `yaml:"userAgent,omitempty"`
}

// TelemetryFileConfig holds tracing settings.
type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	ServiceName  string   `yaml:"serviceName,omitempty"`
	ExporterType string   `yaml:"exporterType,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	Insecure     *bool    `yaml:"insecure,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// MetricsFileConfig holds the Prometheus exposition listener.
type MetricsFileConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// AppConfig is the effective configuration.
type AppConfig struct {
	Version      string
	Environment  string
	LogLevel     string
	LogService   string
	DownloadRoot string
	TempRoot     string
	FilePrefix   string

	Security  SecurityConfig
	Merge     MergeConfig
	Fetch     FetchConfig
	Telemetry TelemetryConfig
	// MetricsListen enables a /metrics listener when set.
	MetricsListen string

	AllowedDomains map[string][]string
}

// SecurityConfig controls outbound URL validation.
type SecurityConfig struct {
	// StrictValidation enables DNS classification and the dial-time guard.
	StrictValidation         bool
	AllowRelaxedInProduction bool
}

// MergeConfig controls the merge orchestrator.
type MergeConfig struct {
	Concurrency      int
	FFmpegBin        string
	StderrLimitBytes int
	KillGrace        time.Duration
}

// FetchConfig controls the fetch engine.
type FetchConfig struct {
	ChunkSize             int
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	MaxBytes              int64
	RequestsPerSecond     float64
	MaxRedirects          int
	UserAgent             string
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	ExporterType string
	Endpoint     string
	Insecure     bool
	SamplingRate float64
}
