// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvPrefix                   = "MEDIAGATE_"
	EnvEnvironment              = EnvPrefix + "ENVIRONMENT"
	EnvLogLevel                 = EnvPrefix + "LOG_LEVEL"
	EnvLogService               = EnvPrefix + "LOG_SERVICE"
	EnvDownloadRoot             = EnvPrefix + "DOWNLOAD_ROOT"
	EnvTempRoot                 = EnvPrefix + "TEMP_ROOT"
	EnvFilePrefix               = EnvPrefix + "FILE_PREFIX"
	EnvStrictValidation         = EnvPrefix + "STRICT_VALIDATION"
	EnvAllowRelaxedInProduction = EnvPrefix + "ALLOW_RELAXED_IN_PRODUCTION"
	EnvMergeConcurrency         = EnvPrefix + "MERGE_CONCURRENCY"
	EnvFFmpegBin                = EnvPrefix + "FFMPEG_BIN"
	EnvStderrLimitBytes         = EnvPrefix + "MERGE_STDERR_LIMIT_BYTES"
	EnvKillGrace                = EnvPrefix + "MERGE_KILL_GRACE"
	EnvChunkSize                = EnvPrefix + "FETCH_CHUNK_SIZE"
	EnvFetchTimeout             = EnvPrefix + "FETCH_TIMEOUT"
	EnvResponseHeaderTimeout    = EnvPrefix + "FETCH_RESPONSE_HEADER_TIMEOUT"
	EnvMaxBytes                 = EnvPrefix + "FETCH_MAX_BYTES"
	EnvRequestsPerSecond        = EnvPrefix + "FETCH_REQUESTS_PER_SECOND"
	EnvMaxRedirects             = EnvPrefix + "FETCH_MAX_REDIRECTS"
	EnvUserAgent                = EnvPrefix + "FETCH_USER_AGENT"
	EnvTracingEnabled           = EnvPrefix + "TRACING_ENABLED"
	EnvTracingExporter          = EnvPrefix + "TRACING_EXPORTER"
	EnvTracingEndpoint          = EnvPrefix + "TRACING_ENDPOINT"
	EnvTracingInsecure          = EnvPrefix + "TRACING_INSECURE"
	EnvTracingSamplingRate      = EnvPrefix + "TRACING_SAMPLING_RATE"
	EnvMetricsListen            = EnvPrefix + "METRICS_LISTEN"

	// EnvAllowedDomainsPrefix is followed by the upper-cased platform name,
	// e.g. MEDIAGATE_ALLOWED_DOMAINS_BILIBILI=bilibili.com,bilivideo.com.
	EnvAllowedDomainsPrefix = EnvPrefix + "ALLOWED_DOMAINS_"
)

// Defaults.
const (
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultChunkSize        = 64 << 10
	DefaultFetchTimeout     = 60 * time.Second
	DefaultHeaderTimeout    = 30 * time.Second
	DefaultMaxRedirects     = 10
	DefaultMergeConcurrency = 1
	DefaultStderrLimitBytes = 64 << 10
	DefaultKillGrace        = 3 * time.Second
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath skips
// the file layer.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence ENV > File > Defaults and
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	for _, dir := range []*string{&cfg.DownloadRoot, &cfg.TempRoot} {
		if *dir == "" {
			continue
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() AppConfig {
	return AppConfig{
		Environment: "development",
		LogLevel:    "info",
		LogService:  "mediagate",
		TempRoot:    os.TempDir(),
		Security: SecurityConfig{
			StrictValidation: true,
		},
		Merge: MergeConfig{
			Concurrency:      DefaultMergeConcurrency,
			FFmpegBin:        "ffmpeg",
			StderrLimitBytes: DefaultStderrLimitBytes,
			KillGrace:        DefaultKillGrace,
		},
		Fetch: FetchConfig{
			ChunkSize:             DefaultChunkSize,
			Timeout:               DefaultFetchTimeout,
			ResponseHeaderTimeout: DefaultHeaderTimeout,
			MaxRedirects:          DefaultMaxRedirects,
			UserAgent:             DefaultUserAgent,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "mediagate",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// loadFile loads configuration from a YAML file with strict parsing.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data)
}

func decodeStrict(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	setString(&dst.Environment, src.Environment)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.LogService, src.LogService)
	setString(&dst.DownloadRoot, src.DownloadRoot)
	setString(&dst.TempRoot, src.TempRoot)
	setString(&dst.FilePrefix, src.FilePrefix)

	setPtr(&dst.Security.StrictValidation, src.Security.StrictValidation)
	setPtr(&dst.Security.AllowRelaxedInProduction, src.Security.AllowRelaxedInProduction)

	setPtr(&dst.Merge.Concurrency, src.Merge.Concurrency)
	setString(&dst.Merge.FFmpegBin, src.Merge.FFmpegBin)
	setPtr(&dst.Merge.StderrLimitBytes, src.Merge.StderrLimitBytes)

	setPtr(&dst.Fetch.ChunkSize, src.Fetch.ChunkSize)
	setPtr(&dst.Fetch.MaxBytes, src.Fetch.MaxBytes)
	setPtr(&dst.Fetch.RequestsPerSecond, src.Fetch.RequestsPerSecond)
	setPtr(&dst.Fetch.MaxRedirects, src.Fetch.MaxRedirects)
	setString(&dst.Fetch.UserAgent, src.Fetch.UserAgent)

	setPtr(&dst.Telemetry.Enabled, src.Telemetry.Enabled)
	setString(&dst.Telemetry.ServiceName, src.Telemetry.ServiceName)
	setString(&dst.Telemetry.ExporterType, src.Telemetry.ExporterType)
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setPtr(&dst.Telemetry.Insecure, src.Telemetry.Insecure)
	setPtr(&dst.Telemetry.SamplingRate, src.Telemetry.SamplingRate)

	setString(&dst.MetricsListen, src.Metrics.Listen)

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"merge.killGrace", src.Merge.KillGrace, &dst.Merge.KillGrace},
		{"fetch.timeout", src.Fetch.Timeout, &dst.Fetch.Timeout},
		{"fetch.responseHeaderTimeout", src.Fetch.ResponseHeaderTimeout, &dst.Fetch.ResponseHeaderTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", d.field, d.raw, err)
		}
		*d.dst = parsed
	}

	if len(src.AllowedDomains) > 0 {
		dst.AllowedDomains = make(map[string][]string, len(src.AllowedDomains))
		for k, v := range src.AllowedDomains {
			dst.AllowedDomains[k] = append([]string(nil), v...)
		}
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Environment = l.envString(EnvEnvironment, cfg.Environment)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.LogService = l.envString(EnvLogService, cfg.LogService)
	cfg.DownloadRoot = l.envString(EnvDownloadRoot, cfg.DownloadRoot)
	cfg.TempRoot = l.envString(EnvTempRoot, cfg.TempRoot)
	cfg.FilePrefix = l.envString(EnvFilePrefix, cfg.FilePrefix)

	cfg.Security.StrictValidation = l.envBool(EnvStrictValidation, cfg.Security.StrictValidation)
	cfg.Security.AllowRelaxedInProduction = l.envBool(EnvAllowRelaxedInProduction, cfg.Security.AllowRelaxedInProduction)

	cfg.Merge.Concurrency = l.envInt(EnvMergeConcurrency, cfg.Merge.Concurrency)
	cfg.Merge.FFmpegBin = l.envString(EnvFFmpegBin, cfg.Merge.FFmpegBin)
	cfg.Merge.StderrLimitBytes = l.envInt(EnvStderrLimitBytes, cfg.Merge.StderrLimitBytes)
	cfg.Merge.KillGrace = l.envDuration(EnvKillGrace, cfg.Merge.KillGrace)

	cfg.Fetch.ChunkSize = l.envInt(EnvChunkSize, cfg.Fetch.ChunkSize)
	cfg.Fetch.Timeout = l.envDuration(EnvFetchTimeout, cfg.Fetch.Timeout)
	cfg.Fetch.ResponseHeaderTimeout = l.envDuration(EnvResponseHeaderTimeout, cfg.Fetch.ResponseHeaderTimeout)
	cfg.Fetch.MaxBytes = l.envInt64(EnvMaxBytes, cfg.Fetch.MaxBytes)
	cfg.Fetch.RequestsPerSecond = l.envFloat(EnvRequestsPerSecond, cfg.Fetch.RequestsPerSecond)
	cfg.Fetch.MaxRedirects = l.envInt(EnvMaxRedirects, cfg.Fetch.MaxRedirects)
	cfg.Fetch.UserAgent = l.envString(EnvUserAgent, cfg.Fetch.UserAgent)

	cfg.Telemetry.Enabled = l.envBool(EnvTracingEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = l.envString(EnvTracingExporter, cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString(EnvTracingEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.Insecure = l.envBool(EnvTracingInsecure, cfg.Telemetry.Insecure)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvTracingSamplingRate, cfg.Telemetry.SamplingRate)

	cfg.MetricsListen = l.envString(EnvMetricsListen, cfg.MetricsListen)

	for _, p := range allowlist.Platforms {
		key := EnvAllowedDomainsPrefix + strings.ToUpper(string(p))
		if list := l.envList(key, nil); len(list) > 0 {
			if cfg.AllowedDomains == nil {
				cfg.AllowedDomains = make(map[string][]string)
			}
			cfg.AllowedDomains[string(p)] = list
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
