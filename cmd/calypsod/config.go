package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ex-calypso/internal/driver"
	"ex-calypso/pkg/paths"
	"ex-calypso/pkg/wpcom"
)

const (
	envConfigFile             = "CALYPSO_CONFIG_FILE"
	envWPCOMToken             = "CALYPSO_WPCOM_TOKEN"
	defaultConfigFilePath     = "config/calypsod.json"
	alternateConfigFilePath   = "bin/config/calypsod.json"
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultHandlerTimeout     = 15 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
	defaultMaxNotices         = 50
)

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	wpcom      wpcom.Config
	jetpackEnv string
	login      paths.LoginConfig
	maxNotices int

	journalPath   string
	journalReplay bool

	drivers []driver.Definition
}

type fileConfig struct {
	LogLevel string            `json:"log_level"`
	Kernel   fileKernelConfig  `json:"kernel"`
	WPCOM    fileWPCOMConfig   `json:"wpcom"`
	Jetpack  fileJetpackConfig `json:"jetpack"`
	Login    paths.LoginConfig `json:"login"`
	Notices  fileNoticesConfig `json:"notices"`
	Journal  fileJournalConfig `json:"journal"`
	Drivers  []fileDriverEntry `json:"drivers"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileWPCOMConfig struct {
	BaseURL           string   `json:"base_url"`
	Token             string   `json:"token"`
	Timeout           string   `json:"timeout"`
	RequestsPerSecond *float64 `json:"requests_per_second"`
	Burst             *int     `json:"burst"`
}

type fileJetpackConfig struct {
	EnvID string `json:"env_id"`
}

type fileNoticesConfig struct {
	MaxNotices *int `json:"max_notices"`
}

type fileJournalConfig struct {
	Path   string `json:"path"`
	Replay *bool  `json:"replay"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

func loadConfig(registry *driver.Registry) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if token := strings.TrimSpace(os.Getenv(envWPCOMToken)); token != "" {
		cfg.wpcom.Token = token
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		handlerTimeout:      defaultHandlerTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		wpcom: wpcom.Config{
			BaseURL: wpcom.DefaultBaseURL,
			Timeout: wpcom.DefaultTimeout,
		},
		login:      paths.LoginConfig{LoginURL: paths.DefaultLoginURL},
		maxNotices: defaultMaxNotices,

		journalReplay: true,
		drivers:       make([]driver.Definition, 0),
	}
}

// decodeConfigFile parses JSON, or YAML when the extension says so. YAML is
// normalized to JSON first so both formats share one schema.
func decodeConfigFile(path string, data []byte) (fileConfig, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var document any
		if err := yaml.Unmarshal(data, &document); err != nil {
			return fileConfig{}, fmt.Errorf("parse yaml: %w", err)
		}
		normalized, err := json.Marshal(document)
		if err != nil {
			return fileConfig{}, fmt.Errorf("normalize yaml: %w", err)
		}
		data = normalized
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fileConfig{}, fmt.Errorf("parse json: %w", err)
	}

	return parsed, nil
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	parsed, err := decodeConfigFile(path, data)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{key: "kernel.module_hook_timeout", raw: parsed.Kernel.ModuleHookTimeout, target: &cfg.moduleHookTimeout},
		{key: "kernel.shutdown_timeout", raw: parsed.Kernel.ShutdownTimeout, target: &cfg.shutdownTimeout},
		{key: "kernel.handler_timeout", raw: parsed.Kernel.HandlerTimeout, target: &cfg.handlerTimeout},
		{key: "wpcom.timeout", raw: parsed.WPCOM.Timeout, target: &cfg.wpcom.Timeout},
	}
	for _, duration := range durations {
		rawTimeout := strings.TrimSpace(duration.raw)
		if rawTimeout == "" {
			continue
		}
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse %s: %w", duration.key, err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse %s: must be > 0", duration.key)
		}
		*duration.target = timeout
	}

	if parsed.Kernel.SubscriptionBuffer != nil {
		if *parsed.Kernel.SubscriptionBuffer <= 0 {
			return fmt.Errorf("parse kernel.subscription_buffer: must be > 0")
		}
		cfg.subscriptionBuffer = *parsed.Kernel.SubscriptionBuffer
	}
	if parsed.Kernel.SubscriptionWorkers != nil {
		if *parsed.Kernel.SubscriptionWorkers <= 0 {
			return fmt.Errorf("parse kernel.subscription_workers: must be > 0")
		}
		cfg.subscriptionWorkers = *parsed.Kernel.SubscriptionWorkers
	}

	if baseURL := strings.TrimSpace(parsed.WPCOM.BaseURL); baseURL != "" {
		cfg.wpcom.BaseURL = baseURL
	}
	cfg.wpcom.Token = strings.TrimSpace(parsed.WPCOM.Token)
	if parsed.WPCOM.RequestsPerSecond != nil {
		if *parsed.WPCOM.RequestsPerSecond < 0 {
			return fmt.Errorf("parse wpcom.requests_per_second: must be >= 0")
		}
		cfg.wpcom.RequestsPerSecond = *parsed.WPCOM.RequestsPerSecond
	}
	if parsed.WPCOM.Burst != nil {
		if *parsed.WPCOM.Burst <= 0 {
			return fmt.Errorf("parse wpcom.burst: must be > 0")
		}
		cfg.wpcom.Burst = *parsed.WPCOM.Burst
	}

	cfg.jetpackEnv = strings.TrimSpace(parsed.Jetpack.EnvID)
	if loginURL := strings.TrimSpace(parsed.Login.LoginURL); loginURL != "" {
		cfg.login.LoginURL = loginURL
	}
	cfg.login.WPLoginEnabled = parsed.Login.WPLoginEnabled

	if parsed.Notices.MaxNotices != nil {
		if *parsed.Notices.MaxNotices <= 0 {
			return fmt.Errorf("parse notices.max_notices: must be > 0")
		}
		cfg.maxNotices = *parsed.Notices.MaxNotices
	}

	cfg.journalPath = strings.TrimSpace(parsed.Journal.Path)
	if parsed.Journal.Replay != nil {
		cfg.journalReplay = *parsed.Journal.Replay
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for _, entry := range parsed.Drivers {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	return nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	knownTypes := registry.Types()
	seenNames := make(map[string]struct{}, len(cfg.drivers))
	enabled := 0
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := seenNames[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if !definition.Enabled {
			continue
		}
		if !slices.Contains(knownTypes, definition.Type) {
			return fmt.Errorf("drivers[%s].type: unsupported type %s", definition.Name, definition.Type)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	if _, err := wpcom.New(cfg.wpcom); err != nil {
		return fmt.Errorf("wpcom: %w", err)
	}
	if cfg.journalReplay && cfg.journalPath == "" {
		cfg.journalReplay = false
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
