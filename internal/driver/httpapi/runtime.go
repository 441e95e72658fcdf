package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/paths"
)

const (
	defaultRuntimeAddr              = "127.0.0.1:8080"
	defaultRuntimeReadHeaderTimeout = 5 * time.Second
	defaultRuntimeDispatchTimeout   = 10 * time.Second
)

// Deps carries the shared dependencies the HTTP driver serves from.
type Deps struct {
	Logger   *slog.Logger
	Services calypso.ServiceRegistry
	Login    paths.LoginConfig
}

type runtimeConfig struct {
	Addr              string `json:"addr"`
	ReadHeaderTimeout string `json:"read_header_timeout"`
	DispatchTimeout   string `json:"dispatch_timeout"`
}

type parsedRuntimeConfig struct {
	addr              string
	readHeaderTimeout time.Duration
	dispatchTimeout   time.Duration
}

// BuildFromConfig builds one HTTP driver from its config payload.
func BuildFromConfig(name string, rawConfig []byte, deps Deps) (*Driver, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("parse http runtime config: %w", err)
	}

	return NewDriver(
		WithName(name),
		WithAddr(cfg.addr),
		WithReadHeaderTimeout(cfg.readHeaderTimeout),
		WithDispatchTimeout(cfg.dispatchTimeout),
		WithLogger(deps.Logger),
		WithServices(deps.Services),
		WithLogin(deps.Login),
	), nil
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	cfg := parsedRuntimeConfig{
		addr:              defaultRuntimeAddr,
		readHeaderTimeout: defaultRuntimeReadHeaderTimeout,
		dispatchTimeout:   defaultRuntimeDispatchTimeout,
	}
	if len(raw) == 0 {
		return cfg, nil
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	if addr := strings.TrimSpace(parsed.Addr); addr != "" {
		cfg.addr = addr
	}
	if timeout := strings.TrimSpace(parsed.ReadHeaderTimeout); timeout != "" {
		parsedTimeout, err := parsePositiveDuration(timeout)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse read_header_timeout: %w", err)
		}
		cfg.readHeaderTimeout = parsedTimeout
	}
	if timeout := strings.TrimSpace(parsed.DispatchTimeout); timeout != "" {
		parsedTimeout, err := parsePositiveDuration(timeout)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse dispatch_timeout: %w", err)
		}
		cfg.dispatchTimeout = parsedTimeout
	}

	return cfg, nil
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}

	return parsed, nil
}
