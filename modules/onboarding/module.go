// Package onboarding stores Jetpack onboarding credentials and settings per
// site and syncs settings with the remote site through the hosted API proxy.
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"strconv"
	"sync"

	"ex-calypso/pkg/calypso"
)

const (
	// ServiceSettingsStore is the registry key for the SettingsStore service.
	ServiceSettingsStore = "onboarding.settings_store"

	// RemoteSettingsPath is the site-side settings endpoint proxied by the API.
	RemoteSettingsPath = "/jetpack/v4/settings/"

	// RequestFailureText is shown when settings cannot be fetched.
	RequestFailureText = "Could not fetch settings from site. Please try again later."
	// SaveFailureText is shown when settings cannot be saved.
	SaveFailureText = "An unexpected error occurred. Please try again later."
)

// APIClient is the hosted API surface the settings data layer needs.
type APIClient interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, query url.Values, body any, out any) error
}

// SettingsStore reads onboarding state per site.
type SettingsStore interface {
	// Settings returns a shallow copy of the merged settings for siteID.
	Settings(siteID int64) (map[string]any, bool)
	// Credentials returns the onboarding credentials for siteID.
	Credentials(siteID int64) (calypso.OnboardingCredentials, bool)
}

// Option mutates onboarding module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithClient injects the API client directly, bypassing service lookup.
func WithClient(client APIClient) Option {
	return func(module *Module) {
		if client != nil {
			module.client = client
		}
	}
}

// Module holds per-site onboarding state.
type Module struct {
	logger     *slog.Logger
	client     APIClient
	dispatcher calypso.Dispatcher

	mu          sync.RWMutex
	credentials map[int64]calypso.OnboardingCredentials
	settings    map[int64]map[string]any
}

// New creates an empty onboarding module.
func New(options ...Option) *Module {
	module := &Module{
		logger:      slog.Default(),
		credentials: make(map[int64]calypso.OnboardingCredentials),
		settings:    make(map[int64]map[string]any),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "onboarding"
}

// Spec declares the onboarding reducers and settings data layer.
func (m *Module) Spec() calypso.ModuleSpec {
	return calypso.ModuleSpec{
		Reducers: []calypso.ModuleReducer{
			{
				Capability: calypso.Capability{
					Name:        "onboarding-credentials",
					Description: "stores onboarding credentials per site",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{calypso.ActionKindOnboardingCredentialsReceive},
					},
				},
				Reduce: m.reduceCredentials,
			},
			{
				Capability: calypso.Capability{
					Name:        "onboarding-settings",
					Description: "merges onboarding settings per site",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{
							calypso.ActionKindOnboardingSettingsReceive,
							calypso.ActionKindOnboardingSettingsSave,
						},
					},
				},
				Reduce: m.reduceSettings,
			},
		},
		Handlers: []calypso.ModuleHandler{
			{
				Capability: calypso.Capability{
					Name:        "onboarding-settings-request",
					Description: "fetches onboarding settings from the site",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{calypso.ActionKindOnboardingSettingsRequest},
					},
				},
				Subscription: calypso.NewDefaultSubscriptionSpec("onboarding-settings-request"),
				Handler:      m.handleRequest,
			},
			{
				Capability: calypso.Capability{
					Name:        "onboarding-settings-save",
					Description: "persists onboarding settings to the site",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{calypso.ActionKindOnboardingSettingsSave},
					},
				},
				Subscription: calypso.NewDefaultSubscriptionSpec("onboarding-settings-save"),
				Handler:      m.handleSave,
			},
		},
	}
}

// OnRegister resolves the logger and API client and registers the settings store.
func (m *Module) OnRegister(_ context.Context, runtime calypso.ModuleRuntime) error {
	logger, err := calypso.ResolveAs[*slog.Logger](runtime.Services(), calypso.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, calypso.ErrServiceNotFound):
	default:
		return fmt.Errorf("onboarding resolve logger: %w", err)
	}

	if m.client == nil {
		client, err := calypso.ResolveAs[APIClient](runtime.Services(), calypso.ServiceWPCOM)
		if err != nil {
			return fmt.Errorf("onboarding resolve api client: %w", err)
		}
		m.client = client
	}
	m.dispatcher = runtime.Dispatcher()

	if err := runtime.Services().Register(ServiceSettingsStore, m); err != nil {
		return fmt.Errorf("onboarding register service %s: %w", ServiceSettingsStore, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(context.Context) error {
	return nil
}

// OnShutdown drops onboarding state.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	clear(m.credentials)
	clear(m.settings)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "onboarding module stopped")

	return nil
}

// Settings returns a shallow copy of the merged settings for siteID.
func (m *Module) Settings(siteID int64) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings, ok := m.settings[siteID]
	if !ok {
		return nil, false
	}

	return maps.Clone(settings), true
}

// Credentials returns the onboarding credentials for siteID.
func (m *Module) Credentials(siteID int64) (calypso.OnboardingCredentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	credentials, ok := m.credentials[siteID]

	return credentials, ok
}

func (m *Module) reduceCredentials(action *calypso.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credentials = ReduceCredentials(m.credentials, action)
}

func (m *Module) reduceSettings(action *calypso.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings = ReduceSettings(m.settings, action)
}

type settingsResponse struct {
	Data map[string]any `json:"data"`
}

type proxyBody struct {
	Path string `json:"path"`
	Body string `json:"body"`
	JSON bool   `json:"json"`
}

func (m *Module) handleRequest(ctx context.Context, action *calypso.Action) error {
	onboarding, err := json.Marshal(map[string]any{"onboarding": m.siteAuth(action.SiteID)})
	if err != nil {
		return fmt.Errorf("onboarding encode settings query: %w", err)
	}
	query := url.Values{
		"path":  []string{RemoteSettingsPath},
		"query": []string{string(onboarding)},
		"json":  []string{"true"},
	}

	var response settingsResponse
	if err := m.client.Get(ctx, proxyPath(action.SiteID), query, &response); err != nil {
		m.logger.WarnContext(ctx, "onboarding settings request failed", "site_id", action.SiteID, "error", err)
		return m.dispatch(ctx, calypso.ErrorNotice(RequestFailureText))
	}
	if len(response.Data) == 0 {
		m.logger.WarnContext(ctx, "onboarding settings response without data", "site_id", action.SiteID)
		return m.dispatch(ctx, calypso.ErrorNotice(RequestFailureText))
	}

	return m.dispatch(ctx, AddSettings(action.SiteID, response.Data))
}

func (m *Module) handleSave(ctx context.Context, action *calypso.Action) error {
	onboarding := m.siteAuth(action.SiteID)
	if action.Onboarding != nil {
		for key, value := range action.Onboarding.Settings {
			if key == "token" || key == "jpUser" {
				continue
			}
			onboarding[key] = value
		}
	}
	encoded, err := json.Marshal(map[string]any{"onboarding": onboarding})
	if err != nil {
		return fmt.Errorf("onboarding encode settings body: %w", err)
	}

	body := proxyBody{
		Path: RemoteSettingsPath,
		Body: string(encoded),
		JSON: true,
	}
	if err := m.client.Post(ctx, proxyPath(action.SiteID), nil, body, nil); err != nil {
		m.logger.WarnContext(ctx, "onboarding settings save failed", "site_id", action.SiteID, "error", err)
		return m.dispatch(ctx, calypso.ErrorNotice(SaveFailureText))
	}

	return nil
}

// siteAuth returns the token and jpUser fields, null when unknown.
func (m *Module) siteAuth(siteID int64) map[string]any {
	auth := map[string]any{"token": nil, "jpUser": nil}
	if credentials, ok := m.Credentials(siteID); ok {
		auth["token"] = credentials.Token
		auth["jpUser"] = credentials.UserEmail
	}

	return auth
}

func (m *Module) dispatch(ctx context.Context, action *calypso.Action) error {
	if err := m.dispatcher.Dispatch(ctx, action); err != nil {
		return fmt.Errorf("onboarding dispatch %s: %w", action.Kind, err)
	}

	return nil
}

func proxyPath(siteID int64) string {
	return "/jetpack-blogs/" + strconv.FormatInt(siteID, 10) + "/rest-api/"
}
