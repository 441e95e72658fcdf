package jetpackconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/jetpack"
)

// ServiceSiteStore is the registry key for the SiteStore service.
const ServiceSiteStore = "jetpackconnect.site_store"

// SiteInfoPath is the hosted API route probing a remote site.
const SiteInfoPath = "/connect/site-info"

// APIClient is the hosted API surface the check-url data layer needs.
type APIClient interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// SiteStore reads connect records and the redirects decided for them.
type SiteStore interface {
	// Site returns a copy of the record for url.
	Site(url string) (jetpack.SiteRecord, bool)
	// Status resolves the connect status for currentURL.
	Status(currentURL string) jetpack.Status
	// Redirect returns the redirect the flow for url performed, if any.
	Redirect(url string) (jetpack.Redirect, bool)
	// FollowInstructions fires the instruction redirect for url's current status.
	FollowInstructions(url string) (jetpack.Redirect, bool)
}

// Option mutates jetpack connect module configuration.
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

// WithEnvID sets the calypso_env value appended to remote redirects.
func WithEnvID(envID string) Option {
	return func(module *Module) {
		module.envID = envID
	}
}

// WithRedirector forwards every redirect the flows perform.
func WithRedirector(redirector jetpack.Redirector) Option {
	return func(module *Module) {
		if redirector != nil {
			module.redirector = redirector
		}
	}
}

// Module holds connect records and one redirect flow per checked URL.
type Module struct {
	logger     *slog.Logger
	client     APIClient
	envID      string
	redirector jetpack.Redirector
	dispatcher calypso.Dispatcher

	mu        sync.RWMutex
	sites     Sites
	flows     map[string]*jetpack.Flow
	redirects map[string]jetpack.Redirect
}

// New creates an empty jetpack connect module.
func New(options ...Option) *Module {
	module := &Module{
		logger:    slog.Default(),
		sites:     Sites{},
		flows:     make(map[string]*jetpack.Flow),
		redirects: make(map[string]jetpack.Redirect),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "jetpackconnect"
}

// Spec declares the record reducer, the check-url data layer and the redirect flow.
func (m *Module) Spec() calypso.ModuleSpec {
	return calypso.ModuleSpec{
		Reducers: []calypso.ModuleReducer{
			{
				Capability: calypso.Capability{
					Name:        "connect-sites",
					Description: "tracks site probe records per connect url",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{
							calypso.ActionKindConnectCheckURL,
							calypso.ActionKindConnectCheckURLReceive,
							calypso.ActionKindConnectConfirmStatus,
							calypso.ActionKindConnectDismissURL,
						},
					},
				},
				Reduce: m.reduce,
			},
		},
		Handlers: []calypso.ModuleHandler{
			{
				Capability: calypso.Capability{
					Name:        "connect-check-url",
					Description: "probes a connect url through the site-info api",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{calypso.ActionKindConnectCheckURL},
					},
				},
				Subscription: calypso.NewDefaultSubscriptionSpec("jetpackconnect-check-url"),
				Handler:      m.handleCheckURL,
			},
			{
				Capability: calypso.Capability{
					Name:        "connect-redirect",
					Description: "advances the redirect flow after a probe or confirmation",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{
							calypso.ActionKindConnectCheckURLReceive,
							calypso.ActionKindConnectConfirmStatus,
						},
					},
				},
				Subscription: calypso.NewDefaultSubscriptionSpec("jetpackconnect-redirect"),
				Handler:      m.handleAdvance,
			},
		},
	}
}

// OnRegister resolves the logger and API client and registers the site store.
func (m *Module) OnRegister(_ context.Context, runtime calypso.ModuleRuntime) error {
	logger, err := calypso.ResolveAs[*slog.Logger](runtime.Services(), calypso.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, calypso.ErrServiceNotFound):
	default:
		return fmt.Errorf("jetpackconnect resolve logger: %w", err)
	}

	if m.client == nil {
		client, err := calypso.ResolveAs[APIClient](runtime.Services(), calypso.ServiceWPCOM)
		if err != nil {
			return fmt.Errorf("jetpackconnect resolve api client: %w", err)
		}
		m.client = client
	}
	m.dispatcher = runtime.Dispatcher()

	if err := runtime.Services().Register(ServiceSiteStore, m); err != nil {
		return fmt.Errorf("jetpackconnect register service %s: %w", ServiceSiteStore, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx, "jetpackconnect module started", "env_id", m.envID)

	return nil
}

// OnShutdown drops records and flows.
func (m *Module) OnShutdown(context.Context) error {
	m.mu.Lock()
	m.sites = Sites{}
	clear(m.flows)
	clear(m.redirects)
	m.mu.Unlock()

	return nil
}

// Site returns a copy of the record for url.
func (m *Module) Site(url string) (jetpack.SiteRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.sites[jetpack.CleanURL(url)]
	if !ok {
		return jetpack.SiteRecord{}, false
	}

	return record.Clone(), true
}

// Status resolves the connect status for currentURL.
func (m *Module) Status(currentURL string) jetpack.Status {
	currentURL = jetpack.CleanURL(currentURL)
	record, ok := m.Site(currentURL)
	if !ok {
		return jetpack.Resolve(currentURL, nil)
	}

	return jetpack.Resolve(currentURL, &record)
}

// Redirect returns the redirect the flow for url performed, if any.
func (m *Module) Redirect(url string) (jetpack.Redirect, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	redirect, ok := m.redirects[jetpack.CleanURL(url)]

	return redirect, ok
}

// FollowInstructions fires the install or activation redirect when url's
// status asks the user to act on the plugin.
func (m *Module) FollowInstructions(url string) (jetpack.Redirect, bool) {
	url = jetpack.CleanURL(url)
	instructions, ok := jetpack.InstructionsFor(m.Status(url))
	if !ok {
		return jetpack.Redirect{}, false
	}

	flow, ok := m.flow(url)
	if !ok || !flow.Follow(instructions, url) {
		return jetpack.Redirect{}, false
	}

	return m.Redirect(url)
}

func (m *Module) reduce(action *calypso.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sites = Reduce(m.sites, action)
	if action.Kind == calypso.ActionKindConnectCheckURL && action.Connect != nil && action.Connect.URL != "" {
		url := jetpack.CleanURL(action.Connect.URL)
		delete(m.redirects, url)
		m.flows[url] = jetpack.NewFlow(m.envID, jetpack.RedirectorFunc(m.recordRedirect))
	}
}

func (m *Module) recordRedirect(redirect jetpack.Redirect) {
	m.mu.Lock()
	m.redirects[redirect.SiteURL] = redirect
	m.mu.Unlock()

	m.logger.Info("jetpack connect redirect",
		"url", redirect.SiteURL,
		"type", redirect.Kind,
		"location", redirect.Location,
	)
	if m.redirector != nil {
		m.redirector.Redirect(redirect)
	}
}

func (m *Module) flow(url string) (*jetpack.Flow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flow, ok := m.flows[url]

	return flow, ok
}

func (m *Module) handleCheckURL(ctx context.Context, action *calypso.Action) error {
	if action.Connect == nil || action.Connect.URL == "" {
		return nil
	}
	siteURL := jetpack.CleanURL(action.Connect.URL)

	if action.Connect.IsURLOnSites {
		probe := jetpack.OwnedSiteProbe()
		return m.dispatch(ctx, ReceiveProbe(siteURL, &probe, true, ""))
	}

	var probe jetpack.SiteProbe
	err := m.client.Get(ctx, SiteInfoPath, url.Values{"url": []string{siteURL}}, &probe)
	if err != nil {
		m.logger.WarnContext(ctx, "jetpack site probe failed", "url", siteURL, "error", err)
		return m.dispatch(ctx, ReceiveProbe(siteURL, nil, false, err.Error()))
	}

	return m.dispatch(ctx, ReceiveProbe(siteURL, &probe, false, ""))
}

func (m *Module) handleAdvance(_ context.Context, action *calypso.Action) error {
	if action.Connect == nil || action.Connect.URL == "" {
		return nil
	}
	siteURL := jetpack.CleanURL(action.Connect.URL)

	flow, ok := m.flow(siteURL)
	if !ok {
		return nil
	}
	record, ok := m.Site(siteURL)
	if !ok {
		return nil
	}
	flow.Advance(siteURL, &record)

	return nil
}

func (m *Module) dispatch(ctx context.Context, action *calypso.Action) error {
	if err := m.dispatcher.Dispatch(ctx, action); err != nil {
		return fmt.Errorf("jetpackconnect dispatch %s: %w", action.Kind, err)
	}

	return nil
}
