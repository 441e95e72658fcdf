package commentcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"ex-calypso/pkg/calypso"
)

// Option mutates comment cache module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// Module owns the comment query cache and pending mutation keys.
type Module struct {
	logger *slog.Logger

	mu      sync.RWMutex
	sites   map[int64]Queries
	pending []string
}

// New creates an empty comment cache module.
func New(options ...Option) *Module {
	module := &Module{
		logger:  slog.Default(),
		sites:   make(map[int64]Queries),
		pending: []string{},
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "comment-cache"
}

// Spec declares the query and pending-action reducers.
func (m *Module) Spec() calypso.ModuleSpec {
	return calypso.ModuleSpec{
		Reducers: []calypso.ModuleReducer{
			{
				Capability: calypso.Capability{
					Name:        "comment-queries",
					Description: "caches comment list pages per site, scope, filter signature, and page",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{
							calypso.ActionKindCommentsQueryUpdate,
							calypso.ActionKindCommentsChangeStatus,
							calypso.ActionKindCommentsDelete,
						},
					},
				},
				Reduce: m.reduceQueries,
			},
			{
				Capability: calypso.Capability{
					Name:        "comment-pending-actions",
					Description: "tracks request keys of in-flight comment moderation actions",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{
							calypso.ActionKindCommentsChangeStatus,
							calypso.ActionKindCommentsDelete,
							calypso.ActionKindCommentsListRequest,
						},
					},
				},
				Reduce: m.reducePending,
			},
		},
	}
}

// OnRegister resolves the logger and registers the comment query store service.
func (m *Module) OnRegister(_ context.Context, runtime calypso.ModuleRuntime) error {
	logger, err := calypso.ResolveAs[*slog.Logger](runtime.Services(), calypso.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, calypso.ErrServiceNotFound):
	default:
		return fmt.Errorf("comment cache resolve logger: %w", err)
	}

	if err := runtime.Services().Register(calypso.ServiceCommentQueryStore, m); err != nil {
		return fmt.Errorf("comment cache register service %s: %w", calypso.ServiceCommentQueryStore, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx, "comment cache module started", "module", m.Name())

	return nil
}

// OnShutdown drops cached pages.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	siteCount := len(m.sites)
	m.sites = make(map[int64]Queries)
	m.pending = []string{}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "comment cache module stopped", "module", m.Name(), "sites", siteCount)

	return nil
}

// CommentPage returns cached ids for one site's query page.
func (m *Module) CommentPage(ctx context.Context, siteID int64, query calypso.CommentQuery) ([]int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("comment page: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, found := m.sites[siteID].Page(query.Scope(), query.Signature(), max(query.Page, 1))

	return ids, found, nil
}

// PendingActions returns request keys of tracked in-flight comment mutations.
func (m *Module) PendingActions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pending actions: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.pending), nil
}

// Snapshot returns one site's query cache. The result must not be mutated.
func (m *Module) Snapshot(siteID int64) Queries {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sites[siteID]
}

func (m *Module) reduceQueries(action *calypso.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.sites[action.SiteID]
	next := ReduceQueries(current, action)
	if next == nil {
		return
	}
	m.sites[action.SiteID] = next
}

func (m *Module) reducePending(action *calypso.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = ReducePendingActions(m.pending, action)
}
