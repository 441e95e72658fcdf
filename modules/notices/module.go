// Package notices keeps the list of user-facing notices raised by data-layer
// handlers and exposes it as the calypso.NoticeLog service.
package notices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"ex-calypso/pkg/calypso"
)

const defaultMaxNotices = 50

// Option mutates notices module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithMaxNotices bounds how many notices are kept; the oldest are dropped first.
func WithMaxNotices(maxNotices int) Option {
	return func(module *Module) {
		if maxNotices > 0 {
			module.maxNotices = maxNotices
		}
	}
}

// Module stores displayed notices in creation order.
type Module struct {
	logger     *slog.Logger
	maxNotices int

	mu      sync.RWMutex
	notices []calypso.Notice
}

// New creates an empty notices module.
func New(options ...Option) *Module {
	module := &Module{
		logger:     slog.Default(),
		maxNotices: defaultMaxNotices,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "notices"
}

// Spec declares the notice list reducer.
func (m *Module) Spec() calypso.ModuleSpec {
	return calypso.ModuleSpec{
		Reducers: []calypso.ModuleReducer{
			{
				Capability: calypso.Capability{
					Name:        "notice-list",
					Description: "appends and removes user-facing notices",
					Interest: calypso.InterestSet{
						Kinds: []calypso.ActionKind{
							calypso.ActionKindNoticeCreate,
							calypso.ActionKindNoticeRemove,
						},
					},
				},
				Reduce: m.reduce,
			},
		},
	}
}

// OnRegister resolves the logger and registers the notice log service.
func (m *Module) OnRegister(_ context.Context, runtime calypso.ModuleRuntime) error {
	logger, err := calypso.ResolveAs[*slog.Logger](runtime.Services(), calypso.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, calypso.ErrServiceNotFound):
	default:
		return fmt.Errorf("notices resolve logger: %w", err)
	}

	if err := runtime.Services().Register(calypso.ServiceNoticeLog, m); err != nil {
		return fmt.Errorf("notices register service %s: %w", calypso.ServiceNoticeLog, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(context.Context) error {
	return nil
}

// OnShutdown clears notices.
func (m *Module) OnShutdown(context.Context) error {
	m.mu.Lock()
	m.notices = nil
	m.mu.Unlock()

	return nil
}

// Notices returns displayed notices in creation order.
func (m *Module) Notices(ctx context.Context) ([]calypso.Notice, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("notices: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.notices), nil
}

func (m *Module) reduce(action *calypso.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notices = Reduce(m.notices, action, m.maxNotices)
	if action.Kind == calypso.ActionKindNoticeCreate && action.Notice.Status == calypso.NoticeStatusError {
		m.logger.Warn("error notice raised", "notice_id", m.notices[len(m.notices)-1].ID, "text", action.Notice.Text)
	}
}

// Reduce folds one notice action into state without mutating it.
//
// A created notice without an id takes the action id, so replaying a recorded
// action yields the same notice id.
func Reduce(state []calypso.Notice, action *calypso.Action, maxNotices int) []calypso.Notice {
	if action == nil || action.Notice == nil {
		return state
	}

	switch action.Kind {
	case calypso.ActionKindNoticeCreate:
		notice := *action.Notice
		if notice.ID == "" {
			notice.ID = action.ID
		}
		if notice.Status == "" {
			notice.Status = calypso.NoticeStatusInfo
		}
		next := slices.DeleteFunc(slices.Clone(state), func(existing calypso.Notice) bool {
			return existing.ID == notice.ID
		})
		next = append(next, notice)
		if maxNotices > 0 && len(next) > maxNotices {
			next = slices.Clone(next[len(next)-maxNotices:])
		}
		return next
	case calypso.ActionKindNoticeRemove:
		if !slices.ContainsFunc(state, func(existing calypso.Notice) bool { return existing.ID == action.Notice.ID }) {
			return state
		}
		return slices.DeleteFunc(slices.Clone(state), func(existing calypso.Notice) bool {
			return existing.ID == action.Notice.ID
		})
	default:
		return state
	}
}
