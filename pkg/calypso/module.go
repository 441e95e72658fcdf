package calypso

import "context"

// ActionHandler processes a single action as a data-layer side effect.
type ActionHandler func(ctx context.Context, action *Action) error

// ReduceFunc folds one action into module-owned state.
//
// Reducers run synchronously inside Dispatch under the kernel's single-writer
// lock, so they must not block and must not dispatch.
type ReduceFunc func(action *Action)

// Dispatcher accepts actions for reduction and effect fan-out.
type Dispatcher interface {
	// Dispatch reduces the action synchronously and then publishes it to effect handlers.
	Dispatch(ctx context.Context, action *Action) error
}

// ModuleRuntime provides kernel facilities to modules during registration.
type ModuleRuntime interface {
	// Services exposes the service registry for dependency lookup.
	Services() ServiceRegistry
	// Dispatcher returns the kernel dispatcher for follow-up actions.
	Dispatcher() Dispatcher
	// Subscribe registers an asynchronous effect handler owned by the module.
	Subscribe(
		ctx context.Context,
		interest InterestSet,
		spec SubscriptionSpec,
		handler ActionHandler,
	) (Subscription, error)
}

// ModuleReducer binds one reducer to the capability describing which actions it folds.
type ModuleReducer struct {
	Capability Capability
	Reduce     ReduceFunc
}

// ModuleHandler binds one effect handler to its capability and subscription.
type ModuleHandler struct {
	Capability   Capability
	Subscription SubscriptionSpec
	Handler      ActionHandler
}

// ModuleSpec declares everything the kernel wires for a module.
type ModuleSpec struct {
	// Reducers run in registration order on every matching Dispatch.
	Reducers []ModuleReducer
	// Handlers receive matching actions asynchronously after reduction.
	Handlers []ModuleHandler
	// AdditionalCapabilities declares capabilities used by manual subscriptions.
	AdditionalCapabilities []Capability
}

// Capabilities returns every capability declared by the spec.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, 0, len(s.Reducers)+len(s.Handlers)+len(s.AdditionalCapabilities))
	for _, reducer := range s.Reducers {
		capabilities = append(capabilities, reducer.Capability)
	}
	for _, handler := range s.Handlers {
		capabilities = append(capabilities, handler.Capability)
	}
	capabilities = append(capabilities, s.AdditionalCapabilities...)

	return capabilities
}

// Module is a lifecycle-aware plugin contract.
//
// Reducers are serialized by the kernel; effect handlers can run on multiple
// workers and must be concurrency-safe.
type Module interface {
	// Name returns a stable module identifier.
	Name() string
	// Spec returns the declarative reducers and effect handlers.
	Spec() ModuleSpec
	// OnStart is called when the kernel begins runtime execution.
	OnStart(ctx context.Context) error
	// OnShutdown is called during orderly shutdown.
	OnShutdown(ctx context.Context) error
}

// ModuleRegistrar is implemented by modules that resolve services or register
// their own services during registration.
type ModuleRegistrar interface {
	// OnRegister is called once when the module is registered.
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

// Driver adapts an external surface into dispatched actions.
type Driver interface {
	// Name returns a stable driver identifier.
	Name() string
	// Start starts serving and dispatching actions.
	// It should return only after context cancellation or fatal error.
	Start(ctx context.Context, dispatcher Dispatcher) error
	// Shutdown stops external resources that are not tied to Start context alone.
	Shutdown(ctx context.Context) error
}
