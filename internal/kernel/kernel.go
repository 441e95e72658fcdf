package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ex-calypso/pkg/calypso"
)

// Kernel is the store core: it owns module reducers, effect subscriptions,
// drivers, and the service registry.
//
// Dispatch runs every matching reducer synchronously under one writer lock,
// so each action is fully folded before the next one starts. Data-layer
// handlers then receive the reduced action asynchronously on the ActionBus.
type Kernel struct {
	cfg config

	bus      *ActionBus
	services *ServiceRegistry

	mu          sync.RWMutex
	modules     map[string]*moduleRecord
	moduleOrder []string
	drivers     map[string]calypso.Driver
	driverOrder []string

	dispatchMu sync.Mutex
	reducers   []registeredReducer

	runMu   sync.Mutex
	running bool
}

type registeredReducer struct {
	module     string
	capability string
	interest   calypso.InterestSet
	reduce     calypso.ReduceFunc
}

// New creates a kernel.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	return &Kernel{
		cfg: cfg,
		bus: NewActionBus(
			cfg.subscriptionBuffer,
			cfg.subscriptionWorker,
			cfg.handlerTimeout,
			cfg.onAsyncError,
		),
		services:    NewServiceRegistry(),
		modules:     make(map[string]*moduleRecord),
		drivers:     make(map[string]calypso.Driver),
		moduleOrder: make([]string, 0),
		driverOrder: make([]string, 0),
	}
}

// ActionBus exposes the effect bus to integration code.
func (k *Kernel) ActionBus() calypso.ActionBus {
	return k.bus
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() calypso.ServiceRegistry {
	return k.services
}

// RegisterService registers a runtime service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// Dispatch stamps, validates, and reduces action, then publishes it to effect handlers.
//
// The action is mutated in place: an empty ID and zero DispatchedAt are filled
// in so callers can correlate the dispatched action. Reducer panics are
// reported and returned after the remaining reducers and effects ran.
func (k *Kernel) Dispatch(ctx context.Context, action *calypso.Action) error {
	if action == nil {
		return fmt.Errorf("dispatch: %w: nil action", calypso.ErrInvalidAction)
	}
	if action.ID == "" {
		action.ID = k.cfg.newID()
	}
	if action.DispatchedAt.IsZero() {
		action.DispatchedAt = k.cfg.now()
	}
	if err := action.Validate(); err != nil {
		return fmt.Errorf("dispatch %s: %w", action.Kind, err)
	}

	k.dispatchMu.Lock()
	reduceErr := k.reduceLocked(ctx, action)
	for _, observer := range k.cfg.observers {
		if err := runSafely("dispatch observer", func() error {
			return observer(ctx, action)
		}); err != nil {
			k.cfg.onAsyncError(ctx, "dispatch observer", err)
		}
	}
	k.dispatchMu.Unlock()

	k.cfg.logger.DebugContext(ctx, "action dispatched",
		"action_id", action.ID,
		"type", action.Kind,
		"site_id", action.SiteID,
	)

	if err := k.bus.Publish(ctx, action); err != nil {
		return errors.Join(reduceErr, fmt.Errorf("dispatch %s: %w", action.Kind, err))
	}
	if reduceErr != nil {
		return fmt.Errorf("dispatch %s: %w", action.Kind, reduceErr)
	}

	return nil
}

// Restore folds previously recorded actions through the reducers without
// observers or effects. It stops at the first invalid action.
func (k *Kernel) Restore(ctx context.Context, actions []*calypso.Action) error {
	k.dispatchMu.Lock()
	defer k.dispatchMu.Unlock()

	var reduceErr error
	for idx, action := range actions {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("restore action %d: %w", idx, err)
		}
		if err := k.reduceLocked(ctx, action); err != nil {
			reduceErr = errors.Join(reduceErr, err)
		}
	}
	if reduceErr != nil {
		return fmt.Errorf("restore: %w", reduceErr)
	}

	return nil
}

// reduceLocked runs matching reducers in registration order. dispatchMu must be held.
func (k *Kernel) reduceLocked(ctx context.Context, action *calypso.Action) error {
	var reduceErr error
	for _, reducer := range k.reducers {
		if !reducer.interest.Matches(action) {
			continue
		}
		scope := "module " + reducer.module + " reducer " + reducer.capability
		if err := reduceSafely(scope, func() { reducer.reduce(action) }); err != nil {
			k.cfg.onAsyncError(ctx, scope, err)
			reduceErr = errors.Join(reduceErr, err)
		}
	}

	return reduceErr
}

// RegisterModule registers a module, runs its optional OnRegister hook, and
// wires its declared reducers and effect handlers.
func (k *Kernel) RegisterModule(ctx context.Context, module calypso.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}
	moduleSpec := module.Spec()
	if err := validateModuleSpec(moduleSpec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	record := &moduleRecord{
		name:         name,
		module:       module,
		capabilities: moduleSpec.Capabilities(),
	}
	if err := k.validateCapabilityDependencies(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	if _, exists := k.modules[name]; exists {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, calypso.ErrModuleAlreadyRegistered)
	}
	k.modules[name] = record
	k.moduleOrder = append(k.moduleOrder, name)
	k.mu.Unlock()

	runtime := &moduleRuntime{
		moduleName: name,
		services:   k.services,
		dispatcher: k,
		bus:        k.bus,
		record:     record,
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	if registrar, ok := module.(calypso.ModuleRegistrar); ok {
		if err := runSafely("module "+name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		}); err != nil {
			k.rollbackModuleRegistration(ctx, name, record)
			return fmt.Errorf("register module %s: %w", name, err)
		}
	}

	if err := k.registerDeclaredHandlers(hookCtx, name, runtime, moduleSpec.Handlers); err != nil {
		k.rollbackModuleRegistration(ctx, name, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}
	k.registerReducers(name, moduleSpec.Reducers)

	return nil
}

// RegisterDriver registers an external surface driver.
func (k *Kernel) RegisterDriver(driver calypso.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.drivers[name]; exists {
		return fmt.Errorf("register driver %s: %w", name, calypso.ErrDriverAlreadyRegistered)
	}

	k.drivers[name] = driver
	k.driverOrder = append(k.driverOrder, name)

	return nil
}

// Run starts modules, runs drivers, and blocks until cancellation or a fatal driver error.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.startRun(); err != nil {
		return err
	}
	defer k.finishRun()

	if err := k.startModules(ctx); err != nil {
		return err
	}
	k.cfg.logger.InfoContext(ctx, "kernel running",
		"modules", k.moduleNames(),
		"services", k.services.Names(),
	)

	runCtx, runCancel := context.WithCancel(ctx)
	driverErr, waitDrivers := k.startDrivers(runCtx)

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-driverErr:
		runErr = err
	}

	runCancel()
	waitDrivers()

	shutdownErr := k.shutdownAll(ctx)

	if isContextCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, shutdownErr)
}

func (k *Kernel) startRun() error {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	if k.running {
		return fmt.Errorf("kernel run: already running")
	}
	k.running = true

	return nil
}

func (k *Kernel) finishRun() {
	k.runMu.Lock()
	k.running = false
	k.runMu.Unlock()
}

func (k *Kernel) moduleNames() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return append([]string(nil), k.moduleOrder...)
}

func (k *Kernel) snapshotModules() ([]string, map[string]*moduleRecord) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	modules := make(map[string]*moduleRecord, len(k.modules))
	for name, module := range k.modules {
		modules[name] = module
	}

	return append([]string(nil), k.moduleOrder...), modules
}

func (k *Kernel) snapshotDrivers() ([]string, map[string]calypso.Driver) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	drivers := make(map[string]calypso.Driver, len(k.drivers))
	for name, driver := range k.drivers {
		drivers[name] = driver
	}

	return append([]string(nil), k.driverOrder...), drivers
}

// startModules invokes OnStart in registration order with per-module timeouts.
func (k *Kernel) startModules(ctx context.Context) error {
	order, modules := k.snapshotModules()

	for _, name := range order {
		record, exists := modules[name]
		if !exists {
			continue
		}
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", name, err)
		}
	}

	return nil
}

// startDrivers runs all drivers concurrently. It returns a channel delivering
// the first fatal driver error and a wait function bounded by the shutdown timeout.
func (k *Kernel) startDrivers(ctx context.Context) (<-chan error, func()) {
	errChannel := make(chan error, 1)
	done := make(chan struct{})
	workerWG := &sync.WaitGroup{}

	order, drivers := k.snapshotDrivers()
	for _, name := range order {
		driver := drivers[name]
		if driver == nil {
			continue
		}

		workerWG.Add(1)
		go func(driverName string, adapter calypso.Driver) {
			defer workerWG.Done()
			err := runSafely("driver "+driverName+" Start", func() error {
				return adapter.Start(ctx, k)
			})
			if err == nil || isContextCancellation(err) {
				return
			}
			select {
			case errChannel <- fmt.Errorf("run driver %s: %w", driverName, err):
			default:
			}
		}(name, driver)
	}

	go func() {
		workerWG.Wait()
		close(done)
	}()

	wait := func() {
		select {
		case <-done:
		case <-time.After(k.cfg.shutdownTimeout):
		}
	}

	if len(order) > 0 {
		go func() {
			<-done
			select {
			case errChannel <- context.Canceled:
			default:
			}
		}()
	}

	return errChannel, wait
}

// shutdownAll tears down drivers, modules, and the bus within the shutdown timeout.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	shutdownErr := errors.Join(
		k.shutdownDrivers(shutdownCtx),
		k.shutdownModules(shutdownCtx),
		k.bus.Close(shutdownCtx),
	)
	if shutdownErr != nil {
		return fmt.Errorf("kernel shutdown: %w", shutdownErr)
	}

	return nil
}

// shutdownDrivers calls Shutdown in reverse registration order.
func (k *Kernel) shutdownDrivers(ctx context.Context) error {
	order, drivers := k.snapshotDrivers()

	var shutdownErr error
	for idx := len(order) - 1; idx >= 0; idx-- {
		name := order[idx]
		driver := drivers[name]
		if driver == nil {
			continue
		}
		err := runSafely("driver "+name+" Shutdown", func() error {
			return driver.Shutdown(ctx)
		})
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown driver %s: %w", name, err))
		}
	}

	return shutdownErr
}

// shutdownModules closes module subscriptions and calls OnShutdown in reverse order.
func (k *Kernel) shutdownModules(ctx context.Context) error {
	order, modules := k.snapshotModules()

	var shutdownErr error
	for idx := len(order) - 1; idx >= 0; idx-- {
		name := order[idx]
		record := modules[name]
		if record == nil {
			continue
		}
		if err := record.closeSubscriptions(ctx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s subscriptions: %w", name, err))
		}
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		})
		cancel()
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s: %w", name, err))
		}
	}

	return shutdownErr
}

// rollbackModuleRegistration removes a partially registered module.
func (k *Kernel) rollbackModuleRegistration(ctx context.Context, name string, record *moduleRecord) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(rollbackCtx); err != nil {
		k.cfg.onAsyncError(rollbackCtx, "rollback_module_registration", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.modules, name)
	k.moduleOrder = removeOrderedName(k.moduleOrder, name)
}

func (k *Kernel) registerReducers(moduleName string, reducers []calypso.ModuleReducer) {
	k.dispatchMu.Lock()
	defer k.dispatchMu.Unlock()

	for _, declared := range reducers {
		k.reducers = append(k.reducers, registeredReducer{
			module:     moduleName,
			capability: declared.Capability.Name,
			interest:   cloneInterestSet(declared.Capability.Interest),
			reduce:     declared.Reduce,
		})
	}
}

// validateCapabilityDependencies checks services required by capabilities.
func (k *Kernel) validateCapabilityDependencies(capabilities []calypso.Capability) error {
	for _, capability := range capabilities {
		for _, serviceName := range capability.RequiredServices {
			if _, err := k.services.Resolve(serviceName); err != nil {
				return fmt.Errorf(
					"capability %s requires service %s: %w",
					capability.Name,
					serviceName,
					err,
				)
			}
		}
	}

	return nil
}

func (k *Kernel) registerDeclaredHandlers(
	ctx context.Context,
	moduleName string,
	runtime *moduleRuntime,
	handlers []calypso.ModuleHandler,
) error {
	for idx, declared := range handlers {
		spec := declared.Subscription
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("%s-handler-%d", moduleName, idx+1)
		}
		if _, err := runtime.Subscribe(ctx, declared.Capability.Interest, spec, declared.Handler); err != nil {
			return fmt.Errorf("register handler %s for capability %s: %w", spec.Name, declared.Capability.Name, err)
		}
	}

	return nil
}

// validateModuleSpec checks capability naming and handler wiring.
func validateModuleSpec(spec calypso.ModuleSpec) error {
	seenCapabilities := make(map[string]struct{})
	seenSubscriptions := make(map[string]struct{}, len(spec.Handlers))

	claim := func(kind string, idx int, name string) error {
		if name == "" {
			return fmt.Errorf("module %s %d: empty capability name", kind, idx)
		}
		if _, exists := seenCapabilities[name]; exists {
			return fmt.Errorf("module %s %d: duplicate capability name %s", kind, idx, name)
		}
		seenCapabilities[name] = struct{}{}

		return nil
	}

	for idx, reducer := range spec.Reducers {
		if err := claim("reducer", idx, reducer.Capability.Name); err != nil {
			return err
		}
		if reducer.Reduce == nil {
			return fmt.Errorf("module reducer %s: nil reducer", reducer.Capability.Name)
		}
	}

	for idx, handler := range spec.Handlers {
		if err := claim("handler", idx, handler.Capability.Name); err != nil {
			return err
		}
		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", handler.Capability.Name)
		}
		if handler.Subscription.Name != "" {
			if _, exists := seenSubscriptions[handler.Subscription.Name]; exists {
				return fmt.Errorf("module handler %s: duplicate subscription name %s", handler.Capability.Name, handler.Subscription.Name)
			}
			seenSubscriptions[handler.Subscription.Name] = struct{}{}
		}
	}

	for idx, capability := range spec.AdditionalCapabilities {
		if err := claim("capability", idx, capability.Name); err != nil {
			return err
		}
	}

	return nil
}

func removeOrderedName(ordered []string, target string) []string {
	filtered := make([]string, 0, len(ordered))
	for _, item := range ordered {
		if item != target {
			filtered = append(filtered, item)
		}
	}

	return filtered
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
