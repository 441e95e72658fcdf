package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ex-calypso/pkg/calypso"
)

// moduleRecord stores module metadata and the subscriptions the kernel manages for it.
type moduleRecord struct {
	name          string
	module        calypso.Module
	capabilities  []calypso.Capability
	subscriptions []calypso.Subscription
	subMu         sync.Mutex
}

func (m *moduleRecord) addSubscription(subscription calypso.Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes tracked subscriptions once; repeated calls are no-ops.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.subMu.Lock()
	subscriptions := append([]calypso.Subscription(nil), m.subscriptions...)
	m.subscriptions = nil
	m.subMu.Unlock()

	var closeErr error
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return closeErr
}

// moduleRuntime is the kernel-owned calypso.ModuleRuntime handed to one module.
type moduleRuntime struct {
	moduleName string
	services   calypso.ServiceRegistry
	dispatcher calypso.Dispatcher
	bus        calypso.ActionBus
	record     *moduleRecord
}

// Services returns the kernel service registry.
func (r *moduleRuntime) Services() calypso.ServiceRegistry {
	return r.services
}

// Dispatcher returns the kernel dispatcher for follow-up actions.
func (r *moduleRuntime) Dispatcher() calypso.Dispatcher {
	return r.dispatcher
}

// Subscribe registers a module-owned effect subscription after capability checks.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest calypso.InterestSet,
	spec calypso.SubscriptionSpec,
	handler calypso.ActionHandler,
) (calypso.Subscription, error) {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("%s-subscription", r.moduleName)
	}
	if err := assertSubscriptionAllowed(r.record.capabilities, spec.Name, interest); err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	r.record.addSubscription(subscription)

	return subscription, nil
}

// assertSubscriptionAllowed requires at least one declared capability to cover interest.
func assertSubscriptionAllowed(capabilities []calypso.Capability, subscriptionName string, interest calypso.InterestSet) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("subscription %s requires at least one declared capability", subscriptionName)
	}

	for _, capability := range capabilities {
		if capability.Interest.Allows(interest) {
			return nil
		}
	}

	return fmt.Errorf("subscription does not match declared module capabilities")
}
