package calypso

import "errors"

var (
	// ErrInvalidAction indicates that an action does not satisfy protocol invariants.
	ErrInvalidAction = errors.New("calypso: invalid action")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("calypso: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("calypso: subscription closed")
	// ErrActionDropped indicates a non-blocking backpressure drop.
	ErrActionDropped = errors.New("calypso: action dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("calypso: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("calypso: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("calypso: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("calypso: driver already registered")
)
