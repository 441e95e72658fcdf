package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ex-calypso/pkg/calypso"
)

// ActionBus fans reduced actions out to data-layer effect handlers.
type ActionBus struct {
	mu                    sync.RWMutex
	nextID                int64
	closed                bool
	subscriptions         map[int64]*busSubscription
	order                 []int64
	defaultBuffer         int
	defaultWorkers        int
	defaultHandlerTimeout time.Duration
	onAsyncError          func(context.Context, string, error)
}

// NewActionBus creates an effect bus with bounded per-subscriber queues.
func NewActionBus(
	defaultBuffer int,
	defaultWorkers int,
	defaultHandlerTimeout time.Duration,
	onAsyncError func(context.Context, string, error),
) *ActionBus {
	return &ActionBus{
		subscriptions:         make(map[int64]*busSubscription),
		defaultBuffer:         defaultBuffer,
		defaultWorkers:        defaultWorkers,
		defaultHandlerTimeout: defaultHandlerTimeout,
		onAsyncError:          onAsyncError,
	}
}

// Publish enqueues action for every matching subscriber in subscription order.
func (b *ActionBus) Publish(ctx context.Context, action *calypso.Action) error {
	if err := action.Validate(); err != nil {
		return fmt.Errorf("publish action: %w", err)
	}

	subs, err := b.snapshotSubscriptions()
	if err != nil {
		return fmt.Errorf("publish action %s: %w", action.Kind, err)
	}

	var publishErrs []error
	for _, sub := range subs {
		if !sub.interest.Matches(action) {
			continue
		}
		if err := sub.enqueue(ctx, action); err != nil {
			if errors.Is(err, calypso.ErrActionDropped) || errors.Is(err, calypso.ErrSubscriptionClosed) {
				b.reportAsyncError(ctx, sub.spec.Name, err)
				continue
			}
			publishErrs = append(publishErrs, err)
		}
	}

	if len(publishErrs) > 0 {
		return fmt.Errorf("publish action %s: %w", action.Kind, errors.Join(publishErrs...))
	}

	return nil
}

// Subscribe registers a bounded asynchronous effect handler.
func (b *ActionBus) Subscribe(
	ctx context.Context,
	interest calypso.InterestSet,
	spec calypso.SubscriptionSpec,
	handler calypso.ActionHandler,
) (calypso.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}

	subID := atomic.AddInt64(&b.nextID, 1)
	spec = b.normalizeSpec(spec, subID)
	if !validBackpressure(spec.Backpressure) {
		return nil, fmt.Errorf("subscribe %s: backpressure %q: %w", spec.Name, spec.Backpressure, calypso.ErrInvalidSubscription)
	}
	sub := newBusSubscription(subID, interest, spec, handler, b)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.signalClose()
		return nil, fmt.Errorf("subscribe %s: bus closed", spec.Name)
	}
	b.subscriptions[subID] = sub
	b.order = append(b.order, subID)

	return sub, nil
}

// Close stops all subscriptions and rejects further publishes and subscribes.
func (b *ActionBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.orderedLocked()
	b.subscriptions = make(map[int64]*busSubscription)
	b.order = nil
	b.mu.Unlock()

	var closeErrs []error
	for _, sub := range subs {
		if err := sub.shutdown(ctx); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}

	if len(closeErrs) > 0 {
		return fmt.Errorf("close action bus: %w", errors.Join(closeErrs...))
	}

	return nil
}

// snapshotSubscriptions returns subscribers in registration order.
func (b *ActionBus) snapshotSubscriptions() ([]*busSubscription, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("bus closed")
	}

	return b.orderedLocked(), nil
}

func (b *ActionBus) orderedLocked() []*busSubscription {
	subs := make([]*busSubscription, 0, len(b.order))
	for _, id := range b.order {
		if sub, ok := b.subscriptions[id]; ok {
			subs = append(subs, sub)
		}
	}

	return subs
}

// normalizeSpec applies bus defaults to omitted fields.
func (b *ActionBus) normalizeSpec(spec calypso.SubscriptionSpec, subID int64) calypso.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", subID)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = b.defaultBuffer
	}
	if spec.Workers <= 0 {
		spec.Workers = b.defaultWorkers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = b.defaultHandlerTimeout
	}
	if spec.Backpressure == "" {
		spec.Backpressure = calypso.BackpressureBlock
	}

	return spec
}

func (b *ActionBus) unsubscribe(ctx context.Context, subID int64) error {
	b.mu.Lock()
	sub, found := b.subscriptions[subID]
	if found {
		delete(b.subscriptions, subID)
		b.order = removeOrderedID(b.order, subID)
	}
	b.mu.Unlock()

	if !found {
		return nil
	}

	if err := sub.shutdown(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.spec.Name, err)
	}

	return nil
}

func (b *ActionBus) reportAsyncError(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}

func validBackpressure(policy calypso.BackpressurePolicy) bool {
	switch policy {
	case calypso.BackpressureBlock, calypso.BackpressureDropNewest, calypso.BackpressureDropOldest:
		return true
	default:
		return false
	}
}

func removeOrderedID(ordered []int64, target int64) []int64 {
	filtered := make([]int64, 0, len(ordered))
	for _, id := range ordered {
		if id != target {
			filtered = append(filtered, id)
		}
	}

	return filtered
}

// busSubscription owns the queue and workers of one effect handler.
type busSubscription struct {
	id       int64
	interest calypso.InterestSet
	spec     calypso.SubscriptionSpec
	handler  calypso.ActionHandler
	queue    chan *calypso.Action
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closed   atomic.Bool
	once     sync.Once
	bus      *ActionBus
}

func newBusSubscription(
	subID int64,
	interest calypso.InterestSet,
	spec calypso.SubscriptionSpec,
	handler calypso.ActionHandler,
	bus *ActionBus,
) *busSubscription {
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &busSubscription{
		id:       subID,
		interest: cloneInterestSet(interest),
		spec:     spec,
		handler:  handler,
		queue:    make(chan *calypso.Action, spec.Buffer),
		ctx:      subCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		bus:      bus,
	}

	sub.startWorkers()

	return sub
}

// cloneInterestSet copies owned slices so caller mutation does not affect matching.
func cloneInterestSet(interest calypso.InterestSet) calypso.InterestSet {
	cloned := interest
	if len(interest.Kinds) > 0 {
		cloned.Kinds = append([]calypso.ActionKind(nil), interest.Kinds...)
	}
	if len(interest.Sites) > 0 {
		cloned.Sites = append([]int64(nil), interest.Sites...)
	}

	return cloned
}

// Name returns the subscription name.
func (s *busSubscription) Name() string {
	return s.spec.Name
}

// Close unregisters this subscription from its bus.
func (s *busSubscription) Close(ctx context.Context) error {
	return s.bus.unsubscribe(ctx, s.id)
}

func (s *busSubscription) enqueue(ctx context.Context, action *calypso.Action) error {
	if s.closed.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, calypso.ErrSubscriptionClosed)
	}

	switch s.spec.Backpressure {
	case calypso.BackpressureDropNewest:
		return s.enqueueDropNewest(action)
	case calypso.BackpressureDropOldest:
		return s.enqueueDropOldest(action)
	case calypso.BackpressureBlock:
		return s.enqueueBlock(ctx, action)
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, calypso.ErrInvalidSubscription)
	}
}

func (s *busSubscription) enqueueDropNewest(action *calypso.Action) error {
	select {
	case s.queue <- action:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, calypso.ErrActionDropped)
	}
}

func (s *busSubscription) enqueueDropOldest(action *calypso.Action) error {
	select {
	case s.queue <- action:
		return nil
	default:
	}

	select {
	case <-s.queue:
	default:
	}

	select {
	case s.queue <- action:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, calypso.ErrActionDropped)
	}
}

// enqueueBlock waits for queue capacity, caller cancellation, or subscription close.
func (s *busSubscription) enqueueBlock(ctx context.Context, action *calypso.Action) error {
	select {
	case s.queue <- action:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
	case <-s.ctx.Done():
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, calypso.ErrSubscriptionClosed)
	}
}

func (s *busSubscription) startWorkers() {
	workerWG := &sync.WaitGroup{}
	for idx := 0; idx < s.spec.Workers; idx++ {
		workerID := idx
		workerWG.Add(1)
		go s.runWorker(workerWG, workerID)
	}

	go func() {
		workerWG.Wait()
		close(s.done)
	}()
}

// runWorker drains the queue until the subscription closes.
func (s *busSubscription) runWorker(workerWG *sync.WaitGroup, workerID int) {
	defer workerWG.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case action := <-s.queue:
			if err := s.handleAction(s.ctx, workerID, action); err != nil {
				s.bus.reportAsyncError(s.ctx, s.spec.Name, err)
			}
		}
	}
}

func (s *busSubscription) handleAction(ctx context.Context, workerID int, action *calypso.Action) error {
	handlerCtx := ctx
	cancel := func() {}
	if s.spec.HandlerTimeout > 0 {
		handlerCtx, cancel = context.WithTimeout(ctx, s.spec.HandlerTimeout)
	}
	defer cancel()

	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, workerID)
	if err := runSafely(scope, func() error {
		return s.handler(handlerCtx, action)
	}); err != nil {
		return fmt.Errorf("handle action %s %s: %w", action.Kind, action.ID, err)
	}

	return nil
}

func (s *busSubscription) signalClose() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

// shutdown waits for workers to exit or for ctx to expire.
func (s *busSubscription) shutdown(ctx context.Context) error {
	s.signalClose()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
