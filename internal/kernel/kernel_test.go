package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ex-calypso/pkg/calypso"
)

func TestRegisterModuleDependencyValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		registerLogger bool
		wantErr        bool
	}{
		{name: "missing required service fails", registerLogger: false, wantErr: true},
		{name: "present required service succeeds", registerLogger: true, wantErr: false},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := newTestKernel(t)
			if testCase.registerLogger {
				if err := kernelRuntime.RegisterService(calypso.ServiceLogger, struct{}{}); err != nil {
					t.Fatalf("register logger service failed: %v", err)
				}
			}

			module := &stubModule{
				name: "cap-module",
				spec: calypso.ModuleSpec{
					AdditionalCapabilities: []calypso.Capability{
						{Name: "needs-logger", RequiredServices: []string{calypso.ServiceLogger}},
					},
				},
			}
			err := kernelRuntime.RegisterModule(context.Background(), module)
			if testCase.wantErr && err == nil {
				t.Fatal("expected module registration error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected module registration error: %v", err)
			}
		})
	}
}

func TestDispatchRunsReducersInRegistrationOrder(t *testing.T) {
	t.Parallel()

	kernelRuntime := newTestKernel(t)

	var mu sync.Mutex
	var calls []string
	record := func(name string) calypso.ReduceFunc {
		return func(action *calypso.Action) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name+":"+string(action.Kind))
		}
	}

	for _, name := range []string{"first", "second"} {
		module := &stubModule{
			name: name,
			spec: calypso.ModuleSpec{
				Reducers: []calypso.ModuleReducer{
					{
						Capability: calypso.Capability{
							Name: name + "-deletes",
							Interest: calypso.InterestSet{
								Kinds: []calypso.ActionKind{calypso.ActionKindCommentsDelete},
							},
						},
						Reduce: record(name),
					},
				},
			},
		}
		if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
			t.Fatalf("register module %s failed: %v", name, err)
		}
	}

	if err := kernelRuntime.Dispatch(context.Background(), newTestAction("a1", calypso.ActionKindCommentsDelete)); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if err := kernelRuntime.Dispatch(context.Background(), newTestAction("a2", calypso.ActionKindNoticeCreate)); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	want := []string{"first:comments.delete", "second:comments.delete"}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatalf("reducer calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchStampsAndValidates(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	kernelRuntime := newTestKernel(t,
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return "generated" }),
	)

	action := &calypso.Action{Kind: calypso.ActionKindCommentsListRequest}
	if err := kernelRuntime.Dispatch(context.Background(), action); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if action.ID != "generated" {
		t.Fatalf("id = %q, want generated", action.ID)
	}
	if !action.DispatchedAt.Equal(fixed) {
		t.Fatalf("dispatched at = %v, want %v", action.DispatchedAt, fixed)
	}

	err := kernelRuntime.Dispatch(context.Background(), &calypso.Action{Kind: calypso.ActionKindCommentsDelete})
	if !errors.Is(err, calypso.ErrInvalidAction) {
		t.Fatalf("dispatch invalid error = %v, want ErrInvalidAction", err)
	}
	if err := kernelRuntime.Dispatch(context.Background(), nil); !errors.Is(err, calypso.ErrInvalidAction) {
		t.Fatalf("dispatch nil error = %v, want ErrInvalidAction", err)
	}
}

func TestDispatchRecoversReducerPanic(t *testing.T) {
	t.Parallel()

	var reported []string
	var mu sync.Mutex
	kernelRuntime := newTestKernel(t, WithAsyncErrorHandler(func(_ context.Context, scope string, _ error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, scope)
	}))

	reduced := false
	module := &stubModule{
		name: "panicky",
		spec: calypso.ModuleSpec{
			Reducers: []calypso.ModuleReducer{
				{
					Capability: calypso.Capability{Name: "boom"},
					Reduce:     func(*calypso.Action) { panic("boom") },
				},
				{
					Capability: calypso.Capability{Name: "after"},
					Reduce:     func(*calypso.Action) { reduced = true },
				},
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}

	err := kernelRuntime.Dispatch(context.Background(), newTestAction("a1", calypso.ActionKindCommentsListRequest))
	if err == nil || !strings.Contains(err.Error(), "panic recovered") {
		t.Fatalf("dispatch error = %v, want recovered panic", err)
	}
	if !reduced {
		t.Fatal("reducer after panic did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || !strings.Contains(reported[0], "boom") {
		t.Fatalf("reported scopes = %v", reported)
	}
}

func TestDispatchNotifiesObserversBeforeEffects(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	kernelRuntime := newTestKernel(t, WithDispatchObserver(func(_ context.Context, action *calypso.Action) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "observer:"+action.ID)
		return nil
	}))

	handled := make(chan struct{}, 1)
	module := &stubModule{
		name: "effects",
		spec: calypso.ModuleSpec{
			Handlers: []calypso.ModuleHandler{
				{
					Capability:   calypso.Capability{Name: "all"},
					Subscription: calypso.NewDefaultSubscriptionSpec("effects-all"),
					Handler: func(_ context.Context, action *calypso.Action) error {
						mu.Lock()
						order = append(order, "effect:"+action.ID)
						mu.Unlock()
						handled <- struct{}{}
						return nil
					},
				},
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}

	if err := kernelRuntime.Dispatch(context.Background(), newTestAction("a1", calypso.ActionKindCommentsListRequest)); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for effect")
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"observer:a1", "effect:a1"}, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreReducesWithoutEffects(t *testing.T) {
	t.Parallel()

	observed := 0
	kernelRuntime := newTestKernel(t, WithDispatchObserver(func(context.Context, *calypso.Action) error {
		observed++
		return nil
	}))

	reduced := 0
	module := &stubModule{
		name: "restore",
		spec: calypso.ModuleSpec{
			Reducers: []calypso.ModuleReducer{
				{
					Capability: calypso.Capability{Name: "count"},
					Reduce:     func(*calypso.Action) { reduced++ },
				},
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}

	actions := []*calypso.Action{
		newTestAction("a1", calypso.ActionKindCommentsDelete),
		newTestAction("a2", calypso.ActionKindCommentsListRequest),
	}
	if err := kernelRuntime.Restore(context.Background(), actions); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if reduced != 2 {
		t.Fatalf("reduced = %d, want 2", reduced)
	}
	if observed != 0 {
		t.Fatalf("observed = %d, want 0", observed)
	}

	invalid := []*calypso.Action{{Kind: calypso.ActionKindCommentsDelete}}
	if err := kernelRuntime.Restore(context.Background(), invalid); !errors.Is(err, calypso.ErrInvalidAction) {
		t.Fatalf("restore invalid error = %v, want ErrInvalidAction", err)
	}
}

func TestKernelRunCallsModuleLifecycle(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()

	reduced := make(chan string, 1)
	module := &stubModule{
		name: "lifecycle",
		spec: calypso.ModuleSpec{
			Reducers: []calypso.ModuleReducer{
				{
					Capability: calypso.Capability{Name: "lifecycle-reducer"},
					Reduce: func(action *calypso.Action) {
						reduced <- action.ID
					},
				},
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}

	driver := &stubDriver{name: "stub-driver", dispatch: newTestAction("from-driver", calypso.ActionKindCommentsListRequest)}
	if err := kernelRuntime.RegisterDriver(driver); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- kernelRuntime.Run(runCtx)
	}()

	select {
	case id := <-reduced:
		if id != "from-driver" {
			t.Fatalf("reduced id = %q, want from-driver", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("driver action was not reduced")
	}
	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("kernel run failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("kernel run did not exit")
	}

	if module.registered.Load() == 0 {
		t.Fatal("module OnRegister was not called")
	}
	if module.started.Load() == 0 {
		t.Fatal("module OnStart was not called")
	}
	if module.shutdown.Load() == 0 {
		t.Fatal("module OnShutdown was not called")
	}
	if driver.stopped.Load() == 0 {
		t.Fatal("driver Shutdown was not called")
	}
}

func TestRegisterModuleImperativeSubscriptionCapabilityGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    calypso.ModuleSpec
		wantErr bool
	}{
		{
			name:    "missing capability fails",
			spec:    calypso.ModuleSpec{},
			wantErr: true,
		},
		{
			name: "additional capability allows imperative subscribe",
			spec: calypso.ModuleSpec{
				AdditionalCapabilities: []calypso.Capability{
					{
						Name: "imperative-capability",
						Interest: calypso.InterestSet{
							Kinds: []calypso.ActionKind{calypso.ActionKindCommentsDelete},
						},
					},
				},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := newTestKernel(t)
			module := &stubModule{
				name: "imperative",
				spec: testCase.spec,
				onRegister: func(ctx context.Context, runtime calypso.ModuleRuntime) error {
					_, err := runtime.Subscribe(ctx, calypso.InterestSet{
						Kinds: []calypso.ActionKind{calypso.ActionKindCommentsDelete},
					}, calypso.SubscriptionSpec{
						Name: "imperative-handler",
					}, func(context.Context, *calypso.Action) error {
						return nil
					})
					if err != nil {
						return fmt.Errorf("subscribe imperative handler: %w", err)
					}

					return nil
				},
			}

			err := kernelRuntime.RegisterModule(context.Background(), module)
			if testCase.wantErr && err == nil {
				t.Fatal("expected module registration error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected module registration error: %v", err)
			}
		})
	}
}

func TestRegisterModuleSpecValidation(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *calypso.Action) error { return nil }

	tests := []struct {
		name       string
		spec       calypso.ModuleSpec
		wantErrSub string
	}{
		{
			name: "empty handler capability name",
			spec: calypso.ModuleSpec{
				Handlers: []calypso.ModuleHandler{{Handler: noop}},
			},
			wantErrSub: "empty capability name",
		},
		{
			name: "duplicate capability across reducer and handler",
			spec: calypso.ModuleSpec{
				Reducers: []calypso.ModuleReducer{
					{Capability: calypso.Capability{Name: "dup"}, Reduce: func(*calypso.Action) {}},
				},
				Handlers: []calypso.ModuleHandler{
					{Capability: calypso.Capability{Name: "dup"}, Handler: noop},
				},
			},
			wantErrSub: "duplicate capability name",
		},
		{
			name: "nil reducer",
			spec: calypso.ModuleSpec{
				Reducers: []calypso.ModuleReducer{{Capability: calypso.Capability{Name: "nil-reducer"}}},
			},
			wantErrSub: "nil reducer",
		},
		{
			name: "nil handler",
			spec: calypso.ModuleSpec{
				Handlers: []calypso.ModuleHandler{{Capability: calypso.Capability{Name: "nil-handler"}}},
			},
			wantErrSub: "nil handler",
		},
		{
			name: "duplicate subscription name",
			spec: calypso.ModuleSpec{
				Handlers: []calypso.ModuleHandler{
					{
						Capability:   calypso.Capability{Name: "a"},
						Subscription: calypso.SubscriptionSpec{Name: "dup-sub"},
						Handler:      noop,
					},
					{
						Capability:   calypso.Capability{Name: "b"},
						Subscription: calypso.SubscriptionSpec{Name: "dup-sub"},
						Handler:      noop,
					},
				},
			},
			wantErrSub: "duplicate subscription name",
		},
		{
			name: "duplicate additional capability name",
			spec: calypso.ModuleSpec{
				Handlers: []calypso.ModuleHandler{
					{Capability: calypso.Capability{Name: "cap"}, Handler: noop},
				},
				AdditionalCapabilities: []calypso.Capability{{Name: "cap"}},
			},
			wantErrSub: "duplicate capability name",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := newTestKernel(t)
			err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "invalid", spec: testCase.spec})
			if err == nil {
				t.Fatal("expected module registration error")
			}
			if !strings.Contains(err.Error(), testCase.wantErrSub) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSub)
			}
		})
	}
}

func TestRegisterModuleRejectsDuplicates(t *testing.T) {
	t.Parallel()

	kernelRuntime := newTestKernel(t)
	if err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "dup"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "dup"})
	if !errors.Is(err, calypso.ErrModuleAlreadyRegistered) {
		t.Fatalf("duplicate register error = %v, want ErrModuleAlreadyRegistered", err)
	}

	if err := kernelRuntime.RegisterDriver(&stubDriver{name: "http"}); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}
	if err := kernelRuntime.RegisterDriver(&stubDriver{name: "http"}); !errors.Is(err, calypso.ErrDriverAlreadyRegistered) {
		t.Fatalf("duplicate driver error = %v, want ErrDriverAlreadyRegistered", err)
	}
}
