package kernel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ex-calypso/pkg/calypso"
)

func newTestKernel(t *testing.T, options ...Option) *Kernel {
	t.Helper()

	kernelRuntime := New(options...)
	t.Cleanup(func() {
		_ = kernelRuntime.ActionBus().Close(context.Background())
	})

	return kernelRuntime
}

func newTestAction(id string, kind calypso.ActionKind) *calypso.Action {
	action := &calypso.Action{
		ID:           id,
		Kind:         kind,
		DispatchedAt: time.Now().UTC(),
		SiteID:       1,
	}

	switch kind {
	case calypso.ActionKindCommentsQueryUpdate:
		action.Query = &calypso.CommentQuery{Page: 1}
		action.Comments = []calypso.CommentRef{{ID: 1}}
	case calypso.ActionKindCommentsDelete:
		action.CommentID = 1
	case calypso.ActionKindCommentsChangeStatus:
		action.CommentID = 1
		action.Status = "spam"
	case calypso.ActionKindNoticeCreate:
		action.Notice = &calypso.Notice{Text: "hello"}
	}

	return action
}

func eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("condition not met before timeout")
}

type stubModule struct {
	name string
	spec calypso.ModuleSpec

	onRegister func(ctx context.Context, runtime calypso.ModuleRuntime) error

	registered atomic.Int32
	started    atomic.Int32
	shutdown   atomic.Int32
}

func (m *stubModule) Name() string {
	return m.name
}

func (m *stubModule) Spec() calypso.ModuleSpec {
	return m.spec
}

func (m *stubModule) OnRegister(ctx context.Context, runtime calypso.ModuleRuntime) error {
	m.registered.Add(1)
	if m.onRegister != nil {
		return m.onRegister(ctx, runtime)
	}

	return nil
}

func (m *stubModule) OnStart(_ context.Context) error {
	m.started.Add(1)
	return nil
}

func (m *stubModule) OnShutdown(_ context.Context) error {
	m.shutdown.Add(1)
	return nil
}

type stubDriver struct {
	name string

	dispatch *calypso.Action
	started  atomic.Int32
	stopped  atomic.Int32
}

func (d *stubDriver) Name() string {
	return d.name
}

func (d *stubDriver) Start(ctx context.Context, dispatcher calypso.Dispatcher) error {
	d.started.Add(1)
	if d.dispatch != nil {
		if err := dispatcher.Dispatch(ctx, d.dispatch); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func (d *stubDriver) Shutdown(_ context.Context) error {
	d.stopped.Add(1)
	return nil
}
