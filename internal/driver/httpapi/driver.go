// Package httpapi exposes the store over HTTP: actions are dispatched through
// POST /actions and module read services are served as JSON.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/paths"
)

// DriverType is the configuration type token of the HTTP driver.
const DriverType = "http"

// Option mutates HTTP driver configuration.
type Option func(*Driver)

// WithName configures the driver identity exposed to the kernel.
func WithName(name string) Option {
	return func(driver *Driver) {
		if name != "" {
			driver.name = name
		}
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(driver *Driver) {
		if addr != "" {
			driver.addr = addr
		}
	}
}

// WithReadHeaderTimeout bounds how long a client may take to send headers.
func WithReadHeaderTimeout(timeout time.Duration) Option {
	return func(driver *Driver) {
		if timeout > 0 {
			driver.readHeaderTimeout = timeout
		}
	}
}

// WithDispatchTimeout bounds one POST /actions dispatch.
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(driver *Driver) {
		if timeout > 0 {
			driver.dispatchTimeout = timeout
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(driver *Driver) {
		if logger != nil {
			driver.logger = logger
		}
	}
}

// WithServices sets the registry read services are resolved from.
func WithServices(services calypso.ServiceRegistry) Option {
	return func(driver *Driver) {
		if services != nil {
			driver.services = services
		}
	}
}

// WithLogin sets the login URL configuration.
func WithLogin(login paths.LoginConfig) Option {
	return func(driver *Driver) {
		driver.login = login
	}
}

// Driver serves the HTTP API.
type Driver struct {
	name              string
	addr              string
	readHeaderTimeout time.Duration
	dispatchTimeout   time.Duration
	logger            *slog.Logger
	services          calypso.ServiceRegistry
	login             paths.LoginConfig

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewDriver creates an HTTP driver.
func NewDriver(options ...Option) *Driver {
	driver := &Driver{
		name:              DriverType,
		addr:              defaultRuntimeAddr,
		readHeaderTimeout: defaultRuntimeReadHeaderTimeout,
		dispatchTimeout:   defaultRuntimeDispatchTimeout,
		logger:            slog.Default(),
	}
	for _, option := range options {
		option(driver)
	}

	return driver
}

// Name returns the stable driver identifier.
func (d *Driver) Name() string {
	return d.name
}

// Addr returns the bound listen address once Start is serving.
func (d *Driver) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listener == nil {
		return ""
	}

	return d.listener.Addr().String()
}

// Start serves until ctx is canceled or the server fails.
func (d *Driver) Start(ctx context.Context, dispatcher calypso.Dispatcher) error {
	if dispatcher == nil {
		return fmt.Errorf("http driver %s start: nil dispatcher", d.name)
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("http driver %s listen %s: %w", d.name, d.addr, err)
	}
	server := &http.Server{
		Handler:           d.Handler(dispatcher),
		ReadHeaderTimeout: d.readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	d.mu.Lock()
	d.server = server
	d.listener = listener
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "http driver listening", "driver", d.name, "addr", listener.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http driver %s serve: %w", d.name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.dispatchTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http driver %s shutdown: %w", d.name, err)
		}
		<-serveErr
		return nil
	}
}

// Shutdown stops the server if it is still running.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	server := d.server
	d.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http driver %s shutdown: %w", d.name, err)
	}

	return nil
}
