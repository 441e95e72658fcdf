package driver

import (
	"context"
	"fmt"

	"ex-calypso/internal/driver/httpapi"
	"ex-calypso/pkg/calypso"
)

// NewBuiltinRegistry constructs the driver registry with all built-in drivers.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{
			Type: httpapi.DriverType,
			Builder: func(_ context.Context, definition Definition, deps Deps) (calypso.Driver, error) {
				built, err := httpapi.BuildFromConfig(definition.Name, definition.Config, httpapi.Deps{
					Logger:   deps.Logger,
					Services: deps.Services,
					Login:    deps.Login,
				})
				if err != nil {
					return nil, fmt.Errorf("build http driver from config: %w", err)
				}

				return built, nil
			},
		},
	})
}
