//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"flowstudio/infrastructure/config"
)

// InitializeContainer creates a fully wired container. The returned
// cleanup releases resources in reverse order of creation.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
