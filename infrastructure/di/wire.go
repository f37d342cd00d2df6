//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"
)

// InitializeContainerWire is the wire-generated variant of
// InitializeContainer. Run `wire ./infrastructure/di` to regenerate.
func InitializeContainerWire() (*Container, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
