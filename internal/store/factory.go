// factory.go maps database.driver values to backend constructors.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/org-management/org-service/internal/config"
)

// FactoryFunc builds a backend from configuration
type FactoryFunc func(ctx context.Context, cfg *config.Config) (Backend, error)

var factories = make(map[string]FactoryFunc)

// Register registers a backend factory under a driver name
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// New creates the backend selected by cfg.Database.Driver
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	factory, ok := factories[cfg.Database.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s (registered: %s)", cfg.Database.Driver, strings.Join(Drivers(), ", "))
	}
	return factory(ctx, cfg)
}

// Drivers lists the registered driver names in sorted order
func Drivers() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
