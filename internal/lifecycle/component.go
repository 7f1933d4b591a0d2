// Package lifecycle starts and stops the long-lived resources of a costlens run
// (tracer, snapshot pool, graph connection) in dependency order.
package lifecycle

import "context"

// Component is a resource with an explicit start and stop.
// Stop must respect the context deadline and should not panic when Start failed.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Name is used in logs and errors and must be non-empty.
	Name() string
}
