// Package delivery defines the transport servers exposed by the service.
package delivery

import (
	"context"
)

// Delivery is a long-running transport server started by the application
// entrypoint. Serve blocks until the server stops.
type Delivery interface {
	Serve(ctx context.Context) error
}
