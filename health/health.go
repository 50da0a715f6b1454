package health

import "context"

// ReadinessCheck is implemented by infrastructure-backed components that
// can probe their dependency.
type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}
