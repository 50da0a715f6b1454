package retries

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 100 * time.Millisecond

	HealthAttempts  = 2
	HealthBaseDelay = 50 * time.Millisecond
)

// Retry runs fn up to attempts times, doubling the delay between tries.
// It stops early when fn succeeds, when the error is not retriable, or
// when ctx is cancelled.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error, retriable func(error) bool) error {
	var err error
	delay := baseDelay

	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if retriable != nil && !retriable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}

// IsRetriableDbError reports whether an AWS call failed in a way worth
// retrying: throttling and transient server-side faults.
func IsRetriableDbError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException",
		"ThrottlingException",
		"RequestLimitExceeded",
		"InternalServerError",
		"ServiceUnavailable":
		return true
	}

	return apiErr.ErrorFault() == smithy.FaultServer
}
