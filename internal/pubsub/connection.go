package pubsub

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const maxDialDelay = 60 * time.Second

type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *log.Logger
}

// DialWithRetry connects to the broker, doubling the delay between
// attempts up to a minute. It gives up early when ctx is cancelled.
func DialWithRetry(ctx context.Context, opts ConnectionOptions) (*amqp091.Connection, error) {
	return dialWithRetry(ctx, opts, amqp091.Dial)
}

func dialWithRetry(ctx context.Context, opts ConnectionOptions, dial func(string) (*amqp091.Connection, error)) (*amqp091.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := dial(opts.URL)
		if err == nil {
			if i > 1 {
				opts.Logger.Printf("amqp connected after %d attempts", i)
			}
			return conn, nil
		}
		lastErr = err

		if i == attempts {
			break
		}

		sleep := backoff(opts.Delay, i)
		opts.Logger.Printf("amqp dial attempt %d failed, retrying in %s: %v", i, sleep, err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("amqp dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("amqp dial failed after %d attempts: %w", attempts, lastErr)
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	if d <= 0 || d > maxDialDelay {
		return maxDialDelay
	}
	return d
}
