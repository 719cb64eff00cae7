package bootstrap

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Waiter blocks until the database can be reached.
type Waiter interface {
	Wait(ctx context.Context) error
}

// DialFunc matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// MinDialTimeout is the shortest time a single connection attempt is given.
const MinDialTimeout = time.Second

// TCPWaiter polls Address at a fixed Interval until a TCP connection is
// accepted. A zero Timeout waits until ctx is cancelled. Each attempt gets
// DialTimeout, never less than MinDialTimeout, independent of Interval.
type TCPWaiter struct {
	Address     string
	Interval    time.Duration
	Timeout     time.Duration
	DialTimeout time.Duration
	Dial        DialFunc
	Logger      *zap.Logger
}

func (w *TCPWaiter) Wait(ctx context.Context) error {
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dial := w.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	dialTimeout := max(w.DialTimeout, MinDialTimeout)

	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		conn, err := dial(dialCtx, "tcp", w.Address)
		if err != nil {
			return struct{}{}, err
		}
		_ = conn.Close()
		return struct{}{}, nil
	}

	start := time.Now()
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(w.Timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Info("waiting for database", zap.String("address", w.Address), zap.Int("attempt", attempts), zap.Duration("retry_in", next))
			log.Debug("dial failed", zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("%s not reachable after %d attempts in %s: %w", w.Address, attempts, time.Since(start).Round(time.Millisecond), err)
	}
	log.Info("database is reachable", zap.String("address", w.Address), zap.Int("attempts", attempts))
	return nil
}

// NoopWaiter is used when there is no server to wait for, as with a SQLite file.
type NoopWaiter struct{}

func (NoopWaiter) Wait(context.Context) error { return nil }
