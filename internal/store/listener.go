/**
 * @description
 * Change feed for imbalance alerts built on PostgreSQL LISTEN/NOTIFY.
 *
 * @notes
 * - The listener holds one dedicated pool connection and re-establishes it with
 *   backoff when it drops.
 * - A change signal only carries the alert id. Subscribers re-query what they show.
 */
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	listenerMinBackoff = 500 * time.Millisecond
	listenerMaxBackoff = 30 * time.Second
	subscriptionBuffer = 16
)

// Listener fans NOTIFY payloads from one channel out to subscribers.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription receives change signals until it is closed.
type Subscription struct {
	ch       chan string
	listener *Listener
	once     sync.Once
}

// NewListener creates a listener for channel. Call Run to start receiving.
func NewListener(pool *pgxpool.Pool, channel string, logger *slog.Logger) *Listener {
	return &Listener{
		pool:    pool,
		channel: channel,
		logger:  logger,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber.
func (l *Listener) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan string, subscriptionBuffer), listener: l}
	l.mu.Lock()
	l.subs[sub] = struct{}{}
	l.mu.Unlock()
	return sub
}

// Changes yields the id of every changed row. The channel is closed by Close.
func (s *Subscription) Changes() <-chan string {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.listener.mu.Lock()
		delete(s.listener.subs, s)
		s.listener.mu.Unlock()
		close(s.ch)
	})
}

// Run listens until ctx is cancelled, reconnecting on connection loss.
func (l *Listener) Run(ctx context.Context) error {
	backoff := listenerMinBackoff
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			l.closeAll()
			return nil
		}
		l.logger.Warn("alert change listener disconnected", "channel", l.channel, "error", err, "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			l.closeAll()
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > listenerMaxBackoff {
			backoff = listenerMaxBackoff
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.logger.Info("listening for alert changes", "channel", l.channel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.broadcast(notification.Payload)
	}
}

func (l *Listener) broadcast(payload string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sub := range l.subs {
		select {
		case sub.ch <- payload:
		default:
			// A full buffer already holds a pending re-query signal.
		}
	}
}

func (l *Listener) closeAll() {
	l.mu.Lock()
	subs := make([]*Subscription, 0, len(l.subs))
	for sub := range l.subs {
		subs = append(subs, sub)
	}
	l.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

