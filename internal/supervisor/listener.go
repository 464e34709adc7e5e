// ABOUTME: Per-tenant event-stream listener with an explicit reconnect state machine
// ABOUTME: Linear backoff on faults, counter reset on clean closes, permanent halt at the ceiling

package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
)

// State is a listener lifecycle state.
type State int

const (
	// StateConnecting means a subscribe attempt is about to start.
	StateConnecting State = iota

	// StateListening means the event stream is up.
	StateListening

	// StateBackoff means the last attempt failed and the listener is
	// waiting before reconnecting.
	StateBackoff

	// StateStopped is terminal: context cancelled or attempt ceiling hit.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Listener runs one tenant's event-stream subscription, reconnecting on
// faults. Each failed attempt increments a counter and sleeps
// delay × attempts before retrying; a clean close resets the counter,
// distinguishing transient faults from expected server-side closes. After
// maxAttempts consecutive failures the listener halts permanently; other
// tenants are unaffected.
type Listener struct {
	tenantID    string
	client      platform.Client
	handler     func(event []byte)
	delay       time.Duration
	maxAttempts int
	logger      *slog.Logger

	mu       sync.Mutex
	state    State
	attempts int
}

// NewListener creates a listener for one tenant connection.
func NewListener(tenantID string, client platform.Client, delay time.Duration, maxAttempts int, handler func(event []byte)) *Listener {
	return &Listener{
		tenantID:    tenantID,
		client:      client,
		handler:     handler,
		delay:       delay,
		maxAttempts: maxAttempts,
		logger:      slog.Default().With("component", "listener", "tenant_id", tenantID),
	}
}

// State returns the listener's current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Attempts returns the consecutive failed attempt count.
func (l *Listener) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drives the state machine until the context is cancelled or the
// attempt ceiling is reached. It blocks; callers run it in a goroutine.
func (l *Listener) Run(ctx context.Context) {
	defer l.setState(StateStopped)

	for ctx.Err() == nil {
		l.mu.Lock()
		if l.attempts >= l.maxAttempts {
			l.mu.Unlock()
			l.logger.Error("max reconnect attempts reached, giving up", "attempts", l.maxAttempts)
			return
		}
		l.state = StateConnecting
		l.mu.Unlock()

		l.logger.Info("starting event-stream listener")
		l.setState(StateListening)

		err := l.client.Listen(ctx, l.handler)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			// Clean server-side close: reconnect immediately with a
			// fresh fault counter.
			l.logger.Info("event stream disconnected cleanly")
			l.mu.Lock()
			l.attempts = 0
			l.mu.Unlock()
			continue
		}

		l.mu.Lock()
		l.attempts++
		attempts := l.attempts
		l.state = StateBackoff
		l.mu.Unlock()

		l.logger.Error("event stream error",
			"attempt", attempts,
			"max_attempts", l.maxAttempts,
			"error", err,
		)

		if attempts < l.maxAttempts {
			if !sleepCtx(ctx, l.delay*time.Duration(attempts)) {
				return
			}
		}
	}
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
