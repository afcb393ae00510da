package signalr

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	core "github.com/philippseith/signalr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// How often the library client state is checked for a lost connection.
const statePollInterval = 50 * time.Millisecond

// CloseError is the reason a hub gave when it closed the connection
type CloseError struct {
	Message   string
	Reconnect bool
}

func (e *CloseError) Error() string {
	if e.Message == "" {
		return "hub closed the connection"
	}
	return "hub closed the connection: " + e.Message
}

// AllowReconnect reports whether the hub permits reconnecting.
func (e *CloseError) AllowReconnect() bool {
	return e.Reconnect
}

// Conn is an established hub connection
type Conn struct {
	client  core.Client
	handler Handler
	stop    context.CancelFunc
	log     zerolog.Logger

	// gate orders handler calls against Close.
	gate   sync.RWMutex
	closed bool

	mu       sync.Mutex
	err      error
	closeErr *CloseError

	done      chan struct{}
	lostOnce  sync.Once
	closeOnce sync.Once
}

func newConn(handler Handler, stop context.CancelFunc, logger zerolog.Logger) *Conn {
	return &Conn{
		handler: handler,
		stop:    stop,
		log:     logger,
		done:    make(chan struct{}),
	}
}

// Invoke calls target on the hub and waits for its completion. It fails
// with ErrInvocationFailed when the hub reports an error and with
// ErrConnectionLost when the connection goes away first.
func (c *Conn) Invoke(ctx context.Context, target string, args ...any) error {
	select {
	case <-c.done:
		return errors.Wrapf(ErrConnectionLost, "cannot invoke %s: %v", target, c.Err())
	default:
	}

	select {
	case result := <-c.client.Invoke(target, args...):
		if result.Error != nil {
			return errors.Wrap(ErrInvocationFailed, result.Error.Error())
		}
		return nil
	case <-c.done:
		return errors.Wrapf(ErrConnectionLost, "%s did not complete: %v", target, c.Err())
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%s did not complete", target)
	}
}

// Done is closed when the connection is lost or closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended: a *CloseError when the hub closed
// it, ErrConnectionLost for transport failures and ErrClosed after Close.
// It is nil while the connection is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the connection down. The handler is not called after Close
// returns, so Close must not be called from it.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.gate.Lock()
		c.closed = true
		c.gate.Unlock()

		c.lost(ErrClosed)
		c.client.Stop()
	})
	return nil
}

// watch waits for the library client to leave the connected state.
func (c *Conn) watch() {
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		switch c.client.State() {
		case core.ClientClosed:
			if err := c.client.Err(); err != nil {
				c.lost(errors.Wrap(ErrConnectionLost, err.Error()))
			} else {
				c.lost(ErrConnectionLost)
			}
			return
		}
	}
}

// dispatch hands one inbound invocation to the handler unless the
// connection was closed.
func (c *Conn) dispatch(target string, args []json.RawMessage) {
	c.gate.RLock()
	defer c.gate.RUnlock()

	if c.closed || c.handler == nil {
		return
	}
	c.handler(target, args)
}

// hubClosed records a Close message from the hub.
func (c *Conn) hubClosed(msg string, allowReconnect bool) {
	c.log.Debug().Str("error", msg).Bool("allow_reconnect", allowReconnect).Msg("Hub sent close")

	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = &CloseError{Message: msg, Reconnect: allowReconnect}
	}
	c.mu.Unlock()
}

// lost records why the connection ended and releases the transport. A
// Close message from the hub takes precedence over the transport error it
// caused. Only the first call has an effect.
func (c *Conn) lost(cause error) {
	c.lostOnce.Do(func() {
		c.mu.Lock()
		if c.closeErr != nil && !errors.Is(cause, ErrClosed) {
			c.err = c.closeErr
		} else {
			c.err = cause
		}
		c.mu.Unlock()

		close(c.done)
		c.stop()
	})
}
