package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wricardo/hubchat/chat/model"
	"github.com/wricardo/hubchat/chat/observer"
)

// Hub method and event names.
const (
	MethodSendMessage   = "SendMessage"
	EventReceiveMessage = "ReceiveMessage"
)

var (
	ErrHandshake             = errors.New("hub handshake failed")
	ErrTransport             = errors.New("hub transport error")
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrAlreadyActive         = errors.New("connection already active")
	ErrReconnectExhausted    = errors.New("reconnect attempts exhausted")
	ErrStopped               = errors.New("connection manager stopped")
)

// Handler receives one inbound hub event with its raw positional arguments.
type Handler func(target string, args []json.RawMessage)

// Conn is an established hub connection.
type Conn interface {
	// Invoke calls a hub method and waits for its completion.
	Invoke(ctx context.Context, target string, args ...any) error
	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}
	// Err reports why Done was closed.
	Err() error
	// Close tears the connection down. No Handler call happens after it returns.
	Close() error
}

// Dialer opens hub connections. ctx bounds the dial and handshake only.
type Dialer interface {
	Dial(ctx context.Context, handler Handler) (Conn, error)
}

// Manager maintains exactly one hub connection
type Manager struct {
	dialer Dialer
	policy RetryPolicy
	log    zerolog.Logger

	// notifyMu keeps status notifications in transition order.
	notifyMu sync.Mutex

	mu     sync.Mutex
	status Status
	conn   Conn
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	statusObservers  observer.Registry[Status]
	messageObservers observer.Registry[model.ChatMessage]
}

// NewManager creates a disconnected manager
func NewManager(dialer Dialer, policy RetryPolicy, logger zerolog.Logger) *Manager {
	return &Manager{
		dialer: dialer,
		policy: policy,
		log:    logger.With().Str("component", "connection").Logger(),
		status: StatusDisconnected,
	}
}

// Status returns the current connection status
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStatusChange subscribes to status transitions.
func (m *Manager) OnStatusChange(handler func(Status)) (unsubscribe func()) {
	return m.statusObservers.Subscribe(handler)
}

// OnMessage subscribes to inbound chat messages.
func (m *Manager) OnMessage(handler func(model.ChatMessage)) (unsubscribe func()) {
	return m.messageObservers.Subscribe(handler)
}

// Start connects to the hub. It fails with ErrAlreadyActive unless the
// manager is disconnected or in error, and with ErrHandshake when the
// connection cannot be established, leaving the status at StatusError.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if !m.status.Idle() {
		status := m.status
		m.mu.Unlock()
		return fmt.Errorf("%w (status %s)", ErrAlreadyActive, status)
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	gen := m.gen
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.setStatus(gen, StatusConnecting)
	m.log.Info().Msg("Connecting to hub")

	// Stop cancels an in-flight handshake through runCtx.
	dialCtx, cancelDial := context.WithCancel(ctx)
	defer cancelDial()
	stopAfter := context.AfterFunc(runCtx, cancelDial)
	defer stopAfter()

	conn, err := m.dialer.Dial(dialCtx, m.dispatcher(gen))
	if err != nil {
		if m.release(gen) {
			m.setStatus(gen, StatusError)
		}
		cancel()
		m.log.Error().Err(err).Msg("Hub connection failed")
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	done := make(chan struct{})
	if !m.adopt(gen, conn, done) {
		_ = conn.Close()
		cancel()
		return fmt.Errorf("%w: %w", ErrHandshake, ErrStopped)
	}

	m.setStatus(gen, StatusConnected)
	m.log.Info().Msg("Hub connection established")

	go m.supervise(runCtx, gen, conn, done)
	return nil
}

// Stop tears down the connection from any state. Calling it without an
// active connection is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.gen++
	cancel, conn, done := m.cancel, m.conn, m.done
	m.cancel, m.conn, m.done = nil, nil, nil
	previous := m.status
	m.status = StatusDisconnected
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}
	if done != nil {
		<-done
	}

	if previous != StatusDisconnected {
		m.log.Info().Str("previous", previous.String()).Msg("Hub connection stopped")
		m.notifyMu.Lock()
		m.statusObservers.Notify(StatusDisconnected)
		m.notifyMu.Unlock()
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close hub connection: %w", closeErr)
	}
	return nil
}

// Send invokes SendMessage on the hub. It fails with
// ErrConnectionUnavailable unless connected and with ErrTransport when the
// invocation fails. Failures are never retried.
func (m *Manager) Send(ctx context.Context, msg model.OutgoingMessage) error {
	m.mu.Lock()
	status, conn := m.status, m.conn
	m.mu.Unlock()

	if status != StatusConnected || conn == nil {
		return fmt.Errorf("%w (status %s)", ErrConnectionUnavailable, status)
	}

	if err := conn.Invoke(ctx, MethodSendMessage, msg); err != nil {
		m.log.Warn().Err(err).Msg("SendMessage failed")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// supervise watches an established connection and reconnects after drops.
func (m *Manager) supervise(ctx context.Context, gen uint64, conn Conn, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
		}
		if ctx.Err() != nil {
			return
		}

		cause := conn.Err()
		if !reconnectable(cause) {
			m.log.Warn().Err(cause).Msg("Hub closed the connection without reconnect")
			m.drop(gen, StatusDisconnected)
			return
		}

		m.log.Warn().Err(cause).Msg("Hub connection lost, reconnecting")
		m.drop(gen, StatusReconnecting)

		next, err := m.reconnect(ctx, gen)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Error().Err(err).Msg("Reconnect gave up")
			m.setStatus(gen, StatusDisconnected)
			return
		}

		if !m.adopt(gen, next, done) {
			_ = next.Close()
			return
		}
		m.setStatus(gen, StatusConnected)
		m.log.Info().Msg("Hub reconnected")
		conn = next
	}
}

func (m *Manager) reconnect(ctx context.Context, gen uint64) (Conn, error) {
	var lastErr error
	attempt := 1
	for ; m.policy.allows(attempt); attempt++ {
		delay := m.policy.Delay(attempt)
		m.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnect attempt scheduled")

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}

		conn, err := m.dialer.Dial(ctx, m.dispatcher(gen))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		m.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect attempt failed")

		if !reconnectable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempt-1, lastErr)
}

// dispatcher decodes ReceiveMessage events for connection generation gen.
func (m *Manager) dispatcher(gen uint64) Handler {
	return func(target string, args []json.RawMessage) {
		if target != EventReceiveMessage {
			m.log.Debug().Str("target", target).Msg("Ignoring hub event")
			return
		}
		if !m.current(gen) {
			return
		}

		msg, err := model.ParseReceiveMessage(args)
		if err != nil {
			m.log.Warn().Err(err).Msg("Dropping malformed ReceiveMessage")
			return
		}
		m.messageObservers.Notify(msg)
	}
}

// setStatus records a transition for generation gen and notifies observers.
func (m *Manager) setStatus(gen uint64, status Status) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.gen != gen || m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	m.mu.Unlock()

	m.log.Debug().Str("status", status.String()).Msg("Connection status changed")
	m.statusObservers.Notify(status)
}

// adopt installs conn as the active connection unless Stop ran meanwhile.
func (m *Manager) adopt(gen uint64, conn Conn, done chan struct{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}
	m.conn = conn
	m.done = done
	return true
}

// drop forgets the lost connection and moves to status.
func (m *Manager) drop(gen uint64, status Status) {
	m.mu.Lock()
	if m.gen == gen {
		m.conn = nil
	}
	m.mu.Unlock()
	m.setStatus(gen, status)
}

// release clears the cancel func after a failed Start. It reports whether
// gen is still current.
func (m *Manager) release(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}
	m.cancel = nil
	return true
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// reconnectable reports whether a connection ended by err may be retried.
// A hub close that forbids reconnecting is fatal.
func reconnectable(err error) bool {
	var closeErr interface{ AllowReconnect() bool }
	if errors.As(err, &closeErr) {
		return closeErr.AllowReconnect()
	}
	return true
}
