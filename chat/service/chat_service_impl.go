package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wricardo/hubchat/chat/config"
	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/chat/gateway"
	"github.com/wricardo/hubchat/chat/model"
	"github.com/wricardo/hubchat/chat/session"
	"github.com/wricardo/hubchat/chat/store"
	"github.com/wricardo/hubchat/transport/history"
	"github.com/wricardo/hubchat/transport/signalr"
	"golang.org/x/sync/errgroup"
)

// Dependencies are the collaborators of a chat service
type Dependencies struct {
	Dialer  connection.Dialer
	History store.HistorySource
	Session *session.Context
	Policy  connection.RetryPolicy

	// HistoryTimeout bounds the history fetch, history.DefaultTimeout when zero.
	HistoryTimeout time.Duration

	Logger zerolog.Logger
}

// chatServiceImpl implements the ChatService interface
type chatServiceImpl struct {
	manager        *connection.Manager
	store          *store.Store
	session        *session.Context
	gateway        *gateway.Gateway
	history        store.HistorySource
	historyTimeout time.Duration
	log            zerolog.Logger
}

// NewChatService wires a chat service from its dependencies. A nil Session
// gets an in-memory one.
func NewChatService(deps Dependencies) (ChatService, error) {
	sess := deps.Session
	if sess == nil {
		var err error
		sess, err = session.NewContext(nil)
		if err != nil {
			return nil, err
		}
	}

	timeout := deps.HistoryTimeout
	if timeout <= 0 {
		timeout = history.DefaultTimeout
	}

	manager := connection.NewManager(deps.Dialer, deps.Policy, deps.Logger)
	messages := store.New(deps.Logger)
	manager.OnMessage(messages.Append)

	return &chatServiceImpl{
		manager:        manager,
		store:          messages,
		session:        sess,
		gateway:        gateway.New(manager, sess, deps.Logger),
		history:        deps.History,
		historyTimeout: timeout,
		log:            deps.Logger.With().Str("component", "service").Logger(),
	}, nil
}

// New builds a chat service talking to the hub and history API described
// by cfg.
func New(cfg *config.Config, logger zerolog.Logger) (ChatService, error) {
	var persistence session.Persistence = session.NewMemoryPersistence()
	if cfg.SessionDir != "" {
		fp, err := session.NewFilePersistence(cfg.SessionDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open session directory: %w", err)
		}
		persistence = fp
	}

	sess, err := session.NewContext(persistence)
	if err != nil {
		return nil, err
	}
	if cfg.Username != "" {
		if err := sess.SetUsername(cfg.Username); err != nil && !errors.Is(err, session.ErrUsernameAlreadySet) {
			return nil, err
		}
	}

	hub := signalr.NewClient(cfg.HubURL(), cfg.SignalROptions(), logger)

	return NewChatService(Dependencies{
		Dialer:         NewHubDialer(hub),
		History:        history.NewClient(cfg.BaseURL, cfg.HistoryHTTPClient(), logger),
		Session:        sess,
		Policy:         cfg.RetryPolicy(),
		HistoryTimeout: cfg.HistoryTimeout,
		Logger:         logger,
	})
}

// Start fetches history and connects concurrently. A history failure is
// logged and the chat starts without it; a connection failure is returned
// at once, abandoning the history fetch so a later Start can retry it.
func (s *chatServiceImpl) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.history != nil {
		g.Go(func() error {
			s.loadHistory(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return s.manager.Start(ctx)
	})

	return g.Wait()
}

func (s *chatServiceImpl) loadHistory(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.historyTimeout)
	defer cancel()

	err := s.store.LoadHistory(fetchCtx, s.history)
	switch {
	case err == nil, errors.Is(err, store.ErrAlreadySeeded):
	case ctx.Err() != nil:
		s.log.Debug().Err(err).Msg("Message history fetch abandoned")
	default:
		s.log.Warn().Err(err).Msg("Message history unavailable")
	}
}

// Stop disconnects from the hub
func (s *chatServiceImpl) Stop() error {
	return s.manager.Stop()
}

// Reconnect tears down whatever connection exists and starts over. History
// is fetched again only if it never loaded.
func (s *chatServiceImpl) Reconnect(ctx context.Context) error {
	if err := s.manager.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("Closing the previous connection failed")
	}
	return s.Start(ctx)
}

// Submit sends text as the session user
func (s *chatServiceImpl) Submit(ctx context.Context, text string) error {
	return s.gateway.Submit(ctx, text)
}

// Messages returns every message in display order
func (s *chatServiceImpl) Messages() []model.ChatMessage {
	return s.store.Messages()
}

// OnMessage is notified of every live message
func (s *chatServiceImpl) OnMessage(handler func(model.ChatMessage)) (unsubscribe func()) {
	return s.store.Subscribe(handler)
}

// OnHistory is notified with the loaded history, without live messages
func (s *chatServiceImpl) OnHistory(handler func([]model.ChatMessage)) (unsubscribe func()) {
	return s.store.OnSeed(handler)
}

// SetUsername sets the session username once
func (s *chatServiceImpl) SetUsername(name string) error {
	return s.session.SetUsername(name)
}

// Username returns the session username
func (s *chatServiceImpl) Username() string {
	return s.session.Username()
}

// IsMine reports whether sender is the session user
func (s *chatServiceImpl) IsMine(sender string) bool {
	return s.session.IsMine(sender)
}

// Status returns the connection status
func (s *chatServiceImpl) Status() connection.Status {
	return s.manager.Status()
}

// OnStatusChange is notified of connection status transitions
func (s *chatServiceImpl) OnStatusChange(handler func(connection.Status)) (unsubscribe func()) {
	return s.manager.OnStatusChange(handler)
}
