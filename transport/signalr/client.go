package signalr

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	core "github.com/philippseith/signalr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	DefaultHandshakeTimeout  = 15 * time.Second
	DefaultKeepAliveInterval = 15 * time.Second
	DefaultServerTimeout     = 30 * time.Second
)

var (
	ErrNegotiate        = errors.New("negotiation failed")
	ErrHandshake        = errors.New("handshake rejected")
	ErrConnectionLost   = errors.New("connection lost")
	ErrClosed           = errors.New("connection closed")
	ErrInvocationFailed = errors.New("hub invocation failed")
)

// Handler receives inbound invocations.
type Handler func(target string, args []json.RawMessage)

// Options tune a Client. Zero values select the defaults.
type Options struct {
	// SkipNegotiation dials the WebSocket directly without the negotiate
	// round trip. The hub must be configured to accept it.
	SkipNegotiation bool

	// AccessToken is sent as a bearer token on negotiate and connect.
	AccessToken string

	// InsecureSkipVerify disables TLS verification, for development hubs
	// with self-signed certificates.
	InsecureSkipVerify bool

	HandshakeTimeout  time.Duration
	KeepAliveInterval time.Duration
	ServerTimeout     time.Duration

	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if o.ServerTimeout <= 0 {
		o.ServerTimeout = DefaultServerTimeout
	}
	return o
}

// Client dials connections to one hub
type Client struct {
	hubURL     string
	opts       Options
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a client for the hub at hubURL (http, https, ws or wss).
func NewClient(hubURL string, opts Options, logger zerolog.Logger) *Client {
	opts = opts.withDefaults()

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		httpClient = &http.Client{Timeout: opts.HandshakeTimeout, Transport: transport}
	}

	return &Client{
		hubURL:     hubURL,
		opts:       opts,
		httpClient: httpClient,
		log:        logger.With().Str("component", "signalr").Logger(),
	}
}

// URL returns the hub URL
func (c *Client) URL() string {
	return c.hubURL
}

// Dial opens a connection and completes the protocol handshake. ctx bounds
// the dial only; the returned connection lives until it is closed or lost.
// The connection is not reconnected by the library: once Done is closed a
// new Conn has to be dialed.
func (c *Client) Dial(ctx context.Context, handler Handler) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	life, stop := context.WithCancel(context.Background())
	abort := context.AfterFunc(dialCtx, stop)
	defer abort()

	transport, err := c.connect(dialCtx, life)
	if err != nil {
		stop()
		if dialCtx.Err() != nil {
			return nil, errors.Wrap(dialCtx.Err(), "dial aborted")
		}
		return nil, err
	}

	conn := newConn(handler, stop, c.log)
	client, err := core.NewClient(life,
		core.WithConnection(&watchedConnection{Connection: transport, conn: conn}),
		core.WithReceiver(&receiver{conn: conn}),
		core.Logger(logAdapter{log: c.log}, c.log.GetLevel() <= zerolog.DebugLevel),
		core.HandshakeTimeout(c.opts.HandshakeTimeout),
		core.KeepAliveInterval(c.opts.KeepAliveInterval),
		core.TimeoutInterval(c.opts.ServerTimeout),
	)
	if err != nil {
		stop()
		return nil, errors.Wrap(err, "failed to create hub client")
	}
	conn.client = client

	client.Start()
	if err := <-client.WaitForState(dialCtx, core.ClientConnected); err != nil {
		stop()
		client.Stop()
		if dialCtx.Err() != nil {
			return nil, errors.Wrap(dialCtx.Err(), "handshake aborted")
		}
		return nil, errors.Wrap(ErrHandshake, err.Error())
	}

	c.log.Debug().Str("url", c.hubURL).Bool("negotiated", !c.opts.SkipNegotiation).Msg("Hub handshake complete")

	go conn.watch()
	return conn, nil
}

// connect opens the transport that carries the hub protocol. life bounds
// the transport once it is open.
func (c *Client) connect(ctx, life context.Context) (core.Connection, error) {
	header := http.Header{}
	if c.opts.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	}

	if !c.opts.SkipNegotiation {
		transport, err := core.NewHTTPConnection(life, c.hubURL,
			core.WithHTTPClient(c.httpClient),
			core.WithHTTPHeaders(func() http.Header { return header.Clone() }),
		)
		if err != nil {
			return nil, errors.Wrap(ErrNegotiate, err.Error())
		}
		return transport, nil
	}

	wsURL, err := websocketURL(c.hubURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hub url")
	}

	// The websocket dial is bounded by ctx and refuses a client timeout.
	httpClient := *c.httpClient
	httpClient.Timeout = 0

	ws, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: &httpClient,
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open websocket to %s", wsURL)
	}

	return core.NewNetConnection(life, websocket.NetConn(life, ws, websocket.MessageText)), nil
}

func websocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
