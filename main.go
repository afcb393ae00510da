// Command hubchat is a terminal client for a SignalR chat hub.
//
// It supports three commands:
//  1. "chat" (default) – interactive chat: prompts for a name, shows history
//     and live messages, sends what you type
//  2. "history" – prints the stored message history and exits
//  3. "mcp" – serves the chat client as MCP tools over stdio
//
// Configuration comes from a .env file, HUBCHAT_* environment variables and
// flags, each overriding the one before.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/hubchat/chat/config"
	"github.com/wricardo/hubchat/chat/service"
	"github.com/wricardo/hubchat/transport/history"
	"github.com/wricardo/hubchat/transport/mcp"
	"github.com/wricardo/hubchat/ui/terminal"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "hubchat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "chat over a SignalR hub from the terminal",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "load variables from this file instead of .env"},
			&cli.StringFlag{Name: "base-url", Usage: "chat service base URL"},
			&cli.StringFlag{Name: "hub-path", Usage: "hub endpoint path"},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "display name, skips the prompt"},
			&cli.StringFlag{Name: "session-dir", Usage: "keep the session (username) in this directory"},
			&cli.BoolFlag{Name: "skip-negotiation", Usage: "connect the WebSocket without negotiating"},
			&cli.BoolFlag{Name: "insecure", Usage: "skip TLS certificate verification"},
			&cli.IntFlag{Name: "max-reconnect-attempts", Usage: "give up reconnecting after this many attempts, 0 for never"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
			&cli.BoolFlag{Name: "debug", Usage: "shorthand for --log-level debug"},
			&cli.BoolFlag{Name: "no-color", Usage: "print without colors"},
		},
		Action: runChat,
		Commands: []*cli.Command{
			{
				Name:   "chat",
				Usage:  "chat interactively (default)",
				Action: runChat,
			},
			{
				Name:  "history",
				Usage: "print the message history and exit",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "print only the most recent messages"},
				},
				Action: runHistory,
			},
			{
				Name:   "mcp",
				Usage:  "serve the chat client as MCP tools over stdio",
				Action: runMCP,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// loadConfig reads the configuration and applies flag overrides
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	var envFiles []string
	if file := cmd.String("env-file"); file != "" {
		envFiles = append(envFiles, file)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("base-url") {
		cfg.BaseURL = cmd.String("base-url")
	}
	if cmd.IsSet("hub-path") {
		cfg.HubPath = cmd.String("hub-path")
	}
	if cmd.IsSet("username") {
		cfg.Username = cmd.String("username")
	}
	if cmd.IsSet("session-dir") {
		cfg.SessionDir = cmd.String("session-dir")
	}
	if cmd.IsSet("skip-negotiation") {
		cfg.SkipNegotiation = cmd.Bool("skip-negotiation")
	}
	if cmd.IsSet("insecure") {
		cfg.InsecureSkipVerify = cmd.Bool("insecure")
	}
	if cmd.IsSet("max-reconnect-attempts") {
		cfg.MaxReconnectAttempts = int(cmd.Int("max-reconnect-attempts"))
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.Bool("debug") {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}

// newLogger writes human readable logs to the error stream; stdout belongs
// to the chat or to the MCP protocol.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(cfg.Level()).
		With().
		Timestamp().
		Logger()
}

// useColors reports whether output goes to a terminal that renders colors
func useColors(cmd *cli.Command) bool {
	return !cmd.Bool("no-color") && cmd.Root().Writer == io.Writer(os.Stdout) && color.SupportColor()
}

// runChat runs the interactive terminal chat
func runChat(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.Root().ErrWriter)

	chat, err := service.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize chat: %w", err)
	}
	defer chat.Stop()

	ui := terminal.New(chat, cmd.Root().Reader, cmd.Root().Writer, useColors(cmd), logger)
	detach := ui.Attach()
	defer detach()

	// Connect while the user types their name.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := chat.Start(gctx); err != nil {
			logger.Warn().Err(err).Msg("Could not connect to the hub")
		}
		return nil
	})
	g.Go(func() error {
		return ui.PromptUsername(gctx)
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, terminal.ErrInputClosed) {
			return nil
		}
		return err
	}

	if err := ui.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runHistory prints the stored messages
func runHistory(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.Root().ErrWriter)

	client := history.NewClient(cfg.BaseURL, cfg.HistoryHTTPClient(), logger)
	records, err := client.FetchHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}

	if limit := int(cmd.Int("limit")); limit > 0 {
		records = lo.Subset(records, -limit, uint(limit))
	}

	renderer := terminal.NewRenderer(cmd.Root().Writer, func(sender string) bool {
		return cfg.Username != "" && sender == cfg.Username
	}, useColors(cmd))
	for _, r := range records {
		renderer.Message(r.ToChatMessage())
	}
	return nil
}

// runMCP serves the chat client as MCP tools on stdio
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.Root().ErrWriter)

	chat, err := service.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize chat: %w", err)
	}
	defer chat.Stop()

	srv := mcp.NewServer(chat, Version, logger)

	// A failed connect is reported through connection_status and can be
	// retried with the reconnect tool.
	var g errgroup.Group
	g.Go(func() error {
		if err := chat.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("Could not connect to the hub")
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("hub", cfg.HubURL()).Msg("MCP stdio server ready")
		return srv.ServeStdio()
	})
	return g.Wait()
}
