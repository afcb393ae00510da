// Package config provides configuration management for the hubchat client.
//
// The config package handles:
//   - Loading a .env file when one is present
//   - Reading HUBCHAT_* environment variables with defaults
//   - Validating the result before anything connects
//
// Environment Variables:
//
//	HUBCHAT_BASE_URL               service base URL (https://localhost:7055)
//	HUBCHAT_HUB_PATH               hub endpoint path (/chathub)
//	HUBCHAT_SKIP_NEGOTIATION       dial the WebSocket without negotiating
//	HUBCHAT_INSECURE_SKIP_VERIFY   accept self-signed development certificates
//	HUBCHAT_HISTORY_TIMEOUT        history fetch timeout (10s)
//	HUBCHAT_HANDSHAKE_TIMEOUT      negotiate and handshake timeout (15s)
//	HUBCHAT_KEEP_ALIVE_INTERVAL    client ping interval (15s)
//	HUBCHAT_SERVER_TIMEOUT         silence before the hub is presumed gone (30s)
//	HUBCHAT_RECONNECT_BASE         first reconnect backoff step (1s)
//	HUBCHAT_RECONNECT_MAX          reconnect backoff cap (30s)
//	HUBCHAT_MAX_RECONNECT_ATTEMPTS reconnect attempts before giving up, 0 for no limit
//	HUBCHAT_USERNAME               display name, skips the prompt
//	HUBCHAT_SESSION_DIR            keep the session on disk instead of in memory
//	HUBCHAT_LOG_LEVEL              trace, debug, info, warn or error
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client := signalr.NewClient(cfg.HubURL(), cfg.SignalROptions(), logger)
//
// Command line flags override individual fields after Load; call Validate
// again once they are applied.
package config
