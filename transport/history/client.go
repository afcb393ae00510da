// Package history fetches the existing chat messages from the HTTP API
// that sits next to the hub.
package history

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/wricardo/hubchat/chat/model"
)

// Path is the history endpoint relative to the service base URL
const Path = "/api/ChatMessage"

const DefaultTimeout = 10 * time.Second

var ErrStatus = errors.New("unexpected history response status")

// Client reads message history over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a client for the service at baseURL. A nil httpClient
// selects one with DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		log:        logger.With().Str("component", "history").Logger(),
	}
}

// FetchHistory returns every stored message in server order.
func (c *Client) FetchHistory(ctx context.Context) ([]model.HistoryRecord, error) {
	var records []model.HistoryRecord
	if err := c.apiCall(ctx, http.MethodGet, Path, &records); err != nil {
		return nil, err
	}

	c.log.Debug().Int("records", len(records)).Msg("History fetched")
	return records, nil
}

func (c *Client) apiCall(ctx context.Context, method, path string, result interface{}) error {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build request for %s", url)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var errResp map[string]string
		if json.Unmarshal(body, &errResp) == nil && errResp["error"] != "" {
			return errors.Wrapf(ErrStatus, "%d: %s", resp.StatusCode, errResp["error"])
		}
		return errors.Wrapf(ErrStatus, "%d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return errors.Wrap(err, "failed to decode history")
		}
	}
	return nil
}
