package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"simfleet/protocol"
)

// NodeClient issues commands to one rig's command API, addressed per call
// because rig addresses come from the live registry.
type NodeClient interface {
	Configure(ctx context.Context, addr string, cmd *protocol.ConfigureCommand) error
	Start(ctx context.Context, addr, sessionID string) error
	Stop(ctx context.Context, addr, sessionID string) error
	Reset(ctx context.Context, addr, sessionID string) error
}

// HTTPNodeClient talks to the rig agents' JSON command API.
type HTTPNodeClient struct {
	httpClient *http.Client
}

func NewHTTPNodeClient(timeout time.Duration) *HTTPNodeClient {
	return &HTTPNodeClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPNodeClient) Configure(ctx context.Context, addr string, cmd *protocol.ConfigureCommand) error {
	return c.post(ctx, addr, "/api/configure", cmd)
}

func (c *HTTPNodeClient) Start(ctx context.Context, addr, sessionID string) error {
	return c.post(ctx, addr, "/api/start", map[string]string{"session_id": sessionID})
}

func (c *HTTPNodeClient) Stop(ctx context.Context, addr, sessionID string) error {
	return c.post(ctx, addr, "/api/stop", map[string]string{"session_id": sessionID})
}

func (c *HTTPNodeClient) Reset(ctx context.Context, addr, sessionID string) error {
	return c.post(ctx, addr, "/api/reset", map[string]string{"session_id": sessionID})
}

// post sends the command and folds both transport errors and rig-level
// refusals (reply with ok=false) into a single error.
func (c *HTTPNodeClient) post(ctx context.Context, addr, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("rig marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("rig request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rig POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rig read body: %w", err)
	}
	var reply protocol.CommandReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("rig HTTP %d: %s", resp.StatusCode, string(raw))
		}
		return fmt.Errorf("rig decode reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("rig refused %s: %s", path, reply.Reason)
	}
	return nil
}
