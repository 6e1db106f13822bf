package uiautomator2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"
)

// defaultHTTPTimeout bounds a single request to the server.
const defaultHTTPTimeout = 30 * time.Second

// Client communicates with the UiAutomator2 server over a Unix socket or a
// forwarded TCP port.
type Client struct {
	http      *http.Client
	baseURL   string
	sessionID string
	wire      *log.Logger
	wireFile  *os.File
}

// NewClient creates a client dialing the forwarded Unix socket.
func NewClient(socketPath string) *Client {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}
	return newClient("http://localhost", &http.Transport{DialContext: dial})
}

// NewClientTCP creates a client for a server forwarded to localhost:port.
func NewClientTCP(port int) *Client {
	return newClient(fmt.Sprintf("http://127.0.0.1:%d", port), nil)
}

func newClient(baseURL string, transport http.RoundTripper) *Client {
	return &Client{
		http:    &http.Client{Transport: transport, Timeout: defaultHTTPTimeout},
		baseURL: baseURL,
		wire:    log.New(io.Discard, "", 0),
	}
}

// SetLogPath appends one line per request, with its latency, to path.
// Requests are not logged until this is called. Close releases the file.
func (c *Client) SetLogPath(path string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	c.closeLog()
	c.wireFile = f
	c.wire = log.New(f, "", log.Ltime|log.Lmicroseconds)
}

func (c *Client) closeLog() {
	if c.wireFile == nil {
		return
	}
	c.wireFile.Close()
	c.wireFile = nil
	c.wire = log.New(io.Discard, "", 0)
}

// SessionID returns the current session ID, empty without a session.
func (c *Client) SessionID() string {
	return c.sessionID
}

// request sends body as JSON and returns the raw response. Any status of
// 400 or above comes back as a *ServerError.
func (c *Client) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.wire.Printf("%s %s [%v] ERROR: %v", method, path, time.Since(start), err)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.wire.Printf("%s %s [%v] %d body=%s", method, path, time.Since(start), resp.StatusCode, abbreviate(payload, 100))

	if resp.StatusCode >= 400 {
		return nil, decodeServerError(resp.StatusCode, data)
	}
	return data, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}

func abbreviate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func decodeServerError(status int, data []byte) *ServerError {
	var resp struct {
		Value ErrorValue `json:"value"`
	}
	if json.Unmarshal(data, &resp) == nil && resp.Value.Error != "" {
		return &ServerError{StatusCode: status, Kind: resp.Value.Error, Message: resp.Value.Message}
	}
	return &ServerError{StatusCode: status, Message: string(data)}
}

// ServerError is a non-2xx answer from the server.
type ServerError struct {
	StatusCode int
	Kind       string // W3C error name, e.g. "no such element"
	Message    string
}

func (e *ServerError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsNoSuchElement reports whether the server could not find the element.
func (e *ServerError) IsNoSuchElement() bool {
	return e.Kind == "no such element" || e.StatusCode == http.StatusNotFound
}

// sessionPath returns path with session ID prefix.
func (c *Client) sessionPath(path string) string {
	return fmt.Sprintf("/session/%s%s", c.sessionID, path)
}

// Status checks if the server is ready.
func (c *Client) Status(ctx context.Context) (bool, error) {
	data, err := c.request(ctx, "GET", "/status", nil)
	if err != nil {
		return false, err
	}

	var resp struct {
		Value struct {
			Ready   bool   `json:"ready"`
			Message string `json:"message"`
		} `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, err
	}

	return resp.Value.Ready, nil
}

// CreateSession starts a new automation session.
func (c *Client) CreateSession(ctx context.Context, caps Capabilities) error {
	req := SessionRequest{Capabilities: caps}
	data, err := c.request(ctx, "POST", "/session", req)
	if err != nil {
		return err
	}

	var resp struct {
		SessionID string `json:"sessionId"`
		Value     struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse session response: %w", err)
	}

	// Older servers answer with sessionId nested under value
	sessionID := resp.SessionID
	if sessionID == "" {
		sessionID = resp.Value.SessionID
	}
	if sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}

	c.sessionID = sessionID
	return nil
}

// DeleteSession ends the current session.
func (c *Client) DeleteSession(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}

	_, err := c.request(ctx, "DELETE", c.sessionPath(""), nil)
	c.sessionID = ""
	return err
}

// Close ends the session and closes the request log.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.DeleteSession(ctx)
	c.closeLog()
	return err
}

// SetImplicitWait sets the server-side implicit wait for element finding.
// The runner polls on its own, so it sets this to zero.
func (c *Client) SetImplicitWait(ctx context.Context, timeout time.Duration) error {
	if c.sessionID == "" {
		return fmt.Errorf("no active session")
	}

	_, err := c.request(ctx, "POST", c.sessionPath("/timeouts"), map[string]interface{}{
		"implicit": timeout.Milliseconds(),
	})
	return err
}
