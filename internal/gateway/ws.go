package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Enriquefft/webhook-funnel/internal/jsoncodec"
	"github.com/Enriquefft/webhook-funnel/internal/logging"
	"github.com/Enriquefft/webhook-funnel/internal/message"
)

// ErrNotConnected is returned by Send before Connect succeeds or after Close.
var ErrNotConnected = errors.New("not connected to chat gateway")

const defaultWriteTimeout = 10 * time.Second

// ChatClient delivers one message to a chat destination.
type ChatClient interface {
	Send(ctx context.Context, ship, chat string, msg message.Message) error
}

// ChatFrame is the frame sent to the chat gateway for every message.
type ChatFrame struct {
	Type      string          `json:"type"`
	Ship      string          `json:"ship"`
	Chat      string          `json:"chat"`
	Fragments message.Message `json:"fragments"`
}

// Client manages a WebSocket connection to the chat gateway.
type Client struct {
	url    string
	token  string
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

// NewClient creates a new gateway WebSocket client.
func NewClient(url, token string, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		token:  token,
		logger: logging.Default(logger).With("component", "gateway"),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("connect to chat gateway: %w", err)
	}

	c.conn = conn
	c.logger.Info("connected to chat gateway", "url", c.url)
	return nil
}

// Send writes msg as one frame addressed to chat on ship. The ctx deadline,
// if any, bounds the write.
func (c *Client) Send(ctx context.Context, ship, chat string, msg message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := jsoncodec.Marshal(ChatFrame{
		Type:      "chat-message",
		Ship:      ship,
		Chat:      chat,
		Fragments: msg,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
