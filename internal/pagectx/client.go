// Package pagectx is the client side of a page or popup context: it talks
// to the coordinator over the websocket and falls back to the REST API when
// the socket is unavailable.
package pagectx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/protocol"
	"github.com/lotas/laterread/internal/types"
	"nhooyr.io/websocket"
)

// ErrClosed is returned for requests after the socket went away.
var ErrClosed = errors.New("connection closed")

// CommandFunc answers page.* commands the coordinator sends to this page.
type CommandFunc func(ctx context.Context, cmd protocol.Message) protocol.Message

// Client is one context's connection to the coordinator.
type Client struct {
	baseURL string
	http    *http.Client
	onCmd   CommandFunc

	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	notify  chan protocol.Message
	seq     atomic.Uint64
	mu      sync.Mutex
	pending map[string]chan protocol.Message
	closed  bool
}

// Option customises a Client.
type Option func(*Client)

// WithCommandHandler answers page.* commands (scroll, favicon).
func WithCommandHandler(fn CommandFunc) Option { return func(c *Client) { c.onCmd = fn } }

// WithHTTPClient overrides the client used for REST calls.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// New returns a REST-only client for baseURL (http://host:port).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		notify:  make(chan protocol.Message, 16),
		pending: make(map[string]chan protocol.Message),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial connects a context to the coordinator and announces it with hello.
func Dial(ctx context.Context, baseURL string, hello protocol.Message, opts ...Option) (*Client, error) {
	c := New(baseURL, opts...)
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(4 << 20)
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	hello.Action = protocol.ActionHello
	if err := c.write(ctx, hello); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("hello: %w", err)
	}
	go c.readLoop()
	applog.Info("pagectx.connected", "role", hello.Role, "tab", hello.TabID)
	return c, nil
}

// Notifications delivers itemsUpdated and checkItems pushes. The channel
// is closed when the connection ends.
func (c *Client) Notifications() <-chan protocol.Message {
	return c.notify
}

// Close drops the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) write(ctx context.Context, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for seq, ch := range c.pending {
			close(ch)
			delete(c.pending, seq)
		}
		c.mu.Unlock()
		close(c.notify)
	}()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			applog.Error("pagectx.parse", err)
			continue
		}

		switch {
		case msg.Action == protocol.ActionResponse:
			c.mu.Lock()
			ch, ok := c.pending[msg.Seq]
			delete(c.pending, msg.Seq)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case strings.HasPrefix(msg.Action, "page."):
			go c.answer(msg)
		default:
			select {
			case c.notify <- msg:
			default:
				applog.Info("pagectx.notification_dropped", "action", msg.Action)
			}
		}
	}
}

func (c *Client) answer(cmd protocol.Message) {
	var resp protocol.Message
	if c.onCmd == nil {
		resp = protocol.Reply(cmd).Failed(fmt.Errorf("unsupported command %s", cmd.Action))
	} else {
		resp = c.onCmd(c.ctx, cmd)
		resp.Seq = cmd.Seq
		resp.Action = protocol.ActionResponse
	}
	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	if err := c.write(ctx, resp); err != nil {
		applog.Error("pagectx.answer", err, "action", cmd.Action)
	}
}

// Request sends req over the socket and waits for its response.
func (c *Client) Request(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	if c.conn == nil {
		return protocol.Message{}, ErrClosed
	}
	req.Seq = fmt.Sprintf("c-%d", c.seq.Add(1))
	ch := make(chan protocol.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Message{}, ErrClosed
	}
	c.pending[req.Seq] = ch
	c.mu.Unlock()

	if err := c.write(ctx, req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
		return protocol.Message{}, fmt.Errorf("send %s: %w", req.Action, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.Message{}, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
		return protocol.Message{}, ctx.Err()
	}
}

// do sends req over the socket when connected and over REST otherwise.
// Only a list read is repeated over REST after the socket request fails;
// a write may already have been applied when its reply was lost.
func (c *Client) do(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	if c.connected() {
		resp, err := c.Request(ctx, req)
		if err == nil {
			return resp, responseErr(resp)
		}
		if req.Action != protocol.ActionList {
			return protocol.Message{}, err
		}
		applog.Error("pagectx.request", err, "action", req.Action, "fallback", "rest")
	}
	resp, err := c.rest(ctx, req)
	if err != nil {
		return protocol.Message{}, err
	}
	return resp, responseErr(resp)
}

// connected reports whether the socket is still up.
func (c *Client) connected() bool {
	if c.conn == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func responseErr(resp protocol.Message) error {
	if resp.OK() {
		return nil
	}
	if resp.Error == "" {
		return errors.New("request failed")
	}
	return errors.New(resp.Error)
}

// List returns the saved items.
func (c *Client) List(ctx context.Context) ([]types.SavedItem, error) {
	resp, err := c.do(ctx, protocol.Message{Action: protocol.ActionList})
	if err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []types.SavedItem{}, nil
	}
	return resp.Items, nil
}

// Save stores a new item.
func (c *Client) Save(ctx context.Context, cand types.Candidate) (types.SavedItem, error) {
	resp, err := c.do(ctx, protocol.Message{Action: protocol.ActionSave, Data: &cand})
	if err != nil {
		return types.SavedItem{}, err
	}
	if resp.Item == nil {
		return types.SavedItem{}, nil
	}
	return *resp.Item, nil
}

// Remove deletes one item.
func (c *Client) Remove(ctx context.Context, id string) error {
	_, err := c.do(ctx, protocol.Message{Action: protocol.ActionRemove, ID: id})
	return err
}

// Clear deletes every item.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.do(ctx, protocol.Message{Action: protocol.ActionClear})
	return err
}

// Open asks the coordinator to open item.
func (c *Client) Open(ctx context.Context, item types.SavedItem) error {
	_, err := c.do(ctx, protocol.Message{Action: protocol.ActionOpen, Item: &item})
	return err
}

// Settings reads the user's settings over REST.
func (c *Client) Settings(ctx context.Context) (types.Settings, error) {
	var s types.Settings
	if err := c.call(ctx, http.MethodGet, "/api/settings", nil, &s); err != nil {
		return types.DefaultSettings(), err
	}
	return s, nil
}

// SaveSettings writes the user's settings over REST.
func (c *Client) SaveSettings(ctx context.Context, s types.Settings) error {
	return c.call(ctx, http.MethodPut, "/api/settings", s, nil)
}

func (c *Client) rest(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	var method, path string
	var body any
	switch req.Action {
	case protocol.ActionList:
		method, path = http.MethodGet, "/api/items"
	case protocol.ActionSave:
		method, path, body = http.MethodPost, "/api/items", req.Data
	case protocol.ActionRemove:
		method, path = http.MethodDelete, "/api/items/"+req.ID
	case protocol.ActionClear:
		method, path = http.MethodDelete, "/api/items"
	case protocol.ActionOpen:
		method, path, body = http.MethodPost, "/api/items/open", req.Item
	default:
		return protocol.Message{}, fmt.Errorf("no REST route for %s", req.Action)
	}
	var resp protocol.Message
	if err := c.call(ctx, method, path, body, &resp); err != nil {
		return protocol.Message{}, err
	}
	return resp, nil
}

// call performs one REST request. Error statuses still decode the body
// when it is a response envelope.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil && res.StatusCode < 400 {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	if res.StatusCode >= 400 {
		if m, ok := out.(*protocol.Message); ok && m.Action == protocol.ActionResponse {
			return nil
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, res.StatusCode)
	}
	return nil
}
