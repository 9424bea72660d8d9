package server

import (
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
	"github.com/lotas/laterread/internal/metrics"
	"github.com/lotas/laterread/internal/protocol"
	"github.com/lotas/laterread/internal/types"
	"nhooyr.io/websocket"
)

var (
	// ErrNoHost is returned by host commands when no extension host is
	// connected.
	ErrNoHost = errors.New("no browser host connected")
	// ErrNotConnected is returned by SendTo when the page context is gone.
	ErrNotConnected = errors.New("page context not connected")
)

// requestQueue bounds the requests waiting on one connection.
const requestQueue = 64

// Backend answers requests arriving over the socket and the REST API.
type Backend interface {
	Handle(ctx context.Context, req protocol.Message) protocol.Message
	PageConnected(tabID int)
	LoadSettings(ctx context.Context) types.Settings
	SaveSettings(ctx context.Context, s types.Settings) error
}

// client is one websocket connection. Role and tab are set by its hello.
type client struct {
	conn  *websocket.Conn
	ctx   context.Context
	role  string
	tabID int
	url   string

	// requests are handled in order by one worker per connection.
	requests chan protocol.Message
}

// Server accepts page contexts, popups and the extension host.
type Server struct {
	addr    string
	backend Backend

	mu      sync.Mutex
	clients map[*client]struct{}
	host    *client
	pending map[string]chan protocol.Message

	seq          atomic.Uint64
	writeTimeout time.Duration
}

// New creates a Server listening on addr once ListenAndServe is called.
func New(addr string, backend Backend) *Server {
	return &Server{
		addr:         addr,
		backend:      backend,
		clients:      make(map[*client]struct{}),
		pending:      make(map[string]chan protocol.Message),
		writeTimeout: 2 * time.Second,
	}
}

// SetBackend installs the request handler when it has to be built after
// the server, as with a coordinator driving the extension through a Bridge.
// Call before ListenAndServe.
func (s *Server) SetBackend(b Backend) {
	s.backend = b
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Connected reports whether an extension host is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host != nil
}

// Pages returns the number of connected page contexts.
func (s *Server) Pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := range s.clients {
		if c.role == protocol.RolePage {
			n++
		}
	}
	return n
}

// Broadcast sends msg to every page context. The extension host also gets
// a copy to relay into tabs it manages. Failures are ignored; the return
// value counts successful deliveries.
func (s *Server) Broadcast(msg protocol.Message) int {
	s.mu.Lock()
	var targets []*client
	for c := range s.clients {
		if c.role == protocol.RolePage || c.role == protocol.RoleHost {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, c := range targets {
		if err := s.write(c, msg); err == nil {
			n++
		}
	}
	return n
}

// SendTo delivers msg to the page context of tabID, or through the
// extension host when the page is not connected directly.
func (s *Server) SendTo(tabID int, msg protocol.Message) error {
	c, direct := s.target(tabID, true)
	if c == nil {
		return ErrNotConnected
	}
	if !direct {
		msg.TabID = tabID
	}
	return s.write(c, msg)
}

// Call sends a command and waits for the response with the same seq.
// page.* commands go to the page context for msg.TabID when it is
// connected, everything else goes to the extension host.
func (s *Server) Call(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	c, _ := s.target(msg.TabID, strings.HasPrefix(msg.Action, "page."))
	if c == nil {
		return protocol.Message{}, ErrNoHost
	}

	msg.Seq = fmt.Sprintf("srv-%d", s.seq.Add(1))
	ch := make(chan protocol.Message, 1)
	s.mu.Lock()
	s.pending[msg.Seq] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.Seq)
		s.mu.Unlock()
	}()

	if err := s.write(c, msg); err != nil {
		return protocol.Message{}, fmt.Errorf("send %s: %w", msg.Action, err)
	}

	select {
	case resp := <-ch:
		if !resp.OK() {
			return resp, fmt.Errorf("%s: %s", msg.Action, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

// target picks the connection for a tab: its page context when preferPage
// is set and one is connected, otherwise the extension host. direct is
// true when the page context itself was chosen.
func (s *Server) target(tabID int, preferPage bool) (c *client, direct bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if preferPage && tabID != 0 {
		for c := range s.clients {
			if c.role == protocol.RolePage && c.tabID == tabID {
				return c, true
			}
		}
	}
	return s.host, false
}

func (s *Server) write(c *client, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, s.writeTimeout)
	defer cancel()
	applog.Info("ws.send", "action", msg.Action, "seq", msg.Seq)
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}
		conn.SetReadLimit(4 << 20)

		c := &client{conn: conn, ctx: r.Context(), requests: make(chan protocol.Message, requestQueue)}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer s.drop(c)
		go s.serveRequests(c)
		defer close(c.requests)

		for {
			_, data, err := conn.Read(c.ctx)
			if err != nil {
				return
			}
			var msg protocol.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			applog.Info("ws.recv", "action", msg.Action, "seq", msg.Seq)
			s.dispatch(c, msg)
		}
	})
}

func (s *Server) dispatch(c *client, msg protocol.Message) {
	switch msg.Action {
	case protocol.ActionHello:
		s.hello(c, msg)

	case protocol.ActionResponse:
		s.mu.Lock()
		ch, ok := s.pending[msg.Seq]
		s.mu.Unlock()
		if ok {
			ch <- msg
		}

	case protocol.HostTabCreated:
		if s.backend != nil && msg.TabID != 0 {
			s.backend.PageConnected(msg.TabID)
		}

	default:
		if s.backend == nil {
			return
		}
		c.requests <- msg
	}
}

// serveRequests answers one client's requests in arrival order. It runs
// apart from the read loop so host replies keep flowing while a request
// waits on the host.
func (s *Server) serveRequests(c *client) {
	for msg := range c.requests {
		resp := s.backend.Handle(c.ctx, msg)
		if err := s.write(c, resp); err != nil {
			applog.Error("ws.reply", err, "action", msg.Action)
		}
	}
}

func (s *Server) hello(c *client, msg protocol.Message) {
	s.mu.Lock()
	prev := c.role
	c.role = msg.Role
	c.tabID = msg.TabID
	c.url = msg.URL
	var replaced *client
	if msg.Role == protocol.RoleHost {
		if s.host != nil && s.host != c {
			replaced = s.host
		}
		s.host = c
	}
	s.mu.Unlock()

	if prev != "" {
		metrics.Contexts.WithLabelValues(prev).Dec()
	}
	metrics.Contexts.WithLabelValues(msg.Role).Inc()
	applog.Info("ws.hello", "role", msg.Role, "tab", msg.TabID, "url", msg.URL)

	if replaced != nil {
		applog.Info("ws.host_replaced")
		replaced.conn.CloseNow()
	}
	if msg.Role == protocol.RolePage && s.backend != nil {
		s.backend.PageConnected(msg.TabID)
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	if s.host == c {
		s.host = nil
	}
	role, tabID := c.role, c.tabID
	s.mu.Unlock()

	if role != "" {
		metrics.Contexts.WithLabelValues(role).Dec()
	}
	c.conn.CloseNow()
	applog.Info("ws.disconnected", "role", role, "tab", tabID)
}

// ListenAndServe serves the websocket endpoint and the REST API until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	applog.Info("server.start", "addr", s.addr)
	srv := &http.Server{Addr: s.addr, Handler: s.Routes()}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return nil
}
