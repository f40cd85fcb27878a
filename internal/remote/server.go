// ABOUTME: WebSocket remote control server for a running player
// ABOUTME: Handshakes clients, broadcasts status periodically and applies their commands
package remote

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/internal/protocol"
	"github.com/Resonate-Protocol/resonate-playout/internal/version"
)

const (
	helloTimeout  = 5 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendQueue     = 32
)

// Controller is the player the server drives; *app.Player implements it
type Controller interface {
	HandleCommand(cmd protocol.Command) error
	Status() protocol.Status
}

// Config holds server configuration
type Config struct {
	Addr           string // listen address for ListenAndServe
	Name           string
	Path           string // websocket path, "/playout" when empty
	Backend        string
	StatusInterval time.Duration // 1s when zero

	Metrics   http.Handler    // served on /metrics when set
	OnClients func(count int) // called when clients connect or leave
	Logger    *slog.Logger
}

// Server exposes a Controller to remote clients
type Server struct {
	config   Config
	serverID string
	ctrl     Controller
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	clientsMu sync.RWMutex
	clients   map[string]*client
	closing   bool

	wg sync.WaitGroup
}

type client struct {
	id   string
	name string
	conn *websocket.Conn
	send chan []byte
}

// New creates a server for ctrl
func New(ctrl Controller, config Config) *Server {
	if config.Path == "" {
		config.Path = "/playout"
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = time.Second
	}

	s := &Server{
		config:   config,
		serverID: uuid.NewString(),
		ctrl:     ctrl,
		logger:   logger.OrDiscard(config.Logger).With("component", "remote"),
		upgrader: websocket.Upgrader{
			// the server only listens on trusted local networks
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		clients: make(map[string]*client),
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	if config.Metrics != nil {
		s.mux.Handle("/metrics", config.Metrics)
	}
	return s
}

// Handler serves the websocket endpoint and /metrics
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on config.Addr until ctx ends
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return errors.New(err).
			Component("remote").
			Category(errors.CategoryNetwork).
			Context("addr", s.config.Addr).
			Build()
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()
	s.logger.Info("remote control listening", "addr", ln.Addr().String(), "path", s.config.Path)

	runErr := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go func() { runErr <- s.Run(runCtx) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		serveErr = err
	}
	cancel()
	<-runErr

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown failed", "error", err)
	}

	if serveErr != nil {
		return errors.New(serveErr).
			Component("remote").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}

// Run broadcasts status until ctx ends, then disconnects every client
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeClients()
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.Broadcast()
		}
	}
}

// Broadcast sends the current status to every client
func (s *Server) Broadcast() {
	s.clientsMu.RLock()
	n := len(s.clients)
	s.clientsMu.RUnlock()
	if n == 0 {
		return
	}

	data, err := protocol.Encode(protocol.TypeStatus, s.ctrl.Status())
	if err != nil {
		s.logger.Error("encoding status failed", errors.LogAttrs(err)...)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.enqueue(c, data)
	}
}

// ClientCount is the number of handshaken clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	s.closing = true
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
	s.clientsMu.Unlock()
}

// enqueue queues data for c, dropping it when the client is too slow.
// Callers hold clientsMu.
func (s *Server) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		s.logger.Warn("client send queue full, dropping message", "client", c.name)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	s.logger.Debug("new websocket connection", "remote", r.RemoteAddr)

	s.clientsMu.Lock()
	if s.closing {
		s.clientsMu.Unlock()
		_ = conn.Close()
		return
	}
	s.wg.Add(1)
	s.clientsMu.Unlock()

	defer s.wg.Done()
	s.handleConnection(conn)
}

// writeDirect sends a message before the writer goroutine exists
func writeDirect(conn *websocket.Conn, msgType string, payload any) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	hello, err := s.readHello(conn)
	if err != nil {
		s.logger.Warn("handshake failed", errors.LogAttrs(err)...)
		_ = writeDirect(conn, protocol.TypeError, protocol.Error{
			Code:    protocol.CodeUnexpected,
			Message: err.Error(),
		})
		return
	}

	c := &client{
		id:   hello.ClientID,
		name: hello.Name,
		conn: conn,
		send: make(chan []byte, sendQueue),
	}

	s.clientsMu.Lock()
	if s.closing {
		s.clientsMu.Unlock()
		return
	}
	if _, exists := s.clients[c.id]; exists {
		s.clientsMu.Unlock()
		s.logger.Warn("rejecting duplicate client id", "client_id", c.id, "name", c.name)
		_ = writeDirect(conn, protocol.TypeError, protocol.Error{
			Code:    protocol.CodeDuplicateID,
			Message: "client id already connected",
		})
		return
	}
	s.clients[c.id] = c
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.clientsChanged(count)

	s.logger.Info("client connected", "client_id", c.id, "name", c.name)

	writerDone := make(chan struct{})
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		count := len(s.clients)
		close(c.send)
		s.clientsMu.Unlock()
		<-writerDone
		s.clientsChanged(count)
		s.logger.Info("client disconnected", "client_id", c.id, "name", c.name)
	}()

	serverHello := protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.Version,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		Backend:  s.config.Backend,
		Commands: protocol.Commands,
	}
	if err := writeDirect(conn, protocol.TypeServerHello, serverHello); err != nil {
		close(writerDone)
		return
	}

	go func() {
		defer close(writerDone)
		s.clientWriter(c)
	}()

	s.send(c, protocol.TypeStatus, s.ctrl.Status())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "client", c.name, "error", err)
			}
			return
		}
		s.handleClientMessage(c, data)
	}
}

// readHello waits for client/hello and validates it
func (s *Server) readHello(conn *websocket.Conn) (protocol.ClientHello, error) {
	var hello protocol.ClientHello

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, errors.New(err).
			Component("remote").
			Category(errors.CategoryNetwork).
			Build()
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := protocol.Decode(data)
	if err != nil {
		return hello, err
	}
	if env.Type != protocol.TypeClientHello {
		return hello, errors.Newf("expected %s, got %s", protocol.TypeClientHello, env.Type).
			Component("remote").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := env.DecodePayload(&hello); err != nil {
		return hello, err
	}
	if hello.ClientID == "" || hello.Name == "" {
		return hello, errors.Newf("client hello needs client_id and name").
			Component("remote").
			Category(errors.CategoryValidation).
			Build()
	}
	return hello, nil
}

func (s *Server) clientsChanged(count int) {
	if s.config.OnClients != nil {
		s.config.OnClients(count)
	}
}

// send encodes and queues a message for one client
func (s *Server) send(c *client, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.logger.Error("encoding message failed", errors.LogAttrs(err)...)
		return
	}
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if _, ok := s.clients[c.id]; ok {
		s.enqueue(c, data)
	}
}

// clientWriter drains the client's queue and keeps the connection alive
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", "client", c.name, "error", err)
				_ = c.conn.Close()
				drain(c.send)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				_ = c.conn.Close()
				drain(c.send)
				return
			}
		}
	}
}

// drain discards queued messages until the channel is closed
func drain(ch <-chan []byte) {
	for range ch {
	}
}

// handleClientMessage processes one message after the handshake
func (s *Server) handleClientMessage(c *client, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.send(c, protocol.TypeError, protocol.Error{Code: protocol.CodeMalformed, Message: err.Error()})
		return
	}

	switch env.Type {
	case protocol.TypeCommand:
		var cmd protocol.Command
		if err := env.DecodePayload(&cmd); err != nil {
			s.send(c, protocol.TypeError, protocol.Error{Code: protocol.CodeMalformed, Message: err.Error()})
			return
		}
		s.handleCommand(c, cmd)
	default:
		s.send(c, protocol.TypeError, protocol.Error{
			Code:    protocol.CodeUnexpected,
			Message: "unexpected message type " + env.Type,
		})
	}
}

func (s *Server) handleCommand(c *client, cmd protocol.Command) {
	err := s.ctrl.HandleCommand(cmd)
	res := protocol.Result{ID: cmd.ID, OK: err == nil, Status: s.ctrl.Status()}
	if err != nil {
		res.Error = err.Error()
	}
	s.logger.Debug("command handled", "client", c.name, "command", cmd.Command, "value", cmd.Value, "ok", res.OK)
	s.send(c, protocol.TypeResult, res)
}
