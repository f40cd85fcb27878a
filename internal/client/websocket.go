// ABOUTME: WebSocket client for the playout remote control protocol
// ABOUTME: Handles connection, handshake, command round trips and status updates
package client

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/internal/protocol"
)

// ErrClosed is returned once the connection has ended
var ErrClosed = errors.NewStd("remote connection closed")

// ErrRejected wraps a command the player refused
var ErrRejected = errors.NewStd("command rejected")

// Config holds client configuration
type Config struct {
	ServerAddr string // host:port
	Path       string // "/playout" when empty
	ClientID   string // random when empty
	Name       string
	Logger     *slog.Logger
}

// Client is one remote control connection
type Client struct {
	config Config
	conn   *websocket.Conn
	hello  protocol.ServerHello
	logger *slog.Logger

	writeMu sync.Mutex
	seq     atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan protocol.Result

	statuses chan protocol.Status
	errs     chan protocol.Error
	done     chan struct{}
	err      error
}

// Connect dials the player and performs the handshake
func Connect(ctx context.Context, config Config) (*Client, error) {
	if config.Path == "" {
		config.Path = "/playout"
	}
	if config.ClientID == "" {
		config.ClientID = uuid.NewString()
	}
	if config.Name == "" {
		config.Name = "playout-remote"
	}

	u := url.URL{Scheme: "ws", Host: config.ServerAddr, Path: config.Path}
	log := logger.OrDiscard(config.Logger).With("component", "client", "server", u.String())
	log.Debug("connecting")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.New(err).
			Component("client").
			Category(errors.CategoryNetwork).
			Context("url", u.String()).
			Build()
	}

	c := &Client{
		config:   config,
		conn:     conn,
		logger:   log,
		pending:  make(map[string]chan protocol.Result),
		statuses: make(chan protocol.Status, 16),
		errs:     make(chan protocol.Error, 4),
		done:     make(chan struct{}),
	}

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readMessages()
	return c, nil
}

// handshake sends client/hello and waits for server/hello
func (c *Client) handshake(ctx context.Context) error {
	hello := protocol.ClientHello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Version:  protocol.Version,
	}
	if err := c.sendJSON(protocol.TypeClientHello, hello); err != nil {
		return err
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return errors.New(err).
			Component("client").
			Category(errors.CategoryNetwork).
			Build()
	}
	_ = c.conn.SetReadDeadline(time.Time{})

	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	switch env.Type {
	case protocol.TypeServerHello:
		if err := env.DecodePayload(&c.hello); err != nil {
			return err
		}
	case protocol.TypeError:
		var perr protocol.Error
		_ = env.DecodePayload(&perr)
		return errors.Newf("server refused connection: %s", perr.Message).
			Component("client").
			Category(errors.CategoryNetwork).
			Context("code", perr.Code).
			Build()
	default:
		return errors.Newf("expected %s, got %s", protocol.TypeServerHello, env.Type).
			Component("client").
			Category(errors.CategoryValidation).
			Build()
	}

	c.logger.Debug("handshake complete", "server_name", c.hello.Name, "server_id", c.hello.ServerID)
	return nil
}

// Hello is the server's handshake reply
func (c *Client) Hello() protocol.ServerHello {
	return c.hello
}

func (c *Client) sendJSON(msgType string, payload any) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.New(err).
			Component("client").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}

// readMessages routes incoming messages until the connection ends
func (c *Client) readMessages() {
	defer func() {
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed message", errors.LogAttrs(err)...)
			continue
		}
		c.route(env)
	}
}

func (c *Client) route(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeStatus:
		var st protocol.Status
		if err := env.DecodePayload(&st); err != nil {
			return
		}
		select {
		case c.statuses <- st:
		default:
			// keep the newest when nobody is reading
			select {
			case <-c.statuses:
			default:
			}
			c.statuses <- st
		}

	case protocol.TypeResult:
		var res protocol.Result
		if err := env.DecodePayload(&res); err != nil {
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		delete(c.pending, res.ID)
		c.mu.Unlock()
		if ok {
			ch <- res
		}

	case protocol.TypeError:
		var perr protocol.Error
		if err := env.DecodePayload(&perr); err != nil {
			return
		}
		select {
		case c.errs <- perr:
		default:
		}

	default:
		c.logger.Debug("ignoring message", "type", env.Type)
	}
}

// Command sends cmd and waits for its result. A refused command returns
// the status alongside an error wrapping ErrRejected.
func (c *Client) Command(ctx context.Context, cmd protocol.Command) (protocol.Status, error) {
	cmd.ID = strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan protocol.Result, 1)

	c.mu.Lock()
	c.pending[cmd.ID] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, cmd.ID)
		c.mu.Unlock()
	}

	select {
	case <-c.done:
		forget()
		return protocol.Status{}, c.closedError()
	default:
	}

	if err := c.sendJSON(protocol.TypeCommand, cmd); err != nil {
		forget()
		return protocol.Status{}, err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return protocol.Status{}, c.closedError()
		}
		if !res.OK {
			return res.Status, errors.Newf("%s: %w", res.Error, ErrRejected).
				Component("client").
				Category(errors.CategoryValidation).
				Context("command", cmd.Command).
				Build()
		}
		return res.Status, nil
	case <-ctx.Done():
		forget()
		return protocol.Status{}, errors.New(ctx.Err()).
			Component("client").
			Category(errors.CategoryCancellation).
			Build()
	}
}

// Statuses delivers periodic status broadcasts. Only the newest unread
// status is kept.
func (c *Client) Statuses() <-chan protocol.Status {
	return c.statuses
}

// Errors delivers protocol errors reported by the server
func (c *Client) Errors() <-chan protocol.Error {
	return c.errs
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) closedError() error {
	<-c.done
	return errors.New(ErrClosed).
		Component("client").
		Category(errors.CategoryNetwork).
		Context("cause", errString(c.err)).
		Build()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Close sends a close frame and waits for the reader to finish
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}
