package relay

import (
	"context"
	"errors"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-audio-relay/core"
)

// DefaultSlot is the reserved state key used when a waiter registers
// without a correlation state. At most one stateless registration can
// be pending system-wide.
const DefaultSlot = "__default__"

const handshakeTimeout = 10 * time.Second

type registration struct {
	state     string
	result    chan Message
	cancelled chan struct{}
	resolved  bool
	replaced  bool
}

// Coordinator owns the registration table and the listening socket.
// Waiters connect, send one REGISTER record and block; the callback
// HTTP surface resolves them through DeliverResult.
type Coordinator struct {
	config core.RelayConfig
	logger core.Logger

	mu       sync.Mutex
	pending  map[string]*registration
	listener net.Listener
	running  bool
}

func NewCoordinator(config core.RelayConfig, logger core.Logger) *Coordinator {
	return &Coordinator{
		config:  config,
		logger:  glog.Ensure(logger),
		pending: map[string]*registration{},
	}
}

func (c *Coordinator) useTCP() bool {
	return c.config.UseTCP || runtime.GOOS == "windows"
}

// Addr returns the bound listener address, or nil before Start.
func (c *Coordinator) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Start binds the transport and accepts connections until ctx is
// cancelled or Stop closes the listener. A bind failure is fatal and
// returned to the caller; run Start on a background goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	if c == nil {
		return relayError(
			"relay: coordinator is nil",
			goerrors.CategoryInternal,
			500,
			core.RelayErrorInternal,
			nil,
		)
	}
	listener, err := c.listen()
	if err != nil {
		return connectionError(err, "relay: coordinator bind failed", map[string]any{
			"use_tcp":     c.useTCP(),
			"socket_path": c.config.SocketPath,
			"tcp_port":    c.config.TCPPort,
		})
	}

	c.mu.Lock()
	c.listener = listener
	c.running = true
	c.mu.Unlock()

	c.logger.Info("coordinator listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		current := c.listener
		c.mu.Unlock()
		if current != nil {
			_ = current.Close()
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				c.logger.Info("coordinator accept loop stopped")
				return nil
			}
			c.logger.Error("coordinator accept failed", "error", err)
			continue
		}
		go c.handleConn(conn)
	}
}

func (c *Coordinator) listen() (net.Listener, error) {
	if c.useTCP() {
		addr := net.JoinHostPort(c.tcpHost(), strconv.Itoa(c.config.TCPPort))
		return net.Listen("tcp", addr)
	}
	// Remove a stale socket file from a previous run. A live coordinator
	// holding the path will still fail the bind below.
	if _, err := os.Stat(c.config.SocketPath); err == nil {
		if err := os.Remove(c.config.SocketPath); err != nil {
			return nil, err
		}
	}
	return net.Listen("unix", c.config.SocketPath)
}

func (c *Coordinator) tcpHost() string {
	if c.config.TCPHost != "" {
		return c.config.TCPHost
	}
	return "127.0.0.1"
}

// handleConn reads one REGISTER record, parks the connection on a fresh
// registration, and writes back a DELIVER record if the wait resolves.
// Per-connection faults are contained: they close this connection and
// never disturb other pending entries.
func (c *Coordinator) handleConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	line, err := readLine(conn)
	if err != nil {
		c.logger.Warn("client closed or stalled before registering", "error", err)
		return
	}
	msg, err := DecodeMessage(line)
	if err != nil {
		c.logger.Warn("client sent malformed registration", "error", err)
		return
	}
	if msg.Type != MessageRegister {
		c.logger.Warn("client sent non-REGISTER first message", "type", string(msg.Type))
		return
	}

	state := normalizeState(msg.State)
	reg := c.register(state)
	c.logger.Info("client registered", "state", state)

	timer := time.NewTimer(c.waitTimeout())
	defer timer.Stop()

	select {
	case result := <-reg.result:
		encoded, err := EncodeMessage(result)
		if err != nil {
			c.logger.Error("result encoding failed", "state", state, "error", err)
			break
		}
		_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
		if _, err := conn.Write(encoded); err != nil {
			c.logger.Warn("result write failed", "state", state, "error", err)
			break
		}
		c.logger.Info("callback delivered to client", "state", state)
	case <-reg.cancelled:
		c.logger.Info("registration cancelled", "state", state)
	case <-timer.C:
		c.logger.Warn("callback timeout", "state", state)
	}

	// Remove only our own entry: a newer registration may have replaced
	// it in the table already.
	c.mu.Lock()
	if current, ok := c.pending[state]; ok && current == reg {
		delete(c.pending, state)
	}
	c.mu.Unlock()
}

func (c *Coordinator) waitTimeout() time.Duration {
	if c.config.DefaultTimeout > 0 {
		return c.config.DefaultTimeout
	}
	return 300 * time.Second
}

// register creates a fresh entry for state, cancelling and replacing
// any live entry already parked there.
func (c *Coordinator) register(state string) *registration {
	reg := &registration{
		state:     state,
		result:    make(chan Message, 1),
		cancelled: make(chan struct{}),
	}
	c.mu.Lock()
	if old, ok := c.pending[state]; ok && !old.resolved && !old.replaced {
		old.replaced = true
		close(old.cancelled)
		c.logger.Info("cancelled previous registration", "state", state)
	}
	c.pending[state] = reg
	c.mu.Unlock()
	return reg
}

// DeliverResult resolves the live registration for state with the
// extracted code, or the raw payload when extraction failed. It returns
// false when no waiter is registered or the entry already resolved;
// both are ordinary outcomes, not errors. Safe to call concurrently
// with registrations for the same or different states.
func (c *Coordinator) DeliverResult(state string, code string, raw map[string]any) bool {
	if c == nil {
		return false
	}
	key := normalizeState(state)

	c.mu.Lock()
	reg, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		if c.config.LogUnmatched {
			c.logger.Warn("no client waiting for callback", "state", key)
		}
		return false
	}
	if reg.resolved {
		c.mu.Unlock()
		c.logger.Warn("callback already delivered, dropping replay", "state", key)
		return false
	}
	reg.resolved = true
	c.mu.Unlock()

	reg.result <- Message{
		Type:  MessageDeliver,
		State: state,
		Code:  code,
		Raw:   raw,
	}
	return true
}

// Stop cancels every pending registration, closes the listener and, for
// the unix transport, removes the socket file. Idempotent, and safe to
// call on a coordinator that never started.
func (c *Coordinator) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	for state, reg := range c.pending {
		if !reg.resolved && !reg.replaced {
			reg.replaced = true
			close(reg.cancelled)
			c.logger.Info("cancelled pending registration", "state", state)
		}
	}
	c.pending = map[string]*registration{}
	listener := c.listener
	c.listener = nil
	wasRunning := c.running
	c.running = false
	c.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	if wasRunning && !c.useTCP() {
		if err := os.Remove(c.config.SocketPath); err != nil && !os.IsNotExist(err) {
			c.logger.Error("socket cleanup failed", "path", c.config.SocketPath, "error", err)
		}
	}
	if wasRunning {
		c.logger.Info("coordinator stopped")
	}
}

func normalizeState(state string) string {
	if state == "" {
		return DefaultSlot
	}
	return state
}

var _ core.CodeDeliverer = (*Coordinator)(nil)
