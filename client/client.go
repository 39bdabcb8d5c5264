// Package client connects a consumer process to a running tweaker session.
//
// Dial blocks until the full parameter snapshot has arrived. After that a
// background goroutine merges every change into a local copy, so lookups
// never touch the network:
//
//	c, err := client.Dial(ctx, client.DefaultAddr)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	speed, err := c.Float("speed")
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/tweaker/internal/param"
	"github.com/kalambet/tweaker/internal/wire"
)

// DefaultAddr is where a tweaker session listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:44448"

var (
	ErrConnect         = errors.New("could not connect to tweaker server")
	ErrSocketIO        = errors.New("could not read from socket")
	ErrInvalidJSON     = wire.ErrInvalidJSON
	ErrBadRootType     = wire.ErrBadRootType
	ErrUnsupportedType = wire.ErrUnsupportedType
	ErrNotFound        = errors.New("parameter not found")
	ErrKindMismatch    = errors.New("parameter kind mismatch")
)

// Option configures a Client.
type Option func(*Client)

// WithErrorHandler registers fn to be called once if the background reader
// stops with an error. It is not called after Close.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

// WithUpdateHandler registers fn to be called with every message after it
// has been merged, starting with the initial snapshot.
func WithUpdateHandler(fn func(*param.Values)) Option {
	return func(c *Client) { c.onUpdate = fn }
}

// WithLogger sets the logger for background read failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client holds the latest value of every parameter the server has sent.
type Client struct {
	conn     net.Conn
	logger   *slog.Logger
	onError  func(error)
	onUpdate func(*param.Values)

	mu     sync.RWMutex
	values *param.Values
	err    error

	closed atomic.Bool
	done   chan struct{}
}

// Dial connects to addr and waits for the initial snapshot. ctx bounds the
// connect and the first read only.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	c := &Client{
		values: param.NewValues(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "client", "addr", addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %v", ErrConnect, addr, err)
	}
	c.conn = conn

	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	vs, err := c.read()
	if !stop() || err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waiting for snapshot: %w", ctxErr)
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c.merge(vs)
	go c.loop()
	return c, nil
}

func (c *Client) read() (*param.Values, error) {
	payload, err := wire.ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSocketIO, err)
	}
	return wire.DecodeValues(payload)
}

func (c *Client) merge(vs *param.Values) {
	c.mu.Lock()
	for p := vs.Oldest(); p != nil; p = p.Next() {
		c.logger.Debug("parameter updated", "name", p.Key, "value", p.Value.String())
		c.values.Set(p.Key, p.Value)
	}
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(vs)
	}
}

func (c *Client) loop() {
	for {
		vs, err := c.read()
		if err != nil {
			c.finish(err)
			return
		}
		c.merge(vs)
	}
}

func (c *Client) finish(err error) {
	if c.closed.Load() {
		err = nil
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)

	if err != nil {
		c.logger.Error("failed to read message in background", "error", err)
		if c.onError != nil {
			c.onError(err)
		}
	}
}

// Done is closed when the background reader stops.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the background reader stopped. It is nil while the reader
// is running and after Close.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close disconnects and waits for the background reader to exit.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}
	err := c.conn.Close()
	<-c.done
	return err
}

// Lookup returns the last received value of name.
func (c *Client) Lookup(name string) (param.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values.Get(name)
}

// Values returns a copy of every known parameter in the order first received.
func (c *Client) Values() *param.Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vs := param.NewValues()
	for p := c.values.Oldest(); p != nil; p = p.Next() {
		vs.Set(p.Key, p.Value)
	}
	return vs
}

func (c *Client) lookupKind(name string, kinds ...param.Kind) (param.Value, error) {
	v, ok := c.Lookup(name)
	if !ok {
		return param.Value{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, k := range kinds {
		if v.Kind() == k {
			return v, nil
		}
	}
	return param.Value{}, fmt.Errorf("%w: %q is %s", ErrKindMismatch, name, v.Kind())
}

// Int returns name as an integer.
func (c *Client) Int(name string) (int64, error) {
	v, err := c.lookupKind(name, param.Int)
	return v.Int(), err
}

// Float returns name as a float. Integer parameters are widened.
func (c *Client) Float(name string) (float64, error) {
	v, err := c.lookupKind(name, param.Float, param.Int)
	return v.Float(), err
}

// Bool returns name as a boolean.
func (c *Client) Bool(name string) (bool, error) {
	v, err := c.lookupKind(name, param.Bool)
	return v.Bool(), err
}
