// Package server streams parameter changes to consumers over TCP.
//
// Each connection first receives a full snapshot, then one delta per change
// it manages to take from the store's pending slot. When several clients are
// connected a change goes to whichever handler wakes first; the others keep
// waiting for the next one.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/kalambet/tweaker/internal/param"
	"github.com/kalambet/tweaker/internal/store"
	"github.com/kalambet/tweaker/internal/wire"
)

// DefaultAddr is the loopback address consumers connect to.
const DefaultAddr = "127.0.0.1:44448"

// ErrServerFatal wraps an accept failure. The listener cannot recover from
// it and the session should end.
var ErrServerFatal = errors.New("notification server failed")

// Config controls a Server.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string
	// WriteTimeout bounds each send. Zero means no deadline.
	WriteTimeout time.Duration
	// MaxClients caps concurrent connections. Zero means unlimited.
	MaxClients int
	Logger     *slog.Logger
}

// Server accepts consumer connections and feeds them from a Store.
type Server struct {
	store  *store.Store
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	ready chan struct{}
	wg    sync.WaitGroup
}

// New creates a Server for st.
func New(st *store.Store, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		cfg:    cfg,
		logger: logger.With("component", "notify"),
		conns:  make(map[net.Conn]struct{}),
		ready:  make(chan struct{}),
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: listening on %s: %v", ErrServerFatal, s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, in which case it
// returns nil after closing every connection and waiting for handlers. Any
// other accept error is returned wrapped in ErrServerFatal. Serve may only
// be called once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxClients > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxClients)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	close(s.ready)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("notification server listening", "addr", ln.Addr().String())

	var serveErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				serveErr = fmt.Errorf("%w: %v", ErrServerFatal, err)
			}
			break
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handle(ctx, conn)
		}()
	}

	cancel()
	ln.Close()
	s.closeConns()
	s.wg.Wait()
	return serveErr
}

// Addr returns the bound listener address, waiting until Serve has started.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln.Addr()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// handle runs the per-connection protocol: one full snapshot, then one
// delta per change taken from the store.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	log := s.logger.With("conn", uuid.New().String(), "remote", conn.RemoteAddr().String())
	log.Debug("client connected")

	// Consumers never write. A finished read means the peer hung up, so stop
	// waiting for changes on its behalf.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		io.Copy(io.Discard, conn)
		cancel()
	}()

	if err := s.send(conn, s.store.Snapshot()); err != nil {
		log.Debug("sending snapshot failed", "error", err)
		return
	}

	for {
		err := s.store.Drain(ctx, func(c store.Change) error {
			return s.send(conn, c.Values())
		})
		if err != nil {
			log.Debug("client disconnected", "error", err)
			return
		}
	}
}

func (s *Server) send(conn net.Conn, vs *param.Values) error {
	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return wire.WriteValues(conn, vs)
}
