package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kalambet/tweaker/internal/param"
	"github.com/kalambet/tweaker/internal/store"
	"github.com/kalambet/tweaker/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "tweaker.json"))
	for _, p := range []struct {
		name string
		v    param.Value
	}{
		{"_dummy_int", param.IntValue(29)},
		{"_dummy_float", param.FloatValue(-0.25)},
		{"paused", param.BoolValue(false)},
	} {
		if err := st.Register(p.name, p.v, param.Value{}); err != nil {
			t.Fatal(err)
		}
	}
	st.EnableNotifications()
	return st
}

// startServer runs a server on an ephemeral port until the test ends.
func startServer(t *testing.T, st *store.Store, cfg Config) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(st, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not stop")
		}
	})
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn net.Conn, timeout time.Duration) (*param.Values, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	return wire.ReadValues(conn)
}

func TestFirstMessageIsSnapshot(t *testing.T) {
	st := newStore(t)
	srv := startServer(t, st, Config{})

	for i := range 2 {
		conn := dial(t, srv)
		vs, err := read(t, conn, 2*time.Second)
		if err != nil {
			t.Fatalf("client %d: reading snapshot: %v", i, err)
		}
		if vs.Len() != 3 {
			t.Fatalf("client %d: snapshot has %d entries, want 3", i, vs.Len())
		}
		for f := range st.Fields() {
			v, ok := vs.Get(f.Name)
			if !ok || !v.Equal(f.Value) {
				t.Errorf("client %d: snapshot[%s] = %v, want %v", i, f.Name, v, f.Value)
			}
		}

		// A change delivered to the first client must not stop the second
		// from receiving a full snapshot.
		if i == 0 {
			if _, err := st.Set("_dummy_int", "30"); err != nil {
				t.Fatal(err)
			}
			if _, err := read(t, conn, 2*time.Second); err != nil {
				t.Fatalf("reading delta: %v", err)
			}
		}
	}
}

func TestDeltaAfterSet(t *testing.T) {
	st := newStore(t)
	srv := startServer(t, st, Config{WriteTimeout: time.Second})
	conn := dial(t, srv)

	if _, err := read(t, conn, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Set("_dummy_float", "0.5"); err != nil {
		t.Fatal(err)
	}

	vs, err := read(t, conn, 2*time.Second)
	if err != nil {
		t.Fatalf("reading delta: %v", err)
	}
	if vs.Len() != 1 {
		t.Fatalf("delta has %d entries, want 1", vs.Len())
	}
	v, ok := vs.Get("_dummy_float")
	if !ok || !v.Equal(param.FloatValue(0.5)) {
		t.Errorf("delta = %v, want _dummy_float=0.5", v)
	}
	if _, ok := st.Pending(); ok {
		t.Error("slot should be cleared after delivery")
	}
}

func TestSingleDeliveryAcrossClients(t *testing.T) {
	st := newStore(t)
	srv := startServer(t, st, Config{})

	a, b := dial(t, srv), dial(t, srv)
	for _, c := range []net.Conn{a, b} {
		if _, err := read(t, c, 2*time.Second); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := st.Set("paused", "True"); err != nil {
		t.Fatal(err)
	}

	type result struct {
		vs  *param.Values
		err error
	}
	results := make(chan result, 2)
	for _, c := range []net.Conn{a, b} {
		c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		go func() {
			vs, err := wire.ReadValues(c)
			results <- result{vs, err}
		}()
	}

	received := 0
	for range 2 {
		r := <-results
		if r.err == nil {
			received++
			if v, _ := r.vs.Get("paused"); !v.Bool() {
				t.Errorf("delta paused = %v, want true", v)
			}
		}
	}
	if received != 1 {
		t.Errorf("%d clients received the delta, want exactly 1", received)
	}
	if v, _ := st.Get("paused"); !v.Bool() {
		t.Error("registry value changed by delivery")
	}
}

func TestDisconnectedClientDoesNotConsumeChange(t *testing.T) {
	st := newStore(t)
	srv := startServer(t, st, Config{})

	gone := dial(t, srv)
	if _, err := read(t, gone, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	gone.Close()

	live := dial(t, srv)
	if _, err := read(t, live, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := st.Set("_dummy_int", "1"); err != nil {
		t.Fatal(err)
	}
	vs, err := read(t, live, 2*time.Second)
	if err != nil {
		t.Fatalf("live client missed the delta: %v", err)
	}
	if v, _ := vs.Get("_dummy_int"); !v.Equal(param.IntValue(1)) {
		t.Errorf("delta = %v, want 1", v)
	}
}

func TestMaxClients(t *testing.T) {
	st := newStore(t)
	srv := startServer(t, st, Config{MaxClients: 1})

	first := dial(t, srv)
	if _, err := read(t, first, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	second := dial(t, srv)
	if _, err := read(t, second, 200*time.Millisecond); err == nil {
		t.Fatal("second client served while first still connected")
	}

	first.Close()
	if _, err := read(t, second, 2*time.Second); err != nil {
		t.Fatalf("second client not served after first left: %v", err)
	}
}

type failingListener struct {
	net.Listener
}

func (failingListener) Accept() (net.Conn, error) { return nil, errors.New("accept exploded") }

func TestAcceptFailureIsFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := New(newStore(t), Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	err = srv.Serve(context.Background(), failingListener{ln})
	if !errors.Is(err, ErrServerFatal) {
		t.Fatalf("Serve error = %v, want ErrServerFatal", err)
	}
}
