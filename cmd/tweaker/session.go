package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/tweaker/internal/api"
	"github.com/kalambet/tweaker/internal/autosave"
	"github.com/kalambet/tweaker/internal/config"
	"github.com/kalambet/tweaker/internal/reload"
	"github.com/kalambet/tweaker/internal/server"
	"github.com/kalambet/tweaker/internal/store"
	"github.com/kalambet/tweaker/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive editor and serve changes (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(true)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve parameters without the editor; change them over HTTP or MCP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(false)
	},
}

// newLogger builds the process logger. The editor owns the terminal, so in
// interactive mode logs go to log.file or nowhere.
func newLogger(cfg config.Config, interactive bool) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log.level %q: %w", cfg.Log.Level, err)
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case cfg.Log.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = func() { f.Close() }
	case interactive:
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// openStore loads the snapshot file, reporting what it found.
func openStore(path string) (*store.Store, error) {
	st, err := store.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if st.Len() == 0 {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			printStep("made new store")
			return st, nil
		}
	}
	printStep("loaded %d entries", st.Len())
	return st, nil
}

func saveStore(st *store.Store) error {
	if err := st.Save(); err != nil {
		return fmt.Errorf("saving %s: %w", st.Path(), err)
	}
	printSuccess("saved %d entries", st.Len())
	return nil
}

// runSession serves the store until the editor quits, a signal arrives, or
// a server fails. The store is saved on every one of those paths.
func runSession(interactive bool) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, interactive)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	writeTimeout, err := cfg.WriteTimeout()
	if err != nil {
		return err
	}
	autosaveEvery, err := cfg.AutosaveInterval()
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if saveErr := saveStore(st); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st.EnableNotifications()
	g, gctx := errgroup.WithContext(ctx)

	notify := server.New(st, server.Config{
		Addr:         cfg.NotifyAddr(),
		WriteTimeout: writeTimeout,
		MaxClients:   cfg.Server.MaxClients,
		Logger:       logger,
	})
	g.Go(func() error { return notify.ListenAndServe(gctx) })

	if autosaveEvery > 0 {
		saver := autosave.NewWorker(st, autosaveEvery, logger)
		g.Go(func() error {
			saver.Run(gctx)
			return nil
		})
	}

	if cfg.Store.Watch {
		g.Go(func() error { return reload.New(st, logger).Run(gctx) })
	}

	if cfg.HTTP.Port > 0 {
		srv := &http.Server{
			Addr: cfg.HTTPAddr(),
			Handler: api.NewHandler(api.Deps{
				Store:  st,
				Token:  cfg.HTTP.Token,
				MCP:    cfg.HTTP.MCPEnabled,
				Logger: logger,
			}),
			BaseContext: func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if interactive {
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, st)
		})
	} else {
		printStep("tweaker listening on %s", cfg.NotifyAddr())
		if cfg.HTTP.Port > 0 {
			printStep("HTTP API on http://%s", cfg.HTTPAddr())
		}
	}

	err = g.Wait()
	if !interactive && ctx.Err() != nil {
		fmt.Fprintln(stderr, "shutting down...")
	}
	return err
}
