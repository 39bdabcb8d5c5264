package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kalambet/tweaker/client"
	"github.com/kalambet/tweaker/internal/api"
	"github.com/kalambet/tweaker/internal/config"
	"github.com/kalambet/tweaker/internal/param"
	"github.com/kalambet/tweaker/internal/store"
)

// --- register ---

var registerCmd = &cobra.Command{
	Use:   "register <name> <int|float|bool> <initial> [increment]",
	Short: "Add a parameter to the saved store",
	Long: `Add a parameter to the saved store.

The kind is fixed at registration. Every later value is coerced into it.
The increment is what the editor's +/- keys step by; without one a number
cannot be stepped.

Examples:
  tweaker register speed float 1.5 0.1
  tweaker register lives int 3 1
  tweaker register paused bool False`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		running := sessionRunning(cfg)

		increment := ""
		if len(args) == 4 {
			increment = args[3]
		}
		n, err := registerParam(cfg.Store.Path, args[0], args[1], args[2], increment)
		if err != nil {
			return err
		}
		printSuccess("saved %d entries", n)
		if running {
			if cfg.Store.Watch {
				printStep("the running session will pick up %q", args[0])
			} else {
				printWarning("a tweaker session is running with store.watch off; it will drop %q when it saves", args[0])
			}
		}
		return nil
	},
}

// registerParam adds one parameter to the store at path and saves it,
// returning the new entry count.
func registerParam(path, name, kind, initial, increment string) (int, error) {
	k, err := param.ParseKind(kind)
	if err != nil {
		return 0, err
	}
	v, err := param.Parse(k, initial)
	if err != nil {
		return 0, fmt.Errorf("initial value: %w", err)
	}
	var inc param.Value
	if increment != "" {
		if inc, err = param.Parse(k, increment); err != nil {
			return 0, fmt.Errorf("increment: %w", err)
		}
	}

	st, err := openStore(path)
	if err != nil {
		return 0, err
	}
	if err := st.Register(name, v, inc); err != nil {
		return 0, err
	}
	if err := st.Save(); err != nil {
		return 0, fmt.Errorf("saving %s: %w", path, err)
	}
	return st.Len(), nil
}

func sessionRunning(cfg config.Config) bool {
	if cfg.HTTP.Port == 0 {
		return false
	}
	c := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := c.Get("http://" + cfg.HTTPAddr() + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := store.Load(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", cfg.Store.Path, err)
		}
		if st.Len() == 0 {
			printWarning("no parameters registered in %s", st.Path())
			return nil
		}
		fmt.Fprintln(stdout, renderFields(st))
		return nil
	},
}

func renderFields(st *store.Store) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "KIND", "VALUE", "INCREMENT")
	if !noColor {
		header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cell := lipgloss.NewStyle().Padding(0, 1)
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	}
	for f := range st.Fields() {
		inc := "-"
		if f.Steppable() {
			inc = f.Increment.String()
		}
		t = t.Row(f.Name, f.Value.Kind().String(), f.Value.String(), inc)
	}
	return t.String()
}

// --- set ---

var setCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Set a parameter in the running session",
	Long: `Set a parameter in the running session through its HTTP API.

The value is coerced the same way the editor does it. A bool is true only
for the literal True.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		f, err := setParam(cmd.Context(), c, args[0], args[1])
		if err != nil {
			return err
		}
		printSuccess("%s = %s", f.Name, f.Value)
		return nil
	},
}

func setParam(ctx context.Context, c *apiClient, name, raw string) (api.FieldView, error) {
	resp, err := c.put(ctx, "/params/"+url.PathEscape(name), api.SetRequest{Value: raw})
	if err != nil {
		return api.FieldView{}, err
	}
	var f api.FieldView
	if err := decodeJSON(resp, &f); err != nil {
		return api.FieldView{}, err
	}
	return f, nil
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect like a consumer and print every message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			addr = cfg.NotifyAddr()
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reconnect, _ := cmd.Flags().GetBool("reconnect")
		if !reconnect {
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			c, err := client.Dial(dialCtx, addr, client.WithUpdateHandler(printValues))
			if err != nil {
				return err
			}
			return watchUntilDone(ctx, c, addr)
		}

		for {
			c, err := client.DialRetry(ctx, addr, client.RetryOptions{
				OnRetry: func(err error, next time.Duration) {
					printWarning("%v; retrying in %s", err, next.Round(time.Millisecond))
				},
			}, client.WithUpdateHandler(printValues))
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			err = watchUntilDone(ctx, c, addr)
			if err == nil {
				return nil
			}
			printWarning("connection lost: %v", err)
		}
	},
}

// watchUntilDone prints messages from c until ctx ends, returning nil, or
// the connection drops, returning why.
func watchUntilDone(ctx context.Context, c *client.Client, addr string) error {
	defer c.Close()
	printStep("connected to %s", addr)
	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		return c.Err()
	}
}

func printValues(vs *param.Values) {
	b, err := json.Marshal(vs)
	if err != nil {
		printError("encoding message: %v", err)
		return
	}
	fmt.Fprintf(stdout, "%s %s\n", colorize(colorBlue, time.Now().Format("15:04:05.000")), b)
}

func init() {
	watchCmd.Flags().String("addr", "", "notification server address (default from config)")
	watchCmd.Flags().Bool("reconnect", false, "keep reconnecting with backoff when the session goes away")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and whether a session is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		switch {
		case cfg.HTTP.Port == 0:
			printStatus("Session", "unknown (HTTP API disabled)")
		case sessionRunning(cfg):
			printStatus("Session", "running, HTTP API on %s", cfg.HTTPAddr())
		default:
			printStatus("Session", "stopped")
		}
		printStatus("Notify address", "%s", cfg.NotifyAddr())
		printStatus("Store", "%s", cfg.Store.Path)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
