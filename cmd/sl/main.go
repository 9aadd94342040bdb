package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"segmentline/internal/app"
	"segmentline/internal/config"
	"segmentline/internal/domain"
	"segmentline/internal/engine"
	"segmentline/internal/logging"
	"segmentline/internal/metrics"
	"segmentline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Segmentline CLI",
	Long: `Segmentline composes audience segments from a fixed catalog of trait schemas
and sends them to a collector endpoint.
- Catalog: the fixed list of schemas (value + label) from segmentline.yml.
- Draft: a segment name plus an ordered list of slots; each slot holds one schema or nothing.
- A schema picked in one slot is not offered in any other slot.
- Preview: the exact JSON body that submit will POST to the collector.
- Submit: validates the draft, sends it once, and reports success or failure.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SEGMENTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory holding segmentline.yml")
	rootCmd.PersistentFlags().String("config", "", "explicit config file (overrides workspace lookup)")
	rootCmd.PersistentFlags().String("collector-url", "", "collector endpoint url")
	rootCmd.PersistentFlags().Int("timeout", 0, "collector timeout in seconds")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	for _, name := range []string{"workspace", "config", "collector-url", "timeout", "log-level", "json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(remoteCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the compose HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt runtime) error {
				if err := rt.Config.RequireCollector(); err != nil {
					return err
				}
				if !cmd.Flags().Changed("addr") && rt.Config.Server.Addr != "" {
					addr = rt.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && rt.Config.Server.BasePath != "" {
					basePath = rt.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					Session:  rt.Engine.NewSession(),
					BasePath: basePath,
					Metrics:  rt.Metrics,
					Log:      rt.Log,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-cmd.Context().Done()
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(ctx)
				}()
				rt.Log.Info("serving compose api", "addr", addr, "base_path", basePath, "collector", rt.Config.Collector.URL)
				fmt.Printf("Serving Segmentline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List selectable schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt runtime) error {
				entries := rt.Engine.Catalog.Entries()
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Value", "Label"})
				for i, e := range entries {
					tw.AppendRow(table.Row{i + 1, e.Value, e.Label})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func previewCmd() *cobra.Command {
	var name string
	var schemas []string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the payload a draft would send, without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt runtime) error {
				s, err := composeDraft(rt.Engine, name, schemas)
				if err != nil {
					return err
				}
				v := s.View()
				if viper.GetBool("json") {
					return printJSON(v)
				}
				printAvailability(v)
				return printJSON(v.Preview)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "segment name")
	cmd.Flags().StringSliceVar(&schemas, "schema", nil, "schema values in slot order (repeat or comma-separate)")
	return cmd
}

func sendCmd() *cobra.Command {
	var name string
	var schemas []string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Compose a segment and submit it to the collector once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt runtime) error {
				if err := rt.Config.RequireCollector(); err != nil {
					return err
				}
				s, err := composeDraft(rt.Engine, name, schemas)
				if err != nil {
					return err
				}
				v, err := s.Submit(cmd.Context())
				if viper.GetBool("json") {
					if perr := printJSON(v); perr != nil {
						return perr
					}
				} else if v.Result != nil {
					fmt.Println(v.Result.Message)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "segment name")
	cmd.Flags().StringSliceVar(&schemas, "schema", nil, "schema values in slot order (repeat or comma-separate)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create segmentline.yml",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			renderConfig(os.Stdout, cfg)
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default segmentline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("collector-url"))), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

type runtime struct {
	Config  *config.Config
	Engine  engine.Engine
	Metrics *metrics.Recorder
	Log     *slog.Logger
}

func resolveConfig() (*config.Config, error) {
	return app.ResolveConfig(viper.GetString("workspace"), app.Overrides{
		ConfigFile:     viper.GetString("config"),
		CollectorURL:   viper.GetString("collector-url"),
		TimeoutSeconds: viper.GetInt("timeout"),
		LogLevel:       viper.GetString("log-level"),
	})
}

func withRuntime(fn func(runtime) error) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logging.New(level)
	rec := metrics.New()
	e, err := app.BuildEngine(cfg, log, rec)
	if err != nil {
		return err
	}
	return fn(runtime{Config: cfg, Engine: e, Metrics: rec, Log: log})
}

// composeDraft replays CLI arguments as compose intents on a fresh session.
func composeDraft(e engine.Engine, name string, schemas []string) (*engine.Session, error) {
	s := e.NewSession()
	s.Open()
	if _, err := s.SetName(name); err != nil {
		return nil, err
	}
	for i, value := range schemas {
		if i > 0 {
			if _, err := s.AddSlot(); err != nil {
				return nil, err
			}
		}
		if _, err := s.SetSlot(i, strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
	}
	return s, nil
}

func printAvailability(v domain.View) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Slot", "Selected", "Other choices"})
	for i, sel := range v.Slots {
		var others []string
		for _, e := range v.Availability[i] {
			if e.Value != sel {
				others = append(others, e.Value)
			}
		}
		if sel == "" {
			sel = "-"
		}
		tw.AppendRow(table.Row{i, sel, strings.Join(others, ", ")})
	}
	tw.Render()
}

func renderConfig(w io.Writer, cfg *config.Config) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Key", "Value"})
	tw.AppendRow(table.Row{"collector.url", cfg.Collector.URL})
	tw.AppendRow(table.Row{"collector.timeout", cfg.Timeout()})
	tw.AppendRow(table.Row{"server.addr", cfg.Server.Addr})
	tw.AppendRow(table.Row{"server.base_path", cfg.Server.BasePath})
	tw.AppendRow(table.Row{"log.level", cfg.Log.Level})
	tw.AppendSeparator()
	for i, e := range cfg.Catalog {
		tw.AppendRow(table.Row{fmt.Sprintf("catalog[%d]", i), fmt.Sprintf("%s (%s)", e.Value, e.Label)})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
