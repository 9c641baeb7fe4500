package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goclaw/manifest/config"
	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/storage"
	"github.com/goclaw/manifest/pkg/version"
)

type serveFlags struct {
	configPath string
	port       int
	logLevel   string
	debug      bool
	watch      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "manifest",
		Short:         "Manifest routes chat completions to a model tier by request complexity",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newScoreCommand(), newKeysCommand(), newVersionCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the routing proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to configuration file")
	cmd.Flags().IntVar(&f.port, "port", 0, "Override server port")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Override log level")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug mode")
	cmd.Flags().BoolVar(&f.watch, "watch", true, "Reload the config file when it changes")
	return cmd
}

func newScoreCommand() *cobra.Command {
	var (
		configPath string
		tools      int
	)
	cmd := &cobra.Command{
		Use:   "score <text>",
		Short: "Score a prompt and print the tier decision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, nil)
			if err != nil {
				return err
			}
			return scorePrompt(cmd.OutOrStdout(), cfg, strings.Join(args, " "), tools)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.Flags().IntVar(&tools, "tools", 0, "Number of tools attached to the request")
	return cmd
}

func newKeysCommand() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Agent key helpers",
	}
	keys.AddCommand(&cobra.Command{
		Use:   "hash <token>",
		Short: "Print the stored hash of an agent key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), storage.HashAPIKey(args[0]))
			return err
		},
	})
	return keys
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd.OutOrStdout())
		},
	}
}

func serve(ctx context.Context, f serveFlags) error {
	overrides := buildOverrides(f)

	cfg, err := config.Load(f.configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		return err
	}

	log := newLogger(cfg, f.debug)
	logger.SetGlobal(log)
	defer log.Close()

	log.Info("Starting Manifest",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		return err
	}

	if f.configPath != "" && f.watch {
		watcher, err := config.NewWatcher(f.configPath, config.NewLoader(),
			config.WithOverrides(overrides), config.WithLogger(log))
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			watcher.OnChange(a.applyConfig)
			go func() {
				if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	return a.run(ctx)
}

func newLogger(cfg *config.Config, debug bool) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

func buildOverrides(f serveFlags) map[string]interface{} {
	overrides := make(map[string]interface{})

	if f.port != 0 {
		overrides["server.port"] = f.port
	}
	if f.logLevel != "" {
		overrides["log.level"] = f.logLevel
	}
	if f.debug {
		overrides["app.debug"] = true
	}

	return overrides
}

func scorePrompt(w io.Writer, cfg *config.Config, text string, tools int) error {
	scorer, err := cfg.Scoring.NewScorer()
	if err != nil {
		return err
	}

	in := scoring.Input{Messages: []scoring.Message{{Role: "user", Content: text}}}
	for i := 0; i < tools; i++ {
		in.Tools = append(in.Tools, map[string]any{"type": "function"})
	}
	result := scorer.Score(in)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"tier":       result.Tier,
		"score":      result.Score,
		"confidence": result.Confidence,
		"reason":     result.Reason,
	})
}

func printVersion(w io.Writer) error {
	_, err := io.WriteString(w, version.String())
	return err
}
