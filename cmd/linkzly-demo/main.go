// Command linkzly-demo exercises the Linkzly Go SDK against a running host
// service: open a deep link, listen for notifications, or fire tracking
// calls.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	linkzly "github.com/MarenTech/linkzly-go"
)

type demoConfig struct {
	BridgeDSN           string `yaml:"bridge_dsn"`
	SDKKey              string `yaml:"sdk_key"`
	Environment         string `yaml:"environment"`
	AutoHandleDeepLinks *bool  `yaml:"auto_handle_deep_links"`
	AutoTrackAppOpens   *bool  `yaml:"auto_track_app_opens"`
}

type rootOptions struct {
	configPath  string
	bridgeDSN   string
	sdkKey      string
	environment string
	verbose     bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "linkzly-demo",
		Short:         "Exercise the Linkzly Go SDK",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.bridgeDSN, "dsn", "", "bridge DSN, e.g. http://127.0.0.1:9123")
	cmd.PersistentFlags().StringVar(&opts.sdkKey, "key", "", "Linkzly SDK key")
	cmd.PersistentFlags().StringVar(&opts.environment, "env", "", "environment: production or sandbox")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newOpenCommand(opts))
	cmd.AddCommand(newListenCommand(opts))
	cmd.AddCommand(newTrackCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	return cmd
}

func newOpenCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Feed a deep link through the ingestion pipeline and print the delivered record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			delivered := false
			client.AddDeepLinkListener(func(d linkzly.DeepLinkData) {
				delivered = true
				printRecord(cmd, d)
			})
			if err := client.HandleDeepLink(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !delivered {
				fmt.Fprintln(cmd.OutOrStdout(), "suppressed as duplicate")
			}
			return nil
		},
	}
}

func newListenCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print every deep-link notification until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			client.AddDeepLinkListener(func(d linkzly.DeepLinkData) {
				printRecord(cmd, d)
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintln(cmd.OutOrStdout(), "listening for deep links, ctrl-c to stop")
			<-ctx.Done()
			return nil
		},
	}
}

func newTrackCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track <name> [key=value ...]",
		Short: "Send a tracking event through the bridge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			params := map[string]any{}
			for _, pair := range args[1:] {
				key, value, ok := strings.Cut(pair, "=")
				if !ok || key == "" {
					return fmt.Errorf("malformed parameter %q, expected key=value", pair)
				}
				params[key] = value
			}
			if err := client.TrackEvent(cmd.Context(), args[0], params); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tracked", args[0])
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show visitor id and pending event count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			visitorID, err := client.VisitorID(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := client.PendingEventCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "visitor: %s\npending events: %d\n", visitorID, pending)
			if current, ok := client.CurrentDeepLink(); ok {
				fmt.Fprint(cmd.OutOrStdout(), "current deep link: ")
				printRecord(cmd, current)
			}
			return nil
		},
	}
}

func buildClient(opts *rootOptions) (*linkzly.Client, func(), error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.bridgeDSN != "" {
		cfg.BridgeDSN = opts.bridgeDSN
	}
	if opts.sdkKey != "" {
		cfg.SDKKey = opts.sdkKey
	}
	if opts.environment != "" {
		cfg.Environment = opts.environment
	}
	if cfg.BridgeDSN == "" {
		cfg.BridgeDSN = "http://127.0.0.1:9123"
	}
	if cfg.Environment == "" {
		cfg.Environment = string(linkzly.EnvironmentSandbox)
	}
	if cfg.SDKKey == "" {
		return nil, nil, errors.New("an sdk key is required (--key or config file)")
	}

	logger, err := buildLogger(opts.verbose)
	if err != nil {
		return nil, nil, err
	}

	client, err := linkzly.New(linkzly.Options{
		BridgeDSN:           cfg.BridgeDSN,
		AutoHandleDeepLinks: cfg.AutoHandleDeepLinks,
		AutoTrackAppOpens:   cfg.AutoTrackAppOpens,
		Logger:              logger,
	})
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Configure(ctx, cfg.SDKKey, linkzly.Environment(cfg.Environment)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("configure failed: %w", err)
	}
	cleanup := func() {
		_ = client.Close()
		_ = logger.Sync()
	}
	return client, cleanup, nil
}

func loadConfig(path string) (demoConfig, error) {
	var cfg demoConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

func printRecord(cmd *cobra.Command, d linkzly.DeepLinkData) {
	data, err := json.Marshal(d)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "encode record:", err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}
