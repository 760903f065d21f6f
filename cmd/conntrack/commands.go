package main

import (
	"time"

	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://127.0.0.1:9995"

// =============================================================================
// Serve Command
// =============================================================================

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the connection tracker and its Status API",
		Long: `Run the connection tracker.

The server will:
1. Load configuration from the given file, or use built-in defaults
2. Connect to the MQTT broker when MQTT heartbeat ingestion is enabled
3. Start the sweeper, the MQTT ingestion and the Status API

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  conntrack serve
  conntrack serve --config /etc/conntrack/config.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (built-in defaults when empty)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// =============================================================================
// Ctl Commands
// =============================================================================

type ctlOptions struct {
	url     string
	timeout time.Duration
}

func buildCtlCmd() *cobra.Command {
	opts := &ctlOptions{}

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Query and drive a running conntrack through its Status API",
	}
	cmd.PersistentFlags().StringVar(&opts.url, "url", defaultAPIURL, "Status API base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per request timeout")

	cmd.AddCommand(
		buildCtlListCmd(opts),
		buildCtlStatusCmd(opts),
		buildCtlRegisterCmd(opts),
		buildCtlEvictCmd(opts),
		buildCtlBeatCmd(opts),
		buildCtlHealthCmd(opts),
		buildCtlConfigCmd(opts),
		buildCtlReloadCmd(opts),
	)
	return cmd
}

func buildCtlListCmd(opts *ctlOptions) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked connections in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCtlList(cmd, opts, statuses)
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only list connections in these statuses (connecting, alive, stale)")
	return cmd
}

func buildCtlStatusCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one tracked connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCtlStatus(cmd, opts, args[0])
		},
	}
}

func buildCtlRegisterCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register [id]",
		Short: "Start tracking a connection; without an id the server generates one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runCtlRegister(cmd, opts, id)
		},
	}
}

func buildCtlEvictCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <id>",
		Short: "Stop tracking a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCtlEvict(cmd, opts, args[0])
		},
	}
}

type beatOptions struct {
	interval time.Duration
	broker   string
	topic    string
	qos      int
}

func buildCtlBeatCmd(opts *ctlOptions) *cobra.Command {
	beat := &beatOptions{}
	cmd := &cobra.Command{
		Use:   "beat <id>",
		Short: "Send heartbeats for a connection",
		Long: `Send one heartbeat for a connection, or keep sending them every --interval
until interrupted. Heartbeats go to the Status API unless --broker is set, in which
case they are published over MQTT.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCtlBeat(cmd, opts, beat, args[0])
		},
	}
	cmd.Flags().DurationVarP(&beat.interval, "interval", "i", 0, "Keep sending at this interval (0 sends once)")
	cmd.Flags().StringVar(&beat.broker, "broker", "", "Publish over MQTT to this broker instead of the Status API")
	cmd.Flags().StringVar(&beat.topic, "topic", "conntrack/heartbeat", "MQTT topic prefix")
	cmd.Flags().IntVar(&beat.qos, "qos", 1, "MQTT QoS")
	return cmd
}

func buildCtlHealthCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the health report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCtlHealth(cmd, opts)
		},
	}
}

func buildCtlConfigCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration of the running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCtlConfig(cmd, opts, false)
		},
	}
}

func buildCtlReloadCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the configuration file of the running instance",
		Long: `Make the running instance re-read its configuration file. Only
tracker.stale_after, tracker.evict_after and tracker.max_connections take effect;
other settings need a restart. Prints the effective configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCtlConfig(cmd, opts, true)
		},
	}
}

// =============================================================================
// Config Commands
// =============================================================================

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(buildConfigInitCmd(), buildConfigValidateCmd())
	return cmd
}

func buildConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a configuration file holding every default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Load a configuration file and report problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, args[0])
		},
	}
}
