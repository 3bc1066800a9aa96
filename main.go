// Package main provides the redora CLI entry point.
// redora is the command-line client for triaging RedoraAI Reddit leads.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/redoraai/redora-cli/client"
	"github.com/redoraai/redora-cli/cmd"
	"github.com/redoraai/redora-cli/config"
	"github.com/redoraai/redora-cli/pkg/buildinfo"
	rderrors "github.com/redoraai/redora-cli/pkg/errors"
	"github.com/redoraai/redora-cli/pkg/events"
	"github.com/redoraai/redora-cli/pkg/leads"
	"github.com/redoraai/redora-cli/pkg/logging"
	"github.com/redoraai/redora-cli/pkg/observability"
)

const serviceName = "redora-cli"

// Global flags and state.
var (
	serverAddr   string
	timeout      time.Duration
	outputFormat string
	tenantID     string
	debug        bool
	insecure     bool

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig

	// logger writes to stderr once the configuration is loaded.
	logger = logging.NewNopLogger()

	// grpcClient is the shared gRPC client for the status command.
	grpcClient *client.GRPCClient

	// registry collects the coordinator metrics served by triage --metrics-addr.
	registry    = prometheus.NewRegistry()
	leadMetrics = observability.NewLeadMetrics(registry)

	publisherOnce sync.Once
	publisher     events.Publisher = events.NopPublisher{}

	leadsDeps = &cmd.LeadsCommandDeps{
		LoadConfig: config.LoadConfig,
		Logger:     logger,
		Connect:    cmd.ConnectLeadService,
		Options:    coordinatorOptions,
		Gatherer:   registry,
	}
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "redora",
	Short: "RedoraAI CLI - triage Reddit leads from the terminal",
	Long: `redora is the command-line client for RedoraAI.

RedoraAI watches Reddit for posts that match your keywords and scores how
relevant each one is. redora lets you review those posts and sort them into
completed, discarded and sales leads without leaving the terminal.

COMMON WORKFLOWS:
  First run:     redora config init  →  redora auth login  →  redora status
  Review leads:  redora leads list --score 80
  Triage:        redora leads triage

Run 'redora <command> --help' for flags and examples. Most commands accept
--output json for scripting.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		switch c.Name() {
		case "version", "help", "completion", "init":
			return nil
		}

		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = loaded
		applyFlagOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger = logging.NewLogger(cfg.LoggingConfig())
		leadsDeps.Config = cfg
		leadsDeps.Logger = logger
		logger.Debug("Configuration loaded",
			logging.F("server", cfg.ServerAddress),
			logging.F("tenant_id", cfg.TenantID),
			logging.F("command", c.CommandPath()),
		)
		return nil
	},
	PersistentPostRunE: func(c *cobra.Command, args []string) error {
		return closeResources()
	},
}

// applyFlagOverrides applies global flags on top of file and environment values.
func applyFlagOverrides(c *config.CLIConfig) {
	if serverAddr != "" {
		c.ServerAddress = serverAddr
	}
	if timeout != 0 {
		c.Timeout = timeout
	}
	if outputFormat != "" {
		c.OutputFormat = config.OutputFormat(outputFormat)
	}
	if tenantID != "" {
		c.TenantID = tenantID
	}
	if debug {
		c.Debug = true
	}
	if insecure {
		c.Insecure = true
	}
}

func coordinatorOptions(c *config.CLIConfig) []leads.Option {
	return []leads.Option{
		leads.WithMetrics(leadMetrics),
		leads.WithTracer(observability.NewTracer()),
		leads.WithPublisher(eventPublisher(c)),
	}
}

// eventPublisher connects to Redis on first use when events are configured.
// A Redis that cannot be reached degrades to no publishing.
func eventPublisher(c *config.CLIConfig) events.Publisher {
	publisherOnce.Do(func() {
		if !c.Events.Enabled() {
			return
		}
		p, err := events.NewRedisPublisherFromConfig(context.Background(), c.RedisConfig(), logger)
		if err != nil {
			logger.Warn("Event publishing disabled", logging.Err(err))
			return
		}
		publisher = p
	})
	return publisher
}

func closeResources() error {
	var firstErr error
	if grpcClient != nil {
		if err := grpcClient.Close(); err != nil {
			firstErr = err
		}
		grpcClient = nil
	}
	if err := publisher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	publisher = events.NopPublisher{}
	return firstErr
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the redora CLI.

Examples:
  redora version
  redora version --output json`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get(serviceName)
		out := c.OutOrStdout()

		switch config.OutputFormat(outputFormat) {
		case config.OutputFormatJSON:
			return outputJSON(out, info)
		case config.OutputFormatYAML:
			return yaml.NewEncoder(out).Encode(info)
		}
		fmt.Fprintf(out, "redora version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
		return nil
	},
}

// statusCmd checks the connection to the LeadService.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check connection status to the RedoraAI backend",
	Long: `Check that the LeadService endpoint is reachable and serving.

This dials the configured server, sends the stored API token, and asks the
standard gRPC health service about redora.leads.v1.LeadService.

Examples:
  redora status
  redora status --server api.redora.ai:443 --output json`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()

		if err := initClient(); err != nil {
			fmt.Fprintf(out, "Connection status: UNREACHABLE\n")
			fmt.Fprintf(out, "  Server:  %s\n", cfg.ServerAddress)
			fmt.Fprintf(out, "  Error:   %s\n", err)
			return nil
		}

		ctx, cancel := context.WithTimeout(c.Context(), cfg.Timeout)
		defer cancel()

		status, err := grpcClient.GetStatus(ctx, client.LeadServiceName)
		if err != nil {
			fmt.Fprintf(out, "Connection status: UNHEALTHY\n")
			fmt.Fprintf(out, "  Server:  %s\n", grpcClient.ServerAddress())
			fmt.Fprintf(out, "  State:   %s\n", grpcClient.ConnectionState())
			fmt.Fprintf(out, "  Error:   %s\n", err)
			return nil
		}

		switch cfg.OutputFormat {
		case config.OutputFormatJSON:
			return outputJSON(out, status)
		case config.OutputFormatYAML:
			return yaml.NewEncoder(out).Encode(status)
		}

		health := "HEALTHY"
		if !status.Serving {
			health = "NOT SERVING"
		}
		fmt.Fprintf(out, "Connection status: %s\n", health)
		fmt.Fprintf(out, "  Server:  %s\n", status.Address)
		fmt.Fprintf(out, "  State:   %s\n", status.State)
		fmt.Fprintf(out, "  Health:  %s\n", status.Status)
		fmt.Fprintf(out, "  Latency: %s\n", status.Latency.Round(time.Millisecond))
		return nil
	},
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the redora CLI configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after the file, REDORA_* variables and flags are applied.`,
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch cfg.OutputFormat {
		case config.OutputFormatJSON:
			return outputJSON(out, cfg)
		case config.OutputFormatYAML:
			return yaml.NewEncoder(out).Encode(cfg)
		}

		configPath, _ := config.ConfigPath()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file:       %s\n", configPath)
		fmt.Fprintf(out, "  Server address:    %s\n", cfg.ServerAddress)
		fmt.Fprintf(out, "  Timeout:           %s\n", cfg.Timeout)
		fmt.Fprintf(out, "  Output format:     %s\n", cfg.OutputFormat)
		fmt.Fprintf(out, "  Tenant ID:         %s\n", valueOrDefault(cfg.TenantID, "(not set)"))
		fmt.Fprintf(out, "  Debug:             %t\n", cfg.Debug)
		fmt.Fprintf(out, "  Insecure:          %t\n", cfg.Insecure)
		fmt.Fprintf(out, "  TLS:               %t\n", cfg.TLS.Enabled)
		fmt.Fprintf(out, "  Default score:     %d\n", cfg.Leads.DefaultScore)
		fmt.Fprintf(out, "  Default subreddit: %s\n", valueOrDefault(cfg.Leads.DefaultSubreddit, "(all)"))
		fmt.Fprintf(out, "  Events:            %s\n", valueOrDefault(cfg.Events.RedisAddr, "(disabled)"))
		fmt.Fprintf(out, "  Log level:         %s\n", valueOrDefault(cfg.Log.Level, "info"))
		return nil
	},
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'redora config show' to view current settings.")
			return nil
		}

		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "\nDefault settings:")
		fmt.Fprintf(out, "  Server address: %s\n", defaultCfg.ServerAddress)
		fmt.Fprintf(out, "  Timeout:        %s\n", defaultCfg.Timeout)
		fmt.Fprintf(out, "  Default score:  %d\n", defaultCfg.Leads.DefaultScore)
		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  ` + strings.Join(config.SettableKeys, "\n  ") + `

Examples:
  redora config set server_address api.redora.ai:443
  redora config set leads.default_score 80
  redora config set events.redis_addr localhost:6379`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(c *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.SettableKeys, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(c *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		// Start from the file alone so env and flag overrides are not persisted.
		currentCfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		if err := currentCfg.Set(key, value); err != nil {
			return err
		}
		if err := config.SaveConfig(currentCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for redora.

Bash:
  $ source <(redora completion bash)

Zsh:
  $ redora completion zsh > "${fpath[1]}/_redora"

Fish:
  $ redora completion fish | source

PowerShell:
  PS> redora completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

// initClient connects the shared gRPC client if not already connected.
func initClient() error {
	if grpcClient != nil {
		return nil
	}
	token, err := cmd.ResolveToken()
	if err != nil {
		return err
	}
	c, err := client.ConnectFromConfig(cfg, token, logger)
	if err != nil {
		return err
	}
	grpcClient = c
	return nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "LeadService address (host:port)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (e.g., 30s, 1m)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant ID sent with every request")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "connect without TLS")

	rootCmd.AddGroup(
		&cobra.Group{ID: "leads", Title: "Leads:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	leadsCmd := cmd.NewLeadsCommand(leadsDeps)
	leadsCmd.GroupID = "leads"
	rootCmd.AddCommand(leadsCmd)

	statusCmd.GroupID = "ops"
	rootCmd.AddCommand(statusCmd)

	authCmd := cmd.NewAuthCommand(nil)
	authCmd.GroupID = "setup"
	rootCmd.AddCommand(authCmd)

	configCmd.GroupID = "setup"
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)

	completionCmd.GroupID = "setup"
	rootCmd.AddCommand(completionCmd)

	versionCmd.GroupID = "setup"
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeResources(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(rderrors.ExitCode(err))
	}
}
