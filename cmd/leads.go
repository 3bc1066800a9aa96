package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/redoraai/redora-cli/client"
	"github.com/redoraai/redora-cli/config"
	rderrors "github.com/redoraai/redora-cli/pkg/errors"
	"github.com/redoraai/redora-cli/pkg/leads"
	"github.com/redoraai/redora-cli/pkg/logging"
	"github.com/redoraai/redora-cli/pkg/observability"
)

// LeadsCommandDeps holds the dependencies for leads commands.
type LeadsCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
	Logger     logging.Logger

	// Connect opens the backend lead service. The returned func releases it.
	Connect func(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (leads.QueryService, func() error, error)

	// Options supplies coordinator options such as metrics and the publisher.
	Options func(cfg *config.CLIConfig) []leads.Option

	// Gatherer backs the triage --metrics-addr endpoint.
	Gatherer prometheus.Gatherer
}

// DefaultLeadsDeps returns the default dependencies for production use.
func DefaultLeadsDeps() *LeadsCommandDeps {
	return &LeadsCommandDeps{
		LoadConfig: config.LoadConfig,
		Logger:     logging.NewNopLogger(),
		Connect:    ConnectLeadService,
		Gatherer:   prometheus.DefaultGatherer,
	}
}

// ConnectLeadService dials the backend with the stored API token. Per-call
// debug lines go to logger.
func ConnectLeadService(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (leads.QueryService, func() error, error) {
	token, err := ResolveToken()
	if err != nil {
		return nil, nil, err
	}
	grpcClient, err := client.ConnectFromConfig(cfg, token, logger)
	if err != nil {
		return nil, nil, err
	}
	return client.NewLeadsClient(grpcClient, cfg.Timeout), grpcClient.Close, nil
}

// NewLeadsCommand creates the root leads command with all subcommands.
func NewLeadsCommand(deps *LeadsCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultLeadsDeps()
	}

	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Review and triage Reddit leads",
		Long: `Review and triage the Reddit posts RedoraAI matched against your keywords.

Leads live in four lists:
  new        posts waiting for a decision (filtered by relevancy score and subreddit)
  completed  posts you have already answered
  discarded  posts marked not relevant
  leads      posts promoted to sales leads

Moving a post out of 'new' is shown immediately and sent to the server. If the
server rejects the change the post goes back exactly where it was.`,
		Example: `  # Show new leads scoring 80 or more
  redora leads list --score 80

  # Show what was discarded, as JSON
  redora leads list --category discarded --output json

  # Mark one post as a lead
  redora leads classify 3f2a9c lead

  # Work through new posts interactively
  redora leads triage --subreddit golang`,
	}

	cmd.AddCommand(newLeadsListCommand(deps))
	cmd.AddCommand(newLeadsClassifyCommand(deps))
	cmd.AddCommand(newLeadsTriageCommand(deps))

	return cmd
}

// filterFlags are the flags shared by every leads subcommand.
type filterFlags struct {
	score     int
	subreddit string
	since     time.Duration
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.score, "score", config.DefaultRelevancy, "Minimum relevancy score (0-100) for new leads")
	cmd.Flags().StringVar(&f.subreddit, "subreddit", "", "Only show new leads from this subreddit")
	cmd.Flags().DurationVar(&f.since, "since", 0, "Only show new leads posted within this window (e.g. 72h)")
}

// build applies config defaults for flags the user did not set.
func (f *filterFlags) build(cmd *cobra.Command, cfg *config.CLIConfig, now time.Time) (leads.Filter, error) {
	filter := leads.Filter{
		RelevancyScore: cfg.Leads.DefaultScore,
		Subreddit:      cfg.Leads.DefaultSubreddit,
	}
	if cmd.Flags().Changed("score") {
		filter.RelevancyScore = f.score
	}
	if cmd.Flags().Changed("subreddit") {
		filter.Subreddit = f.subreddit
	}
	if f.since > 0 {
		filter.From = now.Add(-f.since)
	}
	return filter, filter.Validate()
}

func (d *LeadsCommandDeps) config() (*config.CLIConfig, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	if d.LoadConfig == nil {
		return config.DefaultConfig(), nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func (d *LeadsCommandDeps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger
}

// session connects and builds a coordinator. Call the returned func when done.
func (d *LeadsCommandDeps) session(ctx context.Context, cfg *config.CLIConfig, extra ...leads.Option) (*leads.Coordinator, func(), error) {
	if d.Connect == nil {
		return nil, nil, errors.New("leads service is not configured")
	}
	svc, closeFn, err := d.Connect(ctx, cfg, d.logger())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", cfg.ServerAddress, err)
	}

	opts := []leads.Option{
		leads.WithLogger(d.logger()),
		leads.WithTenantID(cfg.TenantID),
	}
	if d.Options != nil {
		opts = append(opts, d.Options(cfg)...)
	}
	opts = append(opts, extra...)

	release := func() {
		if closeFn == nil {
			return
		}
		if err := closeFn(); err != nil {
			d.logger().Debug("Closing lead service", logging.Err(err))
		}
	}
	return leads.NewCoordinator(svc, opts...), release, nil
}

func newLeadsListCommand(deps *LeadsCommandDeps) *cobra.Command {
	var (
		flags    filterFlags
		category string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads in one category",
		Long: `Load all four lead lists and print one of them.

The relevancy and subreddit filters narrow the 'new' list only; completed,
discarded and leads always show everything the server holds for you.`,
		Example: `  redora leads list
  redora leads list --category completed
  redora leads list --score 90 --subreddit startups --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			cat, err := leads.ParseCategory(category)
			if err != nil {
				return err
			}
			format, err := outputFormat(cfg, output)
			if err != nil {
				return err
			}
			filter, err := flags.build(cmd, cfg, time.Now())
			if err != nil {
				return err
			}

			coord, release, err := deps.session(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			if err := coord.LoadAll(cmd.Context(), filter); err != nil {
				return withHint(err)
			}
			return outputLeadList(cmd.OutOrStdout(), format, cat, coord.Snapshot())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&category, "category", "c", "new", "Category to show: new, completed, discarded, leads")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

func newLeadsClassifyCommand(deps *LeadsCommandDeps) *cobra.Command {
	var (
		flags  filterFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "classify <lead-id> <completed|discarded|lead>",
		Short: "Move a new lead to another category",
		Long: `Move one lead out of 'new'.

The lead must currently be in the 'new' list under the given filter. The
change is applied locally first and undone if the server rejects it.`,
		Example: `  redora leads classify 3f2a9c completed
  redora leads classify 3f2a9c discarded
  redora leads classify 3f2a9c lead --score 50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID := args[0]
			status, err := leads.ParseStatus(args[1])
			if err != nil {
				return err
			}
			if status == leads.StatusNew {
				return fmt.Errorf("leads can only be moved out of new: %w", rderrors.ErrValidation)
			}

			cfg, err := deps.config()
			if err != nil {
				return err
			}
			format, err := outputFormat(cfg, output)
			if err != nil {
				return err
			}
			filter, err := flags.build(cmd, cfg, time.Now())
			if err != nil {
				return err
			}

			coord, release, err := deps.session(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			if err := coord.LoadAll(cmd.Context(), filter); err != nil {
				return withHint(err)
			}
			switch cat, ok := coord.Snapshot().Locate(leadID); {
			case !ok:
				return fmt.Errorf("lead %s is not in any list for score >= %d: %w", leadID, filter.RelevancyScore, rderrors.ErrNotFound)
			case cat != leads.CategoryNew:
				return fmt.Errorf("lead %s is already in %s: %w", leadID, cat, rderrors.ErrInvalidState)
			}

			if err := coord.Classify(cmd.Context(), leadID, status); err != nil {
				return withHint(err)
			}
			dest, _ := leads.CategoryFor(status)
			return outputClassifyResult(cmd.OutOrStdout(), format, leadID, dest, coord.Snapshot())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

func newLeadsTriageCommand(deps *LeadsCommandDeps) *cobra.Command {
	var (
		flags       filterFlags
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Work through new leads interactively",
		Long: `Step through the 'new' list one lead at a time.

Commands (one per line):
  c            mark the selected lead completed
  d            discard the selected lead
  l            promote the selected lead to a sales lead
  n / p        select the next / previous new lead
  s <id>       select a lead by id
  f <score> [subreddit]
               change the filter and reload
  r            reload with the current filter
  h            show this help
  q            quit

After each change the selection moves to the lead that took the old one's
place, so repeated 'd' walks down the list.`,
		Example: `  redora leads triage
  redora leads triage --score 85 --subreddit saas
  redora leads triage --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			filter, err := flags.build(cmd, cfg, time.Now())
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				gatherer := deps.Gatherer
				if gatherer == nil {
					gatherer = prometheus.DefaultGatherer
				}
				srv, err := observability.StartMetricsServer(metricsAddr, gatherer, "redora-cli", deps.logger())
				if err != nil {
					return fmt.Errorf("starting metrics server: %w", err)
				}
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(ctx)
				}()
				fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", srv.Addr())
			}

			coord, release, err := deps.session(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			t := &triageSession{
				coord:  coord,
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
				filter: filter,
			}
			return t.run(cmd.Context())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while triaging")

	return cmd
}

// outputFormat resolves the --output flag against the configured default.
func outputFormat(cfg *config.CLIConfig, flag string) (config.OutputFormat, error) {
	format := cfg.OutputFormat
	if flag != "" {
		format = config.OutputFormat(flag)
	}
	if !format.IsValid() {
		return "", fmt.Errorf("invalid output format %q (must be text, json, or yaml): %w", format, rderrors.ErrValidation)
	}
	return format, nil
}

// withHint appends the suggested action for classified errors.
func withHint(err error) error {
	code := rderrors.CodeOf(err)
	if code == "" {
		return err
	}
	if action := rderrors.GetSuggestedAction(code); action != "" {
		return &hintError{err: err, hint: action}
	}
	return err
}

type hintError struct {
	err  error
	hint string
}

func (e *hintError) Error() string { return e.err.Error() + "\n  hint: " + e.hint }
func (e *hintError) Unwrap() error { return e.err }

// writerOrDiscard keeps output helpers nil-safe in tests.
func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
