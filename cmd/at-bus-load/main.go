package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/at-bus-load/internal/pipeline"
	"github.com/at-bus-load/pkg/atbus/models"
)

type options struct {
	date        string
	tokenEnvVar string
	configPath  string
}

func main() {
	// .env is optional; the environment may already be populated
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "at-bus-load",
		Short: "Extract Auckland Transport bus stops and trips into the data warehouse",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := models.ParseDate(opts.date)
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.date, "date", "d", time.Now().Format(models.DateLayout), "Service date to process (YYYY-MM-DD)")
	root.PersistentFlags().StringVar(&opts.tokenEnvVar, "env-var-token", "", "Environment variable holding a GCP access token")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Optional YAML configuration file")

	root.AddCommand(
		pipelineCmd(opts, "extract", "Fetch, validate and stage stops and trips as Parquet",
			stepExtract, (*pipeline.Pipeline).Extract),
		pipelineCmd(opts, "load", "Load staged Parquet artifacts into the warehouse",
			stepLoad, (*pipeline.Pipeline).Load),
		pipelineCmd(opts, "run", "Extract and then load",
			stepExtract|stepLoad, (*pipeline.Pipeline).Run),
		checkCmd(opts),
	)
	return root
}

type pipelineFunc func(*pipeline.Pipeline, context.Context, string) (*pipeline.Report, error)

func pipelineCmd(opts *options, use, short string, steps step, fn pipelineFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, steps)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}

			report, err := fn(p, ctx, opts.date)
			if report != nil {
				for _, run := range report.Runs {
					a.log.Debug("Key finished", "key", run.Key.String(), "state", run.State)
				}
			}
			return err
		},
	}
}

func checkCmd(opts *options) *cobra.Command {
	var object string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report which artifacts are staged for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, stepCheck)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.check(ctx, cmd.OutOrStdout(), opts.date, object)
		},
	}
	cmd.Flags().StringVar(&object, "object", "", "Check a single object path instead of the date's artifacts")
	return cmd
}
