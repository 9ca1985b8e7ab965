//go:build linux

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrepp/proclife/cmd/proclife/internal/ui"
	"github.com/jrepp/proclife/internal/config"
	"github.com/jrepp/proclife/internal/observability"
	"github.com/jrepp/proclife/pkg/process"
	"github.com/jrepp/proclife/pkg/scenarios"
)

const serviceName = "proclife"

var reportPath string

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run one scenario",
	Long: `Run one scenario. The scenario's output, and that of its children,
goes to stdout; logs and the run summary go to stderr.

Use 'proclife list' to see the available scenarios.`,
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, s := range scenarios.All() {
			names = append(names, s.Name)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runScenario(ctx, args[0], ui.NewUI(cmd.ErrOrStderr(), cmd.ErrOrStderr()))
	},
}

func init() {
	runCmd.Flags().StringVar(&reportPath, "report", "", "write the children's exit reports to this YAML file")
	rootCmd.AddCommand(runCmd)
}

func runScenario(ctx context.Context, name string, u *ui.UI) error {
	s, ok := scenarios.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown scenario %q (see 'proclife list')", name)
	}

	obs := observability.NewManager(&observability.Config{
		ServiceName:      serviceName,
		ServiceVersion:   rootCmd.Version,
		EnableTracing:    cfg.Tracing.Enabled,
		MetricsNamespace: cfg.Metrics.Namespace,
		MetricsTextfile:  cfg.Metrics.Textfile,
	}, logger)
	if err := obs.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability shutdown failed", "error", err)
		}
	}()

	tracer := obs.Tracer(serviceName)
	opts := []process.Option{
		process.WithLogger(logger),
		process.WithMetricsCollector(obs.Metrics()),
		process.WithTracer(tracer),
		process.WithChildLogFormat(cfg.Log.Format),
	}
	if !cfg.Pipe.StrictClose {
		opts = append(opts, process.WithLenientChildPipes())
	}

	l, err := process.NewLauncher(opts...)
	if err != nil {
		return err
	}

	env := scenarios.NewEnv(l, os.Stdout, logger, settingsFrom(cfg, obs))

	ctx, span := tracer.Start(ctx, "scenario.Run",
		trace.WithAttributes(
			attribute.String("scenario.name", s.Name),
			attribute.String("proclife.run_id", l.RunID()),
		))
	logger.Debug("running scenario", "scenario", s.Name, "run_id", l.RunID())
	runErr := s.Run(ctx, env)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.End()

	reports := env.Reports()
	u.RunSummary(ui.Summary{Scenario: s.Name, RunID: l.RunID(), Reports: reports})

	if reportPath != "" {
		report := newRunReport(s, l.RunID(), reports)
		if err := writeReport(reportPath, report); err != nil {
			return err
		}
		logger.Debug("report written", "path", reportPath)
	}

	if runErr != nil {
		u.Error(runErr.Error())
		return fmt.Errorf("scenario %s: %w", s.Name, runErr)
	}
	if err := childFailure(reports); err != nil {
		u.Error(err.Error())
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return nil
}

// childFailure returns the first child that exited on a fatal path
func childFailure(reports []process.ExitReport) error {
	for _, r := range reports {
		if err := process.ErrorForExit(r); err != nil {
			return err
		}
	}
	return nil
}

func settingsFrom(c *config.Config, obs *observability.Manager) scenarios.Settings {
	return scenarios.Settings{
		WCTarget:       c.Scenario.WCTarget,
		RedirectOutput: c.Scenario.RedirectOutput,
		SharedFile:     c.Scenario.SharedFile,
		RaceJitter:     c.Scenario.RaceJitter,
		PipeOptions: []process.PipeOption{
			process.WithStrictClose(c.Pipe.StrictClose),
			process.WithPipeLogger(logger),
			process.WithPipeMetrics(obs.Metrics()),
		},
	}
}
