package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/coverage-planner/internal/config"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
	"github.com/signalsfoundry/coverage-planner/internal/state"
	"github.com/signalsfoundry/coverage-planner/timectrl"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags and config are
// resolved.
type app struct {
	v          *viper.Viper
	configPath string

	cfg *config.Config
	log logging.Logger

	shutdownTracing func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "planner",
		Short:         "Plan indoor radio coverage",
		Long:          `planner places access points on a floor plan and renders the predicted coverage as a heatmap.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.ShutdownWithTimeout(context.Background(), a.shutdownTracing, a.log)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ./planner.yaml)")
	pf.String("floor", "", "floor-plan JSON document")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.Int64("seed", 0, "optimizer seed; 0 seeds from the clock")
	_ = a.v.BindPFlag("floor.plan", pf.Lookup("floor"))
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("optimizer.seed", pf.Lookup("seed"))

	root.AddCommand(a.optimizeCommand())
	root.AddCommand(a.layoutCommand())
	root.AddCommand(a.validCommand())
	root.AddCommand(a.coverageCommand())
	root.AddCommand(a.heatmapCommand())
	return root
}

func (a *app) load(ctx context.Context, stderr io.Writer) error {
	cfg, err := config.LoadWith(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})

	cfg.Tracing.Output = stderr
	a.shutdownTracing, err = observability.InitTracing(ctx, cfg.Tracing, a.log)
	return err
}

// openState builds the project. Heatmap passes run back to back since no
// display is waiting for frames.
func (a *app) openState() (*state.ProjectState, error) {
	store, err := a.cfg.OpenProject()
	if err != nil {
		return nil, err
	}
	ho := a.cfg.HeatmapOptions()
	ho.Scheduler = timectrl.NewFrameClock(0, timectrl.Accelerated)
	opts := append(a.cfg.StateOptions(a.log, nil), state.WithHeatmapOptions(ho))
	return state.NewProjectState(store, a.cfg.PropagationModel(), opts...), nil
}
