package config

import (
	"context"
	"fmt"
	"os"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/state"
	"github.com/signalsfoundry/coverage-planner/kb"
	"github.com/signalsfoundry/coverage-planner/timectrl"
)

// OpenProject builds the project store: from the floor-plan document when
// floor.plan is set, otherwise an empty floor of the configured size.
func (c *Config) OpenProject() (*kb.ProjectStore, error) {
	if c.Floor.Plan == "" {
		return kb.NewProjectStore(c.FloorDims()), nil
	}
	f, err := os.Open(c.Floor.Plan)
	if err != nil {
		return nil, fmt.Errorf("open floor plan: %w", err)
	}
	defer f.Close()

	plan, err := core.LoadFloorPlan(f)
	if err != nil {
		return nil, err
	}
	return kb.NewProjectStoreFromPlan(plan)
}

// HeatmapOptions translates the heatmap section. A zero worker count keeps
// every pass on the frame scheduler.
func (c *Config) HeatmapOptions() heatmap.Options {
	opts := heatmap.Options{
		Resolution:        c.Heatmap.Resolution,
		HighResMultiplier: c.Heatmap.HighResMultiplier,
		ChunkRows:         c.Heatmap.ChunkRows,
		Scheduler:         timectrl.NewFrameClock(c.Heatmap.FrameInterval, timectrl.RealTime),
	}
	if c.Heatmap.Workers > 0 {
		opts.Pool = heatmap.NewWorkerPool(c.Heatmap.Workers)
	}
	return opts
}

// StateOptions collects the ProjectState options implied by the config.
// metrics may be nil.
func (c *Config) StateOptions(log logging.Logger, metrics state.MetricsRecorder) []state.Option {
	opts := []state.Option{
		state.WithLogger(log),
		state.WithOptimizerOptions(c.OptimizerOptions()...),
		state.WithHeatmapOptions(c.HeatmapOptions()),
		state.WithAntennaDefaults(c.AntennaDefaults()),
		state.WithNoiseFloor(c.Radio.NoiseDBm),
		state.WithView(c.View()),
		state.WithFrameHandler(frameLogger(log)),
	}
	if metrics != nil {
		opts = append(opts, state.WithMetricsRecorder(metrics))
	}
	return opts
}

func frameLogger(log logging.Logger) func(*heatmap.Frame, error) {
	if log == nil {
		log = logging.Noop()
	}
	return func(f *heatmap.Frame, err error) {
		ctx := context.Background()
		if err != nil {
			log.Debug(ctx, "heatmap pass failed", logging.Err(err))
			return
		}
		log.Debug(ctx, "heatmap frame ready",
			logging.String("view", string(f.View)),
			logging.Bool("low_res", f.LowRes),
			logging.Int("cols", f.Grid.Cols),
			logging.Int("rows", f.Grid.Rows),
			logging.String("path", f.Path),
		)
	}
}

// NewProjectState opens the project and wires it to the planner.
func (c *Config) NewProjectState(log logging.Logger, metrics state.MetricsRecorder) (*state.ProjectState, error) {
	store, err := c.OpenProject()
	if err != nil {
		return nil, err
	}
	return state.NewProjectState(store, c.PropagationModel(), c.StateOptions(log, metrics)...), nil
}
