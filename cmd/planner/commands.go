package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/state"
	"github.com/signalsfoundry/coverage-planner/model"
)

type placementOutput struct {
	Strategy   string        `json:"strategy"`
	Requested  int           `json:"requested"`
	MinSpacing float64       `json:"minSpacing,omitempty"`
	Scored     int           `json:"scored,omitempty"`
	Antennas   []model.Point `json:"antennas"`
}

func printPositions(w io.Writer, asJSON bool, out placementOutput) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintf(w, "strategy: %s, placed %d of %d\n", out.Strategy, len(out.Antennas), out.Requested)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tX\tY")
	for i, p := range out.Antennas {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\n", i+1, p.X, p.Y)
	}
	return tw.Flush()
}

func (a *app) optimizeCommand() *cobra.Command {
	var (
		count  int
		mode   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Place antennas to maximise coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := state.ParsePlacementMode(mode)
			if err != nil {
				return err
			}
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.AutoPlace(cmd.Context(), count, m)
			if err != nil {
				return err
			}
			return printPositions(cmd.OutOrStdout(), asJSON, placementOutput{
				Strategy:   string(res.Strategy),
				Requested:  res.Requested,
				MinSpacing: res.MinSpacing,
				Scored:     res.Scored,
				Antennas:   res.Positions,
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 4, "number of antennas to place")
	cmd.Flags().StringVar(&mode, "mode", string(state.ModeOptimize), "placement mode: optimize or uniform")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (a *app) layoutCommand() *cobra.Command {
	var (
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Preview the uniform grid layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("%w: %d", core.ErrInvalidCount, count)
			}
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			pc := st.PlanningContext().WithAntennas(nil)
			if err := pc.Validate(); err != nil {
				return err
			}
			planner := core.NewGridLayoutPlanner(pc)
			positions := planner.Layout(count)
			if blocked := planner.Blocked(positions); len(blocked) > 0 {
				a.log.Warn(cmd.Context(), "layout positions overlap obstacles", logging.Any("indices", blocked))
			}
			return printPositions(cmd.OutOrStdout(), asJSON, placementOutput{
				Strategy:  string(core.StrategyLayout),
				Requested: count,
				Antennas:  positions,
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 4, "number of antennas")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (a *app) validCommand() *cobra.Command {
	var (
		count   int
		spacing float64
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "valid",
		Short: "List feasible antenna positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			return printPositions(cmd.OutOrStdout(), asJSON, placementOutput{
				Strategy:  "valid",
				Requested: count,
				Antennas:  st.ValidPositions(count, spacing),
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "maximum number of positions")
	cmd.Flags().Float64Var(&spacing, "spacing", core.DefaultValidSpacing, "lattice spacing in metres")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (a *app) coverageCommand() *cobra.Command {
	var spacing float64
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Score the current antenna set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "antennas: %d\nscore: %.2f\n", st.Store().AntennaCount(), st.Coverage(spacing))
			return nil
		},
	}
	cmd.Flags().Float64Var(&spacing, "sample-spacing", core.DefaultSampleSpacing, "sample lattice spacing in metres")
	return cmd
}

func (a *app) heatmapCommand() *cobra.Command {
	var (
		view     string
		antenna  string
		pngPath  string
		htmlPath string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Render the coverage heatmap and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			if view != "" {
				v, err := model.ParseViewMode(view)
				if err != nil {
					return err
				}
				st.SetView(v)
			}
			if err := st.ViewAntenna(antenna); err != nil {
				return err
			}
			frame, err := st.Render(cmd.Context())
			if err != nil {
				return err
			}

			if pngPath != "" {
				if err := writeFile(pngPath, func(w io.Writer) error { return heatmap.WritePNG(w, frame) }); err != nil {
					return err
				}
				a.log.Info(cmd.Context(), "wrote heatmap image", logging.String("path", pngPath))
			}
			if htmlPath != "" {
				if err := writeFile(htmlPath, func(w io.Writer) error { return heatmap.WriteHTML(w, frame) }); err != nil {
					return err
				}
				a.log.Info(cmd.Context(), "wrote heatmap chart", logging.String("path", htmlPath))
			}

			sum := heatmap.Summarize(frame.Grid, a.cfg.Compliance.ThresholdDBm)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					View  model.ViewMode  `json:"view"`
					Cols  int             `json:"cols"`
					Rows  int             `json:"rows"`
					Stats heatmap.Summary `json:"stats"`
				}{frame.View, frame.Grid.Cols, frame.Grid.Rows, finiteSummary(sum)})
			}
			fmt.Fprintf(out, "view: %s (%dx%d)\n", frame.View, frame.Grid.Cols, frame.Grid.Rows)
			fmt.Fprintf(out, "min %.1f  max %.1f  mean %.1f  stddev %.1f\n", sum.Min, sum.Max, sum.Mean, sum.StdDev)
			if frame.View == model.ViewRSSI {
				verdict := "below"
				if sum.Meets(a.cfg.Compliance.Percentage) {
					verdict = "meets"
				}
				fmt.Fprintf(out, "%.1f%% of the floor at or above %.0f dBm (%s the %.0f%% target)\n",
					sum.Compliance, a.cfg.Compliance.ThresholdDBm, verdict, a.cfg.Compliance.Percentage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "heatmap view: rssi, snr, sinr, cci, thr, best or servch")
	cmd.Flags().StringVar(&antenna, "antenna", "", "restrict the metric to one antenna id")
	cmd.Flags().StringVar(&pngPath, "png", "", "write the heatmap as a PNG image")
	cmd.Flags().StringVar(&htmlPath, "html", "", "write the heatmap as an interactive HTML chart")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the statistics as JSON")
	return cmd
}

// finiteSummary zeroes statistics that JSON cannot encode.
func finiteSummary(s heatmap.Summary) heatmap.Summary {
	if s.Finite == 0 {
		s.Min, s.Max, s.Mean, s.StdDev = 0, 0, 0, 0
	}
	return s
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
