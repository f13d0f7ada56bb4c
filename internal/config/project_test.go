package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/model"
)

func TestOpenProject_EmptyFloor(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	store, err := cfg.OpenProject()
	require.NoError(t, err)
	assert.Equal(t, model.Floor{Width: 30, Height: 20}, store.Floor())
	assert.Zero(t, store.AntennaCount())
}

func TestOpenProject_FromPlan(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "office.json")
	doc := `{
  "width": 16, "height": 9,
  "walls": [{"id": "w1", "points": [{"x": 8, "y": 0}, {"x": 8, "y": 6}]}],
  "wallsWKT": [{"wkt": "LINESTRING (0 4, 4 4)", "type": "drywall"}],
  "antennas": [{"id": "AP1", "x": 2, "y": 2}]
}`
	require.NoError(t, os.WriteFile(plan, []byte(doc), 0o644))

	cfg := &Config{Floor: FloorConfig{Width: 1, Height: 1, Plan: plan}}
	store, err := cfg.OpenProject()
	require.NoError(t, err)

	assert.Equal(t, model.Floor{Width: 16, Height: 9}, store.Floor())
	assert.Len(t, store.ListWalls(), 2)
	ants := store.ListAntennas()
	require.Len(t, ants, 1)
	assert.Equal(t, "AP1", ants[0].ID)
	assert.True(t, ants[0].Enabled)
}

func TestOpenProject_Errors(t *testing.T) {
	cfg := &Config{Floor: FloorConfig{Plan: filepath.Join(t.TempDir(), "missing.json")}}
	_, err := cfg.OpenProject()
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"width": 0, "height": 5}`), 0o644))
	cfg.Floor.Plan = bad
	_, err = cfg.OpenProject()
	assert.ErrorIs(t, err, core.ErrInvalidFloor)
}

func TestHeatmapOptions(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Heatmap.Workers = 0
	opts := cfg.HeatmapOptions()
	assert.Nil(t, opts.Pool)
	assert.Equal(t, 0.2, opts.Resolution)
	assert.Equal(t, 50, opts.ChunkRows)
	assert.NotNil(t, opts.Scheduler)

	cfg.Heatmap.Workers = 3
	assert.NotNil(t, cfg.HeatmapOptions().Pool)
}

func TestNewProjectState(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Heatmap.View = string(model.ViewSNR)

	st, err := cfg.NewProjectState(logging.Noop(), nil)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, model.ViewSNR, st.View())
	assert.Equal(t, cfg.AntennaDefaults(), st.AntennaDefaults())
	pc := st.PlanningContext()
	assert.Equal(t, -92.0, pc.NoiseDBm)
}

func TestFrameLoggerReportsFrames(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "debug", Format: logging.FormatJSON, Output: &buf})
	fn := frameLogger(log)

	fn(&heatmap.Frame{Grid: &heatmap.Grid{Cols: 4, Rows: 3}, View: model.ViewSNR, Path: "cooperative"}, nil)
	fn(nil, errors.New("worker crashed"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"heatmap frame ready"`)
	assert.Contains(t, out, `"view":"snr"`)
	assert.Contains(t, out, `"cols":4`)
	assert.Contains(t, out, `"error":"worker crashed"`)

	assert.NotPanics(t, func() { frameLogger(nil)(nil, errors.New("ignored")) })
}
