package config

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/logging"
	"github.com/signalsfoundry/coverage-planner/internal/observability"
	"github.com/signalsfoundry/coverage-planner/model"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix namespaces environment overrides, e.g. PLANNER_HEATMAP_RESOLUTION.
const EnvPrefix = "PLANNER"

type FloorConfig struct {
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
	// Plan is an optional floor-plan JSON document.
	Plan string `mapstructure:"plan"`
}

type GroundConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Attenuation float64 `mapstructure:"attenuation"`
}

type RadioConfig struct {
	FrequencyMHz    float64      `mapstructure:"frequency_mhz"`
	PathLossN       float64      `mapstructure:"path_loss_n"`
	VerticalFactor  float64      `mapstructure:"vertical_factor"`
	ShapeFactor     float64      `mapstructure:"shape_factor"`
	ReferenceOffset float64      `mapstructure:"reference_offset"`
	NoiseDBm        float64      `mapstructure:"noise_dbm"`
	Ground          GroundConfig `mapstructure:"ground"`
}

type AntennaConfig struct {
	TxDBm   float64 `mapstructure:"tx_dbm"`
	GainDBi float64 `mapstructure:"gain_dbi"`
	Channel int     `mapstructure:"channel"`
	Height  float64 `mapstructure:"height"`
}

type OptimizerConfig struct {
	GridSpacing   float64 `mapstructure:"grid_spacing"`
	SampleSpacing float64 `mapstructure:"sample_spacing"`
	MaxCandidates int     `mapstructure:"max_candidates"`
	// Seed fixes the region shuffle; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

type HeatmapConfig struct {
	Resolution        float64       `mapstructure:"resolution"`
	View              string        `mapstructure:"view"`
	Workers           int           `mapstructure:"workers"`
	ChunkRows         int           `mapstructure:"chunk_rows"`
	FrameInterval     time.Duration `mapstructure:"frame_interval"`
	HighResMultiplier float64       `mapstructure:"high_res_multiplier"`
}

type ComplianceConfig struct {
	ThresholdDBm float64 `mapstructure:"threshold_dbm"`
	Percentage   float64 `mapstructure:"percentage"`
}

type ServerConfig struct {
	GRPCAddr    string `mapstructure:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the typed view of every planner setting.
type Config struct {
	Floor      FloorConfig      `mapstructure:"floor"`
	Radio      RadioConfig      `mapstructure:"radio"`
	Antenna    AntennaConfig    `mapstructure:"antenna"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Heatmap    HeatmapConfig    `mapstructure:"heatmap"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`

	Tracing observability.TracingConfig `mapstructure:"tracing"`
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("floor.width", 30.0)
	v.SetDefault("floor.height", 20.0)
	v.SetDefault("floor.plan", "")

	v.SetDefault("radio.frequency_mhz", 2400.0)
	v.SetDefault("radio.path_loss_n", 10.0)
	v.SetDefault("radio.vertical_factor", 2.0)
	v.SetDefault("radio.shape_factor", 3.0)
	v.SetDefault("radio.reference_offset", 0.0)
	v.SetDefault("radio.noise_dbm", core.DefaultNoiseDBm)
	v.SetDefault("radio.ground.enabled", true)
	v.SetDefault("radio.ground.attenuation", 3.0)

	v.SetDefault("antenna.tx_dbm", 15.0)
	v.SetDefault("antenna.gain_dbi", 5.0)
	v.SetDefault("antenna.channel", 1)
	v.SetDefault("antenna.height", 2.5)

	v.SetDefault("optimizer.grid_spacing", core.DefaultGridSpacing)
	v.SetDefault("optimizer.sample_spacing", core.DefaultSampleSpacing)
	v.SetDefault("optimizer.max_candidates", core.DefaultMaxCandidates)
	v.SetDefault("optimizer.seed", 0)

	v.SetDefault("heatmap.resolution", 0.2)
	v.SetDefault("heatmap.view", string(model.ViewRSSI))
	v.SetDefault("heatmap.workers", runtime.NumCPU())
	v.SetDefault("heatmap.chunk_rows", 50)
	v.SetDefault("heatmap.frame_interval", "16ms")
	v.SetDefault("heatmap.high_res_multiplier", 1.5)

	v.SetDefault("compliance.threshold_dbm", -85.0)
	v.SetDefault("compliance.percentage", 80.0)

	v.SetDefault("server.grpc_addr", ":50061")
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "coverage-planner")
	v.SetDefault("tracing.exporter", observability.ExporterConsole)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// New returns a viper instance with defaults and PLANNER_ environment
// overrides wired up, but no config file read yet.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. An explicit path must exist; with an empty
// path planner.yaml is looked up in the working directory and
// $HOME/.coverage-planner and silently skipped when absent.
func Load(path string) (*Config, error) {
	return LoadWith(New(), path)
}

// LoadWith is Load on a caller-provided viper instance, so that CLI flags
// bound with BindPFlag take part in resolution.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("planner")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.coverage-planner")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise surface as silent misbehaviour.
func (c *Config) Validate() error {
	var errs []error
	if c.Floor.Width <= 0 || c.Floor.Height <= 0 {
		errs = append(errs, fmt.Errorf("floor must have a positive area, got %gx%g", c.Floor.Width, c.Floor.Height))
	}
	if c.Radio.FrequencyMHz <= 0 {
		errs = append(errs, fmt.Errorf("radio.frequency_mhz must be positive"))
	}
	if c.Optimizer.GridSpacing <= 0 || c.Optimizer.SampleSpacing <= 0 {
		errs = append(errs, fmt.Errorf("optimizer spacings must be positive"))
	}
	if c.Optimizer.MaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("optimizer.max_candidates must be positive"))
	}
	if c.Heatmap.Resolution <= 0 {
		errs = append(errs, fmt.Errorf("heatmap.resolution must be positive"))
	}
	if _, err := model.ParseViewMode(c.Heatmap.View); err != nil {
		errs = append(errs, fmt.Errorf("heatmap.view: %w", err))
	}
	if c.Heatmap.Workers < 0 || c.Heatmap.ChunkRows <= 0 {
		errs = append(errs, fmt.Errorf("heatmap.workers must be >= 0 and heatmap.chunk_rows > 0"))
	}
	if c.Heatmap.HighResMultiplier < 1 {
		errs = append(errs, fmt.Errorf("heatmap.high_res_multiplier must be >= 1"))
	}
	if c.Compliance.Percentage < 0 || c.Compliance.Percentage > 100 {
		errs = append(errs, fmt.Errorf("compliance.percentage must be within [0,100]"))
	}
	if err := (logging.Config{Level: c.Log.Level, Format: c.Log.Format}).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// FloorDims returns the configured planning area.
func (c *Config) FloorDims() model.Floor {
	return model.Floor{Width: c.Floor.Width, Height: c.Floor.Height}
}

// PropagationModel builds the 2.5D model from the radio section.
func (c *Config) PropagationModel() *core.P25DModel {
	m := core.NewP25DModel()
	m.FrequencyMHz = c.Radio.FrequencyMHz
	m.N = c.Radio.PathLossN
	m.VerticalFactor = c.Radio.VerticalFactor
	m.ShapeFactor = c.Radio.ShapeFactor
	m.ReferenceOffset = c.Radio.ReferenceOffset
	m.Ground = model.GroundPlane{Enabled: c.Radio.Ground.Enabled, Attenuation: c.Radio.Ground.Attenuation}
	return m
}

// AntennaDefaults returns the parameters for synthesised antennas.
func (c *Config) AntennaDefaults() model.AntennaDefaults {
	return model.AntennaDefaults{
		TxDBm:   c.Antenna.TxDBm,
		GainDBi: c.Antenna.GainDBi,
		Channel: c.Antenna.Channel,
		Height:  c.Antenna.Height,
	}
}

// OptimizerOptions translates the optimizer section.
func (c *Config) OptimizerOptions() []core.OptimizerOption {
	opts := []core.OptimizerOption{
		core.WithGridSpacing(c.Optimizer.GridSpacing),
		core.WithSampleSpacing(c.Optimizer.SampleSpacing),
		core.WithMaxCandidates(c.Optimizer.MaxCandidates),
	}
	if c.Optimizer.Seed != 0 {
		opts = append(opts, core.WithRand(rand.New(rand.NewSource(c.Optimizer.Seed))))
	}
	return opts
}

// View returns the parsed heatmap view mode.
func (c *Config) View() model.ViewMode {
	v, err := model.ParseViewMode(c.Heatmap.View)
	if err != nil {
		return model.ViewRSSI
	}
	return v
}
