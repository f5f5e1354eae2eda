package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"frozenlake/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OuterConfig is the config file envelope: a kind tag and the definition proper.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig holds the lake generation parameters, the solver's hyper-parameters,
// and the replay settings used by the driver.
type TrainingConfig struct {
	Grid grid_world.Config `yaml:"grid" mapstructure:"grid"`
	// HyperParams is a key-val list of named params: gamma and epsilon.
	HyperParams []HyperParameter `yaml:"hyperparams" mapstructure:"hyperparams"`
	Solver      SolverSection    `yaml:"solver" mapstructure:"solver"`
	// TrainingDeadline is a duration bounding the wall-clock time of each solve.
	TrainingDeadline map[string]string `yaml:"trainingdeadline" mapstructure:"trainingdeadline"`
	Episode          EpisodeConfig     `yaml:"episode" mapstructure:"episode"`
	Playback         PlaybackConfig    `yaml:"playback" mapstructure:"playback"`
}

type HyperParameter struct {
	Key string  `yaml:"key" mapstructure:"key"`
	Val float64 `yaml:"val" mapstructure:"val"`
}

// SolverSection holds the non-numeric solver settings.
type SolverSection struct {
	MaxIterations int       `yaml:"maxiterations" mapstructure:"maxiterations"`
	SweepMode     SweepMode `yaml:"sweepmode" mapstructure:"sweepmode"`
}

// PlaybackConfig controls how the driver replays the policy.
type PlaybackConfig struct {
	TickPeriod time.Duration `yaml:"tickperiod" mapstructure:"tickperiod"`
	// MaxSteps caps an episode; zero means four times the tile count.
	MaxSteps int `yaml:"maxsteps" mapstructure:"maxsteps"`
	// ResetDelay is the number of ticks a finished episode stays on display before the lake is regenerated.
	ResetDelay int `yaml:"resetdelay" mapstructure:"resetdelay"`
}

const (
	defaultGamma         = 0.0
	defaultEpsilon       = 0.001
	defaultMaxIterations = 1000
)

// DefaultTrainingConfig returns the settings of the original game: an 8x8 lake,
// gamma of zero, and one replay step per second.
func DefaultTrainingConfig() *TrainingConfig {
	return &TrainingConfig{
		Grid: grid_world.DefaultConfig(),
		HyperParams: []HyperParameter{
			{Key: "gamma", Val: defaultGamma},
			{Key: "epsilon", Val: defaultEpsilon},
		},
		Solver: SolverSection{
			MaxIterations: defaultMaxIterations,
			SweepMode:     IN_PLACE,
		},
		TrainingDeadline: map[string]string{},
		Episode:          DefaultEpisodeConfig(),
		Playback: PlaybackConfig{
			TickPeriod: time.Second,
			ResetDelay: 3,
		},
	}
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// SolverConfig assembles the solver's settings from the hyper-params and solver section.
func (cfg *TrainingConfig) SolverConfig() SolverConfig {
	solverCfg := SolverConfig{
		Gamma:         cfg.GetHyperParamOrDefault("gamma", defaultGamma),
		Epsilon:       cfg.GetHyperParamOrDefault("epsilon", defaultEpsilon),
		MaxIterations: cfg.Solver.MaxIterations,
		Mode:          cfg.Solver.SweepMode,
	}
	if solverCfg.MaxIterations == 0 {
		solverCfg.MaxIterations = defaultMaxIterations
	}
	if solverCfg.Mode == "" {
		solverCfg.Mode = IN_PLACE
	}
	return solverCfg
}

// MaxSteps returns the playback step cap for the given lake size.
func (cfg *TrainingConfig) MaxSteps(numTiles int) int {
	if cfg.Playback.MaxSteps > 0 {
		return cfg.Playback.MaxSteps
	}
	return 4 * numTiles
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("training deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// Validate checks the grid and solver sections eagerly, before any lake is built.
func (cfg *TrainingConfig) Validate() error {
	if len(cfg.Grid.Layout) == 0 {
		if err := cfg.Grid.Validate(); err != nil {
			return err
		}
	}
	solverCfg := cfg.SolverConfig()
	if err := solverCfg.Validate(); err != nil {
		return err
	}
	if cfg.Playback.TickPeriod <= 0 {
		return fmt.Errorf("playback tick period must be positive, got %v", cfg.Playback.TickPeriod)
	}
	return nil
}

// FromYaml reads a TrainingConfig from the yaml envelope at path. Sections absent
// from the file keep their defaults; a missing file yields the defaults.
func FromYaml(path string) (*TrainingConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultTrainingConfig(), nil
	}

	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, fmt.Errorf("marshal config def: %w", err)
	}

	innerConfig := DefaultTrainingConfig()
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config def: %w", err)
	}

	return innerConfig, nil
}
