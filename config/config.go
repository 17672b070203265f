package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete simulation and training configuration.
type Config struct {
	Run      RunConfig        `json:"run" yaml:"run"`
	Training TrainingConfig   `json:"training" yaml:"training"`
	Risk     RiskConfig       `json:"risk" yaml:"risk"`
	Market   MarketConfig     `json:"market" yaml:"market"`
	Treaty   TreatyConfig     `json:"treaty" yaml:"treaty"`
	Agents   []AgentConfig    `json:"agents,omitempty" yaml:"agents,omitempty"`
	Stress   []ScenarioConfig `json:"stress,omitempty" yaml:"stress,omitempty"`
	Journal  JournalConfig    `json:"journal" yaml:"journal"`
}

// RunConfig contains run-level parameters.
type RunConfig struct {
	Seed                  int64 `json:"seed" yaml:"seed"`
	NumAgents             int   `json:"num_agents" yaml:"num_agents"`
	EpisodesPerGeneration int   `json:"episodes_per_generation" yaml:"episodes_per_generation"`
	MaxGenerations        int   `json:"max_generations" yaml:"max_generations"`
	RoundsPerEpisode      int   `json:"rounds_per_episode" yaml:"rounds_per_episode"`
	Workers               int   `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// TrainingConfig contains the constrained-PPO hyperparameters.
type TrainingConfig struct {
	LearningRate        float64 `json:"learning_rate" yaml:"learning_rate"`
	LambdaLearningRate  float64 `json:"lambda_learning_rate" yaml:"lambda_learning_rate"`
	PPOClipRange        float64 `json:"ppo_clip_range" yaml:"ppo_clip_range"`
	PPOEpochs           int     `json:"ppo_epochs" yaml:"ppo_epochs"`
	Discount            float64 `json:"discount" yaml:"discount"`
	GAELambda           float64 `json:"gae_lambda" yaml:"gae_lambda"`
	ConvergenceEpsilon  float64 `json:"convergence_epsilon" yaml:"convergence_epsilon"`
	ConvergencePatience int     `json:"convergence_patience" yaml:"convergence_patience"`
}

// RiskConfig contains the tail-risk constraint parameters. Tolerance is
// the slack on top of the budget before a trained agent is reported as
// over budget.
type RiskConfig struct {
	Budget         float64 `json:"risk_budget" yaml:"risk_budget"`
	Tolerance      float64 `json:"risk_tolerance" yaml:"risk_tolerance"`
	CVaRConfidence float64 `json:"cvar_confidence" yaml:"cvar_confidence"`
	Window         int     `json:"cvar_window" yaml:"cvar_window"`
	MinSamples     int     `json:"cvar_min_samples" yaml:"cvar_min_samples"`
	AlertLambda    float64 `json:"alert_lambda" yaml:"alert_lambda"`
}

// MarketConfig contains settlement parameters.
type MarketConfig struct {
	MinRateOnLine   float64 `json:"min_rate_on_line" yaml:"min_rate_on_line"`
	CostOfCapital   float64 `json:"cost_of_capital" yaml:"cost_of_capital"`
	OpportunityCost float64 `json:"opportunity_cost" yaml:"opportunity_cost"`
	LossSigma       float64 `json:"loss_sigma" yaml:"loss_sigma"`
}

// TreatyConfig parameterizes the treaty-generating distribution.
type TreatyConfig struct {
	Mix               map[string]float64 `json:"treaty_mix" yaml:"treaty_mix"`
	RegionWeights     map[string]float64 `json:"region_weights" yaml:"region_weights"`
	LineWeights       map[string]float64 `json:"line_weights" yaml:"line_weights"`
	LossRatioPriorMin float64            `json:"loss_ratio_prior_min" yaml:"loss_ratio_prior_min"`
	LossRatioPriorMax float64            `json:"loss_ratio_prior_max" yaml:"loss_ratio_prior_max"`
	ExposureMu        float64            `json:"exposure_mu" yaml:"exposure_mu"`
	ExposureSigma     float64            `json:"exposure_sigma" yaml:"exposure_sigma"`
	LimitFactor       float64            `json:"limit_factor" yaml:"limit_factor"`
	AttachmentFactor  float64            `json:"attachment_factor" yaml:"attachment_factor"`
}

// AgentConfig describes one reinsurer participant.
type AgentConfig struct {
	ID             string  `json:"id" yaml:"id"`
	Appetite       string  `json:"appetite" yaml:"appetite"` // "averse", "neutral", "aggressive"
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	CapitalFloor   float64 `json:"capital_floor" yaml:"capital_floor"`
	MaxLine        float64 `json:"max_line" yaml:"max_line"`
}

// ScenarioConfig describes one stress scenario as multiplicative overrides
// on the treaty-generating distribution and market parameters.
type ScenarioConfig struct {
	Name               string  `json:"name" yaml:"name"`
	LossRatioScale     float64 `json:"loss_ratio_scale" yaml:"loss_ratio_scale"`
	LossSigmaScale     float64 `json:"loss_sigma_scale" yaml:"loss_sigma_scale"`
	ExposureScale      float64 `json:"exposure_scale" yaml:"exposure_scale"`
	CostOfCapitalScale float64 `json:"cost_of_capital_scale" yaml:"cost_of_capital_scale"`
	Episodes           int     `json:"episodes" yaml:"episodes"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	RoundsFile string `json:"rounds_file,omitempty" yaml:"rounds_file,omitempty"`
	TracesFile string `json:"traces_file,omitempty" yaml:"traces_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Validation failures are
// fatal at startup, before any simulation begins.
func (c *Config) Validate() error {
	if c.Run.NumAgents < 2 {
		return fmt.Errorf("run.num_agents must be at least 2")
	}
	if c.Run.EpisodesPerGeneration <= 0 {
		return fmt.Errorf("run.episodes_per_generation must be positive")
	}
	if c.Run.MaxGenerations <= 0 {
		return fmt.Errorf("run.max_generations must be positive")
	}
	if c.Run.RoundsPerEpisode <= 0 {
		return fmt.Errorf("run.rounds_per_episode must be positive")
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("run.workers must not be negative")
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be positive")
	}
	if c.Training.LambdaLearningRate <= 0 {
		return fmt.Errorf("training.lambda_learning_rate must be positive")
	}
	if c.Training.PPOClipRange <= 0 || c.Training.PPOClipRange >= 1 {
		return fmt.Errorf("training.ppo_clip_range must be in (0, 1)")
	}
	if c.Training.PPOEpochs <= 0 {
		return fmt.Errorf("training.ppo_epochs must be positive")
	}
	if c.Training.Discount <= 0 || c.Training.Discount > 1 {
		return fmt.Errorf("training.discount must be in (0, 1]")
	}
	if c.Training.GAELambda < 0 || c.Training.GAELambda > 1 {
		return fmt.Errorf("training.gae_lambda must be in [0, 1]")
	}
	if c.Training.ConvergenceEpsilon < 0 {
		return fmt.Errorf("training.convergence_epsilon must not be negative")
	}
	if c.Training.ConvergencePatience <= 0 {
		return fmt.Errorf("training.convergence_patience must be positive")
	}
	if c.Risk.Budget <= 0 {
		return fmt.Errorf("risk.risk_budget must be positive")
	}
	if c.Risk.Tolerance < 0 {
		return fmt.Errorf("risk.risk_tolerance must not be negative")
	}
	if c.Risk.CVaRConfidence <= 0 || c.Risk.CVaRConfidence >= 1 {
		return fmt.Errorf("risk.cvar_confidence must be in (0, 1)")
	}
	if c.Risk.Window <= 0 {
		return fmt.Errorf("risk.cvar_window must be positive")
	}
	if c.Risk.MinSamples <= 0 || c.Risk.MinSamples > c.Risk.Window {
		return fmt.Errorf("risk.cvar_min_samples must be in [1, cvar_window]")
	}
	if c.Market.MinRateOnLine <= 0 {
		return fmt.Errorf("market.min_rate_on_line must be positive")
	}
	if c.Market.CostOfCapital < 0 {
		return fmt.Errorf("market.cost_of_capital must not be negative")
	}
	if c.Market.OpportunityCost < 0 {
		return fmt.Errorf("market.opportunity_cost must not be negative")
	}
	if c.Market.LossSigma <= 0 {
		return fmt.Errorf("market.loss_sigma must be positive")
	}
	if err := c.Treaty.validate(); err != nil {
		return err
	}
	if len(c.Agents) > 0 && len(c.Agents) != c.Run.NumAgents {
		return fmt.Errorf("agents list has %d entries, run.num_agents is %d", len(c.Agents), c.Run.NumAgents)
	}
	seen := map[string]bool{}
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		switch a.Appetite {
		case "averse", "neutral", "aggressive":
		default:
			return fmt.Errorf("agents[%d].appetite must be averse, neutral or aggressive", i)
		}
		if a.InitialCapital <= 0 {
			return fmt.Errorf("agents[%d].initial_capital must be positive", i)
		}
		if a.MaxLine <= 0 {
			return fmt.Errorf("agents[%d].max_line must be positive", i)
		}
		if a.CapitalFloor < 0 || a.CapitalFloor >= a.InitialCapital {
			return fmt.Errorf("agents[%d].capital_floor must be in [0, initial_capital)", i)
		}
	}
	for i, s := range c.Stress {
		if s.Name == "" {
			return fmt.Errorf("stress[%d].name is required", i)
		}
		if s.LossRatioScale < 0 || s.LossSigmaScale < 0 || s.ExposureScale < 0 || s.CostOfCapitalScale < 0 {
			return fmt.Errorf("stress[%d] scales must not be negative", i)
		}
		if s.Episodes < 0 {
			return fmt.Errorf("stress[%d].episodes must not be negative", i)
		}
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.RoundsFile == "" || c.Journal.TracesFile == "" {
			return fmt.Errorf("journal rounds_file and traces_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

func (t TreatyConfig) validate() error {
	if err := validateWeights("treaty.treaty_mix", t.Mix); err != nil {
		return err
	}
	for k := range t.Mix {
		if k != "XoL" && k != "QuotaShare" {
			return fmt.Errorf("treaty.treaty_mix: unknown treaty type %q", k)
		}
	}
	if err := validateWeights("treaty.region_weights", t.RegionWeights); err != nil {
		return err
	}
	if err := validateWeights("treaty.line_weights", t.LineWeights); err != nil {
		return err
	}
	if t.LossRatioPriorMin <= 0 || t.LossRatioPriorMax < t.LossRatioPriorMin {
		return fmt.Errorf("treaty loss ratio prior range must be positive with min <= max")
	}
	if t.ExposureSigma <= 0 {
		return fmt.Errorf("treaty.exposure_sigma must be positive")
	}
	if t.LimitFactor <= 0 {
		return fmt.Errorf("treaty.limit_factor must be positive")
	}
	if t.AttachmentFactor < 0 {
		return fmt.Errorf("treaty.attachment_factor must not be negative")
	}
	return nil
}

func validateWeights(name string, w map[string]float64) error {
	if len(w) == 0 {
		return fmt.Errorf("%s must not be empty", name)
	}
	total := 0.0
	for k, v := range w {
		if v < 0 {
			return fmt.Errorf("%s[%s] must not be negative", name, k)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("%s weights must sum to a positive value", name)
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Seed:                  42,
			NumAgents:             5,
			EpisodesPerGeneration: 16,
			MaxGenerations:        50,
			RoundsPerEpisode:      8,
		},
		Training: TrainingConfig{
			LearningRate:        0.01,
			LambdaLearningRate:  0.05,
			PPOClipRange:        0.2,
			PPOEpochs:           4,
			Discount:            0.99,
			GAELambda:           0.95,
			ConvergenceEpsilon:  0.001,
			ConvergencePatience: 5,
		},
		Risk: RiskConfig{
			Budget:         0.2,
			Tolerance:      0.05,
			CVaRConfidence: 0.95,
			Window:         64,
			MinSamples:     16,
			AlertLambda:    2.5,
		},
		Market: MarketConfig{
			MinRateOnLine:   0.7,
			CostOfCapital:   0.02,
			OpportunityCost: 0.05,
			LossSigma:       0.3,
		},
		Treaty: TreatyConfig{
			Mix:               map[string]float64{"XoL": 0.6, "QuotaShare": 0.4},
			RegionWeights:     map[string]float64{"NA": 0.4, "EU": 0.35, "APAC": 0.25},
			LineWeights:       map[string]float64{"property": 0.5, "casualty": 0.3, "marine": 0.2},
			LossRatioPriorMin: 0.45,
			LossRatioPriorMax: 0.85,
			ExposureMu:        2.3,
			ExposureSigma:     0.5,
			LimitFactor:       0.5,
			AttachmentFactor:  0.3,
		},
		Stress: []ScenarioConfig{
			{Name: "catastrophe", LossRatioScale: 1.3, LossSigmaScale: 1.5, ExposureScale: 1, CostOfCapitalScale: 1, Episodes: 32},
			{Name: "capital-squeeze", LossRatioScale: 1, LossSigmaScale: 1, ExposureScale: 0.7, CostOfCapitalScale: 2, Episodes: 32},
		},
		Journal: JournalConfig{
			Type:       "csv",
			RoundsFile: "./rounds.csv",
			TracesFile: "./traces.csv",
		},
	}
}
