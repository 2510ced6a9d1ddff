package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override Params.
const EnvPrefix = "DECOMP_"

// ErrInvalidParams is returned by Validate when a parameter is out of range.
var ErrInvalidParams = errors.New("invalid parameters")

// Params holds every tolerance and limit of a run. It is passed explicitly to the
// engines; nothing reads process-wide state.
type Params struct {
	MaxIterations int           `yaml:"max_iterations" mapstructure:"max_iterations"`
	TimeLimit     time.Duration `yaml:"time_limit" mapstructure:"time_limit"`

	// OptimalityGap is the relative gap between bound and best objective that ends a run.
	OptimalityGap float64 `yaml:"optimality_gap" mapstructure:"optimality_gap"`

	// CutAcceptTolerance is the slack under which an optimality cut is not violated by theta.
	CutAcceptTolerance float64 `yaml:"cut_accept_tolerance" mapstructure:"cut_accept_tolerance"`

	// SimilarityTolerance is the squared distance under which two cuts are duplicates.
	SimilarityTolerance float64 `yaml:"similarity_tolerance" mapstructure:"similarity_tolerance"`

	// SlackTolerance decides when a cut row counts as binding.
	SlackTolerance float64 `yaml:"slack_tolerance" mapstructure:"slack_tolerance"`

	MaxCutAge      int `yaml:"max_cut_age" mapstructure:"max_cut_age"`
	PurgeFrequency int `yaml:"purge_frequency" mapstructure:"purge_frequency"`

	// DummyBound bounds theta when a child reports no finite outer bound.
	DummyBound float64 `yaml:"dummy_bound" mapstructure:"dummy_bound"`

	Proximal  ProximalParams  `yaml:"proximal" mapstructure:"proximal"`
	Heuristic HeuristicParams `yaml:"heuristic" mapstructure:"heuristic"`

	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
}

// ProximalParams configures the proximal bundle method.
type ProximalParams struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	InitialPenalty float64 `yaml:"initial_penalty" mapstructure:"initial_penalty"`
	MinPenalty     float64 `yaml:"min_penalty" mapstructure:"min_penalty"`
	MaxPenalty     float64 `yaml:"max_penalty" mapstructure:"max_penalty"`

	// ML is the fraction of predicted improvement a serious step must realize.
	ML float64 `yaml:"ml" mapstructure:"ml"`
	// MR (> ML) marks an improvement as large enough to relax the penalty.
	MR float64 `yaml:"mr" mapstructure:"mr"`

	// NullGrowthSteps is the number of consecutive null steps before the penalty may grow.
	NullGrowthSteps int `yaml:"null_growth_steps" mapstructure:"null_growth_steps"`
}

// HeuristicParams configures the MIP heuristic root.
type HeuristicParams struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Scale ties each Minkowski weight to an integer multiple: n = Scale * w.
	// Zero disables the integer structure.
	Scale int `yaml:"scale" mapstructure:"scale"`
}

// Defaults returns the parameters used when nothing is configured.
func Defaults() Params {
	return Params{
		MaxIterations:       1000,
		TimeLimit:           time.Hour,
		OptimalityGap:       1e-6,
		CutAcceptTolerance:  1e-6,
		SimilarityTolerance: 1e-10,
		SlackTolerance:      1e-6,
		MaxCutAge:           50,
		PurgeFrequency:      10,
		DummyBound:          -1e6,
		Proximal: ProximalParams{
			InitialPenalty:  1,
			MinPenalty:      1e-6,
			MaxPenalty:      1e6,
			ML:              0.1,
			MR:              0.5,
			NullGrowthSteps: 3,
		},
		LogLevel: "info",
	}
}

// Validate rejects parameters that would make the engines misbehave.
func (p Params) Validate() error {
	var errs []error
	if p.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", p.MaxIterations))
	}
	if p.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("time_limit must be positive, got %s", p.TimeLimit))
	}
	if p.OptimalityGap < 0 || p.CutAcceptTolerance < 0 || p.SimilarityTolerance < 0 || p.SlackTolerance < 0 {
		errs = append(errs, errors.New("tolerances must be non-negative"))
	}
	if p.MaxCutAge <= 0 {
		errs = append(errs, fmt.Errorf("max_cut_age must be positive, got %d", p.MaxCutAge))
	}
	if p.PurgeFrequency < 0 {
		errs = append(errs, fmt.Errorf("purge_frequency must be non-negative, got %d", p.PurgeFrequency))
	}
	if math.IsNaN(p.DummyBound) || math.IsInf(p.DummyBound, 0) {
		errs = append(errs, errors.New("dummy_bound must be finite"))
	}
	if p.Proximal.Enabled {
		px := p.Proximal
		if px.MinPenalty <= 0 || px.MinPenalty > px.MaxPenalty {
			errs = append(errs, fmt.Errorf("penalty range [%g, %g] is empty", px.MinPenalty, px.MaxPenalty))
		}
		if px.InitialPenalty < px.MinPenalty || px.InitialPenalty > px.MaxPenalty {
			errs = append(errs, fmt.Errorf("initial_penalty %g outside [%g, %g]", px.InitialPenalty, px.MinPenalty, px.MaxPenalty))
		}
		if px.ML <= 0 || px.ML >= px.MR || px.MR >= 1 {
			errs = append(errs, fmt.Errorf("need 0 < ml < mr < 1, got ml=%g mr=%g", px.ML, px.MR))
		}
	}
	if p.Heuristic.Scale < 0 {
		errs = append(errs, fmt.Errorf("heuristic.scale must be non-negative, got %d", p.Heuristic.Scale))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
	}
	return nil
}

// Load reads YAML parameters from path on top of Defaults.
func Load(path string) (Params, error) {
	p := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read params: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse params: %w", err)
	}
	return p, nil
}

// Apply decodes flat overrides such as {"proximal.enabled": "true"} into p.
// Values may be strings; they are converted to the field types.
func (p Params) Apply(overrides map[string]string) (Params, error) {
	if len(overrides) == 0 {
		return p, nil
	}
	nested := map[string]any{}
	for key, value := range overrides {
		parts := strings.Split(strings.ToLower(key), ".")
		cur := nested
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[part] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = value
	}

	out := p
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return p, err
	}
	if err := decoder.Decode(nested); err != nil {
		return p, fmt.Errorf("failed to apply overrides: %w", err)
	}
	return out, nil
}

// FromEnv collects DECOMP_* variables as overrides. DECOMP_PROXIMAL__ML maps to
// "proximal.ml"; a double underscore separates nesting levels.
func FromEnv(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		out[strings.ReplaceAll(name, "__", ".")] = value
	}
	return out
}
