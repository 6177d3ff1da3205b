// Package config loads the run configuration: the observation references,
// the directory layout and the per-workflow reduction profiles.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schema []byte

// Workflow names used as profile keys.
const (
	StandardStarWorkflow = "standard-star"
	CalibrationsWorkflow = "calibrations"
	ScienceWorkflow      = "science"
)

// Alias producers for the xeqxbrg generation.
const (
	AliasCopy       = "copy"
	AliasBadColumns = "bad-columns"
)

var ErrUnknownWorkflow = errors.New("unknown workflow")

// Config is loaded once per run and treated as read-only afterwards.
type Config struct {
	Observatory  string          `yaml:"observatory" json:"observatory" validate:"required"`
	MDF          string          `yaml:"mdf" json:"mdf" validate:"required"`
	BiasRefs     []string        `yaml:"bias_refs" json:"bias_refs" validate:"required,min=1,dive,required"`
	Layout       artifact.Layout `yaml:"layout" json:"layout"`
	Science      Target          `yaml:"science,omitempty" json:"science"`
	Standard     Target          `yaml:"standard,omitempty" json:"standard"`
	StandardStar StandardStar    `yaml:"standard_star" json:"standard_star" validate:"required"`
	Profiles     Profiles        `yaml:"profiles" json:"profiles"`
}

// Target is the reference set of one observation: its subjects and the
// flats and arcs taken with them.
type Target struct {
	Refs        []string    `yaml:"refs,omitempty" json:"refs" validate:"omitempty,dive,required"`
	FlatRefs    []string    `yaml:"flat_refs,omitempty" json:"flat_refs" validate:"omitempty,dive,required"`
	ArcRefs     []string    `yaml:"arc_refs,omitempty" json:"arc_refs" validate:"omitempty,dive,required"`
	BPM         string      `yaml:"bpm,omitempty" json:"bpm,omitempty"`
	GapSolution string      `yaml:"gap_solution,omitempty" json:"gap_solution,omitempty"`
	BadColumns  *BadColumns `yaml:"bad_columns,omitempty" json:"bad_columns,omitempty"`
}

func (t Target) Empty() bool {
	return len(t.Refs) == 0 && len(t.FlatRefs) == 0 && len(t.ArcRefs) == 0
}

// BadColumns describes the detector columns patched by the bad-columns detour.
type BadColumns struct {
	Columns []int `yaml:"columns" json:"columns" validate:"required,min=1,dive,min=1"`
	Width   int   `yaml:"width" json:"width" validate:"required,min=1"`
	Height  int   `yaml:"height" json:"height" validate:"required,min=1"`
}

type StandardStar struct {
	Name       string `yaml:"name" json:"name" validate:"required"`
	Root       string `yaml:"root" json:"root" validate:"required"`
	CalDir     string `yaml:"caldir" json:"caldir" validate:"required"`
	Extinction string `yaml:"extinction" json:"extinction" validate:"required"`
}

type Profiles struct {
	StandardStar Profile `yaml:"standard_star" json:"standard_star"`
	Calibrations Profile `yaml:"calibrations" json:"calibrations"`
	Science      Profile `yaml:"science" json:"science"`
}

// Profile carries every engine tunable of one workflow.
type Profile struct {
	Slits              string      `yaml:"slits" json:"slits" validate:"oneof=red blue both"`
	FlatScatter        Orders      `yaml:"flat_scatter" json:"flat_scatter"`
	SubjectScatter     Orders      `yaml:"subject_scatter" json:"subject_scatter"`
	InteractiveScatter bool        `yaml:"interactive_scatter" json:"interactive_scatter"`
	ExtractScience     bool        `yaml:"extract_science" json:"extract_science"`
	Alias              string      `yaml:"alias" json:"alias" validate:"oneof=copy bad-columns"`
	RunCalibrations    bool        `yaml:"run_calibrations" json:"run_calibrations"`
	Wavelength         Wavelength  `yaml:"wavelength" json:"wavelength"`
	Response           Response    `yaml:"response" json:"response"`
	CosmicRays         CosmicRays  `yaml:"cosmic_rays" json:"cosmic_rays"`
	Sensitivity        Sensitivity `yaml:"sensitivity" json:"sensitivity"`
	Show               Show        `yaml:"show" json:"show"`
}

// Orders is the polynomial order pair of a scatter fit. Several values fit
// the amplifier blocks separately.
type Orders struct {
	X []int `yaml:"x,flow" json:"x" validate:"required,min=1,dive,min=1"`
	Y []int `yaml:"y,flow" json:"y" validate:"required,min=1,dive,min=1"`
}

func (o Orders) XString() string {
	return joinInts(o.X)
}

func (o Orders) YString() string {
	return joinInts(o.Y)
}

func (o Orders) String() string {
	return "x=" + o.XString() + " y=" + o.YString()
}

type Wavelength struct {
	NLost       int     `yaml:"nlost" json:"nlost" validate:"min=0"`
	NTarget     int     `yaml:"ntarget" json:"ntarget" validate:"min=1"`
	Threshold   float64 `yaml:"threshold" json:"threshold" validate:"gt=0"`
	CoordList   string  `yaml:"coordlist" json:"coordlist" validate:"required"`
	Interactive bool    `yaml:"interactive" json:"interactive"`
}

type Response struct {
	Order       int    `yaml:"order" json:"order" validate:"min=1"`
	Function    string `yaml:"function" json:"function" validate:"required"`
	Sample      string `yaml:"sample" json:"sample"`
	Interactive bool   `yaml:"interactive" json:"interactive"`
}

type CosmicRays struct {
	LogFile string  `yaml:"logfile" json:"logfile"`
	KeyGain string  `yaml:"key_gain" json:"key_gain" validate:"required"`
	KeyRON  string  `yaml:"key_ron" json:"key_ron" validate:"required"`
	XOrder  int     `yaml:"xorder" json:"xorder"`
	YOrder  int     `yaml:"yorder" json:"yorder"`
	SigClip float64 `yaml:"sigclip" json:"sigclip" validate:"gt=0"`
	SigFrac float64 `yaml:"sigfrac" json:"sigfrac" validate:"gt=0"`
	ObjLim  float64 `yaml:"objlim" json:"objlim" validate:"gt=0"`
	NIter   int     `yaml:"niter" json:"niter" validate:"min=1"`
}

type Sensitivity struct {
	Function    string `yaml:"function" json:"function" validate:"required"`
	Order       int    `yaml:"order" json:"order" validate:"min=1"`
	Interactive bool   `yaml:"interactive" json:"interactive"`
}

// Show selects the optional display steps.
type Show struct {
	Flats    bool `yaml:"flats" json:"flats"`
	Scatter  bool `yaml:"scatter" json:"scatter"`
	QE       bool `yaml:"qe" json:"qe"`
	Response bool `yaml:"response" json:"response"`
}

// Profile returns the profile of a workflow by name.
func (c *Config) Profile(workflow string) (Profile, error) {
	switch workflow {
	case StandardStarWorkflow:
		return c.Profiles.StandardStar, nil
	case CalibrationsWorkflow:
		return c.Profiles.Calibrations, nil
	case ScienceWorkflow:
		return c.Profiles.Science, nil
	default:
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}
}

// ValidationError lists every problem found in a configuration document.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	if e.Source == "" {
		return "invalid configuration: " + strings.Join(e.Problems, "; ")
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

// Load reads, schema-checks, decodes and validates a YAML run file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			vErr.Source = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal renders cfg back to YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func checkSchema(doc map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to check config schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Problems: problems}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules the schema
// cannot express.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		for _, fe := range validationErrors {
			problems = append(problems, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
	}

	for _, named := range []struct {
		name   string
		target Target
	}{{"science", c.Science}, {"standard", c.Standard}} {
		if named.target.Empty() {
			continue
		}
		if len(named.target.Refs) == 0 || len(named.target.FlatRefs) == 0 || len(named.target.ArcRefs) == 0 {
			problems = append(problems, named.name+" needs refs, flat_refs and arc_refs")
		}
	}

	for _, wf := range []string{StandardStarWorkflow, ScienceWorkflow} {
		profile, _ := c.Profile(wf)
		if profile.Alias != AliasBadColumns {
			continue
		}
		target := c.Science
		if wf == StandardStarWorkflow {
			target = c.Standard
		}
		if target.BadColumns == nil {
			problems = append(problems, wf+" uses the bad-columns alias but its target has no bad_columns")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// TargetFor returns the reference set a workflow reduces.
func (c *Config) TargetFor(workflow string) (Target, error) {
	switch workflow {
	case StandardStarWorkflow:
		return c.Standard, nil
	case CalibrationsWorkflow, ScienceWorkflow:
		return c.Science, nil
	default:
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ",")
}
