package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// WorldConfig describes a world: its size, the master seed and the content of
// every non-empty cell, keyed by location in R<row>C<column> form.
type WorldConfig struct {
	Rows    int                       `yaml:"rows" json:"rows"`
	Columns int                       `yaml:"columns" json:"columns"`
	Seed    int64                     `yaml:"seed" json:"seed"`
	Cells   map[string]CellDescriptor `yaml:"cells" json:"cells"`
}

// CellDescriptor is the content of one cell. The type is given either by name
// or by numeric type ID. Source and Target carry optional strategy settings;
// omitted settings take the defaults.
type CellDescriptor struct {
	Type   string            `yaml:"type,omitempty" json:"type,omitempty"`
	TypeID int               `yaml:"type_id,omitempty" json:"type_id,omitempty"`
	Source *SourceDescriptor `yaml:"source,omitempty" json:"source,omitempty"`
	Target *TargetDescriptor `yaml:"target,omitempty" json:"target,omitempty"`
}

// SourceDescriptor configures a source. MaxSpawns <= 0 means unlimited.
type SourceDescriptor struct {
	Spawn     SpawnDescriptor    `yaml:"spawn" json:"spawn"`
	Movement  MovementDescriptor `yaml:"movement" json:"movement"`
	MaxSpawns int                `yaml:"max_spawns" json:"max_spawns"`
	Speed     SpeedDescriptor    `yaml:"speed" json:"speed"`
	Patience  PatienceDescriptor `yaml:"patience" json:"patience"`
}

// SpawnDescriptor selects a spawn strategy. Rate applies to "fixed-rate", Lambda to "poisson".
type SpawnDescriptor struct {
	Strategy string   `yaml:"strategy" json:"strategy"`
	Rate     *float64 `yaml:"rate" json:"rate,omitempty"`
	Lambda   *float64 `yaml:"lambda" json:"lambda,omitempty"`
}

// MovementDescriptor selects a movement strategy and its crowd repulsion.
type MovementDescriptor struct {
	Strategy  string     `yaml:"strategy" json:"strategy"`
	Radius    *int       `yaml:"radius" json:"radius,omitempty"`
	Mollifier *Mollifier `yaml:"mollifier" json:"mollifier,omitempty"`
}

// SpeedDescriptor selects a speed generator. Speed applies to "fixed"; Mean and Deviation to "norm".
type SpeedDescriptor struct {
	Generator string   `yaml:"generator" json:"generator"`
	Speed     *float64 `yaml:"speed" json:"speed,omitempty"`
	Mean      *float64 `yaml:"mean" json:"mean,omitempty"`
	Deviation *float64 `yaml:"deviation" json:"deviation,omitempty"`
}

// PatienceDescriptor selects a patience generator. Patience applies to "fixed"; Mean and MaxDeviation to "norm".
type PatienceDescriptor struct {
	Generator    string `yaml:"generator" json:"generator"`
	Patience     *int   `yaml:"patience" json:"patience,omitempty"`
	Mean         *int   `yaml:"mean" json:"mean,omitempty"`
	MaxDeviation *int   `yaml:"max_deviation" json:"max_deviation,omitempty"`
}

// TargetDescriptor selects a consume strategy.
type TargetDescriptor struct {
	Consume string `yaml:"consume" json:"consume"`
}

// ValidSpawnStrategies is the set of recognized spawn strategy names. "" selects the default.
var ValidSpawnStrategies = map[string]bool{"": true, "fixed-rate": true, "poisson": true}

// ValidMovementStrategies is the set of recognized movement strategy names.
var ValidMovementStrategies = map[string]bool{"": true, MovementEuclidean: true, MovementDijkstra: true, MovementFastMarching: true}

// ValidConsumeStrategies is the set of recognized consume strategy names.
var ValidConsumeStrategies = map[string]bool{"": true, "remove": true, "revive": true}

// ValidSpeedGenerators is the set of recognized speed generator names.
var ValidSpeedGenerators = map[string]bool{"": true, "fixed": true, "norm": true}

// ValidPatienceGenerators is the set of recognized patience generator names.
var ValidPatienceGenerators = map[string]bool{"": true, "fixed": true, "norm": true}

// worldSchema checks the structure of a world file before it is decoded.
const worldSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["rows", "columns"],
  "additionalProperties": false,
  "properties": {
    "rows": {"type": "integer", "minimum": 1},
    "columns": {"type": "integer", "minimum": 1},
    "seed": {"type": "integer"},
    "cells": {
      "type": "object",
      "propertyNames": {"pattern": "^R[0-9]+C[0-9]+$"},
      "additionalProperties": {"$ref": "#/$defs/cell"}
    }
  },
  "$defs": {
    "cell": {
      "type": "object",
      "additionalProperties": false,
      "anyOf": [{"required": ["type"]}, {"required": ["type_id"]}],
      "properties": {
        "type": {"enum": ["person", "obstacle", "source", "target", "light-barrier"]},
        "type_id": {"type": "integer", "minimum": 1, "maximum": 5},
        "source": {"$ref": "#/$defs/source"},
        "target": {"$ref": "#/$defs/target"}
      }
    },
    "source": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "spawn": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "strategy": {"type": "string"},
            "rate": {"type": "number", "exclusiveMinimum": 0},
            "lambda": {"type": "number", "exclusiveMinimum": 0}
          }
        },
        "movement": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "strategy": {"type": "string"},
            "radius": {"type": "integer", "minimum": 0},
            "mollifier": {
              "type": "object",
              "additionalProperties": false,
              "properties": {
                "range": {"type": "integer", "minimum": 0},
                "strength": {"type": "number", "minimum": 0}
              }
            }
          }
        },
        "max_spawns": {"type": "integer"},
        "speed": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "generator": {"type": "string"},
            "speed": {"type": "number", "exclusiveMinimum": 0},
            "mean": {"type": "number", "exclusiveMinimum": 0},
            "deviation": {"type": "number", "minimum": 0}
          }
        },
        "patience": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "generator": {"type": "string"},
            "patience": {"type": "integer", "minimum": 0},
            "mean": {"type": "integer", "minimum": 0},
            "max_deviation": {"type": "integer", "minimum": 0}
          }
        }
      }
    },
    "target": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "consume": {"type": "string"}
      }
    }
  }
}`

var compiledWorldSchema = jsonschema.MustCompileString("world.schema.json", worldSchema)

// LoadWorldConfig reads a YAML (or JSON) world file, checks it against the world
// schema, decodes it strictly and validates it.
func LoadWorldConfig(path string) (*WorldConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading world config: %w", err)
	}
	return ParseWorldConfig(data)
}

// ParseWorldConfig is LoadWorldConfig on in-memory data.
func ParseWorldConfig(data []byte) (*WorldConfig, error) {
	if err := validateWorldSchema(data); err != nil {
		return nil, err
	}

	var cfg WorldConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing world config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid world config: %w", err)
	}
	return &cfg, nil
}

// validateWorldSchema decodes data generically and validates it against worldSchema.
// The value goes through encoding/json so the validator sees JSON types only.
func validateWorldSchema(data []byte) error {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("parsing world config: %w", err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("converting world config to JSON: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("converting world config to JSON: %w", err)
	}
	if err := compiledWorldSchema.Validate(doc); err != nil {
		return fmt.Errorf("world config does not match schema: %w", err)
	}
	return nil
}

// Validate checks dimensions, location keys, object types and strategy settings.
func (c *WorldConfig) Validate() error {
	if c.Rows <= 0 || c.Columns <= 0 {
		return fmt.Errorf("world must have positive dimensions, got %dx%d", c.Rows, c.Columns)
	}
	for key, cell := range c.Cells {
		loc, err := ParseLocation(key)
		if err != nil {
			return err
		}
		if loc.Row >= c.Rows || loc.Column >= c.Columns {
			return fmt.Errorf("cell %s: %w", key, ErrOutOfBounds)
		}
		if err := cell.validate(); err != nil {
			return fmt.Errorf("cell %s: %w", key, err)
		}
	}
	return nil
}

func (d CellDescriptor) validate() error {
	t, err := ParseObjectType(d.Type, d.TypeID)
	if err != nil {
		return err
	}
	if d.Type != "" && d.TypeID != 0 && t.ID() != d.TypeID {
		return fmt.Errorf("type %q does not match type_id %d", d.Type, d.TypeID)
	}
	if d.Source != nil && t != TypeSource {
		return fmt.Errorf("source settings on a %s cell", t)
	}
	if d.Target != nil && t != TypeTarget {
		return fmt.Errorf("target settings on a %s cell", t)
	}
	if d.Source != nil {
		if err := d.Source.validate(); err != nil {
			return err
		}
	}
	if d.Target != nil && !ValidConsumeStrategies[d.Target.Consume] {
		return fmt.Errorf("unknown consume strategy %q", d.Target.Consume)
	}
	return nil
}

func (d *SourceDescriptor) validate() error {
	if !ValidSpawnStrategies[d.Spawn.Strategy] {
		return fmt.Errorf("unknown spawn strategy %q", d.Spawn.Strategy)
	}
	if !ValidMovementStrategies[d.Movement.Strategy] {
		return fmt.Errorf("unknown movement strategy %q", d.Movement.Strategy)
	}
	if !ValidSpeedGenerators[d.Speed.Generator] {
		return fmt.Errorf("unknown speed generator %q", d.Speed.Generator)
	}
	if !ValidPatienceGenerators[d.Patience.Generator] {
		return fmt.Errorf("unknown patience generator %q", d.Patience.Generator)
	}
	// Parameter range validation
	if d.Spawn.Rate != nil && !(*d.Spawn.Rate > 0) {
		return fmt.Errorf("spawn rate must be positive, got %g", *d.Spawn.Rate)
	}
	if d.Spawn.Lambda != nil && !(*d.Spawn.Lambda > 0) {
		return fmt.Errorf("spawn lambda must be positive, got %g", *d.Spawn.Lambda)
	}
	if d.Movement.Radius != nil && *d.Movement.Radius < 0 {
		return fmt.Errorf("movement radius must be non-negative, got %d", *d.Movement.Radius)
	}
	if m := d.Movement.Mollifier; m != nil && (m.Range < 0 || m.Strength < 0) {
		return fmt.Errorf("mollifier range and strength must be non-negative, got %d and %g", m.Range, m.Strength)
	}
	for name, v := range map[string]*float64{"speed": d.Speed.Speed, "speed mean": d.Speed.Mean} {
		if v != nil && !(*v > 0) {
			return fmt.Errorf("%s must be positive, got %g", name, *v)
		}
	}
	if d.Speed.Deviation != nil && *d.Speed.Deviation < 0 {
		return fmt.Errorf("speed deviation must be non-negative, got %g", *d.Speed.Deviation)
	}
	for name, v := range map[string]*int{"patience": d.Patience.Patience, "patience mean": d.Patience.Mean, "patience max_deviation": d.Patience.MaxDeviation} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	return nil
}

// BuildState creates the initial state described by cfg. Cells are placed in
// row-major order, so dummy people get IDs in that order.
func BuildState(cfg *WorldConfig) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st := NewState(cfg.Rows, cfg.Columns)

	locs := make([]Location, 0, len(cfg.Cells))
	byLoc := make(map[Location]CellDescriptor, len(cfg.Cells))
	for key, cell := range cfg.Cells {
		loc, _ := ParseLocation(key)
		locs = append(locs, loc)
		byLoc[loc] = cell
	}
	sortLocations(locs)

	for _, loc := range locs {
		obj, err := byLoc[loc].build(st, loc)
		if err != nil {
			return nil, fmt.Errorf("cell %s: %w", loc, err)
		}
		if err := st.SetCellOccupant(obj, loc); err != nil {
			return nil, fmt.Errorf("cell %s: %w", loc, err)
		}
	}
	return st, nil
}

func (d CellDescriptor) build(st *State, loc Location) (SimObject, error) {
	t, err := ParseObjectType(d.Type, d.TypeID)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypePerson:
		// static person, never scheduled to move
		return NewPerson(st.NextPersonID(), loc, loc, loc, DefaultSpeed, 0, 0), nil
	case TypeObstacle:
		return NewObstacle(loc), nil
	case TypeLightBarrier:
		return NewLightBarrier(loc), nil
	case TypeSource:
		desc := SourceDescriptor{}
		if d.Source != nil {
			desc = *d.Source
		}
		cfg, err := desc.Build()
		if err != nil {
			return nil, err
		}
		return NewSource(loc, cfg), nil
	case TypeTarget:
		desc := TargetDescriptor{}
		if d.Target != nil {
			desc = *d.Target
		}
		cfg, err := desc.Build()
		if err != nil {
			return nil, err
		}
		return NewTarget(loc, cfg), nil
	}
	return nil, fmt.Errorf("unsupported object type %s", t)
}

// Build creates fresh strategy instances for a source. Unset values take the defaults.
func (d SourceDescriptor) Build() (SourceConfig, error) {
	if err := d.validate(); err != nil {
		return SourceConfig{}, err
	}
	cfg := SourceConfig{MaxSpawns: d.MaxSpawns}

	switch d.Spawn.Strategy {
	case "", "fixed-rate":
		cfg.Spawn = NewFixedRateSpawnStrategy(valueOr(d.Spawn.Rate, DefaultFixedRate))
	case "poisson":
		cfg.Spawn = NewPoissonSpawnStrategy(valueOr(d.Spawn.Lambda, DefaultPoissonLambda))
	}

	radius := valueOr(d.Movement.Radius, DefaultRadius)
	mollifier := Mollifier{Range: DefaultMollifierRange, Strength: DefaultMollifierStrength}
	if d.Movement.Mollifier != nil {
		mollifier = *d.Movement.Mollifier
	}
	switch d.Movement.Strategy {
	case "", MovementEuclidean:
		cfg.Movement = NewEuclideanMovement(radius, mollifier)
	case MovementDijkstra:
		cfg.Movement = NewDijkstraMovement(radius, mollifier)
	case MovementFastMarching:
		cfg.Movement = NewFastMarchingMovement(radius, mollifier)
	}

	switch d.Speed.Generator {
	case "", "fixed":
		cfg.Speed = &FixedSpeedGenerator{Speed: valueOr(d.Speed.Speed, DefaultSpeed)}
	case "norm":
		cfg.Speed = &NormSpeedGenerator{
			Mean:      valueOr(d.Speed.Mean, DefaultSpeed),
			Deviation: valueOr(d.Speed.Deviation, DefaultSpeedDeviation),
		}
	}

	switch d.Patience.Generator {
	case "fixed":
		cfg.Patience = &FixedPatienceGenerator{Patience: valueOr(d.Patience.Patience, DefaultPatience)}
	case "", "norm":
		cfg.Patience = &NormPatienceGenerator{
			Mean:         valueOr(d.Patience.Mean, DefaultPatience),
			MaxDeviation: valueOr(d.Patience.MaxDeviation, DefaultPatienceDeviation),
		}
	}
	return cfg, nil
}

// Build creates a fresh consume strategy for a target. The default is "remove".
func (d TargetDescriptor) Build() (TargetConfig, error) {
	switch d.Consume {
	case "", "remove":
		return TargetConfig{Consume: RemoveConsumeStrategy{}}, nil
	case "revive":
		return TargetConfig{Consume: &ReviveConsumeStrategy{}}, nil
	}
	return TargetConfig{}, fmt.Errorf("unknown consume strategy %q", d.Consume)
}

// DefaultSourceConfig returns the configuration of a source without settings.
func DefaultSourceConfig() SourceConfig {
	cfg, _ := SourceDescriptor{}.Build()
	return cfg
}

// DefaultTargetConfig returns the configuration of a target without settings.
func DefaultTargetConfig() TargetConfig {
	cfg, _ := TargetDescriptor{}.Build()
	return cfg
}

// CellKeys returns the location keys of cfg in row-major order.
func (c *WorldConfig) CellKeys() []string {
	locs := make([]Location, 0, len(c.Cells))
	for key := range c.Cells {
		if loc, err := ParseLocation(key); err == nil {
			locs = append(locs, loc)
		}
	}
	sortLocations(locs)
	keys := make([]string, len(locs))
	for i, loc := range locs {
		keys[i] = loc.String()
	}
	return keys
}

func valueOr[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}
