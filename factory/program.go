/*
Package factory converts program definition files into loyalty programs.

PURPOSE:
  Hotels describe their loyalty programs in YAML or JSON. The factory turns
  those definitions into loyalty.ProgramConfig values so programs can be
  configured without code changes. The same schema is used by the HTTP API
  for program bodies.

YAML SCHEMA:
  programs:
    - hotel_id: hotel-1
      channel: ""                 # optional, "" = hotel-wide
      hotel_group_id: group-1     # optional, pools points across the group
      points_per_currency_unit: 1
      points_per_night: 100
      service_type_multipliers:
        laundry: 1.2
        dining: 0.5
      redemption:
        points_per_currency_unit: 100
        minimum: 100
        maximum: 50000            # optional
      expiration_months: 12       # 0 = points never expire
      active: true                # optional, default true
      tiers:
        - {name: BRONZE,   min_points: 0,     max_points: 999,  discount_percentage: 0}
        - {name: SILVER,   min_points: 1000,  max_points: 2999, discount_percentage: 5}
        - {name: PLATINUM, min_points: 10000,                   discount_percentage: 15}

  Omitting max_points makes the tier unbounded.

USAGE:
  programs, err := factory.LoadFile("programs.yaml")
  for _, p := range programs {
      svc.UpsertProgram(ctx, p)
  }

SEE ALSO:
  - loyalty/program.go: ProgramConfig and its validation
  - api/handlers.go: PUT /api/programs/{hotel}
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// Number is a decimal written either as a number or a string. Strings keep
// exact precision in JSON.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = ""
		return nil
	}
	*n = Number(strings.Trim(s, `"`))
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return []byte(n), nil
}

func (n Number) decimal(field string, def decimal.Decimal) (decimal.Decimal, *loyalty.Violation) {
	if n == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, &loyalty.Violation{Field: field, Message: fmt.Sprintf("%q is not a number", string(n))}
	}
	return d, nil
}

func numberOf(d decimal.Decimal) Number { return Number(d.String()) }

// File is the top-level document of a program file.
type File struct {
	Programs []ProgramSpec `json:"programs" yaml:"programs"`
}

// ProgramSpec is the file and wire representation of a program.
type ProgramSpec struct {
	HotelID                string            `json:"hotel_id" yaml:"hotel_id"`
	Channel                string            `json:"channel,omitempty" yaml:"channel,omitempty"`
	HotelGroupID           string            `json:"hotel_group_id,omitempty" yaml:"hotel_group_id,omitempty"`
	PointsPerCurrencyUnit  Number            `json:"points_per_currency_unit" yaml:"points_per_currency_unit"`
	PointsPerNight         Number            `json:"points_per_night,omitempty" yaml:"points_per_night,omitempty"`
	ServiceTypeMultipliers map[string]Number `json:"service_type_multipliers,omitempty" yaml:"service_type_multipliers,omitempty"`
	Redemption             RedemptionSpec    `json:"redemption" yaml:"redemption"`
	ExpirationMonths       int               `json:"expiration_months" yaml:"expiration_months"`
	Active                 *bool             `json:"active,omitempty" yaml:"active,omitempty"`
	Tiers                  []TierSpec        `json:"tiers" yaml:"tiers"`
	Version                int64             `json:"version,omitempty" yaml:"-"`
}

type RedemptionSpec struct {
	PointsPerCurrencyUnit Number `json:"points_per_currency_unit" yaml:"points_per_currency_unit"`
	Minimum               int64  `json:"minimum" yaml:"minimum"`
	Maximum               *int64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
}

// TierSpec describes one tier. A nil MaxPoints means unbounded.
type TierSpec struct {
	Name               string   `json:"name" yaml:"name"`
	MinPoints          int64    `json:"min_points" yaml:"min_points"`
	MaxPoints          *int64   `json:"max_points,omitempty" yaml:"max_points,omitempty"`
	DiscountPercentage Number   `json:"discount_percentage" yaml:"discount_percentage"`
	Benefits           []string `json:"benefits,omitempty" yaml:"benefits,omitempty"`
}

// =============================================================================
// PROGRAM FACTORY
// =============================================================================

// Format selects the decoder for Parse.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ProgramFactory converts program files to loyalty programs.
type ProgramFactory struct{}

func NewProgramFactory() *ProgramFactory {
	return &ProgramFactory{}
}

// LoadFile reads a program file, choosing the format from the extension
// (.json is JSON, anything else YAML).
func LoadFile(path string) ([]loyalty.ProgramConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program file: %w", err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	return NewProgramFactory().Parse(data, format)
}

// Parse decodes a program file and validates every program in it.
func (f *ProgramFactory) Parse(data []byte, format Format) ([]loyalty.ProgramConfig, error) {
	var file File
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &file)
	default:
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse program file: %w", err)
	}

	seen := make(map[loyalty.ProgramKey]bool)
	out := make([]loyalty.ProgramConfig, 0, len(file.Programs))
	for i, spec := range file.Programs {
		cfg, err := f.FromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("program %d (%s): %w", i, spec.HotelID, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("program %d (%s): %w", i, cfg.Key(), err)
		}
		if seen[cfg.Key()] {
			return nil, fmt.Errorf("program %d: duplicate program %s", i, cfg.Key())
		}
		seen[cfg.Key()] = true
		out = append(out, cfg)
	}
	return out, nil
}

// FromSpec converts a ProgramSpec to a ProgramConfig. Only number syntax is
// checked here; ProgramConfig.Validate checks the rules.
func (f *ProgramFactory) FromSpec(spec ProgramSpec) (loyalty.ProgramConfig, error) {
	var violations []loyalty.Violation
	num := func(n Number, field string, def decimal.Decimal) decimal.Decimal {
		d, v := n.decimal(field, def)
		if v != nil {
			violations = append(violations, *v)
		}
		return d
	}

	cfg := loyalty.ProgramConfig{
		HotelID:               spec.HotelID,
		Channel:               spec.Channel,
		HotelGroupID:          spec.HotelGroupID,
		PointsPerCurrencyUnit: num(spec.PointsPerCurrencyUnit, "points_per_currency_unit", decimal.Zero),
		PointsPerNight:        num(spec.PointsPerNight, "points_per_night", decimal.Zero),
		Redemption: loyalty.RedemptionRule{
			PointsPerCurrencyUnit: num(spec.Redemption.PointsPerCurrencyUnit, "redemption.points_per_currency_unit", decimal.Zero),
			Minimum:               spec.Redemption.Minimum,
			Maximum:               spec.Redemption.Maximum,
		},
		ExpirationMonths: spec.ExpirationMonths,
		IsActive:         spec.Active == nil || *spec.Active,
		Version:          spec.Version,
	}

	if len(spec.ServiceTypeMultipliers) > 0 {
		cfg.ServiceTypeMultipliers = make(map[string]decimal.Decimal, len(spec.ServiceTypeMultipliers))
		for name, n := range spec.ServiceTypeMultipliers {
			cfg.ServiceTypeMultipliers[name] = num(n, "service_type_multipliers."+name, decimal.NewFromInt(1))
		}
	}

	for i, ts := range spec.Tiers {
		tier := loyalty.Tier{
			Name:               ts.Name,
			MinPoints:          ts.MinPoints,
			MaxPoints:          loyalty.Unbounded,
			DiscountPercentage: num(ts.DiscountPercentage, fmt.Sprintf("tiers[%d].discount_percentage", i), decimal.Zero),
			Benefits:           ts.Benefits,
		}
		if ts.MaxPoints != nil {
			tier.MaxPoints = *ts.MaxPoints
		}
		cfg.Tiers = append(cfg.Tiers, tier)
	}

	if len(violations) > 0 {
		return loyalty.ProgramConfig{}, &loyalty.ConfigError{Violations: violations}
	}
	return cfg, nil
}

// ToSpec converts a ProgramConfig back to its file representation.
func (f *ProgramFactory) ToSpec(cfg loyalty.ProgramConfig) ProgramSpec {
	active := cfg.IsActive
	spec := ProgramSpec{
		HotelID:               cfg.HotelID,
		Channel:               cfg.Channel,
		HotelGroupID:          cfg.HotelGroupID,
		PointsPerCurrencyUnit: numberOf(cfg.PointsPerCurrencyUnit),
		PointsPerNight:        numberOf(cfg.PointsPerNight),
		Redemption: RedemptionSpec{
			PointsPerCurrencyUnit: numberOf(cfg.Redemption.PointsPerCurrencyUnit),
			Minimum:               cfg.Redemption.Minimum,
			Maximum:               cfg.Redemption.Maximum,
		},
		ExpirationMonths: cfg.ExpirationMonths,
		Active:           &active,
		Version:          cfg.Version,
	}

	if len(cfg.ServiceTypeMultipliers) > 0 {
		spec.ServiceTypeMultipliers = make(map[string]Number, len(cfg.ServiceTypeMultipliers))
		for name, m := range cfg.ServiceTypeMultipliers {
			spec.ServiceTypeMultipliers[name] = numberOf(m)
		}
	}

	tiers := append([]loyalty.Tier(nil), cfg.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinPoints < tiers[j].MinPoints })
	for _, t := range tiers {
		ts := TierSpec{
			Name:               t.Name,
			MinPoints:          t.MinPoints,
			DiscountPercentage: numberOf(t.DiscountPercentage),
			Benefits:           t.Benefits,
		}
		if t.MaxPoints != loyalty.Unbounded {
			limit := t.MaxPoints
			ts.MaxPoints = &limit
		}
		spec.Tiers = append(spec.Tiers, ts)
	}
	return spec
}

// TiersFromSpec converts tier specs alone, as used by tier table replacement.
func (f *ProgramFactory) TiersFromSpec(specs []TierSpec) ([]loyalty.Tier, error) {
	cfg, err := f.FromSpec(ProgramSpec{Tiers: specs})
	if err != nil {
		return nil, err
	}
	return cfg.Tiers, nil
}
