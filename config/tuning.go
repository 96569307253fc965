// Package config holds every numeric constant the tactical core runs on.
// Values are fixed configuration: nothing here is learned or adjusted at
// runtime.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning groups the per-subsystem settings.
type Tuning struct {
	Field     Field     `yaml:"field"`
	Scheduler Scheduler `yaml:"scheduler"`
	Kite      Kite      `yaml:"kite"`
	Focus     Focus     `yaml:"focus"`
	Retreat   Retreat   `yaml:"retreat"`
	Formation Formation `yaml:"formation"`
	Worker    Worker    `yaml:"worker"`
	Analysis  Analysis  `yaml:"analysis"`
	Roles     Roles     `yaml:"roles"`
}

// Field configures the influence grid.
type Field struct {
	CellSize           float64 `yaml:"cell_size"`
	DecayRate          float64 `yaml:"decay_rate"`
	MaxRadius          float64 `yaml:"max_radius"` // world units
	DPSWeight          float64 `yaml:"dps_weight"`
	SupplyWeight       float64 `yaml:"supply_weight"`
	FlyingFactor       float64 `yaml:"flying_factor"`
	BuildingBase       float64 `yaml:"building_base"`
	BuildingMultiplier float64 `yaml:"building_multiplier"`
	DefenseMultiplier  float64 `yaml:"defense_multiplier"`
	DangerConstant     float64 `yaml:"danger_constant"`
	ContestedThreshold float64 `yaml:"contested_threshold"`
	PathThreatScale    float64 `yaml:"path_threat_scale"`
	MaxPathNodes       int     `yaml:"max_path_nodes"`
}

// AreaWeights weighs candidate cells in area searches.
type AreaWeights struct {
	Enemy    float64 `yaml:"enemy"`
	Distance float64 `yaml:"distance"`
	Friendly float64 `yaml:"friendly"`
}

// Scheduler sets the cadences of the per-tick driver, all in ticks.
type Scheduler struct {
	EvalInterval        int     `yaml:"eval_interval"`
	FieldInterval       int     `yaml:"field_interval"`
	FormationInterval   int     `yaml:"formation_interval"`
	ThreatInterval      int     `yaml:"threat_interval"`
	TransformInterval   int     `yaml:"transform_interval"`
	DiagnosticsInterval int     `yaml:"diagnostics_interval"`
	DangerThreshold     float64 `yaml:"danger_threshold"`
	CacheTTL            int     `yaml:"cache_ttl"`
}

type Kite struct {
	Cooldown        int     `yaml:"cooldown"`
	TriggerDistance float64 `yaml:"trigger_distance"`
	StepDistance    float64 `yaml:"step_distance"`
	ReengageDelay   int     `yaml:"reengage_delay"`
}

type Focus struct {
	SwitchMargin   float64 `yaml:"switch_margin"`
	CriticalHealth float64 `yaml:"critical_health"`
	RangeSlack     float64 `yaml:"range_slack"`
}

// Retreat configures the retreat/regroup state machine and rally placement.
type Retreat struct {
	HealthThreshold      float64     `yaml:"health_threshold"`
	GroupFraction        float64     `yaml:"group_fraction"`
	GroupHealthThreshold float64     `yaml:"group_health_threshold"`
	RallyTolerance       float64     `yaml:"rally_tolerance"`
	MinTicks             int         `yaml:"min_ticks"`
	RecoveryDelta        float64     `yaml:"recovery_delta"`
	HighHealth           float64     `yaml:"high_health"`
	ReengageDistance     float64     `yaml:"reengage_distance"`
	Distance             float64     `yaml:"distance"`
	ReengageMajority     float64     `yaml:"reengage_majority"`
	ReengageHealth       float64     `yaml:"reengage_health"`
	RallySnapRadius      float64     `yaml:"rally_snap_radius"`
	Duration             int         `yaml:"duration"`
	Aversion             float64     `yaml:"aversion"`
	Area                 AreaWeights `yaml:"area"`
}

// Formation sizes the slot layouts. Angles are radians.
type Formation struct {
	MeleeRadius          float64 `yaml:"melee_radius"`
	MeleeRadiusPerUnit   float64 `yaml:"melee_radius_per_unit"`
	MaxArc               float64 `yaml:"max_arc"`
	RangedOffset         float64 `yaml:"ranged_offset"`
	SiegeOffset          float64 `yaml:"siege_offset"`
	SupportOffset        float64 `yaml:"support_offset"`
	AirRadius            float64 `yaml:"air_radius"`
	SingleOffset         float64 `yaml:"single_offset"`
	Spacing              float64 `yaml:"spacing"`
	SpreadFactor         float64 `yaml:"spread_factor"`
	SeparationIterations int     `yaml:"separation_iterations"`
}

type Worker struct {
	Enabled   bool `yaml:"enabled"`
	Staleness int  `yaml:"staleness"`
	Timeout   int  `yaml:"timeout"`
}

// Analysis configures map-load strategic position extraction. Widths are in
// terrain zones, radii in world units.
type Analysis struct {
	ChokeMaxWidth    int     `yaml:"choke_max_width"`
	MinQuality       float64 `yaml:"min_quality"`
	AdjacencyRadius  float64 `yaml:"adjacency_radius"`
	ExpansionCluster float64 `yaml:"expansion_cluster"`
	MaxPositions     int     `yaml:"max_positions"`
}

// Roles holds the attack-range cutoffs used for role classification.
type Roles struct {
	ShortRange float64 `yaml:"short_range"`
	LongRange  float64 `yaml:"long_range"`
}

// Default returns a complete, validated baseline.
func Default() Tuning {
	return Tuning{
		Field: Field{
			CellSize:           4,
			DecayRate:          0.7,
			MaxRadius:          32,
			DPSWeight:          1,
			SupplyWeight:       2,
			FlyingFactor:       0.5,
			BuildingBase:       5,
			BuildingMultiplier: 1,
			DefenseMultiplier:  3,
			DangerConstant:     1,
			ContestedThreshold: 0.5,
			PathThreatScale:    1,
			MaxPathNodes:       8192,
		},
		Scheduler: Scheduler{
			EvalInterval:        4,
			FieldInterval:       8,
			FormationInterval:   40,
			ThreatInterval:      16,
			TransformInterval:   60,
			DiagnosticsInterval: 250,
			DangerThreshold:     0.6,
			CacheTTL:            30,
		},
		Kite: Kite{
			Cooldown:        12,
			TriggerDistance: 4,
			StepDistance:    3,
			ReengageDelay:   6,
		},
		Focus: Focus{
			SwitchMargin:   0.15,
			CriticalHealth: 0.25,
			RangeSlack:     2,
		},
		Retreat: Retreat{
			HealthThreshold:      0.3,
			GroupFraction:        0.5,
			GroupHealthThreshold: 0.35,
			RallyTolerance:       4,
			MinTicks:             100,
			RecoveryDelta:        0.2,
			HighHealth:           0.8,
			ReengageDistance:     12,
			Distance:             24,
			ReengageMajority:     0.75,
			ReengageHealth:       0.6,
			RallySnapRadius:      10,
			Duration:             150,
			Aversion:             0.8,
			Area:                 AreaWeights{Enemy: 1, Distance: 0.5, Friendly: 0.25},
		},
		Formation: Formation{
			MeleeRadius:          3,
			MeleeRadiusPerUnit:   0.5,
			MaxArc:               math.Pi * 0.75,
			RangedOffset:         4,
			SiegeOffset:          8,
			SupportOffset:        2,
			AirRadius:            1.5,
			SingleOffset:         2,
			Spacing:              1.5,
			SpreadFactor:         2,
			SeparationIterations: 4,
		},
		Worker: Worker{
			Staleness: 8,
			Timeout:   40,
		},
		Analysis: Analysis{
			ChokeMaxWidth:    3,
			MinQuality:       0.2,
			AdjacencyRadius:  48,
			ExpansionCluster: 12,
			MaxPositions:     64,
		},
		Roles: Roles{
			ShortRange: 2,
			LongRange:  9,
		},
	}
}

// Load reads a YAML file over the defaults. Missing keys keep their default
// value; unknown keys are an error.
func Load(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Tuning, error) {
	t := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Tuning{}, fmt.Errorf("parse tuning: %w", err)
	}
	t.Validate()
	return t, nil
}

// Validate clamps every value to its usable range.
func (t *Tuning) Validate() {
	f := &t.Field
	f.CellSize = clamp(f.CellSize, 1, 64)
	f.DecayRate = clamp(f.DecayRate, 0.05, 0.99)
	f.MaxRadius = clamp(f.MaxRadius, f.CellSize, 256)
	f.DPSWeight = clamp(f.DPSWeight, 0, 100)
	f.SupplyWeight = clamp(f.SupplyWeight, 0, 100)
	f.FlyingFactor = clamp(f.FlyingFactor, 0, 1)
	f.BuildingBase = clamp(f.BuildingBase, 0, 1000)
	f.BuildingMultiplier = clamp(f.BuildingMultiplier, 0, 100)
	f.DefenseMultiplier = clamp(f.DefenseMultiplier, 1, 100)
	f.DangerConstant = clamp(f.DangerConstant, 1e-3, 1000)
	f.ContestedThreshold = clamp(f.ContestedThreshold, 0, 1000)
	f.PathThreatScale = clamp(f.PathThreatScale, 0, 1000)
	f.MaxPathNodes = clampInt(f.MaxPathNodes, 64, 1<<20)

	s := &t.Scheduler
	s.EvalInterval = clampInt(s.EvalInterval, 1, 120)
	s.FieldInterval = clampInt(s.FieldInterval, 1, 600)
	s.FormationInterval = clampInt(s.FormationInterval, 1, 3000)
	s.ThreatInterval = clampInt(s.ThreatInterval, 1, 600)
	s.TransformInterval = clampInt(s.TransformInterval, 1, 3000)
	s.DiagnosticsInterval = clampInt(s.DiagnosticsInterval, 1, 100000)
	s.DangerThreshold = clamp(s.DangerThreshold, 0, 1)
	s.CacheTTL = clampInt(s.CacheTTL, 1, 3000)

	k := &t.Kite
	k.Cooldown = clampInt(k.Cooldown, 1, 600)
	k.TriggerDistance = clamp(k.TriggerDistance, 0, 64)
	k.StepDistance = clamp(k.StepDistance, 0.5, 64)
	k.ReengageDelay = clampInt(k.ReengageDelay, 1, 600)

	fo := &t.Focus
	fo.SwitchMargin = clamp(fo.SwitchMargin, 0, 1)
	fo.CriticalHealth = clamp(fo.CriticalHealth, 0, 1)
	fo.RangeSlack = clamp(fo.RangeSlack, 0, 64)

	r := &t.Retreat
	r.HealthThreshold = clamp(r.HealthThreshold, 0, 1)
	r.GroupFraction = clamp(r.GroupFraction, 0, 1)
	r.GroupHealthThreshold = clamp(r.GroupHealthThreshold, 0, 1)
	r.RallyTolerance = clamp(r.RallyTolerance, 0.5, 64)
	r.MinTicks = clampInt(r.MinTicks, 0, 100000)
	r.RecoveryDelta = clamp(r.RecoveryDelta, 0, 1)
	r.HighHealth = clamp(r.HighHealth, r.HealthThreshold, 1)
	r.ReengageDistance = clamp(r.ReengageDistance, r.RallyTolerance, 512)
	r.Distance = clamp(r.Distance, 1, 512)
	r.ReengageMajority = clamp(r.ReengageMajority, 0, 1)
	r.ReengageHealth = clamp(r.ReengageHealth, 0, 1)
	r.RallySnapRadius = clamp(r.RallySnapRadius, 0, 256)
	r.Duration = clampInt(r.Duration, 1, 100000)
	r.Aversion = clamp(r.Aversion, 0, 1)
	r.Area.Enemy = clamp(r.Area.Enemy, 0, 100)
	r.Area.Distance = clamp(r.Area.Distance, 0, 100)
	r.Area.Friendly = clamp(r.Area.Friendly, 0, 100)

	fm := &t.Formation
	fm.MeleeRadius = clamp(fm.MeleeRadius, 0.5, 64)
	fm.MeleeRadiusPerUnit = clamp(fm.MeleeRadiusPerUnit, 0, 16)
	fm.MaxArc = clamp(fm.MaxArc, 0.1, 2*math.Pi)
	fm.RangedOffset = clamp(fm.RangedOffset, 0, 64)
	fm.SiegeOffset = clamp(fm.SiegeOffset, fm.RangedOffset, 128)
	fm.SupportOffset = clamp(fm.SupportOffset, 0, 64)
	fm.AirRadius = clamp(fm.AirRadius, 0, 64)
	fm.SingleOffset = clamp(fm.SingleOffset, 0, 64)
	fm.Spacing = clamp(fm.Spacing, 0.25, 32)
	fm.SpreadFactor = clamp(fm.SpreadFactor, 1, 8)
	fm.SeparationIterations = clampInt(fm.SeparationIterations, 0, 32)

	w := &t.Worker
	w.Staleness = clampInt(w.Staleness, 0, 600)
	w.Timeout = clampInt(w.Timeout, w.Staleness+1, 6000)

	a := &t.Analysis
	a.ChokeMaxWidth = clampInt(a.ChokeMaxWidth, 1, 16)
	a.MinQuality = clamp(a.MinQuality, 0, 1)
	a.AdjacencyRadius = clamp(a.AdjacencyRadius, 0, 4096)
	a.ExpansionCluster = clamp(a.ExpansionCluster, 1, 256)
	a.MaxPositions = clampInt(a.MaxPositions, 1, 1024)

	ro := &t.Roles
	ro.ShortRange = clamp(ro.ShortRange, 0, 64)
	ro.LongRange = clamp(ro.LongRange, ro.ShortRange, 128)
}

// clampInt restricts v to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// clamp restricts v to [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Lerp linearly interpolates between min and max by t (0–1).
func Lerp(min, max, t float64) float64 {
	return min + (max-min)*clamp(t, 0, 1)
}
