package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/common/logger"
	"github.com/gorustyt/voxelmask/export"
)

var ErrInvalid = errors.New("config: invalid")

type Agent struct {
	Height   float32 `yaml:"height"`
	Radius   float32 `yaml:"radius"`
	Climb    float32 `yaml:"climb"`
	MaxSlope float32 `yaml:"max_slope"`
}

type Voxel struct {
	CellSize   float32 `yaml:"cell_size"`
	CellHeight float32 `yaml:"cell_height"`
	// BoundsMin and BoundsMax are optional; the mesh bounds are used when
	// both are empty.
	BoundsMin      []float32 `yaml:"bounds_min"`
	BoundsMax      []float32 `yaml:"bounds_max"`
	FillFirstSpans bool      `yaml:"fill_first_spans"`
}

type Filters struct {
	LowHangingObstacles    bool `yaml:"low_hanging_obstacles"`
	LedgeSpans             bool `yaml:"ledge_spans"`
	WalkableLowHeightSpans bool `yaml:"walkable_low_height_spans"`
}

// Input is one OBJ file rasterized under Mask with the initial Area.
type Input struct {
	Path  string  `yaml:"path"`
	Scale float32 `yaml:"scale"`
	Area  uint8   `yaml:"area"`
	Mask  uint16  `yaml:"mask"`
}

type Export struct {
	RegionSize  int    `yaml:"region_size"`
	Workers     int    `yaml:"workers"`
	Margin      int    `yaml:"margin"`
	WriteOffset bool   `yaml:"write_offset"`
	OutDir      string `yaml:"out_dir"`
	Client      bool   `yaml:"client"`
	Server      bool   `yaml:"server"`
	FullJSON    bool   `yaml:"full_json"`
	ServerDebug bool   `yaml:"server_debug"`
}

type Config struct {
	MapID   int           `yaml:"map_id"`
	Agent   Agent         `yaml:"agent"`
	Voxel   Voxel         `yaml:"voxel"`
	Filters Filters       `yaml:"filters"`
	Seed    []float32     `yaml:"seed"`
	Inputs  []Input       `yaml:"inputs"`
	Export  Export        `yaml:"export"`
	Log     logger.Config `yaml:"log"`
	// Catalog is the sqlite file export runs are recorded in. Empty disables
	// the catalog.
	Catalog string `yaml:"catalog"`
}

func Default() *Config {
	exp := export.DefaultOptions()
	return &Config{
		Agent: Agent{
			Height:   2,
			Radius:   0.5,
			Climb:    0.9,
			MaxSlope: 45,
		},
		Voxel: Voxel{
			CellSize:   0.5,
			CellHeight: 0.25,
		},
		Filters: Filters{
			LowHangingObstacles:    true,
			LedgeSpans:             true,
			WalkableLowHeightSpans: true,
		},
		Export: Export{
			RegionSize: exp.RegionSize,
			Workers:    runtime.NumCPU(),
			Margin:     exp.Margin,
			OutDir:     "out",
			Client:     true,
			Server:     true,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var err error
	if c.Voxel.CellSize <= 0 {
		err = multierr.Append(err, invalid("voxel.cell_size %v must be positive", c.Voxel.CellSize))
	}
	if c.Voxel.CellHeight <= 0 {
		err = multierr.Append(err, invalid("voxel.cell_height %v must be positive", c.Voxel.CellHeight))
	}
	if c.Agent.Height <= 0 {
		err = multierr.Append(err, invalid("agent.height %v must be positive", c.Agent.Height))
	}
	if c.Agent.Radius < 0 || c.Agent.Climb < 0 {
		err = multierr.Append(err, invalid("agent.radius %v and agent.climb %v must not be negative", c.Agent.Radius, c.Agent.Climb))
	}
	if c.Agent.MaxSlope < 0 || c.Agent.MaxSlope >= 90 {
		err = multierr.Append(err, invalid("agent.max_slope %v must be in [0, 90)", c.Agent.MaxSlope))
	}
	if (len(c.Voxel.BoundsMin) != 0 || len(c.Voxel.BoundsMax) != 0) &&
		(len(c.Voxel.BoundsMin) != 3 || len(c.Voxel.BoundsMax) != 3) {
		err = multierr.Append(err, invalid("voxel.bounds_min and voxel.bounds_max need 3 values each"))
	}
	if len(c.Seed) != 0 && len(c.Seed) != 3 {
		err = multierr.Append(err, invalid("seed needs 3 values, got %d", len(c.Seed)))
	}
	if c.Export.RegionSize <= 0 {
		err = multierr.Append(err, invalid("export.region_size %d must be positive", c.Export.RegionSize))
	}
	if c.Export.Margin < 0 {
		err = multierr.Append(err, invalid("export.margin %d must not be negative", c.Export.Margin))
	}
	for i, in := range c.Inputs {
		if in.Path == "" {
			err = multierr.Append(err, invalid("inputs[%d].path is empty", i))
		}
	}
	return err
}

// Bounds returns the configured bounding box, ok is false when none is set.
func (c *Config) Bounds() (bmin, bmax common.Vec3, ok bool) {
	if len(c.Voxel.BoundsMin) != 3 || len(c.Voxel.BoundsMax) != 3 {
		return bmin, bmax, false
	}
	copy(bmin[:], c.Voxel.BoundsMin)
	copy(bmax[:], c.Voxel.BoundsMax)
	return bmin, bmax, true
}

func (c *Config) SeedPos() (common.Vec3, bool) {
	var p common.Vec3
	if len(c.Seed) != 3 {
		return p, false
	}
	copy(p[:], c.Seed)
	return p, true
}

func (c *Config) ExportOptions() export.Options {
	return export.Options{
		RegionSize:  c.Export.RegionSize,
		Workers:     c.Export.Workers,
		Margin:      c.Export.Margin,
		WriteOffset: c.Export.WriteOffset,
	}
}

func (c *Config) ClientBinDir() string  { return filepath.Join(c.Export.OutDir, "client", "bin") }
func (c *Config) ClientJSONDir() string { return filepath.Join(c.Export.OutDir, "client", "json") }
func (c *Config) FullJSONDir() string   { return filepath.Join(c.Export.OutDir, "full") }

func (c *Config) ServerMaskPath() string {
	return filepath.Join(c.Export.OutDir, "server", fmt.Sprintf("conf_scene_mask_%d.bytes", c.MapID))
}

// ServerDebugPath is empty unless the text dump is enabled.
func (c *Config) ServerDebugPath() string {
	if !c.Export.ServerDebug {
		return ""
	}
	return filepath.Join(c.Export.OutDir, "server", "ByteCompareTxt.txt")
}
