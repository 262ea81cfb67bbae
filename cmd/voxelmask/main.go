// Command voxelmask builds voxel walkability data from OBJ scenes and
// inspects the exported files.
//
//	voxelmask build -config voxelmask.yaml [-map 7] [-out dir]
//	voxelmask dump [-o out.txt] conf_scene_mask_7.bytes
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gorustyt/voxelmask/catalog"
	"github.com/gorustyt/voxelmask/common/logger"
	"github.com/gorustyt/voxelmask/config"
	"github.com/gorustyt/voxelmask/export"
	"github.com/gorustyt/voxelmask/mesh"
	"github.com/gorustyt/voxelmask/voxel"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "voxelmask:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: voxelmask build|dump [flags]")

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "build":
		return runBuild(args[1:], stderr)
	case "dump":
		return runDump(args[1:], stdout, stderr)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func runDump(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outPath := fs.String("o", "", "write the text dump to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("dump: want one .bytes file, got %d arguments", fs.NArg())
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if *outPath == "" {
		return export.DumpServerMask(data, stdout)
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	err = export.DumpServerMask(data, f)
	return multierr.Append(err, f.Close())
}

func runBuild(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "voxelmask.yaml", "path to the YAML config")
	mapID := fs.Int("map", -1, "override the map id of the config")
	outDir := fs.String("out", "", "override the export directory of the config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *mapID >= 0 {
		cfg.MapID = *mapID
	}
	if *outDir != "" {
		cfg.Export.OutDir = *outDir
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	tool, err := newTool(cfg, filepath.Dir(*cfgPath), log)
	if err != nil {
		return err
	}
	if err := tool.Build(); err != nil {
		return err
	}
	return writeExports(cfg, tool, log)
}

func newTool(cfg *config.Config, baseDir string, log *zap.Logger) (*voxel.Tool, error) {
	tool := voxel.NewTool(log)
	err := tool.SetBuildConfig(cfg.Voxel.CellSize, cfg.Voxel.CellHeight,
		cfg.Agent.Height, cfg.Agent.Climb, cfg.Agent.Radius, cfg.Agent.MaxSlope)
	if err != nil {
		return nil, err
	}
	if bmin, bmax, ok := cfg.Bounds(); ok {
		tool.SetBoundBox(bmin, bmax)
	}
	if seed, ok := cfg.SeedPos(); ok {
		tool.SetSeed(seed)
	}
	tool.SetFilters(cfg.Filters.LowHangingObstacles, cfg.Filters.LedgeSpans, cfg.Filters.WalkableLowHeightSpans)
	tool.SetFillFirstSpans(cfg.Voxel.FillFirstSpans)
	tool.SetExportOptions(cfg.ExportOptions())

	for _, in := range cfg.Inputs {
		p := in.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		obj, err := loadObj(p, in.Scale)
		if err != nil {
			return nil, err
		}
		if err := tool.AddMesh(obj.Verts, obj.Tris, in.Area, in.Mask); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		log.Info("loaded mesh", zap.String("path", p), zap.Uint16("mask", in.Mask),
			zap.Int("verts", obj.VertCount()), zap.Int("tris", obj.TriCount()))
	}
	return tool, nil
}

func loadObj(p string, scale float32) (*mesh.Obj, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obj := mesh.NewObj()
	if scale > 0 {
		obj.Scale = scale
	}
	if err := obj.Load(f); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	obj.FileName = filepath.Base(p)
	return obj, nil
}

// writeExports writes the enabled exports and records the run in the catalog.
func writeExports(cfg *config.Config, tool *voxel.Tool, log *zap.Logger) error {
	stats := tool.Stats()
	record := catalog.Build{
		ID:                 stats.ID,
		MapID:              cfg.MapID,
		Width:              stats.Width,
		Height:             stats.Height,
		Spans:              stats.Spans,
		WalkableSpans:      stats.WalkableSpans,
		ClosedSpaceDemoted: stats.ClosedSpace.Demoted,
		Duration:           stats.Duration,
		ServerEntries:      -1,
	}

	var err error
	if cfg.Export.Client {
		report, cerr := tool.SaveClientData(cfg.ClientBinDir(), cfg.ClientJSONDir(), cfg.Export.RegionSize)
		err = multierr.Append(err, cerr)
		if report != nil {
			record.ManifestWritten = report.Manifest != nil
			for _, r := range report.Regions {
				cr := catalog.Region{
					Index:       r.Index,
					Cells:       r.Cells,
					TotalSpans:  r.TotalSpans,
					MergedSpans: r.MergedSpans,
					Dropped:     r.Dropped,
				}
				if r.Err != nil {
					cr.Err = r.Err.Error()
				}
				record.Regions = append(record.Regions, cr)
			}
		}
	}
	if cfg.Export.Server {
		m, serr := tool.SaveServerData(cfg.ServerMaskPath(), cfg.ServerDebugPath())
		err = multierr.Append(err, serr)
		if m != nil {
			record.ServerEntries = len(m.Entries)
		}
	}
	if cfg.Export.FullJSON {
		_, ferr := tool.SaveFullJSON(cfg.FullJSONDir(), cfg.Export.RegionSize)
		err = multierr.Append(err, ferr)
	}

	if cfg.Catalog != "" {
		cat, cerr := catalog.Open(cfg.Catalog, log)
		if cerr != nil {
			return multierr.Append(err, cerr)
		}
		defer cat.Close()
		err = multierr.Append(err, cat.RecordBuild(context.Background(), record))
	}
	return err
}
