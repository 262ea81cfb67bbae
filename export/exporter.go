package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gorustyt/voxelmask/recast"
)

const (
	ManifestBin   = "voxel.bin"
	ManifestJSON  = "voxel.json"
	ManifestProto = "voxel.pb"
)

func ClientRegionBin(i int) string  { return fmt.Sprintf("region_%d.bin", i) }
func ClientRegionJSON(i int) string { return fmt.Sprintf("region_%d.json", i) }
func FullRegionJSON(i int) string   { return fmt.Sprintf("region_%d_full.json", i) }

type Options struct {
	RegionSize int
	Workers    int
	// Margin inflates every server free-space entry at both ends.
	Margin int
	// WriteOffset appends the offset byte to every client span.
	WriteOffset bool
}

func DefaultOptions() Options {
	return Options{
		RegionSize: 64,
		Workers:    runtime.NumCPU(),
		Margin:     2,
	}
}

// RegionResult is the outcome of exporting one region.
type RegionResult struct {
	Index       int
	Cells       int
	TotalSpans  int
	MergedSpans int
	Dropped     int
	Err         error
}

type ClientReport struct {
	Layout  Layout
	Regions []RegionResult
	// Manifest is nil when any region failed.
	Manifest *Manifest
	Stats    Stats
}

// Exporter writes the client, server and full JSON exports of a finished
// heightfield. Regions are written concurrently; each owns its inputs,
// dedup table and files.
type Exporter struct {
	fs   FileSystem
	log  *zap.Logger
	opts Options
}

func NewExporter(fsys FileSystem, log *zap.Logger, opts Options) *Exporter {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Exporter{fs: fsys, log: log, opts: opts}
}

func (e *Exporter) Options() Options {
	return e.opts
}

func (e *Exporter) layout(hf *recast.RcHeightfield, regionSize int) (Layout, error) {
	l, err := Partition(hf.Width, hf.Height, regionSize)
	if err != nil {
		return l, err
	}
	if l.Uneven() {
		e.log.Error("grid does not divide evenly into regions, edge regions truncated",
			zap.Int("width", hf.Width), zap.Int("height", hf.Height), zap.Int("region_size", regionSize))
	}
	return l, nil
}

// runRegions calls fn once per region with at most Workers in flight. A
// failing region does not stop its siblings; every failure is returned.
func (e *Exporter) runRegions(l Layout, fn func(r Region) RegionResult) ([]RegionResult, error) {
	results := make([]RegionResult, len(l.Regions))
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, r := range l.Regions {
		i, r := i, r
		g.Go(func() error {
			results[i] = fn(r)
			return nil
		})
	}
	_ = g.Wait()

	var err error
	for _, res := range results {
		if res.Err != nil {
			err = multierr.Append(err, fmt.Errorf("region %d: %w", res.Index, res.Err))
		}
		if res.Dropped > 0 {
			e.log.Error("column span count overflow, spans truncated",
				zap.Int("region", res.Index), zap.Int("dropped", res.Dropped))
		}
	}
	return results, err
}

func (e *Exporter) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return e.fs.WriteFile(name, data, 0o644)
}

func (e *Exporter) mkdirs(dirs ...string) error {
	var err error
	for _, d := range dirs {
		if d == "" {
			continue
		}
		err = multierr.Append(err, e.fs.MkdirAll(d, 0o755))
	}
	return err
}

// SaveClient writes region_{i}.bin to binDir and region_{i}.json to jsonDir
// for every region, then the manifest once all regions succeeded. flags is
// the optional per-column connect flag array mirrored into the JSON.
func (e *Exporter) SaveClient(hf *recast.RcHeightfield, flags []byte, binDir, jsonDir string) (*ClientReport, error) {
	l, err := e.layout(hf, e.opts.RegionSize)
	if err != nil {
		return nil, err
	}
	if err := e.mkdirs(binDir, jsonDir); err != nil {
		return nil, err
	}

	results, err := e.runRegions(l, func(r Region) RegionResult {
		region, dropped := BuildClientRegion(hf, r, flags)
		res := RegionResult{
			Index:       r.Index,
			Cells:       r.CellCount(),
			TotalSpans:  region.TotalSpanNum,
			MergedSpans: region.MergeSpanNum,
			Dropped:     dropped,
		}
		res.Err = multierr.Append(
			e.fs.WriteFile(filepath.Join(binDir, ClientRegionBin(r.Index)), EncodeClientRegion(region, e.opts.WriteOffset), 0o644),
			e.writeJSON(filepath.Join(jsonDir, ClientRegionJSON(r.Index)), region),
		)
		e.log.Debug("merged region spans",
			zap.Int("region", r.Index), zap.Int("merged", res.MergedSpans), zap.Int("total", res.TotalSpans))
		return res
	})

	report := &ClientReport{Layout: l, Regions: results, Stats: ColumnStats(hf)}
	merged := 0
	for _, res := range results {
		merged += res.MergedSpans
	}
	report.Stats.setMerged(merged)
	if err != nil {
		e.log.Error("client export failed, manifest not written", zap.Error(err))
		return report, err
	}

	m := NewManifest(hf, l)
	if err := e.writeManifest(m, binDir, jsonDir); err != nil {
		return report, err
	}
	report.Manifest = &m
	e.log.Info("client export done",
		zap.Int("regions", len(l.Regions)),
		zap.Int("spans", report.Stats.Spans),
		zap.Int("merged", report.Stats.MergedSpans),
		zap.Float64("dedup_ratio", report.Stats.DedupRatio))
	return report, nil
}

func (e *Exporter) writeManifest(m Manifest, binDir, jsonDir string) error {
	bin, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	pb, err := m.EncodeProto()
	if err != nil {
		return err
	}
	return multierr.Combine(
		e.fs.WriteFile(filepath.Join(binDir, ManifestBin), bin, 0o644),
		e.fs.WriteFile(filepath.Join(binDir, ManifestProto), pb, 0o644),
		e.writeJSON(filepath.Join(jsonDir, ManifestJSON), m),
	)
}

// ServerJSONPath is the JSON mirror written next to a server mask file.
func ServerJSONPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
}

// SaveServer writes the server mask to path, its JSON mirror next to it and,
// when debugPath is set, the text rendering.
func (e *Exporter) SaveServer(hf *recast.RcHeightfield, path, debugPath string) (*ServerMask, error) {
	m, dropped := BuildServerMask(hf, e.opts.Margin)
	if dropped > 0 {
		e.log.Error("column span count overflow, server entries truncated", zap.Int("dropped", dropped))
	}
	if err := e.mkdirs(filepath.Dir(path)); err != nil {
		return nil, err
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	err = multierr.Append(
		e.fs.WriteFile(path, data, 0o644),
		e.writeJSON(ServerJSONPath(path), m.jsonMirror()),
	)
	if debugPath != "" {
		var sb strings.Builder
		if werr := m.WriteText(&sb); werr != nil {
			err = multierr.Append(err, werr)
		} else {
			err = multierr.Append(err, e.fs.WriteFile(debugPath, []byte(sb.String()), 0o644))
		}
	}
	if err != nil {
		return m, err
	}
	e.log.Info("server export done",
		zap.String("path", path), zap.Int("entries", len(m.Entries)), zap.Int("margin", m.Margin))
	return m, nil
}

// SaveFullJSON writes region_{i}_full.json, every span of every column with
// its area id, for each region.
func (e *Exporter) SaveFullJSON(hf *recast.RcHeightfield, dir string) (Layout, error) {
	l, err := e.layout(hf, e.opts.RegionSize)
	if err != nil {
		return l, err
	}
	if err := e.mkdirs(dir); err != nil {
		return l, err
	}
	_, err = e.runRegions(l, func(r Region) RegionResult {
		full, dropped := BuildFullRegion(hf, r)
		return RegionResult{
			Index:   r.Index,
			Cells:   r.CellCount(),
			Dropped: dropped,
			Err:     e.writeJSON(filepath.Join(dir, FullRegionJSON(r.Index)), full),
		}
	})
	return l, err
}
