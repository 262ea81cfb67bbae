package voxel

import (
	"github.com/gorustyt/voxelmask/export"
	"github.com/gorustyt/voxelmask/recast"
)

func (t *Tool) exporter(regionSize int) *export.Exporter {
	opts := t.exportOpts
	if regionSize > 0 {
		opts.RegionSize = regionSize
	}
	return export.NewExporter(t.fs, t.log, opts)
}

// SaveClientData writes the client region files, their JSON mirrors and the
// manifest. The connect flags of the connectivity index ride along in the
// JSON mirrors.
func (t *Tool) SaveClientData(binDir, jsonDir string, regionSize int) (*export.ClientReport, error) {
	idx, err := t.Index()
	if err != nil {
		return nil, err
	}
	t.ctx.StartTimer(recast.RC_TIMER_EXPORT)
	defer t.ctx.StopTimer(recast.RC_TIMER_EXPORT)
	return t.exporter(regionSize).SaveClient(t.solid, idx.ConnectFlags(), binDir, jsonDir)
}

// SaveServerData writes the server mask to path and, when debugPath is set,
// its text dump.
func (t *Tool) SaveServerData(path, debugPath string) (*export.ServerMask, error) {
	if t.solid == nil {
		return nil, ErrNotBuilt
	}
	t.ctx.StartTimer(recast.RC_TIMER_EXPORT)
	defer t.ctx.StopTimer(recast.RC_TIMER_EXPORT)
	return t.exporter(0).SaveServer(t.solid, path, debugPath)
}

// SaveFullJSON writes region_{i}_full.json for every region.
func (t *Tool) SaveFullJSON(dir string, regionSize int) (export.Layout, error) {
	if t.solid == nil {
		return export.Layout{}, ErrNotBuilt
	}
	return t.exporter(regionSize).SaveFullJSON(t.solid, dir)
}
