package voxel

import (
	"github.com/gorustyt/voxelmask/connectivity"
)

// Index returns the connectivity index of the last build, building it on
// first use.
func (t *Tool) Index() (*connectivity.Index, error) {
	if t.solid == nil {
		return nil, ErrNotBuilt
	}
	if t.index == nil {
		t.index = connectivity.NewIndex(t.solid, t.cfg.WalkableHeight)
	}
	return t.index, nil
}

// Connected reports whether two columns share a connectivity component.
func (t *Tool) Connected(x0, z0, x1, z1 int) (bool, error) {
	idx, err := t.Index()
	if err != nil {
		return false, err
	}
	return idx.Connected(x0, z0, x1, z1)
}

// Graph builds the cluster abstraction graph over the connectivity index.
func (t *Tool) Graph(clusterSize int) (*connectivity.Graph, error) {
	idx, err := t.Index()
	if err != nil {
		return nil, err
	}
	return connectivity.NewGraph(idx, clusterSize)
}
