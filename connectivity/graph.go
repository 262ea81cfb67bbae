package connectivity

import (
	"fmt"

	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/recast"
	"gopkg.in/eapache/queue.v1"
)

// Entrances of a border run longer than this get one node at each end
// instead of one in the middle.
const maxSingleEntranceRun = 5

type EdgeType uint8

const (
	EdgeInter EdgeType = iota // crosses a cluster border
	EdgeIntra                 // stays inside a cluster
)

type Edge struct {
	To     int32
	Type   EdgeType
	Weight int
}

// Node is an entrance column on a cluster border.
type Node struct {
	Cluster int
	X, Z    int
	Edges   []Edge
}

// Cluster is an inclusive rectangle of columns.
type Cluster struct {
	MinX, MinZ int
	MaxX, MaxZ int
	Nodes      []int32
}

func (c *Cluster) Contains(x, z int) bool {
	return x >= c.MinX && x <= c.MaxX && z >= c.MinZ && z <= c.MaxZ
}

func (c *Cluster) Width() int  { return c.MaxX - c.MinX + 1 }
func (c *Cluster) Height() int { return c.MaxZ - c.MinZ + 1 }

// Graph is a one level cluster abstraction over the walkable columns of an
// Index. Columns are walkable when their connect flag is set, and two
// neighbours are passable when the index links them.
type Graph struct {
	idx         *Index
	clusterSize int
	clustersX   int
	clustersZ   int
	clusters    []Cluster
	nodes       []Node
	nodeAt      map[int32]int32
}

// NewGraph splits the grid into clusterSize square clusters, places
// entrance nodes on every passable border run and connects the entrances of
// each cluster that can reach each other inside it.
func NewGraph(idx *Index, clusterSize int) (*Graph, error) {
	if clusterSize <= 0 {
		return nil, fmt.Errorf("connectivity: cluster size %d must be positive", clusterSize)
	}
	g := &Graph{
		idx:         idx,
		clusterSize: clusterSize,
		clustersX:   common.CeilDiv(idx.width, clusterSize),
		clustersZ:   common.CeilDiv(idx.height, clusterSize),
		nodeAt:      make(map[int32]int32),
	}
	g.buildClusters()
	for ci := range g.clusters {
		cx := ci % g.clustersX
		cz := ci / g.clustersX
		if cx+1 < g.clustersX {
			g.createBorderNodes(ci, ci+1, true)
		}
		if cz+1 < g.clustersZ {
			g.createBorderNodes(ci, ci+g.clustersX, false)
		}
	}
	for ci := range g.clusters {
		g.generateIntraEdges(ci)
	}
	return g, nil
}

func (g *Graph) buildClusters() {
	g.clusters = make([]Cluster, 0, g.clustersX*g.clustersZ)
	for i := 0; i < g.clustersZ; i++ {
		for j := 0; j < g.clustersX; j++ {
			minX := j * g.clusterSize
			minZ := i * g.clusterSize
			g.clusters = append(g.clusters, Cluster{
				MinX: minX,
				MinZ: minZ,
				MaxX: min(minX+g.clusterSize-1, g.idx.width-1),
				MaxZ: min(minZ+g.clusterSize-1, g.idx.height-1),
			})
		}
	}
}

func (g *Graph) Clusters() []Cluster { return g.clusters }
func (g *Graph) Nodes() []Node       { return g.nodes }

func (g *Graph) clusterOf(x, z int) int {
	return x/g.clusterSize + (z/g.clusterSize)*g.clustersX
}

func (g *Graph) column(x, z int) int {
	return x + z*g.idx.width
}

// createBorderNodes scans the border between c1 and the cluster c2 right of
// it (alongX) or in front of it, one passable run at a time.
func (g *Graph) createBorderNodes(c1, c2 int, alongX bool) {
	a := &g.clusters[c1]
	var iMin, iMax int
	if alongX {
		iMin, iMax = a.MinZ, a.MaxZ+1
	} else {
		iMin, iMax = a.MinX, a.MaxX+1
	}
	lineSize := 0
	i := iMin
	for ; i < iMax; i++ {
		if g.borderPassable(c1, alongX, i) {
			lineSize++
			continue
		}
		g.createInterEdges(c1, c2, alongX, lineSize, i)
		lineSize = 0
	}
	g.createInterEdges(c1, c2, alongX, lineSize, i)
}

func (g *Graph) borderCells(c1 int, alongX bool, i int) (x1, z1, x2, z2 int) {
	a := &g.clusters[c1]
	if alongX {
		return a.MaxX, i, a.MaxX + 1, i
	}
	return i, a.MaxZ, i, a.MaxZ + 1
}

func (g *Graph) borderPassable(c1 int, alongX bool, i int) bool {
	x1, z1, x2, z2 := g.borderCells(c1, alongX, i)
	return g.idx.step(g.column(x1, z1), g.column(x2, z2))
}

// createInterEdges places the entrances of a run ending before i.
func (g *Graph) createInterEdges(c1, c2 int, alongX bool, lineSize, i int) {
	if lineSize <= 0 {
		return
	}
	if lineSize <= maxSingleEntranceRun {
		g.createInterEdge(c1, c2, alongX, i-(lineSize/2+1))
		return
	}
	g.createInterEdge(c1, c2, alongX, i-lineSize)
	g.createInterEdge(c1, c2, alongX, i-1)
}

func (g *Graph) createInterEdge(c1, c2 int, alongX bool, i int) {
	x1, z1, x2, z2 := g.borderCells(c1, alongX, i)
	n1 := g.node(c1, x1, z1)
	n2 := g.node(c2, x2, z2)
	g.nodes[n1].Edges = append(g.nodes[n1].Edges, Edge{To: n2, Type: EdgeInter, Weight: 1})
	g.nodes[n2].Edges = append(g.nodes[n2].Edges, Edge{To: n1, Type: EdgeInter, Weight: 1})
}

func (g *Graph) node(cluster, x, z int) int32 {
	col := int32(g.column(x, z))
	if id, ok := g.nodeAt[col]; ok {
		return id
	}
	id := int32(len(g.nodes))
	g.nodes = append(g.nodes, Node{Cluster: cluster, X: x, Z: z})
	g.nodeAt[col] = id
	g.clusters[cluster].Nodes = append(g.clusters[cluster].Nodes, id)
	return id
}

// localDistances runs a breadth first search from (x, z) that never leaves
// cluster ci. The result holds the step count per cluster cell, or -1.
func (g *Graph) localDistances(ci, x, z int) []int32 {
	c := &g.clusters[ci]
	w := c.Width()
	dist := make([]int32, w*c.Height())
	for i := range dist {
		dist[i] = -1
	}
	local := func(x, z int) int { return (x - c.MinX) + (z-c.MinZ)*w }

	dist[local(x, z)] = 0
	q := queue.New()
	q.Add(g.column(x, z))
	for q.Length() > 0 {
		col := q.Remove().(int)
		cx := col % g.idx.width
		cz := col / g.idx.width
		d := dist[local(cx, cz)]
		for dir := 0; dir < 4; dir++ {
			nx := cx + common.GetDirOffsetX(dir)
			nz := cz + common.GetDirOffsetZ(dir)
			if !c.Contains(nx, nz) || dist[local(nx, nz)] >= 0 {
				continue
			}
			ncol := g.column(nx, nz)
			if !g.idx.step(col, ncol) {
				continue
			}
			dist[local(nx, nz)] = d + 1
			q.Add(ncol)
		}
	}
	return dist
}

func (g *Graph) generateIntraEdges(ci int) {
	c := &g.clusters[ci]
	for a := 0; a < len(c.Nodes); a++ {
		na := c.Nodes[a]
		dist := g.localDistances(ci, g.nodes[na].X, g.nodes[na].Z)
		for b := a + 1; b < len(c.Nodes); b++ {
			nb := c.Nodes[b]
			d := dist[(g.nodes[nb].X-c.MinX)+(g.nodes[nb].Z-c.MinZ)*c.Width()]
			if d < 0 {
				continue
			}
			g.nodes[na].Edges = append(g.nodes[na].Edges, Edge{To: nb, Type: EdgeIntra, Weight: int(d)})
			g.nodes[nb].Edges = append(g.nodes[nb].Edges, Edge{To: na, Type: EdgeIntra, Weight: int(d)})
		}
	}
}

// reachableEntrances returns the entrance nodes of the cluster holding
// (x, z) that can be reached from it without leaving the cluster, and the
// local distance table.
func (g *Graph) reachableEntrances(x, z int) ([]int32, []int32) {
	ci := g.clusterOf(x, z)
	c := &g.clusters[ci]
	dist := g.localDistances(ci, x, z)
	var out []int32
	for _, n := range c.Nodes {
		if dist[(g.nodes[n].X-c.MinX)+(g.nodes[n].Z-c.MinZ)*c.Width()] >= 0 {
			out = append(out, n)
		}
	}
	return out, dist
}

// Reachable reports whether an agent can walk from column (x0, z0) to
// (x1, z1) over the abstract graph.
func (g *Graph) Reachable(x0, z0, x1, z1 int) (bool, error) {
	if !g.idx.inBounds(x0, z0) || !g.idx.inBounds(x1, z1) {
		return false, fmt.Errorf("%w: (%d,%d)-(%d,%d) in %dx%d grid", recast.ErrColumnOutOfRange, x0, z0, x1, z1, g.idx.width, g.idx.height)
	}
	if !g.idx.walkable(g.column(x0, z0)) || !g.idx.walkable(g.column(x1, z1)) {
		return false, nil
	}

	starts, dist := g.reachableEntrances(x0, z0)
	if g.clusterOf(x0, z0) == g.clusterOf(x1, z1) {
		c := &g.clusters[g.clusterOf(x1, z1)]
		if dist[(x1-c.MinX)+(z1-c.MinZ)*c.Width()] >= 0 {
			return true, nil
		}
	}
	goals, _ := g.reachableEntrances(x1, z1)
	if len(starts) == 0 || len(goals) == 0 {
		return false, nil
	}
	isGoal := make(map[int32]struct{}, len(goals))
	for _, n := range goals {
		isGoal[n] = struct{}{}
	}

	visited := make([]bool, len(g.nodes))
	q := queue.New()
	for _, n := range starts {
		visited[n] = true
		q.Add(n)
	}
	for q.Length() > 0 {
		n := q.Remove().(int32)
		if _, ok := isGoal[n]; ok {
			return true, nil
		}
		for _, e := range g.nodes[n].Edges {
			if !visited[e.To] {
				visited[e.To] = true
				q.Add(e.To)
			}
		}
	}
	return false, nil
}
