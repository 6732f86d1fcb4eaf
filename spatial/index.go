package spatial

import (
	"errors"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// DefaultNodeSize is the leaf bucket size used by NewIndex.
const DefaultNodeSize = 16

// ErrEmptyIndex is returned when an index is built over no points.
var ErrEmptyIndex = errors.New("spatial: index needs at least one point")

// KDNode is one node of the flat KD-tree. Leaves own the point range
// [Start, End]; inner nodes split on the median point at PointIdx.
type KDNode struct {
	Start    int32
	End      int32
	PointIdx int32
	Left     int32
	Right    int32
	Axis     uint8
	Leaf     bool
}

type kdPoint struct {
	V   [3]float64
	Idx int32 // position in the caller's input
}

// Index answers nearest-neighbour queries by great-circle distance. Points
// live on the unit sphere, where chord length grows monotonically with arc
// length, so axis-aligned pruning in 3D stays exact.
type Index struct {
	Nodes    []KDNode
	NodeSize int

	points []kdPoint
	coords []orb.Point // input order, [lon, lat]
	bounds orb.Bound
}

// Match is the answer to one query.
type Match struct {
	Index  int
	Meters float64
}

// NewIndex builds an index with DefaultNodeSize leaves.
func NewIndex(points []orb.Point) (*Index, error) {
	return NewIndexSize(points, DefaultNodeSize)
}

// NewIndexSize builds an index with the given leaf bucket size. The input
// slice is copied and never modified.
func NewIndexSize(points []orb.Point, nodeSize int) (*Index, error) {
	if len(points) == 0 {
		return nil, ErrEmptyIndex
	}
	if nodeSize <= 0 {
		nodeSize = DefaultNodeSize
	}

	idx := &Index{
		Nodes:    make([]KDNode, 0, 2*len(points)/nodeSize+1),
		NodeSize: nodeSize,
		points:   make([]kdPoint, len(points)),
		coords:   make([]orb.Point, len(points)),
		bounds:   orb.Bound{Min: points[0], Max: points[0]},
	}
	copy(idx.coords, points)

	for i, p := range points {
		idx.points[i] = kdPoint{V: unitVector(p.Lat(), p.Lon()), Idx: int32(i)}
		idx.bounds = idx.bounds.Extend(p)
	}

	idx.buildNodes(0, len(points)-1, 0)
	return idx, nil
}

func (t *Index) buildNodes(start, end, depth int) int32 {
	if start > end {
		return -1
	}

	nodeIdx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, KDNode{})

	if end-start < t.NodeSize {
		t.Nodes[nodeIdx] = KDNode{
			Start: int32(start),
			End:   int32(end),
			Left:  -1,
			Right: -1,
			Leaf:  true,
		}
		return nodeIdx
	}

	axis := depth % 3
	median := (start + end) / 2
	sortPointsRange(t.points[start:end+1], axis)

	left := t.buildNodes(start, median-1, depth+1)
	right := t.buildNodes(median+1, end, depth+1)

	// t.Nodes may have grown, so assign by index rather than through a
	// pointer taken before the recursion.
	t.Nodes[nodeIdx] = KDNode{
		Start:    int32(start),
		End:      int32(end),
		PointIdx: int32(median),
		Left:     left,
		Right:    right,
		Axis:     uint8(axis),
	}
	return nodeIdx
}

func sortPointsRange(points []kdPoint, axis int) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].V[axis] == points[j].V[axis] {
			return points[i].Idx < points[j].Idx
		}
		return points[i].V[axis] < points[j].V[axis]
	})
}

type candidate struct {
	idx int32
	d2  float64
}

func (c *candidate) offer(p kdPoint, q [3]float64) {
	dx := p.V[0] - q[0]
	dy := p.V[1] - q[1]
	dz := p.V[2] - q[2]
	d2 := dx*dx + dy*dy + dz*dz
	// Equal distances resolve to the lowest input position.
	if d2 < c.d2 || (d2 == c.d2 && p.Idx < c.idx) {
		c.idx = p.Idx
		c.d2 = d2
	}
}

func (t *Index) search(nodeIdx int32, q [3]float64, best *candidate) {
	if nodeIdx < 0 {
		return
	}
	node := t.Nodes[nodeIdx]

	if node.Leaf {
		for i := node.Start; i <= node.End; i++ {
			best.offer(t.points[i], q)
		}
		return
	}

	split := t.points[node.PointIdx]
	best.offer(split, q)

	diff := q[node.Axis] - split.V[node.Axis]
	near, far := node.Left, node.Right
	if diff >= 0 {
		near, far = node.Right, node.Left
	}

	t.search(near, q, best)
	if diff*diff <= best.d2 {
		t.search(far, q, best)
	}
}

// Nearest returns the input position of the closest indexed point and the
// haversine distance to it in meters. A non-finite query matches nothing and
// returns -1 with an infinite distance.
func (t *Index) Nearest(lat, lon float64) (int, float64) {
	best := candidate{idx: -1, d2: math.Inf(1)}
	t.search(0, unitVector(lat, lon), &best)
	if best.idx < 0 {
		return -1, math.Inf(1)
	}

	p := t.coords[best.idx]
	return int(best.idx), Haversine(lat, lon, p.Lat(), p.Lon())
}

// NearestBatch answers one query per target, in target order.
func (t *Index) NearestBatch(targets []orb.Point) []Match {
	matches := make([]Match, len(targets))
	for i, p := range targets {
		idx, meters := t.Nearest(p.Lat(), p.Lon())
		matches[i] = Match{Index: idx, Meters: meters}
	}
	return matches
}

// Len is the number of indexed points.
func (t *Index) Len() int {
	return len(t.coords)
}

// Point returns the indexed coordinate at input position i.
func (t *Index) Point(i int) orb.Point {
	return t.coords[i]
}

// Bounds is the lon/lat bounding box of the indexed points.
func (t *Index) Bounds() orb.Bound {
	return t.bounds
}
