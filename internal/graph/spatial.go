package graph

import (
	"math"

	"github.com/RoaringBitmap/roaring"
	"github.com/dhconnelly/rtreego"
)

const (
	// spatialTol is the half-width of the box around each (mass, width) point.
	// Coordinates are integers, so anything below 0.5 keeps boxes disjoint.
	spatialTol = 0.25

	rtreeMinChildren = 25
	rtreeMaxChildren = 50
)

// spatialEntry places one node in the R-tree.
type spatialEntry struct {
	id   uint32
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *spatialEntry) Bounds() rtreego.Rect { return e.rect }

// spatialIndex is the (mass, width) facet of the index.
type spatialIndex struct {
	tree     *rtreego.Rtree
	maxMass  float64
	maxWidth float64
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{tree: rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren)}
}

func point(n *Node) rtreego.Point {
	return rtreego.Point{float64(n.Mass()), float64(n.Depth)}
}

// insert must be called with the index write lock held.
func (s *spatialIndex) insert(n *Node, id uint32) {
	p := point(n)
	s.tree.Insert(&spatialEntry{id: id, rect: p.ToRect(spatialTol)})
	s.maxMass = math.Max(s.maxMass, p[0])
	s.maxWidth = math.Max(s.maxWidth, p[1])
}

// window returns the ids whose point lies in [minMass, maxMass] × [minWidth, maxWidth].
// Boxes are inflated by spatialTol, so callers must still check exact values.
func (s *spatialIndex) window(minMass, maxMass, minWidth, maxWidth float64) *roaring.Bitmap {
	out := roaring.New()
	if s.tree.Size() == 0 || minMass > maxMass || minWidth > maxWidth {
		return out
	}
	lo := rtreego.Point{minMass, minWidth}
	hi := rtreego.Point{maxMass + spatialTol, maxWidth + spatialTol}
	rect, err := rtreego.NewRectFromPoints(lo, hi)
	if err != nil {
		return out
	}
	for _, obj := range s.tree.SearchIntersect(rect) {
		out.Add(obj.(*spatialEntry).id)
	}
	return out
}

// nearest returns up to k ids ordered by Euclidean distance in (mass, width).
func (s *spatialIndex) nearest(n *Node, k int) []uint32 {
	if k <= 0 || s.tree.Size() == 0 {
		return nil
	}
	k = min(k, s.tree.Size())
	var out []uint32
	for _, obj := range s.tree.NearestNeighbors(k, point(n)) {
		if obj == nil {
			continue
		}
		out = append(out, obj.(*spatialEntry).id)
	}
	return out
}
