package graph

import "github.com/RoaringBitmap/roaring"

// trieNode is one vertex of the position-key trie. ids holds every node
// whose key passes through this vertex, so a prefix query is a single walk.
type trieNode struct {
	children map[uint32]*trieNode
	ids      *roaring.Bitmap
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[uint32]*trieNode), ids: roaring.New()}
}

// insert registers id along key. Must be called with the index write lock held.
func (t *trieNode) insert(key PositionKey, id uint32) {
	cur := t
	cur.ids.Add(id)
	for _, e := range key {
		next, ok := cur.children[e]
		if !ok {
			next = newTrieNode()
			cur.children[e] = next
		}
		next.ids.Add(id)
		cur = next
	}
}

// lookup returns the ids under prefix, or nil when no key has that prefix.
func (t *trieNode) lookup(prefix []uint32) *roaring.Bitmap {
	cur := t
	for _, e := range prefix {
		next, ok := cur.children[e]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur.ids
}
