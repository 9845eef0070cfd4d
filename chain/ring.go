package chain

import (
	"container/list"
	"sync"

	"github.com/chainstream/core/metrics"
)

// Ring is a bounded, doubly-linked, in-order chain of light blocks. It
// exclusively owns its nodes: callers hold the Ring, never a raw node
// handle, so there is no dangling-pointer hazard across truncation or
// eviction. All mutating operations are internally synchronized, but
// callers are still expected to serialise writes under their own logical
// lock: the ring's own lock only protects its node list from torn reads
// during concurrent FindByHeight/ToArray calls.
type Ring struct {
	mu      sync.RWMutex
	name    string
	maxSize int
	nodes   *list.List // back() is head (oldest), front() is tail (newest)
}

// NewRing creates an empty ring with the given capacity, labeled name for
// the ring_size gauge (metrics.RingSize) every mutating operation
// reports. maxSize must be at least 1.
func NewRing(maxSize int, name string) *Ring {
	if maxSize < 1 {
		maxSize = 1
	}
	r := &Ring{name: name, maxSize: maxSize, nodes: list.New()}
	r.reportSizeLocked()
	return r
}

// Size returns the current number of blocks held.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes.Len()
}

// reportSizeLocked updates the ring_size gauge. Callers must hold r.mu
// (either lock) since it reads r.nodes.
func (r *Ring) reportSizeLocked() {
	metrics.RingSize.WithLabelValues(r.name).Set(float64(r.nodes.Len()))
}

// Head returns the oldest retained block.
func (r *Ring) Head() (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.nodes.Back()
	if e == nil {
		return Block{}, false
	}
	return e.Value.(Block), true
}

// Tail returns the newest block.
func (r *Ring) Tail() (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.nodes.Front()
	if e == nil {
		return Block{}, false
	}
	return e.Value.(Block), true
}

// LastHeight returns the tail's height and true, or (0, false) if empty.
func (r *Ring) LastHeight() (uint64, bool) {
	t, ok := r.Tail()
	if !ok {
		return 0, false
	}
	return t.Height, true
}

// AddBlock appends b iff it legally follows the current tail (or the ring
// is empty). Evicts the head if the append would exceed max_size. Returns
// false with no state change on an adjacency violation.
func (r *Ring) AddBlock(b Block) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(b)
}

func (r *Ring) addLocked(b Block) bool {
	if tailEl := r.nodes.Front(); tailEl != nil {
		tail := tailEl.Value.(Block)
		if !b.adjacentTo(&tail) {
			return false
		}
	}
	r.nodes.PushFront(b)
	if r.nodes.Len() > r.maxSize {
		r.nodes.Remove(r.nodes.Back())
	}
	r.reportSizeLocked()
	return true
}

// AddBlocks appends bs atomically: all-or-nothing. On the first adjacency
// violation, none of bs is retained.
func (r *Ring) AddBlocks(bs []Block) bool {
	if len(bs) == 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate against a shadow tail before mutating anything.
	var tail *Block
	if el := r.nodes.Front(); el != nil {
		t := el.Value.(Block)
		tail = &t
	}
	for i := range bs {
		if !bs[i].adjacentTo(tail) {
			return false
		}
		tail = &bs[i]
	}
	for _, b := range bs {
		r.addLocked(b)
	}
	return true
}

// TruncateTo removes every node with height > h. h == -1 clears the ring.
// h > tail.height is a no-op returning false. Otherwise returns true, even
// if nothing needed removing.
func (r *Ring) TruncateTo(h int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == -1 {
		r.nodes.Init()
		r.reportSizeLocked()
		return true
	}
	tailEl := r.nodes.Front()
	if tailEl == nil {
		return h == -1
	}
	tail := tailEl.Value.(Block)
	if uint64(h) > tail.Height {
		return false
	}
	for el := r.nodes.Front(); el != nil; {
		next := el.Next()
		if el.Value.(Block).Height > uint64(h) {
			r.nodes.Remove(el)
		}
		el = next
	}
	r.reportSizeLocked()
	return true
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes.Init()
	r.reportSizeLocked()
}

// FindByHeight walks from the tail (callers are expected to query near
// the tip) looking for a block at height h.
func (r *Ring) FindByHeight(h uint64) (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for el := r.nodes.Front(); el != nil; el = el.Next() {
		b := el.Value.(Block)
		if b.Height == h {
			return b, true
		}
		if b.Height < h {
			break
		}
	}
	return Block{}, false
}

// ValidateChain re-checks adjacency end-to-end.
func (r *Ring) ValidateChain() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var prev *Block
	// Walk oldest to newest so adjacency reads naturally.
	blocks := r.orderedOldestFirstLocked()
	for i := range blocks {
		if !blocks[i].adjacentTo(prev) {
			return false
		}
		prev = &blocks[i]
	}
	return true
}

// ValidateNextBlocks reports whether appending every block in bs, in
// order, to the current ring would succeed without an adjacency
// violation. The ring is not mutated.
func (r *Ring) ValidateNextBlocks(bs []Block) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tail *Block
	if el := r.nodes.Front(); el != nil {
		t := el.Value.(Block)
		tail = &t
	}
	for i := range bs {
		if !bs[i].adjacentTo(tail) {
			return false
		}
		tail = &bs[i]
	}
	return true
}

// LastN returns up to n of the newest blocks, oldest-first.
func (r *Ring) LastN(n int) []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Block, 0, n)
	for el := r.nodes.Front(); el != nil && len(out) < n; el = el.Next() {
		out = append(out, el.Value.(Block))
	}
	// out is newest-first (front-to-back); reverse for oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ToArray returns a lossless, oldest-first snapshot of the ring.
func (r *Ring) ToArray() []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderedOldestFirstLocked()
}

func (r *Ring) orderedOldestFirstLocked() []Block {
	out := make([]Block, 0, r.nodes.Len())
	for el := r.nodes.Back(); el != nil; el = el.Prev() {
		out = append(out, el.Value.(Block))
	}
	return out
}

// FromArray bulk-loads arr (oldest-first), restoring adjacency links,
// keeping only the newest max_size entries if arr is longer.
func (r *Ring) FromArray(arr []Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes.Init()
	start := 0
	if len(arr) > r.maxSize {
		start = len(arr) - r.maxSize
	}
	for _, b := range arr[start:] {
		r.nodes.PushFront(b)
	}
	r.reportSizeLocked()
}
