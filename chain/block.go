// Package chain implements a bounded, doubly-linked, in-order chain of
// light block descriptors.
package chain

// Block is a light block descriptor: enough to verify chain adjacency and
// re-derive a merkle root, nothing more.
type Block struct {
	Height            uint64
	Hash              string
	PreviousBlockHash string
	Tx                []string
}

// adjacentTo reports whether b legally follows prev: prev may be nil only
// for the first block in an otherwise empty ring.
func (b Block) adjacentTo(prev *Block) bool {
	if prev == nil {
		return true
	}
	return b.Height == prev.Height+1 && b.PreviousBlockHash == prev.Hash
}
