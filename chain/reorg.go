package chain

import "context"

// BlockProvider is the minimal network-facing surface the reorg walk
// needs: fetch the authoritative block at a given height. Callers supply
// their own implementation; the ring never dials out on its own.
type BlockProvider interface {
	BlockByHeight(ctx context.Context, height uint64) (Block, error)
}

// Reorganize walks the ring backward from its tip, comparing each local
// block against the authoritative chain, and truncates the ring once, to
// the highest height at which the two agree. It is a plain function, not
// a Ring method: the walk is driven by a caller, not the ring itself.
// Blocks the ring held beyond the matching height are returned,
// oldest-first, as the divergent suffix the caller may want to log or
// replay against.
func Reorganize(ctx context.Context, r *Ring, provider BlockProvider) ([]Block, error) {
	tail, ok := r.Tail()
	if !ok {
		return nil, nil
	}

	var diverged []Block
	height := tail.Height
	for {
		local, ok := r.FindByHeight(height)
		if !ok {
			break
		}
		authoritative, err := provider.BlockByHeight(ctx, height)
		if err != nil {
			return nil, err
		}
		if authoritative.Hash == local.Hash && authoritative.PreviousBlockHash == local.PreviousBlockHash {
			r.TruncateTo(int64(height))
			reverse(diverged)
			return diverged, nil
		}
		diverged = append(diverged, local)
		if height == 0 {
			r.TruncateTo(-1)
			reverse(diverged)
			return diverged, nil
		}
		height--
	}
	reverse(diverged)
	return diverged, nil
}

func reverse(bs []Block) {
	for i, j := 0, len(bs)-1; i < j; i, j = i+1, j-1 {
		bs[i], bs[j] = bs[j], bs[i]
	}
}
