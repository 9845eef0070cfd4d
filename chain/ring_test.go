package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genesisAndTestBlocks() []Block {
	return []Block{
		{Height: 0, Hash: "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f", PreviousBlockHash: ""},
		{Height: 1, Hash: "00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048", PreviousBlockHash: "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"},
		{Height: 2, Hash: "000000006a625f06636b8bb6ac7b960a8d03705d1ace08b1a19da3fdcc99ddbd", PreviousBlockHash: "00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048"},
	}
}

// S1 (chain append).
func TestRingS1ChainAppend(t *testing.T) {
	r := NewRing(5, t.Name())
	blocks := genesisAndTestBlocks()
	for _, b := range blocks {
		require.True(t, r.AddBlock(b))
	}
	require.Equal(t, 3, r.Size())
	tail, ok := r.Tail()
	require.True(t, ok)
	require.Equal(t, blocks[2].Hash, tail.Hash)
	require.True(t, r.ValidateChain())
}

// S2 (reorg truncation).
func TestRingS2ReorgTruncation(t *testing.T) {
	r := NewRing(5, t.Name())
	blocks := genesisAndTestBlocks()
	blocks = append(blocks,
		Block{Height: 3, Hash: "h3", PreviousBlockHash: blocks[2].Hash},
		Block{Height: 4, Hash: "h4", PreviousBlockHash: "h3"},
	)
	for _, b := range blocks {
		require.True(t, r.AddBlock(b))
	}
	require.True(t, r.TruncateTo(2))

	require.Equal(t, 3, r.Size())
	tail, ok := r.Tail()
	require.True(t, ok)
	require.EqualValues(t, 2, tail.Height)
	_, ok = r.FindByHeight(3)
	require.False(t, ok)
	_, ok = r.FindByHeight(4)
	require.False(t, ok)
}

// S3 (chain violation).
func TestRingS3ChainViolation(t *testing.T) {
	r := NewRing(5, t.Name())
	genesis := genesisAndTestBlocks()[0]
	require.True(t, r.AddBlock(genesis))

	bad := Block{Height: 2, Hash: "bad", PreviousBlockHash: genesis.Hash}
	require.False(t, r.AddBlock(bad))
	require.Equal(t, 1, r.Size())
}

func TestRingEvictsHeadBeyondMaxSize(t *testing.T) {
	r := NewRing(2, t.Name())
	blocks := genesisAndTestBlocks()
	for _, b := range blocks {
		require.True(t, r.AddBlock(b))
	}
	require.Equal(t, 2, r.Size())
	head, ok := r.Head()
	require.True(t, ok)
	require.EqualValues(t, 1, head.Height, "oldest block should have been evicted")
}

func TestRingAddBlocksAllOrNothing(t *testing.T) {
	r := NewRing(5, t.Name())
	genesis := genesisAndTestBlocks()[0]
	require.True(t, r.AddBlock(genesis))

	batch := []Block{
		{Height: 1, Hash: "h1", PreviousBlockHash: genesis.Hash},
		{Height: 5, Hash: "h5", PreviousBlockHash: "wrong"}, // violates at index 1
	}
	require.False(t, r.AddBlocks(batch))
	require.Equal(t, 1, r.Size(), "no blocks from the rejected call should be retained")
}

func TestRingTruncateToLastHeightIsNoOp(t *testing.T) {
	r := NewRing(5, t.Name())
	for _, b := range genesisAndTestBlocks() {
		require.True(t, r.AddBlock(b))
	}
	last, _ := r.LastHeight()
	require.True(t, r.TruncateTo(int64(last)))
	require.Equal(t, 3, r.Size())
}

func TestRingTruncateToMinusOneClears(t *testing.T) {
	r := NewRing(5, t.Name())
	for _, b := range genesisAndTestBlocks() {
		require.True(t, r.AddBlock(b))
	}
	require.True(t, r.TruncateTo(-1))
	require.Equal(t, 0, r.Size())
}

func TestRingTruncateToAboveTailIsNoOp(t *testing.T) {
	r := NewRing(5, t.Name())
	for _, b := range genesisAndTestBlocks() {
		require.True(t, r.AddBlock(b))
	}
	require.False(t, r.TruncateTo(99))
	require.Equal(t, 3, r.Size())
}

func TestRingFromArrayKeepsNewestSuffix(t *testing.T) {
	r := NewRing(2, t.Name())
	r.FromArray(genesisAndTestBlocks())
	require.Equal(t, 2, r.Size())
	head, ok := r.Head()
	require.True(t, ok)
	require.EqualValues(t, 1, head.Height)
	tail, ok := r.Tail()
	require.True(t, ok)
	require.EqualValues(t, 2, tail.Height)
}

func TestRingToArrayFromArrayRoundTrip(t *testing.T) {
	r := NewRing(5, t.Name())
	for _, b := range genesisAndTestBlocks() {
		require.True(t, r.AddBlock(b))
	}
	snapshot := r.ToArray()

	r2 := NewRing(5, t.Name()+"-r2")
	r2.FromArray(snapshot)
	require.True(t, r2.ValidateChain())
	require.Equal(t, snapshot, r2.ToArray())
}

func TestRingValidateNextBlocksDoesNotMutate(t *testing.T) {
	r := NewRing(5, t.Name())
	genesis := genesisAndTestBlocks()[0]
	require.True(t, r.AddBlock(genesis))

	ok := r.ValidateNextBlocks([]Block{
		{Height: 1, Hash: "h1", PreviousBlockHash: genesis.Hash},
		{Height: 2, Hash: "h2", PreviousBlockHash: "h1"},
	})
	require.True(t, ok)
	require.Equal(t, 1, r.Size(), "ValidateNextBlocks must not mutate the ring")

	bad := r.ValidateNextBlocks([]Block{{Height: 9, Hash: "x", PreviousBlockHash: "nope"}})
	require.False(t, bad)
}

type fakeProvider struct {
	authoritative map[uint64]Block
}

func (f fakeProvider) BlockByHeight(_ context.Context, h uint64) (Block, error) {
	return f.authoritative[h], nil
}

func TestReorganizeTruncatesToHighestMatch(t *testing.T) {
	r := NewRing(10, t.Name())
	for _, b := range genesisAndTestBlocks() {
		require.True(t, r.AddBlock(b))
	}
	r.AddBlock(Block{Height: 3, Hash: "stale-3", PreviousBlockHash: genesisAndTestBlocks()[2].Hash})

	auth := map[uint64]Block{}
	for _, b := range genesisAndTestBlocks() {
		auth[b.Height] = b
	}
	auth[3] = Block{Height: 3, Hash: "canonical-3", PreviousBlockHash: genesisAndTestBlocks()[2].Hash}

	diverged, err := Reorganize(context.Background(), r, fakeProvider{authoritative: auth})
	require.NoError(t, err)
	require.Len(t, diverged, 1)
	require.Equal(t, "stale-3", diverged[0].Hash)

	last, _ := r.LastHeight()
	require.EqualValues(t, 2, last)
}

func TestRingInvariantAppendOnlySucceedsOnValidChain(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(rt, "n")
		r := NewRing(n + 5, t.Name())
		var prevHash string
		for i := 0; i < n; i++ {
			h := rapid.StringMatching(`[0-9a-f]{8}`).Draw(rt, "hash")
			b := Block{Height: uint64(i), Hash: h, PreviousBlockHash: prevHash}
			require.True(rt, r.AddBlock(b))
			prevHash = h
		}
		require.True(rt, r.ValidateChain())
		head, _ := r.Head()
		tail, _ := r.Tail()
		require.Equal(rt, tail.Height, head.Height+uint64(r.Size())-1)
	})
}
