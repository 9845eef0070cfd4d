// Package merkle verifies a block's merkle root (and, optionally, its
// BIP-141 witness commitment) against its ordered transaction id list,
// using the same big-endian/little-endian conventions as Bitcoin Core.
package merkle

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
)

// emptyRoot is the expected root of a block with no transactions: 64 zero
// hex characters.
var emptyRoot = strings.Repeat("0", 64)

// Candidate is the subset of a full block the verifier needs: height (to
// detect genesis), the claimed merkle root, and the ordered transaction
// ids, both in big-endian hex as returned by a typical node RPC.
type Candidate struct {
	Height     uint64
	MerkleRoot string
	Tx         []string
}

// Verifier checks candidate blocks before they are handed to the
// blockchain ring's append path. It caches verified (root, txset) results
// since a caller that re-validates the same tip repeatedly (e.g. during a
// reorg walk) would otherwise redo the same hashing work.
type Verifier struct {
	cache *lru.Cache[string, bool]
}

// NewVerifier builds a Verifier with an LRU cache sized for cacheSize
// distinct (height, root) results. cacheSize <= 0 disables caching.
func NewVerifier(cacheSize int) *Verifier {
	v := &Verifier{}
	if cacheSize > 0 {
		c, err := lru.New[string, bool](cacheSize)
		if err == nil {
			v.cache = c
		}
	}
	return v
}

// VerifyMerkleRoot reports whether c.MerkleRoot is the correct merkle root
// over c.Tx. It never returns an error for well-formed hex; malformed
// input (odd-length or non-hex strings) yields an error so the caller can
// treat the candidate as MerkleMismatch without a panic.
func (v *Verifier) VerifyMerkleRoot(c Candidate) (bool, error) {
	key := cacheKey(c)
	if v.cache != nil {
		if ok, hit := v.cache.Get(key); hit {
			return ok, nil
		}
	}
	ok, err := verify(c)
	if err == nil && v.cache != nil {
		v.cache.Add(key, ok)
	}
	return ok, err
}

func cacheKey(c Candidate) string {
	return fmt.Sprintf("%d:%s:%d", c.Height, c.MerkleRoot, len(c.Tx))
}

func verify(c Candidate) (bool, error) {
	root := strings.ToLower(c.MerkleRoot)

	if len(c.Tx) == 0 {
		return root == emptyRoot, nil
	}
	if c.Height == 0 && len(c.Tx) == 1 {
		return strings.EqualFold(c.Tx[0], c.MerkleRoot), nil
	}

	computed, err := ComputeMerkleRoot(c.Tx)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(computed, root), nil
}

// ComputeMerkleRoot computes the merkle root (big-endian hex) over an
// ordered list of transaction ids (big-endian hex): convert each to
// little-endian bytes, pair-and-double-SHA256 level by level duplicating
// the last leaf on an odd count, then reverse the final hash back to
// big-endian.
func ComputeMerkleRoot(txids []string) (string, error) {
	if len(txids) == 0 {
		return emptyRoot, nil
	}
	level := make([][]byte, len(txids))
	for i, id := range txids {
		le, err := beHexToLE(id)
		if err != nil {
			return "", fmt.Errorf("merkle: tx %d: %w", i, err)
		}
		level[i] = le
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := append(append([]byte{}, level[i]...), level[i+1]...)
			next = append(next, chainhash.DoubleHashB(pair))
		}
		level = next
	}
	return leToBEHex(level[0]), nil
}

func beHexToLE(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	reverse(b)
	return b, nil
}

func leToBEHex(b []byte) string {
	out := append([]byte{}, b...)
	reverse(out)
	return hex.EncodeToString(out)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
