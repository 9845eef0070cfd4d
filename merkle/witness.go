package merkle

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// witnessReservedSize is the BIP-141 witness reserved value length.
const witnessReservedSize = 32

// witnessCommitmentHeader identifies a BIP-141 commitment output:
// OP_RETURN (0x6a) OP_PUSHBYTES_36 (0x24) 0xaa21a9ed <32-byte commitment>.
var witnessCommitmentHeader = []byte{0x6a, 0x24, 0xaa, 0x21, 0xa9, 0xed}

// CoinbaseOutput is the minimal shape of a coinbase transaction output the
// witness check needs.
type CoinbaseOutput struct {
	ScriptPubKey []byte
}

// WitnessCandidate is the witness-commitment-relevant subset of a SegWit
// block: the coinbase's outputs (to find the commitment) and its last
// witness stack element (the witness reserved value), plus the wtxids of
// every transaction in block order, coinbase included.
type WitnessCandidate struct {
	CoinbaseOutputs       []CoinbaseOutput
	CoinbaseWitnessStack  [][]byte
	WTxIDs                []string // big-endian hex, block order, coinbase first
}

// VerifyWitnessCommitment checks the BIP-141 witness commitment. Any
// absence of SegWit-capable data or of a commitment output is reported as
// "not applicable" (ok=true), never a false positive of mismatch.
func VerifyWitnessCommitment(c WitnessCandidate) (ok bool, applicable bool, err error) {
	commitment := findCommitment(c.CoinbaseOutputs)
	if commitment == nil {
		return true, false, nil
	}
	if len(c.WTxIDs) == 0 {
		return true, false, nil
	}

	reserved := witnessReserved(c.CoinbaseWitnessStack)

	wtxids := append([]string{}, c.WTxIDs...)
	wtxids[0] = emptyRoot // coinbase wtxid is replaced with 32 zero bytes

	witnessRootBE, err := ComputeMerkleRoot(wtxids)
	if err != nil {
		return false, true, fmt.Errorf("merkle: witness root: %w", err)
	}
	witnessRootLE, err := beHexToLE(witnessRootBE)
	if err != nil {
		return false, true, err
	}

	computed := chainhash.DoubleHashB(append(witnessRootLE, reserved...))
	return bytes.Equal(computed, commitment), true, nil
}

func findCommitment(outputs []CoinbaseOutput) []byte {
	// The convention (and Bitcoin Core's own search) is to prefer the
	// last matching output when more than one is present.
	var found []byte
	for _, out := range outputs {
		if len(out.ScriptPubKey) < len(witnessCommitmentHeader)+witnessReservedSize {
			continue
		}
		if bytes.HasPrefix(out.ScriptPubKey, witnessCommitmentHeader) {
			found = out.ScriptPubKey[len(witnessCommitmentHeader) : len(witnessCommitmentHeader)+witnessReservedSize]
		}
	}
	return found
}

func witnessReserved(stack [][]byte) []byte {
	if len(stack) == 0 {
		return make([]byte, witnessReservedSize)
	}
	last := stack[len(stack)-1]
	if len(last) != witnessReservedSize {
		return make([]byte, witnessReservedSize)
	}
	return last
}
