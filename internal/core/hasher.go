package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const GenesisHashSeed = "TrueMarket:genesis:v1"

// GenesisHash is the tip of a chain with no blocks.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// StateHasher chains block hashes. It is only touched under the chain lock.
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher resumes hashing from tip.
func NewStateHasher(tip [32]byte) *StateHasher {
	return &StateHasher{prevHash: tip}
}

// ComputeHash calculates hash[N] = SHA-256(prev_hash || height || digest)
// without moving the tip.
func (h *StateHasher) ComputeHash(height uint64, digest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], height)
	hasher.Write(buf[:])

	hasher.Write(digest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// Advance moves the tip once the block is committed.
func (h *StateHasher) Advance(hash [32]byte) {
	h.prevHash = hash
}

// Tip returns the hash of the last committed block.
func (h *StateHasher) Tip() [32]byte {
	return h.prevHash
}

func encodeHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func decodeHash(s string) ([32]byte, error) {
	var h [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("decode hash: got %d bytes", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
