package persist

import (
	"encoding/binary"
	"unsafe"

	"github.com/edgevec/edgevec/pkg/index"
)

// nodeAlign is the alignment Node requires for direct access (its
// largest field is a u64).
const nodeAlign = 8

// CastNodes reinterprets a byte slice as a node slice without copying.
// The buffer read from persistence is not guaranteed to satisfy node
// alignment, so the cast verifies it at runtime and returns
// ErrUnalignedBuffer instead of proceeding into undefined behavior.
// An unchecked pointer cast here is forbidden: it is sound only by
// accident of layout on the current platform.
func CastNodes(b []byte) ([]index.Node, error) {
	if len(b)%index.NodeSize != 0 {
		return nil, ErrMalformed
	}
	if len(b) == 0 {
		return []index.Node{}, nil
	}
	if uintptr(unsafe.Pointer(&b[0]))%nodeAlign != 0 {
		return nil, ErrUnalignedBuffer
	}
	// Safety: length and alignment are verified above, Node is a fixed
	// 16-byte layout with no pointers, and the caller keeps b alive for
	// the lifetime of the returned slice.
	return unsafe.Slice((*index.Node)(unsafe.Pointer(&b[0])), len(b)/index.NodeSize), nil
}

// DecodeNodes is the unaligned-read helper: it materializes an owned
// copy with explicit little-endian field reads, valid for any buffer
// alignment.
func DecodeNodes(b []byte) ([]index.Node, error) {
	if len(b)%index.NodeSize != 0 {
		return nil, ErrMalformed
	}
	nodes := make([]index.Node, len(b)/index.NodeSize)
	for i := range nodes {
		off := i * index.NodeSize
		nodes[i] = index.Node{
			VectorID:       binary.LittleEndian.Uint64(b[off:]),
			NeighborOffset: binary.LittleEndian.Uint32(b[off+8:]),
			NeighborLen:    binary.LittleEndian.Uint16(b[off+12:]),
			MaxLayer:       b[off+14],
			Pad:            b[off+15],
		}
	}
	return nodes, nil
}

// NodesFromBytes decodes a node section from an arbitrarily-aligned
// buffer: the zero-copy cast when alignment allows, the copying helper
// otherwise. Never undefined behavior, never an alignment panic. The
// result is copied into owned memory either way because the snapshot
// buffer's lifetime is the caller's.
func NodesFromBytes(b []byte) ([]index.Node, error) {
	if cast, err := CastNodes(b); err == nil {
		out := make([]index.Node, len(cast))
		copy(out, cast)
		return out, nil
	} else if err == ErrMalformed {
		return nil, err
	}
	return DecodeNodes(b)
}

// EncodeNodes serializes the node arena with explicit little-endian
// writes so snapshots are byte-exact across platforms.
func EncodeNodes(nodes []index.Node) []byte {
	out := make([]byte, len(nodes)*index.NodeSize)
	for i, n := range nodes {
		off := i * index.NodeSize
		binary.LittleEndian.PutUint64(out[off:], n.VectorID)
		binary.LittleEndian.PutUint32(out[off+8:], n.NeighborOffset)
		binary.LittleEndian.PutUint16(out[off+12:], n.NeighborLen)
		out[off+14] = n.MaxLayer
		out[off+15] = n.Pad
	}
	return out
}
