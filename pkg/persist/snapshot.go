// Package persist implements the versioned binary snapshot format: a
// fixed 64-byte header, CRC32-validated payload, and length-prefixed
// sections. Snapshots are little-endian and deterministic — saving the
// same index twice yields byte-identical output.
package persist

import (
	"fmt"
	"hash/crc32"

	"github.com/bits-and-blooms/bitset"

	"github.com/edgevec/edgevec/internal/encoding"
	"github.com/edgevec/edgevec/pkg/index"
	"github.com/edgevec/edgevec/pkg/meta"
	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/quant"
	"github.com/edgevec/edgevec/pkg/vstore"
)

// Snapshot magics, one per index type.
var (
	MagicHNSW = [4]byte{'E', 'V', 'F', 'I'}
	MagicFlat = [4]byte{'E', 'V', 'F', 'L'}
)

// Version is the current snapshot format version.
const Version = 1

// HeaderSize is the fixed header length. The header is alignment-4
// repr(C): magic, version, dims, metric, three u64 counters, flags,
// reserved padding, and the payload CRC.
const HeaderSize = 64

// Header flag bits.
const (
	// FlagQuantized marks the optional quantized section present.
	FlagQuantized uint32 = 1 << 0
	// FlagMetadata marks the optional metadata section present.
	FlagMetadata uint32 = 1 << 1

	// The quantization mode occupies the second byte of flags so load
	// can rebuild the store shape without guessing.
	flagModeShift = 8
	flagModeMask  = uint32(0xFF) << flagModeShift
)

// header mirrors the on-disk layout.
type header struct {
	magic       [4]byte
	version     uint32
	dims        uint32
	metricTag   uint32
	vectorCount uint64
	deleteCount uint64
	nextID      uint64
	flags       uint32
	crc         uint32
}

func (h header) encode() []byte {
	w := encoding.NewWriter(HeaderSize)
	w.Raw(h.magic[:])
	w.U32(h.version)
	w.U32(h.dims)
	w.U32(h.metricTag)
	w.U64(h.vectorCount)
	w.U64(h.deleteCount)
	w.U64(h.nextID)
	w.U32(h.flags)
	w.Raw(make([]byte, 16)) // reserved, zero-filled
	w.U32(h.crc)
	return w.Bytes()
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < HeaderSize {
		return header{}, ErrTruncatedData
	}
	r := encoding.NewReader(b[:HeaderSize])
	var h header
	copy(h.magic[:], r.Raw(4))
	h.version = r.U32()
	h.dims = r.U32()
	h.metricTag = r.U32()
	h.vectorCount = r.U64()
	h.deleteCount = r.U64()
	h.nextID = r.U64()
	h.flags = r.U32()
	r.Raw(16) // reserved
	h.crc = r.U32()
	return h, nil
}

// SaveHNSW serializes an HNSW index and its metadata store (which may
// be nil) to a self-contained snapshot.
func SaveHNSW(h *index.HNSW, metaStore *meta.Store) []byte {
	store := h.Store()
	payload := encoding.NewWriter(64 + store.Count()*store.Dim()*4)

	writeTombstones(payload, h.Tombstones(), store.Count())
	writeVectors(payload, store)
	flags := writeQuantized(payload, store)
	flags |= writeMetaSection(payload, metaStore, store.Count())

	// Graph subheader, node arena, neighbor pool.
	params := h.Params()
	payload.I64(int64(h.EntryPoint()))
	payload.U32(uint32(h.TopLayer()))
	payload.U32(uint32(params.M))
	payload.U32(uint32(params.M0))
	payload.U32(uint32(params.EfConstruction))
	payload.U32(uint32(params.EfSearch))

	nodeBytes := EncodeNodes(h.RawNodes())
	payload.U64(uint64(len(h.RawNodes())))
	payload.Raw(nodeBytes)

	pool := h.RawPool()
	payload.U64(uint64(len(pool)))
	payload.U64s(pool)

	return assemble(MagicHNSW, h.Metric(), store, h.DeletedCount(), flags, payload.Bytes())
}

// SaveFlat serializes a flat index and its metadata store.
func SaveFlat(f *index.Flat, metaStore *meta.Store) []byte {
	store := f.Store()
	payload := encoding.NewWriter(64 + store.Count()*store.Dim()*4)

	writeTombstones(payload, f.Tombstones(), store.Count())
	writeVectors(payload, store)
	flags := writeQuantized(payload, store)
	flags |= writeMetaSection(payload, metaStore, store.Count())

	return assemble(MagicFlat, f.Metric(), store, f.DeletedCount(), flags, payload.Bytes())
}

func assemble(magic [4]byte, kind metric.Kind, store *vstore.Store, deleted int, flags uint32, payload []byte) []byte {
	flags |= uint32(store.Mode()) << flagModeShift

	hdr := header{
		magic:       magic,
		version:     Version,
		dims:        uint32(store.Dim()),
		metricTag:   uint32(kind),
		vectorCount: uint64(store.Count()),
		deleteCount: uint64(deleted),
		nextID:      uint64(store.Count()),
		flags:       flags,
		crc:         crc32.ChecksumIEEE(payload),
	}

	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, hdr.encode()...)
	out = append(out, payload...)
	return out
}

// writeTombstones emits the bit-packed deleted bitmap with a u32 word
// count prefix.
func writeTombstones(w *encoding.Writer, tombs *bitset.BitSet, slots int) {
	words := (slots + 63) / 64
	w.U32(uint32(words))
	raw := tombs.Bytes()
	for i := 0; i < words; i++ {
		if i < len(raw) {
			w.U64(raw[i])
		} else {
			w.U64(0)
		}
	}
}

func readTombstones(r *encoding.Reader, slots int) (*bitset.BitSet, error) {
	words := int(r.U32())
	raw := r.U64s(words)
	if r.Err() != nil {
		return nil, ErrTruncatedData
	}
	if words < (slots+63)/64 {
		return nil, fmt.Errorf("%w: tombstone bitmap", ErrMalformed)
	}
	return bitset.From(raw), nil
}

// writeVectors emits the f32 section with a u64 byte-length prefix.
func writeVectors(w *encoding.Writer, store *vstore.Store) {
	floats := store.RawFloats()
	w.U64(uint64(len(floats) * 4))
	w.F32s(floats)
}

// writeQuantized emits the optional quantized section: SQ8 codes and
// per-vector params when enabled, then binary words when enabled, the
// whole section under one u64 byte-length prefix.
func writeQuantized(w *encoding.Writer, store *vstore.Store) uint32 {
	mode := store.Mode()
	if mode == quant.None {
		return 0
	}

	section := encoding.NewWriter(64)
	if mode.Has(quant.SQ8) {
		codes, params := store.RawSQ8()
		section.Raw(codes)
		for _, p := range params {
			section.F32(p.Min)
			section.F32(p.Max)
		}
	}
	if mode.Has(quant.Binary) {
		section.U64s(store.RawBinary())
	}

	w.U64(uint64(section.Len()))
	w.Raw(section.Bytes())
	return FlagQuantized
}

// writeMetaSection emits the optional metadata section.
func writeMetaSection(w *encoding.Writer, store *meta.Store, slots int) uint32 {
	if store == nil {
		return 0
	}
	w.Raw(encodeMetadata(store, slots))
	return FlagMetadata
}

// LoadedKind reports which index type a snapshot holds without
// deserializing it.
func LoadedKind(data []byte) ([4]byte, error) {
	hdr, err := decodeHeader(data)
	if err != nil {
		return [4]byte{}, err
	}
	switch hdr.magic {
	case MagicHNSW, MagicFlat:
		return hdr.magic, nil
	default:
		return [4]byte{}, ErrInvalidMagic
	}
}

// LoadHNSW reconstructs an HNSW index from a snapshot. The buffer may
// start at any alignment; node-slice reconstruction verifies alignment
// at runtime and falls back to an unaligned decode.
func LoadHNSW(data []byte) (*index.HNSW, *meta.Store, error) {
	hdr, payload, err := verify(data, MagicHNSW)
	if err != nil {
		return nil, nil, err
	}

	kind := metric.Kind(hdr.metricTag)
	mode := quant.Mode((hdr.flags & flagModeMask) >> flagModeShift)
	count := int(hdr.vectorCount)

	store, err := vstore.New(int(hdr.dims), mode)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	r := encoding.NewReader(payload)
	tombs, err := readTombstones(r, count)
	if err != nil {
		return nil, nil, err
	}
	if err := readVectorSections(r, store, hdr, count); err != nil {
		return nil, nil, err
	}
	metaStore, err := readMetaSection(r, hdr)
	if err != nil {
		return nil, nil, err
	}

	entry := int(r.I64())
	topLayer := int(r.U32())
	params := index.Params{
		M:                int(r.U32()),
		M0:               int(r.U32()),
		EfConstruction:   int(r.U32()),
		EfSearch:         int(r.U32()),
		Seed:             1,
		CleanupThreshold: index.DefaultCleanupThreshold,
	}
	if r.Err() != nil {
		return nil, nil, ErrTruncatedData
	}

	nodeCount := int(r.U64())
	nodeBytes := r.Raw(nodeCount * index.NodeSize)
	if r.Err() != nil {
		return nil, nil, ErrTruncatedData
	}
	nodes, err := NodesFromBytes(nodeBytes)
	if err != nil {
		return nil, nil, err
	}

	poolLen := int(r.U64())
	pool := r.U64s(poolLen)
	if r.Err() != nil {
		return nil, nil, ErrTruncatedData
	}
	if r.Remaining() != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Remaining())
	}

	h, err := index.NewHNSW(store, kind, params)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := h.RestoreGraph(nodes, pool, tombs, entry, topLayer); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return h, metaStore, nil
}

// LoadFlat reconstructs a flat index from a snapshot.
func LoadFlat(data []byte) (*index.Flat, *meta.Store, error) {
	hdr, payload, err := verify(data, MagicFlat)
	if err != nil {
		return nil, nil, err
	}

	kind := metric.Kind(hdr.metricTag)
	mode := quant.Mode((hdr.flags & flagModeMask) >> flagModeShift)
	count := int(hdr.vectorCount)

	store, err := vstore.New(int(hdr.dims), mode)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	r := encoding.NewReader(payload)
	tombs, err := readTombstones(r, count)
	if err != nil {
		return nil, nil, err
	}
	if err := readVectorSections(r, store, hdr, count); err != nil {
		return nil, nil, err
	}
	metaStore, err := readMetaSection(r, hdr)
	if err != nil {
		return nil, nil, err
	}
	if r.Remaining() != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Remaining())
	}

	f, err := index.NewFlat(store, kind)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	f.RestoreTombstones(tombs)
	return f, metaStore, nil
}

// verify checks header magic, version, and the payload CRC.
func verify(data []byte, magic [4]byte) (header, []byte, error) {
	hdr, err := decodeHeader(data)
	if err != nil {
		return header{}, nil, err
	}
	if hdr.magic != magic {
		if hdr.magic == MagicHNSW || hdr.magic == MagicFlat {
			return header{}, nil, fmt.Errorf("%w: snapshot holds a different index type", ErrInvalidMagic)
		}
		return header{}, nil, ErrInvalidMagic
	}
	if hdr.version != Version {
		return header{}, nil, fmt.Errorf("%w: version %d, this build reads %d",
			ErrIncompatibleVersion, hdr.version, Version)
	}

	payload := data[HeaderSize:]
	if crc32.ChecksumIEEE(payload) != hdr.crc {
		return header{}, nil, ErrCorrupted
	}
	return hdr, payload, nil
}

// readVectorSections restores the float section and, when flagged, the
// quantized section into the store.
func readVectorSections(r *encoding.Reader, store *vstore.Store, hdr header, count int) error {
	floatBytes := int(r.U64())
	if floatBytes != count*store.Dim()*4 {
		if r.Err() != nil {
			return ErrTruncatedData
		}
		return fmt.Errorf("%w: float section length %d", ErrMalformed, floatBytes)
	}
	floats := r.F32s(count * store.Dim())
	if r.Err() != nil {
		return ErrTruncatedData
	}

	var codes []byte
	var params []quant.SQ8Params
	var bits []uint64

	if hdr.flags&FlagQuantized != 0 {
		sectionLen := int(r.U64())
		section := r.Raw(sectionLen)
		if r.Err() != nil {
			return ErrTruncatedData
		}
		sr := encoding.NewReader(section)
		if store.Mode().Has(quant.SQ8) {
			codes = append([]byte(nil), sr.Raw(count*store.Dim())...)
			params = make([]quant.SQ8Params, count)
			for i := range params {
				params[i] = quant.SQ8Params{Min: sr.F32(), Max: sr.F32()}
			}
		}
		if store.Mode().Has(quant.Binary) {
			bits = sr.U64s(count * store.BinaryWords())
		}
		if sr.Err() != nil || sr.Remaining() != 0 {
			return fmt.Errorf("%w: quantized section", ErrMalformed)
		}
	}

	if err := store.Restore(count, floats, codes, params, bits); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// readMetaSection restores the metadata store when flagged present.
func readMetaSection(r *encoding.Reader, hdr header) (*meta.Store, error) {
	if hdr.flags&FlagMetadata == 0 {
		return nil, nil
	}
	// The subheader carries its own length; consume it to find the
	// section window, then hand the whole window to the codec so its
	// CRC check sees exactly what was written.
	start := r.Offset()
	_ = r.U32() // section version, validated by decodeMetadata
	bodyLen := int(r.U32())
	_ = r.U32() // crc, validated by decodeMetadata
	if r.Raw(bodyLen) == nil {
		return nil, ErrTruncatedData
	}
	return decodeMetadata(r.Buffer()[start:r.Offset()])
}
