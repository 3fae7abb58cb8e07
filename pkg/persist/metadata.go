package persist

import (
	"fmt"
	"hash/crc32"

	"github.com/edgevec/edgevec/internal/encoding"
	"github.com/edgevec/edgevec/pkg/meta"
)

// metaSectionVersion is the metadata subformat version, independent of
// the snapshot version so the section can evolve alone.
const metaSectionVersion = 1

// Value kind tags in the serialized tagged-union format.
const (
	tagString uint8 = iota
	tagInt
	tagFloat
	tagBool
	tagStringArray
)

// encodeMetadata serializes the metadata store: a versioned subheader
// with its own CRC32, then one record per slot in slot order, keys in
// insertion order.
func encodeMetadata(store *meta.Store, slots int) []byte {
	payload := encoding.NewWriter(256)
	payload.U32(uint32(slots))
	for slot := 0; slot < slots; slot++ {
		rec := store.Get(slot)
		payload.U16(uint16(rec.Len()))
		rec.Range(func(key string, val meta.Value) bool {
			payload.U16(uint16(len(key)))
			payload.Raw([]byte(key))
			encodeValue(payload, val)
			return true
		})
	}

	body := payload.Bytes()
	out := encoding.NewWriter(len(body) + 12)
	out.U32(metaSectionVersion)
	out.U32(uint32(len(body)))
	out.U32(crc32.ChecksumIEEE(body))
	out.Raw(body)
	return out.Bytes()
}

func encodeValue(w *encoding.Writer, val meta.Value) {
	switch val.Kind() {
	case meta.KindString:
		w.U8(tagString)
		w.Str(val.Str())
	case meta.KindInt:
		w.U8(tagInt)
		w.I64(val.IntVal())
	case meta.KindFloat:
		w.U8(tagFloat)
		w.F64(val.FloatVal())
	case meta.KindBool:
		w.U8(tagBool)
		if val.BoolVal() {
			w.U8(1)
		} else {
			w.U8(0)
		}
	case meta.KindStringArray:
		w.U8(tagStringArray)
		arr := val.Array()
		w.U32(uint32(len(arr)))
		for _, s := range arr {
			w.Str(s)
		}
	}
}

// decodeMetadata rebuilds the metadata store from its section bytes.
func decodeMetadata(b []byte) (*meta.Store, error) {
	r := encoding.NewReader(b)
	version := r.U32()
	bodyLen := int(r.U32())
	sum := r.U32()
	if r.Err() != nil {
		return nil, ErrTruncatedData
	}
	if version != metaSectionVersion {
		return nil, fmt.Errorf("%w: metadata section version %d", ErrIncompatibleVersion, version)
	}
	body := r.Raw(bodyLen)
	if r.Err() != nil {
		return nil, ErrTruncatedData
	}
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: metadata section", ErrCorrupted)
	}

	br := encoding.NewReader(body)
	slots := int(br.U32())
	store := meta.NewStore()
	for slot := 0; slot < slots; slot++ {
		keys := int(br.U16())
		if keys == 0 {
			continue
		}
		rec := &meta.Record{}
		for k := 0; k < keys; k++ {
			keyLen := int(br.U16())
			key := string(br.Raw(keyLen))
			val, err := decodeValue(br)
			if err != nil {
				return nil, err
			}
			if br.Err() != nil {
				return nil, ErrTruncatedData
			}
			if err := rec.Set(key, val); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		store.Set(slot, rec)
	}
	if br.Err() != nil {
		return nil, ErrTruncatedData
	}
	return store, nil
}

func decodeValue(r *encoding.Reader) (meta.Value, error) {
	switch tag := r.U8(); tag {
	case tagString:
		return meta.String(r.Str()), nil
	case tagInt:
		return meta.Int(r.I64()), nil
	case tagFloat:
		return meta.Float(r.F64()), nil
	case tagBool:
		return meta.Bool(r.U8() != 0), nil
	case tagStringArray:
		n := int(r.U32())
		if n > meta.MaxArrayElems {
			return meta.Value{}, fmt.Errorf("%w: array of %d elements", ErrMalformed, n)
		}
		arr := make([]string, 0, n)
		for i := 0; i < n; i++ {
			arr = append(arr, r.Str())
		}
		return meta.StringArray(arr), nil
	default:
		if r.Err() != nil {
			return meta.Value{}, ErrTruncatedData
		}
		return meta.Value{}, fmt.Errorf("%w: unknown value tag %d", ErrMalformed, tag)
	}
}
