package signal

import (
	"encoding/binary"
	"math"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// DecodeFloat64 widens a raw byte buffer of st-typed samples to float64,
// the common numeric representation block-processing function blocks
// (statistics, averaging) compute in regardless of the wire width (§4.8).
// Standard library only: no library in the retrieval pack offers a typed
// sample codec narrower than general-purpose binary serialisation, and the
// fixed little-endian layout here matches DataDescriptor.RawSampleSize.
func DecodeFloat64(raw []byte, st SampleType) ([]float64, error) {
	width := st.byteWidth()
	if width == 0 {
		return nil, daqerr.New(daqerr.InvalidType, "sample type has no fixed numeric width")
	}
	if len(raw)%width != 0 {
		return nil, daqerr.New(daqerr.InvalidValue, "raw buffer length is not a multiple of the sample width")
	}
	n := len(raw) / width
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := raw[i*width : (i+1)*width]
		v, err := decodeOne(chunk, st)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeOne(chunk []byte, st SampleType) (float64, error) {
	switch st {
	case SampleFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk))), nil
	case SampleFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(chunk)), nil
	case SampleInt8:
		return float64(int8(chunk[0])), nil
	case SampleUInt8:
		return float64(chunk[0]), nil
	case SampleInt16:
		return float64(int16(binary.LittleEndian.Uint16(chunk))), nil
	case SampleUInt16:
		return float64(binary.LittleEndian.Uint16(chunk)), nil
	case SampleInt32:
		return float64(int32(binary.LittleEndian.Uint32(chunk))), nil
	case SampleUInt32:
		return float64(binary.LittleEndian.Uint32(chunk)), nil
	case SampleInt64:
		return float64(int64(binary.LittleEndian.Uint64(chunk))), nil
	case SampleUInt64:
		return float64(binary.LittleEndian.Uint64(chunk)), nil
	default:
		return 0, daqerr.New(daqerr.InvalidType, "sample type is not numeric")
	}
}

// EncodeFloat64 narrows vals back to st's raw byte representation, the
// inverse of DecodeFloat64.
func EncodeFloat64(vals []float64, st SampleType) ([]byte, error) {
	width := st.byteWidth()
	if width == 0 {
		return nil, daqerr.New(daqerr.InvalidType, "sample type has no fixed numeric width")
	}
	out := make([]byte, len(vals)*width)
	for i, v := range vals {
		chunk := out[i*width : (i+1)*width]
		if err := encodeOne(chunk, v, st); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeOne(chunk []byte, v float64, st SampleType) error {
	switch st {
	case SampleFloat32:
		binary.LittleEndian.PutUint32(chunk, math.Float32bits(float32(v)))
	case SampleFloat64:
		binary.LittleEndian.PutUint64(chunk, math.Float64bits(v))
	case SampleInt8:
		chunk[0] = byte(int8(v))
	case SampleUInt8:
		chunk[0] = byte(uint8(v))
	case SampleInt16:
		binary.LittleEndian.PutUint16(chunk, uint16(int16(v)))
	case SampleUInt16:
		binary.LittleEndian.PutUint16(chunk, uint16(v))
	case SampleInt32:
		binary.LittleEndian.PutUint32(chunk, uint32(int32(v)))
	case SampleUInt32:
		binary.LittleEndian.PutUint32(chunk, uint32(v))
	case SampleInt64:
		binary.LittleEndian.PutUint64(chunk, uint64(int64(v)))
	case SampleUInt64:
		binary.LittleEndian.PutUint64(chunk, uint64(v))
	default:
		return daqerr.New(daqerr.InvalidType, "sample type is not numeric")
	}
	return nil
}
