package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"

	"bigcode/internal/tensor"
)

// TensorInfo describes one entry in a safetensors file header.
type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// SafetensorsStore is a Store backed by a single safetensors checkpoint
// file. Tensor data is read lazily on Get; F16 and BF16 payloads are decoded
// to float32.
type SafetensorsStore struct {
	path      string
	dataStart int64
	tensors   map[string]TensorInfo
}

// OpenSafetensors parses the header of the safetensors file at path and
// returns a store over its tensors.
func OpenSafetensors(path string) (*SafetensorsStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read safetensors header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("read safetensors header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("parse safetensors header: %w", err)
	}
	delete(raw, "__metadata__")

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return &SafetensorsStore{
		path:      path,
		dataStart: int64(8 + headerLen),
		tensors:   tensors,
	}, nil
}

// Tensors returns the header entries keyed by tensor name.
func (s *SafetensorsStore) Tensors() map[string]TensorInfo {
	return s.tensors
}

func (s *SafetensorsStore) Get(shape []int, name string) (*tensor.Tensor, error) {
	info, ok := s.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	if err := checkShape(name, shape, info.Shape); err != nil {
		return nil, err
	}

	raw, err := s.readRaw(name, info)
	if err != nil {
		return nil, err
	}
	data, err := decodeF32(name, info.DType, raw)
	if err != nil {
		return nil, err
	}
	return tensor.FromData(data, info.Shape...)
}

func (s *SafetensorsStore) Scope(prefix string) Store {
	return Scoped(s, prefix)
}

func (s *SafetensorsStore) readRaw(name string, info TensorInfo) ([]byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, info.End-info.Start)
	if _, err := f.ReadAt(buf, s.dataStart+info.Start); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, nil
}

func decodeF32(name, dtype string, raw []byte) ([]float32, error) {
	switch dtype {
	case "F32":
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("tensor %s: invalid f32 data size", name)
		}
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case "BF16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("tensor %s: invalid bf16 data size", name)
		}
		out := make([]float32, len(raw)/2)
		for i := range out {
			u := binary.LittleEndian.Uint16(raw[i*2:])
			out[i] = math.Float32frombits(uint32(u) << 16)
		}
		return out, nil
	case "F16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("tensor %s: invalid f16 data size", name)
		}
		out := make([]float32, len(raw)/2)
		for i := range out {
			u := binary.LittleEndian.Uint16(raw[i*2:])
			out[i] = fp16ToFloat32(u)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, dtype)
	}
}

func fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
