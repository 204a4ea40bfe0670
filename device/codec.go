package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the block compression algorithm used by devices whose
// physical medium stores variable-size records (object stores). Local
// fixed-slot devices gain nothing from compression and do not use it.
type Compression uint8

const (
	// CompressionNone indicates no compression.
	CompressionNone Compression = 0
	// CompressionLZ4 indicates LZ4 block compression (fast, good for hot data).
	CompressionLZ4 Compression = 1
	// CompressionZSTD indicates ZSTD block compression (better ratio, good for cold data).
	CompressionZSTD Compression = 2
)

// ErrCorruptBlock indicates a stored block whose header or payload does not
// decode to exactly one device block.
var ErrCorruptBlock = errors.New("device: corrupt compressed block")

// Stored block format: [Compression uint8][UncompressedSize uint32][CompressedSize uint32][Data...]
// If CompressedSize == 0, the block is stored uncompressed.
const blockHeaderSize = 9

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// CompressBlock encodes one device block for storage. The result carries a
// self-describing header; if compression does not shrink the payload the
// block is stored raw.
func CompressBlock(data []byte, compression Compression) ([]byte, error) {
	ulen := uint32(len(data))

	raw := func() []byte {
		out := make([]byte, blockHeaderSize+len(data))
		out[0] = byte(CompressionNone)
		binary.LittleEndian.PutUint32(out[1:], ulen)
		binary.LittleEndian.PutUint32(out[5:], 0)
		copy(out[blockHeaderSize:], data)
		return out
	}

	switch compression {
	case CompressionNone:
		return raw(), nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		out := make([]byte, blockHeaderSize+bound)
		n, err := lz4.CompressBlock(data, out[blockHeaderSize:], nil)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(data) {
			// Incompressible, store raw.
			return raw(), nil
		}
		out[0] = byte(CompressionLZ4)
		binary.LittleEndian.PutUint32(out[1:], ulen)
		binary.LittleEndian.PutUint32(out[5:], uint32(n))
		return out[:blockHeaderSize+n], nil

	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed := enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
		if len(compressed) >= len(data) {
			return raw(), nil
		}
		out := make([]byte, blockHeaderSize+len(compressed))
		out[0] = byte(CompressionZSTD)
		binary.LittleEndian.PutUint32(out[1:], ulen)
		binary.LittleEndian.PutUint32(out[5:], uint32(len(compressed)))
		copy(out[blockHeaderSize:], compressed)
		return out, nil

	default:
		return nil, fmt.Errorf("device: unknown compression type %d", compression)
	}
}

// DecompressBlock decodes a stored block into p. len(p) must equal the
// device block size the block was encoded from.
func DecompressBlock(stored []byte, p []byte) error {
	if len(stored) < blockHeaderSize {
		return ErrCorruptBlock
	}

	compression := Compression(stored[0])
	ulen := binary.LittleEndian.Uint32(stored[1:])
	clen := binary.LittleEndian.Uint32(stored[5:])
	payload := stored[blockHeaderSize:]

	if int(ulen) != len(p) {
		return fmt.Errorf("%w: uncompressed size %d, want %d", ErrCorruptBlock, ulen, len(p))
	}

	if clen == 0 {
		if len(payload) < int(ulen) {
			return ErrCorruptBlock
		}
		copy(p, payload[:ulen])
		return nil
	}

	if len(payload) < int(clen) {
		return ErrCorruptBlock
	}
	payload = payload[:clen]

	switch compression {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if n != len(p) {
			return ErrCorruptBlock
		}
		return nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, p[:0])
		putZstdDecoder(dec)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if len(out) != len(p) {
			return ErrCorruptBlock
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown compression type %d", ErrCorruptBlock, compression)
	}
}
