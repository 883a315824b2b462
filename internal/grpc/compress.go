package grpc

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressor applies symmetric compression to trajectory payloads.
type Compressor interface {
	//1.- Name returns the codec identifier advertised in RPC payloads.
	Name() string
	//2.- Compress encodes the provided payload into a compressed representation.
	Compress(data []byte) ([]byte, error)
	//3.- Decompress restores the original payload from its compressed form.
	Decompress(data []byte) ([]byte, error)
}

// zstdCompressor shares one encoder and decoder; EncodeAll and DecodeAll are safe for
// concurrent use.
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor constructs a Compressor backed by zstd.
func NewZstdCompressor() (Compressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCompressor{encoder: encoder, decoder: decoder}, nil
}

// Name reports the identifier used for zstd encoded payloads.
func (*zstdCompressor) Name() string { return "zstd" }

// Compress encodes data as a single zstd frame.
func (c *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, nil), nil
}

// Decompress decodes a zstd frame and returns the raw payload.
func (c *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("zstd decompress: empty payload")
	}
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// snappyCompressor trades ratio for speed.
type snappyCompressor struct{}

// NewSnappyCompressor constructs a Compressor backed by snappy block encoding.
func NewSnappyCompressor() Compressor {
	return snappyCompressor{}
}

// Name reports the identifier used for snappy encoded payloads.
func (snappyCompressor) Name() string { return "snappy" }

// Compress encodes data as a snappy block.
func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress decodes a snappy block.
func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	//1.- Guard against nil payloads to simplify caller logic.
	if len(data) == 0 {
		return nil, fmt.Errorf("snappy decompress: empty payload")
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}
