package grpc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressorsRoundTrip(t *testing.T) {
	zstdCodec, err := NewZstdCompressor()
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("ball state "), 64)

	for _, compressor := range []Compressor{zstdCodec, NewSnappyCompressor()} {
		t.Run(compressor.Name(), func(t *testing.T) {
			compressed, err := compressor.Compress(payload)
			require.NoError(t, err)
			require.NotEmpty(t, compressed)
			require.Less(t, len(compressed), len(payload))

			decompressed, err := compressor.Decompress(compressed)
			require.NoError(t, err)
			require.Equal(t, payload, decompressed)
		})
	}
}

func TestCompressorsRejectEmpty(t *testing.T) {
	zstdCodec, err := NewZstdCompressor()
	require.NoError(t, err)
	for _, compressor := range []Compressor{zstdCodec, NewSnappyCompressor()} {
		_, err := compressor.Decompress(nil)
		require.Error(t, err, compressor.Name())
	}
}
