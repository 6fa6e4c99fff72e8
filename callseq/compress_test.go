package callseq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdCompress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"nil_input", nil},
		{"ascii_text", []byte("The quick brown fox jumps over the lazy dog")},
		{"binary_data", []byte{0x00, 0xFF, 0x10, 0x20, 0x7F}},
		{"repetitive", bytes.Repeat([]byte("PROBE(1,this);"), 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed := ZstdCompress(nil, tt.input)
			out, err := ZstdDecompress(nil, compressed)
			require.NoError(t, err)
			assert.Equal(t, tt.input, out)
		})
	}

	t.Run("appends_to_dst", func(t *testing.T) {
		prefix := []byte("hdr")
		compressed := ZstdCompress(append([]byte(nil), prefix...), []byte("payload"))
		require.True(t, bytes.HasPrefix(compressed, prefix))

		out, err := ZstdDecompress([]byte("x"), compressed[len(prefix):])
		require.NoError(t, err)
		assert.Equal(t, "xpayload", string(out))
	})
}

func TestZstdDecompressError(t *testing.T) {
	t.Parallel()

	_, err := ZstdDecompress(nil, []byte{0x42, 0x43, 0x44})
	require.Error(t, err)
}
