package callseq

import (
	"github.com/klauspost/compress/zstd"
)

// ZstdCompress compresses a byte slice using zstd and appends the compressed data to dst.
func ZstdCompress(dst, data []byte) []byte {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		panic(err) // only possible with invalid options
	}
	defer func() { _ = encoder.Close() }()

	return encoder.EncodeAll(data, dst)
}

// ZstdDecompress decompresses a zstd-compressed byte slice and appends the original data to dst.
func ZstdDecompress(dst, data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, dst)
}
