package codec

import (
	"bytes"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/meigma/stow/internal/sizing"
)

// Builtin codec names.
const (
	RawName    = "raw"
	ZstdName   = "zstd"
	LZ4Name    = "lz4"
	SnappyName = "snappy"
)

// NewRaw returns a codec that stores the stream verbatim.
func NewRaw(cfg Config) (Codec, error) {
	identity := func(b []byte) ([]byte, error) { return b, nil }
	return &streamCodec{name: RawName, ext: ".stw", cfg: cfg, encode: identity, decode: identity}, nil
}

// NewZstd returns a codec that stores the stream as one zstd frame.
func NewZstd(cfg Config) (Codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxContainerSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &streamCodec{
		name: ZstdName,
		ext:  ".stz",
		cfg:  cfg,
		encode: func(b []byte) ([]byte, error) {
			return enc.EncodeAll(b, nil), nil
		},
		decode: func(data []byte) ([]byte, error) {
			return dec.DecodeAll(data, nil)
		},
	}, nil
}

// NewLZ4 returns a codec that stores the stream as an lz4 frame.
func NewLZ4(cfg Config) (Codec, error) {
	return &streamCodec{
		name: LZ4Name,
		ext:  ".st4",
		cfg:  cfg,
		encode: func(b []byte) ([]byte, error) {
			var out bytes.Buffer
			w := lz4.NewWriter(&out)
			if _, err := w.Write(b); err != nil {
				return nil, fmt.Errorf("lz4 compress: %w", err)
			}
			if err := w.Close(); err != nil {
				return nil, fmt.Errorf("lz4 compress: %w", err)
			}
			return out.Bytes(), nil
		},
		decode: func(data []byte) ([]byte, error) {
			r := lz4.NewReader(bytes.NewReader(data))
			return sizing.ReadAllWithLimit(r, MaxContainerSize, fmt.Errorf("lz4 decompress: exceeds %d bytes", MaxContainerSize))
		},
	}, nil
}

// NewSnappy returns a codec that stores the stream as a snappy block.
func NewSnappy(cfg Config) (Codec, error) {
	return &streamCodec{
		name: SnappyName,
		ext:  ".sts",
		cfg:  cfg,
		encode: func(b []byte) ([]byte, error) {
			return snappy.Encode(nil, b), nil
		},
		decode: func(data []byte) ([]byte, error) {
			n, err := snappy.DecodedLen(data)
			if err != nil {
				return nil, fmt.Errorf("snappy decode: %w", err)
			}
			if n > MaxContainerSize {
				return nil, fmt.Errorf("snappy decode: %d bytes exceeds %d", n, MaxContainerSize)
			}
			return snappy.Decode(nil, data)
		},
	}, nil
}
