package prerender

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// snapshotVersion is bumped whenever the encoded layout changes.
const snapshotVersion = 1

// maxSnapshotSize bounds decompressed input accepted by Hydrate.
const maxSnapshotSize = 32 << 20

var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	// Equal results must encode to equal bytes; the digest is an ETag.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("prerender: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("prerender: cbor decoder: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("prerender: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSnapshotSize))
	if err != nil {
		panic("prerender: zstd decoder: " + err.Error())
	}
}

type document struct {
	Version int      `cbor:"1,keyasint"`
	Results []result `cbor:"2,keyasint"`
}

func encode(doc document) ([]byte, error) {
	raw, err := encMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func decode(data []byte) (document, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return document{}, fmt.Errorf("%w: decompress: %w", ErrInvalidSnapshot, err)
	}
	var doc document
	if err := decMode.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("%w: decode: %w", ErrInvalidSnapshot, err)
	}
	if doc.Version != snapshotVersion {
		return document{}, fmt.Errorf("%w: version %d", ErrInvalidSnapshot, doc.Version)
	}
	return doc, nil
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
