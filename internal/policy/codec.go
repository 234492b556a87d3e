package policy

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const contentType = "application/cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("policy: CBOR encoder initialization failed: " + err.Error())
	}
	// Metadata is map[string]any; without DefaultMapType nested maps would
	// decode as map[interface{}]interface{}.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("policy: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("policy: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxRequestBytes))
	if err != nil {
		panic("policy: zstd decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// Compress returns a copy of img with its pixels zstd-compressed. Images
// that do not shrink are returned unchanged.
func Compress(img Image) Image {
	if img.Encoding == EncodingZstd {
		return img
	}
	packed := zstdEncoder.EncodeAll(img.Pixels, nil)
	if len(packed) >= len(img.Pixels) {
		return img
	}
	img.Pixels = packed
	img.Encoding = EncodingZstd
	return img
}

// pixelSize is the raw HWC RGB byte count for a width×height image. It
// rejects dimensions that are non-positive or exceed maxRequestBytes.
func pixelSize(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: image dimensions %dx%d", ErrBadPayload, width, height)
	}
	if width > maxRequestBytes/3/height {
		return 0, fmt.Errorf("%w: image %dx%d exceeds %d bytes", ErrBadPayload, width, height, maxRequestBytes)
	}
	return width * height * 3, nil
}

func decompressPixels(data []byte, width, height int) ([]byte, error) {
	size, err := pixelSize(width, height)
	if err != nil {
		return nil, err
	}
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrBadPayload, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: zstd: got %d bytes, expected %d", ErrBadPayload, len(out), size)
	}
	return out, nil
}
