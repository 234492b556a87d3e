package policy

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/san-kum/actsched/internal/imgproc"
)

var (
	// ErrServer indicates the policy server answered with a non-200 status.
	ErrServer = errors.New("policy: server error")

	// ErrBadPayload indicates a request or response that could not be decoded.
	ErrBadPayload = errors.New("policy: malformed payload")
)

// Pixel encodings carried in Image.Encoding.
const (
	EncodingRaw  = "raw"
	EncodingZstd = "zstd"
)

// Image is an HWC RGB buffer.
type Image struct {
	Height   int    `cbor:"height"`
	Width    int    `cbor:"width"`
	Encoding string `cbor:"encoding"`
	Pixels   []byte `cbor:"pixels"`
}

func NewImage(img *image.RGBA) Image {
	b := img.Bounds()
	return Image{
		Height:   b.Dy(),
		Width:    b.Dx(),
		Encoding: EncodingRaw,
		Pixels:   imgproc.PackRGB(img),
	}
}

// RGBA decodes the buffer back into an image.
func (i Image) RGBA() (*image.RGBA, error) {
	pix := i.Pixels
	if _, err := pixelSize(i.Width, i.Height); err != nil {
		return nil, err
	}
	if i.Encoding == EncodingZstd {
		var err error
		if pix, err = decompressPixels(pix, i.Width, i.Height); err != nil {
			return nil, err
		}
	} else if i.Encoding != EncodingRaw && i.Encoding != "" {
		return nil, fmt.Errorf("%w: unknown pixel encoding %q", ErrBadPayload, i.Encoding)
	}
	return imgproc.UnpackRGB(pix, i.Width, i.Height)
}

// Request mirrors the observation dictionary the policy server expects.
type Request struct {
	EgoCamera     Image     `cbor:"observation/egocentric_camera"`
	WristLeft     Image     `cbor:"observation/wrist_image_left"`
	WristRight    Image     `cbor:"observation/wrist_image_right"`
	JointPosition []float64 `cbor:"observation/joint_position"`
	Prompt        string    `cbor:"prompt"`
}

// Response carries one action chunk, chunk length × action dim.
type Response struct {
	Actions  [][]float64    `cbor:"actions"`
	Metadata map[string]any `cbor:"metadata,omitempty"`
}

type Policy interface {
	Infer(ctx context.Context, req *Request) (*Response, error)
}

// PolicyFunc adapts an ordinary function to the Policy interface.
type PolicyFunc func(ctx context.Context, req *Request) (*Response, error)

func (f PolicyFunc) Infer(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
