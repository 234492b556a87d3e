package episode

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/san-kum/actsched/internal/action"
)

// Synthetic generates reproducible frames: drifting colour gradients with
// seeded noise for the cameras and a smooth sinusoidal joint trajectory.
// The reference action for frame i is the proprio of frame i+1.
type Synthetic struct {
	dim    int
	length int
	seed   int64
	width  int
	height int
	period float64
}

func NewSynthetic(dim, length int, seed int64) *Synthetic {
	return &Synthetic{
		dim:    dim,
		length: length,
		seed:   seed,
		width:  96,
		height: 72,
		period: 120,
	}
}

// SetImageSize changes the generated camera resolution.
func (s *Synthetic) SetImageSize(width, height int) {
	s.width, s.height = width, height
}

func (s *Synthetic) Len() int { return s.length }

func (s *Synthetic) Frame(i int) (action.Frame, error) {
	if i < 0 || i >= s.length {
		return action.Frame{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, s.length)
	}
	rng := rand.New(rand.NewSource(s.seed + int64(i)))
	return action.Frame{
		Ego:        s.image(i, 0, rng),
		LeftWrist:  s.image(i, 1, rng),
		RightWrist: s.image(i, 2, rng),
		Proprio:    s.joints(i),
	}, nil
}

func (s *Synthetic) Reference(i int) (action.Vector, bool) {
	if i < 0 || i >= s.length {
		return nil, false
	}
	return s.joints(i + 1), true
}

func (s *Synthetic) joints(i int) action.Vector {
	v := make(action.Vector, s.dim)
	t := 2 * math.Pi * float64(i) / s.period
	for d := range v {
		v[d] = 0.2 * math.Sin(t+0.5*float64(d))
	}
	return v
}

func (s *Synthetic) image(i, cam int, rng *rand.Rand) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	shift := i * 2
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			noise := uint8(rng.Intn(16))
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x+shift)*255/s.width) + noise,
				G: uint8(y*255/s.height) + noise,
				B: uint8(cam * 80),
				A: 255,
			})
		}
	}
	return img
}
