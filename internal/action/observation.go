package action

import (
	"fmt"
	"image"
)

// Frame is one timestep of sensor input.
type Frame struct {
	Ego        image.Image
	LeftWrist  image.Image
	RightWrist image.Image
	Proprio    Vector
}

// Observation holds a short history of frames, oldest first. Prompt, when
// set, overrides the scheduler's configured instruction.
type Observation struct {
	Frames []Frame
	Prompt string
}

func Single(f Frame) Observation {
	return Observation{Frames: []Frame{f}}
}

func (o Observation) Latest() Frame {
	return o.Frames[len(o.Frames)-1]
}

// Validate checks the latest frame, which is the only one the scheduler reads.
func (o Observation) Validate() error {
	if len(o.Frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrInvalidObservation)
	}
	f := o.Latest()
	cams := []struct {
		name string
		img  image.Image
	}{
		{"ego", f.Ego},
		{"left_wrist", f.LeftWrist},
		{"right_wrist", f.RightWrist},
	}
	for _, c := range cams {
		if c.img == nil {
			return fmt.Errorf("%w: %s image missing", ErrInvalidObservation, c.name)
		}
		if c.img.Bounds().Empty() {
			return fmt.Errorf("%w: %s image is empty", ErrInvalidObservation, c.name)
		}
	}
	if len(f.Proprio) == 0 {
		return fmt.Errorf("%w: proprio missing", ErrInvalidObservation)
	}
	if !f.Proprio.IsValid() {
		return fmt.Errorf("%w: proprio contains NaN or Inf", ErrInvalidObservation)
	}
	return nil
}
