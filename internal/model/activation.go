package model

import (
	"fmt"
	"math"
)

// activate applies the named activation to data in place. Softmax runs over
// the channel axis of a (1,C,H,W) or (C,H,W) layout.
func activate(name string, shape []int, data []float32) error {
	switch name {
	case "", ActivationNone:
		return nil
	case ActivationSigmoid:
		for i, v := range data {
			data[i] = float32(1 / (1 + math.Exp(-float64(v))))
		}
		return nil
	case ActivationSoftmax:
		return softmax(shape, data)
	}
	return fmt.Errorf("unknown activation %q", name)
}

func softmax(shape []int, data []float32) error {
	if len(shape) == 4 {
		shape = shape[1:]
	}
	if len(shape) != 3 {
		return fmt.Errorf("softmax needs a channel axis, got shape %v", shape)
	}
	channels, plane := shape[0], shape[1]*shape[2]
	if len(data) != channels*plane {
		return fmt.Errorf("shape %v does not match %d values", shape, len(data))
	}

	for i := 0; i < plane; i++ {
		peak := math.Inf(-1)
		for c := 0; c < channels; c++ {
			peak = math.Max(peak, float64(data[c*plane+i]))
		}
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += math.Exp(float64(data[c*plane+i]) - peak)
		}
		for c := 0; c < channels; c++ {
			data[c*plane+i] = float32(math.Exp(float64(data[c*plane+i])-peak) / sum)
		}
	}
	return nil
}
