package segment

import "fmt"

type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor checks that shape is non-empty, every dimension is positive and
// data holds exactly the number of elements the shape describes.
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("tensor has no dimensions")
	}
	size := 1
	for i, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("dimension %d has size %d", i, dim)
		}
		size *= dim
	}
	if len(data) != size {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, size, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

func (t *Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// planes interprets an output tensor as C planes of H×W values. A leading
// batch dimension must have size 1 and is dropped.
func (t *Tensor) planes() (channels, height, width int, err error) {
	if t == nil {
		return 0, 0, 0, fmt.Errorf("%w: nil tensor", ErrInvalidModelOutput)
	}
	shape := t.Shape
	for i, dim := range shape {
		if dim <= 0 {
			return 0, 0, 0, fmt.Errorf("%w: dimension %d of shape %v is %d", ErrInvalidModelOutput, i, shape, dim)
		}
	}
	if len(shape) == 4 {
		if shape[0] != 1 {
			return 0, 0, 0, fmt.Errorf("%w: batch size %d, only single images are supported", ErrInvalidModelOutput, shape[0])
		}
		shape = shape[1:]
	}

	switch len(shape) {
	case 3:
		channels, height, width = shape[0], shape[1], shape[2]
	case 2:
		channels, height, width = 1, shape[0], shape[1]
	default:
		return 0, 0, 0, fmt.Errorf("%w: cannot read shape %v as channel/height/width", ErrInvalidModelOutput, t.Shape)
	}

	if want := channels * height * width; len(t.Data) != want {
		return 0, 0, 0, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrInvalidModelOutput, t.Shape, want, len(t.Data))
	}
	return channels, height, width, nil
}
