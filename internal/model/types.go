package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/road-overlay/internal/segment"
)

// Activations applied to the raw model output before it is returned.
const (
	ActivationNone    = "none"
	ActivationSigmoid = "sigmoid"
	ActivationSoftmax = "softmax"
)

// Metadata describes the tensors of an exported segmentation model. It is
// read from a JSON file next to the model.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	Activation  string  `json:"activation"`
	// RoadChannel overrides the default channel selection when set.
	RoadChannel *int `json:"road_channel,omitempty"`
}

func DefaultMetadata() Metadata {
	return Metadata{
		InputName:  "input",
		OutputName: "output",
		InputShape: []int64{1, 3, segment.InputSize, segment.InputSize},
		Activation: ActivationNone,
	}
}

// SidecarPath returns the metadata path used for modelPath when none is
// given: the model path with its extension replaced by .json.
func SidecarPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	metadata := DefaultMetadata()
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m Metadata) Validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return errors.New("metadata needs input_name and output_name")
	}
	if !sameShape(m.InputShape, segment.InputShape()) {
		return fmt.Errorf("input_shape %v, model input must be %v", m.InputShape, segment.InputShape())
	}
	if len(m.OutputShape) == 0 {
		return errors.New("metadata needs output_shape")
	}
	for _, dim := range m.OutputShape {
		if dim <= 0 {
			return fmt.Errorf("output_shape %v has dynamic or empty dimensions", m.OutputShape)
		}
	}
	switch m.Activation {
	case ActivationNone, ActivationSigmoid, ActivationSoftmax:
	default:
		return fmt.Errorf("unknown activation %q", m.Activation)
	}
	if m.RoadChannel != nil && *m.RoadChannel < 0 {
		return fmt.Errorf("road_channel %d is negative", *m.RoadChannel)
	}
	return nil
}

func (m Metadata) Channel() int {
	if m.RoadChannel == nil {
		return segment.AutoChannel
	}
	return *m.RoadChannel
}

func sameShape(a []int64, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != int64(b[i]) {
			return false
		}
	}
	return true
}

func toInts(shape []int64) []int {
	out := make([]int, len(shape))
	for i, dim := range shape {
		out[i] = int(dim)
	}
	return out
}
