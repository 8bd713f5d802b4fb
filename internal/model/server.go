package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/road-overlay/internal/segment"
)

// Server runs a segmentation model through ONNX Runtime. Input and output
// tensors are allocated once and reused, so calls to Infer are serialized.
type Server struct {
	ModelPath string
	Metadata  Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewServer loads the model at modelPath. metadataPath may be empty, in which
// case the sidecar next to the model is used if present and the model's own
// input/output declarations otherwise. libPath points at the ONNX Runtime
// shared library; empty keeps the library default.
func NewServer(modelPath, metadataPath, libPath string) (*Server, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrModelLoad, err)
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %v", segment.ErrModelLoad, err)
		}
	}

	metadata, err := resolveMetadata(modelPath, metadataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrModelLoad, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %v", segment.ErrModelLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create output tensor: %v", segment.ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %v", segment.ErrModelLoad, err)
	}

	log.WithFields(log.Fields{
		"model":        modelPath,
		"input":        metadata.InputName,
		"output":       metadata.OutputName,
		"output_shape": metadata.OutputShape,
		"activation":   metadata.Activation,
	}).Info("model loaded")

	return &Server{
		ModelPath:    modelPath,
		Metadata:     metadata,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func resolveMetadata(modelPath, metadataPath string) (Metadata, error) {
	if metadataPath != "" {
		return LoadMetadata(metadataPath)
	}

	sidecar := SidecarPath(modelPath)
	metadata, err := LoadMetadata(sidecar)
	if err == nil {
		return metadata, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, err
	}

	log.WithField("model", modelPath).Debug("no metadata sidecar, reading model declarations")
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return Metadata{}, errors.New("model declares no inputs or outputs")
	}

	metadata = DefaultMetadata()
	metadata.InputName = inputs[0].Name
	metadata.OutputName = outputs[0].Name
	metadata.OutputShape = append([]int64(nil), outputs[0].Dimensions...)
	if err := metadata.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("%w (provide a metadata file)", err)
	}
	return metadata, nil
}

// Infer runs the model on a (1,3,224,224) tensor and returns a copy of the
// output with the configured activation applied.
func (s *Server) Infer(input *segment.Tensor) (*segment.Tensor, error) {
	if input == nil || !sameShape(s.Metadata.InputShape, input.Shape) || len(input.Data) != input.Len() {
		var shape []int
		if input != nil {
			shape = input.Shape
		}
		return nil, fmt.Errorf("%w: input shape %v, model expects %v", segment.ErrModelInvocation, shape, s.Metadata.InputShape)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), input.Data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference failed: %v", segment.ErrModelInvocation, err)
	}

	outputData := append([]float32(nil), s.outputTensor.GetData()...)
	shape := toInts(s.Metadata.OutputShape)
	if err := activate(s.Metadata.Activation, shape, outputData); err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrModelInvocation, err)
	}

	output, err := segment.NewTensor(shape, outputData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrModelInvocation, err)
	}
	return output, nil
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
