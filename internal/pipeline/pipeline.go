// Package pipeline drives one image through loading, preprocessing,
// inference, postprocessing and saving.
package pipeline

import (
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/road-overlay/internal/codec"
	"github.com/Brownie44l1/road-overlay/internal/segment"
)

type State int

const (
	Start State = iota
	ImageLoaded
	Preprocessed
	Inferred
	Postprocessed
	Saved
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case ImageLoaded:
		return "image_loaded"
	case Preprocessed:
		return "preprocessed"
	case Inferred:
		return "inferred"
	case Postprocessed:
		return "postprocessed"
	case Saved:
		return "saved"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StageError reports the state a run was in when it failed.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.stageName(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) stageName() string {
	switch e.Stage {
	case Start:
		return "loading image"
	case ImageLoaded:
		return "preprocessing"
	case Preprocessed:
		return "inference"
	case Inferred:
		return "postprocessing"
	case Postprocessed:
		return "saving result"
	}
	return e.Stage.String()
}

type Inferer interface {
	Infer(input *segment.Tensor) (*segment.Tensor, error)
}

// Pipeline holds the collaborators of a run. It keeps no state between
// runs and is safe for concurrent use if Model is.
type Pipeline struct {
	Model         Inferer
	Postprocessor segment.Postprocessor
	Log           logrus.FieldLogger
}

func New(model Inferer) *Pipeline {
	return &Pipeline{
		Model:         model,
		Postprocessor: segment.NewPostprocessor(),
		Log:           logrus.StandardLogger(),
	}
}

// Run loads inputPath, highlights its road region and writes the result to
// outputPath. Nothing is written unless every earlier step succeeded.
func (p *Pipeline) Run(inputPath, outputPath string) (*segment.Result, error) {
	log := p.logger().WithField("input", inputPath)
	tr := &tracker{log: log, state: Start}

	log.Info("starting road overlay")
	img, err := codec.Load(inputPath)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(ImageLoaded, logrus.Fields{"width": img.Bounds().Dx(), "height": img.Bounds().Dy()})

	result, err := p.process(tr, img)
	if err != nil {
		return nil, err
	}

	if err := codec.Save(outputPath, result.Image); err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(Saved, logrus.Fields{"output": outputPath})
	tr.advance(Done, nil)
	return result, nil
}

// Process runs preprocessing, inference and postprocessing on an image
// that is already decoded.
func (p *Pipeline) Process(img image.Image) (*segment.Result, error) {
	tr := &tracker{log: p.logger(), state: ImageLoaded}
	result, err := p.process(tr, img)
	if err != nil {
		return nil, err
	}
	tr.advance(Done, nil)
	return result, nil
}

func (p *Pipeline) process(tr *tracker, img image.Image) (*segment.Result, error) {
	input, err := segment.Preprocess(img)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(Preprocessed, nil)

	if p.Model == nil {
		return nil, tr.fail(fmt.Errorf("%w: no model configured", segment.ErrModelLoad))
	}
	output, err := p.Model.Infer(input)
	if err != nil {
		if segment.Kind(err) == nil {
			err = fmt.Errorf("%w: %w", segment.ErrModelInvocation, err)
		}
		return nil, tr.fail(err)
	}
	if output == nil {
		return nil, tr.fail(fmt.Errorf("%w: model returned no output", segment.ErrModelInvocation))
	}
	tr.advance(Inferred, logrus.Fields{"output_shape": output.Shape})

	result, err := p.Postprocessor.Process(output, img)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(Postprocessed, logrus.Fields{
		"road_pixels": result.RoadPixels,
		"coverage":    result.Coverage,
	})
	return result, nil
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

type tracker struct {
	log   logrus.FieldLogger
	state State
}

func (r *tracker) advance(next State, fields logrus.Fields) {
	r.state = next
	r.log.WithFields(fields).WithField("stage", next.String()).Debug("stage complete")
}

func (r *tracker) fail(err error) error {
	stageErr := &StageError{Stage: r.state, Err: err}
	r.state = Failed
	r.log.WithError(err).WithField("stage", stageErr.Stage.String()).Error("road overlay failed")
	return stageErr
}

// IsStage reports whether err is a StageError raised from stage.
func IsStage(err error, stage State) bool {
	var stageErr *StageError
	return errors.As(err, &stageErr) && stageErr.Stage == stage
}
