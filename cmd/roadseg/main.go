// Command roadseg highlights the road in a photograph using an ONNX
// segmentation model.
//
//	roadseg <input_image> <output_image> <model_path>
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/road-overlay/internal/model"
	"github.com/Brownie44l1/road-overlay/internal/pipeline"
	"github.com/Brownie44l1/road-overlay/internal/segment"
)

type options struct {
	metadataPath string
	libraryPath  string
	roadChannel  int
	logLevel     string
}

// loadModel is replaced in tests.
var loadModel = func(modelPath, metadataPath, libPath string) (pipeline.Inferer, segment.Postprocessor, func(), error) {
	server, err := model.NewServer(modelPath, metadataPath, libPath)
	if err != nil {
		return nil, segment.Postprocessor{}, nil, err
	}
	return server, segment.Postprocessor{RoadChannel: server.Metadata.Channel()}, server.Close, nil
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "roadseg <input_image> <output_image> <model_path>",
		Short: "Paint a translucent highlight over the road in a photograph",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(opts, args[0], args[1], args[2])
		},
	}

	cmd.Flags().StringVar(&opts.metadataPath, "metadata", "", "model metadata JSON (default: <model>.json next to the model)")
	cmd.Flags().StringVar(&opts.libraryPath, "ort-lib", os.Getenv("ONNXRUNTIME_LIB"), "path to the ONNX Runtime shared library")
	cmd.Flags().IntVar(&opts.roadChannel, "road-channel", segment.AutoChannel, "output channel holding road likelihood (-1 picks 1 for multi-channel output, else 0)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level")
	return cmd
}

func run(opts options, inputPath, outputPath, modelPath string) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	if opts.roadChannel < segment.AutoChannel {
		return fmt.Errorf("invalid --road-channel %d", opts.roadChannel)
	}
	logger := logrus.New()
	logger.SetLevel(level)

	logger.WithField("model", modelPath).Info("loading model")
	inferer, post, closeModel, err := loadModel(modelPath, opts.metadataPath, opts.libraryPath)
	if err != nil {
		return fmt.Errorf("loading model failed: %w", err)
	}
	defer closeModel()

	if opts.roadChannel != segment.AutoChannel {
		post.RoadChannel = opts.roadChannel
	}

	p := &pipeline.Pipeline{Model: inferer, Postprocessor: post, Log: logger}
	result, err := p.Run(inputPath, outputPath)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"output":      outputPath,
		"road_pixels": result.RoadPixels,
		"coverage":    fmt.Sprintf("%.2f%%", result.Coverage*100),
	}).Info("analysis results saved")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
