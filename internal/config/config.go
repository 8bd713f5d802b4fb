// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/road-overlay/internal/segment"
)

type Config struct {
	Port         string
	ModelPath    string
	MetadataPath string
	LibraryPath  string
	// RoadChannel overrides the model metadata when not AutoChannel.
	RoadChannel int
	LogLevel    logrus.Level
}

func Default() Config {
	return Config{
		Port:        "8080",
		ModelPath:   "models/road_segmentation.onnx",
		RoadChannel: segment.AutoChannel,
		LogLevel:    logrus.InfoLevel,
	}
}

// FromEnv reads PORT, MODEL_PATH, METADATA_PATH, ONNXRUNTIME_LIB,
// ROAD_CHANNEL and LOG_LEVEL through lookup, which is os.LookupEnv in
// production.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup("PORT"); ok && v != "" {
		cfg.Port = v
	}
	if v, ok := lookup("MODEL_PATH"); ok && v != "" {
		cfg.ModelPath = v
	}
	if v, ok := lookup("METADATA_PATH"); ok {
		cfg.MetadataPath = v
	}
	if v, ok := lookup("ONNXRUNTIME_LIB"); ok {
		cfg.LibraryPath = v
	}
	if v, ok := lookup("ROAD_CHANNEL"); ok && v != "" {
		channel, err := strconv.Atoi(v)
		if err != nil || channel < segment.AutoChannel {
			return Config{}, fmt.Errorf("invalid ROAD_CHANNEL %q", v)
		}
		cfg.RoadChannel = channel
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

func Load() (Config, error) {
	return FromEnv(os.LookupEnv)
}
