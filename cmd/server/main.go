package main

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/road-overlay/internal/config"
	"github.com/Brownie44l1/road-overlay/internal/handlers"
	"github.com/Brownie44l1/road-overlay/internal/model"
	"github.com/Brownie44l1/road-overlay/internal/pipeline"
	"github.com/Brownie44l1/road-overlay/internal/segment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	log.Printf("Loading model from: %s", cfg.ModelPath)

	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, cfg.LibraryPath)
	if err != nil {
		log.Fatalf("Failed to initialize model server: %v", err)
	}
	defer modelServer.Close()

	p := pipeline.New(modelServer)
	p.Postprocessor = segment.Postprocessor{RoadChannel: modelServer.Metadata.Channel()}
	if cfg.RoadChannel != segment.AutoChannel {
		p.Postprocessor.RoadChannel = cfg.RoadChannel
	}

	handler := handlers.NewHandler(p, handlers.ModelStatus{
		Available: true,
		ModelPath: modelServer.ModelPath,
		Metadata:  &modelServer.Metadata,
	})

	http.HandleFunc("/health", handlers.CORS(handler.Health))
	http.HandleFunc("/model-status", handlers.CORS(handler.ModelStatus))
	http.HandleFunc("/segment", handlers.CORS(handler.Segment))

	log.WithFields(log.Fields{
		"port":         cfg.Port,
		"output_shape": modelServer.Metadata.OutputShape,
		"road_channel": p.Postprocessor.RoadChannel,
	}).Info("server starting")
	log.Println("Endpoints:")
	log.Println("  GET  /health       - Health check")
	log.Println("  GET  /model-status - Loaded model and metadata")
	log.Println("  POST /segment      - Highlight road in an uploaded image")
	log.Printf("Upload test: curl -X POST -F \"image=@road.jpg\" http://localhost:%s/segment?format=png -o out.png", cfg.Port)

	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
