package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/road-overlay/internal/codec"
	"github.com/Brownie44l1/road-overlay/internal/model"
	"github.com/Brownie44l1/road-overlay/internal/pipeline"
	"github.com/Brownie44l1/road-overlay/internal/segment"
)

// MaxUploadSize caps multipart uploads to /segment.
const MaxUploadSize = 10 << 20

// ModelStatus is reported by /model-status.
type ModelStatus struct {
	Available bool            `json:"model_available"`
	ModelPath string          `json:"model_path"`
	Metadata  *model.Metadata `json:"metadata,omitempty"`
}

// SegmentResponse is the JSON body returned by /segment.
type SegmentResponse struct {
	ResultID       string  `json:"result_id"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	RoadPixels     int     `json:"road_pixels"`
	RoadCoverage   float64 `json:"road_coverage"`
	MeanLikelihood float64 `json:"mean_likelihood"`
	ImagePNG       []byte  `json:"image_png"`
}

type Handler struct {
	pipeline *pipeline.Pipeline
	status   ModelStatus
}

func NewHandler(p *pipeline.Pipeline, status ModelStatus) *Handler {
	return &Handler{
		pipeline: p,
		status:   status,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status)
}

// Segment accepts a multipart upload in the "image" field and returns the
// highlighted result, as JSON by default or as raw PNG with ?format=png.
func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Image exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	logger := log.WithFields(log.Fields{"file": header.Filename, "size": header.Size})
	logger.Info("received image")

	img, err := codec.Decode(file)
	if err != nil {
		logger.WithError(err).Warn("rejected upload")
		http.Error(w, "Invalid image format. Supported: JPEG, PNG, GIF, TIFF, BMP, WebP", http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.Process(img)
	if err != nil {
		logger.WithError(err).Error("segmentation failed")
		http.Error(w, "Segmentation failed", statusFor(err))
		return
	}

	var buf bytes.Buffer
	if err := codec.Encode(&buf, result.Image, imaging.PNG); err != nil {
		logger.WithError(err).Error("failed to encode result")
		http.Error(w, "Failed to encode result", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	logger.WithFields(log.Fields{"result_id": id, "coverage": result.Coverage}).Info("segmentation complete")

	if r.URL.Query().Get("format") == "png" {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-Result-Id", id)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	bounds := result.Image.Bounds()
	writeJSON(w, http.StatusOK, SegmentResponse{
		ResultID:       id,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		RoadPixels:     result.RoadPixels,
		RoadCoverage:   result.Coverage,
		MeanLikelihood: result.MeanLikelihood,
		ImagePNG:       buf.Bytes(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, segment.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, segment.ErrModelLoad), errors.Is(err, segment.ErrModelInvocation), errors.Is(err, segment.ErrInvalidModelOutput):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CORS allows browser front ends on other origins to call next.
func CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
