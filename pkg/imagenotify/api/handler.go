package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

// Version is reported by GET /version
const Version = "V2"

// UploadImageRequest is the request body for uploading an image
type UploadImageRequest struct {
	ImageName   string `json:"imageName"`
	Base64Image string `json:"base64Image"`
}

// SubscriptionRequest is the request body for subscribe and unsubscribe
type SubscriptionRequest struct {
	Email string `json:"email"`
}

// MetaInfoResponse is the response body for image metadata
type MetaInfoResponse struct {
	ImageName     string    `json:"imageName"`
	ContentLength int64     `json:"contentLength"`
	LastModified  time.Time `json:"lastModified"`
	FileExtension string    `json:"fileExtension"`
}

// ImageHandler handles HTTP requests for images and subscriptions
type ImageHandler struct {
	service imagenotify.Service
	logger  *slog.Logger
}

// NewImageHandler creates a new image handler
func NewImageHandler(service imagenotify.Service, logger *slog.Logger) *ImageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageHandler{
		service: service,
		logger:  logger,
	}
}

// Routes returns the full router, including health, version and metrics
func (h *ImageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())

	r.Get("/version", h.GetVersion)
	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/images", func(r chi.Router) {
		r.Post("/", h.UploadImage)
		r.Get("/", h.ListImages)
		r.Get("/metainfo", h.GetMetaInfo)
		r.Get("/{imageName}", h.DownloadImage)
		r.Delete("/{imageName}", h.DeleteImage)
	})

	r.Post("/subscribe", h.Subscribe)
	r.Post("/unsubscribe", h.Unsubscribe)

	return r
}

// GetVersion reports the API version
func (h *ImageHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Version)
}

// UploadImage stores a base64 encoded image and enqueues its metadata
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	var req UploadImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "Invalid request body", err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Base64Image)
	if err != nil {
		h.badRequest(w, r, "Invalid base64 image", err)
		return
	}

	if _, err := h.service.HandleUpload(r.Context(), req.ImageName, data); err != nil {
		h.logger.Error("Failed to upload image", "image_name", req.ImageName, "err", err)
		h.problem(w, r, err)
		return
	}

	render.JSON(w, r, "Image uploaded successfully")
}

// ListImages returns every stored image name
func (h *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.ListImages(r.Context())
	if err != nil {
		h.logger.Error("Failed to list images", "err", err)
		h.problem(w, r, err)
		return
	}
	render.JSON(w, r, names)
}

// DownloadImage returns the stored image as a base64 JSON string
func (h *ImageHandler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "imageName")

	data, err := h.service.Download(r.Context(), name)
	if err != nil {
		h.logger.Error("Failed to download image", "image_name", name, "err", err)
		h.problem(w, r, err)
		return
	}

	render.JSON(w, r, base64.StdEncoding.EncodeToString(data))
}

// DeleteImage removes the stored image
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "imageName")

	if err := h.service.Delete(r.Context(), name); err != nil {
		h.logger.Error("Failed to delete image", "image_name", name, "err", err)
		h.problem(w, r, err)
		return
	}

	render.JSON(w, r, "Image deleted successfully")
}

// GetMetaInfo describes the image named by the imageName (or name) query
// parameter, or one random image when neither is given.
func (h *ImageHandler) GetMetaInfo(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("imageName")
	if name == "" {
		name = r.URL.Query().Get("name")
	}

	var (
		record *imagenotify.ImageMetaInfo
		err    error
	)
	if name == "" {
		record, err = h.service.MetaOfRandom(r.Context())
	} else {
		record, err = h.service.MetaOf(r.Context(), name)
	}
	if err != nil {
		h.logger.Error("Failed to read image metainfo", "image_name", name, "err", err)
		h.problem(w, r, err)
		return
	}

	render.JSON(w, r, MetaInfoResponse{
		ImageName:     record.ImageName,
		ContentLength: record.ContentLength,
		LastModified:  record.LastModified,
		FileExtension: record.FileExtension,
	})
}

// Subscribe registers an email address for upload notifications
func (h *ImageHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "Invalid request body", err)
		return
	}

	if err := h.service.Subscribe(r.Context(), req.Email); err != nil {
		h.logger.Error("Failed to subscribe", "email", req.Email, "err", err)
		h.problem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Unsubscribe removes the confirmed subscription of an email address
func (h *ImageHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "Invalid request body", err)
		return
	}

	if err := h.service.Unsubscribe(r.Context(), req.Email); err != nil {
		h.logger.Error("Failed to unsubscribe", "email", req.Email, "err", err)
		h.problem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
