package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/reunion/internal/media"
	"github.com/dukerupert/reunion/internal/model"
	"github.com/dukerupert/reunion/internal/sanitize"
	"github.com/dukerupert/reunion/internal/store"
	"github.com/dukerupert/reunion/internal/websocket"
)

const galleryMaxBytes = media.GalleryMaxFiles*media.GalleryMaxBytes + 1<<20

type GalleryHandler struct {
	photos store.GalleryPhotos
	media  *media.Pipeline
	hub    *websocket.Hub
	errs   *Errors
	logger *slog.Logger
}

func NewGalleryHandler(photos store.GalleryPhotos, pipeline *media.Pipeline, hub *websocket.Hub, errs *Errors, logger *slog.Logger) *GalleryHandler {
	return &GalleryHandler{photos: photos, media: pipeline, hub: hub, errs: errs, logger: logger}
}

func (h *GalleryHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// List returns photos newest first. Photos sharing a timestamp come out in
// reverse insertion order.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	photos, err := h.photos.List()
	if err != nil {
		h.errs.Internal(w, r, "Failed to retrieve photos", err)
		return
	}
	slices.Reverse(photos)
	slices.SortStableFunc(photos, func(a, b model.GalleryPhoto) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	writeJSON(w, http.StatusOK, photos)
}

func (h *GalleryHandler) Upload(w http.ResponseWriter, r *http.Request) {
	p, err := readPayload(w, r, galleryMaxBytes)
	if err != nil {
		h.errs.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	files := p.files["photos"]
	switch {
	case len(files) == 0:
		h.errs.Fail(w, http.StatusBadRequest, "No photos uploaded")
		return
	case len(files) > media.GalleryMaxFiles:
		h.errs.Fail(w, http.StatusBadRequest, fmt.Sprintf("You can upload at most %d photos at a time", media.GalleryMaxFiles))
		return
	}
	for _, fh := range files {
		if err := h.media.Gallery.Validate(fh); err != nil {
			h.errs.Fail(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", fh.Filename, err))
			return
		}
	}

	captions := parseCaptions(p.values["captions"])
	uploadedBy := sanitize.Value(p.values["uploadedBy"], maxUploaderLen)
	if uploadedBy == "" {
		uploadedBy = model.DefaultUploader
	}

	now := time.Now().UTC()
	photos := make([]model.GalleryPhoto, 0, len(files))
	for i, fh := range files {
		url, err := h.media.SaveGallery(fh)
		if err != nil {
			h.discard(photos)
			if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrTooLarge) {
				h.errs.Fail(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", fh.Filename, err))
				return
			}
			h.errs.Internal(w, r, "Upload failed", err)
			return
		}

		id, err := uuid.NewV7()
		if err != nil {
			h.discard(append(photos, model.GalleryPhoto{URL: url}))
			h.errs.Internal(w, r, "Upload failed", err)
			return
		}
		var caption string
		if i < len(captions) {
			caption = sanitize.Value(captions[i], maxCaptionLen)
		}
		photos = append(photos, model.GalleryPhoto{
			ID:         id.String(),
			URL:        url,
			Caption:    caption,
			UploadedBy: uploadedBy,
			CreatedAt:  now,
		})
	}

	if err := h.photos.CreateMany(photos); err != nil {
		h.discard(photos)
		h.errs.Internal(w, r, "Upload failed", err)
		return
	}
	h.logger.Info("gallery photos uploaded", "count", len(photos), "uploaded_by", uploadedBy)

	for _, photo := range photos {
		h.broadcast(websocket.NewMessage(websocket.TopicPhoto, "created", photo.ID, photo))
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"uploaded": len(photos),
		"photos":   photos,
	})
}

func (h *GalleryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photos.Delete(r.PathValue("id"))
	if err != nil {
		h.errs.Internal(w, r, "Failed to delete photo", err)
		return
	}
	if photo == nil {
		h.errs.Fail(w, http.StatusNotFound, "Photo not found")
		return
	}
	if err := h.media.Remove(photo.URL); err != nil {
		h.logger.Warn("remove gallery file", "url", photo.URL, "error", err)
	}

	h.broadcast(websocket.NewMessage(websocket.TopicPhoto, "deleted", photo.ID, nil))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Photo deleted",
	})
}

// discard removes files already written for a failed batch.
func (h *GalleryHandler) discard(photos []model.GalleryPhoto) {
	for _, p := range photos {
		if err := h.media.Remove(p.URL); err != nil {
			h.logger.Warn("remove gallery file", "url", p.URL, "error", err)
		}
	}
}

// parseCaptions accepts the captions field as a JSON array encoded in a form
// value, or as an already decoded array. Anything else yields no captions.
func parseCaptions(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case string:
		var captions []any
		if err := json.Unmarshal([]byte(x), &captions); err != nil {
			return nil
		}
		return captions
	default:
		return nil
	}
}
