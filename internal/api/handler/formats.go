package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pimentellima/smulti/internal/api/response"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/pkg/models"
)

// NewStartDownloadHandler returns an http.HandlerFunc for
// POST /api/v1/formats/{formatID}/download. Pending formats are enqueued
// as-is; failed ones are reset back to pending first. A format already
// downloading or finished is left alone.
func NewStartDownloadHandler(s store.Store, downloadQueue Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "formatID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "formatID must be a valid UUID", nil)
			return
		}

		format, err := s.GetFormat(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Format not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load format", nil)
			return
		}

		switch format.Status {
		case models.FormatPending:
		case models.FormatErrorDownloading:
			if err := s.ResetFormat(r.Context(), id); err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to reset format", nil)
				return
			}
		case models.FormatFinishedDownloading:
			response.JSON(w, format)
			return
		default:
			response.Error(w, http.StatusConflict, "INVALID_STATE",
				"Format download already in progress", map[string]string{"status": string(format.Status)})
			return
		}

		if err := downloadQueue.Send(r.Context(), id.String()); err != nil {
			slog.Error("enqueue format download", "error", err, "format_id", id)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to enqueue download", nil)
			return
		}

		response.Accepted(w, map[string]string{
			"format_id": id.String(),
			"status":    string(models.FormatPending),
		})
	}
}
