package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/timmy/mdconv/internal/api/middleware"
	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/service"
)

// DeviceHeader may carry the caller namespace instead of the deviceId field.
const DeviceHeader = "X-Device-ID"

// ConvertHandler handles conversion endpoints.
type ConvertHandler struct {
	service *service.ConversionService
}

// NewConvertHandler creates a new convert handler.
// Parameters:
//   - svc: conversion service instance.
// Returns:
//   - *ConvertHandler: initialized handler.
func NewConvertHandler(svc *service.ConversionService) *ConvertHandler {
	return &ConvertHandler{service: svc}
}

// HandlesRequest names a set of handles within one namespace.
type HandlesRequest struct {
	TaskIDs  []string `json:"taskIds"`
	DeviceID string   `json:"deviceId"`
}

type statusResponse struct {
	*service.StatusView
	PreviewURL  string `json:"preview_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// Submit handles POST /api/convert.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ConvertHandler) Submit(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, domain.StorageError("open upload", err))
		return
	}
	defer f.Close()

	res, err := h.service.Submit(c.Request.Context(), namespace(c, c.PostForm("deviceId")), fh.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}

	message := "File uploaded, conversion started"
	if res.Cached {
		message = "File already converted"
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": message,
		"id":      res.ID,
		"cached":  res.Cached,
	})
}

// Status handles GET /api/status/:id.
func (h *ConvertHandler) Status(c *gin.Context) {
	ns := namespace(c, c.Query("deviceId"))
	id := c.Param("id")
	view, err := h.service.Status(c.Request.Context(), ns, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withLinks(view, ns, id))
}

// BatchStatus handles POST /api/status/batch.
func (h *ConvertHandler) BatchStatus(c *gin.Context) {
	var req HandlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	ns := namespace(c, req.DeviceID)

	views := h.service.BatchStatus(c.Request.Context(), ns, req.TaskIDs)
	out := make(map[string]statusResponse, len(views))
	for id, v := range views {
		out[id] = withLinks(v, ns, id)
	}
	c.JSON(http.StatusOK, out)
}

// Preview handles GET /api/convert/:id/preview.
func (h *ConvertHandler) Preview(c *gin.Context) {
	withHTML := c.Query("format") == "html"
	p, err := h.service.Preview(c.Request.Context(), namespace(c, c.Query("deviceId")), c.Param("id"), withHTML)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Download handles GET /api/convert/:id/download.
func (h *ConvertHandler) Download(c *gin.Context) {
	path, name, err := h.service.Download(c.Request.Context(), namespace(c, c.Query("deviceId")), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.FileAttachment(path, name)
}

// ClearHistory handles POST /api/convert/clear-history.
func (h *ConvertHandler) ClearHistory(c *gin.Context) {
	var req HandlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	res, err := h.service.ClearHistory(c.Request.Context(), namespace(c, req.DeviceID), req.TaskIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "History cleared",
		"removed": res.Removed,
		"failed":  res.Failed,
	})
}

// namespace prefers the explicit value and falls back to the device header.
func namespace(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return c.GetHeader(DeviceHeader)
}

func withLinks(v *service.StatusView, ns, id string) statusResponse {
	resp := statusResponse{StatusView: v}
	if v.State == domain.JobStateSuccess {
		q := url.Values{"deviceId": {ns}}.Encode()
		base := "/api/convert/" + url.PathEscape(id)
		resp.PreviewURL = base + "/preview?" + q
		resp.DownloadURL = base + "/download?" + q
	}
	return resp
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInput), errors.Is(err, domain.ErrNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
