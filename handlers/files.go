package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mailbridge/mailbridge/internal/files"
	"github.com/mailbridge/mailbridge/internal/files/repository"
	"github.com/mailbridge/mailbridge/internal/storage"
	"github.com/mailbridge/mailbridge/pkg/logger"
	"github.com/mailbridge/mailbridge/pkg/middleware"
)

// FilesHandler stores uploaded files in a BlobStore and their metadata in a
// repository. All routes require an authenticated session.
type FilesHandler struct {
	repo  repository.Repository
	store storage.BlobStore
}

func NewFilesHandler(repo repository.Repository, store storage.BlobStore) *FilesHandler {
	return &FilesHandler{repo: repo, store: store}
}

func (h *FilesHandler) Register(r *gin.Engine, requireAuth gin.HandlerFunc) {
	r.POST("/files", requireAuth, h.Upload)
	r.GET("/files", requireAuth, h.List)
	r.GET("/files/:id", requireAuth, h.Download)
	r.DELETE("/files/:id", requireAuth, h.Delete)
}

// Upload accepts a multipart form with a "file" part.
func (h *FilesHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file part"})
		return
	}
	if fh.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty filename"})
		return
	}

	id := uuid.NewString()
	key := id + filepath.Ext(fh.Filename)

	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if err := h.store.Put(c.Request.Context(), key, src, fh.Size, contentType); err != nil {
		logger.Errorf("blob store put failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	uploader := "anonymous"
	if sess := middleware.SessionFrom(c); sess != nil {
		uploader = sess.UserPrincipal()
	}
	rec := &files.Record{
		ID:           id,
		OriginalName: fh.Filename,
		MimeType:     contentType,
		Size:         fh.Size,
		StorageKey:   key,
		Uploader:     uploader,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.repo.Insert(c.Request.Context(), rec); err != nil {
		// keep storage and metadata consistent
		_ = h.store.Delete(c.Request.Context(), key)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store metadata"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "name": rec.OriginalName, "size": rec.Size})
}

// List returns all file records, newest first.
func (h *FilesHandler) List(c *gin.Context) {
	recs, err := h.repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": recs})
}

// Download streams the stored bytes as an attachment under the original name.
func (h *FilesHandler) Download(c *gin.Context) {
	rec, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	rc, err := h.store.Get(c.Request.Context(), rec.StorageKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	defer rc.Close()

	contentType := rec.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", rec.OriginalName),
	}
	c.DataFromReader(http.StatusOK, rec.Size, contentType, rc, extraHeaders)
}

// Delete removes the blob (ignoring an already-missing one) and the record.
func (h *FilesHandler) Delete(c *gin.Context) {
	rec, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := h.store.Delete(c.Request.Context(), rec.StorageKey); err != nil {
		logger.Warnf("blob delete failed for %s: %v", rec.StorageKey, err)
	}
	if err := h.repo.Delete(c.Request.Context(), rec.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
