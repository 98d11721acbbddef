package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sublatesublate-design/legal-database/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultMaxDocumentSize bounds an uploaded law text
const DefaultMaxDocumentSize = 10 * 1024 * 1024 // 10MB

// IngestHandler handles HTTP requests that write the corpus
type IngestHandler struct {
	ingest           *service.IngestService
	maxFileSize      int64
	allowedMimeTypes map[string]bool
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{
		ingest:      ingest,
		maxFileSize: DefaultMaxDocumentSize,
		allowedMimeTypes: map[string]bool{
			"text/plain":               true,
			"text/markdown":            true,
			"application/octet-stream": true, // browsers without a type for .txt
		},
	}
}

// IngestDocument handles POST /api/ingest
func (h *IngestHandler) IngestDocument(c *gin.Context) {
	var doc service.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		respondInvalid(c, err.Error())
		return
	}

	report, err := h.ingest.Ingest(c.Request.Context(), doc)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ingestStatus(report), report)
}

// IngestBatchRequest represents the request body for a batch ingest
type IngestBatchRequest struct {
	Documents []service.Document `json:"documents" binding:"required"`
}

// IngestBatch handles POST /api/ingest/batch. Failed documents are reported
// in place and do not fail the request.
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var req IngestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err.Error())
		return
	}

	reports := h.ingest.IngestBatch(c.Request.Context(), req.Documents)
	respondOK(c, http.StatusOK, gin.H{
		"reports": reports,
	})
}

// UploadDocument handles POST /api/ingest/upload. The form carries the file
// plus optional provenance fields.
func (h *IngestHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondInvalid(c, "file is required")
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error": gin.H{
				"code":    CodeInvalidRequest,
				"message": fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize),
			},
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType != "" {
		if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
			mimeType = mt
		}
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if mimeType == "" || (mimeType == "application/octet-stream" && ext != ".txt") {
		mimeType = mime.TypeByExtension(ext)
		if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
			mimeType = mt
		}
	}
	if !h.allowedMimeTypes[mimeType] {
		respondInvalid(c, "File type not allowed. Allowed types: TXT")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(c, err)
		return
	}
	if !utf8.Valid(data) {
		respondInvalid(c, "document must be UTF-8 text")
		return
	}

	prov := service.Provenance{
		Title:            c.PostForm("title"),
		Category:         c.PostForm("category"),
		Status:           c.PostForm("status"),
		PublishDate:      c.PostForm("publish_date"),
		EffectiveDate:    c.PostForm("effective_date"),
		ExpiryDate:       c.PostForm("expiry_date"),
		IssuingAuthority: c.PostForm("issuing_authority"),
		DocumentNumber:   c.PostForm("document_number"),
		SourceRef:        c.DefaultPostForm("source_ref", fileHeader.Filename),
	}
	doc := service.Document{
		Text:       strings.TrimPrefix(string(data), "\ufeff"),
		Provenance: prov,
	}

	report, err := h.ingest.Ingest(c.Request.Context(), doc)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ingestStatus(report), report)
}

// GetSource handles GET /api/laws/:law/source
func (h *IngestHandler) GetSource(c *gin.Context) {
	id, ok := lawID(c)
	if !ok {
		return
	}

	law, reader, err := h.ingest.Source(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer reader.Close()

	filename := law.ID.String() + ".txt"
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.DataFromReader(http.StatusOK, -1, "text/plain; charset=utf-8", reader, nil)
}

// PurgeLaw handles DELETE /api/laws/:law
func (h *IngestHandler) PurgeLaw(c *gin.Context) {
	id, ok := lawID(c)
	if !ok {
		return
	}

	if err := h.ingest.PurgeLaw(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"id":     id,
		"purged": true,
	})
}

func lawID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("law"))
	if err != nil {
		respondInvalid(c, "Invalid law ID format")
		return uuid.Nil, false
	}
	return id, true
}

func ingestStatus(report *service.IngestReport) int {
	if report.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}
