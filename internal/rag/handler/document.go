package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// DocumentHandler handles document upload and management requests.
type DocumentHandler struct {
	docs          *biz.DocumentService
	maxFileSize   int64
	maxBatchFiles int
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(docs *biz.DocumentService, maxFileSize int64, maxBatchFiles int) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxFileSize: maxFileSize, maxBatchFiles: maxBatchFiles}
}

// DocumentListResponse is returned by List.
type DocumentListResponse struct {
	Documents []*biz.DocumentSummary `json:"documents"`
	Total     int                    `json:"total"`
}

// InitializeKBResponse is returned by InitializeKB.
type InitializeKBResponse struct {
	Message string                   `json:"message"`
	Result  *biz.KnowledgeBaseResult `json:"result"`
}

// Upload imports one multipart file from the "file" field.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, errors.ErrBadRequest.WithMessage("file is required"))
		return
	}

	req, err := readUpload(fh, h.maxFileSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	req.OwnerID = ownerID(c)

	result, err := h.docs.Upload(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}

// BatchUpload imports every file of the "files" field. Files that fail are
// reported per file and do not fail the request.
func (h *DocumentHandler) BatchUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Fail(c, errors.ErrBadRequest.WithCause(err))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		response.Fail(c, errors.ErrBadRequest.WithMessage("files are required"))
		return
	}
	if h.maxBatchFiles > 0 && len(files) > h.maxBatchFiles {
		response.Fail(c, errors.ErrTooManyFiles.WithMessagef("at most %d files per batch", h.maxBatchFiles))
		return
	}

	owner := ownerID(c)
	var (
		reqs     []*biz.UploadRequest
		rejected []biz.BatchError
	)
	for _, fh := range files {
		req, err := readUpload(fh, h.maxFileSize)
		if err != nil {
			rejected = append(rejected, biz.BatchError{FileName: fh.Filename, Error: errors.FromError(err).MessageEN})
			continue
		}
		req.OwnerID = owner
		reqs = append(reqs, req)
	}

	result, err := h.docs.BatchUpload(c.Request.Context(), reqs)
	if err != nil {
		response.Fail(c, err)
		return
	}

	result.Errors = append(result.Errors, rejected...)
	result.Failed = len(result.Errors)
	response.OK(c, result)
}

// List returns the documents of the caller.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docs.ListDocuments(c.Request.Context(), ownerID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &DocumentListResponse{Documents: docs, Total: len(docs)})
}

// Get returns document details with content and chunk previews.
func (h *DocumentHandler) Get(c *gin.Context) {
	details, err := h.docs.GetDocumentDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, details)
}

// Delete removes a document owned by the caller.
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.docs.DeleteDocument(c.Request.Context(), c.Param("id"), ownerID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &MessageResponse{Message: "Document deleted successfully"})
}

// Stats returns chunk and document counts with language distributions.
func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.docs.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, stats)
}

// InitializeKB ingests the built-in knowledge base.
func (h *DocumentHandler) InitializeKB(c *gin.Context) {
	result, err := h.docs.InitializeKnowledgeBase(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &InitializeKBResponse{Message: "Knowledge base initialization completed", Result: result})
}
