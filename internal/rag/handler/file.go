package handler

import (
	stderrors "errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/bhasha/internal/rag/metrics"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/objectstore"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// FileHandler serves stored uploads.
type FileHandler struct {
	objects     objectstore.Store
	systemOwner string
}

// NewFileHandler creates a new FileHandler. Files of systemOwner are
// readable by every caller.
func NewFileHandler(objects objectstore.Store, systemOwner string) *FileHandler {
	return &FileHandler{objects: objects, systemOwner: systemOwner}
}

// Serve streams the object named by the *path parameter. Callers may only
// read objects under their own documents/{owner}/ prefix.
func (h *FileHandler) Serve(c *gin.Context) {
	p, err := objectstore.Clean(c.Param("path"))
	if err != nil {
		response.Fail(c, errors.ErrInvalidParam.WithMessage(err.Error()))
		return
	}
	if !h.readable(p, ownerID(c)) {
		response.Fail(c, errors.ErrNotFound.WithMessage("File not found"))
		return
	}

	rc, err := h.objects.Open(c.Request.Context(), p)
	if stderrors.Is(err, objectstore.ErrNotFound) {
		response.Fail(c, errors.ErrNotFound.WithMessage("File not found"))
		return
	}
	if err != nil {
		response.Fail(c, errors.ErrObjectStorage.WithCause(err))
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Content-Disposition": `inline; filename="` + path.Base(p) + `"`,
	})
}

func (h *FileHandler) readable(p, owner string) bool {
	parts := strings.SplitN(p, "/", 3)
	if len(parts) < 3 || parts[0] != "documents" {
		return false
	}
	return parts[1] == owner || (h.systemOwner != "" && parts[1] == h.systemOwner)
}

// Healthz is the liveness probe.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics writes RAG counters in Prometheus text format.
func Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(metrics.Export()))
}
