package documents

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cvcreator-backend/internal/shared/server/middleware"
	"cvcreator-backend/internal/shared/server/respond"
	"cvcreator-backend/internal/shared/storage/object"
	"cvcreator-backend/internal/shared/util"
)

const maxFormSize = 1 << 20

// DocumentIDHeader names the stored document on generate responses.
const DocumentIDHeader = "X-Document-Id"

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
	// SignedDownloads redirects downloads to a signed store URL when the store supports it.
	SignedDownloads bool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, signedDownloads bool) *Handler {
	return &Handler{Svc: svc, SignedDownloads: signedDownloads}
}

// HeavyRoutes lists the routes that render or stream PDFs, for rate limiting.
func (h *Handler) HeavyRoutes() []string {
	var out []string
	for _, kind := range []Kind{KindResume, KindCoverLetter} {
		base := "/api/v1/" + kind.Folder()
		out = append(out,
			http.MethodPost+" "+base,
			http.MethodPut+" "+base+"/:id",
			http.MethodGet+" "+base+"/:id/download",
		)
	}
	return out
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	for _, kind := range []Kind{KindResume, KindCoverLetter} {
		g := rg.Group("/" + kind.Folder())
		g.POST("", h.generate(kind))
		owned := g.Group("", middleware.RequireOwner())
		owned.GET("", h.list(kind))
		owned.GET("/:id", h.get(kind))
		owned.GET("/:id/download", h.download(kind))
		owned.PUT("/:id", h.update(kind))
		owned.DELETE("/:id", h.delete(kind))
	}
	rg.DELETE("/owner/documents", middleware.RequireOwner(), h.purge)
}

func (h *Handler) generate(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		values, ok := bindFormValues(c)
		if !ok {
			return
		}
		out, err := h.Svc.Generate(c.Request.Context(), GenerateRequest{
			Kind:         kind,
			TemplateName: c.Query("templateName"),
			FormValues:   values,
			OwnerID:      middleware.OwnerIDFromContext(c),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		if out.Document != nil {
			c.Set(middleware.DocumentIDKey, out.Document.ID)
			c.Header(DocumentIDHeader, out.Document.ID)
		}
		writePDF(c, http.StatusOK, DownloadName(out.FileName), kind, out.PDF)
	}
}

func (h *Handler) list(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := ListOptions{Kind: kind, Search: c.Query("searchText")}
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				respond.Error(c, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer", nil)
				return
			}
			opts.Limit = limit
		}

		items, err := h.Svc.List(c.Request.Context(), middleware.OwnerIDFromContext(c), opts)
		if err != nil {
			writeError(c, err)
			return
		}
		respond.OK(c, toSummaries(items))
	}
}

func (h *Handler) get(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := h.ownedDocument(c, kind, true)
		if !ok {
			return
		}
		respond.OK(c, toResponse(doc, downloadURL(c, kind, doc.ID)))
	}
}

func (h *Handler) download(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := h.ownedDocument(c, kind, true)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		if h.SignedDownloads {
			url, err := h.Svc.SignedURL(ctx, doc.ID)
			switch {
			case err == nil:
				c.Redirect(http.StatusFound, url)
				return
			case !errors.Is(err, object.ErrSigningUnsupported):
				writeError(c, err)
				return
			}
		}

		file, err := h.Svc.Download(ctx, doc.ID, doc.OwnerID)
		if err != nil {
			writeError(c, err)
			return
		}
		etag := `"` + util.ContentHash(file.Bytes) + `"`
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
		writePDF(c, http.StatusOK, file.FileName, kind, file.Bytes)
	}
}

func (h *Handler) update(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		values, ok := bindFormValues(c)
		if !ok {
			return
		}
		doc, ok := h.ownedDocument(c, kind, false)
		if !ok {
			return
		}
		out, err := h.Svc.Update(c.Request.Context(), doc.ID, values, c.Query("templateName"))
		if err != nil {
			writeError(c, err)
			return
		}
		writePDF(c, http.StatusOK, DownloadName(out.FileName), kind, out.PDF)
	}
}

func (h *Handler) delete(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := h.ownedDocument(c, kind, false)
		if !ok {
			return
		}
		if err := h.Svc.Delete(c.Request.Context(), doc.ID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) purge(c *gin.Context) {
	result, err := h.Svc.DeleteOwner(c.Request.Context(), middleware.OwnerIDFromContext(c))
	if err != nil && result.Found == 0 {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if result.Retained > 0 {
		status = http.StatusMultiStatus
	}
	respond.JSON(c, status, result)
}

// ownedDocument loads the path document and checks it belongs to the requester and
// matches the route kind. Cached lookups serve reads; writes use the store directly.
func (h *Handler) ownedDocument(c *gin.Context, kind Kind, cached bool) (Document, bool) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set(middleware.DocumentIDKey, id)
	requester := middleware.OwnerIDFromContext(c)

	var (
		doc Document
		err error
	)
	if cached {
		doc, err = h.Svc.FindForRequester(c.Request.Context(), requester, id)
	} else {
		doc, err = h.Svc.Find(c.Request.Context(), id)
		if err == nil && doc.OwnerID != requester {
			err = ErrForbidden
		}
	}
	if err == nil && doc.Kind != kind {
		err = ErrNotFound
	}
	if err != nil {
		writeError(c, err)
		return Document{}, false
	}
	return doc, true
}

func bindFormValues(c *gin.Context) (map[string]any, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFormSize)
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil || values == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "request body must be a JSON object", nil)
		return nil, false
	}
	return values, true
}

func writePDF(c *gin.Context, status int, fileName string, kind Kind, data []byte) {
	c.Header("Content-Disposition", util.ContentDisposition(fileName, DownloadName(kind.DefaultFileName())))
	c.Data(status, pdfContentType, data)
}

func downloadURL(c *gin.Context, kind Kind, id string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + c.Request.Host + "/api/v1/" + kind.Folder() + "/" + id + "/download"
}

func writeError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.Is(err, context.Canceled):
		respond.ClientClosed(c)
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", "form values are invalid", verr.Problems)
	case errors.Is(err, ErrTemplateNotFound):
		respond.Error(c, http.StatusBadRequest, "template_not_found", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "document belongs to another owner", nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", "document was modified concurrently", nil)
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusServiceUnavailable, "store_unavailable", "storage is temporarily unavailable", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "unexpected error", nil)
	}
}
