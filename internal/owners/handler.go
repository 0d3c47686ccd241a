package owners

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvcreator-backend/internal/documents"
	"cvcreator-backend/internal/shared/server/middleware"
	"cvcreator-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/owner", middleware.RequireOwner())
	g.PUT("", h.register)
	g.GET("", h.me)
	g.DELETE("", h.purge)
}

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	owner, err := h.Svc.Register(c.Request.Context(), Owner{
		ID:       middleware.OwnerIDFromContext(c),
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, owner)
}

func (h *Handler) me(c *gin.Context) {
	owner, err := h.Svc.GetByID(c.Request.Context(), middleware.OwnerIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, owner)
}

func (h *Handler) purge(c *gin.Context) {
	result, err := h.Svc.Purge(c.Request.Context(), middleware.OwnerIDFromContext(c))
	if err != nil {
		if result.Documents.Retained > 0 {
			respond.JSON(c, http.StatusMultiStatus, result)
			return
		}
		writeError(c, err)
		return
	}
	respond.OK(c, result)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		respond.ClientClosed(c)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, documents.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "owner not found", nil)
	case errors.Is(err, ErrHasDocuments):
		respond.Error(c, http.StatusConflict, "conflict", "owner still has documents", nil)
	case errors.Is(err, documents.ErrStoreUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "store_unavailable", "storage is temporarily unavailable", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to process owner", nil)
	}
}
