package handler

import (
	"PicStore/internal/dto"
	"PicStore/internal/errs"
	"PicStore/internal/service"
	"PicStore/utils"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is allowed on top of the picture size for boundaries and
// the other form fields.
const multipartOverhead = 64 << 10

// SweepPublisher queues a sweep for the worker.
type SweepPublisher interface {
	PublishSweep(ctx context.Context, msg dto.SweepMessage) error
}

type Handler struct {
	pictures       *service.PictureService
	products       *service.ProductService
	publisher      SweepPublisher
	maxUploadBytes int64
}

// New builds the HTTP handlers. publisher may be nil, async sweeps are then
// refused.
func New(pictures *service.PictureService, products *service.ProductService, publisher SweepPublisher, maxUploadBytes int64) *Handler {
	return &Handler{pictures: pictures, products: products, publisher: publisher, maxUploadBytes: maxUploadBytes}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": msg})
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// limitBody caps the request before multipart parsing touches it.
func (h *Handler) limitBody(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}
}

// formFile returns the named upload, nil when the field is absent.
func formFile(c *gin.Context, field string) (multipart.File, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errs.ErrPayloadTooLarge
		}
		return nil, err
	}
	return header.Open()
}

// UploadPicture stores a picture and returns its record.
func (h *Handler) UploadPicture(c *gin.Context) {
	h.limitBody(c)
	file, err := formFile(c, "picture")
	if err != nil {
		if errors.Is(err, errs.ErrPayloadTooLarge) {
			utils.Fail(c, err)
			return
		}
		badRequest(c, "invalid upload: "+err.Error())
		return
	}
	if file == nil {
		badRequest(c, "picture required")
		return
	}
	defer file.Close()

	res, err := h.pictures.UploadAndDeduplicate(c.Request.Context(), file)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, res)
}

// GetPicture returns a picture record.
func (h *Handler) GetPicture(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pic, err := h.pictures.GetPicture(c.Request.Context(), id)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, dto.PictureResponse{
		ID:          pic.ID,
		Hash:        pic.Hash,
		Path:        pic.Path,
		RefCount:    pic.RefCount,
		Status:      pic.Status,
		ProcessedAt: pic.ProcessedAt,
		CreatedAt:   pic.CreatedAt,
	})
}

// SweepPictures removes orphaned pictures now, or queues the sweep when
// async=true.
func (h *Handler) SweepPictures(c *gin.Context) {
	var req dto.SweepRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	if req.Async {
		if h.publisher == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": -1, "msg": "sweep queue not configured"})
			return
		}
		msg := dto.SweepMessage{RequestedAt: time.Now().Unix(), RequestedBy: c.GetString("subject")}
		if err := h.publisher.PublishSweep(c.Request.Context(), msg); err != nil {
			utils.Fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"code": 0, "msg": "ok", "data": dto.SweepResponse{Queued: true}})
		return
	}

	deleted, err := h.pictures.SweepOrphans(c.Request.Context())
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, dto.SweepResponse{Deleted: deleted})
}
