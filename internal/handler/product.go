package handler

import (
	"PicStore/internal/dto"
	"PicStore/internal/errs"
	"PicStore/utils"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateProduct creates a product with an optional picture.
func (h *Handler) CreateProduct(c *gin.Context) {
	h.limitBody(c)
	var req dto.CreateProductRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.Fail(c, errs.ErrPayloadTooLarge)
			return
		}
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	file, err := formFile(c, "picture")
	if err != nil {
		if errors.Is(err, errs.ErrPayloadTooLarge) {
			utils.Fail(c, err)
			return
		}
		badRequest(c, "invalid upload: "+err.Error())
		return
	}
	var picture io.Reader
	if file != nil {
		defer file.Close()
		picture = file
	}

	product, err := h.products.CreateProduct(c.Request.Context(), req.Name, picture)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, product)
}

// DeleteProduct deletes a product and releases its picture.
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.products.DeleteProduct(c.Request.Context(), id); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, nil)
}
