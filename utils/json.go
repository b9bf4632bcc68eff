package utils

import (
	"PicStore/internal/errs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// Fail writes an error JSON response with the status errs.HTTPStatus picks.
// Server side failures are logged and not echoed to the client.
func Fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{
		"code": -1,
		"msg":  msg,
	})
}
