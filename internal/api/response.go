package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/foxseedlab/tasktimer/internal/auth"
	"github.com/foxseedlab/tasktimer/internal/tracking"
	"github.com/gin-gonic/gin"
)

type Response map[string]any

const (
	CodeOK           = 0
	CodeInvalidParam = 40001
	CodeAuth         = 40101
	CodeNotFound     = 40401
	CodeServerErr    = 50001
	CodeUnavailable  = 50301
)

func Success(c *gin.Context, data Response) {
	c.JSON(http.StatusOK, gin.H{
		"code": CodeOK,
		"data": data,
	})
}

func Error(c *gin.Context, httpStatus int, code int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
	})
}

// writeError maps engine errors onto the response envelope.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracking.ErrInvalidArgument):
		Error(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		Error(c, http.StatusUnauthorized, CodeAuth, "unauthenticated")
	case errors.Is(err, tracking.ErrNotFound):
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, tracking.ErrTransient):
		Error(c, http.StatusServiceUnavailable, CodeUnavailable, "temporarily unavailable, retry later")
	default:
		slog.Error("unhandled request error", "error", err, "path", c.FullPath())
		Error(c, http.StatusInternalServerError, CodeServerErr, "internal error")
	}
}
