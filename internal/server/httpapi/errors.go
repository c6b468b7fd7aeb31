package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/gin-gonic/gin"
)

const genericErrorMessage = "An error has occurred while processing your request."

type errorResponse struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorStatuses maps domain errors to response codes. Order matters only for
// errors that wrap more than one sentinel.
var errorStatuses = []struct {
	err    error
	status int
}{
	{common.ErrInvalidArgument, http.StatusBadRequest},
	{common.ErrFileAlreadyExists, http.StatusConflict},
	{common.ErrLoginAlreadyExists, http.StatusConflict},
	{common.ErrFileContentTypeMismatch, http.StatusUnsupportedMediaType},
	{common.ErrFileNotFound, http.StatusNotFound},
	{common.ErrFileVersionNotFound, http.StatusNotFound},
	{common.ErrContentAccess, http.StatusInternalServerError},
	{common.ErrorUnauthorized, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized},
	{common.ErrRefreshTokenExpired, http.StatusUnauthorized},
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Code:    status,
		Error:   http.StatusText(status),
		Message: msg,
	})
}

// fail answers with the status of the first matching domain error. Anything
// unknown is logged and answered with an opaque 500.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				s.logger.Error(ctx, "request failed", "path", c.Request.URL.Path, "error", err)
			}
			abortWithError(c, m.status, detail(err, m.err))
			return
		}
	}
	s.logger.Error(ctx, "request failed", "path", c.Request.URL.Path, "error", err)
	abortWithError(c, http.StatusInternalServerError, genericErrorMessage)
}

// detail strips everything up to and including the sentinel text, so
// "file not found: File with id '7' not found" becomes "File with id '7' not found".
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		if d := msg[i+len(prefix):]; d != "" {
			return d
		}
	}
	return msg
}
