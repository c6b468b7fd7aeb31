package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// authRequired accepts either a Bearer access token or HTTP Basic
// credentials and stores the caller's user id in the gin context.
func (s *HTTPServer) authRequired(c *gin.Context) {
	header := c.GetHeader("Authorization")

	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		userID, err := s.users.UserIDFromAccessToken(strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				abortWithError(c, http.StatusUnauthorized, "Access token expired")
				return
			}
			abortWithError(c, http.StatusUnauthorized, "Invalid access token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
		return
	}

	username, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="filevault"`)
		abortWithError(c, http.StatusUnauthorized, "Full authentication is required to access this resource")
		return
	}

	user, err := s.users.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			c.Header("WWW-Authenticate", `Basic realm="filevault"`)
			abortWithError(c, http.StatusUnauthorized, "Bad credentials")
			return
		}
		s.fail(c, err)
		return
	}

	c.Set(userIDKey, user.ID)
	c.Next()
}

func (s *HTTPServer) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	s.logger.Info(c.Request.Context(), "request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"latency", time.Since(start),
		"user_id", c.GetString(userIDKey),
	)
}

func owner(c *gin.Context) string {
	return c.GetString(userIDKey)
}
