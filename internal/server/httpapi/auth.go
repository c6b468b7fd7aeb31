package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/gin-gonic/gin"
)

func (s *HTTPServer) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	ctx := c.Request.Context()
	s.logger.Info(ctx, "Registration request", "username", req.Username)

	u, err := s.users.Register(ctx, req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.logger.Info(ctx, "Registered", "username", req.Username, "user_id", u.ID)
	c.JSON(http.StatusCreated, userResponse{ID: u.ID, Username: u.UserName})
}

func (s *HTTPServer) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	tokens, err := s.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			abortWithError(c, http.StatusUnauthorized, "Bad credentials")
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(tokens))
}

func (s *HTTPServer) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "refreshToken is required")
		return
	}

	tokens, err := s.users.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(tokens))
}
