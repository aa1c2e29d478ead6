package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/middleware"
	"focusflow/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authenticateFunc func(ctx context.Context, email, password string) (*service.AuthResult, *apperrors.APIError)

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	h.authenticate(c, http.StatusCreated, h.authService.Register)
}

func (h *AuthHandler) Login(c *gin.Context) {
	h.authenticate(c, http.StatusOK, h.authService.Login)
}

// Me returns the account behind the bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	user, apiErr := h.authService.CurrentUser(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) authenticate(c *gin.Context, status int, fn authenticateFunc) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	result, apiErr := fn(c.Request.Context(), req.Email, req.Password)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(status, result)
}
