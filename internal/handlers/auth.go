package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/middleware"
	"github.com/charlesng35/youthtracker/internal/services"
	"github.com/charlesng35/youthtracker/pkg/errors"
	"github.com/charlesng35/youthtracker/pkg/response"
)

// AuthHandler exposes admin login.
type AuthHandler struct {
	admins *services.AdminService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(admins *services.AdminService) *AuthHandler {
	return &AuthHandler{admins: admins}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,notblank,max=64"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.admins.Login(requestContext(c), services.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.AdminClaims(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	admin, err := h.admins.Get(requestContext(c), claims.AdminID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, http.StatusOK, admin)
}
