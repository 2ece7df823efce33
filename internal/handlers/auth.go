package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/dto"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/middleware"
	"github.com/yukikurage/priority-matrix/internal/services"
)

// IdentityTokenHeader carries the shared secret of the identity proxy
const IdentityTokenHeader = "X-Identity-Token"

// AuthHandler coordinates authentication-related HTTP handlers.
type AuthHandler struct {
	authService   *services.AuthService
	identityToken string
}

// NewAuthHandler creates a new AuthHandler. An empty identityToken disables
// session creation.
func NewAuthHandler(authService *services.AuthService, identityToken string) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		identityToken: identityToken,
	}
}

// CreateSession records a profile the identity proxy has verified and binds
// it to the session.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	if h.identityToken == "" {
		apierrors.ServiceUnavailable(c, "Sign-in is not configured")
		return
	}
	token := c.GetHeader(IdentityTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.identityToken)) != 1 {
		apierrors.Unauthorized(c, "Invalid identity token")
		return
	}

	type SessionRequest struct {
		ID       string `json:"id" binding:"required"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Avatar   string `json:"avatar"`
		Provider string `json:"provider"`
	}

	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	user, err := h.authService.Login(c.Request.Context(), services.LoginInput{
		ID:       req.ID,
		Email:    req.Email,
		Name:     req.Name,
		Avatar:   req.Avatar,
		Provider: req.Provider,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(constants.ContextKeyUserID, user.ID)
	if err := session.Save(); err != nil {
		apierrors.InternalError(c, "Failed to save session")
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// Logout removes the authentication session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		apierrors.InternalError(c, "Failed to logout")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

// GetCurrentUser returns the authenticated user.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// Config tells the client which sign-in methods are available.
func (h *AuthHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"google_enabled": h.identityToken != "",
	})
}

func respondAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrIdentityRequired):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		apierrors.NotFound(c, err.Error())
	default:
		apierrors.InternalError(c, "Internal server error")
	}
}
