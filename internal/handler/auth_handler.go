package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/guard"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/pkg/httputil"
)

// DeviceIDHeader carries the client's device id at sign-in.
const DeviceIDHeader = "X-Device-ID"

// AuthHandler serves sign-up, sign-in and the signed-in profile.
type AuthHandler struct {
	auth    *service.AuthService
	players *service.PlayerService
}

// NewAuthHandler creates an AuthHandler. players may be nil.
func NewAuthHandler(auth *service.AuthService, players *service.PlayerService) *AuthHandler {
	return &AuthHandler{auth: auth, players: players}
}

// SignUpRequest is the body of POST /auth/signup.
type SignUpRequest struct {
	Email       string      `json:"email" binding:"required"`
	Password    string      `json:"password" binding:"required"`
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role" binding:"required"`
}

// SignInRequest is the body of POST /auth/signin.
type SignInRequest struct {
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     domain.Role `json:"role" binding:"required"`
}

// FederatedRequest is the body of POST /auth/federated.
type FederatedRequest struct {
	Identity domain.FederatedIdentity `json:"identity"`
	Role     domain.Role              `json:"role" binding:"required"`
}

// SignUp creates an account and signs it in.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	res, err := h.auth.SignUp(c.Request.Context(), service.SignUpRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		DeviceID:    c.GetHeader(DeviceIDHeader),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.CreatedResponse(c, res)
}

// SignIn signs in with email and password on the role's login page.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	res, err := h.auth.SignIn(c.Request.Context(), service.SignInRequest{
		Email:        req.Email,
		Password:     req.Password,
		ExpectedRole: req.Role,
		DeviceID:     c.GetHeader(DeviceIDHeader),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, res)
}

// SignInFederated signs in with an identity asserted by a provider.
func (h *AuthHandler) SignInFederated(c *gin.Context) {
	var req FederatedRequest
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	res, err := h.auth.SignInFederated(c.Request.Context(), req.Identity, req.Role, c.GetHeader(DeviceIDHeader))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, res)
}

// SignOut closes the current session.
func (h *AuthHandler) SignOut(c *gin.Context) {
	sess := middleware.Session(c)
	if err := h.auth.SignOut(c.Request.Context(), sess); err != nil {
		handleError(c, err)
		return
	}
	if h.players != nil {
		h.players.Forget(sess)
	}
	httputil.SuccessResponse(c, gin.H{"redirect": guard.Landing})
}

// Me returns the signed-in profile.
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.auth.Me(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, profile)
}

// UpdateMe changes the display name.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	profile, err := h.auth.UpdateDisplayName(c.Request.Context(), middleware.Session(c), req.DisplayName)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, profile)
}

// ChangePassword replaces the password and ends every session.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		Current string `json:"current_password" binding:"required"`
		Next    string `json:"new_password" binding:"required"`
	}
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), middleware.Session(c), req.Current, req.Next); err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, gin.H{"redirect": guard.Landing})
}

// Navigate evaluates a page path for the optional session.
func (h *AuthHandler) Navigate(c *gin.Context) {
	httputil.SuccessResponse(c, guard.Evaluate(middleware.Session(c), c.Query("path")))
}
