package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gotogrow/portal/internal/middleware"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/service"
	"gotogrow/portal/internal/session"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type userResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	HasCharacter bool   `json:"hasCharacter"`
	Character    string `json:"character,omitempty"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Role:         string(user.Role),
		HasCharacter: user.HasCharacter,
		Character:    user.Character,
	}
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrEmailTaken) || errors.Is(err, service.ErrUsernameTaken) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.sendAuthResponse(c, result)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, service.ErrTooManyAttempts) {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.sendAuthResponse(c, result)
}

func (h HandlerSet) Logout(c *gin.Context) {
	session.ClearSession(c, h.cfg.Session)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h HandlerSet) Me(c *gin.Context) {
	user := c.MustGet(middleware.ContextUserKey).(models.User)
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset_request_failed"})
		return
	}

	// Token delivery is mail in production. Outside production the token is
	// echoed so the flow can be exercised end to end.
	resp := gin.H{"status": "reset_requested"}
	if token != "" && h.cfg.Environment != "production" {
		resp["resetToken"] = token
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) VerifyResetToken(c *gin.Context) {
	_, err := h.authService.VerifyResetToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reset_token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset_verify_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "valid"})
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reset_token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset_failed"})
		return
	}

	h.sendAuthResponse(c, result)
}

func (h HandlerSet) sendAuthResponse(c *gin.Context, result service.AuthResult) {
	session.SetSession(c, h.cfg.Session,
		result.Token,
		int(h.cfg.Security.SessionTTL.Seconds()),
		session.NewDebugSnapshot(result.User),
	)
	c.JSON(http.StatusOK, authResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}
