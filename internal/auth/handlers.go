package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/validation"
)

// Handler provides HTTP endpoints for authentication.
type Handler struct {
	service *Service
}

// NewHandler creates a new auth handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public auth routes. The server wires these behind
// the strict rate limiter.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/verify", h.Verify)
	r.POST("/auth/resend", h.Resend)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	BirthDate string `json:"birthDate"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// Register handles POST /v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	if errs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
		validation.Required("password", req.Password),
	); errs != nil {
		badRequest(c, errs.Error())
		return
	}
	if len(req.Password) < 8 {
		badRequest(c, "password must be at least 8 characters")
		return
	}

	acct, err := h.service.Register(c.Request.Context(), &account.RegisterRequest{
		Email:     validation.SanitizeEmail(req.Email),
		Password:  req.Password,
		Role:      req.Role,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		if err == account.ErrEmailTaken {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "email_taken",
				"message": err.Error(),
			})
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": acct})
}

// Login handles POST /v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	if errs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
		validation.Required("password", req.Password),
	); errs != nil {
		badRequest(c, errs.Error())
		return
	}

	err := h.service.Login(c.Request.Context(), validation.SanitizeEmail(req.Email), req.Password, metaFrom(c))
	if err != nil {
		h.authError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// Verify handles POST /v1/auth/verify
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	// A malformed code is an input error: reject before any counter moves.
	if errs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
		validation.Required("code", req.Code),
		validation.ValidOTPCode("code", req.Code),
	); errs != nil {
		badRequest(c, errs.Error())
		return
	}

	sess, err := h.service.VerifyCode(c.Request.Context(), validation.SanitizeEmail(req.Email), req.Code, metaFrom(c))
	if err != nil {
		h.authError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Resend handles POST /v1/auth/resend
func (h *Handler) Resend(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	if errs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
	); errs != nil {
		badRequest(c, errs.Error())
		return
	}

	err := h.service.ResendCode(c.Request.Context(), validation.SanitizeEmail(req.Email))
	if err != nil {
		h.authError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

func (h *Handler) authError(c *gin.Context, err error) {
	var locked *LockedError
	switch {
	case errors.As(err, &locked):
		c.JSON(http.StatusLocked, gin.H{
			"error":            "account_locked",
			"message":          err.Error(),
			"remainingSeconds": locked.RemainingSeconds,
		})
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": ErrInvalidCredentials.Error(),
		})
	case errors.Is(err, ErrDeliveryFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "delivery_failed",
			"message": err.Error(),
		})
	default:
		internalError(c, err)
	}
}

func metaFrom(c *gin.Context) *RequestMeta {
	return &RequestMeta{
		IPAddress:         c.ClientIP(),
		DeviceFingerprint: c.GetHeader("X-Device-Fingerprint"),
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "try again",
	})
}
