package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"zen-accounts/internal/service"
)

// Handler wires HTTP routes to the auth service.
type Handler struct {
	auth   service.AuthService
	logger *logrus.Logger
}

func NewHandler(auth service.AuthService, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		auth:   auth,
		logger: logger,
	}
}

// NewRouter returns a gin engine with recovery, request logging and all routes registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware(), loggingMiddleware(h.logger), corsMiddleware())

	h.mount(&router.RouterGroup)
	h.mount(router.Group("/api"))
}

func (h *Handler) mount(r *gin.RouterGroup) {
	r.POST("/signup", h.signup)
	r.POST("/login", h.login)
	r.POST("/send_email/:email", h.sendEmail)
	r.POST("/reset", h.resetPassword)
	r.POST("/changepassword", h.changePassword)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

type signupRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Email             string `json:"email"`
	VerificationToken string `json:"verification_token"`
	NewPassword       string `json:"new_password"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// Response is the body of every auth endpoint.
type Response struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Token      string `json:"token,omitempty"`
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.auth.Signup(c.Request.Context(), service.SignupInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	respond(c, http.StatusCreated, "User created successfully", token)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	respond(c, http.StatusOK, "Login successful", token)
}

func (h *Handler) sendEmail(c *gin.Context) {
	err := h.auth.RequestPasswordReset(c.Request.Context(), c.Param("email"))
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, service.ErrNotFound) {
			status = http.StatusBadRequest
		}
		respondError(c, status, err)
		return
	}

	respond(c, http.StatusOK, "Email sent successfully!", "")
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.VerificationToken, req.NewPassword); err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	respond(c, http.StatusOK, "Password Reset Successfully!", "")
}

func (h *Handler) changePassword(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		respond(c, http.StatusUnauthorized, "Invalid token.", "")
		return
	}

	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), token, req.NewPassword); err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	respond(c, http.StatusOK, "Password changed successfully", "")
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(err)
		respond(c, http.StatusBadRequest, "Invalid request body", "")
		return false
	}
	return true
}

func respond(c *gin.Context, status int, message, token string) {
	c.JSON(status, Response{
		StatusCode: status,
		Message:    message,
		Token:      token,
	})
}

func respondError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	respond(c, status, service.Message(err), "")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
