package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/meshmarket/backend/internal/models"
	"github.com/meshmarket/backend/pkg/response"
)

// Handler exposes register/login endpoints.
type Handler struct {
	repo   *Repository
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email, name, and password (min 8 chars) are required")
		return
	}
	switch req.Role {
	case "", models.RoleMember:
		req.Role = models.RoleMember
	case models.RoleAffiliate:
	default:
		// Admin accounts are provisioned out of band.
		response.BadRequest(c, "invalid role")
		return
	}

	existing, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.Error("lookup user", zap.Error(err))
		response.Internal(c, "registration failed")
		return
	}
	if existing != nil {
		response.Conflict(c, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		response.Internal(c, "registration failed")
		return
	}
	user := &models.User{Email: req.Email, Name: req.Name, PasswordHash: string(hash), Role: req.Role}
	if err := h.repo.Create(c.Request.Context(), user); err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "registration failed")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		response.Internal(c, "registration failed")
		return
	}
	c.JSON(http.StatusCreated, response.Body{Success: true, Data: authResponse{Token: token, User: user}})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email and password are required")
		return
	}
	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.Error("lookup user", zap.Error(err))
		response.Internal(c, "login failed")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		response.Unauthorized(c, "invalid credentials")
		return
	}
	token, err := h.jwt.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		response.Internal(c, "login failed")
		return
	}
	response.OK(c, authResponse{Token: token, User: user})
}

// List handles GET /users (admin only).
func (h *Handler) List(c *gin.Context) {
	users, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, users)
}
