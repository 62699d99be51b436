package campaigns

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meshmarket/backend/internal/middleware"
	"github.com/meshmarket/backend/internal/models"
	"github.com/meshmarket/backend/pkg/response"
)

// Handler exposes campaign endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a campaigns handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type createCampaignRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug"`
}

// Create handles POST /campaigns.
func (h *Handler) Create(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}
	if req.Slug == "" {
		req.Slug = slugify(req.Name)
	}
	existing, err := h.repo.GetBySlug(c.Request.Context(), req.Slug)
	if err != nil {
		response.Internal(c, "failed to check slug")
		return
	}
	if existing != nil {
		response.Conflict(c, "slug already in use")
		return
	}
	camp := &models.Campaign{Name: req.Name, Slug: req.Slug, OwnerID: middleware.UserID(c)}
	if err := h.repo.Create(c.Request.Context(), camp); err != nil {
		response.Internal(c, "failed to create campaign")
		return
	}
	response.Created(c, camp)
}

// ListMine handles GET /campaigns for the authenticated user.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.repo.ListByOwner(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to list campaigns")
		return
	}
	response.OK(c, list)
}

// Get handles GET /campaigns/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid campaign id")
		return
	}
	camp, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load campaign")
		return
	}
	if camp == nil {
		response.NotFound(c, "campaign not found")
		return
	}
	response.OK(c, camp)
}

// slugify lowercases and hyphenates a campaign name.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
