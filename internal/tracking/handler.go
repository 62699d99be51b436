package tracking

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/middleware"
	"github.com/meshmarket/backend/internal/models"
	"github.com/meshmarket/backend/internal/session"
	"github.com/meshmarket/backend/pkg/response"
)

// SessionKeyAttribution is the session key holding the visitor's last
// clicked tracking code for conversion attribution.
const SessionKeyAttribution = "aff_code"

// Handler exposes affiliate link issuance and the public click-through
// redirect.
type Handler struct {
	repo     *Repository
	issuer   *Issuer
	sessions *session.Store
	logger   *zap.Logger
}

// NewHandler creates a tracking handler.
func NewHandler(repo *Repository, issuer *Issuer, sessions *session.Store, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, issuer: issuer, sessions: sessions, logger: logger}
}

type createLinkRequest struct {
	CampaignID     *uuid.UUID `json:"campaign_id"`
	DestinationURL string     `json:"destination_url" binding:"required,url"`
}

// CreateLink handles POST /links: issues a new affiliate link with a
// unique tracking code for the authenticated affiliate.
func (h *Handler) CreateLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "destination_url is required and must be a URL")
		return
	}
	link := &models.AffiliateLink{
		CampaignID:     req.CampaignID,
		AffiliateID:    middleware.UserID(c),
		DestinationURL: req.DestinationURL,
	}
	if err := h.issuer.Issue(c.Request.Context(), link); err != nil {
		if errors.Is(err, ErrExhaustedRetries) {
			response.Conflict(c, "could not allocate a unique tracking code")
			return
		}
		h.logger.Error("issue link", zap.Error(err))
		response.Internal(c, "failed to create link")
		return
	}
	response.Created(c, link)
}

// ListLinks handles GET /links for the authenticated affiliate.
func (h *Handler) ListLinks(c *gin.Context) {
	links, err := h.repo.ListByAffiliate(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to list links")
		return
	}
	response.OK(c, links)
}

// DeleteLink handles DELETE /links/:id, retiring the tracking code.
func (h *Handler) DeleteLink(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid link id")
		return
	}
	link, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load link")
		return
	}
	if link == nil {
		response.NotFound(c, "link not found")
		return
	}
	if link.AffiliateID != middleware.UserID(c) && middleware.UserRole(c) != models.RoleAdmin {
		response.Forbidden(c, "not your link")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete link")
		return
	}
	response.NoContent(c)
}

// Redirect handles GET /r/:code: records the click, stores attribution
// in the visitor's session cookie, and redirects to the destination.
// The session cookie is committed before the redirect is written.
func (h *Handler) Redirect(c *gin.Context) {
	code := c.Param("code")
	link, err := h.repo.GetByCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("resolve tracking code", zap.Error(err))
		response.Internal(c, "failed to resolve link")
		return
	}
	if link == nil {
		response.NotFound(c, "unknown tracking code")
		return
	}

	if err := h.repo.RecordClick(c.Request.Context(), link.ID, c.Request.Referer()); err != nil {
		// Attribution still proceeds; a lost click row is not fatal.
		h.logger.Warn("record click failed", zap.Error(err), zap.String("code", code))
	}

	sess := session.FromContext(c)
	if sess != nil {
		sess.Set(SessionKeyAttribution, code)
		session.Save(c, h.sessions, h.logger)
	}
	c.Redirect(http.StatusFound, link.DestinationURL)
}
