package commission

import (
	"math"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/models"
	"github.com/meshmarket/backend/internal/session"
	"github.com/meshmarket/backend/internal/tracking"
	"github.com/meshmarket/backend/pkg/queue"
	"github.com/meshmarket/backend/pkg/response"
)

// Handler exposes conversion recording and lookup endpoints.
type Handler struct {
	repo   *Repository
	links  *tracking.Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewHandler creates a conversions handler.
func NewHandler(repo *Repository, links *tracking.Repository, q *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, links: links, queue: q, logger: logger}
}

type recordConversionRequest struct {
	TrackingCode string  `json:"tracking_code"`
	OrderRef     string  `json:"order_ref"`
	SalePrice    float64 `json:"sale_price"`
	Currency     string  `json:"currency"`
}

// Record handles POST /conversions: attributes a sale to an affiliate
// link (explicit tracking code, or the one stored in the visitor's
// session) and queues commission settlement. Invalid prices are rejected
// before any side effect.
func (h *Handler) Record(c *gin.Context) {
	var req recordConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if req.SalePrice <= 0 || math.IsNaN(req.SalePrice) || math.IsInf(req.SalePrice, 0) {
		response.BadRequest(c, "sale_price must be a positive finite number")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	code := req.TrackingCode
	if code == "" {
		if sess := session.FromContext(c); sess != nil {
			code, _ = sess.Get(tracking.SessionKeyAttribution)
		}
	}
	if code == "" {
		response.BadRequest(c, "no tracking code supplied or attributed")
		return
	}

	link, err := h.links.GetByCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("resolve tracking code", zap.Error(err))
		response.Internal(c, "failed to resolve link")
		return
	}
	if link == nil {
		response.NotFound(c, "unknown tracking code")
		return
	}

	conv := &models.Conversion{
		LinkID:    link.ID,
		OrderRef:  req.OrderRef,
		SalePrice: req.SalePrice,
		Currency:  req.Currency,
	}
	if err := h.repo.Create(c.Request.Context(), conv); err != nil {
		h.logger.Error("create conversion", zap.Error(err))
		response.Internal(c, "failed to record conversion")
		return
	}
	if err := h.queue.EnqueueConversion(c.Request.Context(), queue.ConversionPayload{
		ConversionID: conv.ID,
		LinkID:       link.ID,
	}); err != nil {
		h.logger.Error("enqueue conversion", zap.Error(err), zap.String("conversion_id", conv.ID.String()))
		response.Internal(c, "failed to queue settlement")
		return
	}
	response.Accepted(c, conv)
}

// ListByLink handles GET /links/:id/conversions.
func (h *Handler) ListByLink(c *gin.Context) {
	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid link id")
		return
	}
	list, err := h.repo.ListByLink(c.Request.Context(), linkID)
	if err != nil {
		response.Internal(c, "failed to list conversions")
		return
	}
	response.OK(c, list)
}
