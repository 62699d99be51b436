package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshmarket/backend/pkg/response"
)

// LinkStats aggregates clicks, conversions, and earnings for one link.
type LinkStats struct {
	LinkID          uuid.UUID `json:"link_id"`
	TrackingCode    string    `json:"tracking_code"`
	Clicks          int64     `json:"clicks"`
	Conversions     int64     `json:"conversions"`
	AffiliateEarned float64   `json:"affiliate_earned"`
	PlatformEarned  float64   `json:"platform_earned"`
	GrossSales      float64   `json:"gross_sales"`
}

// Handler computes affiliate analytics with direct aggregate queries.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler creates an analytics handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

const linkStatsQuery = `
	SELECT l.id, l.tracking_code,
		COUNT(DISTINCT c.id) AS clicks,
		COUNT(DISTINCT v.id) FILTER (WHERE v.status = 'completed') AS conversions,
		COALESCE(SUM(v.affiliate_amount) FILTER (WHERE v.status = 'completed'), 0),
		COALESCE(SUM(v.platform_amount) FILTER (WHERE v.status = 'completed'), 0),
		COALESCE(SUM(v.sale_price) FILTER (WHERE v.status = 'completed'), 0)
	FROM affiliate_links l
	LEFT JOIN link_clicks c ON c.link_id = l.id
	LEFT JOIN conversions v ON v.link_id = l.id`

// ByAffiliate handles GET /analytics/links: per-link stats for the
// authenticated affiliate.
func (h *Handler) ByAffiliate(affiliateIDOf func(*gin.Context) uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.linkStats(c.Request.Context(), linkStatsQuery+`
			WHERE l.affiliate_id = $1 GROUP BY l.id, l.tracking_code ORDER BY clicks DESC`,
			affiliateIDOf(c))
		if err != nil {
			response.Internal(c, "failed to compute analytics")
			return
		}
		response.OK(c, stats)
	}
}

// ByCampaign handles GET /campaigns/:id/analytics.
func (h *Handler) ByCampaign(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid campaign id")
		return
	}
	stats, err := h.linkStats(c.Request.Context(), linkStatsQuery+`
		WHERE l.campaign_id = $1 GROUP BY l.id, l.tracking_code ORDER BY clicks DESC`,
		campaignID)
	if err != nil {
		response.Internal(c, "failed to compute analytics")
		return
	}
	response.OK(c, stats)
}

func (h *Handler) linkStats(ctx context.Context, q string, arg interface{}) ([]LinkStats, error) {
	rows, err := h.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []LinkStats
	for rows.Next() {
		var s LinkStats
		if err := rows.Scan(&s.LinkID, &s.TrackingCode, &s.Clicks, &s.Conversions,
			&s.AffiliateEarned, &s.PlatformEarned, &s.GrossSales); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
