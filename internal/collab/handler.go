package collab

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meshmarket/backend/internal/middleware"
	"github.com/meshmarket/backend/pkg/response"
)

// Handler exposes collaboration session operations over HTTP.
type Handler struct {
	manager *Manager
	repo    *PgRepository
}

// NewHandler creates a collab handler.
func NewHandler(manager *Manager, repo *PgRepository) *Handler {
	return &Handler{manager: manager, repo: repo}
}

type createSessionRequest struct {
	ProjectRef string `json:"project_ref" binding:"required"`
	Type       string `json:"type"`
}

// Create handles POST /collab/sessions.
func (h *Handler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "project_ref is required")
		return
	}
	if req.Type == "" {
		req.Type = "research"
	}
	userID := middleware.UserID(c)
	sess, err := h.manager.CreateSession(c.Request.Context(), req.ProjectRef, userID, req.Type)
	if err != nil {
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, sess)
}

// Get handles GET /collab/sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	sess, participants, err := h.manager.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, gin.H{"session": sess, "participants": participants})
}

// Join handles POST /collab/sessions/:id/join.
func (h *Handler) Join(c *gin.Context) {
	h.membership(c, h.manager.JoinSession)
}

// Leave handles POST /collab/sessions/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	h.membership(c, h.manager.LeaveSession)
}

// End handles POST /collab/sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	h.membership(c, h.manager.EndSession)
}

type updateWorkspaceRequest struct {
	Patch map[string]json.RawMessage `json:"patch" binding:"required"`
}

// UpdateWorkspace handles PATCH /collab/sessions/:id/workspace.
func (h *Handler) UpdateWorkspace(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req updateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "patch is required")
		return
	}
	userID := middleware.UserID(c)
	if err := h.manager.UpdateWorkspace(c.Request.Context(), sessionID, userID, Patch(req.Patch)); err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": sessionID})
}

// Attendance handles GET /collab/sessions/:id/attendance.
func (h *Handler) Attendance(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	logs, err := h.repo.ListParticipantLogs(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to load attendance")
		return
	}
	response.OK(c, logs)
}

// membership runs a join/leave/end operation for the authenticated user
// and maps domain errors to HTTP statuses.
func (h *Handler) membership(c *gin.Context, op func(ctx context.Context, sessionID, participantID uuid.UUID) error) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := middleware.UserID(c)
	if err := op(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": sessionID})
}

// writeError maps collab domain errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, ErrSessionEnded):
		response.Gone(c, "session ended")
	case errors.Is(err, ErrNotAParticipant):
		response.Forbidden(c, "not a session participant")
	default:
		response.Internal(c, "session operation failed")
	}
}
