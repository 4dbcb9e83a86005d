// README: Trip handlers: parse turns, modifications, session inspection, undo and clear.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/http/middleware"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/service"
)

// maxTextLen bounds a single user turn.
const maxTextLen = 2000

type TripHandler struct {
	conv    *service.Conversation
	timeout time.Duration
}

// NewTripHandler builds the handler. timeout bounds each request and should exceed the parser's
// maximum processing time.
func NewTripHandler(conv *service.Conversation, timeout time.Duration) *TripHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TripHandler{conv: conv, timeout: timeout}
}

type turnReq struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

func (h *TripHandler) bindTurn(c *gin.Context) (turnReq, bool) {
	var req turnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return req, false
	}
	req.Text = strings.TrimSpace(req.Text)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.Text == "" {
		writeError(c, http.StatusBadRequest, "missing text")
		return req, false
	}
	if len(req.Text) > maxTextLen {
		writeError(c, http.StatusBadRequest, "text too long")
		return req, false
	}
	if req.SessionID != "" && !isValidSessionID(req.SessionID) {
		writeError(c, http.StatusBadRequest, "invalid session_id")
		return req, false
	}
	return req, true
}

// Parse handles POST /api/trips/parse.
func (h *TripHandler) Parse(c *gin.Context) {
	req, ok := h.bindTurn(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp, err := h.conv.Parse(ctx, req.Text, req.SessionID, middleware.CallerUID(c))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

// Modify handles POST /api/trips/modify.
func (h *TripHandler) Modify(c *gin.Context) {
	req, ok := h.bindTurn(c)
	if !ok {
		return
	}
	if req.SessionID == "" {
		writeError(c, http.StatusBadRequest, "missing session_id")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp, err := h.conv.ApplyModification(ctx, req.Text, req.SessionID, middleware.CallerUID(c))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

// GetSession handles GET /api/sessions/:id.
func (h *TripHandler) GetSession(c *gin.Context) {
	st, ok := h.owned(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, st)
}

// Undo handles POST /api/sessions/:id/undo.
func (h *TripHandler) Undo(c *gin.Context) {
	if _, ok := h.owned(c); !ok {
		return
	}
	st, err := h.conv.Undo(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

// DeleteSession handles DELETE /api/sessions/:id.
func (h *TripHandler) DeleteSession(c *gin.Context) {
	if _, ok := h.owned(c); !ok {
		return
	}
	if err := h.conv.Clear(c.Request.Context(), c.Param("id")); err != nil {
		writeSessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// owned loads the session and hides sessions that belong to another authenticated user.
func (h *TripHandler) owned(c *gin.Context) (*session.State, bool) {
	id := c.Param("id")
	if !isValidSessionID(id) {
		writeError(c, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	st, err := h.conv.State(c.Request.Context(), id)
	if err != nil {
		writeSessionError(c, err)
		return nil, false
	}
	if uid := middleware.CallerUID(c); uid != "" && st.UserID != "" && st.UserID != uid {
		writeSessionError(c, session.ErrNotFound)
		return nil, false
	}
	return st, true
}
