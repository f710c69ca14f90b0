package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/api"
	"github.com/vovakirdan/repaircall/internal/cues"
	"github.com/vovakirdan/repaircall/internal/session"
	"github.com/vovakirdan/repaircall/internal/signaling"
	"github.com/vovakirdan/repaircall/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// CallController is the session the control API drives.
type CallController interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	Start(ctx context.Context, target string) (session.Snapshot, error)
	Accept(ctx context.Context) (session.Snapshot, error)
	End(ctx context.Context) (session.Snapshot, error)
	ToggleMute(ctx context.Context) (session.Snapshot, error)
	Hold(ctx context.Context) (session.Snapshot, error)
	Resume(ctx context.Context) (session.Snapshot, error)
}

// CueController exposes the audible cue state.
type CueController interface {
	Unlock()
	Status() cues.Status
}

// ElapsedClock renders the talk time of the current call.
type ElapsedClock interface {
	Label() string
}

// CallHistory lists finished calls.
type CallHistory interface {
	ListCalls(ctx context.Context, limit int, beforeID *int64) ([]*store.CallRecord, error)
}

// NotificationFeed pages through backend notifications.
type NotificationFeed interface {
	ListNotifications(ctx context.Context, cursor string, limit int) (api.Page[api.Notification], error)
}

// SignalingStats reports signaling frame counters.
type SignalingStats interface {
	Diagnostics() signaling.Diagnostics
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StartCallRequest represents the request body for placing a call.
type StartCallRequest struct {
	Target string `json:"target" binding:"required"`
}

// ControlHandlers provides HTTP handlers for the control API.
type ControlHandlers struct {
	deps Deps
	log  *zerolog.Logger
}

// NewControlHandlers creates a new control handlers instance.
func NewControlHandlers(deps Deps, logger *zerolog.Logger) *ControlHandlers {
	return &ControlHandlers{deps: deps, log: logger}
}

// GetCall returns the current call state.
// GET /api/call
func (h *ControlHandlers) GetCall(c *gin.Context) {
	c.JSON(http.StatusOK, h.state(h.deps.Calls.Snapshot()))
}

// Start places an outbound call.
// POST /api/call/start
func (h *ControlHandlers) Start(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid start call request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	snap, err := h.deps.Calls.Start(c.Request.Context(), req.Target)
	if err != nil {
		h.fail(c, "start", err)
		return
	}
	c.JSON(http.StatusCreated, h.state(snap))
}

// Accept answers the incoming call.
// POST /api/call/accept
func (h *ControlHandlers) Accept(c *gin.Context) {
	h.action(c, "accept", h.deps.Calls.Accept)
}

// End hangs up.
// POST /api/call/end
func (h *ControlHandlers) End(c *gin.Context) {
	h.action(c, "end", h.deps.Calls.End)
}

// ToggleMute flips the microphone.
// POST /api/call/mute
func (h *ControlHandlers) ToggleMute(c *gin.Context) {
	h.action(c, "mute", h.deps.Calls.ToggleMute)
}

// Hold puts the call on hold.
// POST /api/call/hold
func (h *ControlHandlers) Hold(c *gin.Context) {
	h.action(c, "hold", h.deps.Calls.Hold)
}

// Resume takes the call off hold.
// POST /api/call/resume
func (h *ControlHandlers) Resume(c *gin.Context) {
	h.action(c, "resume", h.deps.Calls.Resume)
}

// UnlockAudio records the user gesture that allows cue playback.
// POST /api/audio/unlock
func (h *ControlHandlers) UnlockAudio(c *gin.Context) {
	if h.deps.Cues == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "audio cues disabled"})
		return
	}
	h.deps.Cues.Unlock()
	c.JSON(http.StatusOK, h.deps.Cues.Status())
}

// Events streams call state as server-sent events until the client leaves.
// GET /api/call/events
func (h *ControlHandlers) Events(c *gin.Context) {
	snaps, cancel := h.deps.Calls.Subscribe()
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	ctx := c.Request.Context()
	lastLabel := h.elapsedLabel()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-snaps:
			if !ok {
				return false
			}
			c.SSEvent("call", h.state(snap))
			return true
		case <-ticker.C:
			if label := h.elapsedLabel(); label != lastLabel {
				lastLabel = label
				c.SSEvent("elapsed", gin.H{"elapsed": label})
			}
			return true
		}
	})
}

// ListCalls returns the local call history, newest first.
// GET /api/calls?limit=20&before=123
func (h *ControlHandlers) ListCalls(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "call history disabled"})
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		beforeID = &id
	}

	records, err := h.deps.History.ListCalls(c.Request.Context(), limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list calls")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	items := make([]CallRecordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, callRecordToResponse(rec))
	}
	c.JSON(http.StatusOK, CallHistoryResponse{Calls: items})
}

// ListNotifications proxies one page of the backend notification feed.
// GET /api/notifications?cursor=abc&limit=20
func (h *ControlHandlers) ListNotifications(c *gin.Context) {
	if h.deps.Notifications == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "notifications disabled"})
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	page, err := h.deps.Notifications.ListNotifications(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to fetch notifications")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to fetch notifications"})
		return
	}
	if page.Items == nil {
		page.Items = []api.Notification{}
	}
	c.JSON(http.StatusOK, page)
}

// Diagnostics reports signaling counters.
// GET /api/diagnostics
func (h *ControlHandlers) Diagnostics(c *gin.Context) {
	resp := DiagnosticsResponse{Phase: h.deps.Calls.Snapshot().Phase}
	if h.deps.Signaling != nil {
		diag := h.deps.Signaling.Diagnostics()
		resp.Signaling = &diag
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ControlHandlers) action(c *gin.Context, name string, fn func(context.Context) (session.Snapshot, error)) {
	snap, err := fn(c.Request.Context())
	if err != nil {
		h.fail(c, name, err)
		return
	}
	c.JSON(http.StatusOK, h.state(snap))
}

func (h *ControlHandlers) fail(c *gin.Context, action string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("action", action).Msg("call action failed")
	} else {
		h.log.Debug().Err(err).Str("action", action).Msg("call action rejected")
	}
	c.JSON(status, ErrorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrInvalidPhase):
		return http.StatusConflict, err.Error()
	case errors.Is(err, session.ErrInvalidDescriptor), errors.Is(err, api.ErrIncompleteCall):
		return http.StatusBadGateway, "backend returned an incomplete call"
	case errors.Is(err, session.ErrNoCreator):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, statusErr.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *ControlHandlers) state(snap session.Snapshot) CallStateResponse {
	resp := CallStateResponse{Call: snap, Elapsed: h.elapsedLabel()}
	if h.deps.Cues != nil {
		status := h.deps.Cues.Status()
		resp.Cues = &status
	}
	return resp
}

func (h *ControlHandlers) elapsedLabel() string {
	if h.deps.Elapsed == nil {
		return ""
	}
	return h.deps.Elapsed.Label()
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultPageLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return 0, false
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit, true
}
