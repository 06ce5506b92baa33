package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams snapshots, answers and violations for one session.
type WSHandler struct {
	sessionService   *service.ExamSessionService
	snapshotService  *service.SnapshotService
	violationService *service.ViolationService
	limiter          *middleware.RateLimiter
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter may be nil.
func NewWSHandler(
	sessionService *service.ExamSessionService,
	snapshotService *service.SnapshotService,
	violationService *service.ViolationService,
	limiter *middleware.RateLimiter,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService:   sessionService,
		snapshotService:  snapshotService,
		violationService: violationService,
		limiter:          limiter,
		log:              log.With().Str("component", "ws_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// wsSession is the per-connection state passed to action handlers.
type wsSession struct {
	conn      *websocket.Conn
	log       zerolog.Logger
	sessionID uuid.UUID
	studentID uuid.UUID
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:id/stream?token=...
// Upgrades to WebSocket for fire-and-forget snapshots and live violation
// reporting. The connection closes once the session completes.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Validate ownership and state before upgrading so the client gets a
	// proper HTTP status.
	session, err := h.sessionService.Get(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if !session.InProgress() {
		response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &wsSession{
		conn:      conn,
		sessionID: sessionID,
		studentID: claims.UserID,
		log: h.log.With().
			Str("student_id", claims.UserID.String()).
			Str("session_id", sessionID.String()).
			Logger(),
	}
	s.log.Info().Msg("Student connected")

	for {
		var req ws.Request
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		if h.limiter != nil && req.Action != ws.ActionPing && !h.limiter.Allow("ws:"+claims.UserID.String()) {
			h.writeCode(s, req.RequestID, response.ErrRateLimitExceeded)
			continue
		}

		var done bool
		switch req.Action {
		case ws.ActionSnapshot:
			done = h.handleSnapshot(c, s, req)
		case ws.ActionAnswer:
			done = h.handleAnswer(c, s, req)
		case ws.ActionViolation:
			done = h.handleViolation(c, s, req)
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, RequestID: req.RequestID})
		default:
			s.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, req.RequestID, string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
		}
		if done {
			s.log.Info().Msg("Session finished, closing stream")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"))
			return
		}
	}
}

// handleSnapshot queues a snapshot for batched persistence.
func (h *WSHandler) handleSnapshot(c *gin.Context, s *wsSession, req ws.Request) bool {
	var data model.SnapshotData
	if err := ws.DecodePayload(req, &data); err != nil {
		_ = ws.WriteError(s.conn, req.RequestID, string(response.ErrValidation), err.Error())
		return false
	}

	snap, err := h.snapshotService.Enqueue(c.Request.Context(), s.sessionID, s.studentID, data)
	if err != nil {
		return h.writeServiceError(s, req.RequestID, err)
	}

	_ = ws.WriteTyped(s.conn, ws.Ack{
		Event:     ws.EventSnapshotQueued,
		RequestID: req.RequestID,
		Data:      gin.H{"created_at": snap.CreatedAt},
	})
	return false
}

// handleAnswer stores one authoritative response.
func (h *WSHandler) handleAnswer(c *gin.Context, s *wsSession, req ws.Request) bool {
	var body model.SaveResponseRequest
	if err := ws.DecodePayload(req, &body); err != nil {
		_ = ws.WriteError(s.conn, req.RequestID, string(response.ErrValidation), err.Error())
		return false
	}

	saved, err := h.sessionService.SaveResponse(c.Request.Context(), s.sessionID, s.studentID, body)
	if err != nil {
		return h.writeServiceError(s, req.RequestID, err)
	}

	_ = ws.WriteTyped(s.conn, ws.Ack{Event: ws.EventAnswerSaved, RequestID: req.RequestID, Data: saved})
	return false
}

// handleViolation logs a violation and completes the session when the
// threshold is reached.
func (h *WSHandler) handleViolation(c *gin.Context, s *wsSession, req ws.Request) bool {
	var body model.LogViolationRequest
	if err := ws.DecodePayload(req, &body); err != nil {
		_ = ws.WriteError(s.conn, req.RequestID, string(response.ErrValidation), err.Error())
		return false
	}
	if body.BrowserInfo == "" {
		body.BrowserInfo = c.Request.UserAgent()
	}

	ctx := c.Request.Context()
	result, err := h.violationService.Log(ctx, s.sessionID, body)
	if err != nil {
		return h.writeServiceError(s, req.RequestID, err)
	}
	_ = ws.WriteTyped(s.conn, ws.Ack{Event: ws.EventViolation, RequestID: req.RequestID, Data: result})

	if !result.ShouldTerminate {
		return false
	}

	completion, err := h.sessionService.Complete(ctx, s.sessionID, model.SubmissionMaxViolations)
	if err != nil {
		return h.writeServiceError(s, req.RequestID, err)
	}
	s.log.Warn().Int("total_violations", result.TotalViolations).Msg("Violation threshold reached, session completed")
	_ = ws.WriteTyped(s.conn, ws.Ack{Event: ws.EventCompleted, RequestID: req.RequestID, Data: completion})
	return true
}

// writeServiceError reports err to the client and tells the loop whether
// the session can no longer accept input.
func (h *WSHandler) writeServiceError(s *wsSession, requestID string, err error) bool {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("WebSocket action failed")
	}
	h.writeCode(s, requestID, code)
	return errors.Is(err, service.ErrSessionCompleted)
}

func (h *WSHandler) writeCode(s *wsSession, requestID string, code response.ErrCode) {
	_ = ws.WriteError(s.conn, requestID, string(code), response.GetMessage(code))
}
