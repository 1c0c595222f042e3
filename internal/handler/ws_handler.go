package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/akademos/exam-backend/internal/logger"
	"github.com/akademos/exam-backend/internal/middleware"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/response"
	"github.com/akademos/exam-backend/internal/service"
	ws "github.com/akademos/exam-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader enforces the same origin list the CORS layer uses; browsers
// do not apply CORS to WebSocket upgrades, so the check lives here. An empty
// list accepts any origin.
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

// WSHandler streams the exam-taking loop over a WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            logger.Component(log, "ws_handler"),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream?token=...
// Upgrades to a WebSocket carrying autosave, heartbeat and submit frames for
// the caller's live attempt.
func (h *WSHandler) ExamStream(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Reject before upgrading so clients get a plain HTTP status when there
	// is no live attempt to stream for.
	if _, err := h.attemptService.Resume(c.Request.Context(), ident, examID); err != nil {
		failFromErr(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", ident.UserID.String()).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("student connected")

	ctx := c.Request.Context()
	for {
		raw, err := ws.ReadFrame(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected close")
			} else {
				wsLog.Debug().Msg("connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			ws.WriteError(conn, string(response.ErrValidation), "malformed frame")
			continue
		}

		switch env.Action {
		case ws.ActionPing:
			h.handlePing(ctx, conn, ident, examID)
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, wsLog, ident, examID, raw)
		case ws.ActionSubmit:
			if h.handleSubmit(ctx, conn, wsLog, ident, examID, raw) {
				deadline := time.Now().Add(time.Second)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "submitted"), deadline)
				return
			}
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("unknown action")
			ws.WriteError(conn, string(response.ErrValidation), "unknown action: "+string(env.Action))
		}
	}
}

// handlePing reports the authoritative remaining time for the live attempt.
func (h *WSHandler) handlePing(ctx context.Context, conn *websocket.Conn, ident model.Identity, examID uuid.UUID) {
	state, err := h.attemptService.Resume(ctx, ident, examID)
	if err != nil {
		writeServiceErr(conn, err)
		return
	}
	ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, RemainingSeconds: state.RemainingSeconds})
}

// handleAutosave merges an answer batch into the attempt's buffer.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, ident model.Identity, examID uuid.UUID, raw []byte) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, string(response.ErrValidation), "malformed autosave frame")
		return
	}

	if err := h.attemptService.Autosave(ctx, ident, examID, req.Answers); err != nil {
		wsLog.Debug().Err(err).Msg("autosave rejected")
		writeServiceErr(conn, err)
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Saved: len(req.Answers)})
}

// handleSubmit concludes the attempt. Returns true when the stream should
// close because a receipt was delivered.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, ident model.Identity, examID uuid.UUID, raw []byte) bool {
	var req ws.SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, string(response.ErrValidation), "malformed submit frame")
		return false
	}

	receipt, err := h.attemptService.Submit(ctx, ident, examID, &model.SubmitExamRequest{
		Answers:          req.Answers,
		TimeSpentSeconds: req.TimeSpentSeconds,
		AutoSubmit:       req.AutoSubmit,
	})
	if err != nil {
		wsLog.Warn().Err(err).Msg("submit over stream failed")
		writeServiceErr(conn, err)
		return false
	}

	wsLog.Info().
		Str("result_id", receipt.ResultID.String()).
		Str("status", receipt.Status).
		Int("score", receipt.Score).
		Msg("attempt submitted over stream")

	ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Receipt: receipt})
	return true
}

// writeServiceErr sends a service error as a typed error frame, reusing the
// REST error-code mapping.
func writeServiceErr(conn *websocket.Conn, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		ws.WriteError(conn, string(response.ErrValidation), verr.Error())
		return
	}
	_, code := errStatus(err)
	ws.WriteError(conn, string(code), response.GetMessage(code))
}
