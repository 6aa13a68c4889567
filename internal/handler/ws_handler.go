package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
	ws "github.com/stemsi/exstem-prep/internal/websocket"
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

// WSHandler streams the live timer of the active session and accepts answer events.
type WSHandler struct {
	flow         *service.ExamFlowService
	clock        service.Clock
	tickInterval time.Duration
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(flow *service.ExamFlowService, clock service.Clock, tickInterval time.Duration, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		flow:         flow,
		clock:        clock,
		tickInterval: tickInterval,
		log:          logger.Component(log, "ws_handler"),
		upgrader:     buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/active/stream?token=...&client_id=...
// Pushes a tick every interval (auto-submitting timed sessions at zero) and
// handles answer, check, navigate, submit and ping actions.
func (h *WSHandler) SessionStream(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	// Resolve before upgrading so a missing session is a plain HTTP error.
	ctrl, err := h.flow.Resume(c.Request.Context(), contextKey, userID)
	if err != nil {
		failWith(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	safe := ws.NewSafeConn(conn)
	defer safe.Close()

	wsLog := h.log.With().
		Str("user_id", userID).
		Str("session_id", ctrl.SessionID()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(wsLog.WithContext(context.Background()))
	defer cancel()

	if err := safe.WriteTyped(ws.SnapshotEvent{Event: ws.EventSnapshot, Session: ctrl.View(h.clock.Now())}); err != nil {
		return
	}

	events := make(chan service.TimerEvent)
	go service.RunTicker(ctx, ctrl, h.tickInterval, h.clock, events)
	go h.pumpTicks(ctx, cancel, safe, events, wsLog)

	s := &wsSession{h: h, safe: safe, userID: userID, contextKey: contextKey, log: wsLog}
	for {
		var msg ws.RequestEnvelope
		if err := safe.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if done := s.dispatch(ctx, &msg); done {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// pumpTicks forwards timer events until the ticker stops. An automatic
// submission or a session abandoned over HTTP ends the stream.
func (h *WSHandler) pumpTicks(ctx context.Context, cancel context.CancelFunc, safe *ws.SafeConn, events <-chan service.TimerEvent, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Ended {
				log.Info().Msg("Session discarded elsewhere, closing stream")
				_ = safe.WriteError(string(response.ErrNoActiveSession), response.GetMessage(response.ErrNoActiveSession), false)
				cancel()
				_ = safe.Close()
				return
			}
			if err := safe.WriteTyped(ws.TickEvent{Event: ws.EventTick, Timer: ev.Timer}); err != nil {
				cancel()
				return
			}
			if ev.Err != nil {
				log.Error().Err(ev.Err).Msg("Auto-submit failed")
				_, code := statusFor(ev.Err)
				_ = safe.WriteError(string(code), response.GetMessage(code), true)
			}
			if ev.Result != nil {
				_ = safe.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Automatic: true, Result: ev.Result})
				cancel()
				_ = safe.Close()
				return
			}
		}
	}
}

type wsSession struct {
	h          *WSHandler
	safe       *ws.SafeConn
	userID     string
	contextKey string
	log        zerolog.Logger
}

// dispatch applies one client action and reports whether the stream is finished.
func (s *wsSession) dispatch(ctx context.Context, msg *ws.RequestEnvelope) bool {
	flow := s.h.flow

	switch msg.Action {
	case ws.ActionPing:
		_ = s.safe.WriteTyped(ws.PongEvent{Event: ws.EventPong})

	case ws.ActionAnswer:
		if msg.QuestionID == "" || msg.OptionID == "" {
			_ = s.safe.WriteError(string(response.ErrValidation), "question_id and option_id are required", false)
			return false
		}
		if err := flow.SelectAnswer(ctx, s.contextKey, s.userID, msg.QuestionID, msg.OptionID); err != nil {
			return s.writeErr(err)
		}
		_ = s.safe.WriteTyped(ws.AckEvent{Event: ws.EventAck, Action: msg.Action})

	case ws.ActionCheck:
		if msg.QuestionID == "" {
			_ = s.safe.WriteError(string(response.ErrValidation), "question_id is required", false)
			return false
		}
		feedback, err := flow.CheckAnswer(ctx, s.contextKey, s.userID, msg.QuestionID)
		if err != nil {
			return s.writeErr(err)
		}
		_ = s.safe.WriteTyped(ws.FeedbackEvent{Event: ws.EventFeedback, Feedback: feedback})

	case ws.ActionNavigate:
		if msg.Index == nil {
			_ = s.safe.WriteError(string(response.ErrValidation), "index is required", false)
			return false
		}
		if err := flow.Navigate(ctx, s.contextKey, s.userID, *msg.Index); err != nil {
			return s.writeErr(err)
		}
		_ = s.safe.WriteTyped(ws.AckEvent{Event: ws.EventAck, Action: msg.Action})

	case ws.ActionSubmit:
		if !msg.Confirm {
			_ = s.safe.WriteError(string(response.ErrValidation), "confirm must be true", false)
			return false
		}
		result, err := flow.Submit(ctx, s.contextKey, s.userID)
		if err != nil {
			return s.writeErr(err)
		}
		_ = s.safe.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Result: result})
		return true

	default:
		s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = s.safe.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), false)
	}
	return false
}

// writeErr reports err to the client and ends the stream once the session is gone.
func (s *wsSession) writeErr(err error) bool {
	_, code := statusFor(err)
	var submission *service.SubmissionError
	_ = s.safe.WriteError(string(code), response.GetMessage(code), errors.As(err, &submission))
	return errors.Is(err, service.ErrNoActiveSession) || errors.Is(err, service.ErrAlreadySubmitted)
}
