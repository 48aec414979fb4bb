package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"neuroaid-diagnostic-service/internal/app"
	"neuroaid-diagnostic-service/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler drives quiz sessions over websocket connections.
type WSHandler struct {
	service  *app.DiagnosticService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds a handler that accepts connections from any origin; CORS is enforced by the router.
func NewWSHandler(service *app.DiagnosticService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsAnswerPayload struct {
	Value     string `json:"value"`
	ElapsedMs *int64 `json:"elapsedMs"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
	CatalogID string `json:"catalogId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and drives one quiz session over them.
// Pass ?sessionId= to resume a session or ?catalogId= (optional) to start a new one.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("sessionId")

	var (
		view domain.SessionView
		err  error
	)
	if sessionID != "" {
		view, err = h.service.Get(ctx, sessionID)
	} else {
		view, err = h.service.Start(ctx, r.URL.Query().Get("catalogId"))
	}
	if err != nil {
		status, payload := classify(err)
		writeJSON(w, status, payload)
		return
	}
	sessionID = view.SessionID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorOf(err)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine: gorilla connections do not allow concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		}
	}()

	// emit gives up once the writer has stopped so a dead connection never blocks the reader.
	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	emit(outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionID: sessionID, CatalogID: view.CatalogID}})

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// Abandoned: report it, then unblock the reader so the connection winds down.
					select {
					case send <- outboundMessage[any]{Type: "error", Payload: errorOf(domain.ErrSessionNotFound)}:
					case <-writerDone:
					case <-closeSignals:
					}
					_ = conn.SetReadDeadline(time.Now())
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "item", Payload: update}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// A session resumed after the last answer but before a verdict picks up where it stopped.
	if view.Transition.Phase == domain.PhaseComplete && !view.Finalized {
		h.finalize(ctx, sessionID, emit)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload wsAnswerPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload", Code: "bad_request"}})
					continue
				}
			}
			if payload.ElapsedMs != nil && *payload.ElapsedMs < 0 {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "elapsedMs must not be negative", Code: "bad_request"}})
				continue
			}
			updated, err := h.service.Answer(ctx, sessionID, payload.Value, payload.ElapsedMs)
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorOf(err)})
				continue
			}
			if updated.Transition.Phase == domain.PhaseComplete {
				h.finalize(ctx, sessionID, emit)
			}
		case "back":
			if _, err := h.service.Back(ctx, sessionID); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorOf(err)})
			}
		case "retry", "finalize":
			h.finalize(ctx, sessionID, emit)
		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type", Code: "bad_request"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// finalize announces the submitting state, then reports either the verdict or a visible failure.
func (h *WSHandler) finalize(ctx context.Context, sessionID string, emit func(outboundMessage[any])) {
	emit(outboundMessage[any]{Type: "submitting", Payload: sessionPayload{SessionID: sessionID}})
	summary, err := h.service.Finalize(ctx, sessionID)
	if err != nil {
		emit(outboundMessage[any]{Type: "error", Payload: errorOf(err)})
		return
	}
	emit(outboundMessage[any]{Type: "result", Payload: summary})
}

func errorOf(err error) errorPayload {
	_, payload := classify(err)
	return payload
}
