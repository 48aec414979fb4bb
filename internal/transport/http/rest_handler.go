package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"neuroaid-diagnostic-service/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SessionHandler exposes the quiz session use cases as JSON over HTTP.
type SessionHandler struct {
	service  *app.DiagnosticService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewSessionHandler(service *app.DiagnosticService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{service: service, validate: validator.New(), logger: logger}
}

type startRequest struct {
	CatalogID string `json:"catalogId" validate:"omitempty,max=128"`
}

type answerRequest struct {
	Value     string `json:"value" validate:"max=512"`
	ElapsedMs *int64 `json:"elapsedMs" validate:"omitempty,gte=0"`
}

// Routes mounts the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.start)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.abandon)
		r.Post("/answers", h.answer)
		r.Post("/back", h.back)
		r.Post("/finalize", h.finalize)
	})
}

func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	// the body is optional: an empty one starts the default catalog
	var req startRequest
	if err := h.decode(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.fail(w, r, err)
		return
	}
	view, err := h.service.Start(r.Context(), req.CatalogID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) answer(w http.ResponseWriter, r *http.Request) {
	// an empty body is an unanswered question, not an error
	var req answerRequest
	if err := h.decode(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.fail(w, r, err)
		return
	}
	view, err := h.service.Answer(r.Context(), chi.URLParam(r, "sessionID"), req.Value, req.ElapsedMs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) back(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Back(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) finalize(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Finalize(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *SessionHandler) abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Abandon(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, payload := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
