package http

import (
	"errors"
	"fmt"
	"net/http"

	"neuroaid-diagnostic-service/internal/domain"
)

type errorPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

// classify maps domain errors onto an HTTP status and a stable code for clients.
func classify(err error) (int, errorPayload) {
	payload := errorPayload{Message: err.Error()}
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrCatalogNotFound):
		payload.Code = "not_found"
		return http.StatusNotFound, payload
	case errors.Is(err, domain.ErrSessionComplete),
		errors.Is(err, domain.ErrSessionIncomplete),
		errors.Is(err, domain.ErrSessionFinalized),
		errors.Is(err, domain.ErrAtPhaseStart),
		errors.Is(err, domain.ErrSessionExists):
		payload.Code = "conflict"
		return http.StatusConflict, payload
	case errors.Is(err, domain.ErrScoringFailed), errors.Is(err, domain.ErrMalformedScore):
		payload.Code = "scoring_failed"
		payload.Retryable = true
		return http.StatusBadGateway, payload
	case errors.Is(err, errBadRequest):
		payload.Code = "bad_request"
		return http.StatusBadRequest, payload
	}
	payload.Code = "internal"
	payload.Message = "internal error"
	return http.StatusInternalServerError, payload
}

var (
	errBadRequest = errors.New("bad request")
	errEmptyBody  = fmt.Errorf("%w: empty body", errBadRequest)
)
