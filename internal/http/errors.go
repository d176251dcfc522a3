package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/offers"
	"github.com/example/ride-sharing/internal/pathing"
	"github.com/example/ride-sharing/internal/requests"
	"github.com/example/ride-sharing/internal/storage"
	"github.com/example/ride-sharing/internal/world"
)

type errorBody struct {
	Error string `json:"error"`
}

// errorCodes is checked in order; the first match wins.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{offers.ErrUnknownDriver, http.StatusBadRequest, "unknown_driver"},
	{offers.ErrInvalidCapacity, http.StatusBadRequest, "invalid_capacity"},
	{requests.ErrUnknownPassenger, http.StatusBadRequest, "unknown_passenger"},
	{world.ErrInvalidInput, http.StatusBadRequest, "invalid_body"},
	{offers.ErrDuplicateOffer, http.StatusConflict, "duplicate_offer"},
	{requests.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{requests.ErrQueueFull, http.StatusServiceUnavailable, "queue_full"},
	{pathing.ErrNoPath, http.StatusNotFound, "no_path"},
	{pathing.ErrPathTooLong, http.StatusUnprocessableEntity, "path_too_long"},
	{storage.ErrNoSnapshot, http.StatusNotFound, "no_snapshot"},
	{world.ErrNotFound, http.StatusNotFound, "not_found"},
}

func classify(err error) (int, string) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("request_id", requestIDFromContext(r.Context())), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: code})
}

func writeErrorCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{Error: code})
}
