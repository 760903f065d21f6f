package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// The client went away; nothing left to report to.
		return
	}
}

func writeErrorCode(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, models.ErrorResponse{ErrCode: errCode, Error: message})
}

// errorStatus maps a tracker or codec error onto an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, tracker.ErrUnknownConnection):
		return http.StatusNotFound, constants.ErrCodeClientNotFound
	case errors.Is(err, tracker.ErrAlreadyTracked):
		return http.StatusConflict, constants.ErrCodeClientConflict
	case errors.Is(err, tracker.ErrConnectionLimit):
		return http.StatusTooManyRequests, constants.ErrCodeConnectionLimit
	case errors.Is(err, tracker.ErrInvalidID):
		return http.StatusBadRequest, constants.ErrCodeMissingParameter
	case errors.Is(err, heartbeat.ErrMalformed):
		return http.StatusBadRequest, constants.ErrCodeMalformedHeartbeat
	default:
		return http.StatusInternalServerError, constants.ErrCodeGenericFail
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, errCode := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
		message = http.StatusText(status)
	}
	writeErrorCode(w, status, errCode, message)
}
