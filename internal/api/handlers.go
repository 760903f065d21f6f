package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/metrics"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.register(w, r.PathValue("id"), false)
}

func (s *Server) handleRegisterGenerated(w http.ResponseWriter, r *http.Request) {
	s.register(w, uuid.NewString(), true)
}

func (s *Server) register(w http.ResponseWriter, id string, generated bool) {
	if err := s.tracker.Register(id, s.clock()); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info().Str("connection_id", id).Bool("generated", generated).Msg("Connection registered")
	if generated {
		writeJSON(w, http.StatusCreated, models.RegisterResponse{ID: id})
		return
	}

	conn, err := s.tracker.Status(id)
	if err != nil {
		// Evicted or swept between Register and Status.
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	payload, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxHeartbeatPayload+1))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, constants.ErrCodeMalformedHeartbeat, "failed to read heartbeat")
		return
	}
	if len(payload) > constants.MaxHeartbeatPayload {
		s.metrics.HeartbeatReceived(metrics.SourceREST, metrics.ResultMalformed)
		writeErrorCode(w, http.StatusBadRequest, constants.ErrCodeMalformedHeartbeat,
			fmt.Sprintf("heartbeat exceeds %d bytes", constants.MaxHeartbeatPayload))
		return
	}

	if err := s.recordHeartbeat(metrics.SourceREST, id, payload); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recordHeartbeat decodes payload and applies it to id, counting the outcome.
func (s *Server) recordHeartbeat(source, id string, payload []byte) error {
	msg, err := heartbeat.Decode(payload)
	if err != nil {
		s.metrics.HeartbeatReceived(source, metrics.ResultMalformed)
		s.logger.Debug().Err(err).Str("connection_id", id).Str("source", source).Msg("Rejected malformed heartbeat")
		return err
	}

	now := s.clock()
	if err := s.tracker.Heartbeat(id, msg, now); err != nil {
		s.metrics.HeartbeatReceived(source, metrics.ResultUnknown)
		return err
	}

	s.metrics.HeartbeatReceived(source, metrics.ResultAccepted)
	s.metrics.ObserveLatency(msg.Latency(now))
	return nil
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tracker.Evict(id); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info().Str("connection_id", id).Msg("Connection evicted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.tracker.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStatusFilter(r.URL.Query()["status"])
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, constants.ErrCodeMissingParameter, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.List(filter...))
}

// parseStatusFilter accepts repeated and comma separated status values, e.g.
// ?status=alive,stale&status=connecting. Blank values are ignored.
func parseStatusFilter(values []string) ([]constants.ConnectionStatus, error) {
	names := lo.FlatMap(values, func(v string, _ int) []string {
		return strings.Split(v, ",")
	})
	names = lo.Uniq(lo.Compact(lo.Map(names, func(name string, _ int) string {
		return strings.TrimSpace(name)
	})))

	filter := make([]constants.ConnectionStatus, 0, len(names))
	for _, name := range names {
		status, ok := constants.ParseConnectionStatus(name)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", name)
		}
		filter = append(filter, status)
	}
	return filter, nil
}
