package api

import (
	"context"
	"net/http"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := models.HealthReport{
		Status:        "ok",
		UptimeSeconds: s.clock().Sub(s.startedAt).Seconds(),
		Tracked:       s.tracker.Len(),
		ByStatus:      s.tracker.Counts(),
	}

	if s.collectors != nil {
		ctx, cancel := context.WithTimeout(r.Context(), constants.HealthCollectTimeout)
		defer cancel()
		report.Process = s.collectors.CollectAll(ctx, s.process)
	}

	writeJSON(w, http.StatusOK, report)
}
