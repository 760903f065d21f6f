package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/metrics"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
	"github.com/gorilla/websocket"
)

// handleStream upgrades to a WebSocket on which every binary frame is one heartbeat
// for the connection named in the path.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.tracker.Status(id); err != nil {
		s.writeError(w, err)
		return
	}

	if !s.reserveStream() {
		s.logger.Warn().Str("connection_id", id).Int64("max_streams", s.maxStreams).Msg("At heartbeat stream limit, rejecting stream")
		writeErrorCode(w, http.StatusTooManyRequests, constants.ErrCodeStreamLimit,
			fmt.Sprintf("at most %d heartbeat streams may be open", s.maxStreams))
		return
	}
	defer s.openStreams.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Warn().Err(err).Str("connection_id", id).Msg("Heartbeat stream upgrade failed")
		return
	}
	if !s.trackStream(conn) {
		closeStream(conn, websocket.CloseGoingAway, "server shutting down")
		conn.Close()
		return
	}
	defer s.untrackStream(conn)

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	s.logger.Info().Str("connection_id", id).Msg("Heartbeat stream opened")
	s.serveStream(id, conn)
	s.logger.Info().Str("connection_id", id).Msg("Heartbeat stream closed")
}

func (s *Server) serveStream(id string, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go s.watchStream(id, conn, done)

	// Frames over the limit are answered with 1009 by the websocket library itself.
	conn.SetReadLimit(constants.MaxHeartbeatPayload)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				s.metrics.HeartbeatReceived(metrics.SourceWebSocket, metrics.ResultMalformed)
				s.logger.Debug().Str("connection_id", id).Msg("Heartbeat frame too large, stream closed")
			case !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.logger.Debug().Err(err).Str("connection_id", id).Msg("Heartbeat stream read failed")
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			s.metrics.HeartbeatReceived(metrics.SourceWebSocket, metrics.ResultMalformed)
			closeStream(conn, websocket.CloseUnsupportedData, "heartbeats must be binary frames")
			return
		}

		err = s.recordHeartbeat(metrics.SourceWebSocket, id, data)
		switch {
		case err == nil:
		case errors.Is(err, heartbeat.ErrMalformed):
			closeStream(conn, websocket.CloseUnsupportedData, "malformed heartbeat")
			return
		case errors.Is(err, tracker.ErrUnknownConnection):
			closeStream(conn, websocket.CloseNormalClosure, "connection no longer tracked")
			return
		default:
			closeStream(conn, websocket.CloseInternalServerErr, "heartbeat failed")
			return
		}
	}
}

// watchStream closes the stream once its connection is no longer tracked.
func (s *Server) watchStream(id string, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.streamCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := s.tracker.Status(id); err == nil {
				continue
			}
			closeStream(conn, websocket.CloseNormalClosure, "connection no longer tracked")
			// Unblock the reader if the peer never answers the close frame.
			_ = conn.SetReadDeadline(time.Now().Add(constants.StreamCloseGrace))
			return
		}
	}
}

// reserveStream claims a slot against maxStreams.
func (s *Server) reserveStream() bool {
	n := s.openStreams.Add(1)
	if s.maxStreams > 0 && n > s.maxStreams {
		s.openStreams.Add(-1)
		return false
	}
	return true
}

func (s *Server) trackStream(conn *websocket.Conn) bool {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()

	if s.streamsClosed {
		return false
	}
	s.streams[conn] = struct{}{}
	return true
}

func (s *Server) untrackStream(conn *websocket.Conn) {
	s.streamsMu.Lock()
	delete(s.streams, conn)
	s.streamsMu.Unlock()
}

// Close ends every open heartbeat stream with a going-away close frame. Streams opened
// afterwards are closed right after the upgrade. Plain HTTP requests are unaffected.
func (s *Server) Close() {
	s.streamsMu.Lock()
	s.streamsClosed = true
	conns := make([]*websocket.Conn, 0, len(s.streams))
	for conn := range s.streams {
		conns = append(conns, conn)
	}
	s.streamsMu.Unlock()

	for _, conn := range conns {
		closeStream(conn, websocket.CloseGoingAway, "server shutting down")
		conn.Close()
	}
	if len(conns) > 0 {
		s.logger.Info().Int("streams", len(conns)).Msg("Closed open heartbeat streams")
	}
}

// checkOrigin accepts requests without an Origin header, same-origin requests and the
// configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins.Has("*") || s.allowedOrigins.Has(origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(constants.StreamWriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
