package api

import (
	"errors"
	"net/http"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/utils"
	"gopkg.in/yaml.v3"
)

// ConfigContentType is the media type of served configuration documents.
const ConfigContentType = "application/yaml"

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeConfig(w, s.settings.Current())
}

// handleConfigReload re-reads the configuration file and answers with the effective
// configuration. Settings that need a restart keep their running values.
func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	config, err := s.settings.Reload()
	if err != nil {
		message := "failed to reload configuration: " + err.Error()
		if errors.Is(err, utils.ErrNoConfigFile) {
			message = err.Error()
		}
		writeErrorCode(w, http.StatusInternalServerError, constants.ErrCodeGenericFail, message)
		return
	}

	s.logger.Info().Msg("Configuration reloaded through the Status API")
	s.writeConfig(w, config)
}

func (s *Server) writeConfig(w http.ResponseWriter, config utils.Config) {
	body, err := yaml.Marshal(config.Redacted())
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", ConfigContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
