package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/pithecene-io/fissure/metrics"
)

// Dockerflow health endpoints. The load balancer polls
// /__lbheartbeat__ to see that the process is up; monitoring polls
// /__heartbeat__ for a real dependency check.

// handleLBHeartbeat always succeeds while the process is serving.
func (s *Server) handleLBHeartbeat(c echo.Context) error {
	metrics.HealthRequests.WithLabelValues("lbheartbeat").Inc()
	return c.JSON(http.StatusOK, map[string]any{})
}

// handleHeartbeat reports the latest heartbeat sweep: 200 when no
// component reported a problem, 503 otherwise.
func (s *Server) handleHeartbeat(c echo.Context) error {
	metrics.HealthRequests.WithLabelValues("heartbeat").Inc()

	state := s.health.Sweep(c.Request().Context())
	status := http.StatusOK
	if !state.Healthy() {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, state)
}

// handleVersion serves the deploy metadata blob.
func (s *Server) handleVersion(c echo.Context) error {
	metrics.HealthRequests.WithLabelValues("version").Inc()
	return c.JSONBlob(http.StatusOK, s.version)
}

// LoadVersion reads version.json from baseDir. A missing or unreadable
// file yields an empty JSON object; deploys that skip the file still
// get a valid /__version__ response.
func LoadVersion(baseDir string) []byte {
	body, err := os.ReadFile(filepath.Join(baseDir, "version.json"))
	if err != nil || !json.Valid(body) {
		return []byte("{}")
	}
	return body
}
