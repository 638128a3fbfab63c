package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/xerrors"
)

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.mesh.Status(c.Request.Context())
	if err != nil {
		code := http.StatusServiceUnavailable
		if !xerrors.Is(err, xerrors.ErrClosed) {
			code = http.StatusInternalServerError
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	select {
	case <-s.mesh.Done():
		checks["mesh"] = "stopped"
		healthy = false
	default:
		checks["mesh"] = "ok"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()
	for name, check := range s.opts.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", clog.String("check", name), clog.Error(err))
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	state := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{"status": state, "mesh_id": s.mesh.MeshID(), "checks": checks})
}
