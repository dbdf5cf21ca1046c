package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"rapidphoto/internal/model"
)

// statusForKind maps domain error kinds to HTTP status codes
func statusForKind(kind string) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindAccessDenied:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindInvalidTransition:
		return http.StatusConflict
	case model.KindRetryLimit:
		return http.StatusUnprocessableEntity
	case model.KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error as JSON using the domain kind mapping
func abortWithError(c *gin.Context, err error) {
	kind := model.KindOf(err)
	status := statusForKind(kind)

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := s.db.Health(); err != nil {
		checks["mongodb"] = err.Error()
		healthy = false
	} else {
		checks["mongodb"] = "ok"
	}

	if s.events != nil {
		if err := s.events.Ping(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if s.rabbit != nil {
		if err := s.rabbit.Health(); err != nil {
			checks["rabbitmq"] = err.Error()
			healthy = false
		} else {
			checks["rabbitmq"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}
