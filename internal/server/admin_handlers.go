package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// reconcileHandler triggers a stalled-upload sweep immediately instead of
// waiting for the next tick
func (s *Server) reconcileHandler(c *gin.Context) {
	result, err := s.rec.Sweep(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Manual reconcile sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// reconcileStatsHandler reports how many photos a sweep would currently fail
func (s *Server) reconcileStatsHandler(c *gin.Context) {
	count, err := s.rec.Stats(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to count stalled photos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stalled": count})
}

// closeStreamsHandler force-disconnects every subscriber of a job's stream
func (s *Server) closeStreamsHandler(c *gin.Context) {
	jobID := c.Param("id")

	count := s.broker.ConnectionCount(jobID)
	s.broker.CloseAll(jobID)

	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "closed": count})
}
