package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// streamEventsHandler serves the live SSE progress stream for a job.
// Ownership is checked before the subscription is registered; after that the
// connection stays open until the client disconnects, the subscription is
// closed server-side, or the broker's idle timeout fires.
func (s *Server) streamEventsHandler(c *gin.Context) {
	jobID := c.Param("id")

	// Resolve ownership up front so an unauthorized caller never holds a
	// subscription
	job, _, err := s.uc.GetJob(c.Request.Context(), jobID, ownerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	sub := s.broker.Subscribe(job.ID.Hex())
	defer s.broker.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	log.Debug().Str("jobID", jobID).Str("subscription", sub.ID).Msg("SSE stream opened")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event, ok := <-sub.Events():
			if !ok {
				// Evicted, idle-timed-out, or closed by an operator
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		}
	})

	log.Debug().Str("jobID", jobID).Str("subscription", sub.ID).Msg("SSE stream closed")
}

// recentEventsHandler replays the tail of a job's event history so a client
// that reconnected with a sequence gap can catch up without polling state
func (s *Server) recentEventsHandler(c *gin.Context) {
	jobID := c.Param("id")

	job, _, err := s.uc.GetJob(c.Request.Context(), jobID, ownerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if s.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event history is not enabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	events, err := s.events.Recent(c.Request.Context(), job.ID.Hex(), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event history unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobId": job.ID.Hex(), "events": events})
}
