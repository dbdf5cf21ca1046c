package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rapidphoto/internal/model"
)

// CreateJobRequest is the batch creation payload
type CreateJobRequest struct {
	Photos []model.PhotoSpec `json:"photos" binding:"required"`
}

// FailPhotoRequest carries the client-reported failure reason
type FailPhotoRequest struct {
	ErrorMessage string `json:"errorMessage"`
}

func (s *Server) createJobHandler(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := s.uc.CreateJob(c.Request.Context(), ownerID(c), req.Photos)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) listJobsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := s.uc.ListJobs(c.Request.Context(), ownerID(c), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJobHandler(c *gin.Context) {
	job, photos, err := s.uc.GetJob(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":     job,
		"photos":  photos,
		"settled": job.Settled(),
	})
}

func (s *Server) completePhotoHandler(c *gin.Context) {
	err := s.uc.ReportCompletion(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Photo completed"})
}

func (s *Server) failPhotoHandler(c *gin.Context) {
	var req FailPhotoRequest
	// Body is optional; a bare failure report is accepted without a reason
	_ = c.ShouldBindJSON(&req)

	err := s.uc.ReportFailure(c.Request.Context(), c.Param("id"), ownerID(c), req.ErrorMessage)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Photo failure recorded"})
}

func (s *Server) retryPhotoHandler(c *gin.Context) {
	result, err := s.uc.RetryPhoto(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) downloadPhotoHandler(c *gin.Context) {
	url, err := s.uc.DownloadURL(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"downloadUrl": url})
}
