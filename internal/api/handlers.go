package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/upload"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/apperr"
)

func (s *Server) handleCreateUpload(c *gin.Context) {
	owner, err := ownerID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req upload.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	sess, err := s.uploads.Create(c.Request.Context(), owner, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type signPartRequest struct {
	Key        string `json:"key"`
	UploadID   string `json:"upload_id"`
	PartNumber int32  `json:"part_number"`
}

func (s *Server) handleSignPart(c *gin.Context) {
	var req signPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	url, err := s.uploads.SignPart(c.Request.Context(), req.Key, req.UploadID, req.PartNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "part_number": req.PartNumber})
}

// handleProxyPart relays the raw part body for clients that cannot reach the
// store directly. Session coordinates travel as query parameters because the
// body is the part payload itself.
func (s *Server) handleProxyPart(c *gin.Context) {
	key := c.Query("key")
	uploadID := c.Query("upload_id")
	partNumber, err := strconv.ParseInt(c.Query("part_number"), 10, 32)
	if err != nil {
		writeError(c, apperr.New(apperr.KindValidation, "part_number must be an integer"))
		return
	}
	etag, err := s.uploads.ProxyPart(c.Request.Context(), key, uploadID, int32(partNumber),
		c.Request.Body, c.Request.ContentLength)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"etag": etag, "part_number": partNumber})
}

func (s *Server) handleCompleteUpload(c *gin.Context) {
	owner, err := ownerID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req upload.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	photo, err := s.uploads.Complete(c.Request.Context(), owner, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, photo)
}

type abortRequest struct {
	Key      string `json:"key"`
	UploadID string `json:"upload_id"`
}

func (s *Server) handleAbortUpload(c *gin.Context) {
	var req abortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if err := s.uploads.Abort(c.Request.Context(), req.Key, req.UploadID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetPhoto(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperr.New(apperr.KindValidation, "photo id must be a UUID"))
		return
	}
	photo, err := s.photos.Photo(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNoRow) {
			err = apperr.New(apperr.KindNotFound, "photo not found")
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, photo)
}

func (s *Server) handleQueueStatus(c *gin.Context) {
	st := s.jobs.Status()
	c.JSON(http.StatusOK, gin.H{
		"queued":    st.Queued,
		"active":    st.Active,
		"completed": st.Completed,
		"failed":    st.Failed,
		"ceiling":   s.jobs.Ceiling(),
	})
}

type regenerateRequest struct {
	Limit  int  `json:"limit"`
	DryRun bool `json:"dry_run"`
}

func (s *Server) handleRegenerate(c *gin.Context) {
	var req regenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
			return
		}
	}
	stats, err := s.regen.Run(c.Request.Context(), req.Limit, req.DryRun)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindInternal, "regeneration pass failed", err))
		return
	}
	c.JSON(http.StatusOK, stats)
}
