// Package api exposes the upload and pipeline endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/maintenance"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/queue"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/upload"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/apperr"
)

// Uploads is the slice of upload.Orchestrator the handlers need.
type Uploads interface {
	Create(ctx context.Context, ownerID uuid.UUID, req upload.CreateRequest) (*upload.CreateSession, error)
	SignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error)
	ProxyPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, length int64) (string, error)
	Complete(ctx context.Context, ownerID uuid.UUID, req upload.CompleteRequest) (*db.Photo, error)
	Abort(ctx context.Context, key, uploadID string) error
}

// PhotoReader serves photo lookups. *db.Store satisfies it.
type PhotoReader interface {
	Photo(ctx context.Context, id uuid.UUID) (*db.Photo, error)
}

// QueueStatus reports queue state. *queue.Queue satisfies it.
type QueueStatus interface {
	Status() queue.Snapshot
	Ceiling() int
}

// Regenerator runs a thumbnail regeneration pass.
type Regenerator interface {
	Run(ctx context.Context, limit int, dryRun bool) (maintenance.RunStats, error)
}

type Server struct {
	uploads Uploads
	photos  PhotoReader
	jobs    QueueStatus
	regen   Regenerator
	logger  *slog.Logger
	srv     *http.Server
}

func NewServer(addr string, uploads Uploads, photos PhotoReader, jobs QueueStatus, regen Regenerator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{uploads: uploads, photos: photos, jobs: jobs, regen: regen, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	api := r.Group("/api")
	api.POST("/uploads", s.handleCreateUpload)
	api.POST("/uploads/parts/sign", s.handleSignPart)
	api.PUT("/uploads/parts", s.handleProxyPart)
	api.POST("/uploads/complete", s.handleCompleteUpload)
	api.POST("/uploads/abort", s.handleAbortUpload)
	api.GET("/photos/:id", s.handleGetPhoto)
	api.GET("/queue/status", s.handleQueueStatus)
	api.POST("/admin/thumbnails/regenerate", s.handleRegenerate)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindIncompleteParts:
		status = http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindSourceNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindTransientStore, apperr.KindStoreCompletion:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"error": apperr.MessageOf(err),
		"kind":  string(apperr.KindOf(err)),
	})
}

// ownerID reads the caller identity the gateway injects upstream.
func ownerID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader("X-Owner-ID")
	if raw == "" {
		return uuid.Nil, apperr.New(apperr.KindValidation, "X-Owner-ID header is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindValidation, "X-Owner-ID must be a UUID")
	}
	return id, nil
}
