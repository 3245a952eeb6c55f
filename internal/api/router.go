// Package api exposes a Session over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ivlev/desktopdoc/internal/media"
	"github.com/ivlev/desktopdoc/internal/session"
	"github.com/ivlev/desktopdoc/internal/timeline"
)

// ingestTimeout bounds one ingestion request; probing large videos can be slow.
const ingestTimeout = 2 * time.Minute

type handler struct {
	s      *session.Session
	logger zerolog.Logger
}

// NewRouter builds the control API for s.
func NewRouter(s *session.Session, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	h := &handler{s: s, logger: logger}

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/api/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.State())
	})

	r.GET("/api/library", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Library())
	})
	r.POST("/api/library", h.ingest)
	r.DELETE("/api/library/:id", h.removeItem)

	r.GET("/api/timeline", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.State().Entries)
	})
	r.POST("/api/timeline", h.place)
	r.PATCH("/api/timeline/:id", h.editEntry)
	r.DELETE("/api/timeline/:id", h.removeEntry)
	r.POST("/api/timeline/:id/move", h.moveEntry)

	r.POST("/api/playback/play", h.transport(s.Play))
	r.POST("/api/playback/pause", h.transport(s.Pause))
	r.POST("/api/playback/toggle", h.transport(s.Toggle))
	r.POST("/api/playback/seek", h.seek)

	r.PUT("/api/settings", h.settings)

	r.POST("/api/record/start", h.startRecording)
	r.POST("/api/record/stop", h.stopRecording)
	r.GET("/api/records", func(c *gin.Context) {
		files, err := s.Recordings()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list records"})
			return
		}
		if files == nil {
			c.JSON(http.StatusOK, []struct{}{})
			return
		}
		c.JSON(http.StatusOK, files)
	})

	r.GET("/api/frame.png", func(c *gin.Context) {
		c.Header("Content-Type", "image/png")
		c.Header("Cache-Control", "no-store")
		if err := s.WriteFrame(c.Writer); err != nil {
			h.logger.Warn().Err(err).Msg("frame export failed")
		}
	})

	return r
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// fail maps session errors onto status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, timeline.ErrEntryNotFound), errors.Is(err, media.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrRecordingActive):
		status = http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type ingestRequest struct {
	Paths []string `json:"paths" binding:"required"`
}

func (h *handler) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ingestTimeout)
	defer cancel()

	items, errs := h.s.Ingest(ctx, req.Paths)
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	if items == nil {
		items = []*media.LibraryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "errors": msgs})
}

func (h *handler) removeItem(c *gin.Context) {
	prune, _ := strconv.ParseBool(c.Query("prune"))
	if err := h.s.RemoveItem(c.Param("id"), prune); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type placeRequest struct {
	ItemID string `json:"itemId" binding:"required"`
}

func (h *handler) place(c *gin.Context) {
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	e, err := h.s.Place(req.ItemID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

type entryEdit struct {
	Duration *float64 `json:"duration"`
	Caption  *string  `json:"caption"`
}

func (h *handler) editEntry(c *gin.Context) {
	var req entryEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	id := c.Param("id")
	resp := gin.H{"id": id}
	if req.Duration != nil {
		d, err := h.s.SetImageDuration(id, *req.Duration)
		if err != nil {
			fail(c, err)
			return
		}
		resp["duration"] = d
	}
	if req.Caption != nil {
		if err := h.s.SetCaption(id, *req.Caption); err != nil {
			fail(c, err)
			return
		}
		resp["caption"] = *req.Caption
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) removeEntry(c *gin.Context) {
	if err := h.s.RemoveEntry(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type moveRequest struct {
	Target *int `json:"target" binding:"required"`
}

func (h *handler) moveEntry(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.s.Reorder(c.Param("id"), *req.Target); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.s.State().Entries)
}

func (h *handler) transport(op func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		op()
		c.JSON(http.StatusOK, h.s.State())
	}
}

type seekRequest struct {
	Time *float64 `json:"time" binding:"required"`
}

func (h *handler) seek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	h.s.Seek(*req.Time)
	c.JSON(http.StatusOK, h.s.State())
}

func (h *handler) settings(c *gin.Context) {
	var req session.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.s.ApplySettings(req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.s.State())
}

func (h *handler) startRecording(c *gin.Context) {
	if err := h.s.StartRecording(); err != nil {
		h.logger.Error().Err(err).Msg("recording start failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start recording"})
		return
	}
	c.JSON(http.StatusOK, h.s.State())
}

func (h *handler) stopRecording(c *gin.Context) {
	art, err := h.s.StopRecording()
	if err != nil {
		h.logger.Error().Err(err).Msg("recording finalize failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if art == nil {
		c.JSON(http.StatusOK, gin.H{"status": "idle"})
		return
	}
	c.JSON(http.StatusOK, art)
}
