package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onepurp/Mutarjim-Pro/internal/store"
)

func (s *Server) handleImport(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to open upload: %v", err)})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to read upload: %v", err)})
		return
	}

	project, err := s.engine.ImportProject(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             project.ID,
		"title":          project.Title,
		"author":         project.Author,
		"total_segments": project.TotalSegments,
	})
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.engine.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.engine.State()})
}

func (s *Server) handlePause(c *gin.Context) {
	if err := s.engine.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.engine.State()})
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.engine.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.engine.State()})
}

func (s *Server) handleRetrySkipped(c *gin.Context) {
	n, err := s.engine.RetrySkipped(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

type updateProjectRequest struct {
	TranslatedTitle string `json:"translated_title"`
	TextAlignment   string `json:"text_alignment"`
	ForceAlignment  bool   `json:"force_alignment"`
}

func (s *Server) handleUpdateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.engine.UpdateProject(c.Request.Context(), req.TranslatedTitle, nil, req.TextAlignment, req.ForceAlignment)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNoProject) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleProject(c *gin.Context) {
	project, err := s.engine.Project(c.Request.Context())
	if errors.Is(err, store.ErrNoProject) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no project imported"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Blobs stay out of the JSON surface.
	project.SourceBytes = nil
	project.CoverBytes = nil
	c.JSON(http.StatusOK, project)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.engine.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleSegments(c *gin.Context) {
	segments, err := s.engine.Segments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, segments)
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Hub().RecentLogs())
}

func (s *Server) handleExport(c *gin.Context) {
	data, err := s.engine.Export(c.Request.Context())
	if errors.Is(err, store.ErrNoProject) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no project imported"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="translated.epub"`)
	c.Data(http.StatusOK, "application/epub+zip", data)
}

func (s *Server) handleBackup(c *gin.Context) {
	data, err := s.engine.Backup(c.Request.Context())
	if errors.Is(err, store.ErrNoProject) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no project imported"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="project.mtj"`)
	c.Data(http.StatusOK, "application/zip", data)
}

func (s *Server) handleRestore(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to open upload: %v", err)})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to read upload: %v", err)})
		return
	}

	if err := s.engine.Restore(c.Request.Context(), data); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
