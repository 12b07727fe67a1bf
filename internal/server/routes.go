package server

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/ffcrop/internal/cropdetect"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

// RunRequest is the body of POST /api/runs
type RunRequest struct {
	Input     string `json:"input" binding:"required"`
	Output    string `json:"output"`
	Strategy  string `json:"strategy"`
	Scan      string `json:"scan"`
	DryRun    bool   `json:"dry_run"`
	Overwrite bool   `json:"overwrite"`
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.logger))

	api := r.Group("/api", RequireLocalOrigin())
	{
		api.GET("/health", s.health)

		runs := api.Group("/runs")
		{
			runs.POST("", RequireJSON(), s.submitRun)
			runs.GET("", s.listRuns)
			runs.GET("/:id", s.getRun)
		}

		api.GET("/events", s.hub.ServeWS)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) submitRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, cErrors.ValidationError("submit_run", "%v", err))
		return
	}

	opts := pipeline.Options{
		Input:     req.Input,
		Output:    req.Output,
		DryRun:    req.DryRun,
		Overwrite: req.Overwrite,
	}
	if req.Strategy != "" {
		strategy, err := pipeline.ParseStrategy(req.Strategy)
		if err != nil {
			RespondWithError(c, err)
			return
		}
		opts.Strategy = strategy
	}
	if req.Scan != "" {
		scan, err := cropdetect.ParseScanMode(req.Scan)
		if err != nil {
			RespondWithError(c, err)
			return
		}
		opts.Scan = scan
	}

	if opts.Output != "" && !opts.Overwrite {
		if _, err := os.Stat(opts.Output); err == nil {
			RespondWithError(c, cErrors.ValidationError("submit_run", "output %s already exists; set overwrite to replace it", opts.Output))
			return
		}
	}

	job, err := s.queue.Submit(opts)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		RespondWithError(c, cErrors.ValidationError("list_runs", "invalid limit %q", c.Query("limit")))
		return
	}

	if s.store == nil {
		jobs := s.queue.List()
		if len(jobs) > limit {
			jobs = jobs[:limit]
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
		return
	}

	runs, err := s.store.Recent(c.Request.Context(), limit)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "jobs": s.queue.List()})
}

func (s *Server) getRun(c *gin.Context) {
	id := c.Param("id")

	if job, ok := s.queue.Get(id); ok {
		c.JSON(http.StatusOK, job)
		return
	}

	if s.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: ErrorDetails{Code: "not_found", Message: "run not found"}})
		return
	}

	run, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, Job{ID: run.ID, Input: run.Input, Strategy: run.Strategy, Scan: run.Scan, DryRun: run.DryRun, Status: run.State, QueuedAt: run.StartedAt, Result: run})
}
