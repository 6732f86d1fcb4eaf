// Package api is the HTTP gateway in front of a feature backend: either an
// in-process runner.Service or a runner.Client talking to a remote runner.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"web/resalegeo/artifact"
	"web/resalegeo/join"
	"web/resalegeo/pipeline"
	"web/resalegeo/runner"
	"web/resalegeo/table"
)

// Backend is implemented by runner.Service and runner.Client.
type Backend interface {
	Enrich(ctx context.Context, rec table.Record) (*pipeline.Enrichment, error)
	Variations(ctx context.Context, rec table.Record) (*runner.VariationsResponse, error)
	ListRuns(ctx context.Context) ([]artifact.RunInfo, error)
	LoadRun(ctx context.Context, id string) (artifact.RunInfo, error)
	Status(ctx context.Context) (runner.Status, error)
	Clusters(ctx context.Context, entity string) (*runner.ClusterView, error)
}

// RequestObserver records handled requests; metrics.Metrics implements it.
type RequestObserver interface {
	ObserveRequest(operation, status string, elapsed time.Duration)
}

type Options struct {
	Observer RequestObserver
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	// Timeout bounds each backend call. Zero means no limit.
	Timeout time.Duration
}

type Server struct {
	backend Backend
	opts    Options
}

func NewServer(backend Backend, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{backend: backend, opts: opts}
}

// Router builds the gin engine with CORS, request metrics and every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors, s.observe)

	r.POST("/api/features", s.enrich)
	r.POST("/api/features/variations", s.variations)
	r.GET("/api/runs", s.listRuns)
	r.POST("/api/runs/:id/load", s.loadRun)
	r.GET("/api/model/status", s.status)
	r.GET("/api/clusters/:entity", s.clusters)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}
	return r
}

func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	elapsed := time.Since(start)
	if s.opts.Observer != nil && route != "/metrics" {
		s.opts.Observer.ObserveRequest(c.Request.Method+" "+route, strconv.Itoa(c.Writer.Status()), elapsed)
	}
	s.opts.Logger.Debug("request", "method", c.Request.Method, "route", route,
		"status", c.Writer.Status(), "elapsed", elapsed)
}

func (s *Server) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.opts.Timeout)
	}
	return context.WithCancel(c.Request.Context())
}

func (s *Server) bindRecord(c *gin.Context) (table.Record, bool) {
	var rec map[string]interface{}
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return nil, false
	}
	if len(rec) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: empty record"})
		return nil, false
	}
	return table.Record(rec), true
}

func (s *Server) enrich(c *gin.Context) {
	rec, ok := s.bindRecord(c)
	if !ok {
		return
	}
	ctx, cancel := s.context(c)
	defer cancel()

	out, err := s.backend.Enrich(ctx, rec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) variations(c *gin.Context) {
	rec, ok := s.bindRecord(c)
	if !ok {
		return
	}
	ctx, cancel := s.context(c)
	defer cancel()

	out, err := s.backend.Variations(ctx, rec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listRuns(c *gin.Context) {
	ctx, cancel := s.context(c)
	defer cancel()

	runs, err := s.backend.ListRuns(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []artifact.RunInfo{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) loadRun(c *gin.Context) {
	ctx, cancel := s.context(c)
	defer cancel()

	info, err := s.backend.LoadRun(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Run loaded successfully",
		"run":     info,
	})
}

func (s *Server) status(c *gin.Context) {
	ctx, cancel := s.context(c)
	defer cancel()

	st, err := s.backend.Status(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) clusters(c *gin.Context) {
	ctx, cancel := s.context(c)
	defer cancel()

	view, err := s.backend.Clusters(ctx, c.Param("entity"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) fail(c *gin.Context, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.opts.Logger.Error("request failed", "route", c.FullPath(), "status", code, "error", err)
	}
	c.JSON(code, gin.H{"error": errorMessage(err)})
}

// StatusCode maps backend errors, local or from gRPC, to HTTP statuses.
func StatusCode(err error) int {
	var missing *join.MissingCoordinateError
	switch {
	case errors.Is(err, artifact.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	case errors.Is(err, artifact.ErrRunNotFound), errors.Is(err, runner.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrGeocode):
		return http.StatusUnprocessableEntity
	case errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	st, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch st.Code() {
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}
