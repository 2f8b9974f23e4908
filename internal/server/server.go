package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/services/configure"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
	"github.com/joseph-ayodele/control-mapper/internal/services/upload"
)

type UploadService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*upload.Result, error)
}

type ConfigureService interface {
	Configure(ctx context.Context, req configure.Request) (*configure.Result, error)
}

type MappingService interface {
	Start(ctx context.Context, req mapsvc.StartRequest) (*mapsvc.StartResult, error)
	JobStatus(ctx context.Context, jobID string) (*mapsvc.JobView, error)
	BatchStatus(ctx context.Context, batchID string) (*mapsvc.BatchView, error)
	CancelJob(ctx context.Context, jobID string) (*mapsvc.CancelResult, error)
	ResolveDownload(ctx context.Context, jobID, kind string) (*mapsvc.Download, error)
	BatchZip(ctx context.Context, batchID string) (*mapsvc.BatchArchive, error)
}

// Catalog is the read side of the check catalog served over HTTP.
type Catalog interface {
	ListProviders() ([]catalog.Provider, error)
	ProviderExists(provider string) bool
	ProviderNames() []string
	GetChecks(provider string, f catalog.Filter) (int, []catalog.Check, error)
	GetCheck(provider, checkID string) (*catalog.Check, error)
	DebugInfo() map[string]any
}

// ToolHealth reports whether the external mapping tool can be run.
type ToolHealth interface {
	HealthCheck(ctx context.Context) bool
}

type Deps struct {
	Uploads   UploadService
	Configure ConfigureService
	Mapping   MappingService
	Catalog   Catalog
	Tool      ToolHealth

	// MaxUploadSize caps request bodies, plus room for multipart framing.
	// Zero leaves bodies unbounded.
	MaxUploadSize int64
}

// Server is the HTTP surface of the mapper.
type Server struct {
	deps   Deps
	logger *slog.Logger
	echo   *echo.Echo
}

func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger, echo: echo.New()}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(s.requestContext)
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"duration_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.logger.Warn("http.request", append(attrs, "err", v.Error)...)
				return nil
			}
			s.logger.Info("http.request", attrs...)
			return nil
		},
	}))
	if deps.MaxUploadSize > 0 {
		s.echo.Use(middleware.BodyLimit(strconv.FormatInt(deps.MaxUploadSize+multipartOverhead, 10)))
	}
	s.routes()
	return s
}

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead = 64 << 10

func (s *Server) routes() {
	e := s.echo
	e.POST("/upload", s.upload)
	e.POST("/configure", s.configure)
	e.POST("/map", s.startMapping)
	e.GET("/status/:job_id", s.jobStatus)
	e.GET("/batch/:batch_id/status", s.batchStatus)
	e.POST("/jobs/:job_id/cancel", s.cancelJob)
	e.GET("/download/batch/:batch_id/zip", s.downloadBatch)
	e.GET("/download/:job_id/:file_type", s.download)
	e.GET("/providers", s.listProviders)
	e.GET("/checks/:provider", s.listChecks)
	e.GET("/checks/:provider/:check_id", s.getCheck)
	e.GET("/debug/providers", s.debugProviders)
	e.GET("/health", s.health)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	s.logger.Info("http serving", "addr", addr)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestContext carries the request id and a tagged logger on the request context.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := common.WithRequestID(c.Request().Context(), rid)
		ctx = common.WithLogger(ctx, s.logger.With("request_id", rid))
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()
	available := s.deps.Tool != nil && s.deps.Tool.HealthCheck(ctx)
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "healthy",
		"claude_available": available,
	})
}
