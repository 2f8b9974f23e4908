package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/export"
	"github.com/joseph-ayodele/control-mapper/internal/services/configure"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
)

func (s *Server) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return common.InvalidInput("No filename provided")
	}
	f, err := fh.Open()
	if err != nil {
		return common.NewAppError("READ_ERROR", "Failed to read upload", err)
	}
	defer f.Close()

	res, err := s.deps.Uploads.Upload(c.Request().Context(), fh.Filename, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) configure(c echo.Context) error {
	var req configure.Request
	if err := c.Bind(&req); err != nil {
		return common.InvalidInputf("Invalid request body: %v", err)
	}
	res, err := s.deps.Configure.Configure(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) startMapping(c echo.Context) error {
	var req mapsvc.StartRequest
	if err := c.Bind(&req); err != nil {
		return common.InvalidInputf("Invalid request body: %v", err)
	}
	res, err := s.deps.Mapping.Start(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, res)
}

func (s *Server) jobStatus(c echo.Context) error {
	v, err := s.deps.Mapping.JobStatus(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) batchStatus(c echo.Context) error {
	v, err := s.deps.Mapping.BatchStatus(c.Request().Context(), c.Param("batch_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) cancelJob(c echo.Context) error {
	v, err := s.deps.Mapping.CancelJob(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) download(c echo.Context) error {
	d, err := s.deps.Mapping.ResolveDownload(c.Request().Context(), c.Param("job_id"), c.Param("file_type"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, d.ContentType)
	return c.Attachment(d.Path, d.Filename)
}

func (s *Server) downloadBatch(c echo.Context) error {
	a, err := s.deps.Mapping.BatchZip(c.Request().Context(), c.Param("batch_id"))
	if err != nil {
		return err
	}
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "application/zip")
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", a.Filename))
	c.Response().WriteHeader(http.StatusOK)

	n, err := export.WriteBatchZip(c.Response(), a.Entries)
	if err != nil {
		common.LoggerFromContext(c.Request().Context(), s.logger).
			Error("download.zip.failed", "batch_id", c.Param("batch_id"), "written", n, "err", err)
		return nil
	}
	s.logger.Info("download.zip.ok", "batch_id", c.Param("batch_id"), "files", n)
	return nil
}

func (s *Server) listProviders(c echo.Context) error {
	ps, err := s.deps.Catalog.ListProviders()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"providers": ps})
}

func (s *Server) requireProvider(provider string) error {
	if s.deps.Catalog.ProviderExists(provider) {
		return nil
	}
	names := s.deps.Catalog.ProviderNames()
	return common.NotFound(fmt.Sprintf("Provider '%s' not found. Available: %s", provider, strings.Join(names, ", ")))
}

func (s *Server) listChecks(c echo.Context) error {
	provider := c.Param("provider")
	if err := s.requireProvider(provider); err != nil {
		return err
	}

	f := catalog.Filter{
		Search:  c.QueryParam("search"),
		Service: c.QueryParam("service"),
		Limit:   catalog.DefaultLimit,
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return common.InvalidInput("limit must be between 1 and 1000")
		}
		f.Limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return common.InvalidInput("offset must be >= 0")
		}
		f.Offset = n
	}

	total, checks, err := s.deps.Catalog.GetChecks(provider, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"provider": provider,
		"total":    total,
		"checks":   checks,
	})
}

func (s *Server) getCheck(c echo.Context) error {
	provider := c.Param("provider")
	if err := s.requireProvider(provider); err != nil {
		return err
	}
	ch, err := s.deps.Catalog.GetCheck(provider, c.Param("check_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ch)
}

func (s *Server) debugProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Catalog.DebugInfo())
}
