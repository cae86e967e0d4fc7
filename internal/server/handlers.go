package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"smugdups/internal/dups"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) probeHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) albumsHandler(c echo.Context) error {
	albums, err := s.host.ListAlbums(c.Request().Context())
	if err != nil {
		return s.fail(c, "albumsHandler", err)
	}
	resp := make([]albumResponse, 0, len(albums))
	for _, a := range albums {
		resp = append(resp, toAlbumResponse(a))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) statusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, toStatusResponse(s.runner.Status()))
}

func (s *Server) scanHandler(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	runID, err := s.runner.StartScan(s.jobs, req.AlbumIDs)
	if err != nil {
		return s.fail(c, "scanHandler", err)
	}
	return c.JSON(http.StatusAccepted, jobResponse{RunID: runID})
}

func (s *Server) cancelHandler(c echo.Context) error {
	if !s.runner.Cancel() {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no job is running"})
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) groupsHandler(c echo.Context) error {
	groups := s.runner.Groups()
	savings := dups.CalculateSavings(groups)
	resp := groupsResponse{
		Groups:      make([]groupResponse, 0, len(groups)),
		Duplicates:  savings.Duplicates,
		Reclaimable: savings.Human(),
	}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, toGroupResponse(g))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) keeperHandler(c echo.Context) error {
	var req keeperRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	hash := c.Param("hash")
	if err := s.runner.SetKeeper(hash, req.ImageID); err != nil {
		return s.fail(c, "keeperHandler", err)
	}
	g, _ := s.runner.Group(hash)
	return c.JSON(http.StatusOK, toGroupResponse(g))
}

func (s *Server) thumbnailHandler(c echo.Context) error {
	g, ok := s.runner.Group(c.Param("hash"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown group"})
	}
	img := g.Image(c.Param("id"))
	if img == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "image is not in group"})
	}
	path, err := s.thumbs.Path(c.Request().Context(), img)
	if err != nil {
		return s.fail(c, "thumbnailHandler", err)
	}
	return c.File(path)
}

func (s *Server) resolveHandler(c echo.Context) error {
	var req resolutionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	decisions := make([]dups.ResolveDecision, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		decisions = append(decisions, dups.ResolveDecision{
			Hash:      d.Hash,
			Decision:  dups.Decision(d.Decision),
			Confirmed: d.Confirmed,
		})
	}
	runID, err := s.runner.StartResolve(s.jobs, decisions)
	if err != nil {
		return s.fail(c, "resolveHandler", err)
	}
	return c.JSON(http.StatusAccepted, jobResponse{RunID: runID})
}

func (s *Server) reportHandler(c echo.Context) error {
	report := s.runner.LastReport()
	if report == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no resolve has finished"})
	}
	return c.JSON(http.StatusOK, toReportResponse(report))
}

// fail maps err to a status code and writes it as JSON.
func (s *Server) fail(c echo.Context, handler string, err error) error {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, dups.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, dups.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dups.ErrAuth):
		status = http.StatusUnauthorized
	case dups.IsTransient(err):
		status = http.StatusBadGateway
	}
	if status != http.StatusConflict {
		s.logger.Warn(handler+": request failed", "status", status, "error", err)
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}
