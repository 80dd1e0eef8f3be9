package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/skein-run/skein/pkg/api/types/errors"
	apirun "github.com/skein-run/skein/pkg/api/types/runs"
	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/run"
	"github.com/skein-run/skein/pkg/domain/session"
)

func OpenSessionHandler(runs run.Interface, sessions session.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")

		req := apirun.SessionRequest{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("malformed request body", err)
		}
		kind, err := domain.AsSessionKind(req.Type)
		if err != nil {
			return apierr.BadRequest(`"type" should be "jupyter"`, err)
		}

		ctx := c.Request().Context()
		r, err := runs.Get(ctx, runId)
		if err != nil {
			return runError(err)
		}
		if r.Session != nil {
			return apierr.Conflict(
				"run already has a session",
				apierr.WithAdvice("Close the current session first"),
			)
		}

		path, err := sessions.Open(ctx, r, kind, req.Image)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return apierr.BadRequest(err.Error(), err)
			}
			if errors.Is(err, domain.ErrSession) {
				return apierr.ServiceUnavailable("please retry", err)
			}
			return runError(err)
		}

		return c.JSON(http.StatusOK, apirun.SessionResponse{Path: path})
	}
}

func CloseSessionHandler(sessions session.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")
		ctx := c.Request().Context()

		if err := sessions.Close(ctx, runId); err != nil {
			if errors.Is(err, domain.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.ServiceUnavailable("please retry", err)
		}

		c.Response().WriteHeader(http.StatusNoContent)
		return nil
	}
}
