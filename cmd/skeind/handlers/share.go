package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apierr "github.com/skein-run/skein/pkg/api/types/errors"
	apirun "github.com/skein-run/skein/pkg/api/types/runs"
	"github.com/skein-run/skein/pkg/domain/run"
)

func ShareRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")

		req := apirun.ShareRequest{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("malformed request body", err)
		}
		if req.UserId == "" {
			return apierr.BadRequest(`"user_id" is required`, nil)
		}

		var validUntil *time.Time
		if req.ValidUntil != nil {
			t := req.ValidUntil.Time()
			validUntil = &t
		}

		ctx := c.Request().Context()
		if err := runs.Share(ctx, runId, req.UserId, req.Message, validUntil); err != nil {
			return runError(err)
		}

		c.Response().WriteHeader(http.StatusNoContent)
		return nil
	}
}

func UnshareRunHandler(runs run.Interface, paramUserId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")
		userId := c.Param(paramUserId)
		ctx := c.Request().Context()

		if err := runs.Unshare(ctx, runId, userId); err != nil {
			return runError(err)
		}

		c.Response().WriteHeader(http.StatusNoContent)
		return nil
	}
}
