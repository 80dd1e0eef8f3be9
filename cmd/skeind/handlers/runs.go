package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/skein-run/skein/pkg/api/types/errors"
	apirun "github.com/skein-run/skein/pkg/api/types/runs"
	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/run"
	"github.com/skein-run/skein/pkg/utils/slices"
	kstrings "github.com/skein-run/skein/pkg/utils/strings"
)

// runError maps manager errors onto HTTP error responses. Handlers
// call it after their operation-specific mappings did not match.
func runError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrMissing):
		return apierr.NotFound()
	case errors.Is(err, domain.ErrRunDeleted):
		return apierr.Gone("run is deleted", apierr.WithError(err))
	case errors.Is(err, domain.ErrConflict):
		return apierr.Conflict("prohibited operation", apierr.WithError(err))
	case errors.Is(err, domain.ErrValidation):
		return apierr.BadRequest(err.Error(), err)
	case errors.Is(err, domain.ErrExternal):
		return apierr.ServiceUnavailable("please retry", err)
	default:
		return apierr.InternalServerError(err)
	}
}

func CreateRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		owner := c.QueryParam("user")
		if owner == "" {
			return apierr.BadRequest(`query parameter "user" is required`, nil)
		}

		req := apirun.CreateRequest{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("malformed request body", err)
		}
		if _, err := domain.AsEngineKind(string(req.Spec.Engine)); err != nil {
			return apierr.BadRequest(
				`"workflow_type" should be one of "cwl", "yadage", "serial" or "snakemake"`,
				err,
			)
		}

		ctx := c.Request().Context()
		r, err := runs.Create(ctx, owner, req.Name, req.Spec, req.GitRef)
		if err != nil {
			return runError(err)
		}

		return c.JSON(http.StatusCreated, apirun.ComposeDetail(r))
	}
}

func ListRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		userId := c.QueryParam("user")
		if userId == "" {
			return apierr.BadRequest(`query parameter "user" is required`, nil)
		}

		ctx := c.Request().Context()
		found, err := runs.List(ctx, userId)
		if err != nil {
			return runError(err)
		}

		resp := slices.Map(found, func(r domain.Run) apirun.Summary {
			return apirun.ComposeSummary(r.RunBody)
		})
		return c.JSON(http.StatusOK, resp)
	}
}

func GetRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")
		ctx := c.Request().Context()

		r, err := runs.Get(ctx, runId)
		if err != nil {
			return runError(err)
		}

		return c.JSON(http.StatusOK, apirun.ComposeDetail(r))
	}
}

func StartRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")

		req := apirun.StartRequest{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("malformed request body", err)
		}

		ctx := c.Request().Context()
		if err := runs.Start(ctx, runId, domain.StartOptions{
			InputParameters:    req.InputParameters,
			OperationalOptions: req.OperationalOptions,
			Restart:            req.Restart,
		}); err != nil {
			return runError(err)
		}

		r, err := runs.Get(ctx, runId)
		if err != nil {
			return runError(err)
		}
		return c.JSON(http.StatusOK, apirun.ComposeDetail(r))
	}
}

func StopRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")
		ctx := c.Request().Context()

		if err := runs.Stop(ctx, runId); err != nil {
			return runError(err)
		}

		r, err := runs.Get(ctx, runId)
		if err != nil {
			return runError(err)
		}
		return c.JSON(http.StatusOK, apirun.ComposeDetail(r))
	}
}

func DeleteRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")
		ctx := c.Request().Context()

		if err := runs.Delete(ctx, runId, domain.DeleteOptions{
			AllRuns: c.QueryParam("all_runs") == "true",

			// The record-only deletion stays internal: over the API a
			// deleted run always loses its workspace.
			Workspace: true,
		}); err != nil {
			if errors.Is(err, domain.ErrDeletion) {
				return apierr.Conflict(
					"run is still running",
					apierr.WithError(err),
					apierr.WithAdvice("Stop the run first"),
				)
			}
			return runError(err)
		}

		c.Response().WriteHeader(http.StatusNoContent)
		return nil
	}
}

func RunStatusHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")
		ctx := c.Request().Context()

		snap, err := runs.Progress(ctx, runId, c.QueryParam("include_job_detail") == "true")
		if err != nil {
			return runError(err)
		}

		return c.JSON(http.StatusOK, apirun.ComposeStatus(runId, snap.Status, snap.Progress, snap.Jobs))
	}
}

func RunLogsHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		runId := c.Param("runId")
		ctx := c.Request().Context()

		steps := kstrings.SplitIfNotEmpty(c.QueryParam("steps"), ",")
		bundle, err := runs.Logs(ctx, runId, steps)
		if err != nil {
			return runError(err)
		}

		return c.JSON(http.StatusOK, apirun.ComposeLogs(runId, bundle.WorkflowLogs, bundle.Jobs))
	}
}
