package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	handlers "github.com/skein-run/skein/cmd/skeind/handlers"
	httptestutil "github.com/skein-run/skein/internal/testutils/http"
	apirun "github.com/skein-run/skein/pkg/api/types/runs"
	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/run"
	runmock "github.com/skein-run/skein/pkg/domain/run/mock"
	"github.com/skein-run/skein/pkg/utils/try"
)

func dummyRun(status domain.RunStatus) domain.Run {
	return domain.Run{
		RunBody: domain.RunBody{
			Id:     "9d9b2f6a-1b67-4a52-93b5-bd0021a3f1a1",
			Owner:  "user-1000",
			Name:   "fitting",
			Number: 1,
			Status: status,
			Spec: domain.Specification{
				Engine:   domain.EngineSerial,
				Workflow: map[string]any{"steps": []any{}},
			},
			Workspace: "/var/skein/workspaces/user-1000/9d9b2f6a-1b67-4a52-93b5-bd0021a3f1a1",
			CreatedAt: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func assertHTTPError(t *testing.T, err error, statusCode int) {
	t.Helper()
	if err == nil {
		t.Fatal("error is nothing")
	}
	var echoErr *echo.HTTPError
	if !errors.As(err, &echoErr) {
		t.Fatalf("error is not echo.HTTPError. actual = %#v", err)
	}
	if echoErr.Code != statusCode {
		t.Fatalf("unmatch error code:%d, expected:%d", echoErr.Code, statusCode)
	}
}

func TestCreateRunHandler(t *testing.T) {

	t.Run("it registers a run and returns Created with its detail", func(t *testing.T) {
		mockRun := runmock.New(t)

		var gotOwner, gotName string
		var gotSpec domain.Specification
		mockRun.Impl.Create = func(ctx context.Context, owner string, name string, spec domain.Specification, gitRef string) (domain.Run, error) {
			gotOwner, gotName, gotSpec = owner, name, spec
			return dummyRun(domain.Created), nil
		}

		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/api/workflows?user=user-1000",
			strings.NewReader(`{
				"name": "fitting",
				"specification": {
					"workflow_type": "serial",
					"workflow": {"steps": []}
				}
			}`),
			httptestutil.ContentType("application/json"),
		)

		testee := handlers.CreateRunHandler(mockRun)
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}

		if respRec.Code != http.StatusCreated {
			t.Errorf("status code: %d != %d", respRec.Code, http.StatusCreated)
		}
		if gotOwner != "user-1000" || gotName != "fitting" {
			t.Errorf("passed (owner, name): (%s, %s)", gotOwner, gotName)
		}
		if gotSpec.Engine != domain.EngineSerial {
			t.Errorf("passed engine: %s", gotSpec.Engine)
		}

		actual := apirun.Detail{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %s", err)
		}
		expected := apirun.ComposeDetail(dummyRun(domain.Created))
		if !actual.Equal(&expected) {
			t.Errorf("response body:\n%+v\nwant:\n%+v", actual, expected)
		}
	})

	t.Run("it rejects requests without user", func(t *testing.T) {
		mockRun := runmock.New(t)

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/workflows",
			strings.NewReader(`{"specification": {"workflow_type": "serial", "workflow": {}}}`),
			httptestutil.ContentType("application/json"),
		)

		testee := handlers.CreateRunHandler(mockRun)
		assertHTTPError(t, testee(c), http.StatusBadRequest)
	})

	t.Run("it rejects unknown workflow engines", func(t *testing.T) {
		mockRun := runmock.New(t)

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/workflows?user=user-1000",
			strings.NewReader(`{"specification": {"workflow_type": "make", "workflow": {}}}`),
			httptestutil.ContentType("application/json"),
		)

		testee := handlers.CreateRunHandler(mockRun)
		assertHTTPError(t, testee(c), http.StatusBadRequest)
	})
}

func TestStartRunHandler(t *testing.T) {

	type when struct {
		body     string
		startErr error
	}
	type then struct {
		statusCode int
		opts       domain.StartOptions
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			mockRun := runmock.New(t)

			var gotOpts domain.StartOptions
			mockRun.Impl.Start = func(ctx context.Context, runId string, opts domain.StartOptions) error {
				if runId != "run-1" {
					t.Errorf("passed runId: %s", runId)
				}
				gotOpts = opts
				return when.startErr
			}
			if when.startErr == nil {
				mockRun.Impl.Get = func(ctx context.Context, runId string) (domain.Run, error) {
					return dummyRun(domain.Pending), nil
				}
			}

			e := echo.New()
			c, respRec := httptestutil.Put(
				e, "/api/workflows/run-1/start",
				strings.NewReader(when.body),
				httptestutil.ContentType("application/json"),
			)
			c.SetPath("/api/workflows/:runId/start")
			c.SetParamNames("runId")
			c.SetParamValues("run-1")

			testee := handlers.StartRunHandler(mockRun)
			err := testee(c)

			if then.statusCode == http.StatusOK {
				if err != nil {
					t.Fatalf("response is error: %v", err)
				}
				if respRec.Code != http.StatusOK {
					t.Errorf("status code: %d", respRec.Code)
				}
				if gotOpts.Restart != then.opts.Restart {
					t.Errorf("passed restart: %v", gotOpts.Restart)
				}
				if len(gotOpts.InputParameters) != len(then.opts.InputParameters) {
					t.Errorf("passed input parameters: %+v", gotOpts.InputParameters)
				}
				return
			}
			assertHTTPError(t, err, then.statusCode)
		}
	}

	t.Run(
		"it starts the run and passes the caller's overrides",
		theory(
			when{body: `{"input_parameters": {"seed": 42}, "restart": true}`},
			then{
				statusCode: http.StatusOK,
				opts: domain.StartOptions{
					InputParameters: map[string]any{"seed": float64(42)},
					Restart:         true,
				},
			},
		),
	)
	t.Run(
		"it answers NotFound for an unknown run",
		theory(
			when{body: `{}`, startErr: domain.NewErrMissing("run", "run-1")},
			then{statusCode: http.StatusNotFound},
		),
	)
	t.Run(
		"it answers Conflict for an illegal start",
		theory(
			when{body: `{}`, startErr: domain.NewErrConflict("run-1", domain.Running)},
			then{statusCode: http.StatusConflict},
		),
	)
	t.Run(
		"it answers Gone for a deleted run",
		theory(
			when{body: `{}`, startErr: domain.NewErrRunDeleted("run-1")},
			then{statusCode: http.StatusGone},
		),
	)
	t.Run(
		"it answers ServiceUnavailable when submission fails",
		theory(
			when{body: `{}`, startErr: domain.NewErrExternal(errors.New("fake timeout"))},
			then{statusCode: http.StatusServiceUnavailable},
		),
	)
}

func TestStopRunHandler(t *testing.T) {

	type when struct {
		stopErr error
	}
	type then struct {
		statusCode int
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			mockRun := runmock.New(t)
			mockRun.Impl.Stop = func(ctx context.Context, runId string) error {
				return when.stopErr
			}
			if when.stopErr == nil {
				mockRun.Impl.Get = func(ctx context.Context, runId string) (domain.Run, error) {
					return dummyRun(domain.Stopped), nil
				}
			}

			e := echo.New()
			c, respRec := httptestutil.Put(e, "/api/workflows/run-1/stop", nil)
			c.SetPath("/api/workflows/:runId/stop")
			c.SetParamNames("runId")
			c.SetParamValues("run-1")

			testee := handlers.StopRunHandler(mockRun)
			err := testee(c)

			if then.statusCode == http.StatusOK {
				if err != nil {
					t.Fatalf("response is error: %v", err)
				}
				actual := apirun.Detail{}
				if err := json.Unmarshal(respRec.Body.Bytes(), &actual); err != nil {
					t.Fatalf("response is not json: %s", err)
				}
				if actual.Status != string(domain.Stopped) {
					t.Errorf("status in response: %s", actual.Status)
				}
				return
			}
			assertHTTPError(t, err, then.statusCode)
		}
	}

	t.Run(
		"it stops a running run",
		theory(when{}, then{statusCode: http.StatusOK}),
	)
	t.Run(
		"it answers Conflict when the run is not running",
		theory(
			when{stopErr: domain.NewErrConflict("run-1", domain.Queued)},
			then{statusCode: http.StatusConflict},
		),
	)
	t.Run(
		"it answers ServiceUnavailable when the orchestrator call fails",
		theory(
			when{stopErr: domain.NewErrExternal(errors.New("fake timeout"))},
			then{statusCode: http.StatusServiceUnavailable},
		),
	)
}

func TestDeleteRunHandler(t *testing.T) {

	type when struct {
		request   string
		deleteErr error
	}
	type then struct {
		statusCode int
		allRuns    bool
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			mockRun := runmock.New(t)

			var gotOpts domain.DeleteOptions
			mockRun.Impl.Delete = func(ctx context.Context, runId string, opts domain.DeleteOptions) error {
				gotOpts = opts
				return when.deleteErr
			}

			e := echo.New()
			c, respRec := httptestutil.Delete(e, when.request)
			c.SetPath("/api/workflows/:runId")
			c.SetParamNames("runId")
			c.SetParamValues("run-1")

			testee := handlers.DeleteRunHandler(mockRun)
			err := testee(c)

			if then.statusCode == http.StatusNoContent {
				if err != nil {
					t.Fatalf("response is error: %v", err)
				}
				if respRec.Code != http.StatusNoContent {
					t.Errorf("status code: %d", respRec.Code)
				}
				if !gotOpts.Workspace {
					t.Error("workspace removal should always be requested over the API")
				}
				if gotOpts.AllRuns != then.allRuns {
					t.Errorf("passed all_runs: %v", gotOpts.AllRuns)
				}
				return
			}
			assertHTTPError(t, err, then.statusCode)
		}
	}

	t.Run(
		"it deletes the run with its workspace",
		theory(
			when{request: "/api/workflows/run-1"},
			then{statusCode: http.StatusNoContent},
		),
	)
	t.Run(
		"it spreads deletion over siblings on all_runs",
		theory(
			when{request: "/api/workflows/run-1?all_runs=true"},
			then{statusCode: http.StatusNoContent, allRuns: true},
		),
	)
	t.Run(
		"it answers Conflict while the run is running",
		theory(
			when{
				request:   "/api/workflows/run-1",
				deleteErr: domain.NewErrDeletion("run-1", domain.Running),
			},
			then{statusCode: http.StatusConflict},
		),
	)
	t.Run(
		"it answers NotFound for an unknown run",
		theory(
			when{
				request:   "/api/workflows/run-1",
				deleteErr: domain.NewErrMissing("run", "run-1"),
			},
			then{statusCode: http.StatusNotFound},
		),
	)
}

func TestRunStatusHandler(t *testing.T) {

	t.Run("it returns the progress snapshot", func(t *testing.T) {
		mockRun := runmock.New(t)

		snapshot := run.ProgressSnapshot{
			Status: domain.Running,
			Progress: domain.Progress{
				Finished: domain.ProgressBucket{JobIds: []string{"j1"}, Total: 1},
				Total:    domain.ProgressBucket{Total: 3},
			},
		}
		var gotDetail bool
		mockRun.Impl.Progress = func(ctx context.Context, runId string, includeJobDetail bool) (run.ProgressSnapshot, error) {
			gotDetail = includeJobDetail
			return snapshot, nil
		}

		e := echo.New()
		c, respRec := httptestutil.Get(e, "/api/workflows/run-1/status?include_job_detail=true")
		c.SetPath("/api/workflows/:runId/status")
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		testee := handlers.RunStatusHandler(mockRun)
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}

		if !gotDetail {
			t.Error("include_job_detail should be passed through")
		}

		actual := apirun.StatusResponse{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %s", err)
		}
		if actual.RunId != "run-1" || actual.Status != string(domain.Running) {
			t.Errorf("response header fields: %+v", actual)
		}
		if !actual.Progress.Equal(apirun.ComposeProgress(snapshot.Progress)) {
			t.Errorf("response progress: %+v", actual.Progress)
		}
	})

	t.Run("it answers NotFound for an unknown run", func(t *testing.T) {
		mockRun := runmock.New(t)
		mockRun.Impl.Progress = func(ctx context.Context, runId string, includeJobDetail bool) (run.ProgressSnapshot, error) {
			return run.ProgressSnapshot{}, domain.NewErrMissing("run", runId)
		}

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/workflows/run-x/status")
		c.SetPath("/api/workflows/:runId/status")
		c.SetParamNames("runId")
		c.SetParamValues("run-x")

		testee := handlers.RunStatusHandler(mockRun)
		assertHTTPError(t, testee(c), http.StatusNotFound)
	})
}

func TestRunLogsHandler(t *testing.T) {

	t.Run("it returns the log bundle filtered by steps", func(t *testing.T) {
		mockRun := runmock.New(t)

		var gotSteps []string
		mockRun.Impl.Logs = func(ctx context.Context, runId string, steps []string) (run.LogBundle, error) {
			gotSteps = steps
			return run.LogBundle{
				WorkflowLogs: "engine says hi\n",
				Jobs: []domain.Job{
					{Id: "j1", RunId: runId, Name: "fit", Status: domain.JobFinished, LogText: "done\n"},
				},
			}, nil
		}

		e := echo.New()
		c, respRec := httptestutil.Get(e, "/api/workflows/run-1/logs?steps=fit,plot")
		c.SetPath("/api/workflows/:runId/logs")
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		testee := handlers.RunLogsHandler(mockRun)
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}

		if len(gotSteps) != 2 || gotSteps[0] != "fit" || gotSteps[1] != "plot" {
			t.Errorf("passed steps: %+v", gotSteps)
		}

		actual := apirun.LogsResponse{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %s", err)
		}
		if actual.WorkflowLogs != "engine says hi\n" {
			t.Errorf("workflow logs: %q", actual.WorkflowLogs)
		}
		if len(actual.Jobs) != 1 || actual.Jobs[0].Logs != "done\n" {
			t.Errorf("job logs: %+v", actual.Jobs)
		}
	})
}

func TestShareRunHandler(t *testing.T) {

	t.Run("it grants access with an expiry", func(t *testing.T) {
		mockRun := runmock.New(t)

		var gotUser, gotMessage string
		var gotValidUntil *time.Time
		mockRun.Impl.Share = func(ctx context.Context, runId string, userId string, message string, validUntil *time.Time) error {
			gotUser, gotMessage, gotValidUntil = userId, message, validUntil
			return nil
		}

		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/api/workflows/run-1/share",
			strings.NewReader(`{
				"user_id": "user-2000",
				"message": "have a look",
				"valid_until": "2027-01-01T00:00:00+00:00"
			}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/api/workflows/:runId/share")
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		testee := handlers.ShareRunHandler(mockRun)
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}

		if respRec.Code != http.StatusNoContent {
			t.Errorf("status code: %d", respRec.Code)
		}
		if gotUser != "user-2000" || gotMessage != "have a look" {
			t.Errorf("passed grant: (%s, %s)", gotUser, gotMessage)
		}
		if gotValidUntil == nil || !gotValidUntil.Equal(try.To(
			time.Parse(time.RFC3339, "2027-01-01T00:00:00+00:00"),
		).OrFatal(t)) {
			t.Errorf("passed valid_until: %v", gotValidUntil)
		}
	})

	t.Run("it rejects grants without user_id", func(t *testing.T) {
		mockRun := runmock.New(t)

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/workflows/run-1/share",
			strings.NewReader(`{"message": "no grantee"}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/api/workflows/:runId/share")
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		testee := handlers.ShareRunHandler(mockRun)
		assertHTTPError(t, testee(c), http.StatusBadRequest)
	})

	t.Run("it relays validation rejections as BadRequest", func(t *testing.T) {
		mockRun := runmock.New(t)
		mockRun.Impl.Share = func(ctx context.Context, runId string, userId string, message string, validUntil *time.Time) error {
			return domain.ErrValidation
		}

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/workflows/run-1/share",
			strings.NewReader(`{"user_id": "user-1000"}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/api/workflows/:runId/share")
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		testee := handlers.ShareRunHandler(mockRun)
		assertHTTPError(t, testee(c), http.StatusBadRequest)
	})
}

func TestUnshareRunHandler(t *testing.T) {

	t.Run("it revokes the grant", func(t *testing.T) {
		mockRun := runmock.New(t)

		var gotUser string
		mockRun.Impl.Unshare = func(ctx context.Context, runId string, userId string) error {
			gotUser = userId
			return nil
		}

		e := echo.New()
		c, respRec := httptestutil.Delete(e, "/api/workflows/run-1/share/user-2000")
		c.SetPath("/api/workflows/:runId/share/:userId")
		c.SetParamNames("runId", "userId")
		c.SetParamValues("run-1", "user-2000")

		testee := handlers.UnshareRunHandler(mockRun, "userId")
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}
		if respRec.Code != http.StatusNoContent {
			t.Errorf("status code: %d", respRec.Code)
		}
		if gotUser != "user-2000" {
			t.Errorf("passed userId: %s", gotUser)
		}
	})

	t.Run("it answers NotFound for an unknown grant", func(t *testing.T) {
		mockRun := runmock.New(t)
		mockRun.Impl.Unshare = func(ctx context.Context, runId string, userId string) error {
			return domain.NewErrMissing("share", userId)
		}

		e := echo.New()
		c, _ := httptestutil.Delete(e, "/api/workflows/run-1/share/user-2000")
		c.SetPath("/api/workflows/:runId/share/:userId")
		c.SetParamNames("runId", "userId")
		c.SetParamValues("run-1", "user-2000")

		testee := handlers.UnshareRunHandler(mockRun, "userId")
		assertHTTPError(t, testee(c), http.StatusNotFound)
	})
}
