package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/skein-run/skein/cmd/skeind/handlers"
	"github.com/skein-run/skein/pkg/configs"
	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
	"github.com/skein-run/skein/pkg/domain/cluster"
	clusterpg "github.com/skein-run/skein/pkg/domain/cluster/db/postgres"
	jobpg "github.com/skein-run/skein/pkg/domain/job/db/postgres"
	quotapg "github.com/skein-run/skein/pkg/domain/quota/db/postgres"
	"github.com/skein-run/skein/pkg/domain/run"
	runpg "github.com/skein-run/skein/pkg/domain/run/db/postgres"
	runk8s "github.com/skein-run/skein/pkg/domain/run/k8s"
	"github.com/skein-run/skein/pkg/domain/session"
	sessionpg "github.com/skein-run/skein/pkg/domain/session/db/postgres"
	"github.com/skein-run/skein/pkg/domain/workspace"
	"github.com/skein-run/skein/pkg/utils/echoutil"
	"github.com/skein-run/skein/pkg/utils/filewatch"
	"github.com/skein-run/skein/pkg/utils/kubeutil"
	k8s "github.com/skein-run/skein/pkg/workloads/k8s"
)

func main() {
	configPath := flag.String("config-path", "", "server config path")
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	flag.Parse()

	e := echo.New()
	e.Pre(middleware.AddTrailingSlash())

	echoutil.SetLevel(e, *loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	conf, err := configs.Load(*configPath)
	if err != nil {
		log.Fatalf("can not read configuration: %s", err)
	}
	cconf := conf.Cluster()

	// A config change restarts the server rather than re-wiring live.
	{
		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), *configPath)
		if err != nil {
			log.Fatalf("can not watch configuration: %s", err)
		}
		defer cancel()
		context.AfterFunc(ctx, func() {
			log.Println("config file is updated. quit to restart server.")
			graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := e.Shutdown(graceful); err != nil {
				log.Printf("error on shutdown by config update: %s", err)
			}
		})
	}

	ctx := context.Background()
	pool, err := kpool.Connect(ctx, cconf.Database())
	if err != nil {
		log.Fatalf("can not connect to database: %s", err)
	}
	defer pool.Close()

	clientset, dyn := kubeutil.ConnectToK8s()
	cluster8s := k8s.Wrap(clientset, dyn)

	runs := runpg.New(pool)
	jobs := jobpg.New(pool)
	quota := quotapg.New(pool)
	services := clusterpg.New(pool)
	sessionRows := sessionpg.New(pool)

	var clusters cluster.Interface
	if cconf.Dask() != nil {
		c, err := cluster.New(cconf, cluster8s, services)
		if err != nil {
			log.Fatalf("can not set up the compute cluster manager: %s", err)
		}
		clusters = c
	}

	sessions := session.New(cconf, cluster8s, sessionRows)
	manager := run.New(
		cconf,
		runs, jobs, quota,
		runk8s.New(cconf, cluster8s),
		clusters,
		sessions,
		workspace.New(cconf.Workspaces().Root()),
	)

	{
		e.POST("/api/workflows/", handlers.CreateRunHandler(manager))
		e.GET("/api/workflows/", handlers.ListRunHandler(manager))
		e.GET("/api/workflows/:runId/", handlers.GetRunHandler(manager))
		e.PUT("/api/workflows/:runId/start/", handlers.StartRunHandler(manager))
		e.PUT("/api/workflows/:runId/stop/", handlers.StopRunHandler(manager))
		e.DELETE("/api/workflows/:runId/", handlers.DeleteRunHandler(manager))

		e.GET("/api/workflows/:runId/status/", handlers.RunStatusHandler(manager))
		e.GET("/api/workflows/:runId/logs/", handlers.RunLogsHandler(manager))

		e.POST("/api/workflows/:runId/share/", handlers.ShareRunHandler(manager))
		e.DELETE("/api/workflows/:runId/share/:userId/", handlers.UnshareRunHandler(manager, "userId"))

		e.POST("/api/workflows/:runId/sessions/", handlers.OpenSessionHandler(manager, sessions))
		e.DELETE("/api/workflows/:runId/sessions/", handlers.CloseSessionHandler(sessions))
	}

	log.Println("registered routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", conf.Port())))
}
