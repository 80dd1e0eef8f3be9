package cluster_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/cluster"
	dbmock "github.com/skein-run/skein/pkg/domain/cluster/db/mock"
	clusterk8s "github.com/skein-run/skein/pkg/domain/cluster/k8s"
	"github.com/skein-run/skein/pkg/utils/try"
	k8smock "github.com/skein-run/skein/pkg/workloads/k8s/mock"
	kubenet "k8s.io/api/networking/v1"
	kubeapierr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const testTemplate = `
apiVersion: kubernetes.dask.org/v1
kind: DaskCluster
spec:
  scheduler:
    service:
      selector: {}
    spec:
      containers:
        - name: scheduler
  worker:
    replicas: 1
    spec:
      containers:
        - name: worker
---
apiVersion: kubernetes.dask.org/v1
kind: DaskAutoscaler
spec: {}
`

func testConfig(t *testing.T) *configs.ClusterConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dask.yaml")
	if err := os.WriteFile(path, []byte(testTemplate), 0o640); err != nil {
		t.Fatal(err)
	}
	m := &configs.ServerConfigMarshall{
		Port: 8080,
		Cluster: &configs.ClusterConfigMarshall{
			Namespace: "skein-runtime",
			Database:  "postgres://skein:skein@db:5432/skein",
			Queue:     &configs.QueueConfigMarshall{URL: "amqp://mq:5672"},
			Workspaces: &configs.WorkspacesConfigMarshall{
				Root:       "/var/skein/workspaces",
				VolumeName: "skein-shared",
			},
			Engines: &configs.EnginesConfigMarshall{
				CWL:       "skein/engine-cwl:v1",
				Yadage:    "skein/engine-yadage:v1",
				Serial:    "skein/engine-serial:v1",
				Snakemake: "skein/engine-snakemake:v1",
			},
			Sidecar: &configs.SidecarConfigMarshall{
				Image:          "skein/job-controller:v1",
				ServiceAccount: "skein-runner",
			},
			Limits: &configs.LimitsConfigMarshall{Memory: "4Gi"},
			Sessions: &configs.SessionsConfigMarshall{
				Host:    "skein.example.com",
				SignKey: "test-sign-key",
				Jupyter: &configs.SessionTypeConfigMarshall{Image: "skein/jupyter:v1"},
			},
			Dask: &configs.DaskConfigMarshall{
				TemplatePath:  path,
				DashboardHost: "dask.example.com",
			},
		},
	}
	return configs.TrySeal[*configs.ServerConfig](m).Cluster()
}

func clusterRun() domain.Run {
	return domain.Run{
		RunBody: domain.RunBody{
			Id:    "5b44ab54-21a0-4b5d-90ac-5cb4eef17a2e",
			Owner: "user-1000",
			Spec: domain.Specification{
				Engine: domain.EngineYadage,
				Resources: domain.ResourceNeeds{
					Cluster: &domain.ClusterRequest{
						Image: "skein/dask-runtime:v2", Workers: 2, Cores: 1, Memory: "1Gi",
					},
				},
			},
			Workspace: "/var/skein/workspaces/user-1000/5b44ab54",
		},
	}
}

func notFound(gvr schema.GroupVersionResource, name string) error {
	return kubeapierr.NewNotFound(gvr.GroupResource(), name)
}

func TestDeploy_CompensatesOnFailure(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)
	run := clusterRun()

	created := []string{}
	deleted := []string{}

	kc := k8smock.New()
	kc.Impl.CreateCustom = func(_ context.Context, _ string, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
		if gvr == clusterk8s.MiddlewareGVR {
			return nil, errors.New("fake error: middlewares.traefik.io is forbidden")
		}
		created = append(created, obj.GetName())
		return obj, nil
	}
	kc.Impl.DeleteCustom = func(_ context.Context, _ string, gvr schema.GroupVersionResource, name string) error {
		deleted = append(deleted, name)
		return nil
	}
	kc.Impl.DeleteIngress = func(_ context.Context, _ string, name string) error {
		return notFound(schema.GroupVersionResource{Resource: "ingresses"}, name)
	}

	services := dbmock.NewServiceInterface()
	services.Impl.SetStatus = func(context.Context, string, string, domain.ServiceStatus) error {
		return domain.NewErrMissing("service of run", run.Id)
	}

	mgr := try.To(cluster.New(conf, kc, services)).OrFatal(t)

	err := mgr.Deploy(ctx, run)
	if err == nil {
		t.Fatal("deploy should fail when the middleware cannot be created")
	}
	if !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("cause should surface: got %v", err)
	}

	wantGone := []string{
		clusterk8s.ClusterName(run.Id),
		clusterk8s.AutoscalerName(run.Id),
		clusterk8s.MiddlewareName(run.Id),
	}
	for _, name := range wantGone {
		found := false
		for _, d := range deleted {
			found = found || d == name
		}
		if !found {
			t.Errorf("compensation should delete %s: got %v", name, deleted)
		}
	}
}

func TestDeploy_RecordsDashboardService(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)
	run := clusterRun()

	kc := k8smock.New()
	kc.Impl.CreateCustom = func(_ context.Context, _ string, _ schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
		return obj, nil
	}
	kc.Impl.CreateIngress = func(_ context.Context, _ string, ing *kubenet.Ingress) (*kubenet.Ingress, error) {
		return ing, nil
	}

	services := dbmock.NewServiceInterface()
	services.Impl.Put = func(context.Context, domain.Service) error { return nil }

	mgr := try.To(cluster.New(conf, kc, services)).OrFatal(t)
	if err := mgr.Deploy(ctx, run); err != nil {
		t.Fatal(err)
	}

	if services.Calls.Put.Times() != 1 {
		t.Fatalf("exactly one service row should be recorded: got %d", services.Calls.Put.Times())
	}
	svc := services.Calls.Put.Last()
	if svc.RunId != run.Id || svc.Kind != domain.ServiceClusterDashboard || svc.Status != domain.ServiceCreated {
		t.Errorf("unexpected service row: %+v", svc)
	}
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)
	runId := clusterRun().Id

	t.Run("objects already gone do not count as failures", func(t *testing.T) {
		kc := k8smock.New()
		kc.Impl.DeleteCustom = func(_ context.Context, _ string, gvr schema.GroupVersionResource, name string) error {
			return notFound(gvr, name)
		}
		kc.Impl.DeleteIngress = func(_ context.Context, _ string, name string) error {
			return notFound(schema.GroupVersionResource{Resource: "ingresses"}, name)
		}

		services := dbmock.NewServiceInterface()
		services.Impl.SetStatus = func(context.Context, string, string, domain.ServiceStatus) error {
			return domain.NewErrMissing("service of run", runId)
		}

		mgr := try.To(cluster.New(conf, kc, services)).OrFatal(t)
		if err := mgr.Teardown(ctx, runId); err != nil {
			t.Errorf("teardown of absent objects should succeed: %v", err)
		}
	})

	t.Run("every removal is attempted and failures are joined", func(t *testing.T) {
		deleted := []string{}

		kc := k8smock.New()
		kc.Impl.DeleteCustom = func(_ context.Context, _ string, gvr schema.GroupVersionResource, name string) error {
			if gvr == clusterk8s.ClusterGVR {
				return errors.New("fake error: cluster delete timed out")
			}
			deleted = append(deleted, name)
			return nil
		}
		kc.Impl.DeleteIngress = func(_ context.Context, _ string, name string) error {
			deleted = append(deleted, name)
			return nil
		}

		services := dbmock.NewServiceInterface()
		services.Impl.SetStatus = func(_ context.Context, gotRun string, name string, status domain.ServiceStatus) error {
			if status != domain.ServiceDeleted {
				t.Errorf("service should be marked deleted: got %s", status)
			}
			return nil
		}

		mgr := try.To(cluster.New(conf, kc, services)).OrFatal(t)
		err := mgr.Teardown(ctx, runId)
		if err == nil {
			t.Fatal("teardown should report the cluster delete failure")
		}
		if !strings.Contains(err.Error(), "timed out") {
			t.Errorf("cause should surface: got %v", err)
		}

		for _, name := range []string{
			clusterk8s.AutoscalerName(runId),
			clusterk8s.IngressName(runId),
			clusterk8s.MiddlewareName(runId),
		} {
			found := false
			for _, d := range deleted {
				found = found || d == name
			}
			if !found {
				t.Errorf("failure of one removal should not stop %s: got %v", name, deleted)
			}
		}
		if services.Calls.SetStatus.Times() != 1 {
			t.Error("service row should still be marked deleted")
		}
	})
}
