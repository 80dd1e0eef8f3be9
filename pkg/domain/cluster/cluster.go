// Package cluster manages per-run secondary compute clusters.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	clusterdb "github.com/skein-run/skein/pkg/domain/cluster/db"
	clusterk8s "github.com/skein-run/skein/pkg/domain/cluster/k8s"
	xe "github.com/skein-run/skein/pkg/errors"
	"github.com/skein-run/skein/pkg/workloads/k8s"
	kubeapierr "k8s.io/apimachinery/pkg/api/errors"
)

type Interface interface {
	// Deploy creates the run's cluster objects: the cluster custom
	// resource, the autoscaler when requested, and the dashboard
	// ingress pair. Partial failures are compensated before the error
	// returns, so a failed Deploy leaves nothing behind.
	Deploy(ctx context.Context, r domain.Run) error

	// Teardown removes every cluster object and marks the dashboard
	// service row deleted. Each removal is attempted regardless of
	// the others; failures are joined into one error. Objects already
	// gone do not count as failures.
	Teardown(ctx context.Context, runId string) error

	// SchedulerLog streams the scheduler container's log. The caller
	// owns the timeout.
	SchedulerLog(ctx context.Context, runId string) (io.ReadCloser, error)
}

type impl struct {
	cluster  k8s.Client
	conf     *configs.ClusterConfig
	tpl      *clusterk8s.Template
	services clusterdb.Interface
}

// New loads the cluster template eagerly, so a broken template is a
// startup error, not a per-run one.
func New(conf *configs.ClusterConfig, cluster k8s.Client, services clusterdb.Interface) (Interface, error) {
	if conf.Dask() == nil {
		return nil, fmt.Errorf("%w: no compute cluster section in the configuration", domain.ErrValidation)
	}
	tpl, err := clusterk8s.LoadTemplate(conf.Dask().TemplatePath())
	if err != nil {
		return nil, err
	}
	return &impl{cluster: cluster, conf: conf, tpl: tpl, services: services}, nil
}

func (i *impl) Deploy(ctx context.Context, r domain.Run) error {
	b, err := clusterk8s.NewBlueprint(r, i.conf)
	if err != nil {
		return err
	}

	if err := i.deploy(ctx, b); err != nil {
		// Compensate whatever got created before the failure.
		if derr := i.Teardown(ctx, r.Id); derr != nil {
			return errors.Join(err, derr)
		}
		return err
	}
	return nil
}

func (i *impl) deploy(ctx context.Context, b *clusterk8s.Blueprint) error {
	namespace := i.conf.Namespace()

	body, err := b.BuildCluster(i.tpl, i.conf)
	if err != nil {
		return err
	}
	if _, err := i.cluster.CreateCustom(ctx, namespace, clusterk8s.ClusterGVR, body); err != nil {
		return xe.Wrap(err)
	}

	if b.Request.Autoscale {
		if _, err := i.cluster.CreateCustom(
			ctx, namespace, clusterk8s.AutoscalerGVR, b.BuildAutoscaler(i.tpl),
		); err != nil {
			return xe.Wrap(err)
		}
	}

	if _, err := i.cluster.CreateCustom(
		ctx, namespace, clusterk8s.MiddlewareGVR, b.BuildMiddleware(i.conf),
	); err != nil {
		return xe.Wrap(err)
	}
	if _, err := i.cluster.CreateIngress(ctx, namespace, b.BuildIngress(i.conf)); err != nil {
		return xe.Wrap(err)
	}

	return i.services.Put(ctx, domain.Service{
		Name:   clusterk8s.DashboardServiceName(b.RunBody.Id),
		Kind:   domain.ServiceClusterDashboard,
		Status: domain.ServiceCreated,
		RunId:  b.RunBody.Id,
	})
}

func (i *impl) Teardown(ctx context.Context, runId string) error {
	namespace := i.conf.Namespace()
	failures := []error{}

	collect := func(what string, err error) {
		if err == nil || kubeapierr.IsNotFound(err) {
			return
		}
		failures = append(failures, fmt.Errorf("deleting %s of run %s: %w", what, runId, err))
	}

	collect("cluster", i.cluster.DeleteCustom(
		ctx, namespace, clusterk8s.ClusterGVR, clusterk8s.ClusterName(runId),
	))
	collect("autoscaler", i.cluster.DeleteCustom(
		ctx, namespace, clusterk8s.AutoscalerGVR, clusterk8s.AutoscalerName(runId),
	))
	collect("dashboard ingress", i.cluster.DeleteIngress(
		ctx, namespace, clusterk8s.IngressName(runId),
	))
	collect("dashboard middleware", i.cluster.DeleteCustom(
		ctx, namespace, clusterk8s.MiddlewareGVR, clusterk8s.MiddlewareName(runId),
	))

	if err := i.services.SetStatus(
		ctx, runId, clusterk8s.DashboardServiceName(runId), domain.ServiceDeleted,
	); err != nil && !errors.Is(err, domain.ErrMissing) {
		failures = append(failures, fmt.Errorf("marking dashboard service of run %s deleted: %w", runId, err))
	}

	return errors.Join(failures...)
}

func (i *impl) SchedulerLog(ctx context.Context, runId string) (io.ReadCloser, error) {
	pods, err := i.cluster.FindPods(ctx, i.conf.Namespace(), k8s.LabelSelector{
		"dask.org/cluster-name": clusterk8s.ClusterName(runId),
		"dask.org/component":    "scheduler",
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if len(pods) == 0 {
		return nil, domain.NewErrMissing("scheduler pod of run", runId)
	}

	pod := pods[0]
	container := ""
	if 0 < len(pod.Spec.Containers) {
		container = pod.Spec.Containers[0].Name
	}
	return i.cluster.Log(ctx, i.conf.Namespace(), pod.Name, container)
}
