package k8s

import (
	"context"
	"io"

	"github.com/skein-run/skein/pkg/configs"
	xe "github.com/skein-run/skein/pkg/errors"
	"github.com/skein-run/skein/pkg/workloads/k8s"
	kubecore "k8s.io/api/core/v1"
	kubeapierr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Interface is the orchestrator-facing surface of the run manager's
// batch path. Builders stay pure; everything here talks to the
// cluster.
type Interface interface {
	// SpawnBatch submits the main batch job built from ex.
	SpawnBatch(ctx context.Context, ex *Executable) error

	// EnsureCVMFS get-or-creates the claims backing the declared
	// repositories. Idempotent.
	EnsureCVMFS(ctx context.Context, repos []string) error

	// RemoveBatch deletes the run's main batch job with zero grace
	// period and background propagation.
	RemoveBatch(ctx context.Context, runId string) error

	// RemoveJob deletes one child job by its backend id, with the
	// same delete options as RemoveBatch.
	RemoveJob(ctx context.Context, backendJobId string) error

	// EngineLog streams the engine container's log from the run's
	// batch pod. The caller owns the timeout.
	EngineLog(ctx context.Context, runId string) (io.ReadCloser, error)
}

type impl struct {
	cluster k8s.Client
	conf    *configs.ClusterConfig
}

func New(conf *configs.ClusterConfig, cluster k8s.Client) Interface {
	return &impl{cluster: cluster, conf: conf}
}

func (i *impl) SpawnBatch(ctx context.Context, ex *Executable) error {
	job, err := ex.Build(i.conf)
	if err != nil {
		return err
	}
	if _, err := i.cluster.CreateJob(ctx, i.conf.Namespace(), job); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (i *impl) EnsureCVMFS(ctx context.Context, repos []string) error {
	for _, repo := range repos {
		name := CVMFSClaimName(repo)
		if _, err := i.cluster.GetPVC(ctx, i.conf.Namespace(), name); err == nil {
			continue
		} else if !kubeapierr.IsNotFound(err) {
			return xe.Wrap(err)
		}

		claim := cvmfsClaim(repo)
		if _, err := i.cluster.CreatePVC(ctx, i.conf.Namespace(), claim); err != nil {
			if kubeapierr.IsAlreadyExists(err) {
				continue
			}
			return xe.Wrap(err)
		}
	}
	return nil
}

func (i *impl) RemoveBatch(ctx context.Context, runId string) error {
	return i.cluster.DeleteJob(ctx, i.conf.Namespace(), BatchJobName(runId))
}

func (i *impl) RemoveJob(ctx context.Context, backendJobId string) error {
	return i.cluster.DeleteJob(ctx, i.conf.Namespace(), backendJobId)
}

func (i *impl) EngineLog(ctx context.Context, runId string) (io.ReadCloser, error) {
	pods, err := i.cluster.FindPods(ctx, i.conf.Namespace(), k8s.LabelSelector(RunLabels(runId)))
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if len(pods) == 0 {
		return nil, xe.Wrap(kubeapierr.NewNotFound(
			kubecore.Resource("pods"), BatchJobName(runId),
		))
	}
	return i.cluster.Log(ctx, i.conf.Namespace(), pods[0].Name, EngineContainerName)
}

// cvmfsClaim shapes the read-only claim a CVMFS CSI provisioner binds.
func cvmfsClaim(repo string) *kubecore.PersistentVolumeClaim {
	storageClass := CVMFSClaimName(repo)
	return &kubecore.PersistentVolumeClaim{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name: CVMFSClaimName(repo),
			Labels: map[string]string{
				"app.kubernetes.io/name":      "cvmfs",
				"app.kubernetes.io/component": "run",
			},
		},
		Spec: kubecore.PersistentVolumeClaimSpec{
			AccessModes:      []kubecore.PersistentVolumeAccessMode{kubecore.ReadOnlyMany},
			StorageClassName: &storageClass,
			Resources: kubecore.VolumeResourceRequirements{
				Requests: kubecore.ResourceList{
					kubecore.ResourceStorage: resource.MustParse("1Gi"),
				},
			},
		},
	}
}
