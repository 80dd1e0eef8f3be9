package mock

import (
	"context"
	"errors"
	"io"

	"github.com/skein-run/skein/pkg/workloads/k8s"
	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Client is a fake k8s.Client.
//
// Set behaviours via Impl; calls are counted in Called. Methods with
// no Impl fail with "[MOCK] not implemented".
type Client struct {
	Impl struct {
		CreateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		GetJob    func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
		DeleteJob func(ctx context.Context, namespace string, name string) error

		CreateDeployment func(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
		DeleteDeployment func(ctx context.Context, namespace string, name string) error

		CreateService func(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)
		DeleteService func(ctx context.Context, namespace string, name string) error

		CreateIngress func(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error)
		DeleteIngress func(ctx context.Context, namespace string, name string) error

		GetPVC    func(ctx context.Context, namespace string, name string) (*kubecore.PersistentVolumeClaim, error)
		CreatePVC func(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error)

		GetSecret func(ctx context.Context, namespace string, name string) (*kubecore.Secret, error)

		FindPods func(ctx context.Context, namespace string, labels k8s.LabelSelector) ([]kubecore.Pod, error)
		Log      func(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error)

		CreateCustom func(ctx context.Context, namespace string, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
		DeleteCustom func(ctx context.Context, namespace string, gvr schema.GroupVersionResource, name string) error
	}
	Called struct {
		CreateJob uint64
		GetJob    uint64
		DeleteJob uint64

		CreateDeployment uint64
		DeleteDeployment uint64

		CreateService uint64
		DeleteService uint64

		CreateIngress uint64
		DeleteIngress uint64

		GetPVC    uint64
		CreatePVC uint64

		GetSecret uint64

		FindPods uint64
		Log      uint64

		CreateCustom uint64
		DeleteCustom uint64
	}
}

var _ k8s.Client = &Client{}

func New() *Client {
	return &Client{}
}

var errNotImplemented = errors.New("[MOCK] not implemented")

func (m *Client) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.Called.CreateJob += 1
	if m.Impl.CreateJob == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateJob(ctx, namespace, job)
}

func (m *Client) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	m.Called.GetJob += 1
	if m.Impl.GetJob == nil {
		return nil, errNotImplemented
	}
	return m.Impl.GetJob(ctx, namespace, name)
}

func (m *Client) DeleteJob(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteJob += 1
	if m.Impl.DeleteJob == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteJob(ctx, namespace, name)
}

func (m *Client) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	m.Called.CreateDeployment += 1
	if m.Impl.CreateDeployment == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateDeployment(ctx, namespace, depl)
}

func (m *Client) DeleteDeployment(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteDeployment += 1
	if m.Impl.DeleteDeployment == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteDeployment(ctx, namespace, name)
}

func (m *Client) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	m.Called.CreateService += 1
	if m.Impl.CreateService == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateService(ctx, namespace, svc)
}

func (m *Client) DeleteService(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteService += 1
	if m.Impl.DeleteService == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteService(ctx, namespace, name)
}

func (m *Client) CreateIngress(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error) {
	m.Called.CreateIngress += 1
	if m.Impl.CreateIngress == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateIngress(ctx, namespace, ing)
}

func (m *Client) DeleteIngress(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteIngress += 1
	if m.Impl.DeleteIngress == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteIngress(ctx, namespace, name)
}

func (m *Client) GetPVC(ctx context.Context, namespace string, name string) (*kubecore.PersistentVolumeClaim, error) {
	m.Called.GetPVC += 1
	if m.Impl.GetPVC == nil {
		return nil, errNotImplemented
	}
	return m.Impl.GetPVC(ctx, namespace, name)
}

func (m *Client) CreatePVC(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error) {
	m.Called.CreatePVC += 1
	if m.Impl.CreatePVC == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreatePVC(ctx, namespace, pvc)
}

func (m *Client) GetSecret(ctx context.Context, namespace string, name string) (*kubecore.Secret, error) {
	m.Called.GetSecret += 1
	if m.Impl.GetSecret == nil {
		return nil, errNotImplemented
	}
	return m.Impl.GetSecret(ctx, namespace, name)
}

func (m *Client) FindPods(ctx context.Context, namespace string, labels k8s.LabelSelector) ([]kubecore.Pod, error) {
	m.Called.FindPods += 1
	if m.Impl.FindPods == nil {
		return nil, errNotImplemented
	}
	return m.Impl.FindPods(ctx, namespace, labels)
}

func (m *Client) Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error) {
	m.Called.Log += 1
	if m.Impl.Log == nil {
		return nil, errNotImplemented
	}
	return m.Impl.Log(ctx, namespace, podname, container)
}

func (m *Client) CreateCustom(ctx context.Context, namespace string, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	m.Called.CreateCustom += 1
	if m.Impl.CreateCustom == nil {
		return nil, errNotImplemented
	}
	return m.Impl.CreateCustom(ctx, namespace, gvr, obj)
}

func (m *Client) DeleteCustom(ctx context.Context, namespace string, gvr schema.GroupVersionResource, name string) error {
	m.Called.DeleteCustom += 1
	if m.Impl.DeleteCustom == nil {
		return errNotImplemented
	}
	return m.Impl.DeleteCustom(ctx, namespace, gvr, name)
}
