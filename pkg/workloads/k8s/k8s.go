package k8s

import (
	"context"
	"io"
	"strings"

	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	k8s "k8s.io/client-go/kubernetes"
)

// LabelSelector is a conjunction of label=value terms.
type LabelSelector map[string]string

func (ls LabelSelector) QueryString() string {
	terms := make([]string, 0, len(ls))
	for k, v := range ls {
		terms = append(terms, k+"="+v)
	}
	return strings.Join(terms, ",")
}

// Client is the subset of the orchestrator API this control plane
// uses. All calls are namespace-scoped and fallible; callers decide
// compensation.
type Client interface {
	CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
	GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)

	// DeleteJob removes a job with zero grace period and background
	// propagation, as the cooperative stop path wants.
	DeleteJob(ctx context.Context, namespace string, name string) error

	CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
	DeleteDeployment(ctx context.Context, namespace string, name string) error

	CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)
	DeleteService(ctx context.Context, namespace string, name string) error

	CreateIngress(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error)
	DeleteIngress(ctx context.Context, namespace string, name string) error

	GetPVC(ctx context.Context, namespace string, name string) (*kubecore.PersistentVolumeClaim, error)
	CreatePVC(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error)

	GetSecret(ctx context.Context, namespace string, name string) (*kubecore.Secret, error)

	FindPods(ctx context.Context, namespace string, labels LabelSelector) ([]kubecore.Pod, error)

	// Log streams one container's log. The caller owns the timeout.
	Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error)

	// Custom resources (cluster, autoscaler, middleware) go through
	// the dynamic API, keyed by group-version-resource.
	CreateCustom(ctx context.Context, namespace string, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	DeleteCustom(ctx context.Context, namespace string, gvr schema.GroupVersionResource, name string) error
}

type client struct {
	clientset *k8s.Clientset
	dyn       dynamic.Interface
}

var _ Client = &client{}

// Wrap adapts a typed clientset plus a dynamic client into Client.
func Wrap(clientset *k8s.Clientset, dyn dynamic.Interface) Client {
	return &client{clientset: clientset, dyn: dyn}
}

func (c *client) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return c.clientset.BatchV1().Jobs(namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
}

func (c *client) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	return c.clientset.BatchV1().Jobs(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (c *client) DeleteJob(ctx context.Context, namespace string, name string) error {
	background := kubeapimeta.DeletePropagationBackground
	zero := int64(0)
	return c.clientset.BatchV1().Jobs(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{
		GracePeriodSeconds: &zero,
		PropagationPolicy:  &background,
	})
}

func (c *client) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	return c.clientset.AppsV1().Deployments(namespace).Create(ctx, depl, kubeapimeta.CreateOptions{})
}

func (c *client) DeleteDeployment(ctx context.Context, namespace string, name string) error {
	return c.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, *kubeapimeta.NewDeleteOptions(0))
}

func (c *client) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	return c.clientset.CoreV1().Services(namespace).Create(ctx, svc, kubeapimeta.CreateOptions{})
}

func (c *client) DeleteService(ctx context.Context, namespace string, name string) error {
	return c.clientset.CoreV1().Services(namespace).Delete(ctx, name, *kubeapimeta.NewDeleteOptions(0))
}

func (c *client) CreateIngress(ctx context.Context, namespace string, ing *kubenet.Ingress) (*kubenet.Ingress, error) {
	return c.clientset.NetworkingV1().Ingresses(namespace).Create(ctx, ing, kubeapimeta.CreateOptions{})
}

func (c *client) DeleteIngress(ctx context.Context, namespace string, name string) error {
	return c.clientset.NetworkingV1().Ingresses(namespace).Delete(ctx, name, *kubeapimeta.NewDeleteOptions(0))
}

func (c *client) GetPVC(ctx context.Context, namespace string, name string) (*kubecore.PersistentVolumeClaim, error) {
	return c.clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (c *client) CreatePVC(ctx context.Context, namespace string, pvc *kubecore.PersistentVolumeClaim) (*kubecore.PersistentVolumeClaim, error) {
	return c.clientset.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, kubeapimeta.CreateOptions{})
}

func (c *client) GetSecret(ctx context.Context, namespace string, name string) (*kubecore.Secret, error) {
	return c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (c *client) FindPods(ctx context.Context, namespace string, labels LabelSelector) ([]kubecore.Pod, error) {
	resp, err := c.clientset.CoreV1().Pods(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: labels.QueryString(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *client) Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error) {
	return c.clientset.
		CoreV1().
		Pods(namespace).
		GetLogs(podname, &kubecore.PodLogOptions{Container: container}).
		Stream(ctx)
}

func (c *client) CreateCustom(ctx context.Context, namespace string, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	return c.dyn.Resource(gvr).Namespace(namespace).Create(ctx, obj, kubeapimeta.CreateOptions{})
}

func (c *client) DeleteCustom(ctx context.Context, namespace string, gvr schema.GroupVersionResource, name string) error {
	return c.dyn.Resource(gvr).Namespace(namespace).Delete(ctx, name, *kubeapimeta.NewDeleteOptions(0))
}
