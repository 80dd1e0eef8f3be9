// Package k8s builds the per-run secondary compute cluster objects:
// the cluster custom resource rewritten from the administrator's
// template, the optional autoscaler, and the dashboard ingress pair.
package k8s

import (
	"fmt"
	"strconv"

	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	kubenet "k8s.io/api/networking/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	ClusterGVR    = schema.GroupVersionResource{Group: "kubernetes.dask.org", Version: "v1", Resource: "daskclusters"}
	AutoscalerGVR = schema.GroupVersionResource{Group: "kubernetes.dask.org", Version: "v1", Resource: "daskautoscalers"}
	MiddlewareGVR = schema.GroupVersionResource{Group: "traefik.io", Version: "v1alpha1", Resource: "middlewares"}
)

const (
	dashboardPort = 8787

	secretsMountPath = "/etc/skein/secrets"
	krb5MountPath    = "/krb5_cache"
	vomsMountPath    = "/vomsproxy_cache"
	rucioMountPath   = "/rucio_cache"
)

// ClusterName derives the cluster object name from a run id, shared
// by deploy and teardown so neither needs a lookup.
func ClusterName(runId string) string {
	return "skein-dask-cluster-" + runId
}

func AutoscalerName(runId string) string {
	return "skein-dask-autoscaler-" + runId
}

func IngressName(runId string) string {
	return "skein-dask-dashboard-" + runId
}

func MiddlewareName(runId string) string {
	return "skein-dask-middleware-" + runId
}

// DashboardServiceName is the scheduler service the operator creates
// beside the cluster.
func DashboardServiceName(runId string) string {
	return ClusterName(runId) + "-scheduler"
}

// DashboardPath is the public path the ingress routes to the
// dashboard.
func DashboardPath(runId string) string {
	return "/" + runId + "/dashboard"
}

func labels(runId string, owner string) map[string]string {
	return map[string]string{
		"app.kubernetes.io/name":      "dask",
		"app.kubernetes.io/component": "run",
		"skein.run/run":               runId,
		"skein.run/owner":             owner,
	}
}

// Blueprint resolves a run's cluster request into buildable form.
type Blueprint struct {
	RunBody    domain.RunBody
	Request    domain.ClusterRequest
	SecretName string
}

// NewBlueprint refuses runs whose specification declares no cluster.
func NewBlueprint(r domain.Run, conf *configs.ClusterConfig) (*Blueprint, error) {
	if !r.Spec.WantsCluster() {
		return nil, fmt.Errorf("%w: run %s declares no compute cluster", domain.ErrValidation, r.Id)
	}
	return &Blueprint{
		RunBody:    r.RunBody,
		Request:    *r.Spec.Resources.Cluster,
		SecretName: conf.SecretsPrefix() + r.Owner,
	}, nil
}

// BuildCluster rewrites the template's cluster document for this run.
func (b *Blueprint) BuildCluster(tpl *Template, conf *configs.ClusterConfig) (*unstructured.Unstructured, error) {
	body := deepCopy(tpl.cluster).(map[string]any)
	name := ClusterName(b.RunBody.Id)

	body["metadata"] = map[string]any{
		"name":   name,
		"labels": toAnyMap(labels(b.RunBody.Id, b.RunBody.Owner)),
	}

	dig(body, "spec", "scheduler", "service", "selector")["dask.org/cluster-name"] = name

	schedulerSpec := dig(body, "spec", "scheduler", "spec")
	scheduler, err := firstContainer(schedulerSpec)
	if err != nil {
		return nil, err
	}
	scheduler["image"] = b.Request.Image

	workerSpec := dig(body, "spec", "worker", "spec")
	worker, err := firstContainer(workerSpec)
	if err != nil {
		return nil, err
	}
	worker["image"] = b.Request.Image
	worker["args"] = []any{b.workerCommand()}
	worker["resources"] = map[string]any{
		"limits": map[string]any{
			"memory": b.Request.Memory,
			"cpu":    "1",
		},
	}

	replicas := b.Request.Workers
	if b.Request.Autoscale {
		replicas = 0
	}
	dig(body, "spec", "worker")["replicas"] = replicas

	appendTo(worker, "env", map[string]any{
		"name": "DASK_SCHEDULER_URI",
		"value": fmt.Sprintf(
			"tcp://%s.%s.svc.%s:8786",
			DashboardServiceName(b.RunBody.Id), conf.Namespace(), conf.Domain(),
		),
	})
	appendTo(worker, "envFrom", map[string]any{
		"secretRef": map[string]any{"name": b.SecretName},
	})

	if selector := conf.Dask().NodeSelector(); len(selector) != 0 {
		schedulerSpec["nodeSelector"] = toAnyMap(selector)
		workerSpec["nodeSelector"] = toAnyMap(selector)
	}

	appendTo(workerSpec, "volumes",
		map[string]any{
			"name": conf.Workspaces().VolumeName(),
			"persistentVolumeClaim": map[string]any{
				"claimName": conf.Workspaces().VolumeName(),
			},
		},
		map[string]any{
			"name":   "user-secrets",
			"secret": map[string]any{"secretName": b.SecretName},
		},
	)
	appendTo(worker, "volumeMounts",
		map[string]any{
			"name":      conf.Workspaces().VolumeName(),
			"mountPath": conf.Workspaces().Root(),
		},
		map[string]any{
			"name":      "user-secrets",
			"mountPath": secretsMountPath,
			"readOnly":  true,
		},
	)

	needs := b.RunBody.Spec.Resources
	if needs.Kerberos {
		b.addCredentialInit(workerSpec, worker, credentialInit{
			volume:    "krb5-cache",
			mount:     krb5MountPath,
			container: "krb5-init",
			image:     conf.Dask().KerberosImage(),
			script: `if [ ! -f "` + secretsMountPath + `/keytab" ]; then echo "[ERROR] keytab is not set in user secrets."; exit 1; fi; ` +
				`kinit -kt ` + secretsMountPath + `/keytab "$KERBEROS_PRINCIPAL" -c ` + krb5MountPath + `/krb5cc`,
			env: map[string]string{"KRB5CCNAME": krb5MountPath + "/krb5cc"},
		})
	}
	if needs.VomsProxy {
		b.addCredentialInit(workerSpec, worker, credentialInit{
			volume:    "voms-cache",
			mount:     vomsMountPath,
			container: "voms-init",
			image:     conf.Dask().VomsImage(),
			script: `if [ ! -f "` + secretsMountPath + `/userkey.pem" ]; then echo "[ERROR] userkey.pem is not set in user secrets."; exit 1; fi; ` +
				`if [ ! -f "` + secretsMountPath + `/usercert.pem" ]; then echo "[ERROR] usercert.pem is not set in user secrets."; exit 1; fi; ` +
				`if [ -z "$VOMSPROXY_PASS" ]; then echo "[ERROR] VOMSPROXY_PASS is not set in user secrets."; exit 1; fi; ` +
				`if [ -z "$VONAME" ]; then echo "[ERROR] VONAME is not set in user secrets."; exit 1; fi; ` +
				`cp ` + secretsMountPath + `/userkey.pem /tmp/userkey.pem; chmod 400 /tmp/userkey.pem; ` +
				`echo "$VOMSPROXY_PASS" | base64 -d | voms-proxy-init --voms "$VONAME" --key /tmp/userkey.pem ` +
				`--cert ` + secretsMountPath + `/usercert.pem --pwstdin --out ` + vomsMountPath + `/x509up_proxy`,
			env: map[string]string{"X509_USER_PROXY": vomsMountPath + "/x509up_proxy"},
		})
	}
	if needs.Rucio {
		b.addCredentialInit(workerSpec, worker, credentialInit{
			volume:    "rucio-cache",
			mount:     rucioMountPath,
			container: "rucio-init",
			image:     conf.Dask().RucioImage(),
			script: `if [ -z "$VONAME" ]; then echo "[ERROR] VONAME is not set in user secrets."; exit 1; fi; ` +
				`if [ -z "$RUCIO_USERNAME" ]; then echo "[ERROR] RUCIO_USERNAME is not set in user secrets."; exit 1; fi; ` +
				`export RUCIO_CFG_ACCOUNT="$RUCIO_USERNAME" RUCIO_CFG_CLIENT_VO="$VONAME"; ` +
				`j2 /opt/user/rucio.cfg.j2 > ` + rucioMountPath + `/rucio.cfg`,
			env: map[string]string{"RUCIO_CONFIG": rucioMountPath + "/rucio.cfg"},
		})
	}

	return &unstructured.Unstructured{Object: body}, nil
}

// BuildAutoscaler rewrites the template's autoscaler document. The
// cluster scales between zero and the requested worker count.
func (b *Blueprint) BuildAutoscaler(tpl *Template) *unstructured.Unstructured {
	body := deepCopy(tpl.autoscaler).(map[string]any)

	body["metadata"] = map[string]any{
		"name":   AutoscalerName(b.RunBody.Id),
		"labels": toAnyMap(labels(b.RunBody.Id, b.RunBody.Owner)),
	}
	spec := dig(body, "spec")
	spec["cluster"] = ClusterName(b.RunBody.Id)
	spec["minimum"] = 0
	spec["maximum"] = b.Request.Workers

	return &unstructured.Unstructured{Object: body}
}

// BuildMiddleware strips the dashboard path prefix before traffic
// reaches the scheduler.
func (b *Blueprint) BuildMiddleware(conf *configs.ClusterConfig) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "traefik.io/v1alpha1",
		"kind":       "Middleware",
		"metadata": map[string]any{
			"name":      MiddlewareName(b.RunBody.Id),
			"namespace": conf.Namespace(),
			"labels":    toAnyMap(labels(b.RunBody.Id, b.RunBody.Owner)),
		},
		"spec": map[string]any{
			"replacePathRegex": map[string]any{
				"regex":       DashboardPath(b.RunBody.Id) + "/*",
				"replacement": "/$1",
			},
		},
	}}
}

// BuildIngress exposes the scheduler dashboard under the run's path on
// the configured host.
func (b *Blueprint) BuildIngress(conf *configs.ClusterConfig) *kubenet.Ingress {
	pathType := kubenet.PathTypePrefix
	return &kubenet.Ingress{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:   IngressName(b.RunBody.Id),
			Labels: labels(b.RunBody.Id, b.RunBody.Owner),
			Annotations: map[string]string{
				"traefik.ingress.kubernetes.io/router.middlewares": fmt.Sprintf(
					"%s-%s@kubernetescrd", conf.Namespace(), MiddlewareName(b.RunBody.Id),
				),
			},
		},
		Spec: kubenet.IngressSpec{
			Rules: []kubenet.IngressRule{
				{
					Host: conf.Dask().DashboardHost(),
					IngressRuleValue: kubenet.IngressRuleValue{
						HTTP: &kubenet.HTTPIngressRuleValue{
							Paths: []kubenet.HTTPIngressPath{
								{
									Path:     DashboardPath(b.RunBody.Id),
									PathType: &pathType,
									Backend: kubenet.IngressBackend{
										Service: &kubenet.IngressServiceBackend{
											Name: DashboardServiceName(b.RunBody.Id),
											Port: kubenet.ServiceBackendPort{Number: dashboardPort},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

// workerCommand starts a worker inside the run's workspace with the
// requested threads and memory ceiling.
func (b *Blueprint) workerCommand() string {
	return fmt.Sprintf(
		"cd %s && exec dask-worker --name $(DASK_WORKER_NAME) --dashboard --dashboard-address 8788 --nthreads %s --memory-limit %s",
		b.RunBody.Workspace, strconv.Itoa(b.Request.Cores), b.Request.Memory,
	)
}

type credentialInit struct {
	volume    string
	mount     string
	container string
	image     string
	script    string
	env       map[string]string
}

// addCredentialInit wires one credential-producing init container: a
// shared cache volume, a fail-fast shell script writing into it, and
// the env pointing the worker at the produced file.
func (b *Blueprint) addCredentialInit(podSpec map[string]any, worker map[string]any, init credentialInit) {
	appendTo(podSpec, "volumes", map[string]any{
		"name":     init.volume,
		"emptyDir": map[string]any{},
	})

	cacheMount := map[string]any{"name": init.volume, "mountPath": init.mount}
	appendTo(worker, "volumeMounts", cacheMount)
	for name, value := range init.env {
		appendTo(worker, "env", map[string]any{"name": name, "value": value})
	}

	appendTo(podSpec, "initContainers", map[string]any{
		"name":            init.container,
		"image":           init.image,
		"imagePullPolicy": "IfNotPresent",
		"command":         []any{"/bin/bash", "-c"},
		"args":            []any{init.script},
		"envFrom": []any{
			map[string]any{"secretRef": map[string]any{"name": b.SecretName}},
		},
		"volumeMounts": []any{
			map[string]any{
				"name":      "user-secrets",
				"mountPath": secretsMountPath,
				"readOnly":  true,
			},
			cacheMount,
		},
	})
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
