// Package k8s builds the cluster objects of an interactive session:
// an ingress, a service and a deployment sharing one name.
//
// Building is pure. The ingress is created first and owns the other
// two objects, so deleting it garbage-collects the whole session.
package k8s

import (
	"fmt"

	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	runk8s "github.com/skein-run/skein/pkg/domain/run/k8s"
	ptr "github.com/skein-run/skein/pkg/utils/pointer"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	// ServicePort is exposed by the service in front of the session
	// deployment and referenced by the ingress. It has nothing to do
	// with the port the session image itself listens on.
	ServicePort int32 = 8081

	jupyterPort int32 = 8888

	// Group-writable files, so batch jobs and the session can share
	// the workspace.
	workspaceUmask = "0002"
)

// SessionName derives the shared object name of a run's session
// objects. Deterministic, so teardown needs no stored name.
func SessionName(runId string) string {
	return "skein-session-" + runId
}

// AccessPath is the path under the sessions host where the run's
// session is reachable from outside the cluster.
func AccessPath(runId string) string {
	return "/" + runId
}

// SessionLabels select every object belonging to a run's session.
func SessionLabels(runId string) map[string]string {
	return map[string]string{
		"app":                         SessionName(runId),
		"app.kubernetes.io/component": "session",
		"skein.run/run":               runId,
	}
}

// Blueprint is everything the session builders need, resolved ahead
// of time by the session manager.
type Blueprint struct {
	RunBody domain.RunBody

	Kind domain.SessionKind

	// Image to run, already validated against the allow-list.
	Image string

	// Access token guarding the session endpoint.
	Token string
}

// OwnedBy builds the owner reference attached to the session's later
// objects, pointing at the created ingress so orchestrator-side
// garbage collection cascades.
func OwnedBy(ing *kubenet.Ingress) kubeapimeta.OwnerReference {
	return kubeapimeta.OwnerReference{
		APIVersion: "networking.k8s.io/v1",
		Kind:       "Ingress",
		Name:       ing.ObjectMeta.Name,
		UID:        ing.ObjectMeta.UID,
	}
}

// BuildIngress exposes the session under the sessions host at the
// run's access path.
func (b *Blueprint) BuildIngress(conf *configs.ClusterConfig) *kubenet.Ingress {
	name := SessionName(b.RunBody.Id)
	pathType := kubenet.PathTypePrefix

	return &kubenet.Ingress{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:   name,
			Labels: SessionLabels(b.RunBody.Id),
		},
		Spec: kubenet.IngressSpec{
			Rules: []kubenet.IngressRule{
				{
					Host: conf.Sessions().Host(),
					IngressRuleValue: kubenet.IngressRuleValue{
						HTTP: &kubenet.HTTPIngressRuleValue{
							Paths: []kubenet.HTTPIngressPath{
								{
									Path:     AccessPath(b.RunBody.Id),
									PathType: &pathType,
									Backend: kubenet.IngressBackend{
										Service: &kubenet.IngressServiceBackend{
											Name: name,
											Port: kubenet.ServiceBackendPort{Number: ServicePort},
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

// BuildService fronts the session deployment on ServicePort.
func (b *Blueprint) BuildService(owner kubeapimeta.OwnerReference) *kubecore.Service {
	name := SessionName(b.RunBody.Id)

	return &kubecore.Service{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:            name,
			Labels:          SessionLabels(b.RunBody.Id),
			OwnerReferences: []kubeapimeta.OwnerReference{owner},
		},
		Spec: kubecore.ServiceSpec{
			Type: kubecore.ServiceTypeNodePort,
			Ports: []kubecore.ServicePort{
				{
					Port:       ServicePort,
					TargetPort: intstr.FromInt32(jupyterPort),
				},
			},
			Selector: map[string]string{"app": name},
		},
	}
}

// BuildDeployment runs the session image over the shared workspace
// volume. Unknown session kinds are rejected here, not silently
// no-opped.
func (b *Blueprint) BuildDeployment(
	conf *configs.ClusterConfig, owner kubeapimeta.OwnerReference,
) (*kubeapps.Deployment, error) {
	name := SessionName(b.RunBody.Id)

	command, args, err := sessionCommand(b)
	if err != nil {
		return nil, err
	}

	volumes := []kubecore.Volume{
		{
			Name: conf.Workspaces().VolumeName(),
			VolumeSource: kubecore.VolumeSource{
				PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
					ClaimName: conf.Workspaces().VolumeName(),
				},
			},
		},
	}
	mounts := []kubecore.VolumeMount{
		{Name: conf.Workspaces().VolumeName(), MountPath: conf.Workspaces().Root()},
	}

	for _, repo := range b.RunBody.Spec.Resources.CVMFSRepos {
		claim := runk8s.CVMFSClaimName(repo)
		volumes = append(volumes, kubecore.Volume{
			Name: claim,
			VolumeSource: kubecore.VolumeSource{
				PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
					ClaimName: claim,
					ReadOnly:  true,
				},
			},
		})
		mounts = append(mounts, kubecore.VolumeMount{
			Name:      claim,
			MountPath: "/cvmfs/" + repo,
			ReadOnly:  true,
		})
	}

	return &kubeapps.Deployment{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:            name,
			Labels:          SessionLabels(b.RunBody.Id),
			OwnerReferences: []kubeapimeta.OwnerReference{owner},
		},
		Spec: kubeapps.DeploymentSpec{
			Replicas: ptr.Ref[int32](1),
			Selector: &kubeapimeta.LabelSelector{
				MatchLabels: map[string]string{"app": name},
			},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{
					Labels: SessionLabels(b.RunBody.Id),
				},
				Spec: kubecore.PodSpec{
					Containers: []kubecore.Container{
						{
							Name:    name,
							Image:   b.Image,
							Command: command,
							Args:    args,
							Env: []kubecore.EnvVar{
								{Name: "NB_GID", Value: "0"},
								{Name: "NB_UMASK", Value: workspaceUmask},
							},
							// Notebook servers chown the workspace
							// mount on startup.
							SecurityContext: &kubecore.SecurityContext{
								RunAsUser: ptr.Ref[int64](0),
							},
							VolumeMounts: mounts,
						},
					},
					Volumes: volumes,
				},
			},
		},
	}, nil
}

// sessionCommand is the closed dispatch from session kind to the
// container entry point.
func sessionCommand(b *Blueprint) (command []string, args []string, err error) {
	switch b.Kind {
	case domain.SessionJupyter:
		return []string{"start-notebook.sh"},
			[]string{
				fmt.Sprintf("--NotebookApp.base_url='%s'", AccessPath(b.RunBody.Id)),
				fmt.Sprintf("--notebook-dir='%s'", b.RunBody.Workspace),
				fmt.Sprintf("--NotebookApp.token='%s'", b.Token),
			},
			nil
	default:
		return nil, nil, fmt.Errorf(
			"%w: '%s' is not an interactive session type", domain.ErrValidation, b.Kind,
		)
	}
}
